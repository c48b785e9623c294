package ip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAttribution(t *testing.T) *AttributionManager {
	t.Helper()
	m, err := NewAttributionManager(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestAttributionCreditsSumTo100(t *testing.T) {
	m := newAttribution(t)
	_, err := m.Create("obj1", "pattern", "PNG Magic Pattern")
	require.NoError(t, err)

	_, err = m.AddCredit("obj1", "alice", 60, []string{"creation"})
	require.NoError(t, err)
	chain, err := m.AddCredit("obj1", "bob", 40, []string{"review"})
	require.NoError(t, err)

	assert.True(t, chain.Complete())
	assert.InDelta(t, 100.0, chain.TotalPercentage(), percentageTolerance)
}

func TestAttributionOverflowRejected(t *testing.T) {
	m := newAttribution(t)
	_, err := m.Create("obj1", "pattern", "X")
	require.NoError(t, err)

	_, err = m.AddCredit("obj1", "alice", 80, nil)
	require.NoError(t, err)
	_, err = m.AddCredit("obj1", "bob", 30, nil)
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestAttributionMergesSameAuthor(t *testing.T) {
	m := newAttribution(t)
	_, err := m.Create("obj1", "pattern", "X")
	require.NoError(t, err)

	_, err = m.AddCredit("obj1", "alice", 30, []string{"creation"})
	require.NoError(t, err)
	chain, err := m.AddCredit("obj1", "alice", 20, []string{"refinement"})
	require.NoError(t, err)

	require.Len(t, chain.Credits, 1)
	assert.InDelta(t, 50.0, chain.Credits[0].Percentage, percentageTolerance)
	assert.ElementsMatch(t, []string{"creation", "refinement"}, chain.Credits[0].Contributions)
}

func TestInheritedAttribution(t *testing.T) {
	m := newAttribution(t)

	// Two fully-credited parents.
	_, err := m.Create("parentA", "pattern", "A")
	require.NoError(t, err)
	_, err = m.AddCredit("parentA", "alice", 100, []string{"creation"})
	require.NoError(t, err)

	_, err = m.Create("parentB", "pattern", "B")
	require.NoError(t, err)
	_, err = m.AddCredit("parentB", "bob", 100, []string{"creation"})
	require.NoError(t, err)

	// Derivative: charlie keeps 30%, the rest splits across parents.
	_, err = m.Create("child", "pattern", "A+B")
	require.NoError(t, err)
	_, err = m.AddCredit("child", "charlie", 30, []string{"derivation"})
	require.NoError(t, err)

	chain, err := m.InheritFromParents("child", []string{"parentA", "parentB"}, 30)
	require.NoError(t, err)

	assert.True(t, chain.Complete(), "total = %.4f", chain.TotalPercentage())

	byAuthor := make(map[string]float64)
	for _, c := range chain.Credits {
		byAuthor[c.Author] = c.Percentage
	}
	assert.InDelta(t, 30.0, byAuthor["charlie"], percentageTolerance)
	assert.InDelta(t, 35.0, byAuthor["alice"], percentageTolerance)
	assert.InDelta(t, 35.0, byAuthor["bob"], percentageTolerance)
}

func TestInheritedAttributionSharedAuthor(t *testing.T) {
	m := newAttribution(t)

	_, err := m.Create("p1", "grammar", "P1")
	require.NoError(t, err)
	_, err = m.AddCredit("p1", "alice", 100, nil)
	require.NoError(t, err)

	_, err = m.Create("p2", "grammar", "P2")
	require.NoError(t, err)
	_, err = m.AddCredit("p2", "alice", 50, nil)
	require.NoError(t, err)
	_, err = m.AddCredit("p2", "bob", 50, nil)
	require.NoError(t, err)

	_, err = m.Create("kid", "grammar", "Kid")
	require.NoError(t, err)
	_, err = m.AddCredit("kid", "alice", 20, nil)
	require.NoError(t, err)

	chain, err := m.InheritFromParents("kid", []string{"p1", "p2"}, 20)
	require.NoError(t, err)
	assert.True(t, chain.Complete())

	// Alice appears once, with her own credit plus both inherited
	// shares merged.
	aliceCount := 0
	for _, c := range chain.Credits {
		if c.Author == "alice" {
			aliceCount++
		}
	}
	assert.Equal(t, 1, aliceCount)
}

func TestCitationStyles(t *testing.T) {
	m := newAttribution(t)
	_, err := m.Create("cite1", "grammar", "PNG Grammar")
	require.NoError(t, err)
	_, err = m.AddCredit("cite1", "alice", 60, nil)
	require.NoError(t, err)
	_, err = m.AddCredit("cite1", "bob", 40, nil)
	require.NoError(t, err)

	for _, style := range []CitationStyle{StyleAPA, StyleBibTeX, StyleMLA, StyleChicago, StyleIEEE} {
		text, err := m.GenerateCitation("cite1", style)
		require.NoError(t, err, string(style))
		assert.Contains(t, text, "alice", string(style))
		assert.Contains(t, text, "bob", string(style))
		assert.Contains(t, text, "PNG Grammar", string(style))

		// Determinism.
		again, err := m.GenerateCitation("cite1", style)
		require.NoError(t, err)
		assert.Equal(t, text, again)
	}

	bibtex, err := m.GenerateCitation("cite1", StyleBibTeX)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(bibtex, "@misc{"))
	assert.Contains(t, bibtex, "alice and bob")
}

func TestCitationPlaceholders(t *testing.T) {
	m := newAttribution(t)
	_, err := m.Create("bare", "pattern", "")
	require.NoError(t, err)

	text, err := m.GenerateCitation("bare", StyleAPA)
	require.NoError(t, err)
	assert.Contains(t, text, placeholderAuthor)
	assert.Contains(t, text, placeholderTitle)
}

func TestCitationAuthorOrderByCredit(t *testing.T) {
	m := newAttribution(t)
	_, err := m.Create("ord", "pattern", "Ordered")
	require.NoError(t, err)
	_, err = m.AddCredit("ord", "minor", 10, nil)
	require.NoError(t, err)
	_, err = m.AddCredit("ord", "major", 90, nil)
	require.NoError(t, err)

	text, err := m.GenerateCitation("ord", StyleAPA)
	require.NoError(t, err)
	assert.Less(t, strings.Index(text, "major"), strings.Index(text, "minor"))
}
