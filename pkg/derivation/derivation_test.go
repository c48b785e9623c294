package derivation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paninifs/engine/pkg/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	s, err := store.New(store.WithRoot(t.TempDir()))
	require.NoError(t, err)
	return NewManager(s), s
}

var pngV1Doc = map[string]any{
	"format":  "PNG",
	"version": "1.0",
	"composition": map[string]any{
		"policy": "SEQUENTIAL",
		"children": []any{
			map[string]any{"name": "signature", "pattern_ref": "9949a4719949a471"},
			map[string]any{"name": "chunks", "pattern_ref": "6eacc5de6eacc5de"},
		},
	},
	"metadata": map[string]any{
		"extract": []any{
			map[string]any{"field": "IHDR.width", "as": "image_width"},
			map[string]any{"field": "IHDR.height", "as": "image_height"},
		},
	},
}

func storeBaseline(t *testing.T, s *store.Store) string {
	t.Helper()
	raw, err := json.Marshal(pngV1Doc)
	require.NoError(t, err)
	exact, _, _, err := s.Put(raw, store.TypeGrammar, nil)
	require.NoError(t, err)
	return exact
}

func addExtraction(description string, rules ...map[string]any) Transformation {
	return Transformation{
		Operation:   OpAddExtraction,
		Description: description,
		Changes:     []Change{{Path: "metadata.extract", Add: rules}},
	}
}

func extractedFields(t *testing.T, content []byte) []string {
	t.Helper()
	var doc struct {
		Metadata struct {
			Extract []struct {
				As string `json:"as"`
			} `json:"extract"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(content, &doc))
	fields := make([]string, 0, len(doc.Metadata.Extract))
	for _, e := range doc.Metadata.Extract {
		fields = append(fields, e.As)
	}
	return fields
}

func TestEvolutionBranchAndMerge(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)
	v1 := storeBaseline(t, s)

	transparency, _, err := m.Create(ctx, CreateRequest{
		Parents:    []string{v1},
		ParentType: store.TypeGrammar,
		Transformation: addExtraction("Add transparency support",
			map[string]any{"field": "tRNS.alpha", "as": "has_transparency"}),
		Semantic: SemanticFingerprint{
			Capabilities: []string{"chunk_parsing", "alpha_channel_detection"},
		},
		Author: "panini-research",
	})
	require.NoError(t, err)

	color, _, err := m.Create(ctx, CreateRequest{
		Parents:    []string{v1},
		ParentType: store.TypeGrammar,
		Transformation: addExtraction("Add color profile support",
			map[string]any{"field": "gAMA.gamma", "as": "gamma"}),
		Semantic: SemanticFingerprint{
			Capabilities: []string{"chunk_parsing", "color_profile_extraction"},
		},
		Author: "panini-research",
	})
	require.NoError(t, err)
	require.NotEqual(t, transparency, color)

	merged, node, err := m.Create(ctx, CreateRequest{
		Parents:    []string{transparency, color},
		ParentType: store.TypeGrammar,
		Transformation: Transformation{
			Operation:   OpMerge,
			Description: "Combine transparency and color features",
			Changes:     []Change{{Path: "metadata.extract", Strategy: StrategyUnion}},
		},
		Semantic: SemanticFingerprint{
			Capabilities: []string{"chunk_parsing", "alpha_channel_detection", "color_profile_extraction"},
		},
		Author: "panini-research",
	})
	require.NoError(t, err)
	assert.True(t, node.IsMerge())

	// The merged grammar carries all four extraction fields.
	content, err := m.Load(merged, store.TypeGrammar)
	require.NoError(t, err)
	fields := extractedFields(t, content)
	assert.ElementsMatch(t, []string{"image_width", "image_height", "has_transparency", "gamma"}, fields)

	// Lineage: common ancestor of the branches is the baseline.
	common, err := m.CommonAncestor(ctx, transparency, color)
	require.NoError(t, err)
	assert.Equal(t, v1, common)

	siblings, err := m.Siblings(ctx, transparency)
	require.NoError(t, err)
	assert.Equal(t, []string{color}, siblings)

	ancestors, err := m.Ancestors(ctx, merged, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{transparency, color, v1}, ancestors)

	descendants, err := m.Descendants(ctx, v1, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{transparency, color, merged}, descendants)

	// Replay equivalence: reconstruction yields the stored bytes.
	replayed, err := m.Reconstruct(ctx, merged, store.TypeGrammar)
	require.NoError(t, err)
	assert.Equal(t, content, replayed)
}

func TestReplayEquivalenceForEveryNode(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)
	v1 := storeBaseline(t, s)

	child, _, err := m.Create(ctx, CreateRequest{
		Parents:    []string{v1},
		ParentType: store.TypeGrammar,
		Transformation: addExtraction("bit depth",
			map[string]any{"field": "IHDR.bit_depth", "as": "bit_depth"}),
		Author: "tester",
	})
	require.NoError(t, err)

	for _, h := range []string{v1, child} {
		direct, err := m.Load(h, store.TypeGrammar)
		require.NoError(t, err)
		replayed, err := m.Reconstruct(ctx, h, store.TypeGrammar)
		require.NoError(t, err)
		assert.Equal(t, direct, replayed)
	}
}

func TestAnnotateKeepsContentHash(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)
	v1 := storeBaseline(t, s)

	child, node, err := m.Create(ctx, CreateRequest{
		Parents:    []string{v1},
		ParentType: store.TypeGrammar,
		Transformation: Transformation{
			Operation:   OpAnnotate,
			Description: "tag with empirically validated capabilities",
		},
		Semantic: SemanticFingerprint{
			Capabilities: []string{"validated"},
		},
		Author: "curator",
	})
	require.NoError(t, err)
	assert.Equal(t, v1, child)
	assert.Equal(t, v1, node.Result)
}

func TestCreateRootWithCreateOperation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	root, node, err := m.Create(ctx, CreateRequest{
		ParentType: store.TypeGrammar,
		Transformation: Transformation{
			Operation: OpCreate,
			Changes:   []Change{{Content: pngV1Doc}},
		},
		Author: "panini-research",
	})
	require.NoError(t, err)
	assert.True(t, node.IsRoot())

	content, err := m.Load(root, store.TypeGrammar)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"format":"PNG"`)
}

func TestCreateRootRejectsNonCreateOperation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, _, err := m.Create(ctx, CreateRequest{
		ParentType:     store.TypeGrammar,
		Transformation: addExtraction("no parents", map[string]any{"field": "x", "as": "y"}),
	})
	assert.ErrorIs(t, err, ErrInvalidTransformation)
}

func TestCreateUnknownParent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, _, err := m.Create(ctx, CreateRequest{
		Parents:        []string{"2222222222222222222222222222222222222222222222222222222222222222"},
		ParentType:     store.TypeGrammar,
		Transformation: addExtraction("x", map[string]any{"field": "a", "as": "b"}),
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDerivationNodeDeterministic(t *testing.T) {
	ctx := context.Background()

	// Two independent stores, same inputs: identical child hashes.
	m1, s1 := newTestManager(t)
	m2, s2 := newTestManager(t)
	v1a := storeBaseline(t, s1)
	v1b := storeBaseline(t, s2)
	require.Equal(t, v1a, v1b)

	transform := addExtraction("deterministic",
		map[string]any{"field": "tIME.year", "as": "modified_year"})

	childA, _, err := m1.Create(ctx, CreateRequest{
		Parents: []string{v1a}, ParentType: store.TypeGrammar,
		Transformation: transform, Author: "a",
	})
	require.NoError(t, err)
	childB, _, err := m2.Create(ctx, CreateRequest{
		Parents: []string{v1b}, ParentType: store.TypeGrammar,
		Transformation: transform, Author: "a",
	})
	require.NoError(t, err)
	assert.Equal(t, childA, childB)
}

func TestReplacePattern(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)
	v1 := storeBaseline(t, s)

	child, _, err := m.Create(ctx, CreateRequest{
		Parents:    []string{v1},
		ParentType: store.TypeGrammar,
		Transformation: Transformation{
			Operation: OpReplacePattern,
			Changes:   []Change{{From: "6eacc5de6eacc5de", To: "feedfacefeedface"}},
		},
		Author: "tester",
	})
	require.NoError(t, err)

	content, err := m.Load(child, store.TypeGrammar)
	require.NoError(t, err)
	assert.Contains(t, string(content), "feedfacefeedface")
	assert.NotContains(t, string(content), "6eacc5de6eacc5de")
}

func TestReplaceUnknownPatternFails(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)
	v1 := storeBaseline(t, s)

	_, _, err := m.Create(ctx, CreateRequest{
		Parents:    []string{v1},
		ParentType: store.TypeGrammar,
		Transformation: Transformation{
			Operation: OpReplacePattern,
			Changes:   []Change{{From: "absent", To: "whatever"}},
		},
	})
	assert.ErrorIs(t, err, ErrInvalidTransformation)
}

func TestMergeStrategies(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)
	v1 := storeBaseline(t, s)

	left, _, err := m.Create(ctx, CreateRequest{
		Parents: []string{v1}, ParentType: store.TypeGrammar,
		Transformation: addExtraction("left", map[string]any{"field": "l.f", "as": "left_only"}),
	})
	require.NoError(t, err)
	right, _, err := m.Create(ctx, CreateRequest{
		Parents: []string{v1}, ParentType: store.TypeGrammar,
		Transformation: addExtraction("right", map[string]any{"field": "r.f", "as": "right_only"}),
	})
	require.NoError(t, err)

	tests := []struct {
		strategy string
		want     []string
	}{
		{StrategyUnion, []string{"image_width", "image_height", "left_only", "right_only"}},
		{StrategyIntersection, []string{"image_width", "image_height"}},
		{StrategyPreferFirst, []string{"image_width", "image_height", "left_only"}},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			merged, _, err := m.Create(ctx, CreateRequest{
				Parents: []string{left, right}, ParentType: store.TypeGrammar,
				Transformation: Transformation{
					Operation: OpMerge,
					Changes:   []Change{{Strategy: tt.strategy}},
				},
			})
			require.NoError(t, err)
			content, err := m.Load(merged, store.TypeGrammar)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, extractedFields(t, content))
		})
	}
}

func TestFindByCapability(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)
	v1 := storeBaseline(t, s)

	alpha, _, err := m.Create(ctx, CreateRequest{
		Parents: []string{v1}, ParentType: store.TypeGrammar,
		Transformation: addExtraction("alpha", map[string]any{"field": "tRNS.alpha", "as": "alpha"}),
		Semantic:       SemanticFingerprint{Capabilities: []string{"alpha_channel_detection"}},
	})
	require.NoError(t, err)

	_, _, err = m.Create(ctx, CreateRequest{
		Parents: []string{v1}, ParentType: store.TypeGrammar,
		Transformation: addExtraction("gamma", map[string]any{"field": "gAMA.gamma", "as": "gamma"}),
		Semantic:       SemanticFingerprint{Capabilities: []string{"color_profile_extraction"}},
	})
	require.NoError(t, err)

	found, err := m.FindByCapability("alpha_channel_detection")
	require.NoError(t, err)
	assert.Equal(t, []string{alpha}, found)

	none, err := m.FindByCapability("quantum_decoding")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAncestorsMaxDepth(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)
	v1 := storeBaseline(t, s)

	v2, _, err := m.Create(ctx, CreateRequest{
		Parents: []string{v1}, ParentType: store.TypeGrammar,
		Transformation: addExtraction("a", map[string]any{"field": "a.a", "as": "a"}),
	})
	require.NoError(t, err)
	v3, _, err := m.Create(ctx, CreateRequest{
		Parents: []string{v2}, ParentType: store.TypeGrammar,
		Transformation: addExtraction("b", map[string]any{"field": "b.b", "as": "b"}),
	})
	require.NoError(t, err)

	one, err := m.Ancestors(ctx, v3, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{v2}, one)

	all, err := m.Ancestors(ctx, v3, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{v2, v1}, all)
}

func TestAcyclicity(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)
	v1 := storeBaseline(t, s)

	// No derivation's ancestor set contains itself.
	v2, _, err := m.Create(ctx, CreateRequest{
		Parents: []string{v1}, ParentType: store.TypeGrammar,
		Transformation: addExtraction("a", map[string]any{"field": "a.a", "as": "a"}),
	})
	require.NoError(t, err)

	ancestors, err := m.Ancestors(ctx, v2, 0)
	require.NoError(t, err)
	assert.NotContains(t, ancestors, v2)
}
