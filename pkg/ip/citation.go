package ip

import (
	"fmt"
	"strings"

	"github.com/paninifs/engine/pkg/hashing"
)

// CitationStyle selects a citation format.
type CitationStyle string

const (
	StyleAPA     CitationStyle = "APA"
	StyleBibTeX  CitationStyle = "BibTeX"
	StyleMLA     CitationStyle = "MLA"
	StyleChicago CitationStyle = "Chicago"
	StyleIEEE    CitationStyle = "IEEE"
)

// Placeholder tokens for absent fields. Citations are deterministic:
// missing data yields these, never an error.
const (
	placeholderAuthor = "Unknown Author"
	placeholderTitle  = "Untitled"
	placeholderYear   = "n.d."
)

// GenerateCitation renders a deterministic citation for the object's
// attribution chain. Authors appear in descending credit order with
// ties broken alphabetically.
func (m *AttributionManager) GenerateCitation(objectHash string, style CitationStyle) (string, error) {
	chain, err := m.Load(objectHash)
	if err != nil {
		return "", err
	}
	return formatCitation(chain, style)
}

func formatCitation(chain *AttributionChain, style CitationStyle) (string, error) {
	authors := orderedAuthors(chain)
	title := chain.Title
	if title == "" {
		title = placeholderTitle
	}
	year := placeholderYear
	if chain.Year > 0 {
		year = fmt.Sprintf("%d", chain.Year)
	}
	short := hashing.ShortHash(chain.ObjectHash)

	switch style {
	case StyleAPA:
		return fmt.Sprintf("%s (%s). %s [%s]. Content-addressed object %s.",
			strings.Join(authors, ", "), year, title, chain.ObjectType, short), nil
	case StyleBibTeX:
		return fmt.Sprintf("@misc{%s,\n  author = {%s},\n  title = {%s},\n  year = {%s},\n  note = {Content-addressed %s, hash %s}\n}",
			short, strings.Join(authors, " and "), title, year, chain.ObjectType, short), nil
	case StyleMLA:
		return fmt.Sprintf("%s. \"%s.\" Content-addressed object %s, %s.",
			strings.Join(authors, ", "), title, short, year), nil
	case StyleChicago:
		return fmt.Sprintf("%s. %s. Content-addressed object %s. %s.",
			strings.Join(authors, ", "), title, short, year), nil
	case StyleIEEE:
		return fmt.Sprintf("%s, \"%s,\" content-addressed object %s, %s.",
			strings.Join(authors, ", "), title, short, year), nil
	default:
		return "", fmt.Errorf("unknown citation style %q", style)
	}
}

func orderedAuthors(chain *AttributionChain) []string {
	if len(chain.Credits) == 0 {
		return []string{placeholderAuthor}
	}
	credits := make([]Credit, len(chain.Credits))
	copy(credits, chain.Credits)
	for i := 0; i < len(credits); i++ {
		for j := i + 1; j < len(credits); j++ {
			if credits[j].Percentage > credits[i].Percentage ||
				(credits[j].Percentage == credits[i].Percentage && credits[j].Author < credits[i].Author) {
				credits[i], credits[j] = credits[j], credits[i]
			}
		}
	}
	authors := make([]string, 0, len(credits))
	for _, c := range credits {
		authors = append(authors, c.Author)
	}
	return authors
}
