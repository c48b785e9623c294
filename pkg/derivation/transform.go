package derivation

import (
	"errors"
	"fmt"

	"github.com/paninifs/engine/pkg/canonical"
)

// Operations of the closed transformation set.
const (
	OpCreate         = "create"
	OpAddExtraction  = "add_extraction"
	OpReplacePattern = "replace_pattern"
	OpAddPattern     = "add_pattern"
	OpRemovePattern  = "remove_pattern"
	OpMerge          = "merge"
	OpAnnotate       = "annotate"
)

// Merge strategies for metadata.extract sets.
const (
	StrategyUnion        = "union"
	StrategyIntersection = "intersection"
	StrategyPreferFirst  = "prefer_first"
)

// ErrInvalidTransformation reports a transformation document that
// cannot be applied to its parents.
var ErrInvalidTransformation = errors.New("invalid transformation")

// Transformation is a declarative, pure description of how a child is
// produced from its parents. Replaying it on the same parents must
// yield byte-identical output.
type Transformation struct {
	Operation   string   `json:"operation"`
	Description string   `json:"description,omitempty"`
	Changes     []Change `json:"changes,omitempty"`
}

// Change is one edit within a transformation. Which fields are
// meaningful depends on the operation.
type Change struct {
	Path     string           `json:"path,omitempty"`
	Add      []map[string]any `json:"add,omitempty"`      // add_extraction, add_pattern
	From     string           `json:"from,omitempty"`     // replace_pattern, remove_pattern
	To       string           `json:"to,omitempty"`       // replace_pattern
	Strategy string           `json:"strategy,omitempty"` // merge
	Content  map[string]any   `json:"content,omitempty"`  // create
}

// Apply produces the child content bytes from the parents' canonical
// content. The output is canonicalized, so Apply is deterministic.
func (t Transformation) Apply(parents [][]byte) ([]byte, error) {
	switch t.Operation {
	case OpCreate:
		if len(parents) != 0 {
			return nil, fmt.Errorf("%w: create takes no parents, got %d", ErrInvalidTransformation, len(parents))
		}
		if len(t.Changes) != 1 || t.Changes[0].Content == nil {
			return nil, fmt.Errorf("%w: create needs exactly one change carrying content", ErrInvalidTransformation)
		}
		return canonical.Marshal(t.Changes[0].Content)

	case OpAnnotate:
		if len(parents) != 1 {
			return nil, fmt.Errorf("%w: annotate takes exactly one parent", ErrInvalidTransformation)
		}
		return parents[0], nil

	case OpAddExtraction, OpReplacePattern, OpAddPattern, OpRemovePattern:
		if len(parents) != 1 {
			return nil, fmt.Errorf("%w: %s takes exactly one parent, got %d", ErrInvalidTransformation, t.Operation, len(parents))
		}
		doc, err := decode(parents[0])
		if err != nil {
			return nil, err
		}
		for _, change := range t.Changes {
			if err := t.applyChange(doc, change); err != nil {
				return nil, err
			}
		}
		return canonical.Marshal(doc)

	case OpMerge:
		if len(parents) < 2 {
			return nil, fmt.Errorf("%w: merge needs at least two parents, got %d", ErrInvalidTransformation, len(parents))
		}
		return t.applyMerge(parents)

	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidTransformation, t.Operation)
	}
}

// IsCreateClass reports whether the operation may root a derivation
// with no parents.
func (t Transformation) IsCreateClass() bool {
	return t.Operation == OpCreate
}

func (t Transformation) applyChange(doc map[string]any, change Change) error {
	switch t.Operation {
	case OpAddExtraction:
		rules := extractRules(doc)
		for _, add := range change.Add {
			if !containsRule(rules, add) {
				rules = append(rules, add)
			}
		}
		setExtractRules(doc, rules)
		return nil

	case OpReplacePattern:
		if change.From == "" || change.To == "" {
			return fmt.Errorf("%w: replace_pattern needs from and to refs", ErrInvalidTransformation)
		}
		if !rewriteRefs(doc["composition"], change.From, change.To) {
			return fmt.Errorf("%w: pattern_ref %s not present in composition", ErrInvalidTransformation, change.From)
		}
		return nil

	case OpAddPattern:
		parent, ok := nodeAt(doc, change.Path)
		if !ok {
			return fmt.Errorf("%w: no composition node at path %q", ErrInvalidTransformation, change.Path)
		}
		children, _ := parent["children"].([]any)
		for _, add := range change.Add {
			children = append(children, add)
		}
		parent["children"] = children
		return nil

	case OpRemovePattern:
		if change.From == "" {
			return fmt.Errorf("%w: remove_pattern needs a from ref", ErrInvalidTransformation)
		}
		if !removeRef(doc["composition"], change.From) {
			return fmt.Errorf("%w: pattern_ref %s not present in composition", ErrInvalidTransformation, change.From)
		}
		return nil
	}
	return nil
}

// applyMerge combines parents: the first parent's document is the
// base (composition conflicts resolve in its favor), and the
// metadata.extract sets combine by the declared strategy.
func (t Transformation) applyMerge(parents [][]byte) ([]byte, error) {
	strategy := StrategyUnion
	for _, change := range t.Changes {
		if change.Strategy != "" {
			strategy = change.Strategy
		}
	}

	docs := make([]map[string]any, 0, len(parents))
	for _, p := range parents {
		doc, err := decode(p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	base := docs[0]
	switch strategy {
	case StrategyPreferFirst:
		// base already carries the first parent's extract set

	case StrategyUnion:
		merged := extractRules(base)
		for _, doc := range docs[1:] {
			for _, rule := range extractRules(doc) {
				if !containsRule(merged, rule) {
					merged = append(merged, rule)
				}
			}
		}
		setExtractRules(base, merged)

	case StrategyIntersection:
		var intersection []map[string]any
		for _, rule := range extractRules(base) {
			inAll := true
			for _, doc := range docs[1:] {
				if !containsRule(extractRules(doc), rule) {
					inAll = false
					break
				}
			}
			if inAll {
				intersection = append(intersection, rule)
			}
		}
		setExtractRules(base, intersection)

	default:
		return nil, fmt.Errorf("%w: unknown merge strategy %q", ErrInvalidTransformation, strategy)
	}

	return canonical.Marshal(base)
}

func decode(content []byte) (map[string]any, error) {
	normalized, err := canonical.Normalize(content)
	if err != nil {
		return nil, fmt.Errorf("%w: parent is not structured content: %v", ErrInvalidTransformation, err)
	}
	doc, err := decodeJSONMap(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransformation, err)
	}
	return doc, nil
}

func extractRules(doc map[string]any) []map[string]any {
	meta, _ := doc["metadata"].(map[string]any)
	if meta == nil {
		return nil
	}
	raw, _ := meta["extract"].([]any)
	rules := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			rules = append(rules, m)
		}
	}
	return rules
}

func setExtractRules(doc map[string]any, rules []map[string]any) {
	meta, _ := doc["metadata"].(map[string]any)
	if meta == nil {
		meta = make(map[string]any)
		doc["metadata"] = meta
	}
	raw := make([]any, 0, len(rules))
	for _, r := range rules {
		raw = append(raw, r)
	}
	meta["extract"] = raw
}

func containsRule(rules []map[string]any, rule map[string]any) bool {
	for _, r := range rules {
		if r["field"] == rule["field"] && r["as"] == rule["as"] {
			return true
		}
	}
	return false
}

// rewriteRefs replaces every pattern_ref equal to from with to,
// reporting whether anything changed.
func rewriteRefs(node any, from, to string) bool {
	m, ok := node.(map[string]any)
	if !ok {
		return false
	}
	changed := false
	if ref, ok := m["pattern_ref"].(string); ok && ref == from {
		m["pattern_ref"] = to
		changed = true
	}
	if children, ok := m["children"].([]any); ok {
		for _, child := range children {
			if rewriteRefs(child, from, to) {
				changed = true
			}
		}
	}
	return changed
}

// removeRef deletes child nodes whose pattern_ref equals from.
func removeRef(node any, from string) bool {
	m, ok := node.(map[string]any)
	if !ok {
		return false
	}
	removed := false
	if children, ok := m["children"].([]any); ok {
		kept := make([]any, 0, len(children))
		for _, child := range children {
			cm, ok := child.(map[string]any)
			if ok {
				if ref, ok := cm["pattern_ref"].(string); ok && ref == from {
					removed = true
					continue
				}
				if removeRef(cm, from) {
					removed = true
				}
			}
			kept = append(kept, child)
		}
		m["children"] = kept
	}
	return removed
}

// nodeAt resolves a dotted path like "composition" or
// "composition.children.1" into the document.
func nodeAt(doc map[string]any, path string) (map[string]any, bool) {
	if path == "" {
		path = "composition"
	}
	var current any = doc
	for _, seg := range splitPath(path) {
		switch c := current.(type) {
		case map[string]any:
			next, ok := c[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, ok := parseIndex(seg, len(c))
			if !ok {
				return nil, false
			}
			current = c[idx]
		default:
			return nil, false
		}
	}
	m, ok := current.(map[string]any)
	return m, ok
}
