package grammar

import (
	"sort"
	"strings"
)

// applyExtract projects values out of the result tree. Each rule's
// dotted path is resolved from the tree root; when the full path does
// not resolve there, the search descends through nested maps in
// sorted-key order and uses the first non-nil match, so a grammar can say
// "IHDR.width" without spelling out the composition node names above
// it. Missing paths yield nil, never an error.
func applyExtract(tree map[string]any, rules []ExtractRule) map[string]any {
	out := make(map[string]any, len(rules))
	for _, rule := range rules {
		out[rule.As] = resolvePath(tree, strings.Split(rule.Field, "."))
	}
	return out
}

func resolvePath(tree map[string]any, segments []string) any {
	if value, ok := lookupDirect(tree, segments); ok {
		return value
	}

	// Fallback: find the nearest nested map that can anchor the path.
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		child, ok := tree[k].(map[string]any)
		if !ok {
			continue
		}
		if value := resolvePath(child, segments); value != nil {
			return value
		}
	}
	return nil
}

func lookupDirect(tree map[string]any, segments []string) (any, bool) {
	var current any = tree
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
