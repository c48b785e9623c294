package derivation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/paninifs/engine/pkg/store"
)

// dagIndex is the in-memory view of the stored DAG, rebuilt from the
// derivation objects on each query. Nodes refer to each other by hash
// only; the flat maps here are a read-side convenience.
type dagIndex struct {
	byResult map[string]*Node
	children map[string][]string
}

func (m *Manager) loadDAG() (*dagIndex, error) {
	metas, err := m.store.List(store.TypeDerivation)
	if err != nil {
		return nil, fmt.Errorf("listing derivation nodes: %w", err)
	}

	d := &dagIndex{
		byResult: make(map[string]*Node, len(metas)),
		children: make(map[string][]string),
	}
	for _, meta := range metas {
		content, _, err := m.store.Get(meta.ExactHash, store.TypeDerivation)
		if err != nil {
			return nil, err
		}
		var node Node
		if err := json.Unmarshal(content, &node); err != nil {
			return nil, fmt.Errorf("decoding derivation node %s: %w", meta.ExactHash, err)
		}
		d.byResult[node.Result] = &node
		for _, parent := range node.Parents {
			if parent == node.Result {
				continue
			}
			d.children[parent] = append(d.children[parent], node.Result)
		}
	}
	for _, kids := range d.children {
		sort.Strings(kids)
	}
	return d, nil
}

// ancestors walks parent edges breadth-first, deduplicated, excluding
// the start hash; hashes within one level are sorted. maxDepth 0 is
// unbounded. Cancellation is checked at
// every hop.
func (d *dagIndex) ancestors(ctx context.Context, start string, maxDepth int) ([]string, error) {
	return d.walk(ctx, start, maxDepth, func(h string) []string {
		if node, ok := d.byResult[h]; ok {
			return node.Parents
		}
		return nil
	})
}

func (d *dagIndex) descendants(ctx context.Context, start string, maxDepth int) ([]string, error) {
	return d.walk(ctx, start, maxDepth, func(h string) []string {
		return d.children[h]
	})
}

func (d *dagIndex) walk(ctx context.Context, start string, maxDepth int, next func(string) []string) ([]string, error) {
	visited := map[string]bool{start: true}
	var order []string
	frontier := []string{start}

	for depth := 0; len(frontier) > 0 && (maxDepth == 0 || depth < maxDepth); depth++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("DAG walk cancelled: %w", err)
		}
		var nextFrontier []string
		for _, h := range frontier {
			for _, linked := range next(h) {
				if visited[linked] {
					continue
				}
				visited[linked] = true
				nextFrontier = append(nextFrontier, linked)
			}
		}
		sort.Strings(nextFrontier)
		order = append(order, nextFrontier...)
		frontier = nextFrontier
	}
	return order, nil
}

// Ancestors returns the deduplicated ancestor hashes of a node in
// breadth-first order, nearest first.
func (m *Manager) Ancestors(ctx context.Context, exact string, maxDepth int) ([]string, error) {
	d, err := m.loadDAG()
	if err != nil {
		return nil, err
	}
	return d.ancestors(ctx, exact, maxDepth)
}

// Descendants returns the deduplicated descendant hashes of a node in
// breadth-first order.
func (m *Manager) Descendants(ctx context.Context, exact string, maxDepth int) ([]string, error) {
	d, err := m.loadDAG()
	if err != nil {
		return nil, err
	}
	return d.descendants(ctx, exact, maxDepth)
}

// Siblings returns nodes sharing at least one parent with the given
// node, sorted, excluding the node itself.
func (m *Manager) Siblings(ctx context.Context, exact string) ([]string, error) {
	d, err := m.loadDAG()
	if err != nil {
		return nil, err
	}
	node, ok := d.byResult[exact]
	if !ok {
		return nil, nil
	}

	seen := make(map[string]bool)
	for _, parent := range node.Parents {
		for _, child := range d.children[parent] {
			if child != exact {
				seen[child] = true
			}
		}
	}

	siblings := make([]string, 0, len(seen))
	for h := range seen {
		siblings = append(siblings, h)
	}
	sort.Strings(siblings)
	return siblings, nil
}

// CommonAncestor returns the nearest hash present in both nodes'
// ancestor sets (each set includes the node itself, so a direct
// ancestor relationship resolves to the ancestor). Ties break by
// shallower depth from the first node, then lexicographically.
func (m *Manager) CommonAncestor(ctx context.Context, a, b string) (string, error) {
	d, err := m.loadDAG()
	if err != nil {
		return "", err
	}

	bAncestors, err := d.ancestors(ctx, b, 0)
	if err != nil {
		return "", err
	}
	bSet := map[string]bool{b: true}
	for _, h := range bAncestors {
		bSet[h] = true
	}

	if bSet[a] {
		return a, nil
	}

	aAncestors, err := d.ancestors(ctx, a, 0)
	if err != nil {
		return "", err
	}
	// aAncestors is breadth-first with each level sorted, so the first
	// hit is the nearest and, among equally near hits, the
	// lexicographically smallest.
	for _, h := range aAncestors {
		if bSet[h] {
			return h, nil
		}
	}
	return "", nil
}

// Node returns the derivation node that produced the given hash, or
// nil for roots with no recorded derivation.
func (m *Manager) Node(exact string) (*Node, error) {
	d, err := m.loadDAG()
	if err != nil {
		return nil, err
	}
	return d.byResult[exact], nil
}

// FindByCapability scans every derivation node's semantic fingerprint
// and returns the result hashes declaring the capability, sorted.
// This is the documented O(total nodes) fallback; no inverted index
// is maintained.
func (m *Manager) FindByCapability(capability string) ([]string, error) {
	d, err := m.loadDAG()
	if err != nil {
		return nil, err
	}

	var results []string
	for result, node := range d.byResult {
		if node.Semantic.HasCapability(capability) {
			results = append(results, result)
		}
	}
	sort.Strings(results)
	return results, nil
}
