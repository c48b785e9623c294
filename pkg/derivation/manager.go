// Package derivation persists grammar and pattern evolution as an
// append-only DAG of declarative transformations, supports replaying
// any node from its parents, and answers lineage and capability
// queries.
package derivation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paninifs/engine/pkg/canonical"
	"github.com/paninifs/engine/pkg/hashing"
	"github.com/paninifs/engine/pkg/store"
)

// ErrCycle reports an attempted derivation whose result is already an
// ancestor of its parents.
var ErrCycle = errors.New("derivation would create a cycle")

// ErrReplayMismatch reports a replay whose output differs from the
// stored content — the DAG or the store has been tampered with.
var ErrReplayMismatch = errors.New("replayed content does not match stored content")

// Manager owns the derivation DAG on top of the content-addressed
// store. Nodes are stored as derivation-typed objects; edges are
// hash references, never pointers.
type Manager struct {
	store *store.Store
}

func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// CreateRequest describes one derivation to record.
type CreateRequest struct {
	Parents        []string
	ParentType     store.ObjectType
	Transformation Transformation
	Semantic       SemanticFingerprint
	Author         string
}

// Create applies the transformation to the parents' content, stores
// the resulting object, and records the DerivationNode explaining it.
// It returns the child's exact hash.
//
// Parents are kept in call order — merge strategies are order-
// sensitive — and the node's content hash is still a pure function of
// (parents, transformation, semantic, author).
func (m *Manager) Create(ctx context.Context, req CreateRequest) (string, *Node, error) {
	if len(req.Parents) == 0 && !req.Transformation.IsCreateClass() {
		return "", nil, fmt.Errorf("%w: operation %q needs at least one parent",
			ErrInvalidTransformation, req.Transformation.Operation)
	}

	contents := make([][]byte, 0, len(req.Parents))
	for _, parent := range req.Parents {
		content, _, err := m.store.Get(parent, req.ParentType)
		if err != nil {
			return "", nil, fmt.Errorf("loading parent %s: %w", hashing.ShortHash(parent), err)
		}
		contents = append(contents, content)
	}

	childContent, err := req.Transformation.Apply(contents)
	if err != nil {
		return "", nil, err
	}

	childHash := hashing.ExactHash(childContent)
	if err := m.checkAcyclic(ctx, childHash, req); err != nil {
		return "", nil, err
	}

	if _, _, _, err := m.store.Put(childContent, req.ParentType, nil); err != nil {
		return "", nil, fmt.Errorf("storing derived content: %w", err)
	}

	node := &Node{
		Parents:        req.Parents,
		ParentType:     req.ParentType,
		Transformation: req.Transformation,
		Semantic:       req.Semantic,
		Author:         req.Author,
		Result:         childHash,
	}
	nodeBytes, err := canonical.Marshal(node)
	if err != nil {
		return "", nil, fmt.Errorf("encoding derivation node: %w", err)
	}
	if _, _, _, err := m.store.Put(nodeBytes, store.TypeDerivation, map[string]string{
		"result": childHash,
	}); err != nil {
		return "", nil, fmt.Errorf("storing derivation node: %w", err)
	}

	slog.Debug("derivation recorded",
		"operation", req.Transformation.Operation,
		"parents", len(req.Parents),
		"result", hashing.ShortHash(childHash))
	return childHash, node, nil
}

// checkAcyclic rejects a child that already appears among its parents'
// ancestors. An annotate whose content is identical to its parent is
// the documented exception: the child hash legitimately equals the
// parent hash.
func (m *Manager) checkAcyclic(ctx context.Context, childHash string, req CreateRequest) error {
	if req.Transformation.Operation == OpAnnotate {
		return nil
	}
	for _, parent := range req.Parents {
		if parent == childHash {
			return fmt.Errorf("%w: result %s equals its parent", ErrCycle, hashing.ShortHash(childHash))
		}
	}
	d, err := m.loadDAG()
	if err != nil {
		return err
	}
	for _, parent := range req.Parents {
		ancestors, err := d.ancestors(ctx, parent, 0)
		if err != nil {
			return err
		}
		for _, a := range ancestors {
			if a == childHash {
				return fmt.Errorf("%w: result %s is an ancestor of parent %s",
					ErrCycle, hashing.ShortHash(childHash), hashing.ShortHash(parent))
			}
		}
	}
	return nil
}

// Load returns stored content directly.
func (m *Manager) Load(exact string, typ store.ObjectType) ([]byte, error) {
	content, _, err := m.store.Get(exact, typ)
	return content, err
}

// Reconstruct rebuilds content by replaying the recorded
// transformations from the roots down, verifies the result against
// the stored bytes, and returns it. Hashes with no recorded node are
// roots and load directly.
func (m *Manager) Reconstruct(ctx context.Context, exact string, typ store.ObjectType) ([]byte, error) {
	d, err := m.loadDAG()
	if err != nil {
		return nil, err
	}
	replayed, err := m.replay(ctx, d, exact, typ, make(map[string]bool))
	if err != nil {
		return nil, err
	}

	stored, _, err := m.store.Get(exact, typ)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(replayed, stored) {
		return nil, fmt.Errorf("%w: %s", ErrReplayMismatch, hashing.ShortHash(exact))
	}
	return replayed, nil
}

func (m *Manager) replay(ctx context.Context, d *dagIndex, exact string, typ store.ObjectType, walking map[string]bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reconstruction cancelled: %w", err)
	}

	node, ok := d.byResult[exact]
	// Roots, and self-referential annotate nodes, resolve from the
	// store directly.
	if !ok || walking[exact] {
		content, _, err := m.store.Get(exact, typ)
		return content, err
	}

	walking[exact] = true
	defer delete(walking, exact)

	parents := make([][]byte, 0, len(node.Parents))
	for _, parent := range node.Parents {
		content, err := m.replay(ctx, d, parent, typ, walking)
		if err != nil {
			return nil, err
		}
		parents = append(parents, content)
	}
	return node.Transformation.Apply(parents)
}
