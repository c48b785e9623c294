package derivation

import (
	"github.com/paninifs/engine/pkg/store"
)

// Node is the edge-with-payload of the derivation DAG: it explains how
// the object at Result was produced from Parents. Zero parents is a
// root (baseline), one is an evolution, two or more is a merge.
//
// The node document deliberately excludes wall-clock fields so its
// content hash is a pure function of (parents, transformation,
// semantic fingerprint, author, result). Parents keep their call
// order because merge strategies are order-sensitive. Creation time
// lives in the store's metadata sidecar instead.
type Node struct {
	Parents        []string            `json:"parents"`
	ParentType     store.ObjectType    `json:"parent_type"`
	Transformation Transformation      `json:"transformation"`
	Semantic       SemanticFingerprint `json:"semantic"`
	Author         string              `json:"author,omitempty"`
	Result         string              `json:"result"`
}

// IsRoot reports a baseline node with no parents.
func (n *Node) IsRoot() bool { return len(n.Parents) == 0 }

// IsMerge reports a node combining two or more parents.
func (n *Node) IsMerge() bool { return len(n.Parents) >= 2 }
