// Package grammar composes stored patterns into per-format grammars
// and executes them against input bytes. A grammar is a declarative
// document: a composition tree whose leaves reference patterns (by
// content hash or inline config) and whose internal nodes carry
// sequencing policies.
package grammar

import (
	"github.com/paninifs/engine/pkg/pattern"
)

// Policies for internal composition nodes.
const (
	PolicySequential   = "SEQUENTIAL"
	PolicyRepeated     = "REPEATED"
	PolicyOptional     = "OPTIONAL"
	PolicyAlternatives = "ALTERNATIVES"
)

// Document is the declarative grammar form stored in the CAS.
type Document struct {
	Format      string    `json:"format"`
	Version     string    `json:"version"`
	ByteOrder   string    `json:"byte_order,omitempty"`
	Composition *Node     `json:"composition"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// Metadata holds the post-parse projection rules.
type Metadata struct {
	Extract []ExtractRule `json:"extract,omitempty"`
}

// ExtractRule copies one value out of the parsed result tree into the
// flat output mapping.
type ExtractRule struct {
	Field string `json:"field"`
	As    string `json:"as"`
}

// Node is one vertex of the composition tree. A node is either a leaf
// (PatternRef or PatternKind set, Policy empty) or an internal node
// (Policy set, children present).
type Node struct {
	Name        string         `json:"name,omitempty"`
	Policy      string         `json:"policy,omitempty"`
	PatternRef  string         `json:"pattern_ref,omitempty"`
	PatternKind string         `json:"pattern_kind,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Children    []*Node        `json:"children,omitempty"`

	// MaxRepeat bounds a REPEATED node; 0 repeats until the child
	// stops matching or input is exhausted.
	MaxRepeat int `json:"max_repeat,omitempty"`
}

// IsLeaf reports whether the node references a pattern.
func (n *Node) IsLeaf() bool {
	return n.Policy == ""
}

// ResultName is the key the node's result is stored under in the
// result tree.
func (n *Node) ResultName() string {
	if n.Name != "" {
		return n.Name
	}
	if n.PatternKind != "" {
		return n.PatternKind
	}
	if n.Policy != "" {
		return n.Policy
	}
	return "node"
}

// compiledNode mirrors Node with pattern instances resolved and
// constructed.
type compiledNode struct {
	node     *Node
	pat      pattern.Pattern
	children []*compiledNode
}

// Compiled is a grammar ready to execute. Compiled grammars are
// immutable and safe for concurrent use.
type Compiled struct {
	Doc  *Document
	root *compiledNode
}
