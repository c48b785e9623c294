package grammar

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/paninifs/engine/pkg/pattern"
	"github.com/paninifs/engine/pkg/store"
)

// documentSchema structurally validates a grammar document before any
// pattern resolution happens, so shape errors surface with JSON paths
// instead of nil-pointer noise deeper in compilation.
const documentSchema = `{
	"type": "object",
	"required": ["format", "version", "composition"],
	"properties": {
		"format": {"type": "string", "minLength": 1},
		"version": {"type": "string", "minLength": 1},
		"byte_order": {"enum": ["big", "little", "na"]},
		"composition": {"$ref": "#/definitions/node"},
		"metadata": {
			"type": "object",
			"properties": {
				"extract": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["field", "as"],
						"properties": {
							"field": {"type": "string", "minLength": 1},
							"as": {"type": "string", "minLength": 1}
						}
					}
				}
			}
		}
	},
	"definitions": {
		"node": {
			"type": "object",
			"properties": {
				"name": {"type": "string"},
				"policy": {"enum": ["SEQUENTIAL", "REPEATED", "OPTIONAL", "ALTERNATIVES"]},
				"pattern_ref": {"type": "string"},
				"pattern_kind": {"type": "string"},
				"config": {"type": "object"},
				"max_repeat": {"type": "integer", "minimum": 0},
				"children": {
					"type": "array",
					"items": {"$ref": "#/definitions/node"}
				}
			}
		}
	}
}`

// PatternResolver loads a pattern document by exact hash. *store.Store
// satisfies it; tests may substitute an in-memory map.
type PatternResolver interface {
	Get(exact string, typ store.ObjectType) ([]byte, *store.Metadata, error)
}

// Compile validates a grammar document, resolves every pattern_ref
// through the store, constructs each pattern instance, and returns an
// executable grammar. Any unknown ref, invalid config, or unknown
// combinator fails with *GrammarError.
func Compile(resolver PatternResolver, raw []byte) (*Compiled, error) {
	schemaResult, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return nil, &GrammarError{Path: "document", Err: err}
	}
	if !schemaResult.Valid() {
		first := schemaResult.Errors()[0]
		return nil, &GrammarError{
			Path: first.Field(),
			Err:  fmt.Errorf("%s", first.Description()),
		}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &GrammarError{Path: "document", Err: err}
	}

	root, err := compileNode(resolver, doc.Format, doc.Composition, "composition")
	if err != nil {
		return nil, err
	}

	return &Compiled{Doc: &doc, root: root}, nil
}

func compileNode(resolver PatternResolver, format string, n *Node, path string) (*compiledNode, error) {
	if n == nil {
		return nil, &GrammarError{Format: format, Path: path, Err: fmt.Errorf("missing node")}
	}

	if n.IsLeaf() {
		pat, err := compileLeaf(resolver, n)
		if err != nil {
			return nil, &GrammarError{Format: format, Path: path, Err: err}
		}
		return &compiledNode{node: n, pat: pat}, nil
	}

	switch n.Policy {
	case PolicySequential, PolicyAlternatives:
		if len(n.Children) == 0 {
			return nil, &GrammarError{Format: format, Path: path,
				Err: fmt.Errorf("%s node needs at least one child", n.Policy)}
		}
	case PolicyRepeated, PolicyOptional:
		if len(n.Children) != 1 {
			return nil, &GrammarError{Format: format, Path: path,
				Err: fmt.Errorf("%s node needs exactly one child, has %d", n.Policy, len(n.Children))}
		}
	default:
		return nil, &GrammarError{Format: format, Path: path,
			Err: fmt.Errorf("unknown combinator %q", n.Policy)}
	}

	compiled := &compiledNode{node: n}
	for i, child := range n.Children {
		cc, err := compileNode(resolver, format, child, fmt.Sprintf("%s.children[%d]", path, i))
		if err != nil {
			return nil, err
		}
		compiled.children = append(compiled.children, cc)
	}
	return compiled, nil
}

func compileLeaf(resolver PatternResolver, n *Node) (pattern.Pattern, error) {
	switch {
	case n.PatternRef != "":
		content, _, err := resolver.Get(n.PatternRef, store.TypePattern)
		if err != nil {
			return nil, fmt.Errorf("resolving pattern_ref %s: %w", n.PatternRef, err)
		}
		var doc pattern.Document
		if err := json.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("decoding pattern %s: %w", n.PatternRef, err)
		}
		return pattern.New(doc.Kind, doc.Config)
	case n.PatternKind != "":
		return pattern.New(pattern.Kind(n.PatternKind), n.Config)
	default:
		return nil, fmt.Errorf("leaf node needs pattern_ref or pattern_kind")
	}
}
