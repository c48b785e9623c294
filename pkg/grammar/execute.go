package grammar

import (
	"context"
	"fmt"
)

// Result is the outcome of executing a grammar against input bytes.
type Result struct {
	Format        string         `json:"format"`
	Version       string         `json:"version"`
	Tree          map[string]any `json:"tree"`
	Extracted     map[string]any `json:"extracted,omitempty"`
	BytesConsumed int            `json:"bytes_consumed"`
}

// Execute runs the compiled grammar over data: a strict depth-first,
// left-to-right traversal of the composition tree maintaining a
// current offset. Hard failures abort with *ExecError; cancellation is
// checked before every pattern match.
func (c *Compiled) Execute(ctx context.Context, data []byte) (*Result, error) {
	value, consumed, err := c.eval(ctx, c.root, data, 0)
	if err != nil {
		return nil, err
	}

	// A SEQUENTIAL root's children are the tree's top-level keys; any
	// other root's value is stored under the root's own result name.
	tree, ok := value.(map[string]any)
	if !ok || c.root.node.Policy != PolicySequential {
		tree = map[string]any{c.root.node.ResultName(): value}
	}

	result := &Result{
		Format:        c.Doc.Format,
		Version:       c.Doc.Version,
		Tree:          tree,
		BytesConsumed: consumed,
	}
	if c.Doc.Metadata != nil && len(c.Doc.Metadata.Extract) > 0 {
		result.Extracted = applyExtract(tree, c.Doc.Metadata.Extract)
	}
	return result, nil
}

// eval returns the node's value, bytes consumed, and a hard error. A
// nil error with a nil value never occurs; combinator misses are
// encoded in the value.
func (c *Compiled) eval(ctx context.Context, cn *compiledNode, data []byte, offset int) (any, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	if cn.pat != nil {
		result := cn.pat.Match(data, offset)
		if !result.Success {
			return nil, 0, &ExecError{
				Format:      c.Doc.Format,
				Offset:      result.Err.Offset,
				PatternKind: string(result.Err.Kind),
				Reason:      result.Err.Reason,
			}
		}
		return result.Data, result.BytesConsumed, nil
	}

	switch cn.node.Policy {
	case PolicySequential:
		return c.evalSequential(ctx, cn, data, offset)
	case PolicyRepeated:
		return c.evalRepeated(ctx, cn, data, offset)
	case PolicyOptional:
		return c.evalOptional(ctx, cn, data, offset)
	case PolicyAlternatives:
		return c.evalAlternatives(ctx, cn, data, offset)
	}
	return nil, 0, &ExecError{Format: c.Doc.Format, Offset: offset,
		PatternKind: cn.node.Policy, Reason: "unknown combinator"}
}

func (c *Compiled) evalSequential(ctx context.Context, cn *compiledNode, data []byte, offset int) (any, int, error) {
	tree := make(map[string]any, len(cn.children))
	consumed := 0
	for _, child := range cn.children {
		value, n, err := c.eval(ctx, child, data, offset+consumed)
		if err != nil {
			return nil, 0, err
		}
		tree[child.node.ResultName()] = value
		consumed += n
	}
	return tree, consumed, nil
}

func (c *Compiled) evalRepeated(ctx context.Context, cn *compiledNode, data []byte, offset int) (any, int, error) {
	child := cn.children[0]
	var items []any
	consumed := 0

	for offset+consumed < len(data) {
		if cn.node.MaxRepeat > 0 && len(items) >= cn.node.MaxRepeat {
			break
		}
		value, n, err := c.eval(ctx, child, data, offset+consumed)
		if err != nil {
			// The child stopped matching: the repetition ends here.
			// Cancellation is the exception and still aborts.
			if _, ok := err.(*ExecError); ok {
				break
			}
			return nil, 0, err
		}
		items = append(items, value)
		consumed += n
		if n == 0 {
			break // no progress; avoid spinning on zero-width matches
		}
	}

	return map[string]any{
		"items": items,
		"count": len(items),
	}, consumed, nil
}

func (c *Compiled) evalOptional(ctx context.Context, cn *compiledNode, data []byte, offset int) (any, int, error) {
	value, n, err := c.eval(ctx, cn.children[0], data, offset)
	if err != nil {
		if _, ok := err.(*ExecError); ok {
			return map[string]any{"matched": false}, 0, nil
		}
		return nil, 0, err
	}
	return value, n, nil
}

func (c *Compiled) evalAlternatives(ctx context.Context, cn *compiledNode, data []byte, offset int) (any, int, error) {
	var reasons []string
	for _, child := range cn.children {
		value, n, err := c.eval(ctx, child, data, offset)
		if err == nil {
			return value, n, nil
		}
		execErr, ok := err.(*ExecError)
		if !ok {
			return nil, 0, err
		}
		reasons = append(reasons, fmt.Sprintf("%s: %s", execErr.PatternKind, execErr.Reason))
	}
	return nil, 0, &ExecError{
		Format:      c.Doc.Format,
		Offset:      offset,
		PatternKind: PolicyAlternatives,
		Reason:      fmt.Sprintf("no alternative matched: %v", reasons),
	}
}
