package grammar

import (
	"errors"
	"fmt"
)

// ErrCancelled wraps cooperative cancellation surfaced during
// execution.
var ErrCancelled = errors.New("execution cancelled")

// GrammarError reports a grammar that failed to compile: an unknown
// pattern_ref, invalid pattern config, or an unknown combinator.
type GrammarError struct {
	Format string
	Path   string // composition-tree path, e.g. "composition.children[1]"
	Err    error
}

func (e *GrammarError) Error() string {
	return fmt.Sprintf("grammar %q: %s: %v", e.Format, e.Path, e.Err)
}

func (e *GrammarError) Unwrap() error { return e.Err }

// ExecError reports a hard runtime failure: the grammar format, the
// byte offset at failure, and the pattern kind in which it occurred.
type ExecError struct {
	Format      string
	Offset      int
	PatternKind string
	Reason      string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %s failed at offset %d: %s", e.Format, e.PatternKind, e.Offset, e.Reason)
}
