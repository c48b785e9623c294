package pattern

import "fmt"

// MatchResult is the tagged outcome of applying a pattern at an
// offset. When Success is false callers must treat BytesConsumed as
// zero; when true, BytesConsumed never exceeds the remaining input.
type MatchResult struct {
	Success       bool
	Data          map[string]any
	BytesConsumed int
	Metadata      map[string]any
	Err           *MatchError
}

// MatchError describes a runtime parse failure.
type MatchError struct {
	Kind   Kind
	Offset int
	Reason string
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", e.Kind, e.Offset, e.Reason)
}

func success(data map[string]any, consumed int, meta map[string]any) MatchResult {
	return MatchResult{Success: true, Data: data, BytesConsumed: consumed, Metadata: meta}
}

func failure(kind Kind, offset int, reason string) MatchResult {
	return MatchResult{
		Success: false,
		Err:     &MatchError{Kind: kind, Offset: offset, Reason: reason},
	}
}

// softMiss reports a non-required pattern that did not match: success
// with matched=false and nothing consumed, so the parent flow
// continues.
func softMiss(reason string) MatchResult {
	return MatchResult{
		Success: true,
		Data:    map[string]any{"matched": false, "reason": reason},
	}
}
