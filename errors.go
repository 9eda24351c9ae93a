package fabricmcp

import "fmt"

// AuthError reports that no usable bearer token could be resolved for a tool
// call. It carries a hint naming the sources that were consulted.
type AuthError struct {
	// Source is the configured token source that failed.
	Source TokenSource
	// Hint tells the caller how to supply a token.
	Hint string
}

func (e *AuthError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("fabricmcp: no bearer token available from %s source: %s", e.Source, e.Hint)
	}
	return fmt.Sprintf("fabricmcp: no bearer token available from %s source", e.Source)
}

// ValidationError reports a request that was rejected before any upstream
// call: unknown closed-set values, malformed dates, missing arguments, or
// generation output that cannot satisfy the request.
type ValidationError struct {
	// Field names the offending argument when known.
	Field string
	// Reason is the human-readable rejection.
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("fabricmcp: invalid %s: %s", e.Field, e.Reason)
	}
	return "fabricmcp: " + e.Reason
}
