package client

import "fmt"

// APIError captures a non-2xx response from the Fabric API. The body is kept
// verbatim for diagnostics; the facade forwards status and body unchanged.
type APIError struct {
	// Status is the HTTP status code returned by the upstream.
	Status int
	// Body contains the raw response body bytes.
	Body []byte
	// Method is the HTTP method of the failed request.
	Method string
	// Path is the request path relative to the base URL.
	Path string
}

func (e *APIError) Error() string {
	if e.Method != "" && e.Path != "" {
		return fmt.Sprintf("fabric: %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("fabric: status %d", e.Status)
}

// Retryable reports whether the upstream status suggests a transient fault.
func (e *APIError) Retryable() bool {
	switch e.Status {
	case 502, 503, 504:
		return true
	default:
		return false
	}
}

// NotFoundError reports an absent upstream resource, such as an account
// without tapestries or a thread without an image asset.
type NotFoundError struct {
	// Resource names what was missing.
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fabric: %s not found", e.Resource)
}
