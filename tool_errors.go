package fabricmcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/fabricmcp/client"
)

type toolErrorEnvelope struct {
	ErrorCode  string `json:"error_code"`
	Detail     string `json:"detail,omitempty"`
	Retryable  bool   `json:"retryable"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Tool       string `json:"tool,omitempty"`
}

// withStructuredToolErrors rewrites handler errors into JSON envelopes so MCP
// clients can branch on error_code instead of scraping prose. The original
// error text always survives in detail.
func withStructuredToolErrors[In, Out any](tool string, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input In) (*mcpsdk.CallToolResult, Out, error) {
		res, out, err := h(ctx, req, input)
		if err == nil {
			return res, out, nil
		}
		var zero Out
		return nil, zero, toolError{Envelope: classifyToolError(tool, err)}
	}
}

type toolError struct {
	Envelope toolErrorEnvelope
}

func (e toolError) Error() string {
	envelope := map[string]any{"error": e.Envelope}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return `{"error":{"error_code":"tool_error","detail":"failed to encode error envelope"}}`
	}
	return string(encoded)
}

func classifyToolError(tool string, err error) toolErrorEnvelope {
	env := toolErrorEnvelope{ErrorCode: "internal", Detail: strings.TrimSpace(err.Error()), Tool: tool}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		env.ErrorCode = "unauthenticated"
		env.HTTPStatus = http.StatusUnauthorized
		return env
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		env.ErrorCode = "invalid_argument"
		env.HTTPStatus = http.StatusBadRequest
		return env
	}
	var notFoundErr *client.NotFoundError
	if errors.As(err, &notFoundErr) {
		env.ErrorCode = "not_found"
		env.HTTPStatus = http.StatusNotFound
		return env
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		env.ErrorCode = "upstream_error"
		env.HTTPStatus = apiErr.Status
		env.Retryable = apiErr.Retryable()
		return env
	}
	lower := strings.ToLower(env.Detail)
	switch {
	case strings.Contains(lower, "required"),
		strings.Contains(lower, "must be"),
		strings.Contains(lower, "invalid"):
		env.ErrorCode = "invalid_argument"
		env.HTTPStatus = http.StatusBadRequest
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline"):
		env.ErrorCode = "timeout"
		env.Retryable = true
	}
	return env
}
