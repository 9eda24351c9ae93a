package fabricmcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/fabricmcp/api"
	"pkt.systems/fabricmcp/client"
)

type tapestryThreadsInput struct {
	InteractionType string `json:"interaction_type,omitempty" jsonschema:"restrict to one interaction kind"`
	AuthToken       string `json:"auth_token,omitempty" jsonschema:"bearer token for this call; overrides the transport-derived token"`
}

func (s *server) handleTapestryThreadsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input tapestryThreadsInput) (*mcpsdk.CallToolResult, passThroughOutput, error) {
	var interactionType *string
	if raw := strings.TrimSpace(input.InteractionType); raw != "" {
		if !api.ValidInteractionType(raw) {
			return nil, passThroughOutput{}, &ValidationError{Field: "interaction_type", Reason: fmt.Sprintf("must be one of %s, got %q", api.InteractionTypeNames(), input.InteractionType)}
		}
		interactionType = &raw
	}
	token, err := s.token(ctx, input.AuthToken)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	tapestryID, err := s.resolveTapestry(ctx, token)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	body, err := s.fabric.ListThreads(ctx, token, tapestryID, interactionType)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	return nil, rawResult(body), nil
}

type threadImageInput struct {
	ThreadID  string `json:"thread_id" jsonschema:"thread whose image to fetch"`
	AuthToken string `json:"auth_token,omitempty" jsonschema:"bearer token for this call; overrides the transport-derived token"`
}

type threadImageOutput struct {
	MIMEType string `json:"mime_type" jsonschema:"detected image MIME type"`
	Bytes    int    `json:"bytes" jsonschema:"image size in bytes"`
}

// handleThreadImageTool runs the two-stage asset fetch: an authenticated
// lookup of the signed URL, then an unauthenticated download of the image
// itself. The signed URL is the credential for the second stage.
func (s *server) handleThreadImageTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input threadImageInput) (*mcpsdk.CallToolResult, threadImageOutput, error) {
	threadID := strings.TrimSpace(input.ThreadID)
	if threadID == "" {
		return nil, threadImageOutput{}, &ValidationError{Reason: "thread_id is required"}
	}
	token, err := s.token(ctx, input.AuthToken)
	if err != nil {
		return nil, threadImageOutput{}, err
	}
	asset, err := s.fabric.ThreadAsset(ctx, token, threadID)
	if err != nil {
		return nil, threadImageOutput{}, err
	}
	signedURL := strings.TrimSpace(asset.URL)
	if signedURL == "" {
		return nil, threadImageOutput{}, &client.NotFoundError{Resource: "thread image"}
	}
	data, contentType, err := s.fabric.FetchAsset(ctx, signedURL)
	if err != nil {
		return nil, threadImageOutput{}, err
	}
	mime := api.MIMEForAssetContentType(contentType)
	res := &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.ImageContent{MIMEType: mime, Data: data}},
	}
	return res, threadImageOutput{MIMEType: mime, Bytes: len(data)}, nil
}
