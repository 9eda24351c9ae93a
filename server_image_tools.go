package fabricmcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/fabricmcp/api"
	"pkt.systems/fabricmcp/internal/imagegen"
)

type imageGenerateInput struct {
	Prompt string `json:"prompt" jsonschema:"description of the image to generate"`
	Format string `json:"format,omitempty" jsonschema:"fallback encoding when the model omits a MIME type; default png"`
}

type imageGenerateOutput struct {
	MIMEType string `json:"mime_type" jsonschema:"MIME type of the generated image"`
	Bytes    int    `json:"bytes" jsonschema:"image size in bytes"`
	Caption  string `json:"caption,omitempty" jsonschema:"caption text returned alongside the image"`
}

func (s *server) handleImageGenerateTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input imageGenerateInput) (*mcpsdk.CallToolResult, imageGenerateOutput, error) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return nil, imageGenerateOutput{}, &ValidationError{Reason: "prompt is required"}
	}
	format := api.ImageFormat(strings.TrimSpace(input.Format))
	if format != "" && !api.ValidImageFormat(string(format)) {
		return nil, imageGenerateOutput{}, &ValidationError{Field: "format", Reason: fmt.Sprintf("must be one of %s, got %q", api.ImageFormatNames(), input.Format)}
	}
	result, err := s.imageGen.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, imagegen.ErrNoImage) {
			return nil, imageGenerateOutput{}, &ValidationError{Reason: "generation produced no image data"}
		}
		return nil, imageGenerateOutput{}, err
	}
	// The model's own MIME type wins; the format argument only fills the gap.
	mime := strings.TrimSpace(result.MIMEType)
	if mime == "" {
		mime = api.MIMEForFormat(format)
	}
	content := []mcpsdk.Content{&mcpsdk.ImageContent{MIMEType: mime, Data: result.Data}}
	if result.Caption != "" {
		content = append(content, &mcpsdk.TextContent{Text: result.Caption})
	}
	out := imageGenerateOutput{MIMEType: mime, Bytes: len(result.Data), Caption: result.Caption}
	return &mcpsdk.CallToolResult{Content: content}, out, nil
}
