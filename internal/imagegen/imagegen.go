// Package imagegen wraps the Gemini generateContent API for prompt-to-image
// generation. The facade registers its image tool only when a generator is
// configured.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
	"pkt.systems/pslog"

	"pkt.systems/fabricmcp/internal/svcfields"
)

// DefaultModel is the image-capable Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash-image-preview"

// ErrNoImage is returned when the model answered without any inline image
// data. Text-only responses do not satisfy an image request.
var ErrNoImage = errors.New("imagegen: generation produced no image data")

// Result is one generated image plus any caption text the model emitted
// alongside it.
type Result struct {
	// MIMEType is the MIME type the model reported for the image data.
	MIMEType string
	// Data is the raw image payload.
	Data []byte
	// Caption holds concatenated text parts from the same candidate, if any.
	Caption string
}

// Generator produces an image from a text prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Result, error)
}

// Config parameterizes the Gemini-backed generator.
type Config struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string
	// Model overrides DefaultModel.
	Model string
	// Logger receives generation telemetry. Nil means no logging.
	Logger pslog.Logger
}

type gemini struct {
	client *genai.Client
	model  string
	logger pslog.Logger
}

// New builds a Generator backed by the Gemini API.
func New(cfg Config) (Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("imagegen: api key required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("imagegen: create client: %w", err)
	}
	return &gemini{
		client: client,
		model:  cfg.Model,
		logger: svcfields.WithSubsystem(logger, "imagegen"),
	}, nil
}

func (g *gemini) Generate(ctx context.Context, prompt string) (Result, error) {
	g.logger.Trace("imagegen.generate.start", "model", g.model, "prompt_len", len(prompt))
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		g.logger.Warn("imagegen.generate.upstream_error", "model", g.model, "error", err)
		return Result{}, fmt.Errorf("imagegen: generate: %w", err)
	}
	result, err := firstImage(resp)
	if err != nil {
		g.logger.Warn("imagegen.generate.no_image", "model", g.model)
		return Result{}, err
	}
	g.logger.Debug("imagegen.generate.success", "model", g.model, "mime_type", result.MIMEType, "bytes", len(result.Data))
	return result, nil
}

// firstImage scans the first candidate for the first inline image part. Text
// parts from the same candidate become the caption.
func firstImage(resp *genai.GenerateContentResponse) (Result, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return Result{}, ErrNoImage
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return Result{}, ErrNoImage
	}
	var result Result
	var captions []string
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			captions = append(captions, part.Text)
		}
		if result.Data == nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			result.MIMEType = part.InlineData.MIMEType
			result.Data = part.InlineData.Data
		}
	}
	if result.Data == nil {
		return Result{}, ErrNoImage
	}
	result.Caption = strings.Join(captions, "\n")
	return result, nil
}
