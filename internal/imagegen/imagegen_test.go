package imagegen

import (
	"errors"
	"testing"

	"google.golang.org/genai"
)

func TestFirstImagePicksFirstInlinePart(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here is your image"},
				{InlineData: &genai.Blob{MIMEType: "image/webp", Data: []byte{1, 2, 3}}},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{4, 5, 6}}},
				{Text: "enjoy"},
			}},
		}},
	}
	result, err := firstImage(resp)
	if err != nil {
		t.Fatalf("firstImage: %v", err)
	}
	if result.MIMEType != "image/webp" {
		t.Fatalf("expected first inline part to win, got mime %q", result.MIMEType)
	}
	if len(result.Data) != 3 {
		t.Fatalf("expected 3 data bytes, got %d", len(result.Data))
	}
	if result.Caption != "here is your image\nenjoy" {
		t.Fatalf("unexpected caption %q", result.Caption)
	}
}

func TestFirstImageTextOnly(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "sorry, words only"}}},
		}},
	}
	if _, err := firstImage(resp); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestFirstImageEmptyResponse(t *testing.T) {
	t.Parallel()

	for _, resp := range []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{}}},
	} {
		if _, err := firstImage(resp); !errors.Is(err, ErrNoImage) {
			t.Fatalf("expected ErrNoImage for %+v, got %v", resp, err)
		}
	}
}
