package fabricmcp

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/fabricmcp/internal/imagegen"
)

func TestDefaultServerInstructions(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	applyDefaults(&cfg)

	disabled := defaultServerInstructions(cfg, TokenSourceEnv, false)
	if !strings.Contains(disabled, cfg.FabricBaseURL) {
		t.Fatalf("expected base url in instructions:\n%s", disabled)
	}
	if !strings.Contains(disabled, string(TokenSourceEnv)) {
		t.Fatalf("expected token source in instructions:\n%s", disabled)
	}
	if !strings.Contains(disabled, "disabled") {
		t.Fatalf("expected disabled image line:\n%s", disabled)
	}
	for _, uri := range []string{docOverviewURI, docFacetsURI, docThreadsURI, docImagesURI, docAuthURI} {
		if !strings.Contains(disabled, uri) {
			t.Fatalf("expected %q in instructions:\n%s", uri, disabled)
		}
	}

	enabled := defaultServerInstructions(cfg, TokenSourceHeader, true)
	if !strings.Contains(enabled, cfg.ImageModel) {
		t.Fatalf("expected image model in instructions:\n%s", enabled)
	}
	if strings.Contains(enabled, "disabled on this deployment") {
		t.Fatalf("expected enabled image line:\n%s", enabled)
	}
}

func TestResourceURIsSortedAndComplete(t *testing.T) {
	t.Parallel()

	s := newTestFacade(t, "http://127.0.0.1:1", nil)
	uris := s.resourceURIs()
	if len(uris) != 5 {
		t.Fatalf("expected five documentation resources, got %v", uris)
	}
	if !sort.StringsAreSorted(uris) {
		t.Fatalf("expected sorted URIs, got %v", uris)
	}
	docs := s.resourceDocs()
	for _, uri := range uris {
		if strings.TrimSpace(docs[uri]) == "" {
			t.Fatalf("expected content for %q", uri)
		}
	}
}

func TestHandleDocResourceServesMarkdown(t *testing.T) {
	t.Parallel()

	s := newTestFacade(t, "http://127.0.0.1:1", nil)
	res, err := s.handleDocResource(context.Background(), &mcpsdk.ReadResourceRequest{
		Params: &mcpsdk.ReadResourceParams{URI: docFacetsURI},
	})
	if err != nil {
		t.Fatalf("read resource: %v", err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("expected one content block, got %d", len(res.Contents))
	}
	content := res.Contents[0]
	if content.URI != docFacetsURI || content.MIMEType != "text/markdown" {
		t.Fatalf("unexpected content metadata %+v", content)
	}
	if !strings.Contains(content.Text, "precise") || !strings.Contains(content.Text, "explore") {
		t.Fatalf("expected search-mode table in facets doc:\n%s", content.Text)
	}

	_, err = s.handleDocResource(context.Background(), &mcpsdk.ReadResourceRequest{
		Params: &mcpsdk.ReadResourceParams{URI: "resource://docs/missing.md"},
	})
	if err == nil {
		t.Fatalf("expected error for unknown resource")
	}
}

func TestHelpToolTopics(t *testing.T) {
	t.Parallel()

	s := newTestFacade(t, "http://127.0.0.1:1", nil)
	tests := []struct {
		topic        string
		wantResource string
		wantNextCall string
	}{
		{topic: "overview", wantResource: docOverviewURI, wantNextCall: toolFacetsTop},
		{topic: "facets", wantResource: docFacetsURI, wantNextCall: toolFacetsSearch},
		{topic: "threads", wantResource: docThreadsURI, wantNextCall: toolThreadImage},
		{topic: "auth", wantResource: docAuthURI, wantNextCall: toolTapestriesList},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.topic, func(t *testing.T) {
			t.Parallel()

			_, out, err := s.handleHelpTool(context.Background(), nil, helpToolInput{Topic: tt.topic})
			if err != nil {
				t.Fatalf("help tool: %v", err)
			}
			if out.Topic != tt.topic {
				t.Fatalf("expected topic %q, got %q", tt.topic, out.Topic)
			}
			if out.Summary == "" {
				t.Fatalf("expected summary for %q", tt.topic)
			}
			if len(out.Resources) == 0 || out.Resources[0] != tt.wantResource {
				t.Fatalf("expected leading resource %q, got %v", tt.wantResource, out.Resources)
			}
			found := false
			for _, call := range out.NextCalls {
				if call == tt.wantNextCall {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %q in next calls, got %v", tt.wantNextCall, out.NextCalls)
			}
			if out.Defaults["search_mode"] != "precise" || out.Defaults["neighbours_mode"] != "explore" {
				t.Fatalf("unexpected defaults %v", out.Defaults)
			}
			if out.Defaults["top_facets"] != strconv.Itoa(DefaultTopFacets) {
				t.Fatalf("unexpected top_facets default %q", out.Defaults["top_facets"])
			}
			if len(out.Invariants) == 0 {
				t.Fatalf("expected invariants for %q", tt.topic)
			}
		})
	}
}

func TestHelpToolDefaultsToOverview(t *testing.T) {
	t.Parallel()

	s := newTestFacade(t, "http://127.0.0.1:1", nil)
	_, out, err := s.handleHelpTool(context.Background(), nil, helpToolInput{})
	if err != nil {
		t.Fatalf("help tool: %v", err)
	}
	if out.Topic != "overview" {
		t.Fatalf("expected overview default, got %q", out.Topic)
	}
}

func TestHelpToolImagesTopicReflectsGeneratorPresence(t *testing.T) {
	t.Parallel()

	s := newTestFacade(t, "http://127.0.0.1:1", nil)
	_, out, err := s.handleHelpTool(context.Background(), nil, helpToolInput{Topic: "images"})
	if err != nil {
		t.Fatalf("help tool: %v", err)
	}
	if !strings.Contains(out.Summary, "disabled") {
		t.Fatalf("expected disabled summary, got %q", out.Summary)
	}
	for _, call := range out.NextCalls {
		if call == toolImageGenerate {
			t.Fatalf("expected no generation next-call when disabled, got %v", out.NextCalls)
		}
	}

	s = newTestFacade(t, "http://127.0.0.1:1", func(req *NewServerRequest) {
		req.ImageGen = &fakeGenerator{result: imagegen.Result{MIMEType: "image/png", Data: []byte{0x1}}}
	})
	_, out, err = s.handleHelpTool(context.Background(), nil, helpToolInput{Topic: "images"})
	if err != nil {
		t.Fatalf("help tool: %v", err)
	}
	if !strings.Contains(out.Summary, s.cfg.ImageModel) {
		t.Fatalf("expected model in summary, got %q", out.Summary)
	}
	if len(out.NextCalls) == 0 || out.NextCalls[0] != toolImageGenerate {
		t.Fatalf("expected generation next-call, got %v", out.NextCalls)
	}
}

func TestHelpToolUnknownTopicRejected(t *testing.T) {
	t.Parallel()

	s := newTestFacade(t, "http://127.0.0.1:1", nil)
	_, _, err := s.handleHelpTool(context.Background(), nil, helpToolInput{Topic: "billing"})
	var vErr *ValidationError
	if err == nil || !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "topic") || !strings.Contains(err.Error(), "billing") {
		t.Fatalf("expected error naming the topic, got %v", err)
	}
}
