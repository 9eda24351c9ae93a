package fabricmcp

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/fabricmcp/client"
)

// assetHost serves one canned image and records whether requests carried an
// Authorization header.
type assetHost struct {
	mu          sync.Mutex
	contentType string
	payload     []byte
	authHeaders []string
}

func (a *assetHost) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.authHeaders = append(a.authHeaders, r.Header.Get("Authorization"))
		contentType := a.contentType
		payload := a.payload
		a.mu.Unlock()
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		_, _ = w.Write(payload)
	})
}

func (a *assetHost) seenAuth() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.authHeaders...)
}

func TestThreadImageTwoStageFetch(t *testing.T) {
	t.Parallel()

	host := &assetHost{contentType: "image/webp", payload: []byte{0x52, 0x49, 0x46, 0x46}}
	assets := httptest.NewServer(host.handler())
	defer assets.Close()

	fake := newFabricRecorder()
	fake.setAssetURL(assets.URL + "/signed/abc?token=signature")
	ts := httptest.NewServer(fake.handler())
	defer ts.Close()
	s := newTestFacade(t, ts.URL, nil)

	res, out, err := s.handleThreadImageTool(context.Background(), nil, threadImageInput{ThreadID: "t1"})
	if err != nil {
		t.Fatalf("thread image tool: %v", err)
	}
	if got := fake.count(http.MethodGet, "/threads/t1/asset"); got != 1 {
		t.Fatalf("expected one signed-url lookup, got %d", got)
	}
	if got := fake.last(t).auth; got != "Bearer token-1" {
		t.Fatalf("expected authenticated lookup, got %q", got)
	}
	seen := host.seenAuth()
	if len(seen) != 1 || seen[0] != "" {
		t.Fatalf("expected one unauthenticated asset download, got %v", seen)
	}
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("expected single image content, got %#v", res)
	}
	img, ok := res.Content[0].(*mcpsdk.ImageContent)
	if !ok {
		t.Fatalf("expected image content, got %T", res.Content[0])
	}
	if img.MIMEType != "image/webp" || !bytes.Equal(img.Data, host.payload) {
		t.Fatalf("unexpected image content %q %v", img.MIMEType, img.Data)
	}
	if out.MIMEType != "image/webp" || out.Bytes != len(host.payload) {
		t.Fatalf("unexpected structured output %+v", out)
	}
}

func TestThreadImageMissingSignedURLIsNotFound(t *testing.T) {
	t.Parallel()

	fake := newFabricRecorder()
	ts := httptest.NewServer(fake.handler())
	defer ts.Close()
	s := newTestFacade(t, ts.URL, nil)

	_, _, err := s.handleThreadImageTool(context.Background(), nil, threadImageInput{ThreadID: "t1"})
	var nfErr *client.NotFoundError
	if err == nil || !errors.As(err, &nfErr) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if !strings.Contains(err.Error(), "thread image") {
		t.Fatalf("expected error naming the missing resource, got %v", err)
	}
}

func TestThreadImageContentTypeClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		want        string
	}{
		{name: "png with parameters", contentType: "image/png; charset=binary", want: "image/png"},
		{name: "gif", contentType: "image/gif", want: "image/gif"},
		{name: "octet stream defaults to jpeg", contentType: "application/octet-stream", want: "image/jpeg"},
		{name: "missing header defaults to jpeg", contentType: "", want: "image/jpeg"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			host := &assetHost{contentType: tt.contentType, payload: []byte{0x1, 0x2}}
			assets := httptest.NewServer(host.handler())
			defer assets.Close()

			fake := newFabricRecorder()
			fake.setAssetURL(assets.URL + "/signed/abc")
			ts := httptest.NewServer(fake.handler())
			defer ts.Close()
			s := newTestFacade(t, ts.URL, nil)

			_, out, err := s.handleThreadImageTool(context.Background(), nil, threadImageInput{ThreadID: "t1"})
			if err != nil {
				t.Fatalf("thread image tool: %v", err)
			}
			if out.MIMEType != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, out.MIMEType)
			}
		})
	}
}

func TestThreadImageRequiresThreadID(t *testing.T) {
	t.Parallel()

	fake := newFabricRecorder()
	ts := httptest.NewServer(fake.handler())
	defer ts.Close()
	s := newTestFacade(t, ts.URL, nil)

	_, _, err := s.handleThreadImageTool(context.Background(), nil, threadImageInput{ThreadID: "  "})
	var vErr *ValidationError
	if err == nil || !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := len(fake.calls()); n != 0 {
		t.Fatalf("expected zero upstream calls, got %d", n)
	}
}
