package fabricmcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pkt.systems/fabricmcp/client"
)

func TestTapestryCacheStoreLookupInvalidate(t *testing.T) {
	t.Parallel()

	cache := NewTapestryCache()
	if _, ok := cache.Lookup("token-a"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	cache.Store("token-a", "tap-1")
	cache.Store("token-b", "tap-2")
	if id, ok := cache.Lookup("token-a"); !ok || id != "tap-1" {
		t.Fatalf("expected tap-1 for token-a, got %q %v", id, ok)
	}
	if got := cache.Len(); got != 2 {
		t.Fatalf("expected two entries, got %d", got)
	}
	cache.Invalidate("token-a")
	if _, ok := cache.Lookup("token-a"); ok {
		t.Fatalf("expected miss after invalidation")
	}
	if id, ok := cache.Lookup("token-b"); !ok || id != "tap-2" {
		t.Fatalf("expected token-b entry untouched, got %q %v", id, ok)
	}
}

func TestResolveTapestryCachesPerToken(t *testing.T) {
	t.Parallel()

	fake := newFabricRecorder()
	ts := httptest.NewServer(fake.handler())
	defer ts.Close()
	s := newTestFacade(t, ts.URL, nil)
	ctx := context.Background()

	id, err := s.resolveTapestry(ctx, "token-a")
	if err != nil || id != "tap-1" {
		t.Fatalf("expected tap-1, got %q %v", id, err)
	}
	id, err = s.resolveTapestry(ctx, "token-a")
	if err != nil || id != "tap-1" {
		t.Fatalf("expected cached tap-1, got %q %v", id, err)
	}
	if got := fake.count(http.MethodGet, "/tapestries"); got != 1 {
		t.Fatalf("expected one upstream listing for token-a, got %d", got)
	}

	if _, err := s.resolveTapestry(ctx, "token-b"); err != nil {
		t.Fatalf("resolve for token-b: %v", err)
	}
	if got := fake.count(http.MethodGet, "/tapestries"); got != 2 {
		t.Fatalf("expected a fresh listing per token, got %d", got)
	}

	s.cache.Invalidate("token-a")
	if _, err := s.resolveTapestry(ctx, "token-a"); err != nil {
		t.Fatalf("resolve after invalidation: %v", err)
	}
	if got := fake.count(http.MethodGet, "/tapestries"); got != 3 {
		t.Fatalf("expected invalidation to force a refetch, got %d", got)
	}
}

func TestResolveTapestryFirstElementWins(t *testing.T) {
	t.Parallel()

	fake := newFabricRecorder()
	fake.setTapestries(`[{"id":"tap-A","name":"First"},{"id":"tap-B","name":"Second"}]`)
	ts := httptest.NewServer(fake.handler())
	defer ts.Close()
	s := newTestFacade(t, ts.URL, nil)

	id, err := s.resolveTapestry(context.Background(), "token-a")
	if err != nil || id != "tap-A" {
		t.Fatalf("expected first tapestry, got %q %v", id, err)
	}
}

func TestResolveTapestryEmptyListingNotCached(t *testing.T) {
	t.Parallel()

	fake := newFabricRecorder()
	fake.setTapestries(`[]`)
	ts := httptest.NewServer(fake.handler())
	defer ts.Close()
	s := newTestFacade(t, ts.URL, nil)
	ctx := context.Background()

	_, err := s.resolveTapestry(ctx, "token-a")
	var nfErr *client.NotFoundError
	if err == nil || !errors.As(err, &nfErr) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if _, err := s.resolveTapestry(ctx, "token-a"); err == nil {
		t.Fatalf("expected repeat miss, got cached success")
	}
	if got := fake.count(http.MethodGet, "/tapestries"); got != 2 {
		t.Fatalf("expected failures to stay uncached, got %d listings", got)
	}
	if got := s.cache.Len(); got != 0 {
		t.Fatalf("expected empty cache, got %d entries", got)
	}
}
