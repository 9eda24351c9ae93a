package fabricmcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/fabricmcp/internal/imagegen"
	"pkt.systems/pslog"
)

// fabricCall records one request the fake Fabric upstream received.
type fabricCall struct {
	method string
	path   string
	auth   string
	query  url.Values
	body   map[string]any
}

// fabricRecorder is a fake Fabric API that records every request and serves
// canned responses.
type fabricRecorder struct {
	mu         sync.Mutex
	recorded   []fabricCall
	tapestries string
	assetURL   string
}

func newFabricRecorder() *fabricRecorder {
	return &fabricRecorder{tapestries: `[{"id":"tap-1","name":"Personal"}]`}
}

func (f *fabricRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := fabricCall{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			query:  r.URL.Query(),
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			call.body = body
		}
		f.mu.Lock()
		f.recorded = append(f.recorded, call)
		tapestries := f.tapestries
		assetURL := f.assetURL
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/tapestries":
			_, _ = io.WriteString(w, tapestries)
		case r.Method == http.MethodGet && r.URL.Path == "/facets/types":
			_, _ = io.WriteString(w, `["topics","entities","people","companies","locations","products","things"]`)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/asset"):
			_ = json.NewEncoder(w).Encode(map[string]string{"url": assetURL})
		default:
			_, _ = io.WriteString(w, `{"ok":true}`)
		}
	})
}

func (f *fabricRecorder) setTapestries(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tapestries = body
}

func (f *fabricRecorder) setAssetURL(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assetURL = u
}

func (f *fabricRecorder) calls() []fabricCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fabricCall(nil), f.recorded...)
}

func (f *fabricRecorder) count(method, path string) int {
	n := 0
	for _, call := range f.calls() {
		if call.method == method && call.path == path {
			n++
		}
	}
	return n
}

func (f *fabricRecorder) last(t *testing.T) fabricCall {
	t.Helper()
	calls := f.calls()
	if len(calls) == 0 {
		t.Fatalf("expected at least one upstream call")
	}
	return calls[len(calls)-1]
}

func testLogger() pslog.Logger {
	return pslog.NewStructured(context.Background(), io.Discard)
}

// newTestFacade builds a stdio-transport facade against the given upstream
// with the env token source and a fixed token. mutate adjusts the request
// before construction.
func newTestFacade(t *testing.T, upstreamURL string, mutate func(*NewServerRequest)) *server {
	t.Helper()
	req := NewServerRequest{
		Config: Config{
			Transport:     TransportStdio,
			TokenSource:   TokenSourceEnv,
			AuthToken:     "token-1",
			FabricBaseURL: upstreamURL,
		},
		Logger: testLogger(),
	}
	if mutate != nil {
		mutate(&req)
	}
	srv, err := NewServer(req)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	impl, ok := srv.(*server)
	if !ok {
		t.Fatalf("expected concrete *server type")
	}
	return impl
}

func connectMCPClientSession(t *testing.T, s *server) (*mcpsdk.ClientSession, func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	mcpSrv := s.buildMCPServer()
	t1, t2 := mcpsdk.NewInMemoryTransports()
	ss, err := mcpSrv.Connect(ctx, t1, nil)
	if err != nil {
		cancel()
		t.Fatalf("server connect: %v", err)
	}
	cs, err := client.Connect(ctx, t2, nil)
	if err != nil {
		_ = ss.Close()
		cancel()
		t.Fatalf("client connect: %v", err)
	}
	return cs, func() {
		_ = cs.Close()
		_ = ss.Close()
		cancel()
	}
}

func extractToolErrorObject(t *testing.T, res *mcpsdk.CallToolResult) map[string]any {
	t.Helper()
	if res == nil {
		t.Fatalf("expected call tool result")
	}
	if len(res.Content) == 0 {
		t.Fatalf("expected error content entry")
	}
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	var content map[string]any
	if err := json.Unmarshal([]byte(text.Text), &content); err != nil {
		t.Fatalf("expected json error envelope text, got %q: %v", text.Text, err)
	}
	errRaw, ok := content["error"]
	if !ok {
		t.Fatalf("expected error object in content text, got %#v", content)
	}
	errObj, ok := errRaw.(map[string]any)
	if !ok {
		t.Fatalf("expected structured error object, got %T", errRaw)
	}
	return errObj
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func TestNewServerResolvesAutoTokenSourceByTransport(t *testing.T) {
	t.Parallel()

	s := newTestFacade(t, "http://127.0.0.1:9", func(req *NewServerRequest) {
		req.Config.TokenSource = TokenSourceAuto
	})
	if s.tokenSource != TokenSourceEnv {
		t.Fatalf("expected env token source over stdio, got %q", s.tokenSource)
	}
	if s.httpServer != nil {
		t.Fatalf("expected no http server for the stdio transport")
	}

	s = newTestFacade(t, "http://127.0.0.1:9", func(req *NewServerRequest) {
		req.Config.Transport = TransportHTTP
		req.Config.TokenSource = TokenSourceAuto
		req.Config.Listen = "127.0.0.1:0"
	})
	if s.tokenSource != TokenSourceHeader {
		t.Fatalf("expected header token source over http, got %q", s.tokenSource)
	}
	if s.httpServer == nil {
		t.Fatalf("expected http server to be built for the http transport")
	}
}

func TestRegisterToolsSkipsImageGenerationWithoutKey(t *testing.T) {
	t.Parallel()

	fake := newFabricRecorder()
	ts := httptest.NewServer(fake.handler())
	defer ts.Close()
	s := newTestFacade(t, ts.URL, nil)
	cs, closeFn := connectMCPClientSession(t, s)
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := make(map[string]bool, len(res.Tools))
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, name := range mcpToolNames {
		if name == toolImageGenerate {
			if names[name] {
				t.Fatalf("expected %s to stay unregistered without a gemini key", name)
			}
			continue
		}
		if !names[name] {
			t.Fatalf("missing tool %s", name)
		}
	}
}

func TestRegisterToolsIncludesImageGenerationWithGenerator(t *testing.T) {
	t.Parallel()

	fake := newFabricRecorder()
	ts := httptest.NewServer(fake.handler())
	defer ts.Close()
	s := newTestFacade(t, ts.URL, func(req *NewServerRequest) {
		req.ImageGen = &fakeGenerator{result: imagegen.Result{MIMEType: "image/png", Data: []byte{0x1}}}
	})
	cs, closeFn := connectMCPClientSession(t, s)
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	found := false
	for _, tool := range res.Tools {
		if tool.Name == toolImageGenerate {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s to be registered with a generator", toolImageGenerate)
	}
	if len(res.Tools) != len(mcpToolNames) {
		t.Fatalf("expected %d tools, got %d", len(mcpToolNames), len(res.Tools))
	}
}

func TestCallToolPassesUpstreamBodyThrough(t *testing.T) {
	t.Parallel()

	fake := newFabricRecorder()
	ts := httptest.NewServer(fake.handler())
	defer ts.Close()
	s := newTestFacade(t, ts.URL, nil)
	cs, closeFn := connectMCPClientSession(t, s)
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      toolFacetsTop,
		Arguments: map[string]any{"facet_type": "people"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %#v", res.Content)
	}
	structured, ok := res.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("expected structured content map, got %T", res.StructuredContent)
	}
	if _, ok := structured["result"]; !ok {
		t.Fatalf("expected result key in structured content, got %#v", structured)
	}

	if got := fake.count(http.MethodGet, "/tapestries"); got != 1 {
		t.Fatalf("expected one tapestry resolution, got %d", got)
	}
	call := fake.last(t)
	if call.method != http.MethodPost || call.path != "/facets/people/top" {
		t.Fatalf("unexpected upstream call %s %s", call.method, call.path)
	}
	if call.auth != "Bearer token-1" {
		t.Fatalf("expected configured bearer token, got %q", call.auth)
	}
	if got := toString(call.body["tapestry_id"]); got != "tap-1" {
		t.Fatalf("expected resolved tapestry in body, got %q", got)
	}
	if got, ok := call.body["top_k"].(float64); !ok || got != float64(DefaultTopFacets) {
		t.Fatalf("expected default top_k %d, got %#v", DefaultTopFacets, call.body["top_k"])
	}
	if _, ok := call.body["from_date"]; ok {
		t.Fatalf("expected from_date omitted, got %#v", call.body)
	}
	if _, ok := call.body["to_date"]; ok {
		t.Fatalf("expected to_date omitted, got %#v", call.body)
	}
}

func TestCallToolRendersStructuredErrorEnvelope(t *testing.T) {
	t.Parallel()

	fake := newFabricRecorder()
	ts := httptest.NewServer(fake.handler())
	defer ts.Close()
	s := newTestFacade(t, ts.URL, nil)
	cs, closeFn := connectMCPClientSession(t, s)
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      toolFacetsSearch,
		Arguments: map[string]any{"query": "sailing", "search_mode": "fuzzy"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected isError=true")
	}
	errObj := extractToolErrorObject(t, res)
	if got := toString(errObj["error_code"]); got != "invalid_argument" {
		t.Fatalf("expected error_code invalid_argument, got %q", got)
	}
	if got := toString(errObj["tool"]); got != toolFacetsSearch {
		t.Fatalf("expected tool name in envelope, got %q", got)
	}
	if detail := toString(errObj["detail"]); !strings.Contains(detail, "search_mode") {
		t.Fatalf("expected detail naming search_mode, got %q", detail)
	}
	if n := len(fake.calls()); n != 0 {
		t.Fatalf("expected zero upstream calls for a rejected search_mode, got %d", n)
	}
}

func TestRawResultTaggedUnion(t *testing.T) {
	t.Parallel()

	out := rawResult([]byte("  {\"a\":1}  "))
	if string(out.Result) != `{"a":1}` || out.ResultText != "" {
		t.Fatalf("expected json body in result, got %#v", out)
	}
	out = rawResult([]byte(`[1,2]`))
	if string(out.Result) != `[1,2]` {
		t.Fatalf("expected json array in result, got %#v", out)
	}
	out = rawResult([]byte("plain text"))
	if out.Result != nil || out.ResultText != "plain text" {
		t.Fatalf("expected raw text fallback, got %#v", out)
	}
	out = rawResult(nil)
	if out.Result != nil || out.ResultText != "" {
		t.Fatalf("expected empty output for empty body, got %#v", out)
	}
}
