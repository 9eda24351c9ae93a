package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"pkt.systems/pslog"

	"pkt.systems/fabricmcp/api"
	"pkt.systems/fabricmcp/internal/jsonutil"
	"pkt.systems/fabricmcp/internal/svcfields"
	"pkt.systems/fabricmcp/internal/version"
)

const (
	// DefaultBaseURL targets the hosted Fabric API.
	DefaultBaseURL = "https://api.onfabric.io/api/v1"
	// DefaultHTTPTimeout bounds a single Fabric API request.
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultAssetTimeout bounds a signed-URL asset download.
	DefaultAssetTimeout = 60 * time.Second
	// DefaultMaxBodyBytes caps how many JSON response bytes are read.
	DefaultMaxBodyBytes int64 = 8 << 20
	// DefaultMaxAssetBytes caps how many asset bytes are read.
	DefaultMaxAssetBytes int64 = 64 << 20

	// HeaderCorrelationID is the HTTP header carrying the per-request
	// correlation ID, both inbound to the facade and outbound to Fabric.
	HeaderCorrelationID = "X-Correlation-Id"
)

// Client is a reusable Fabric API client. It holds no caller credentials:
// every operation takes the bearer token explicitly.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	userAgent     string
	httpTimeout   time.Duration
	assetTimeout  time.Duration
	maxBodyBytes  int64
	maxAssetBytes int64
	logger        pslog.Base
}

// Option customises client construction.
type Option func(*Client)

// WithHTTPClient supplies a custom http.Client, replacing the default
// otelhttp-instrumented transport.
func WithHTTPClient(cli *http.Client) Option {
	return func(c *Client) {
		if cli != nil {
			c.httpClient = cli
		}
	}
}

// WithLogger supplies a logger for client diagnostics.
// Passing nil falls back to pslog.NoopLogger().
func WithLogger(logger pslog.Base) Option {
	return func(c *Client) {
		if logger == nil {
			c.logger = pslog.NoopLogger()
			return
		}
		if full, ok := logger.(pslog.Logger); ok {
			c.logger = svcfields.WithSubsystem(full, "client.fabric")
			return
		}
		c.logger = logger
	}
}

// WithUserAgent overrides the User-Agent header sent upstream.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPTimeout bounds each API request. Zero or negative disables the
// per-request timeout.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpTimeout = d
	}
}

// WithAssetTimeout bounds the signed-URL asset download.
func WithAssetTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.assetTimeout = d
	}
}

// WithMaxBodyBytes caps JSON response reads. Zero or negative disables the cap.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		c.maxBodyBytes = n
	}
}

// New creates a client targeting baseURL (e.g. https://api.onfabric.io/api/v1).
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("baseURL required")
	}
	c := &Client{
		baseURL:       strings.TrimRight(trimmed, "/"),
		httpTimeout:   DefaultHTTPTimeout,
		assetTimeout:  DefaultAssetTimeout,
		maxBodyBytes:  DefaultMaxBodyBytes,
		maxAssetBytes: DefaultMaxAssetBytes,
		logger:        pslog.NoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if c.userAgent == "" {
		c.userAgent = "fabricmcp/" + version.Current()
	}
	return c, nil
}

// ListTapestries returns the caller's tapestries via GET /tapestries.
func (c *Client) ListTapestries(ctx context.Context, token string) ([]api.Tapestry, error) {
	body, err := c.TapestriesRaw(ctx, token)
	if err != nil {
		return nil, err
	}
	var tapestries []api.Tapestry
	if err := json.Unmarshal(body, &tapestries); err != nil {
		return nil, fmt.Errorf("decode tapestries: %w", err)
	}
	return tapestries, nil
}

// TapestriesRaw returns the undecoded GET /tapestries body for pass-through use.
func (c *Client) TapestriesRaw(ctx context.Context, token string) (json.RawMessage, error) {
	return c.getJSON(ctx, token, "/tapestries", nil)
}

// FacetTypes returns the upstream facet-type catalog via GET /facets/types.
func (c *Client) FacetTypes(ctx context.Context, token string) (json.RawMessage, error) {
	return c.getJSON(ctx, token, "/facets/types", nil)
}

// TopFacets issues POST /facets/{facet_type}/top.
func (c *Client) TopFacets(ctx context.Context, token, facetType string, req api.TopFacetsRequest) (json.RawMessage, error) {
	return c.postJSON(ctx, token, "/facets/"+url.PathEscape(facetType)+"/top", req)
}

// SearchFacets issues POST /facets/search.
func (c *Client) SearchFacets(ctx context.Context, token string, req api.SearchFacetsRequest) (json.RawMessage, error) {
	return c.postJSON(ctx, token, "/facets/search", req)
}

// FacetMemories issues POST /facets/{facet_id}/memories.
func (c *Client) FacetMemories(ctx context.Context, token, facetID string, req api.FacetMemoriesRequest) (json.RawMessage, error) {
	return c.postJSON(ctx, token, "/facets/"+url.PathEscape(facetID)+"/memories", req)
}

// FacetThreads issues POST /facets/{facet_id}/threads.
func (c *Client) FacetThreads(ctx context.Context, token, facetID string, req api.FacetThreadsRequest) (json.RawMessage, error) {
	return c.postJSON(ctx, token, "/facets/"+url.PathEscape(facetID)+"/threads", req)
}

// RelatedFacets issues POST /facets/{facet_id}/neighbours/{related_type}.
func (c *Client) RelatedFacets(ctx context.Context, token, facetID, relatedType string, req api.RelatedFacetsRequest) (json.RawMessage, error) {
	path := "/facets/" + url.PathEscape(facetID) + "/neighbours/" + url.PathEscape(relatedType)
	return c.postJSON(ctx, token, path, req)
}

// MemoryNeighbours issues GET /memories/{memory_id}/neighbours/{related_type}.
// topK is appended as a query parameter when non-nil.
func (c *Client) MemoryNeighbours(ctx context.Context, token, memoryID, relatedType string, topK *int) (json.RawMessage, error) {
	path := "/memories/" + url.PathEscape(memoryID) + "/neighbours/" + url.PathEscape(relatedType)
	var query url.Values
	if topK != nil {
		query = url.Values{"top_k": []string{strconv.Itoa(*topK)}}
	}
	return c.getJSON(ctx, token, path, query)
}

// ListThreads issues GET /tapestries/{tapestry_id}/threads. The
// interaction_type query parameter is omitted entirely when nil.
func (c *Client) ListThreads(ctx context.Context, token, tapestryID string, interactionType *string) (json.RawMessage, error) {
	path := "/tapestries/" + url.PathEscape(tapestryID) + "/threads"
	var query url.Values
	if interactionType != nil {
		query = url.Values{"interaction_type": []string{*interactionType}}
	}
	return c.getJSON(ctx, token, path, query)
}

// ThreadAsset issues GET /threads/{thread_id}/asset and decodes the signed
// URL envelope. An empty URL is returned as-is; the caller decides whether
// that is an error.
func (c *Client) ThreadAsset(ctx context.Context, token, threadID string) (api.ThreadAssetResponse, error) {
	body, err := c.getJSON(ctx, token, "/threads/"+url.PathEscape(threadID)+"/asset", nil)
	if err != nil {
		return api.ThreadAssetResponse{}, err
	}
	var asset api.ThreadAssetResponse
	if err := json.Unmarshal(body, &asset); err != nil {
		return api.ThreadAssetResponse{}, fmt.Errorf("decode thread asset: %w", err)
	}
	return asset, nil
}

func (c *Client) getJSON(ctx context.Context, token, path string, query url.Values) ([]byte, error) {
	c.logTraceCtx(ctx, "fabric.http.get.start", "path", path)
	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()
	req, err := c.newRequest(reqCtx, http.MethodGet, target, token, nil)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, http.MethodGet, path)
}

func (c *Client) postJSON(ctx context.Context, token, path string, payload any) ([]byte, error) {
	c.logTraceCtx(ctx, "fabric.http.post.start", "path", path)
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()
	req, err := c.newRequest(reqCtx, http.MethodPost, path, token, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req, http.MethodPost, path)
}

func (c *Client) do(ctx context.Context, req *http.Request, method, path string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logErrorCtx(ctx, "fabric.http.transport_error", "method", method, "path", path, "error", err)
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.logWarnCtx(ctx, "fabric.http.error", "method", method, "path", path, "status", resp.StatusCode)
		return nil, c.decodeError(resp, method, path)
	}
	body, err := jsonutil.ReadCapped(resp.Body, c.maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if compacted, cerr := jsonutil.CompactToBuffer(bytes.NewReader(body), 0); cerr == nil {
		body = compacted
	}
	c.logTraceCtx(ctx, "fabric.http.success", "method", method, "path", path, "status", resp.StatusCode)
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, method, target, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	c.applyCorrelationHeader(ctx, req)
	return req, nil
}

func (c *Client) decodeError(resp *http.Response, method, path string) error {
	data, err := jsonutil.ReadCapped(resp.Body, c.maxBodyBytes)
	if err != nil {
		data = nil
	}
	return &APIError{Status: resp.StatusCode, Body: data, Method: method, Path: path}
}

func (c *Client) applyCorrelationHeader(ctx context.Context, req *http.Request) {
	if req == nil {
		return
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		if normalized, ok := NormalizeCorrelationID(id); ok {
			req.Header.Set(HeaderCorrelationID, normalized)
		}
	}
}

func (c *Client) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if c.httpTimeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, c.httpTimeout)
}

func (c *Client) assetContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if c.assetTimeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, c.assetTimeout)
}

func (c *Client) enrichKeyvals(ctx context.Context, keyvals []any) []any {
	if ctx == nil {
		return keyvals
	}
	cid := CorrelationIDFromContext(ctx)
	if cid == "" || hasKey(keyvals, "cid") {
		return keyvals
	}
	enriched := append([]any(nil), keyvals...)
	enriched = append(enriched, "cid", cid)
	return enriched
}

func hasKey(keyvals []any, key string) bool {
	for i := 0; i+1 < len(keyvals); i += 2 {
		if k, ok := keyvals[i].(string); ok && k == key {
			return true
		}
	}
	return false
}

func (c *Client) logTraceCtx(ctx context.Context, msg string, keyvals ...any) {
	if c.logger == nil {
		return
	}
	keyvals = c.enrichKeyvals(ctx, keyvals)
	c.logger.Trace(msg, keyvals...)
}

func (c *Client) logWarnCtx(ctx context.Context, msg string, keyvals ...any) {
	if c.logger == nil {
		return
	}
	keyvals = c.enrichKeyvals(ctx, keyvals)
	c.logger.Warn(msg, keyvals...)
}

func (c *Client) logErrorCtx(ctx context.Context, msg string, keyvals ...any) {
	if c.logger == nil {
		return
	}
	keyvals = c.enrichKeyvals(ctx, keyvals)
	c.logger.Error(msg, keyvals...)
}
