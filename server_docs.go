package fabricmcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/fabricmcp/api"
)

const (
	docOverviewURI = "resource://docs/overview.md"
	docFacetsURI   = "resource://docs/facets.md"
	docThreadsURI  = "resource://docs/threads.md"
	docImagesURI   = "resource://docs/images.md"
	docAuthURI     = "resource://docs/auth.md"
)

func defaultServerInstructions(cfg Config, tokenSource TokenSource, imageEnabled bool) string {
	imageLine := "fabric.images.generate is disabled on this deployment (no Gemini API key configured)."
	if imageEnabled {
		imageLine = fmt.Sprintf("fabric.images.generate renders a prompt with the %s model and returns the image inline.", cfg.ImageModel)
	}
	return strings.TrimSpace(fmt.Sprintf(`
Fabric MCP facade operating manual:
- Upstream API: %s
- Bearer tokens come from the %s source; any tool accepts an auth_token argument as a per-call override.
- Tapestry scope: resolved automatically from the bearer token (first tapestry wins) and cached per token; no tool takes a tapestry argument.
- Discovery workflow: call fabric.help first, then fabric.facets.types for the facet vocabulary, then fabric.facets.top for a first look at the data.
- Search workflow: fabric.facets.search with search_mode=precise for a few high-confidence hits; switch to explore for a wide sweep. Unknown modes are rejected, never coerced.
- Drill-down workflow: facet hits feed fabric.facets.memories, fabric.facets.threads and fabric.facets.neighbours; memory hits feed fabric.memories.neighbours.
- Date filters: from_date/to_date use YYYY-MM-DD and are omitted from the upstream request when absent.
- Thread images: fabric.threads.image resolves a signed URL, then downloads it without auth. Signed URLs are bearer-style secrets; avoid pasting them into chat or shell history.
- Image generation: %s
- Every data tool makes exactly one upstream call. Failures return a structured error envelope (error_code, retryable, http_status); retry only when retryable is true.
- Documentation resources: %s, %s, %s, %s, %s
`, cfg.FabricBaseURL, tokenSource, imageLine, docOverviewURI, docFacetsURI, docThreadsURI, docImagesURI, docAuthURI))
}

func (s *server) registerResources(srv *mcpsdk.Server) {
	for _, uri := range s.resourceURIs() {
		srv.AddResource(&mcpsdk.Resource{
			URI:         uri,
			Name:        uri,
			Title:       uri,
			Description: "Fabric MCP facade documentation",
			MIMEType:    "text/markdown",
		}, s.handleDocResource)
	}
}

func (s *server) resourceURIs() []string {
	docs := s.resourceDocs()
	uris := make([]string, 0, len(docs))
	for uri := range docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

func (s *server) resourceDocs() map[string]string {
	return map[string]string{
		docOverviewURI: strings.TrimSpace(fmt.Sprintf(`
# Fabric MCP Overview

This facade exposes the Fabric memory API at %s as MCP tools. Every
caller is scoped to one tapestry: the first tapestry returned for the
bearer token. Resolution happens once per token and is cached, so no
tool takes a tapestry argument.

Recommended discovery sequence:
1. Call fabric.help for workflows and invariants.
2. Call fabric.facets.types to learn the facet vocabulary (%s).
3. Call fabric.facets.top for the most active facets, optionally
   windowed with from_date/to_date.
4. Search with fabric.facets.search, then drill into hits with
   fabric.facets.memories, fabric.facets.threads and
   fabric.facets.neighbours.
5. List raw interactions with fabric.tapestries.threads and pull a
   thread's stored image with fabric.threads.image.

All data tools return the upstream JSON verbatim under "result"
(or "result_text" when the upstream body is not JSON).
`, s.cfg.FabricBaseURL, api.FacetTypeNames())),
		docFacetsURI: strings.TrimSpace(fmt.Sprintf(`
# Facet Retrieval

Facets are the extracted dimensions of a tapestry: %s.

Search modes form a closed set:
- precise: similarity threshold 0.75, top 5 hits. Default for
  fabric.facets.search. Use for lookup-style questions.
- explore: similarity threshold 0.5, top 50 hits. Default for
  fabric.facets.neighbours. Use for survey-style questions.

Anything else is rejected with invalid_argument; there is no silent
fallback.

Drill-down operations:
- fabric.facets.top ranks facets of one category by activity.
- fabric.facets.search matches free text against facets, optionally
  restricted to one category.
- fabric.facets.memories and fabric.facets.threads list what a facet
  is grounded in.
- fabric.facets.neighbours and fabric.memories.neighbours walk the
  graph to related facets of a chosen category.

Date windows use YYYY-MM-DD. An absent bound is omitted from the
upstream request entirely, never sent as null.
`, api.FacetTypeNames())),
		docThreadsURI: strings.TrimSpace(fmt.Sprintf(`
# Threads

Threads are the raw interactions a tapestry is built from. Interaction
kinds form a closed set: %s.

- fabric.tapestries.threads lists the caller's threads, optionally
  filtered by interaction_type.
- fabric.facets.threads lists the threads grounding one facet.
- fabric.threads.image fetches a thread's stored image in two stages:
  an authenticated lookup returns a short-lived signed URL, then the
  image is downloaded from that URL without an Authorization header.
  A thread without an image yields not_found.

Treat signed URLs as secrets; they carry the access grant in the
query string.
`, api.InteractionTypeNames())),
		docImagesURI: strings.TrimSpace(fmt.Sprintf(`
# Images

fabric.images.generate renders a text prompt with the configured
generation model and returns the image as inline MCP content plus any
caption text the model produced. The model's own MIME type is
reported when present; otherwise the optional format argument
(one of %s, default png) decides it.

A generation that produces no inline image data is reported as
invalid_argument, not retried.

fabric.threads.image returns stored thread images. Its Content-Type
classification defaults to image/jpeg for anything it cannot place,
while generation defaults to png.
`, api.ImageFormatNames())),
		docAuthURI: strings.TrimSpace(fmt.Sprintf(`
# Authentication

Every Fabric call needs a bearer token. The facade resolves it from
one source, fixed at startup:

- env: the configured token (%s) is used for every call. Default for
  stdio deployments.
- header: the caller's Authorization header is forwarded. A "Bearer "
  prefix is stripped once, case-sensitively; any other shape is
  passed through as-is. Default for HTTP deployments.
- param: each call must carry an auth_token argument.

Whatever the source, an auth_token tool argument overrides it for
that call. A missing or empty token yields unauthenticated before any
upstream request is made; an upstream 401 means the token itself was
rejected.

The resolved tapestry is cached per token. After access changes,
restart the facade (or send a fresh token) to re-resolve.
`, EnvAuthToken)),
	}
}

func (s *server) handleDocResource(_ context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	uri := ""
	if req != nil && req.Params != nil {
		uri = strings.TrimSpace(req.Params.URI)
	}
	docs := s.resourceDocs()
	content, ok := docs[uri]
	if !ok {
		return nil, mcpsdk.ResourceNotFoundError(uri)
	}
	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     content,
		}},
	}, nil
}

const helpTopicNames = "overview, facets, threads, images, auth"

type helpToolInput struct {
	Topic string `json:"topic,omitempty" jsonschema:"Optional topic: overview, facets, threads, images, auth"`
}

type helpToolOutput struct {
	Topic      string            `json:"topic"`
	Summary    string            `json:"summary"`
	NextCalls  []string          `json:"next_calls"`
	Resources  []string          `json:"resources"`
	Defaults   map[string]string `json:"defaults"`
	Invariants []string          `json:"invariants"`
}

func (s *server) handleHelpTool(_ context.Context, _ *mcpsdk.CallToolRequest, input helpToolInput) (*mcpsdk.CallToolResult, helpToolOutput, error) {
	topic := strings.ToLower(strings.TrimSpace(input.Topic))
	if topic == "" {
		topic = "overview"
	}
	out := helpToolOutput{
		Topic: topic,
		Defaults: map[string]string{
			"base_url":        s.cfg.FabricBaseURL,
			"token_source":    string(s.tokenSource),
			"search_mode":     string(api.SearchPrecise),
			"neighbours_mode": string(api.SearchExplore),
			"top_facets":      fmt.Sprintf("%d", DefaultTopFacets),
			"image_model":     s.cfg.ImageModel,
		},
		Invariants: []string{
			"the caller's tapestry is the first one returned for the bearer token; resolution is cached per token",
			"search_mode precise means threshold 0.75 with 5 hits; explore means threshold 0.5 with 50 hits",
			"unknown search_mode values are rejected, never coerced to a default",
			"facet_type, related_type and interaction_type are closed vocabularies, validated before any upstream call",
			"from_date/to_date use YYYY-MM-DD and are omitted upstream when absent",
			"every data tool makes exactly one upstream call; there are no retries",
			"tool failures carry a structured envelope: error_code, detail, retryable, http_status",
			"thread images download from a signed URL without an Authorization header; the URL is the credential",
		},
	}
	switch topic {
	case "overview":
		out.Summary = "Start with fabric.facets.types, rank with fabric.facets.top, search with fabric.facets.search, then drill into memories, threads and neighbours. The tapestry scope is resolved from your token automatically."
		out.NextCalls = []string{toolFacetTypes, toolFacetsTop, toolFacetsSearch, toolFacetMemories, toolTapestryThreads}
		out.Resources = []string{docOverviewURI, docFacetsURI, docAuthURI}
	case "facets":
		out.Summary = "Facets are ranked, searched and walked with a closed search-mode table: precise for lookup questions, explore for surveys. Drill from a facet into its memories, threads or neighbouring facets."
		out.NextCalls = []string{toolFacetTypes, toolFacetsTop, toolFacetsSearch, toolFacetMemories, toolFacetThreads, toolFacetNeighbours, toolMemoryNeighbours}
		out.Resources = []string{docFacetsURI, docOverviewURI}
	case "threads":
		out.Summary = "Threads are the raw interactions behind a tapestry. List them per tapestry or per facet, filter by interaction kind, and fetch a thread's stored image in two stages."
		out.NextCalls = []string{toolTapestryThreads, toolFacetThreads, toolThreadImage}
		out.Resources = []string{docThreadsURI}
	case "images":
		if s.imageGen == nil {
			out.Summary = "Image generation is disabled on this deployment (no Gemini API key configured); fabric.threads.image still serves stored thread images."
			out.NextCalls = []string{toolThreadImage}
		} else {
			out.Summary = fmt.Sprintf("fabric.images.generate renders a prompt with the %s model and returns inline image content plus caption text; fabric.threads.image serves stored thread images.", s.cfg.ImageModel)
			out.NextCalls = []string{toolImageGenerate, toolThreadImage}
		}
		out.Resources = []string{docImagesURI, docThreadsURI}
	case "auth":
		out.Summary = "Bearer tokens resolve from one fixed source (env, header or param); an auth_token tool argument overrides it per call. The tapestry scope follows the token and is cached."
		out.NextCalls = []string{toolTapestriesList, toolHelp}
		out.Resources = []string{docAuthURI, docOverviewURI}
	default:
		return nil, helpToolOutput{}, &ValidationError{Field: "topic", Reason: fmt.Sprintf("must be one of %s, got %q", helpTopicNames, input.Topic)}
	}
	return nil, out, nil
}

func (s *server) handleInitialized(_ context.Context, req *mcpsdk.InitializedRequest) {
	if req == nil || req.Session == nil {
		return
	}
	s.lifecycleLog.Debug("mcp.session.initialized", "session_id", req.Session.ID())
}
