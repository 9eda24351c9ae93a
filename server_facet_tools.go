package fabricmcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/fabricmcp/api"
)

// dateFormat is the wire layout for from_date/to_date filters.
const dateFormat = "2006-01-02"

// parseDateBound validates an optional YYYY-MM-DD filter. Empty input keeps
// the filter absent; the upstream never sees a null date.
func parseDateBound(field, value string) (*string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if _, err := time.Parse(dateFormat, value); err != nil {
		return nil, &ValidationError{Field: field, Reason: fmt.Sprintf("must be a YYYY-MM-DD date, got %q", value)}
	}
	return &value, nil
}

// retrievalForMode maps a search_mode argument onto the corresponding
// retrieval tuning. Empty input selects the tool's documented default;
// anything outside the closed set is rejected rather than coerced.
func retrievalForMode(raw string, fallback api.SearchMode) (api.RetrievalConfig, error) {
	mode := api.SearchMode(strings.TrimSpace(raw))
	if mode == "" {
		mode = fallback
	}
	cfg, ok := api.RetrievalFor(mode)
	if !ok {
		return api.RetrievalConfig{}, &ValidationError{Field: "search_mode", Reason: fmt.Sprintf("must be one of %s, got %q", api.SearchModeNames(), raw)}
	}
	return cfg, nil
}

// checkFacetType validates a facet-type argument against the closed set.
func checkFacetType(field, raw string) (string, error) {
	t := strings.TrimSpace(raw)
	if !api.ValidFacetType(t) {
		return "", &ValidationError{Field: field, Reason: fmt.Sprintf("must be one of %s, got %q", api.FacetTypeNames(), raw)}
	}
	return t, nil
}

// positiveLimit turns an optional count argument into a pointer. Zero means
// the caller left it out; the upstream applies its own default then.
func positiveLimit(field string, value int) (*int, error) {
	switch {
	case value < 0:
		return nil, &ValidationError{Field: field, Reason: fmt.Sprintf("must be positive, got %d", value)}
	case value == 0:
		return nil, nil
	}
	return &value, nil
}

type tapestriesListInput struct {
	AuthToken string `json:"auth_token,omitempty" jsonschema:"bearer token for this call; overrides the transport-derived token"`
}

func (s *server) handleTapestriesListTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input tapestriesListInput) (*mcpsdk.CallToolResult, passThroughOutput, error) {
	token, err := s.token(ctx, input.AuthToken)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	body, err := s.fabric.TapestriesRaw(ctx, token)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	return nil, rawResult(body), nil
}

type facetTypesInput struct {
	AuthToken string `json:"auth_token,omitempty" jsonschema:"bearer token for this call; overrides the transport-derived token"`
}

func (s *server) handleFacetTypesTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input facetTypesInput) (*mcpsdk.CallToolResult, passThroughOutput, error) {
	token, err := s.token(ctx, input.AuthToken)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	body, err := s.fabric.FacetTypes(ctx, token)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	return nil, rawResult(body), nil
}

type facetsTopInput struct {
	FacetType string `json:"facet_type" jsonschema:"facet category to rank"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"number of facets to return, default 10"`
	FromDate  string `json:"from_date,omitempty" jsonschema:"earliest activity date to include, YYYY-MM-DD"`
	ToDate    string `json:"to_date,omitempty" jsonschema:"latest activity date to include, YYYY-MM-DD"`
	AuthToken string `json:"auth_token,omitempty" jsonschema:"bearer token for this call; overrides the transport-derived token"`
}

func (s *server) handleFacetsTopTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input facetsTopInput) (*mcpsdk.CallToolResult, passThroughOutput, error) {
	facetType, err := checkFacetType("facet_type", input.FacetType)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	topK := input.TopK
	switch {
	case topK < 0:
		return nil, passThroughOutput{}, &ValidationError{Field: "top_k", Reason: fmt.Sprintf("must be positive, got %d", topK)}
	case topK == 0:
		topK = DefaultTopFacets
	}
	fromDate, err := parseDateBound("from_date", input.FromDate)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	toDate, err := parseDateBound("to_date", input.ToDate)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	token, err := s.token(ctx, input.AuthToken)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	tapestryID, err := s.resolveTapestry(ctx, token)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	body, err := s.fabric.TopFacets(ctx, token, facetType, api.TopFacetsRequest{
		TapestryID: tapestryID,
		TopK:       topK,
		FromDate:   fromDate,
		ToDate:     toDate,
	})
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	return nil, rawResult(body), nil
}

type facetsSearchInput struct {
	Query      string `json:"query" jsonschema:"free-text query to match against facets"`
	SearchMode string `json:"search_mode,omitempty" jsonschema:"precise for a few high-confidence hits, explore for a wide sweep; default precise"`
	FacetType  string `json:"facet_type,omitempty" jsonschema:"restrict matches to one facet category"`
	FromDate   string `json:"from_date,omitempty" jsonschema:"earliest activity date to include, YYYY-MM-DD"`
	ToDate     string `json:"to_date,omitempty" jsonschema:"latest activity date to include, YYYY-MM-DD"`
	AuthToken  string `json:"auth_token,omitempty" jsonschema:"bearer token for this call; overrides the transport-derived token"`
}

func (s *server) handleFacetsSearchTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input facetsSearchInput) (*mcpsdk.CallToolResult, passThroughOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, passThroughOutput{}, &ValidationError{Reason: "query is required"}
	}
	retrieval, err := retrievalForMode(input.SearchMode, api.SearchPrecise)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	var facetType *string
	if raw := strings.TrimSpace(input.FacetType); raw != "" {
		checked, err := checkFacetType("facet_type", raw)
		if err != nil {
			return nil, passThroughOutput{}, err
		}
		facetType = &checked
	}
	fromDate, err := parseDateBound("from_date", input.FromDate)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	toDate, err := parseDateBound("to_date", input.ToDate)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	token, err := s.token(ctx, input.AuthToken)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	tapestryID, err := s.resolveTapestry(ctx, token)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	body, err := s.fabric.SearchFacets(ctx, token, api.SearchFacetsRequest{
		TapestryID: tapestryID,
		Query:      query,
		FacetType:  facetType,
		Retrieval:  retrieval,
		FromDate:   fromDate,
		ToDate:     toDate,
	})
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	return nil, rawResult(body), nil
}

type facetMemoriesInput struct {
	FacetID   string `json:"facet_id" jsonschema:"facet whose memories to list"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum memories to return; upstream default when omitted"`
	FromDate  string `json:"from_date,omitempty" jsonschema:"earliest memory date to include, YYYY-MM-DD"`
	ToDate    string `json:"to_date,omitempty" jsonschema:"latest memory date to include, YYYY-MM-DD"`
	AuthToken string `json:"auth_token,omitempty" jsonschema:"bearer token for this call; overrides the transport-derived token"`
}

func (s *server) handleFacetMemoriesTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input facetMemoriesInput) (*mcpsdk.CallToolResult, passThroughOutput, error) {
	facetID := strings.TrimSpace(input.FacetID)
	if facetID == "" {
		return nil, passThroughOutput{}, &ValidationError{Reason: "facet_id is required"}
	}
	limit, err := positiveLimit("limit", input.Limit)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	fromDate, err := parseDateBound("from_date", input.FromDate)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	toDate, err := parseDateBound("to_date", input.ToDate)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	token, err := s.token(ctx, input.AuthToken)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	tapestryID, err := s.resolveTapestry(ctx, token)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	body, err := s.fabric.FacetMemories(ctx, token, facetID, api.FacetMemoriesRequest{
		TapestryID: tapestryID,
		Limit:      limit,
		FromDate:   fromDate,
		ToDate:     toDate,
	})
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	return nil, rawResult(body), nil
}

type facetThreadsInput struct {
	FacetID   string `json:"facet_id" jsonschema:"facet whose threads to list"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum threads to return; upstream default when omitted"`
	FromDate  string `json:"from_date,omitempty" jsonschema:"earliest thread date to include, YYYY-MM-DD"`
	ToDate    string `json:"to_date,omitempty" jsonschema:"latest thread date to include, YYYY-MM-DD"`
	AuthToken string `json:"auth_token,omitempty" jsonschema:"bearer token for this call; overrides the transport-derived token"`
}

func (s *server) handleFacetThreadsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input facetThreadsInput) (*mcpsdk.CallToolResult, passThroughOutput, error) {
	facetID := strings.TrimSpace(input.FacetID)
	if facetID == "" {
		return nil, passThroughOutput{}, &ValidationError{Reason: "facet_id is required"}
	}
	limit, err := positiveLimit("limit", input.Limit)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	fromDate, err := parseDateBound("from_date", input.FromDate)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	toDate, err := parseDateBound("to_date", input.ToDate)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	token, err := s.token(ctx, input.AuthToken)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	tapestryID, err := s.resolveTapestry(ctx, token)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	body, err := s.fabric.FacetThreads(ctx, token, facetID, api.FacetThreadsRequest{
		TapestryID: tapestryID,
		Limit:      limit,
		FromDate:   fromDate,
		ToDate:     toDate,
	})
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	return nil, rawResult(body), nil
}

type facetNeighboursInput struct {
	FacetID     string `json:"facet_id" jsonschema:"facet to expand from"`
	RelatedType string `json:"related_type" jsonschema:"facet category of the neighbours to return"`
	SearchMode  string `json:"search_mode,omitempty" jsonschema:"precise for a few high-confidence hits, explore for a wide sweep; default explore"`
	AuthToken   string `json:"auth_token,omitempty" jsonschema:"bearer token for this call; overrides the transport-derived token"`
}

func (s *server) handleFacetNeighboursTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input facetNeighboursInput) (*mcpsdk.CallToolResult, passThroughOutput, error) {
	facetID := strings.TrimSpace(input.FacetID)
	if facetID == "" {
		return nil, passThroughOutput{}, &ValidationError{Reason: "facet_id is required"}
	}
	relatedType, err := checkFacetType("related_type", input.RelatedType)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	retrieval, err := retrievalForMode(input.SearchMode, api.SearchExplore)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	token, err := s.token(ctx, input.AuthToken)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	tapestryID, err := s.resolveTapestry(ctx, token)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	body, err := s.fabric.RelatedFacets(ctx, token, facetID, relatedType, api.RelatedFacetsRequest{
		TapestryID: tapestryID,
		Search:     retrieval,
	})
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	return nil, rawResult(body), nil
}

type memoryNeighboursInput struct {
	MemoryID    string `json:"memory_id" jsonschema:"memory to expand from"`
	RelatedType string `json:"related_type" jsonschema:"facet category of the neighbours to return"`
	TopK        int    `json:"top_k,omitempty" jsonschema:"maximum neighbours to return; upstream default when omitted"`
	AuthToken   string `json:"auth_token,omitempty" jsonschema:"bearer token for this call; overrides the transport-derived token"`
}

func (s *server) handleMemoryNeighboursTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input memoryNeighboursInput) (*mcpsdk.CallToolResult, passThroughOutput, error) {
	memoryID := strings.TrimSpace(input.MemoryID)
	if memoryID == "" {
		return nil, passThroughOutput{}, &ValidationError{Reason: "memory_id is required"}
	}
	relatedType, err := checkFacetType("related_type", input.RelatedType)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	topK, err := positiveLimit("top_k", input.TopK)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	token, err := s.token(ctx, input.AuthToken)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	body, err := s.fabric.MemoryNeighbours(ctx, token, memoryID, relatedType, topK)
	if err != nil {
		return nil, passThroughOutput{}, err
	}
	return nil, rawResult(body), nil
}
