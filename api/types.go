// Package api defines the wire types and closed vocabularies shared by the
// Fabric REST client and the MCP facade. Request bodies mirror the upstream
// Fabric API exactly; optional filters are omitted from the encoded JSON when
// unset, never serialized as null.
package api

// Tapestry is one element of the GET /tapestries response. Only ID is
// contractually required; unknown fields are ignored on decode.
type Tapestry struct {
	// ID identifies the tapestry. The facade resolves every caller to the
	// first tapestry returned for their token.
	ID string `json:"id"`
	// Name is the human-readable tapestry name, when the upstream provides one.
	Name string `json:"name,omitempty"`
	// CreatedAt is the upstream creation timestamp, passed through verbatim.
	CreatedAt string `json:"created_at,omitempty"`
}

// RetrievalConfig tunes upstream semantic search.
type RetrievalConfig struct {
	// Threshold is the minimum similarity score for a match.
	Threshold float64 `json:"threshold"`
	// TopK caps the number of results returned.
	TopK int `json:"top_k"`
}

// TopFacetsRequest models the JSON payload for POST /facets/{facet_type}/top.
type TopFacetsRequest struct {
	// TapestryID scopes the request to the caller's tapestry.
	TapestryID string `json:"tapestry_id"`
	// TopK caps the number of facets returned.
	TopK int `json:"top_k"`
	// FromDate restricts results to on/after this ISO date (YYYY-MM-DD).
	FromDate *string `json:"from_date,omitempty"`
	// ToDate restricts results to on/before this ISO date (YYYY-MM-DD).
	ToDate *string `json:"to_date,omitempty"`
}

// SearchFacetsRequest models the JSON payload for POST /facets/search.
type SearchFacetsRequest struct {
	// TapestryID scopes the request to the caller's tapestry.
	TapestryID string `json:"tapestry_id"`
	// Query is the free-text search query.
	Query string `json:"query"`
	// FacetType optionally restricts the search to one facet type.
	FacetType *string `json:"facet_type,omitempty"`
	// Retrieval carries the threshold/top_k pair derived from the search mode.
	Retrieval RetrievalConfig `json:"retrieval_config"`
	// FromDate restricts results to on/after this ISO date (YYYY-MM-DD).
	FromDate *string `json:"from_date,omitempty"`
	// ToDate restricts results to on/before this ISO date (YYYY-MM-DD).
	ToDate *string `json:"to_date,omitempty"`
}

// FacetMemoriesRequest models the JSON payload for POST /facets/{facet_id}/memories.
type FacetMemoriesRequest struct {
	// TapestryID scopes the request to the caller's tapestry.
	TapestryID string `json:"tapestry_id"`
	// Limit caps the number of memories returned.
	Limit *int `json:"limit,omitempty"`
	// FromDate restricts results to on/after this ISO date (YYYY-MM-DD).
	FromDate *string `json:"from_date,omitempty"`
	// ToDate restricts results to on/before this ISO date (YYYY-MM-DD).
	ToDate *string `json:"to_date,omitempty"`
}

// FacetThreadsRequest models the JSON payload for POST /facets/{facet_id}/threads.
type FacetThreadsRequest struct {
	// TapestryID scopes the request to the caller's tapestry.
	TapestryID string `json:"tapestry_id"`
	// Limit caps the number of threads returned.
	Limit *int `json:"limit,omitempty"`
	// FromDate restricts results to on/after this ISO date (YYYY-MM-DD).
	FromDate *string `json:"from_date,omitempty"`
	// ToDate restricts results to on/before this ISO date (YYYY-MM-DD).
	ToDate *string `json:"to_date,omitempty"`
}

// RelatedFacetsRequest models the JSON payload for
// POST /facets/{facet_id}/neighbours/{related_type}.
type RelatedFacetsRequest struct {
	// TapestryID scopes the request to the caller's tapestry.
	TapestryID string `json:"tapestry_id"`
	// Search carries the threshold/top_k pair derived from the search mode.
	Search RetrievalConfig `json:"search_config"`
}

// ThreadAssetResponse is the body of GET /threads/{thread_id}/asset. The
// signed URL grants short-lived unauthenticated access to the thread's image.
type ThreadAssetResponse struct {
	// URL is the signed asset URL. Empty means the thread has no image.
	URL string `json:"url"`
}
