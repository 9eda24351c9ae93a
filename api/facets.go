package api

import "strings"

// FacetType enumerates the facet collections the upstream exposes. Facet and
// neighbour path segments are validated against this set before any URL is
// built; unknown values never reach the wire.
type FacetType string

const (
	// FacetTopics are recurring subjects extracted from the tapestry.
	FacetTopics FacetType = "topics"
	// FacetEntities are generic named entities.
	FacetEntities FacetType = "entities"
	// FacetPeople are person entities.
	FacetPeople FacetType = "people"
	// FacetCompanies are company/organization entities.
	FacetCompanies FacetType = "companies"
	// FacetLocations are place entities.
	FacetLocations FacetType = "locations"
	// FacetProducts are product entities.
	FacetProducts FacetType = "products"
	// FacetThings are physical-object entities.
	FacetThings FacetType = "things"
)

// FacetTypes returns the closed facet-type vocabulary in canonical order.
func FacetTypes() []FacetType {
	return []FacetType{
		FacetTopics,
		FacetEntities,
		FacetPeople,
		FacetCompanies,
		FacetLocations,
		FacetProducts,
		FacetThings,
	}
}

// ValidFacetType reports whether s names a known facet type.
func ValidFacetType(s string) bool {
	for _, ft := range FacetTypes() {
		if s == string(ft) {
			return true
		}
	}
	return false
}

// FacetTypeNames renders the vocabulary for error and help text.
func FacetTypeNames() string {
	names := make([]string, 0, len(FacetTypes()))
	for _, ft := range FacetTypes() {
		names = append(names, string(ft))
	}
	return strings.Join(names, ", ")
}

// SearchMode selects a retrieval preset. There is no fallback: modes outside
// the closed set are rejected before any upstream call.
type SearchMode string

const (
	// SearchPrecise favours high-confidence matches (threshold 0.75, top 5).
	SearchPrecise SearchMode = "precise"
	// SearchExplore favours recall (threshold 0.5, top 50).
	SearchExplore SearchMode = "explore"
)

// RetrievalFor maps a search mode to its retrieval preset. ok is false for
// anything outside the closed set.
func RetrievalFor(mode SearchMode) (cfg RetrievalConfig, ok bool) {
	switch mode {
	case SearchPrecise:
		return RetrievalConfig{Threshold: 0.75, TopK: 5}, true
	case SearchExplore:
		return RetrievalConfig{Threshold: 0.5, TopK: 50}, true
	default:
		return RetrievalConfig{}, false
	}
}

// SearchModeNames renders the vocabulary for error and help text.
func SearchModeNames() string {
	return string(SearchPrecise) + ", " + string(SearchExplore)
}

// InteractionType filters thread listings by origin.
type InteractionType string

const (
	// InteractionConversation selects chat-style threads.
	InteractionConversation InteractionType = "conversation"
	// InteractionDocument selects threads created from ingested documents.
	InteractionDocument InteractionType = "document"
	// InteractionEvent selects threads created from calendar events.
	InteractionEvent InteractionType = "event"
)

// InteractionTypes returns the closed interaction-type vocabulary.
func InteractionTypes() []InteractionType {
	return []InteractionType{InteractionConversation, InteractionDocument, InteractionEvent}
}

// ValidInteractionType reports whether s names a known interaction type.
func ValidInteractionType(s string) bool {
	for _, it := range InteractionTypes() {
		if s == string(it) {
			return true
		}
	}
	return false
}

// InteractionTypeNames renders the vocabulary for error and help text.
func InteractionTypeNames() string {
	names := make([]string, 0, len(InteractionTypes()))
	for _, it := range InteractionTypes() {
		names = append(names, string(it))
	}
	return strings.Join(names, ", ")
}
