package fabricmcp

import (
	"fmt"
	"strings"

	"pkt.systems/fabricmcp/api"
)

const (
	toolTapestriesList   = "fabric.tapestries.list"
	toolFacetTypes       = "fabric.facets.types"
	toolFacetsTop        = "fabric.facets.top"
	toolFacetsSearch     = "fabric.facets.search"
	toolFacetMemories    = "fabric.facets.memories"
	toolFacetThreads     = "fabric.facets.threads"
	toolFacetNeighbours  = "fabric.facets.neighbours"
	toolMemoryNeighbours = "fabric.memories.neighbours"
	toolTapestryThreads  = "fabric.tapestries.threads"
	toolThreadImage      = "fabric.threads.image"
	toolImageGenerate    = "fabric.images.generate"
	toolHelp             = "fabric.help"
)

var mcpToolNames = []string{
	toolTapestriesList,
	toolFacetTypes,
	toolFacetsTop,
	toolFacetsSearch,
	toolFacetMemories,
	toolFacetThreads,
	toolFacetNeighbours,
	toolMemoryNeighbours,
	toolTapestryThreads,
	toolThreadImage,
	toolImageGenerate,
	toolHelp,
}

type toolContract struct {
	Top      []string
	Purpose  string
	UseWhen  string
	Requires string
	Effects  string
	Retry    string
	Next     string
}

func formatToolDescription(spec toolContract) string {
	lines := make([]string, 0, len(spec.Top)+6)
	for _, line := range spec.Top {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	lines = append(lines, []string{
		"Purpose: " + spec.Purpose,
		"Use when: " + spec.UseWhen,
		"Requires: " + spec.Requires,
		"Effects: " + spec.Effects,
		"Retry: " + spec.Retry,
	}...)
	if strings.Contains(spec.Next, "\n") {
		lines = append(lines, "Next:\n"+spec.Next)
	} else {
		lines = append(lines, "Next: "+spec.Next)
	}
	return strings.Join(lines, "\n")
}

const (
	bootstrapHelpLine      = "BOOTSTRAP: If fabric.help has not been called in this session, call it now before using this tool."
	tapestryResolutionLine = "SCOPE: The caller's tapestry is resolved automatically from the bearer token; no tool takes a tapestry argument."
	dateWindowLine         = "DATES: from_date/to_date use YYYY-MM-DD; an omitted bound leaves that side of the window open."
	readRetryLine          = "Safe to retry; this is a read operation."
)

// buildToolDescriptions renders the tool contracts. Compact mode keeps only
// the Purpose line per tool for clients with tight context windows.
func buildToolDescriptions(cfg Config) map[string]string {
	contracts := toolContracts(cfg)
	out := make(map[string]string, len(contracts))
	for name, contract := range contracts {
		if cfg.CompactDescriptions {
			out[name] = contract.Purpose
			continue
		}
		out[name] = formatToolDescription(contract)
	}
	return out
}

func toolContracts(cfg Config) map[string]toolContract {
	facetTypes := api.FacetTypeNames()
	searchModes := api.SearchModeNames()
	interactionTypes := api.InteractionTypeNames()

	return map[string]toolContract{
		toolTapestriesList: {
			Top: []string{
				bootstrapHelpLine,
			},
			Purpose:  "List the tapestries (personal data containers) the bearer token can reach.",
			UseWhen:  "You want to confirm the token works or inspect tapestry metadata; every other tool resolves the tapestry for you.",
			Requires: "A Fabric bearer token (resolved from the configured token source).",
			Effects:  "Returns the upstream tapestry list verbatim; no mutation.",
			Retry:    readRetryLine,
			Next:     "Call `fabric.facets.top` or `fabric.facets.search` to start exploring the tapestry.",
		},
		toolFacetTypes: {
			Purpose:  "List the facet types Fabric extracts from memories.",
			UseWhen:  "You need the valid `facet_type` values before calling facet tools.",
			Requires: "A Fabric bearer token.",
			Effects:  fmt.Sprintf("Returns the facet type catalogue; the closed set is %s.", facetTypes),
			Retry:    readRetryLine,
			Next:     "Pass one of the returned types to `fabric.facets.top` or `fabric.facets.neighbours`.",
		},
		toolFacetsTop: {
			Top: []string{
				bootstrapHelpLine,
				tapestryResolutionLine,
				dateWindowLine,
			},
			Purpose:  "Rank the most significant facets of one type in the caller's tapestry.",
			UseWhen:  "You want a high-signal overview: the people, companies, or topics that dominate the data, optionally within a date window.",
			Requires: fmt.Sprintf("`facet_type` is required and must be one of %s. Optional `top_k` defaults to %d. Optional `from_date`/`to_date` bound the window.", facetTypes, DefaultTopFacets),
			Effects:  "Returns the upstream facet ranking verbatim; no mutation.",
			Retry:    readRetryLine,
			Next:     "Feed an interesting facet id into `fabric.facets.memories`, `fabric.facets.threads`, or `fabric.facets.neighbours`.",
		},
		toolFacetsSearch: {
			Top: []string{
				bootstrapHelpLine,
				tapestryResolutionLine,
				dateWindowLine,
			},
			Purpose:  "Semantic search over facets in the caller's tapestry.",
			UseWhen:  "You have a natural-language query and want matching facets rather than raw memories.",
			Requires: fmt.Sprintf("`query` is required. Optional `search_mode` is one of %s (default %s): precise returns few high-confidence hits, explore casts a wide net. Optional `facet_type` narrows to one of %s.", searchModes, api.SearchPrecise, facetTypes),
			Effects:  "Returns matching facets with relevance scores, verbatim from upstream; no mutation.",
			Retry:    readRetryLine,
			Next:     "Drill into a hit with `fabric.facets.memories` or widen the search with `search_mode=explore`.",
		},
		toolFacetMemories: {
			Top: []string{
				tapestryResolutionLine,
				dateWindowLine,
			},
			Purpose:  "List the memories connected to one facet.",
			UseWhen:  "You found a facet (via top or search) and want the underlying memories.",
			Requires: "`facet_id` is required. Optional `limit` caps the result, optional `from_date`/`to_date` bound the window.",
			Effects:  "Returns the upstream memory list verbatim; no mutation.",
			Retry:    readRetryLine,
			Next:     "Use `fabric.memories.neighbours` to pivot from a memory to related facets.",
		},
		toolFacetThreads: {
			Top: []string{
				tapestryResolutionLine,
				dateWindowLine,
			},
			Purpose:  "List the threads (conversations, documents, events) connected to one facet.",
			UseWhen:  "You want the source threads behind a facet rather than individual memories.",
			Requires: "`facet_id` is required. Optional `limit` caps the result, optional `from_date`/`to_date` bound the window.",
			Effects:  "Returns the upstream thread list verbatim; no mutation.",
			Retry:    readRetryLine,
			Next:     "Fetch a thread's picture with `fabric.threads.image` when the thread carries an asset.",
		},
		toolFacetNeighbours: {
			Top: []string{
				tapestryResolutionLine,
			},
			Purpose:  "Find facets related to a given facet through shared memories.",
			UseWhen:  "You want to expand context around a known facet, for example the people connected to a company.",
			Requires: fmt.Sprintf("`facet_id` and `related_type` are required; `related_type` must be one of %s. Optional `search_mode` is one of %s (default %s).", facetTypes, searchModes, api.SearchExplore),
			Effects:  "Returns the upstream neighbour ranking verbatim; no mutation.",
			Retry:    readRetryLine,
			Next:     "Inspect a neighbour with `fabric.facets.memories` or continue walking the graph.",
		},
		toolMemoryNeighbours: {
			Top: []string{
				tapestryResolutionLine,
			},
			Purpose:  "Find facets related to a single memory.",
			UseWhen:  "You hold a memory id (from facet memories) and want the facets it touches.",
			Requires: fmt.Sprintf("`memory_id` and `related_type` are required; `related_type` must be one of %s. Optional `top_k` caps the result.", facetTypes),
			Effects:  "Returns the upstream neighbour list verbatim; no mutation.",
			Retry:    readRetryLine,
			Next:     "Pivot back to facet tools with any returned facet id.",
		},
		toolTapestryThreads: {
			Top: []string{
				tapestryResolutionLine,
			},
			Purpose:  "List the threads ingested into the caller's tapestry.",
			UseWhen:  "You want the raw sources (conversations, documents, events) rather than extracted facets.",
			Requires: fmt.Sprintf("Optional `interaction_type` filters to one of %s; omitted means all types.", interactionTypes),
			Effects:  "Returns the upstream thread list verbatim; no mutation.",
			Retry:    readRetryLine,
			Next:     "Fetch a thread's picture with `fabric.threads.image`.",
		},
		toolThreadImage: {
			Top: []string{
				tapestryResolutionLine,
			},
			Purpose:  "Download the image asset attached to a thread.",
			UseWhen:  "A thread (for example an ingested photo or screenshot) carries a visual asset you want to see.",
			Requires: "`thread_id` is required and the thread must have an asset; threads without one fail with not_found.",
			Effects:  "Resolves a short-lived signed URL upstream and returns the image bytes as MCP image content.",
			Retry:    "Safe to retry; each call resolves a fresh signed URL.",
			Next:     "Use `fabric.tapestries.threads` to find more threads worth fetching.",
		},
		toolImageGenerate: {
			Purpose:  "Generate an image from a text prompt with the configured Gemini model.",
			UseWhen:  "The user asks for a picture; this is the only tool that creates content rather than reading the tapestry.",
			Requires: fmt.Sprintf("`prompt` is required. Optional `format` is one of %s and only hints the preferred encoding; the model's native MIME type wins. Server must be configured with a Gemini API key.", api.ImageFormatNames()),
			Effects:  fmt.Sprintf("Calls the %s model once and returns the first generated image as MCP image content, with any caption text alongside.", cfg.ImageModel),
			Retry:    "Each call bills a fresh generation; retry only when no image came back.",
			Next:     "Adjust the prompt and call again if the result misses.",
		},
		toolHelp: {
			Purpose:  "Return curated Fabric facade workflows and tool-selection guidance.",
			UseWhen:  "Start of session or when uncertain which facet tool fits the question.",
			Requires: "No required fields. Optional `topic` narrows guidance to overview/facets/threads/images/auth.",
			Effects:  "Returns guidance only; no upstream call occurs.",
			Retry:    "Safe to retry.",
			Next:     "Follow the suggested workflow, typically starting with `fabric.facets.top` or `fabric.facets.search`.",
		},
	}
}
