package searchodm

import "github.com/letmevibethatforyou/searchodm/document"

// SearchRequest is the body of a search call as the engine expects it.
type SearchRequest struct {
	Q      *string `json:"q,omitempty"`
	Offset *int    `json:"offset,omitempty"`
	Limit  *int    `json:"limit,omitempty"`

	// Filter is a string, a []string (OR of its entries) or a [][]string
	// (AND of OR-groups).
	Filter any `json:"filter,omitempty"`

	Sort                  []string `json:"sort,omitempty"`
	Facets                []string `json:"facets,omitempty"`
	AttributesToRetrieve  []string `json:"attributesToRetrieve,omitempty"`
	AttributesToCrop      []string `json:"attributesToCrop,omitempty"`
	CropLength            int      `json:"cropLength,omitempty"`
	CropMarker            string   `json:"cropMarker,omitempty"`
	AttributesToHighlight []string `json:"attributesToHighlight,omitempty"`
	HighlightPreTag       string   `json:"highlightPreTag,omitempty"`
	HighlightPostTag      string   `json:"highlightPostTag,omitempty"`
	MatchingStrategy      string   `json:"matchingStrategy,omitempty"`
	ShowRankingScore      bool     `json:"showRankingScore,omitempty"`
	RankingScoreThreshold *float64 `json:"rankingScoreThreshold,omitempty"`
	Locales               []string `json:"locales,omitempty"`
	Distinct              string   `json:"distinct,omitempty"`
}

// MultiSearchQuery is one sub-query of a batch, tagged with its index.
type MultiSearchQuery struct {
	IndexUID string `json:"indexUid"`
	SearchRequest
	FederationOptions *FederationOptions `json:"federationOptions,omitempty"`
}

// MultiSearchRequest is the body of a batch search call.
type MultiSearchRequest struct {
	Federation *Federation        `json:"federation,omitempty"`
	Queries    []MultiSearchQuery `json:"queries"`
}

// Federated reports whether the sub-query results are merged into one ranked list.
func (r *MultiSearchRequest) Federated() bool {
	return r.Federation != nil
}

// Federation merges the results of a batch into one list.
type Federation struct {
	Offset        int                 `json:"offset,omitempty"`
	Limit         int                 `json:"limit,omitempty"`
	FacetsByIndex map[string][]string `json:"facetsByIndex,omitempty"`
}

// FederationOptions tune how one sub-query contributes to a federated search.
type FederationOptions struct {
	Weight float64 `json:"weight,omitempty"`
}

// FacetStats holds the numeric range of a facet.
type FacetStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SearchResponse is the engine's answer to a single search.
type SearchResponse struct {
	IndexUID           string                      `json:"indexUid,omitempty"`
	Hits               []*document.Document        `json:"hits"`
	Query              string                      `json:"query"`
	ProcessingTimeMs   int64                       `json:"processingTimeMs"`
	Offset             int                         `json:"offset"`
	Limit              int                         `json:"limit"`
	EstimatedTotalHits *int64                      `json:"estimatedTotalHits,omitempty"`
	TotalHits          *int64                      `json:"totalHits,omitempty"`
	FacetDistribution  map[string]map[string]int64 `json:"facetDistribution,omitempty"`
	FacetStats         map[string]FacetStats       `json:"facetStats,omitempty"`
}

// Total returns the engine's own count of matches, falling back to the hit count.
func (r *SearchResponse) Total() int64 {
	switch {
	case r.EstimatedTotalHits != nil:
		return *r.EstimatedTotalHits
	case r.TotalHits != nil:
		return *r.TotalHits
	default:
		return int64(len(r.Hits))
	}
}

// MultiSearchResponse is the engine's answer to a batch search. Non-federated batches fill
// Results; federated batches fill the embedded SearchResponse.
type MultiSearchResponse struct {
	Results []SearchResponse `json:"results,omitempty"`
	SearchResponse
	FacetsByIndex map[string]IndexFacets `json:"facetsByIndex,omitempty"`
}

// IndexFacets holds the facets of one index in a federated search.
type IndexFacets struct {
	Distribution map[string]map[string]int64 `json:"distribution,omitempty"`
	Stats        map[string]FacetStats       `json:"stats,omitempty"`
}

// FederationInfo records which sub-query produced a federated hit.
type FederationInfo struct {
	IndexUID             string  `json:"indexUid"`
	QueriesPosition      int     `json:"queriesPosition"`
	WeightedRankingScore float64 `json:"weightedRankingScore"`
}
