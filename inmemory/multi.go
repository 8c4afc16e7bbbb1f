package inmemory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm"
	"github.com/letmevibethatforyou/searchodm/document"
)

// MultiSearch implements searchodm.Transport. Without a federation every query is
// answered on its own; with one, the matches of all queries are merged by weighted
// ranking score and paginated by the federation.
func (t *Transport) MultiSearch(ctx context.Context, req *searchodm.MultiSearchRequest) (*searchodm.MultiSearchResponse, error) {
	if !req.Federated() {
		out := &searchodm.MultiSearchResponse{Results: make([]searchodm.SearchResponse, 0, len(req.Queries))}
		for i := range req.Queries {
			q := &req.Queries[i]
			if q.FederationOptions != nil {
				return nil, errors.Wrapf(searchodm.ErrTranslation, "query %d: federation options without federation", i)
			}
			res, err := t.Search(ctx, q.IndexUID, &q.SearchRequest)
			if err != nil {
				return nil, errors.Wrapf(err, "query %d", i)
			}
			out.Results = append(out.Results, *res)
		}
		return out, nil
	}
	return t.federate(ctx, req)
}

type federatedMatch struct {
	scoredDocument
	index    string
	position int
	weighted float64
}

func (t *Transport) federate(ctx context.Context, req *searchodm.MultiSearchRequest) (*searchodm.MultiSearchResponse, error) {
	startTime := time.Now()
	fed := req.Federation

	var merged []federatedMatch
	byIndex := make(map[string][]scoredDocument)
	for i := range req.Queries {
		q := &req.Queries[i]
		if q.Offset != nil || q.Limit != nil {
			return nil, errors.Wrapf(searchodm.ErrTranslation, "query %d: offset and limit belong to the federation", i)
		}
		ev, err := t.evaluate(ctx, q.IndexUID, &q.SearchRequest)
		if err != nil {
			return nil, errors.Wrapf(err, "query %d", i)
		}
		weight := 1.0
		if q.FederationOptions != nil && q.FederationOptions.Weight > 0 {
			weight = q.FederationOptions.Weight
		}
		for _, m := range ev.matches {
			merged = append(merged, federatedMatch{
				scoredDocument: m,
				index:          q.IndexUID,
				position:       i,
				weighted:       m.rank * weight,
			})
		}
		byIndex[q.IndexUID] = append(byIndex[q.IndexUID], ev.matches...)
	}

	slices.SortStableFunc(merged, func(a, b federatedMatch) int {
		return cmp.Compare(b.weighted, a.weighted)
	})
	// a document matched by several queries is kept once, at its best score
	seen := make(map[*document.Document]bool, len(merged))
	merged = slices.DeleteFunc(merged, func(m federatedMatch) bool {
		dup := seen[m.document]
		seen[m.document] = true
		return dup
	})

	limit := fed.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	start := min(fed.Offset, len(merged))
	end := min(start+limit, len(merged))

	total := int64(len(merged))
	out := &searchodm.MultiSearchResponse{
		SearchResponse: searchodm.SearchResponse{
			Hits:               make([]*document.Document, 0, end-start),
			Offset:             fed.Offset,
			Limit:              limit,
			EstimatedTotalHits: &total,
		},
	}
	for _, m := range merged[start:end] {
		hit := render(m.scoredDocument, &req.Queries[m.position].SearchRequest)
		provenance := document.New()
		_ = provenance.Set("indexUid", m.index)
		_ = provenance.Set("queriesPosition", m.position)
		_ = provenance.Set("weightedRankingScore", m.weighted)
		_ = hit.Set("_federation", provenance)
		out.Hits = append(out.Hits, hit)
	}
	for name, names := range fed.FacetsByIndex {
		if len(names) == 0 {
			continue
		}
		if out.FacetsByIndex == nil {
			out.FacetsByIndex = make(map[string]searchodm.IndexFacets)
		}
		dist, stats := facets(unique(byIndex[name]), names)
		out.FacetsByIndex[name] = searchodm.IndexFacets{Distribution: dist, Stats: stats}
	}
	out.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	return out, nil
}

// unique drops repeated documents matched by more than one query.
func unique(matches []scoredDocument) []scoredDocument {
	seen := make(map[*document.Document]bool, len(matches))
	out := matches[:0:0]
	for _, m := range matches {
		if !seen[m.document] {
			seen[m.document] = true
			out = append(out, m)
		}
	}
	return out
}
