package searchodm

import (
	"encoding/json"
	"iter"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm/document"
	"github.com/letmevibethatforyou/searchodm/mapping"
)

// Reserved hit keys added by the engine.
const (
	keyRankingScore = "_rankingScore"
	keyFormatted    = "_formatted"
	keyFederation   = "_federation"
)

// SearchHit is a single typed result.
type SearchHit[T any] struct {
	content           *T
	index             string
	query             string
	processingTime    time.Duration
	rankingScore      *float64
	formatted         *document.Document
	facetDistribution map[string]map[string]int64
	facetStats        map[string]FacetStats
	federation        *FederationInfo
}

// Content returns the decoded entity.
func (h SearchHit[T]) Content() *T { return h.content }

// Index returns the index the hit came from, when the engine reported it.
func (h SearchHit[T]) Index() string { return h.index }

// Query returns the query term the engine echoed back.
func (h SearchHit[T]) Query() string { return h.query }

func (h SearchHit[T]) ProcessingTime() time.Duration { return h.processingTime }

// RankingScore returns the hit's score when it was requested.
func (h SearchHit[T]) RankingScore() (float64, bool) {
	if h.rankingScore == nil {
		return 0, false
	}
	return *h.rankingScore, true
}

// Formatted returns the highlighted and cropped copy of the hit, or nil.
func (h SearchHit[T]) Formatted() *document.Document { return h.formatted }

func (h SearchHit[T]) FacetDistribution() map[string]map[string]int64 { return h.facetDistribution }
func (h SearchHit[T]) FacetStats() map[string]FacetStats              { return h.facetStats }

// Federation returns the provenance of a federated hit, or nil.
func (h SearchHit[T]) Federation() *FederationInfo { return h.federation }

// SearchHits is an ordered, read-only page of typed results.
type SearchHits[T any] struct {
	hits              []SearchHit[T]
	totalHits         int64
	executionDuration time.Duration
	query             string
	offset            int
	limit             int
	facetDistribution map[string]map[string]int64
	facetStats        map[string]FacetStats
}

// SearchHits returns a copy of the hits.
func (s *SearchHits[T]) SearchHits() []SearchHit[T] { return slices.Clone(s.hits) }

// Len returns the number of hits on this page.
func (s *SearchHits[T]) Len() int { return len(s.hits) }

// At returns the i-th hit.
func (s *SearchHits[T]) At(i int) SearchHit[T] { return s.hits[i] }

// All iterates over the hits in order.
func (s *SearchHits[T]) All() iter.Seq2[int, SearchHit[T]] { return slices.All(s.hits) }

// Contents returns the decoded entities in order.
func (s *SearchHits[T]) Contents() []*T {
	out := make([]*T, len(s.hits))
	for i, h := range s.hits {
		out[i] = h.content
	}
	return out
}

// TotalHits is the engine's count of all matches, which may exceed Len.
func (s *SearchHits[T]) TotalHits() int64 { return s.totalHits }

func (s *SearchHits[T]) ExecutionDuration() time.Duration { return s.executionDuration }
func (s *SearchHits[T]) Query() string                    { return s.query }
func (s *SearchHits[T]) Offset() int                      { return s.offset }
func (s *SearchHits[T]) Limit() int                       { return s.limit }

func (s *SearchHits[T]) FacetDistribution() map[string]map[string]int64 { return s.facetDistribution }
func (s *SearchHits[T]) FacetStats() map[string]FacetStats              { return s.facetStats }

// ToSearchHits reads every hit of a single search response into T.
func ToSearchHits[T any](e *mapping.Engine, res *SearchResponse) (*SearchHits[T], error) {
	out := &SearchHits[T]{
		hits:              make([]SearchHit[T], 0, len(res.Hits)),
		totalHits:         res.Total(),
		executionDuration: millis(res.ProcessingTimeMs),
		query:             res.Query,
		offset:            res.Offset,
		limit:             res.Limit,
		facetDistribution: res.FacetDistribution,
		facetStats:        res.FacetStats,
	}
	if err := appendHits(e, out, res, false); err != nil {
		return nil, err
	}
	return out, nil
}

// ToMultiSearchHits reads a batch response into T. Results of a plain batch are
// concatenated in query order: the total is the sum and the duration the slowest
// query. A federated response is read as one list whose hits carry provenance.
func ToMultiSearchHits[T any](e *mapping.Engine, res *MultiSearchResponse) (*SearchHits[T], error) {
	if res.Results == nil {
		out := &SearchHits[T]{
			hits:              make([]SearchHit[T], 0, len(res.Hits)),
			totalHits:         res.Total(),
			executionDuration: millis(res.ProcessingTimeMs),
			offset:            res.Offset,
			limit:             res.Limit,
			facetDistribution: res.FacetDistribution,
			facetStats:        res.FacetStats,
		}
		if err := appendHits(e, out, &res.SearchResponse, true); err != nil {
			return nil, err
		}
		return out, nil
	}

	out := &SearchHits[T]{}
	for i := range res.Results {
		r := &res.Results[i]
		out.totalHits += r.Total()
		out.executionDuration = max(out.executionDuration, millis(r.ProcessingTimeMs))
		out.limit += r.Limit
		if err := appendHits(e, out, r, false); err != nil {
			return nil, errors.Wrapf(err, "result %d", i)
		}
	}
	return out, nil
}

func appendHits[T any](e *mapping.Engine, out *SearchHits[T], res *SearchResponse, federated bool) error {
	for i, raw := range res.Hits {
		hit := SearchHit[T]{
			index:             res.IndexUID,
			query:             res.Query,
			processingTime:    millis(res.ProcessingTimeMs),
			facetDistribution: res.FacetDistribution,
			facetStats:        res.FacetStats,
		}
		source := raw
		if federated {
			source = raw.Clone()
			if v, ok := source.Delete(keyFederation); ok {
				info, err := federationInfo(v)
				if err != nil {
					return errors.Wrapf(err, "hit %d", i)
				}
				hit.federation = info
				hit.index = info.IndexUID
			}
		}
		if v, ok := source.Get(keyRankingScore); ok {
			if score, ok := toFloat(v); ok {
				hit.rankingScore = &score
			}
		}
		if v, ok := source.Get(keyFormatted); ok {
			hit.formatted, _ = v.(*document.Document)
		}

		content, err := mapping.Read[T](e, source)
		if err != nil {
			return errors.Wrapf(err, "hit %d", i)
		}
		hit.content = content
		out.hits = append(out.hits, hit)
	}
	return nil
}

func federationInfo(v any) (*FederationInfo, error) {
	doc, ok := v.(*document.Document)
	if !ok {
		return nil, errors.Wrapf(ErrConversion, "%s is %T, not an object", keyFederation, v)
	}
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", keyFederation)
	}
	var info FederationInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, errors.WithSecondaryError(
			errors.Wrapf(ErrConversion, "failed to decode %s", keyFederation), err)
	}
	return &info, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func millis(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
