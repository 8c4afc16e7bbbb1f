package searchodm

import (
	"github.com/cockroachdb/errors"
)

// Translator turns Query values into engine requests. Queries without an index
// override are sent to the default index.
type Translator struct {
	defaultIndex string
}

// NewTranslator creates a translator for the given default index.
func NewTranslator(defaultIndex string) *Translator {
	return &Translator{defaultIndex: defaultIndex}
}

// DefaultIndex returns the index used by queries without an override.
func (t *Translator) DefaultIndex() string { return t.defaultIndex }

// SearchRequest translates a single query. The zero-based page becomes
// offset = page*size and limit = size.
func (t *Translator) SearchRequest(q Query) (*SearchRequest, error) {
	if q.federationOptions != nil {
		return nil, errors.Wrap(ErrTranslation, "federation options require a federated multi-search")
	}
	req, err := translate(q)
	if err != nil {
		return nil, err
	}
	offset, limit := q.pageable.Offset(), q.pageable.Size
	req.Offset, req.Limit = &offset, &limit
	return req, nil
}

// IndexFor returns the index a query targets.
func (t *Translator) IndexFor(q Query) (string, error) {
	index := q.index
	if index == "" {
		index = t.defaultIndex
	}
	if index == "" {
		return "", errors.Wrap(ErrTranslation, "no index for query")
	}
	return index, nil
}

// MultiSearchRequest translates a batch. Each query is translated on its own and
// tagged with its index. With a federation, per-query pagination is left to the
// federation and explicit per-query pageables are rejected; without one,
// per-query federation options are rejected.
func (t *Translator) MultiSearchRequest(queries []Query, fed *Federation) (*MultiSearchRequest, error) {
	out := &MultiSearchRequest{
		Federation: fed,
		Queries:    make([]MultiSearchQuery, 0, len(queries)),
	}
	for i, q := range queries {
		index, err := t.IndexFor(q)
		if err != nil {
			return nil, errors.Wrapf(err, "query %d", i)
		}
		req, err := translate(q)
		if err != nil {
			return nil, errors.Wrapf(err, "query %d", i)
		}

		mq := MultiSearchQuery{IndexUID: index, SearchRequest: *req}
		if fed != nil {
			if q.explicitPage {
				return nil, errors.Wrapf(ErrTranslation, "query %d: pagination must be set on the federation, not per query", i)
			}
			mq.FederationOptions = q.federationOptions
		} else {
			if q.federationOptions != nil {
				return nil, errors.Wrapf(ErrTranslation, "query %d: federation options require a federation", i)
			}
			offset, limit := q.pageable.Offset(), q.pageable.Size
			mq.Offset, mq.Limit = &offset, &limit
		}
		out.Queries = append(out.Queries, mq)
	}
	if fed != nil && (fed.Offset < 0 || fed.Limit < 0) {
		return nil, errors.Wrap(ErrTranslation, "negative federation offset or limit")
	}
	return out, nil
}

// translate maps everything except pagination.
func translate(q Query) (*SearchRequest, error) {
	if q.pageable.Page < 0 {
		return nil, errors.Wrapf(ErrTranslation, "negative page %d", q.pageable.Page)
	}
	if q.pageable.Size < 1 {
		return nil, errors.Wrapf(ErrTranslation, "page size %d is less than 1", q.pageable.Size)
	}
	if q.rankingScoreThreshold != nil && (*q.rankingScoreThreshold < 0 || *q.rankingScoreThreshold > 1) {
		return nil, errors.Wrapf(ErrTranslation, "ranking score threshold %v outside [0, 1]", *q.rankingScoreThreshold)
	}
	filter, err := filterValue(q)
	if err != nil {
		return nil, err
	}

	return &SearchRequest{
		Q:                     q.q,
		Filter:                filter,
		Sort:                  q.sort.Strings(),
		Facets:                q.facets,
		AttributesToRetrieve:  q.attributesToRetrieve,
		AttributesToCrop:      q.attributesToCrop,
		CropLength:            q.cropLength,
		CropMarker:            q.cropMarker,
		AttributesToHighlight: q.attributesToHighlight,
		HighlightPreTag:       q.highlightPreTag,
		HighlightPostTag:      q.highlightPostTag,
		MatchingStrategy:      string(q.matchingStrategy),
		ShowRankingScore:      q.showRankingScore,
		RankingScoreThreshold: q.rankingScoreThreshold,
		Locales:               q.locales,
		Distinct:              q.distinct,
	}, nil
}

// filterValue passes the flat list or the groups through unchanged. A typed
// expression alone is sent as a string; next to a list it becomes one more
// AND-ed group.
func filterValue(q Query) (any, error) {
	if len(q.filter) > 0 && len(q.filterArray) > 0 {
		return nil, errors.Wrap(ErrTranslation, "filter and filter array are mutually exclusive")
	}
	var expr string
	if q.filterExpr != nil {
		expr = q.filterExpr.String()
	}

	switch {
	case expr == "" && len(q.filter) > 0:
		return q.filter, nil
	case expr == "" && len(q.filterArray) > 0:
		return q.filterArray, nil
	case expr == "":
		return nil, nil
	case len(q.filter) > 0:
		return [][]string{q.filter, {expr}}, nil
	case len(q.filterArray) > 0:
		groups := make([][]string, 0, len(q.filterArray)+1)
		groups = append(groups, q.filterArray...)
		return append(groups, []string{expr}), nil
	default:
		return expr, nil
	}
}
