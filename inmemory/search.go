package inmemory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm"
	"github.com/letmevibethatforyou/searchodm/document"
)

type scoredDocument struct {
	document *document.Document
	score    float64
	// rank is the share of query terms found, in [0, 1].
	rank float64
}

type evaluation struct {
	matches []scoredDocument
	query   string
}

// Search implements searchodm.Transport.
func (t *Transport) Search(ctx context.Context, name string, req *searchodm.SearchRequest) (*searchodm.SearchResponse, error) {
	startTime := time.Now()

	ev, err := t.evaluate(ctx, name, req)
	if err != nil {
		return nil, err
	}
	offset, limit := 0, defaultLimit
	if req.Offset != nil {
		offset = *req.Offset
	}
	if req.Limit != nil {
		limit = *req.Limit
	}
	if offset < 0 || limit < 0 {
		return nil, errors.Wrap(searchodm.ErrTranslation, "negative offset or limit")
	}

	total := int64(len(ev.matches))
	page := window(ev.matches, offset, limit)
	res := &searchodm.SearchResponse{
		IndexUID:           name,
		Hits:               make([]*document.Document, 0, len(page)),
		Query:              ev.query,
		Offset:             offset,
		Limit:              limit,
		EstimatedTotalHits: &total,
	}
	for _, m := range page {
		res.Hits = append(res.Hits, render(m, req))
	}
	if len(req.Facets) > 0 {
		res.FacetDistribution, res.FacetStats = facets(ev.matches, req.Facets)
	}
	res.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	return res, nil
}

// evaluate matches, filters and sorts the documents of an index.
func (t *Transport) evaluate(ctx context.Context, name string, req *searchodm.SearchRequest) (*evaluation, error) {
	if err := contextError(ctx); err != nil {
		return nil, err
	}
	filter, err := searchodm.ParseFilterValue(req.Filter)
	if err != nil {
		return nil, err
	}
	orders, err := parseSort(req.Sort)
	if err != nil {
		return nil, err
	}
	query := ""
	if req.Q != nil {
		query = *req.Q
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	ix, ok := t.indexes[name]
	if !ok {
		return nil, errors.Wrapf(searchodm.ErrNotFound, "index %q", name)
	}

	ev := &evaluation{query: query}
	for _, doc := range ix.docs {
		if err := contextError(ctx); err != nil {
			return nil, err
		}
		if filter != nil && !evaluateExpression(doc, filter) {
			continue
		}
		score, rank := scoreDocument(doc, query, req.MatchingStrategy)
		if score <= 0 {
			continue
		}
		if req.RankingScoreThreshold != nil && rank < *req.RankingScoreThreshold {
			continue
		}
		ev.matches = append(ev.matches, scoredDocument{document: doc, score: score, rank: rank})
	}

	sortMatches(ev.matches, orders)
	if req.Distinct != "" {
		ev.matches = distinct(ev.matches, req.Distinct)
	}
	return ev, nil
}

func window(matches []scoredDocument, offset, limit int) []scoredDocument {
	start := min(offset, len(matches))
	end := min(start+limit, len(matches))
	return matches[start:end]
}

// scoreDocument calculates the relevance score for a document based on the query.
// With the "all" strategy every term must match; otherwise any term suffices.
func scoreDocument(doc *document.Document, query string, strategy string) (score, rank float64) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 1.0, 1.0 // All documents match empty query
	}

	matchedTerms := 0
	for _, term := range terms {
		termMatched := false
		doc.Range(func(key string, value any) bool {
			if valueContainsTerm(value, term) {
				termMatched = true
				score += 1.0
			}
			return true
		})
		if termMatched {
			matchedTerms++
		}
	}

	if matchedTerms == 0 {
		return 0, 0
	}
	if strategy == string(searchodm.MatchingAll) && matchedTerms < len(terms) {
		return 0, 0
	}

	// Boost score if all terms matched
	if matchedTerms == len(terms) {
		score *= 1.5
	}
	return score, float64(matchedTerms) / float64(len(terms))
}

// valueContainsTerm checks if a value contains the search term.
func valueContainsTerm(value any, term string) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(strings.ToLower(v), term)
	case []any:
		return slices.ContainsFunc(v, func(item any) bool { return valueContainsTerm(item, term) })
	case *document.Document:
		found := false
		v.Range(func(_ string, item any) bool {
			found = valueContainsTerm(item, term)
			return !found
		})
		return found
	default:
		return strings.Contains(strings.ToLower(formatScalar(v)), term)
	}
}

type sortField struct {
	field string
	desc  bool
}

// parseSort reads "<field>:<asc|desc>" strings.
func parseSort(sorts []string) ([]sortField, error) {
	out := make([]sortField, 0, len(sorts))
	for _, s := range sorts {
		field, dir, ok := strings.Cut(s, ":")
		if !ok || field == "" {
			return nil, errors.Wrapf(searchodm.ErrTranslation, "invalid sort %q", s)
		}
		switch dir {
		case "asc":
			out = append(out, sortField{field: field})
		case "desc":
			out = append(out, sortField{field: field, desc: true})
		default:
			return nil, errors.Wrapf(searchodm.ErrTranslation, "invalid sort direction in %q", s)
		}
	}
	return out, nil
}

// sortMatches orders by the sort fields, then by descending score. The sort is
// stable, so ties keep insertion order.
func sortMatches(matches []scoredDocument, fields []sortField) {
	slices.SortStableFunc(matches, func(a, b scoredDocument) int {
		for _, sf := range fields {
			var c int
			if sf.field == "_rankingScore" {
				c = cmp.Compare(a.rank, b.rank)
			} else {
				va, _ := lookup(a.document, sf.field)
				vb, _ := lookup(b.document, sf.field)
				c = compareValues(va, vb)
			}
			if c != 0 {
				if sf.desc {
					return -c
				}
				return c
			}
		}
		return cmp.Compare(b.score, a.score)
	})
}

// distinct keeps the first match for each value of attr.
func distinct(matches []scoredDocument, attr string) []scoredDocument {
	seen := make(map[string]bool)
	out := matches[:0:0]
	for _, m := range matches {
		v, ok := lookup(m.document, attr)
		if ok && v != nil {
			key := formatScalar(v)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, m)
	}
	return out
}

// render copies a matched document into a hit, applying attribute selection,
// formatting and the ranking score.
func render(m scoredDocument, req *searchodm.SearchRequest) *document.Document {
	hit := project(m.document, req.AttributesToRetrieve)
	if formatted := format(m.document, req); formatted != nil {
		_ = hit.Set("_formatted", formatted)
	}
	if req.ShowRankingScore {
		_ = hit.Set("_rankingScore", m.rank)
	}
	return hit
}

func project(doc *document.Document, attrs []string) *document.Document {
	if len(attrs) == 0 || slices.Contains(attrs, "*") {
		return doc.Clone()
	}
	out := document.New()
	doc.Range(func(key string, value any) bool {
		if slices.Contains(attrs, key) {
			_ = out.Set(key, value)
		}
		return true
	})
	if id, err := doc.ID(); err == nil {
		out.SetID(id)
	}
	return out.Clone()
}

// facets counts the values of each facet over all matches.
func facets(matches []scoredDocument, names []string) (map[string]map[string]int64, map[string]searchodm.FacetStats) {
	dist := make(map[string]map[string]int64, len(names))
	var stats map[string]searchodm.FacetStats
	for _, name := range names {
		counts := make(map[string]int64)
		var st searchodm.FacetStats
		numeric := false
		for _, m := range matches {
			v, ok := lookup(m.document, name)
			if !ok {
				continue
			}
			for _, item := range flatten(v) {
				counts[formatScalar(item)]++
				if f, ok := toFloat64(item); ok {
					if !numeric {
						st = searchodm.FacetStats{Min: f, Max: f}
						numeric = true
					}
					st.Min, st.Max = min(st.Min, f), max(st.Max, f)
				}
			}
		}
		dist[name] = counts
		if numeric {
			if stats == nil {
				stats = make(map[string]searchodm.FacetStats)
			}
			stats[name] = st
		}
	}
	return dist, stats
}

func flatten(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		var out []any
		for _, item := range val {
			out = append(out, flatten(item)...)
		}
		return out
	case *document.Document:
		return nil
	default:
		return []any{val}
	}
}
