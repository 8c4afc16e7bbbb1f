package searchodm

import "slices"

// QueryBuilder accumulates the settings of a Query. It is a value type: every With
// method returns an updated copy, so a partially configured builder can be reused to
// produce variants. Slices passed in are not copied.
type QueryBuilder struct {
	q Query
}

// NewQuery returns a builder for a query on page 0 with DefaultPageSize results.
func NewQuery() QueryBuilder {
	return QueryBuilder{q: Query{pageable: PageRequest(0, DefaultPageSize)}}
}

// Build returns the configured Query.
func (b QueryBuilder) Build() Query { return b.q }

func (b QueryBuilder) WithQ(q string) QueryBuilder {
	b.q.q = &q
	return b
}

func (b QueryBuilder) WithPageable(p Pageable) QueryBuilder {
	b.q.pageable = p
	b.q.explicitPage = true
	return b
}

// WithSort appends orders after any already configured.
func (b QueryBuilder) WithSort(s Sort) QueryBuilder {
	b.q.sort = append(slices.Clip(b.q.sort), s...)
	return b
}

// WithFilter sets the flat filter list. Entries are OR-combined.
func (b QueryBuilder) WithFilter(filter ...string) QueryBuilder {
	b.q.filter = filter
	return b
}

// WithFilterArray sets filter groups. Groups are AND-combined, entries of a group OR-combined.
func (b QueryBuilder) WithFilterArray(groups [][]string) QueryBuilder {
	b.q.filterArray = groups
	return b
}

// WithFilterExpr sets a typed filter. It is AND-combined with the other filter forms.
func (b QueryBuilder) WithFilterExpr(expr Expression) QueryBuilder {
	b.q.filterExpr = expr
	return b
}

func (b QueryBuilder) WithAttributesToRetrieve(attrs ...string) QueryBuilder {
	b.q.attributesToRetrieve = attrs
	return b
}

func (b QueryBuilder) WithAttributesToCrop(attrs ...string) QueryBuilder {
	b.q.attributesToCrop = attrs
	return b
}

func (b QueryBuilder) WithCropLength(n int) QueryBuilder {
	b.q.cropLength = n
	return b
}

func (b QueryBuilder) WithCropMarker(marker string) QueryBuilder {
	b.q.cropMarker = marker
	return b
}

func (b QueryBuilder) WithAttributesToHighlight(attrs ...string) QueryBuilder {
	b.q.attributesToHighlight = attrs
	return b
}

func (b QueryBuilder) WithHighlightTags(pre, post string) QueryBuilder {
	b.q.highlightPreTag = pre
	b.q.highlightPostTag = post
	return b
}

func (b QueryBuilder) WithMatchingStrategy(s MatchingStrategy) QueryBuilder {
	b.q.matchingStrategy = s
	return b
}

func (b QueryBuilder) WithFacets(facets ...string) QueryBuilder {
	b.q.facets = facets
	return b
}

func (b QueryBuilder) WithShowRankingScore(show bool) QueryBuilder {
	b.q.showRankingScore = show
	return b
}

// WithRankingScoreThreshold drops hits scoring below threshold, which must lie in [0, 1].
func (b QueryBuilder) WithRankingScoreThreshold(threshold float64) QueryBuilder {
	b.q.rankingScoreThreshold = &threshold
	return b
}

func (b QueryBuilder) WithLocales(locales ...string) QueryBuilder {
	b.q.locales = locales
	return b
}

func (b QueryBuilder) WithDistinct(attr string) QueryBuilder {
	b.q.distinct = attr
	return b
}

// WithIndex targets a specific index instead of the caller's default.
func (b QueryBuilder) WithIndex(index string) QueryBuilder {
	b.q.index = index
	return b
}

// WithFederationOptions sets this query's contribution to a federated multi-search.
func (b QueryBuilder) WithFederationOptions(opts FederationOptions) QueryBuilder {
	b.q.federationOptions = &opts
	return b
}
