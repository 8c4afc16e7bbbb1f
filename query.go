package searchodm

import "slices"

// DefaultPageSize is the page size of a query built without an explicit Pageable.
const DefaultPageSize = 10

// Direction is the direction of a sort order.
type Direction string

const (
	DirAsc  Direction = "asc"
	DirDesc Direction = "desc"
)

// Order sorts on one property.
type Order struct {
	Property  string
	Direction Direction
}

// String encodes the order as "<property>:<asc|desc>".
func (o Order) String() string {
	dir := o.Direction
	if dir == "" {
		dir = DirAsc
	}
	return o.Property + ":" + string(dir)
}

// Sort is an ordered list of sort orders; earlier orders take precedence.
type Sort []Order

// By sorts ascending on each property.
func By(props ...string) Sort { return orders(DirAsc, props) }

// Asc sorts ascending on each property.
func Asc(props ...string) Sort { return orders(DirAsc, props) }

// Desc sorts descending on each property.
func Desc(props ...string) Sort { return orders(DirDesc, props) }

func orders(dir Direction, props []string) Sort {
	s := make(Sort, len(props))
	for i, p := range props {
		s[i] = Order{Property: p, Direction: dir}
	}
	return s
}

// And returns s followed by other.
func (s Sort) And(other Sort) Sort {
	return append(slices.Clip(s), other...)
}

// Strings encodes every order.
func (s Sort) Strings() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	for i, o := range s {
		out[i] = o.String()
	}
	return out
}

// Pageable selects a zero-based page of a given size.
type Pageable struct {
	Page int
	Size int
}

// PageRequest returns the Pageable for page (zero-based) of size results.
func PageRequest(page, size int) Pageable {
	return Pageable{Page: page, Size: size}
}

// Offset is the number of results skipped before the page.
func (p Pageable) Offset() int { return p.Page * p.Size }

// MatchingStrategy controls how the engine matches query terms.
type MatchingStrategy string

const (
	MatchingLast      MatchingStrategy = "last"
	MatchingAll       MatchingStrategy = "all"
	MatchingFrequency MatchingStrategy = "frequency"
)

// Query is an immutable search request. Build one with NewQuery.
type Query struct {
	q                     *string
	sort                  Sort
	pageable              Pageable
	explicitPage          bool
	attributesToRetrieve  []string
	attributesToCrop      []string
	cropLength            int
	cropMarker            string
	attributesToHighlight []string
	highlightPreTag       string
	highlightPostTag      string
	filter                []string
	filterArray           [][]string
	filterExpr            Expression
	matchingStrategy      MatchingStrategy
	facets                []string
	showRankingScore      bool
	rankingScoreThreshold *float64
	locales               []string
	distinct              string
	index                 string
	federationOptions     *FederationOptions
}

// Q returns the free-text term and whether one was set.
func (q Query) Q() (string, bool) {
	if q.q == nil {
		return "", false
	}
	return *q.q, true
}

func (q Query) Sort() Sort { return q.sort }

func (q Query) Pageable() Pageable { return q.pageable }

// ExplicitPageable reports whether the pageable was set by the caller rather than defaulted.
func (q Query) ExplicitPageable() bool { return q.explicitPage }

func (q Query) AttributesToRetrieve() []string  { return q.attributesToRetrieve }
func (q Query) AttributesToCrop() []string      { return q.attributesToCrop }
func (q Query) CropLength() int                 { return q.cropLength }
func (q Query) CropMarker() string              { return q.cropMarker }
func (q Query) AttributesToHighlight() []string { return q.attributesToHighlight }

// HighlightTags returns the pre and post highlight tags.
func (q Query) HighlightTags() (pre, post string) { return q.highlightPreTag, q.highlightPostTag }

// Filter returns the flat filter list, OR-combined.
func (q Query) Filter() []string { return q.filter }

// FilterArray returns the filter groups; groups are AND-combined, entries of a group OR-combined.
func (q Query) FilterArray() [][]string { return q.filterArray }

// FilterExpr returns the typed filter expression, or nil.
func (q Query) FilterExpr() Expression { return q.filterExpr }

func (q Query) MatchingStrategy() MatchingStrategy { return q.matchingStrategy }
func (q Query) Facets() []string                   { return q.facets }
func (q Query) ShowRankingScore() bool             { return q.showRankingScore }

// RankingScoreThreshold returns the threshold and whether one was set.
func (q Query) RankingScoreThreshold() (float64, bool) {
	if q.rankingScoreThreshold == nil {
		return 0, false
	}
	return *q.rankingScoreThreshold, true
}

func (q Query) Locales() []string { return q.locales }
func (q Query) Distinct() string  { return q.distinct }

// Index returns the index override, or "" when the caller's default applies.
func (q Query) Index() string { return q.index }

func (q Query) FederationOptions() *FederationOptions { return q.federationOptions }
