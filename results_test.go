package searchodm

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm/convert"
	"github.com/letmevibethatforyou/searchodm/mapping"
)

type film struct {
	ID     string
	Title  string
	Year   int
	Genres []string
}

func (film) Mapping(m *mapping.Mapper[film]) {
	m.Index("films")
	mapping.ID(m, "id", func(f *film) *string { return &f.ID })
	mapping.Attr(m, "title", func(f *film) *string { return &f.Title })
	mapping.Attr(m, "year", func(f *film) *int { return &f.Year })
	mapping.List(m, "genres", func(f *film) *[]string { return &f.Genres })
}

func newEngine() *mapping.Engine {
	return mapping.NewEngine(mapping.NewStore(), convert.New())
}

func decodeSearch(t *testing.T, raw string) *SearchResponse {
	t.Helper()
	var res SearchResponse
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return &res
}

func decodeMulti(t *testing.T, raw string) *MultiSearchResponse {
	t.Helper()
	var res MultiSearchResponse
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return &res
}

func TestToSearchHits(t *testing.T) {
	res := decodeSearch(t, `{
		"hits": [
			{"id": "1", "title": "Carol", "year": 2015, "genres": ["Romance", "Drama"], "_rankingScore": 0.75,
			 "_formatted": {"title": "<em>Carol</em>"}},
			{"id": "2", "title": "Brooklyn", "year": 2015, "unknown": true}
		],
		"query": "carol",
		"processingTimeMs": 12,
		"offset": 0,
		"limit": 2,
		"estimatedTotalHits": 3,
		"facetDistribution": {"genres": {"Drama": 2}},
		"facetStats": {"year": {"min": 2015, "max": 2015}}
	}`)

	hits, err := ToSearchHits[film](newEngine(), res)
	if err != nil {
		t.Fatalf("ToSearchHits failed: %v", err)
	}

	if hits.TotalHits() != 3 {
		t.Errorf("Expected total hits 3, got %d", hits.TotalHits())
	}
	if hits.Len() != 2 {
		t.Errorf("Expected 2 hits, got %d", hits.Len())
	}
	if hits.ExecutionDuration() != 12*time.Millisecond {
		t.Errorf("Expected 12ms, got %v", hits.ExecutionDuration())
	}
	if hits.Query() != "carol" || hits.Limit() != 2 {
		t.Errorf("Unexpected metadata query=%q limit=%d", hits.Query(), hits.Limit())
	}

	first := hits.At(0)
	if c := first.Content(); c.ID != "1" || c.Title != "Carol" || c.Year != 2015 || len(c.Genres) != 2 {
		t.Errorf("Unexpected content %+v", c)
	}
	if score, ok := first.RankingScore(); !ok || score != 0.75 {
		t.Errorf("Expected ranking score 0.75, got %v (%v)", score, ok)
	}
	if title, _ := first.Formatted().Get("title"); title != "<em>Carol</em>" {
		t.Errorf("Expected formatted title, got %v", title)
	}
	if first.Query() != "carol" || first.ProcessingTime() != 12*time.Millisecond {
		t.Errorf("Expected hit to carry query echo and time")
	}
	if first.FacetDistribution()["genres"]["Drama"] != 2 || first.FacetStats()["year"].Max != 2015 {
		t.Errorf("Expected hit to carry facets")
	}
	if first.Federation() != nil {
		t.Errorf("Expected no federation info on a plain search")
	}

	second := hits.At(1)
	if _, ok := second.RankingScore(); ok {
		t.Errorf("Expected no ranking score on second hit")
	}
	if second.Formatted() != nil {
		t.Errorf("Expected no formatted copy on second hit")
	}
}

func TestToSearchHits_TotalFallsBackToTotalHits(t *testing.T) {
	res := decodeSearch(t, `{"hits": [{"id": "1"}], "totalHits": 7, "processingTimeMs": 1}`)
	hits, err := ToSearchHits[film](newEngine(), res)
	if err != nil {
		t.Fatalf("ToSearchHits failed: %v", err)
	}
	if hits.TotalHits() != 7 {
		t.Errorf("Expected total 7, got %d", hits.TotalHits())
	}
}

func TestToSearchHits_IsReadOnly(t *testing.T) {
	res := decodeSearch(t, `{"hits": [{"id": "1"}, {"id": "2"}]}`)
	hits, _ := ToSearchHits[film](newEngine(), res)

	copied := hits.SearchHits()
	copied[0] = copied[1]
	if hits.At(0).Content().ID != "1" {
		t.Errorf("Expected hits to be unaffected by changes to the returned slice")
	}

	var ids []string
	for _, h := range hits.All() {
		ids = append(ids, h.Content().ID)
	}
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
		t.Errorf("Expected ordered iteration, got %v", ids)
	}
}

func TestToSearchHits_ConversionFailure(t *testing.T) {
	res := decodeSearch(t, `{"hits": [{"id": "1", "year": "not a number"}]}`)
	_, err := ToSearchHits[film](newEngine(), res)
	if !errors.Is(err, ErrConversion) {
		t.Errorf("Expected ErrConversion, got %v", err)
	}
}

func TestToMultiSearchHits_Concatenates(t *testing.T) {
	res := decodeMulti(t, `{
		"results": [
			{"indexUid": "films", "hits": [{"id": "1"}, {"id": "2"}], "query": "a", "processingTimeMs": 5, "limit": 2, "estimatedTotalHits": 4},
			{"indexUid": "shows", "hits": [{"id": "3"}], "query": "b", "processingTimeMs": 9, "limit": 2, "estimatedTotalHits": 1}
		]
	}`)

	hits, err := ToMultiSearchHits[film](newEngine(), res)
	if err != nil {
		t.Fatalf("ToMultiSearchHits failed: %v", err)
	}

	var ids []string
	for _, c := range hits.Contents() {
		ids = append(ids, c.ID)
	}
	if len(ids) != 3 || ids[0] != "1" || ids[1] != "2" || ids[2] != "3" {
		t.Errorf("Expected per-query order [1 2 3], got %v", ids)
	}
	if hits.TotalHits() != 5 {
		t.Errorf("Expected summed total 5, got %d", hits.TotalHits())
	}
	if hits.ExecutionDuration() != 9*time.Millisecond {
		t.Errorf("Expected slowest query time 9ms, got %v", hits.ExecutionDuration())
	}
	if hits.At(2).Index() != "shows" || hits.At(2).Query() != "b" {
		t.Errorf("Expected third hit to keep its query's metadata")
	}
}

func TestToMultiSearchHits_Federated(t *testing.T) {
	res := decodeMulti(t, `{
		"hits": [
			{"id": "1", "title": "Carol", "_federation": {"indexUid": "films", "queriesPosition": 0, "weightedRankingScore": 0.9}},
			{"id": "7", "title": "Fleabag", "_federation": {"indexUid": "shows", "queriesPosition": 1, "weightedRankingScore": 0.45}}
		],
		"processingTimeMs": 12,
		"offset": 0,
		"limit": 2,
		"estimatedTotalHits": 3
	}`)
	raw := res.Hits[0]

	hits, err := ToMultiSearchHits[film](newEngine(), res)
	if err != nil {
		t.Fatalf("ToMultiSearchHits failed: %v", err)
	}
	if hits.TotalHits() != 3 || hits.Len() != 2 {
		t.Errorf("Expected 3 total and 2 hits, got %d and %d", hits.TotalHits(), hits.Len())
	}
	if hits.ExecutionDuration() != 12*time.Millisecond {
		t.Errorf("Expected 12ms, got %v", hits.ExecutionDuration())
	}

	fed := hits.At(1).Federation()
	if fed == nil {
		t.Fatalf("Expected federation info")
	}
	if fed.IndexUID != "shows" || fed.QueriesPosition != 1 || fed.WeightedRankingScore != 0.45 {
		t.Errorf("Unexpected federation info %+v", fed)
	}
	if hits.At(1).Index() != "shows" {
		t.Errorf("Expected hit index from federation info, got %q", hits.At(1).Index())
	}
	if hits.At(1).Content().Title != "Fleabag" {
		t.Errorf("Unexpected content %+v", hits.At(1).Content())
	}
	if !raw.Has("_federation") {
		t.Errorf("Expected the raw response to be left intact")
	}
}

func TestToMultiSearchHits_BadFederation(t *testing.T) {
	res := decodeMulti(t, `{"hits": [{"id": "1", "_federation": "films"}]}`)
	if _, err := ToMultiSearchHits[film](newEngine(), res); !errors.Is(err, ErrConversion) {
		t.Errorf("Expected ErrConversion, got %v", err)
	}
}
