package mapping

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/letmevibethatforyou/searchodm/convert"
	"github.com/letmevibethatforyou/searchodm/document"
	"github.com/shopspring/decimal"
)

type movie struct {
	ID     string
	Title  string
	Genres []string
}

func (movie) Mapping(m *Mapper[movie]) {
	m.Index("movies")
	ID(m, "id", func(e *movie) *string { return &e.ID })
	Attr(m, "title", func(e *movie) *string { return &e.Title })
	List(m, "genres", func(e *movie) *[]string { return &e.Genres })
}

type studio struct {
	Name    string
	Founded time.Time
}

func (studio) Mapping(m *Mapper[studio]) {
	Attr(m, "name", func(e *studio) *string { return &e.Name })
	Attr(m, "founded", func(e *studio) *time.Time { return &e.Founded })
}

type release struct {
	Key      uuid.UUID
	Released time.Time
	Runtime  time.Duration
	Budget   decimal.Decimal
	Poster   []byte
	Rating   *float64
	Views    int64
	Shows    []time.Time
	Studio   studio
	Partners []studio
	Kind     genre
}

type genre string

func (release) Mapping(m *Mapper[release]) {
	m.Index("releases")
	ID(m, "key", func(e *release) *uuid.UUID { return &e.Key })
	Attr(m, "released", func(e *release) *time.Time { return &e.Released })
	Attr(m, "runtime", func(e *release) *time.Duration { return &e.Runtime })
	Attr(m, "budget", func(e *release) *decimal.Decimal { return &e.Budget })
	Attr(m, "poster", func(e *release) *[]byte { return &e.Poster })
	Ptr(m, "rating", func(e *release) **float64 { return &e.Rating })
	Attr(m, "views", func(e *release) *int64 { return &e.Views })
	List(m, "shows", func(e *release) *[]time.Time { return &e.Shows })
	Embed(m, "studio", func(e *release) *studio { return &e.Studio })
	List(m, "partners", func(e *release) *[]studio { return &e.Partners })
	Attr(m, "kind", func(e *release) *genre { return &e.Kind })
}

type conventional struct {
	ID   int
	Name string
}

func (conventional) Mapping(m *Mapper[conventional]) {
	m.Index("conventional")
	Attr(m, "name", func(e *conventional) *string { return &e.Name })
	Attr(m, "id", func(e *conventional) *int { return &e.ID })
}

type unnamed struct{ ID string }

func (unnamed) Mapping(m *Mapper[unnamed]) {
	ID(m, "id", func(e *unnamed) *string { return &e.ID })
}

type blankIndex struct{ ID string }

func (blankIndex) Mapping(m *Mapper[blankIndex]) {
	m.Index("  ")
	ID(m, "id", func(e *blankIndex) *string { return &e.ID })
}

type noID struct{ Name string }

func (noID) Mapping(m *Mapper[noID]) {
	m.Index("things")
	Attr(m, "name", func(e *noID) *string { return &e.Name })
}

type twoIDs struct{ A, B string }

func (twoIDs) Mapping(m *Mapper[twoIDs]) {
	m.Index("things")
	ID(m, "a", func(e *twoIDs) *string { return &e.A })
	ID(m, "b", func(e *twoIDs) *string { return &e.B })
}

type duplicateNames struct{ A, B string }

func (duplicateNames) Mapping(m *Mapper[duplicateNames]) {
	m.Index("things")
	ID(m, "id", func(e *duplicateNames) *string { return &e.A })
	Attr(m, "id", func(e *duplicateNames) *string { return &e.B })
}

type external struct {
	Code  string
	Label string
}

type optionalID struct {
	ID   *string
	Name string
}

func (optionalID) Mapping(m *Mapper[optionalID]) {
	m.Index("optional")
	Ptr(m, "id", func(e *optionalID) **string { return &e.ID })
	Attr(m, "name", func(e *optionalID) *string { return &e.Name })
}

type strictNumber struct {
	ID    string
	Count int8
}

func (strictNumber) Mapping(m *Mapper[strictNumber]) {
	m.Index("numbers")
	ID(m, "id", func(e *strictNumber) *string { return &e.ID })
	Attr(m, "count", func(e *strictNumber) *int8 { return &e.Count })
}

type opaque struct{ v int }

type withOpaque struct {
	ID    string
	Title string
	Blob  opaque
}

func (withOpaque) Mapping(m *Mapper[withOpaque]) {
	m.Index("opaque")
	ID(m, "id", func(e *withOpaque) *string { return &e.ID })
	Attr(m, "title", func(e *withOpaque) *string { return &e.Title })
	Attr(m, "blob", func(e *withOpaque) *opaque { return &e.Blob })
}

func newEngine() *Engine {
	return NewEngine(NewStore(), convert.New())
}

func TestWrite_MovieExample(t *testing.T) {
	e := newEngine()
	m := movie{ID: "1", Title: "Carol", Genres: []string{"Romance", "Drama"}}

	doc, err := ToDocument(e, &m)
	if err != nil {
		t.Fatalf("ToDocument returned error: %v", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	want := `{"id":"1","title":"Carol","genres":["Romance","Drama"]}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, data)
	}

	id, err := doc.ID()
	if err != nil || id != "1" {
		t.Errorf("Expected side-channel id '1', got '%s' (%v)", id, err)
	}

	parsed, err := document.Parse(data)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	back, err := Read[movie](e, parsed)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if !reflect.DeepEqual(*back, m) {
		t.Errorf("Expected %+v, got %+v", m, *back)
	}
}

func TestWrite_KeysFollowDeclarationOrder(t *testing.T) {
	e := newEngine()
	doc, err := ToDocument(e, &release{})
	if err != nil {
		t.Fatalf("ToDocument returned error: %v", err)
	}
	want := []string{"key", "released", "runtime", "budget", "poster", "rating", "views", "shows", "studio", "partners", "kind"}
	if got := doc.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected keys %v, got %v", want, got)
	}
}

func TestRoundTrip_BuiltinConverters(t *testing.T) {
	e := newEngine()
	rating := 8.5
	r := release{
		Key:      uuid.MustParse("0b5e2cc3-2a8b-4b8f-9e44-1d7f1f2a9b11"),
		Released: time.Date(2015, 11, 20, 0, 0, 0, 0, time.UTC),
		Runtime:  118 * time.Minute,
		Budget:   decimal.RequireFromString("11800000.5"),
		Poster:   []byte("\x89PNG"),
		Rating:   &rating,
		Views:    1 << 40,
		Shows:    []time.Time{time.Date(2016, 1, 1, 20, 30, 0, 0, time.UTC)},
		Studio:   studio{Name: "Number 9", Founded: time.Date(2002, 5, 1, 0, 0, 0, 0, time.UTC)},
		Partners: []studio{{Name: "Film4"}, {Name: "Killer Films"}},
		Kind:     "drama",
	}

	// Through JSON text, as documents travel to and from the engine.
	doc, err := ToDocument(e, &r)
	if err != nil {
		t.Fatalf("ToDocument returned error: %v", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	parsed, err := document.Parse(data)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	got, err := Read[release](e, parsed)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}

	if got.Key != r.Key {
		t.Errorf("Key: expected %v, got %v", r.Key, got.Key)
	}
	if !got.Released.Equal(r.Released) {
		t.Errorf("Released: expected %v, got %v", r.Released, got.Released)
	}
	if got.Runtime != r.Runtime {
		t.Errorf("Runtime: expected %v, got %v", r.Runtime, got.Runtime)
	}
	if !got.Budget.Equal(r.Budget) {
		t.Errorf("Budget: expected %v, got %v", r.Budget, got.Budget)
	}
	if !bytes.Equal(got.Poster, r.Poster) {
		t.Errorf("Poster: expected %v, got %v", r.Poster, got.Poster)
	}
	if got.Rating == nil || *got.Rating != rating {
		t.Errorf("Rating: expected %v, got %v", rating, got.Rating)
	}
	if got.Views != r.Views {
		t.Errorf("Views: expected %d, got %d", r.Views, got.Views)
	}
	if len(got.Shows) != 1 || !got.Shows[0].Equal(r.Shows[0]) {
		t.Errorf("Shows: expected %v, got %v", r.Shows, got.Shows)
	}
	if got.Studio.Name != r.Studio.Name || !got.Studio.Founded.Equal(r.Studio.Founded) {
		t.Errorf("Studio: expected %+v, got %+v", r.Studio, got.Studio)
	}
	if len(got.Partners) != 2 || got.Partners[1].Name != "Killer Films" {
		t.Errorf("Partners: expected %+v, got %+v", r.Partners, got.Partners)
	}
	if got.Kind != r.Kind {
		t.Errorf("Kind: expected %q, got %q", r.Kind, got.Kind)
	}
}

func TestWrite_NestedDocument(t *testing.T) {
	e := newEngine()
	doc, err := ToDocument(e, &release{Studio: studio{Name: "A24"}})
	if err != nil {
		t.Fatalf("ToDocument returned error: %v", err)
	}
	v, _ := doc.Get("studio")
	nested, ok := v.(*document.Document)
	if !ok {
		t.Fatalf("Expected nested document, got %T", v)
	}
	if got := nested.Keys(); !reflect.DeepEqual(got, []string{"name", "founded"}) {
		t.Errorf("Unexpected nested keys %v", got)
	}
	if rating, _ := doc.Get("rating"); rating != nil {
		t.Errorf("Expected nil pointer to be written as null, got %v", rating)
	}
	if partners, _ := doc.Get("partners"); partners != nil {
		t.Errorf("Expected nil slice to be written as null, got %v", partners)
	}
}

func TestRead_IgnoresUnknownKeys(t *testing.T) {
	e := newEngine()
	doc, err := document.Parse([]byte(`{"id":"1","title":"Carol","_rankingScore":0.9,"server":{"x":1}}`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	got, err := Read[movie](e, doc)
	if err != nil {
		t.Fatalf("Expected tolerant read, got %v", err)
	}
	want := movie{ID: "1", Title: "Carol"}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("Expected %+v, got %+v", want, *got)
	}
}

func TestRead_NullLeavesZeroValue(t *testing.T) {
	e := newEngine()
	doc, _ := document.Parse([]byte(`{"key":null,"views":null,"rating":null,"shows":null}`))
	got, err := Read[release](e, doc)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if got.Key != uuid.Nil || got.Views != 0 || got.Rating != nil || got.Shows != nil {
		t.Errorf("Expected zero values, got %+v", got)
	}
}

func TestRead_UsesSideChannelID(t *testing.T) {
	e := newEngine()

	doc := document.New()
	_ = doc.Set("title", "Carol")
	doc.SetID("abc")
	got, err := Read[movie](e, doc)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if got.ID != "abc" {
		t.Errorf("Expected id from side channel, got %q", got.ID)
	}

	numeric := document.New()
	numeric.SetID("42")
	c, err := Read[conventional](e, numeric)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if c.ID != 42 {
		t.Errorf("Expected numeric id 42, got %d", c.ID)
	}
}

func TestWrite_NullIdentifier(t *testing.T) {
	e := newEngine()
	doc, err := ToDocument(e, &optionalID{Name: "x"})
	if err != nil {
		t.Fatalf("ToDocument returned error: %v", err)
	}
	v, ok := doc.Get("id")
	if !ok || v != nil {
		t.Errorf("Expected null id to be written once, got %v (present=%v)", v, ok)
	}
	if doc.HasID() {
		t.Error("Expected side-channel id to stay unset for null identifier")
	}
	if got := doc.Keys(); !reflect.DeepEqual(got, []string{"id", "name"}) {
		t.Errorf("Expected id written exactly once, got keys %v", got)
	}
}

func TestRead_ConversionFailures(t *testing.T) {
	e := NewEngine(NewStore(), convert.Empty())

	src := document.New()
	_ = src.Set("id", "1")
	_ = src.Set("blob", "not an opaque")
	if _, err := Read[withOpaque](e, src); !errors.Is(err, convert.ErrConversion) {
		t.Errorf("Expected ErrConversion, got %v", err)
	}

	bad := document.New()
	_ = bad.Set("count", json.Number("1000"))
	if _, err := Read[strictNumber](e, bad); !errors.Is(err, convert.ErrConversion) {
		t.Errorf("Expected ErrConversion for overflow, got %v", err)
	}

	notArray := document.New()
	_ = notArray.Set("genres", "Drama")
	if _, err := Read[movie](e, notArray); !errors.Is(err, convert.ErrConversion) {
		t.Errorf("Expected ErrConversion for scalar collection, got %v", err)
	}
}

func TestWrite_FailingConverterProducesNoPartialDocument(t *testing.T) {
	r := convert.New()
	convert.Register(r,
		func(o opaque) (string, error) { return "", errors.New("boom") },
		func(s string) (opaque, error) { return opaque{}, nil },
	)
	e := NewEngine(NewStore(), r)

	target := document.New()
	err := Write(e, &withOpaque{ID: "1", Title: "t"}, target)
	if !errors.Is(err, convert.ErrConversion) {
		t.Fatalf("Expected ErrConversion, got %v", err)
	}
	if target.Len() != 0 || target.HasID() {
		t.Errorf("Expected untouched target, got keys %v", target.Keys())
	}
}

func TestEntityFor_Metadata(t *testing.T) {
	s := NewStore()
	ent, err := EntityFor[release](s)
	if err != nil {
		t.Fatalf("EntityFor returned error: %v", err)
	}
	if ent.IndexName() != "releases" {
		t.Errorf("Expected index 'releases', got %q", ent.IndexName())
	}
	if id := ent.IDField(); id.Name != "key" || id.Type != reflect.TypeFor[uuid.UUID]() {
		t.Errorf("Unexpected id field %+v", id)
	}

	shows, ok := ent.Field("shows")
	if !ok || !shows.Collection || shows.Type != reflect.TypeFor[time.Time]() {
		t.Errorf("Unexpected shows field %+v", shows)
	}
	rating, _ := ent.Field("rating")
	if !rating.Nullable {
		t.Error("Expected rating to be nullable")
	}
	st, _ := ent.Field("studio")
	if !st.Embedded {
		t.Error("Expected studio to be embedded")
	}
	if _, ok := ent.Field("missing"); ok {
		t.Error("Expected missing field lookup to fail")
	}
}

func TestEntityFor_IsMemoized(t *testing.T) {
	s := NewStore()
	a, err := EntityFor[movie](s)
	if err != nil {
		t.Fatalf("EntityFor returned error: %v", err)
	}
	b, _ := EntityFor[movie](s)
	if a != b {
		t.Error("Expected the same cached entity")
	}

	other, _ := EntityFor[movie](NewStore())
	if other == a {
		t.Error("Expected separate stores to keep separate caches")
	}
}

func TestEntityFor_Concurrent(t *testing.T) {
	s := NewStore()
	const n = 32
	results := make([]*Entity[release], n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ent, err := EntityFor[release](s)
			if err != nil {
				t.Errorf("EntityFor returned error: %v", err)
				return
			}
			results[i] = ent
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("Goroutine %d got a different entity", i)
		}
	}
}

func TestEntityFor_IDNameConvention(t *testing.T) {
	ent, err := EntityFor[conventional](NewStore())
	if err != nil {
		t.Fatalf("EntityFor returned error: %v", err)
	}
	if ent.IDField().Name != "id" || !ent.IDField().Identifier {
		t.Errorf("Expected fallback to 'id', got %+v", ent.IDField())
	}
}

func TestEntityFor_Errors(t *testing.T) {
	tests := []struct {
		name    string
		resolve func(*Store) error
	}{
		{"blank index name", func(s *Store) error { _, err := EntityFor[blankIndex](s); return err }},
		{"no identifier", func(s *Store) error { _, err := EntityFor[noID](s); return err }},
		{"ambiguous identifier", func(s *Store) error { _, err := EntityFor[twoIDs](s); return err }},
		{"duplicate wire names", func(s *Store) error { _, err := EntityFor[duplicateNames](s); return err }},
		{"missing index name in strict mode", func(s *Store) error { _, err := EntityFor[unnamed](s); return err }},
		{"no mapping", func(s *Store) error { _, err := EntityFor[external](s); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resolve(NewStore())
			if !errors.Is(err, ErrMapping) {
				t.Errorf("Expected ErrMapping, got %v", err)
			}
		})
	}
}

func TestEntityFor_RelaxedIndexName(t *testing.T) {
	ent, err := EntityFor[unnamed](NewStore(WithRelaxedIndexNames()))
	if err != nil {
		t.Fatalf("EntityFor returned error: %v", err)
	}
	if ent.IndexName() != "unnamed" {
		t.Errorf("Expected type name as index, got %q", ent.IndexName())
	}
}

func TestEntityFor_FailureIsNotCached(t *testing.T) {
	s := NewStore()
	if _, err := EntityFor[external](s); !errors.Is(err, ErrMapping) {
		t.Fatalf("Expected ErrMapping, got %v", err)
	}

	Declare(s, func(m *Mapper[external]) {
		m.Index("externals")
		ID(m, "code", func(e *external) *string { return &e.Code })
		Attr(m, "label", func(e *external) *string { return &e.Label })
	})

	ent, err := EntityFor[external](s)
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if ent.IndexName() != "externals" || len(ent.Fields()) != 2 {
		t.Errorf("Unexpected entity %+v", ent.Fields())
	}

	// Other types are unaffected by the earlier failure.
	if _, err := EntityFor[movie](s); err != nil {
		t.Errorf("Expected movie to resolve, got %v", err)
	}
}

func TestFields_ReturnsCopy(t *testing.T) {
	ent, _ := EntityFor[movie](NewStore())
	fields := ent.Fields()
	fields[0].Name = "mutated"
	if ent.Fields()[0].Name != "id" {
		t.Error("Expected Fields to return a copy")
	}
}

type tagged struct {
	ID     string
	Tags   []string
	Labels map[string]string
	Grid   [][]int
	Codes  [2]int
	Hash   [4]byte
}

func TestEntityFor_RejectsNonScalarFields(t *testing.T) {
	tests := map[string]func(m *Mapper[tagged]){
		"attr_slice": func(m *Mapper[tagged]) { Attr(m, "tags", func(e *tagged) *[]string { return &e.Tags }) },
		"attr_map":   func(m *Mapper[tagged]) { Attr(m, "labels", func(e *tagged) *map[string]string { return &e.Labels }) },
		"attr_array": func(m *Mapper[tagged]) { Attr(m, "codes", func(e *tagged) *[2]int { return &e.Codes }) },
		"ptr_slice": func(m *Mapper[tagged]) {
			Ptr(m, "tags", func(e *tagged) **[]string { p := &e.Tags; return &p })
		},
		"list_of_slices": func(m *Mapper[tagged]) { List(m, "grid", func(e *tagged) *[][]int { return &e.Grid }) },
	}

	for name, declare := range tests {
		t.Run(name, func(t *testing.T) {
			s := NewStore()
			Declare(s, func(m *Mapper[tagged]) {
				m.Index("tagged")
				ID(m, "id", func(e *tagged) *string { return &e.ID })
				declare(m)
			})
			if _, err := EntityFor[tagged](s); !errors.Is(err, ErrMapping) {
				t.Errorf("Expected ErrMapping, got %v", err)
			}
		})
	}
}

func TestRoundTrip_ListSurvivesJSON(t *testing.T) {
	s := NewStore()
	Declare(s, func(m *Mapper[tagged]) {
		m.Index("tagged")
		ID(m, "id", func(e *tagged) *string { return &e.ID })
		List(m, "tags", func(e *tagged) *[]string { return &e.Tags })
		Attr(m, "hash", func(e *tagged) *[4]byte { return &e.Hash })
	})
	reg := convert.New()
	convert.Register(reg,
		func(h [4]byte) (string, error) { return string(h[:]), nil },
		func(s string) ([4]byte, error) { var h [4]byte; copy(h[:], s); return h, nil },
	)
	e := NewEngine(s, reg)

	in := &tagged{ID: "t1", Tags: []string{"noir", "heist"}, Hash: [4]byte{'a', 'b', 'c', 'd'}}
	doc, err := ToDocument(e, in)
	if err != nil {
		t.Fatalf("ToDocument failed: %v", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	parsed, err := document.Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	out, err := Read[tagged](e, parsed)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !reflect.DeepEqual(out.Tags, in.Tags) || out.Hash != in.Hash {
		t.Errorf("Expected %+v, got %+v", in, out)
	}
}
