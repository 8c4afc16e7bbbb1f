// Package movies holds the sample entity the command-line tools index and query.
package movies

import (
	"math/rand/v2"
	"time"

	"github.com/letmevibethatforyou/searchodm/convert"
	"github.com/letmevibethatforyou/searchodm/mapping"
	"github.com/segmentio/ksuid"
	"github.com/shopspring/decimal"
)

// IndexName is the index movies are stored in.
const IndexName = "movies"

// Movie is a film in the sample catalogue.
type Movie struct {
	ID       ksuid.KSUID
	Title    string
	Overview string
	Genres   []string
	Year     int
	Rating   decimal.Decimal
	Released time.Time
	Studio   Studio
}

// Studio is embedded in Movie as a nested object.
type Studio struct {
	Name    string
	Country string
}

func (Movie) Mapping(m *mapping.Mapper[Movie]) {
	m.Index(IndexName)
	mapping.ID(m, "id", func(e *Movie) *ksuid.KSUID { return &e.ID })
	mapping.Attr(m, "title", func(e *Movie) *string { return &e.Title })
	mapping.Attr(m, "overview", func(e *Movie) *string { return &e.Overview })
	mapping.List(m, "genres", func(e *Movie) *[]string { return &e.Genres })
	mapping.Attr(m, "year", func(e *Movie) *int { return &e.Year })
	mapping.Attr(m, "rating", func(e *Movie) *decimal.Decimal { return &e.Rating })
	mapping.Attr(m, "released", func(e *Movie) *time.Time { return &e.Released })
	mapping.Embed(m, "studio", func(e *Movie) *Studio { return &e.Studio })
}

func (Studio) Mapping(m *mapping.Mapper[Studio]) {
	mapping.Attr(m, "name", func(e *Studio) *string { return &e.Name })
	mapping.Attr(m, "country", func(e *Studio) *string { return &e.Country })
}

// NewEngine returns a mapping engine that also converts ksuid identifiers.
func NewEngine() *mapping.Engine {
	registry := convert.New()
	convert.Register(registry, func(id ksuid.KSUID) (string, error) { return id.String(), nil }, ksuid.Parse)
	return mapping.NewEngine(mapping.NewStore(), registry)
}

var (
	titles = []string{
		"The Long Night", "Harbor Lights", "Silent Orbit", "Paper Crowns", "Red Meridian",
		"Glass Garden", "The Last Ferry", "Northbound", "Quiet Thunder", "Salt and Ash",
	}
	overviews = []string{
		"A retired detective takes one final case in a city that has forgotten her.",
		"Two strangers share a lighthouse through a winter storm.",
		"A crew drifts beyond radio range and must decide who to trust.",
		"A family of forgers is hired to fake a royal lineage.",
		"An engineer races to stop a dam failure upstream of her hometown.",
	}
	genres  = []string{"Drama", "Thriller", "Science Fiction", "Comedy", "Romance", "Crime", "Documentary"}
	studios = []Studio{
		{Name: "Northlight", Country: "CA"},
		{Name: "Blue Harbor", Country: "US"},
		{Name: "Kestrel", Country: "GB"},
		{Name: "Meridian", Country: "FR"},
	}
)

// Random returns a movie with a fresh id and plausible random fields.
func Random() Movie {
	year := rand.IntN(30) + 1995
	picked := map[string]bool{}
	for range rand.IntN(3) + 1 {
		picked[genres[rand.IntN(len(genres))]] = true
	}
	movieGenres := make([]string, 0, len(picked))
	for _, g := range genres {
		if picked[g] {
			movieGenres = append(movieGenres, g)
		}
	}

	return Movie{
		ID:       ksuid.New(),
		Title:    titles[rand.IntN(len(titles))],
		Overview: overviews[rand.IntN(len(overviews))],
		Genres:   movieGenres,
		Year:     year,
		Rating:   decimal.New(int64(rand.IntN(91)+10), -1), // 1.0-10.0
		Released: time.Date(year, time.Month(rand.IntN(12)+1), rand.IntN(28)+1, 0, 0, 0, 0, time.UTC),
		Studio:   studios[rand.IntN(len(studios))],
	}
}
