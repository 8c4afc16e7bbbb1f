package inmemory

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm"
	"github.com/letmevibethatforyou/searchodm/document"
)

const books = "books"

func newBooks(t *testing.T) *Transport {
	t.Helper()
	transport := New()

	// Add test documents
	docs := []struct {
		id   string
		data string
	}{
		{"1", `{"title": "Go Programming", "author": "John Doe", "year": 2020, "category": "programming", "price": 29.99}`},
		{"2", `{"title": "Python Basics", "author": "Jane Smith", "year": 2021, "category": "programming", "price": 24.99}`},
		{"3", `{"title": "Data Science", "author": "Bob Johnson", "year": 2020, "category": "data", "price": 39.99}`},
		{"4", `{"title": "Machine Learning", "author": "Alice Brown", "year": 2022, "category": "data", "price": 44.99}`},
		{"5", `{"title": "Web Development", "author": "John Doe", "year": 2021, "category": "programming", "price": 34.99}`},
	}

	for _, doc := range docs {
		if err := transport.AddJSON(context.Background(), books, doc.id, []byte(doc.data)); err != nil {
			t.Fatalf("Failed to add document %s: %v", doc.id, err)
		}
	}
	return transport
}

func hitIDs(t *testing.T, hits []*document.Document) []string {
	t.Helper()
	ids := make([]string, len(hits))
	for i, h := range hits {
		id, err := h.ID()
		if err != nil {
			t.Fatalf("hit %d has no id: %v", i, err)
		}
		ids[i] = id
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestInMemoryTransport(t *testing.T) {
	transport := newBooks(t)
	ctx := context.Background()

	search := func(t *testing.T, req *searchodm.SearchRequest) *searchodm.SearchResponse {
		t.Helper()
		res, err := transport.Search(ctx, books, req)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		return res
	}

	t.Run("BasicSearch", func(t *testing.T) {
		q := "programming"
		res := search(t, &searchodm.SearchRequest{Q: &q})
		if res.Total() != 3 {
			t.Errorf("Expected 3 results, got %d", res.Total())
		}
		if res.Query != "programming" {
			t.Errorf("Expected query echo %q, got %q", "programming", res.Query)
		}
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		limit := 2
		res := search(t, &searchodm.SearchRequest{Limit: &limit})
		if res.Total() != 5 {
			t.Errorf("Expected 5 results, got %d", res.Total())
		}
		if len(res.Hits) != 2 {
			t.Errorf("Expected 2 hits, got %d", len(res.Hits))
		}
	})

	filters := map[string]struct {
		filter   any
		expected int64
	}{
		"equality":        {filter: "category = programming", expected: 3},
		"range":           {filter: "price 25 TO 35", expected: 2},
		"comparison":      {filter: "year > 2020", expected: 3},
		"and":             {filter: "category = programming AND year >= 2021", expected: 2},
		"or":              {filter: `category = data OR author = "John Doe"`, expected: 4},
		"not":             {filter: "NOT category = data", expected: 3},
		"in":              {filter: "year IN [2020, 2022]", expected: 3},
		"case_insensitive": {filter: "category = PROGRAMMING", expected: 3},
		"flat_list_is_or": {filter: []string{"category = data", "year = 2021"}, expected: 4},
		"groups_are_and":  {filter: [][]string{{"category = data", "year = 2021"}, {"price > 40"}}, expected: 1},
		"decoded_json":    {filter: []any{[]any{"category = data"}, "year = 2022"}, expected: 1},
	}
	for name, tc := range filters {
		t.Run("Filter_"+name, func(t *testing.T) {
			res := search(t, &searchodm.SearchRequest{Filter: tc.filter})
			if res.Total() != tc.expected {
				t.Errorf("Expected %d results, got %d", tc.expected, res.Total())
			}
		})
	}

	t.Run("InvalidFilter", func(t *testing.T) {
		_, err := transport.Search(ctx, books, &searchodm.SearchRequest{Filter: "year >"})
		if !errors.Is(err, searchodm.ErrTranslation) {
			t.Errorf("Expected ErrTranslation, got %v", err)
		}
	})

	t.Run("UnknownIndex", func(t *testing.T) {
		_, err := transport.Search(ctx, "missing", &searchodm.SearchRequest{})
		if !errors.Is(err, searchodm.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestDocumentOperations(t *testing.T) {
	transport := newBooks(t)
	ctx := context.Background()

	if transport.Size(books) != 5 {
		t.Fatalf("Expected 5 documents, got %d", transport.Size(books))
	}

	t.Run("Get", func(t *testing.T) {
		doc, err := transport.GetDocument(ctx, books, "3")
		if err != nil {
			t.Fatalf("GetDocument failed: %v", err)
		}
		if title, _ := doc.Get("title"); title != "Data Science" {
			t.Errorf("Expected title %q, got %v", "Data Science", title)
		}
		if id, _ := doc.ID(); id != "3" {
			t.Errorf("Expected id 3, got %q", id)
		}
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		doc, _ := transport.GetDocument(ctx, books, "3")
		_ = doc.Set("title", "changed")
		again, _ := transport.GetDocument(ctx, books, "3")
		if title, _ := again.Get("title"); title != "Data Science" {
			t.Errorf("Expected stored document to be unchanged, got %v", title)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := transport.GetDocument(ctx, books, "42")
		if !errors.Is(err, searchodm.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpsertReplacesInPlace", func(t *testing.T) {
		doc := document.New()
		_ = doc.Set("id", "2")
		_ = doc.Set("title", "Python Advanced")
		if err := transport.UpsertDocuments(ctx, books, []*document.Document{doc}); err != nil {
			t.Fatalf("UpsertDocuments failed: %v", err)
		}
		if transport.Size(books) != 5 {
			t.Errorf("Expected 5 documents, got %d", transport.Size(books))
		}
		res, _ := transport.Search(ctx, books, &searchodm.SearchRequest{})
		if ids := hitIDs(t, res.Hits); ids[1] != "2" {
			t.Errorf("Expected replaced document to keep its position, got %v", ids)
		}
	})

	t.Run("UpsertWithoutID", func(t *testing.T) {
		doc := document.New()
		_ = doc.Set("title", "Anonymous")
		err := transport.UpsertDocuments(ctx, books, []*document.Document{doc})
		if !errors.Is(err, searchodm.ErrMapping) {
			t.Errorf("Expected ErrMapping, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := transport.DeleteDocuments(ctx, books, []string{"1", "4", "unknown"}); err != nil {
			t.Fatalf("DeleteDocuments failed: %v", err)
		}
		if transport.Size(books) != 3 {
			t.Errorf("Expected 3 documents, got %d", transport.Size(books))
		}
		if _, err := transport.GetDocument(ctx, books, "5"); err != nil {
			t.Errorf("Expected document 5 to remain, got %v", err)
		}
		if _, err := transport.GetDocument(ctx, books, "1"); !errors.Is(err, searchodm.ErrNotFound) {
			t.Errorf("Expected document 1 to be gone, got %v", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		transport.Clear()
		if transport.Size(books) != 0 {
			t.Errorf("Expected empty transport, got %d", transport.Size(books))
		}
	})
}
