package searchodm

import (
	"context"

	"github.com/letmevibethatforyou/searchodm/document"
)

// Transport is the client of the search engine. It executes requests produced by a
// Translator and returns raw responses; connection handling, retries and timeouts are
// its own concern.
type Transport interface {
	// Search executes a single search against an index.
	Search(ctx context.Context, index string, req *SearchRequest) (*SearchResponse, error)

	// MultiSearch executes a batch of searches, federated or not.
	MultiSearch(ctx context.Context, req *MultiSearchRequest) (*MultiSearchResponse, error)

	// UpsertDocuments adds or replaces documents in an index.
	UpsertDocuments(ctx context.Context, index string, docs []*document.Document) error

	// GetDocument fetches one document by id. Missing documents return ErrNotFound.
	GetDocument(ctx context.Context, index, id string) (*document.Document, error)

	// DeleteDocuments removes documents by id.
	DeleteDocuments(ctx context.Context, index string, ids []string) error
}
