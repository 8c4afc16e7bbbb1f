package inmemory

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm"
	"github.com/letmevibethatforyou/searchodm/document"
)

// defaultLimit is the engine's page size when a request carries none.
const defaultLimit = 20

var _ searchodm.Transport = (*Transport)(nil)

// Transport implements searchodm.Transport over in-process indexes. Documents keep
// their insertion order; an upsert of an existing id replaces it in place.
type Transport struct {
	mu      sync.RWMutex
	indexes map[string]*index
}

type index struct {
	docs []*document.Document
	ids  map[string]int // maps document id to position in docs
}

// New creates a new in-memory transport.
// The transport is ready to use and is safe for concurrent operations.
func New() *Transport {
	return &Transport{indexes: make(map[string]*index)}
}

// UpsertDocuments stores copies of docs. Each must carry an id, either as its
// side-channel id or under the "id" key.
func (t *Transport) UpsertDocuments(ctx context.Context, name string, docs []*document.Document) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	staged := make([]*document.Document, len(docs))
	for i, doc := range docs {
		id, ok := documentID(doc)
		if !ok {
			return errors.Wrapf(searchodm.ErrMapping, "document %d has no id", i)
		}
		staged[i] = doc.Clone()
		staged[i].SetID(id)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ix, ok := t.indexes[name]
	if !ok {
		ix = &index{ids: make(map[string]int)}
		t.indexes[name] = ix
	}
	for _, doc := range staged {
		id, _ := doc.ID()
		if pos, exists := ix.ids[id]; exists {
			ix.docs[pos] = doc
			continue
		}
		ix.ids[id] = len(ix.docs)
		ix.docs = append(ix.docs, doc)
	}
	return nil
}

// AddJSON parses a JSON object and stores it under id.
func (t *Transport) AddJSON(ctx context.Context, name, id string, data []byte) error {
	doc, err := document.Parse(data)
	if err != nil {
		return errors.Wrap(err, "failed to parse JSON")
	}
	doc.SetID(id)
	return t.UpsertDocuments(ctx, name, []*document.Document{doc})
}

// GetDocument returns a copy of the stored document.
func (t *Transport) GetDocument(ctx context.Context, name, id string) (*document.Document, error) {
	if err := contextError(ctx); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	ix, ok := t.indexes[name]
	if !ok {
		return nil, errors.Wrapf(searchodm.ErrNotFound, "index %q", name)
	}
	pos, ok := ix.ids[id]
	if !ok {
		return nil, errors.Wrapf(searchodm.ErrNotFound, "document %q in index %q", id, name)
	}
	return ix.docs[pos].Clone(), nil
}

// DeleteDocuments removes documents by id. Unknown ids are ignored.
func (t *Transport) DeleteDocuments(ctx context.Context, name string, ids []string) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ix, ok := t.indexes[name]
	if !ok {
		return nil
	}
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	kept := ix.docs[:0]
	for _, doc := range ix.docs {
		id, _ := doc.ID()
		if !remove[id] {
			kept = append(kept, doc)
		}
	}
	clear(ix.docs[len(kept):])
	ix.docs = kept

	// Rebuild index
	ix.ids = make(map[string]int, len(kept))
	for i, doc := range kept {
		id, _ := doc.ID()
		ix.ids[id] = i
	}
	return nil
}

// Clear removes every index.
// This method is safe for concurrent use.
func (t *Transport) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.indexes = make(map[string]*index)
}

// Size returns the number of documents stored in an index.
// This method is safe for concurrent use.
func (t *Transport) Size(name string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if ix, ok := t.indexes[name]; ok {
		return len(ix.docs)
	}
	return 0
}

func documentID(doc *document.Document) (string, bool) {
	if doc.HasID() {
		id, _ := doc.ID()
		return id, id != ""
	}
	v, ok := doc.Get("id")
	if !ok || v == nil {
		return "", false
	}
	id := formatScalar(v)
	return id, id != ""
}

func contextError(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return searchodm.ErrTimeout
	default:
		return searchodm.ErrCanceled
	}
}
