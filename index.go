package searchodm

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm/document"
	"github.com/letmevibethatforyou/searchodm/mapping"
)

// Index binds an entity type to a transport. Its index name comes from the entity's
// mapping unless overridden with WithIndexName.
type Index[T any] struct {
	transport  Transport
	engine     *mapping.Engine
	entity     *mapping.Entity[T]
	translator *Translator
}

// IndexOption configures an Index.
type IndexOption func(*indexConfig)

type indexConfig struct {
	name string
}

// WithIndexName targets name instead of the index declared by the mapping.
func WithIndexName(name string) IndexOption {
	return func(c *indexConfig) { c.name = name }
}

// NewIndex resolves T's mapping and returns an Index for it.
func NewIndex[T any](t Transport, e *mapping.Engine, opts ...IndexOption) (*Index[T], error) {
	entity, err := mapping.EntityFor[T](e.Store())
	if err != nil {
		return nil, err
	}
	cfg := indexConfig{name: entity.IndexName()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		return nil, errors.Wrapf(ErrMapping, "no index name for %s", entity.Type())
	}
	return &Index[T]{
		transport:  t,
		engine:     e,
		entity:     entity,
		translator: NewTranslator(cfg.name),
	}, nil
}

// Name returns the index name.
func (ix *Index[T]) Name() string { return ix.translator.DefaultIndex() }

// Entity returns the resolved mapping of T.
func (ix *Index[T]) Entity() *mapping.Entity[T] { return ix.entity }

// Translator returns the translator used for queries on this index.
func (ix *Index[T]) Translator() *Translator { return ix.translator }

// Save upserts one entity.
func (ix *Index[T]) Save(ctx context.Context, entity *T) error {
	return ix.SaveAll(ctx, []*T{entity})
}

// SaveAll upserts entities in one batch. Nothing is sent when any of them fails to map.
func (ix *Index[T]) SaveAll(ctx context.Context, entities []*T) error {
	docs := make([]*document.Document, 0, len(entities))
	for i, entity := range entities {
		doc, err := mapping.ToDocument(ix.engine, entity)
		if err != nil {
			return errors.Wrapf(err, "entity %d", i)
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil
	}
	return ix.transport.UpsertDocuments(ctx, ix.Name(), docs)
}

// Get fetches and decodes the document with the given id. A missing document
// yields ErrNotFound.
func (ix *Index[T]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := ix.transport.GetDocument(ctx, ix.Name(), id)
	if err != nil {
		return nil, err
	}
	if !doc.HasID() {
		doc.SetID(id)
	}
	return mapping.Read[T](ix.engine, doc)
}

// Delete removes the document with the given id.
func (ix *Index[T]) Delete(ctx context.Context, id string) error {
	return ix.DeleteAll(ctx, []string{id})
}

// DeleteAll removes the documents with the given ids.
func (ix *Index[T]) DeleteAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return ix.transport.DeleteDocuments(ctx, ix.Name(), ids)
}

// Search runs q against its index, this index unless q overrides it.
func (ix *Index[T]) Search(ctx context.Context, q Query) (*SearchHits[T], error) {
	index, err := ix.translator.IndexFor(q)
	if err != nil {
		return nil, err
	}
	req, err := ix.translator.SearchRequest(q)
	if err != nil {
		return nil, err
	}
	res, err := ix.transport.Search(ctx, index, req)
	if err != nil {
		return nil, err
	}
	return ToSearchHits[T](ix.engine, res)
}

// MultiSearch runs queries as one batch. With a non-nil federation the results are
// merged into a single ranked list.
func (ix *Index[T]) MultiSearch(ctx context.Context, queries []Query, fed *Federation) (*SearchHits[T], error) {
	req, err := ix.translator.MultiSearchRequest(queries, fed)
	if err != nil {
		return nil, err
	}
	res, err := ix.transport.MultiSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	return ToMultiSearchHits[T](ix.engine, res)
}
