package algolia

import (
	"context"
	"fmt"
	"strconv"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/errs"
	"github.com/algolia/algoliasearch-client-go/v3/algolia/opt"
	"github.com/algolia/algoliasearch-client-go/v3/algolia/search"
	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm"
	"github.com/letmevibethatforyou/searchodm/document"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const objectIDKey = "objectID"

var _ searchodm.Transport = (*Transport)(nil)

// Transport implements searchodm.Transport on top of Algolia. Sorting and federated
// multi-search have no Algolia equivalent and return ErrNotImplemented.
type Transport struct {
	client *Client
}

// NewTransport creates a transport over client.
func NewTransport(client *Client) *Transport {
	return &Transport{client: client}
}

// Search implements searchodm.Transport.
func (t *Transport) Search(ctx context.Context, indexName string, req *searchodm.SearchRequest) (*searchodm.SearchResponse, error) {
	ctx, span := t.client.tracer.Start(ctx, "algolia.search",
		trace.WithAttributes(
			attribute.String("algolia.index_name", indexName),
		),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, fail(span, contextError(err), "search canceled")
	}

	params, err := buildSearchParams(req)
	if err != nil {
		return nil, fail(span, err, "unsupported search request")
	}

	index, err := t.client.getIndex(indexName)
	if err != nil {
		return nil, fail(span, errors.WithSecondaryError(
			searchodm.ErrBackendUnavailable,
			errors.Wrapf(err, "failed to get Algolia client"),
		), "failed to get Algolia client")
	}

	query := ""
	if req.Q != nil {
		query = *req.Q
	}
	res, err := index.Search(query, params...)
	if err != nil {
		return nil, fail(span, backendError(err, "Algolia search failed"), fmt.Sprintf("search on index %s failed", indexName))
	}

	out, err := toSearchResponse(indexName, req, res)
	if err != nil {
		return nil, fail(span, err, "failed to convert hits")
	}
	span.SetAttributes(attribute.Int("algolia.hit_count", len(out.Hits)))
	span.SetStatus(codes.Ok, "search completed")
	return out, nil
}

// MultiSearch runs each query in turn. Federated batches are not supported.
func (t *Transport) MultiSearch(ctx context.Context, req *searchodm.MultiSearchRequest) (*searchodm.MultiSearchResponse, error) {
	if req.Federated() {
		return nil, errors.WithSecondaryError(searchodm.ErrNotImplemented,
			errors.New("Algolia has no federated multi-search"))
	}

	out := &searchodm.MultiSearchResponse{Results: make([]searchodm.SearchResponse, 0, len(req.Queries))}
	for i := range req.Queries {
		q := &req.Queries[i]
		res, err := t.Search(ctx, q.IndexUID, &q.SearchRequest)
		if err != nil {
			return nil, errors.Wrapf(err, "query %d", i)
		}
		out.Results = append(out.Results, *res)
	}
	return out, nil
}

// UpsertDocuments implements searchodm.Transport. Each document's id becomes its objectID.
func (t *Transport) UpsertDocuments(ctx context.Context, indexName string, docs []*document.Document) error {
	if len(docs) == 0 {
		return nil
	}

	ctx, span := t.client.tracer.Start(ctx, "algolia.batch_save_objects",
		trace.WithAttributes(
			attribute.String("algolia.index_name", indexName),
			attribute.Int("algolia.object_count", len(docs)),
		),
	)
	defer span.End()

	objects := make([]map[string]interface{}, 0, len(docs))
	for i, doc := range docs {
		id, ok := objectID(doc)
		if !ok {
			return fail(span, errors.Wrapf(searchodm.ErrMapping, "document %d has no id", i), "document without id")
		}
		object := doc.ToMap()
		object[objectIDKey] = id
		objects = append(objects, object)
	}

	if err := ctx.Err(); err != nil {
		return fail(span, contextError(err), "save canceled")
	}

	index, err := t.client.getIndex(indexName)
	if err != nil {
		return fail(span, errors.WithSecondaryError(searchodm.ErrBackendUnavailable, err), "failed to get Algolia client")
	}

	if _, err := index.SaveObjects(objects); err != nil {
		return fail(span,
			backendError(err, fmt.Sprintf("failed to batch save objects to Algolia index %s", indexName)),
			fmt.Sprintf("failed to batch save %d objects to index %s", len(objects), indexName))
	}

	span.SetStatus(codes.Ok, fmt.Sprintf("batch saved %d objects successfully", len(objects)))
	return nil
}

// GetDocument implements searchodm.Transport.
func (t *Transport) GetDocument(ctx context.Context, indexName, id string) (*document.Document, error) {
	ctx, span := t.client.tracer.Start(ctx, "algolia.get_object",
		trace.WithAttributes(
			attribute.String("algolia.index_name", indexName),
			attribute.String("algolia.object_id", id),
		),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, fail(span, contextError(err), "get canceled")
	}

	index, err := t.client.getIndex(indexName)
	if err != nil {
		return nil, fail(span, errors.WithSecondaryError(searchodm.ErrBackendUnavailable, err), "failed to get Algolia client")
	}

	var object map[string]interface{}
	if err := index.GetObject(id, &object); err != nil {
		if _, ok := errs.IsAlgoliaErrWithCode(err, 404); ok {
			return nil, fail(span, errors.Wrapf(searchodm.ErrNotFound, "object %s in index %s", id, indexName), "object not found")
		}
		return nil, fail(span, backendError(err, fmt.Sprintf("failed to get object from Algolia index %s", indexName)), "get failed")
	}

	doc := fromObject(object)
	doc.SetID(id)
	span.SetStatus(codes.Ok, "object fetched successfully")
	return doc, nil
}

// DeleteDocuments implements searchodm.Transport.
func (t *Transport) DeleteDocuments(ctx context.Context, indexName string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, span := t.client.tracer.Start(ctx, "algolia.batch_delete_objects",
		trace.WithAttributes(
			attribute.String("algolia.index_name", indexName),
			attribute.Int("algolia.object_count", len(ids)),
		),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return fail(span, contextError(err), "delete canceled")
	}

	index, err := t.client.getIndex(indexName)
	if err != nil {
		return fail(span, errors.WithSecondaryError(searchodm.ErrBackendUnavailable, err), "failed to get Algolia client")
	}

	if _, err := index.DeleteObjects(ids); err != nil {
		return fail(span,
			backendError(err, fmt.Sprintf("failed to batch delete objects from Algolia index %s", indexName)),
			fmt.Sprintf("failed to batch delete %d objects from index %s", len(ids), indexName))
	}

	span.SetStatus(codes.Ok, fmt.Sprintf("batch deleted %d objects successfully", len(ids)))
	return nil
}

// buildSearchParams converts a search request to Algolia search parameters.
// Offsets are expressed as pages, so the offset must be a multiple of the limit.
func buildSearchParams(req *searchodm.SearchRequest) ([]interface{}, error) {
	var params []interface{}

	limit := searchodm.DefaultPageSize
	if req.Limit != nil {
		limit = *req.Limit
	}
	params = append(params, opt.HitsPerPage(limit))
	if req.Offset != nil && *req.Offset > 0 {
		if limit == 0 || *req.Offset%limit != 0 {
			return nil, errors.WithSecondaryError(searchodm.ErrNotImplemented,
				errors.Newf("offset %d is not a multiple of limit %d", *req.Offset, limit))
		}
		params = append(params, opt.Page(*req.Offset/limit))
	}

	filters, err := convertFilter(req.Filter)
	if err != nil {
		return nil, err
	}
	if filters != "" {
		params = append(params, opt.Filters(filters))
	}

	// Custom sorting needs replica indices configured per sort order.
	if len(req.Sort) > 0 {
		return nil, errors.WithSecondaryError(searchodm.ErrNotImplemented,
			errors.Newf("sorting by %v requires Algolia replica indices", req.Sort))
	}

	if len(req.Facets) > 0 {
		params = append(params, opt.Facets(req.Facets...))
	}
	if len(req.AttributesToRetrieve) > 0 {
		params = append(params, opt.AttributesToRetrieve(req.AttributesToRetrieve...))
	}
	if len(req.AttributesToHighlight) > 0 {
		params = append(params, opt.AttributesToHighlight(req.AttributesToHighlight...))
	}
	if req.HighlightPreTag != "" {
		params = append(params, opt.HighlightPreTag(req.HighlightPreTag))
	}
	if req.HighlightPostTag != "" {
		params = append(params, opt.HighlightPostTag(req.HighlightPostTag))
	}
	if len(req.AttributesToCrop) > 0 {
		snippets := make([]string, len(req.AttributesToCrop))
		for i, attr := range req.AttributesToCrop {
			snippets[i] = attr
			if req.CropLength > 0 {
				snippets[i] += ":" + strconv.Itoa(req.CropLength)
			}
		}
		params = append(params, opt.AttributesToSnippet(snippets...))
	}
	if req.CropMarker != "" {
		params = append(params, opt.SnippetEllipsisText(req.CropMarker))
	}

	return params, nil
}

func toSearchResponse(indexName string, req *searchodm.SearchRequest, res search.QueryRes) (*searchodm.SearchResponse, error) {
	total := int64(res.NbHits)
	out := &searchodm.SearchResponse{
		IndexUID:           indexName,
		Hits:               make([]*document.Document, 0, len(res.Hits)),
		Query:              res.Query,
		ProcessingTimeMs:   int64(res.ProcessingTimeMS),
		Offset:             res.Page * res.HitsPerPage,
		Limit:              res.HitsPerPage,
		EstimatedTotalHits: &total,
	}

	for _, hit := range res.Hits {
		doc := fromObject(hit)
		if formatted := formattedCopy(hit); formatted != nil {
			if err := doc.Set("_formatted", formatted); err != nil {
				return nil, err
			}
		}
		out.Hits = append(out.Hits, doc)
	}

	if len(res.Facets) > 0 {
		out.FacetDistribution = make(map[string]map[string]int64, len(res.Facets))
		for facet, counts := range res.Facets {
			dist := make(map[string]int64, len(counts))
			for value, n := range counts {
				dist[value] = int64(n)
			}
			out.FacetDistribution[facet] = dist
		}
	}

	// hitsPerPage is missing from some responses.
	if out.Limit == 0 && req.Limit != nil {
		out.Limit = *req.Limit
	}
	return out, nil
}

// fromObject converts an Algolia record to a document, moving objectID to the side channel.
func fromObject(object map[string]interface{}) *document.Document {
	fields := make(map[string]any, len(object))
	for k, v := range object {
		switch k {
		case objectIDKey, "_highlightResult", "_snippetResult", "_rankingInfo":
			continue
		}
		fields[k] = v
	}
	doc := document.FromMap(fields)
	if id, ok := object[objectIDKey].(string); ok {
		doc.SetID(id)
	}
	return doc
}

// formattedCopy merges Algolia's highlight and snippet results into one formatted
// copy of the hit. Snippets win over highlights for the same attribute.
func formattedCopy(hit map[string]interface{}) *document.Document {
	var formatted *document.Document
	for _, key := range []string{"_highlightResult", "_snippetResult"} {
		results, ok := hit[key].(map[string]interface{})
		if !ok {
			continue
		}
		for attr, result := range results {
			fields, ok := result.(map[string]interface{})
			if !ok {
				continue
			}
			value, ok := fields["value"]
			if !ok {
				continue
			}
			if formatted == nil {
				formatted = document.New()
			}
			_ = formatted.Set(attr, value)
		}
	}
	return formatted
}

func objectID(doc *document.Document) (string, bool) {
	if doc.HasID() {
		id, _ := doc.ID()
		return id, id != ""
	}
	switch v, _ := doc.Get("id"); id := v.(type) {
	case string:
		return id, id != ""
	case nil:
		return "", false
	default:
		return fmt.Sprint(id), true
	}
}

func backendError(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return searchodm.ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return searchodm.ErrCanceled
	}
	return errors.WithSecondaryError(searchodm.ErrBackendUnavailable, errors.Wrap(err, msg))
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return searchodm.ErrTimeout
	}
	return searchodm.ErrCanceled
}

func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}
