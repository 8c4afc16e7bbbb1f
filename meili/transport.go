// Package meili implements searchodm.Transport over the engine's HTTP API.
package meili

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm"
	"github.com/letmevibethatforyou/searchodm/document"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ searchodm.Transport = (*Transport)(nil)

// Transport talks to one engine instance. Credentials are fetched on first use and
// reused afterwards; a failed fetch is not retried.
type Transport struct {
	getConn    func() (conn, error)
	httpClient *http.Client
	tracer     trace.Tracer
}

type conn struct {
	base   *url.URL
	apiKey string
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.httpClient = c }
}

// NewTransport creates a transport that resolves its host and key with fetchSecrets.
func NewTransport(fetchSecrets FetchSecrets, opts ...Option) *Transport {
	t := &Transport{
		httpClient: http.DefaultClient,
		tracer:     otel.Tracer("searchodm-meili"),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.getConn = sync.OnceValues(func() (conn, error) {
		secrets, err := fetchSecrets()
		if err != nil {
			return conn{}, errors.Wrap(err, "failed to fetch secrets")
		}
		if secrets.Host == "" {
			return conn{}, errors.New("Host is empty")
		}
		base, err := url.Parse(strings.TrimRight(secrets.Host, "/"))
		if err != nil {
			return conn{}, errors.Wrapf(err, "invalid host %q", secrets.Host)
		}
		return conn{base: base, apiKey: secrets.APIKey}, nil
	})
	return t
}

// Search implements searchodm.Transport.
func (t *Transport) Search(ctx context.Context, index string, req *searchodm.SearchRequest) (*searchodm.SearchResponse, error) {
	ctx, span := t.tracer.Start(ctx, "meili.search",
		trace.WithAttributes(attribute.String("meili.index_uid", index)),
	)
	defer span.End()

	var res searchodm.SearchResponse
	if err := t.do(ctx, span, http.MethodPost, indexPath(index, "search"), req, &res); err != nil {
		return nil, err
	}
	if res.IndexUID == "" {
		res.IndexUID = index
	}
	span.SetAttributes(attribute.Int("meili.hit_count", len(res.Hits)))
	span.SetStatus(codes.Ok, "search completed")
	return &res, nil
}

// MultiSearch implements searchodm.Transport.
func (t *Transport) MultiSearch(ctx context.Context, req *searchodm.MultiSearchRequest) (*searchodm.MultiSearchResponse, error) {
	ctx, span := t.tracer.Start(ctx, "meili.multi_search",
		trace.WithAttributes(
			attribute.Int("meili.query_count", len(req.Queries)),
			attribute.Bool("meili.federated", req.Federated()),
		),
	)
	defer span.End()

	var res searchodm.MultiSearchResponse
	if err := t.do(ctx, span, http.MethodPost, []string{"multi-search"}, req, &res); err != nil {
		return nil, err
	}
	span.SetStatus(codes.Ok, "multi-search completed")
	return &res, nil
}

// UpsertDocuments implements searchodm.Transport. The engine indexes asynchronously;
// the call returns once the batch is enqueued.
func (t *Transport) UpsertDocuments(ctx context.Context, index string, docs []*document.Document) error {
	if len(docs) == 0 {
		return nil
	}
	ctx, span := t.tracer.Start(ctx, "meili.upsert_documents",
		trace.WithAttributes(
			attribute.String("meili.index_uid", index),
			attribute.Int("meili.document_count", len(docs)),
		),
	)
	defer span.End()

	if err := t.do(ctx, span, http.MethodPost, indexPath(index, "documents"), docs, nil); err != nil {
		return err
	}
	span.SetStatus(codes.Ok, "documents enqueued")
	return nil
}

// GetDocument implements searchodm.Transport.
func (t *Transport) GetDocument(ctx context.Context, index, id string) (*document.Document, error) {
	ctx, span := t.tracer.Start(ctx, "meili.get_document",
		trace.WithAttributes(
			attribute.String("meili.index_uid", index),
			attribute.String("meili.document_id", id),
		),
	)
	defer span.End()

	doc := document.New()
	if err := t.do(ctx, span, http.MethodGet, indexPath(index, "documents", id), nil, doc); err != nil {
		return nil, err
	}
	doc.SetID(id)
	span.SetStatus(codes.Ok, "document fetched")
	return doc, nil
}

// DeleteDocuments implements searchodm.Transport.
func (t *Transport) DeleteDocuments(ctx context.Context, index string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, span := t.tracer.Start(ctx, "meili.delete_documents",
		trace.WithAttributes(
			attribute.String("meili.index_uid", index),
			attribute.Int("meili.document_count", len(ids)),
		),
	)
	defer span.End()

	if err := t.do(ctx, span, http.MethodPost, indexPath(index, "documents", "delete-batch"), ids, nil); err != nil {
		return err
	}
	span.SetStatus(codes.Ok, "deletion enqueued")
	return nil
}

// apiError is the error body returned by the engine.
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	Link    string `json:"link"`
}

// do sends body as JSON to the route made of segments and decodes the response into
// out when out is non-nil.
func (t *Transport) do(ctx context.Context, span trace.Span, method string, segments []string, body, out any) error {
	fail := func(err error, msg string) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return err
	}

	path, err := escapePath(segments)
	if err != nil {
		return fail(err, "invalid request path")
	}

	c, err := t.getConn()
	if err != nil {
		return fail(errors.WithSecondaryError(searchodm.ErrBackendUnavailable, err), "failed to resolve credentials")
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fail(errors.Wrap(err, "failed to encode request"), "failed to encode request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), reader)
	if err != nil {
		return fail(errors.Wrap(err, "failed to build request"), "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fail(transportError(ctx, err), "request failed")
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(transportError(ctx, err), "failed to read response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fail(statusError(resp.StatusCode, raw), "engine returned "+resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fail(errors.WithSecondaryError(searchodm.ErrBackendUnavailable,
			errors.Wrap(err, "failed to decode response")), "failed to decode response")
	}
	return nil
}

func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return searchodm.ErrTimeout
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return searchodm.ErrCanceled
	default:
		return errors.WithSecondaryError(searchodm.ErrBackendUnavailable, err)
	}
}

// statusError maps an error response. Missing resources become ErrNotFound and
// rejected requests ErrTranslation; everything else is ErrBackendUnavailable.
func statusError(status int, body []byte) error {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil || e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	cause := errors.Newf("engine responded %d %s: %s", status, e.Code, e.Message)

	switch {
	case status == http.StatusNotFound:
		return errors.WithSecondaryError(searchodm.ErrNotFound, cause)
	case status == http.StatusBadRequest:
		return errors.WithSecondaryError(searchodm.ErrTranslation, cause)
	default:
		return errors.WithSecondaryError(searchodm.ErrBackendUnavailable, cause)
	}
}

func indexPath(index string, parts ...string) []string {
	return append([]string{"indexes", index}, parts...)
}

// escapePath escapes each segment. Empty and dot segments are rejected since
// path cleaning would route them elsewhere.
func escapePath(segments []string) (string, error) {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return "", errors.WithSecondaryError(searchodm.ErrTranslation,
				errors.Newf("invalid path segment %q", seg))
		}
		escaped[i] = url.PathEscape(seg)
	}
	return strings.Join(escaped, "/"), nil
}
