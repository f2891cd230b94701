// Package indexclient is the HTTP client of the external vector-index
// backend. Every failure is reported as apperr.IndexBackendUnavailable.
package indexclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/docsync/internal/apperr"
	"github.com/maneesh/docsync/internal/metrics"
	"github.com/maneesh/docsync/internal/models"
)

var tracer = otel.Tracer("docsync-indexclient")

// maxErrorBody caps how much of an error response is read for diagnostics
const maxErrorBody = 4096

// IngestResult is the backend's acknowledgement of an ingest
type IngestResult struct {
	IndexRef   string `json:"doc_id"`
	ChunkCount int    `json:"chunks"`
}

// Answer is the backend's reply to a question
type Answer struct {
	Answer  string            `json:"answer"`
	Sources []json.RawMessage `json:"sources"`
}

type queryRequest struct {
	Query string `json:"query"`
	DocID string `json:"doc_id,omitempty"`
}

// Client talks to the index backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client with a bounded per-call timeout
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With(slog.String("component", "index_client")),
	}
}

// Ingest uploads a document for chunking and embedding.
// POST /api/ingest, multipart field "file".
func (c *Client) Ingest(ctx context.Context, token string, data []byte, filename, contentType string) (*IngestResult, error) {
	const op = "ingest"
	ctx, span := tracer.Start(ctx, "index.ingest",
		trace.WithAttributes(
			attribute.String("file_name", filename),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := c.ingest(ctx, token, data, filename, contentType)
	metrics.ObserveIndexCall(op, start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("index_ref", result.IndexRef),
		attribute.Int("chunk_count", result.ChunkCount),
	)
	return result, nil
}

func (c *Client) ingest(ctx context.Context, token string, data []byte, filename, contentType string) (*IngestResult, error) {
	const op = "indexclient.ingest"

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, fmt.Errorf("error creating form part: %w", err))
	}
	if _, err := part.Write(data); err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, fmt.Errorf("error writing form part: %w", err))
	}
	if err := writer.Close(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, fmt.Errorf("error closing form: %w", err))
	}

	var result IngestResult
	if err := c.do(ctx, op, http.MethodPost, "/api/ingest", token, writer.FormDataContentType(), &body, &result); err != nil {
		return nil, err
	}
	if result.IndexRef == "" {
		return nil, apperr.New(apperr.IndexBackendUnavailable, op, "ingest reply carried no doc_id")
	}
	return &result, nil
}

// Query asks a question, scoped to one entry when indexRef is non-empty.
// POST /api/query.
func (c *Client) Query(ctx context.Context, token, question, indexRef string) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "index.query",
		trace.WithAttributes(
			attribute.String("index_ref", indexRef),
			attribute.Bool("scoped", indexRef != ""),
		),
	)
	defer span.End()

	payload, err := json.Marshal(queryRequest{Query: question, DocID: indexRef})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "indexclient.query", err)
	}

	start := time.Now()
	var answer Answer
	err = c.do(ctx, "indexclient.query", http.MethodPost, "/api/query", token, "application/json", bytes.NewReader(payload), &answer)
	metrics.ObserveIndexCall("query", start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if answer.Sources == nil {
		answer.Sources = []json.RawMessage{}
	}
	span.SetAttributes(attribute.Int("source_count", len(answer.Sources)))
	return &answer, nil
}

// DeleteEntry removes an index entry. DELETE /api/documents/{doc_id}.
func (c *Client) DeleteEntry(ctx context.Context, token, indexRef string) error {
	ctx, span := tracer.Start(ctx, "index.delete_entry",
		trace.WithAttributes(attribute.String("index_ref", indexRef)),
	)
	defer span.End()

	start := time.Now()
	err := c.do(ctx, "indexclient.delete_entry", http.MethodDelete, "/api/documents/"+url.PathEscape(indexRef), token, "", nil, nil)
	metrics.ObserveIndexCall("delete", start, err)
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// ListEntries returns every live entry. GET /api/documents.
func (c *Client) ListEntries(ctx context.Context, token string) ([]models.IndexEntry, error) {
	ctx, span := tracer.Start(ctx, "index.list_entries")
	defer span.End()

	start := time.Now()
	var entries []models.IndexEntry
	err := c.do(ctx, "indexclient.list_entries", http.MethodGet, "/api/documents", token, "", nil, &entries)
	metrics.ObserveIndexCall("list", start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if entries == nil {
		entries = []models.IndexEntry{}
	}
	span.SetAttributes(attribute.Int("entry_count", len(entries)))
	return entries, nil
}

// Status reports backend readiness. GET /api/status.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "index.status")
	defer span.End()

	start := time.Now()
	status := map[string]any{}
	err := c.do(ctx, "indexclient.status", http.MethodGet, "/api/status", "", "", nil, &status)
	metrics.ObserveIndexCall("status", start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return status, nil
}

// do performs one request and decodes a JSON reply into out when non-nil
func (c *Client) do(ctx context.Context, op, method, path, token, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperr.Wrap(apperr.IndexBackendUnavailable, op, fmt.Errorf("error creating request: %w", err))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("index backend request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return apperr.Wrap(apperr.IndexBackendUnavailable, op, fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Detail: errorDetail(raw)}
		c.logger.Warn("index backend returned error status",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("detail", statusErr.Detail),
		)
		return apperr.Wrap(apperr.IndexBackendUnavailable, op, statusErr)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.IndexBackendUnavailable, op, fmt.Errorf("error decoding response: %w", err))
	}
	return nil
}

// StatusError carries a non-2xx reply from the backend
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("index backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("index backend returned status %d: %s", e.StatusCode, e.Detail)
}

// errorDetail extracts the backend's "detail" field, falling back to the raw body
func errorDetail(raw []byte) string {
	var body struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch d := body.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
