package indexclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/docsync/internal/apperr"
	"github.com/maneesh/docsync/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestIngest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ingest", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "report.pdf", header.Filename)
		assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
		assert.Equal(t, "%PDF-1.7", string(data))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"File processed successfully","doc_id":"v1","chunks":12}`))
	})

	res, err := client.Ingest(context.Background(), "tok", []byte("%PDF-1.7"), "report.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, &IngestResult{IndexRef: "v1", ChunkCount: 12}, res)
}

func TestIngestWithoutDocID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chunks":3}`))
	})

	_, err := client.Ingest(context.Background(), "tok", []byte("x"), "a.txt", "text/plain")
	assert.Equal(t, apperr.IndexBackendUnavailable, apperr.KindOf(err))
}

func TestErrorStatusCarriesDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"GEMINI_API_KEY environment variable is not set."}`))
	})

	_, err := client.Query(context.Background(), "tok", "summary", "")
	require.Error(t, err)
	assert.Equal(t, apperr.IndexBackendUnavailable, apperr.KindOf(err))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "GEMINI_API_KEY environment variable is not set.", statusErr.Detail)
}

func TestQueryScopedToEntry(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/query", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"query": "summary", "doc_id": "v1"}, body)

		w.Write([]byte(`{"answer":"It is a report.","sources":[{"text":"chunk"}]}`))
	})

	answer, err := client.Query(context.Background(), "tok", "summary", "v1")
	require.NoError(t, err)
	assert.Equal(t, "It is a report.", answer.Answer)
	assert.Len(t, answer.Sources, 1)
}

func TestQueryUnscopedOmitsDocID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, scoped := body["doc_id"]
		assert.False(t, scoped)
		w.Write([]byte(`{"answer":"none"}`))
	})

	answer, err := client.Query(context.Background(), "tok", "summary", "")
	require.NoError(t, err)
	assert.NotNil(t, answer.Sources)
}

func TestDeleteEntry(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/documents/v1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"status":"success"}`))
	})

	require.NoError(t, client.DeleteEntry(context.Background(), "tok", "v1"))
}

func TestListEntries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/documents", r.URL.Path)
		w.Write([]byte(`[{"doc_id":"v1","chunks":12},{"doc_id":"v2","chunks":3}]`))
	})

	entries, err := client.ListEntries(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, []models.IndexEntry{{IndexRef: "v1", ChunkCount: 12}, {IndexRef: "v2", ChunkCount: 3}}, entries)
}

func TestUndecodableReply(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway</html>`))
	})

	_, err := client.ListEntries(context.Background(), "tok")
	assert.Equal(t, apperr.IndexBackendUnavailable, apperr.KindOf(err))
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := New(srv.URL, 50*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := client.ListEntries(context.Background(), "tok")
	assert.Equal(t, apperr.IndexBackendUnavailable, apperr.KindOf(err))
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(url, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := client.DeleteEntry(context.Background(), "tok", "v1")
	assert.Equal(t, apperr.IndexBackendUnavailable, apperr.KindOf(err))
}

func TestStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/status", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"status":"operational"}`))
	})

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "operational", status["status"])
}

func TestErrorDetail(t *testing.T) {
	assert.Equal(t, "boom", errorDetail([]byte(`{"detail":"boom"}`)))
	assert.Equal(t, "oops", errorDetail([]byte("oops")))
	assert.Equal(t, "bad", errorDetail([]byte(`{"error":"bad"}`)))
	assert.Equal(t, `[{"loc":["body"]}]`, errorDetail([]byte(`{"detail":[{"loc":["body"]}]}`)))
}
