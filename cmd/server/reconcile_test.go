package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/docsync/internal/config"
	"github.com/maneesh/docsync/internal/lifecycle"
	"github.com/maneesh/docsync/internal/storage"
)

func TestReconcileWithoutBlobStore(t *testing.T) {
	index := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/documents" || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"doc_id":"v1","chunks":3},{"doc_id":"v9","chunks":1}]`))
	}))
	defer index.Close()

	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("INDEX_BACKEND_URL", index.URL)
	t.Setenv("MINIO_ENDPOINT", "blobs.invalid/path")
	t.Setenv("REDIS_ENABLED", "false")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// the serving app cannot start without a usable blob store
	_, err = newApp(cfg, logger)
	require.Error(t, err)

	a := newReconcileApp(cfg, logger)
	defer a.close()
	assert.Nil(t, a.blobs)
	assert.Nil(t, a.cache)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	a.db = storage.NewDBHolder(func(context.Context) (*sql.DB, error) { return db, nil })

	cols := []string{"id", "owner_id", "filename", "storage_location", "content_type", "created_at", "index_ref"}
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("ORDER BY created_at DESC").WithArgs("U1").WillReturnRows(
		sqlmock.NewRows(cols).
			AddRow("doc-2", "U1", "notes.txt", "documents/U1/b/notes.txt", "text/plain", created.Add(time.Minute), "v2").
			AddRow("doc-1", "U1", "report.pdf", "documents/U1/a/report.pdf", "application/pdf", created, "v1"),
	)
	mock.ExpectQuery("index_ref IS NULL").WithArgs("U1").WillReturnRows(sqlmock.NewRows(cols))

	var out bytes.Buffer
	require.NoError(t, runReconcile(context.Background(), a, "U1", &out))
	require.NoError(t, mock.ExpectationsWereMet())

	var report lifecycle.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "U1", report.OwnerID)
	assert.Empty(t, report.Unindexed)
	require.Len(t, report.Dangling, 1)
	assert.Equal(t, "doc-2", report.Dangling[0].ID)
	require.Len(t, report.Orphaned, 1)
	assert.Equal(t, "v9", report.Orphaned[0].IndexRef)
}
