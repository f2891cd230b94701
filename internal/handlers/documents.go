package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/docsync/internal/apperr"
	"github.com/maneesh/docsync/internal/indexclient"
	"github.com/maneesh/docsync/internal/lifecycle"
	"github.com/maneesh/docsync/internal/models"
	"github.com/maneesh/docsync/internal/payload"
	"github.com/maneesh/docsync/internal/session"
)

// DegradedHeader is set on list responses built without live index data
const DegradedHeader = "X-Index-Degraded"

// multipartOverhead is allowed on top of the file limit for form framing
const multipartOverhead = 1 << 20

// DocumentService is the document lifecycle used by the HTTP surface
type DocumentService interface {
	Upload(ctx context.Context, id session.Identity, file *models.UploadedFile) (*lifecycle.UploadResult, error)
	List(ctx context.Context, id session.Identity) (*lifecycle.ListResult, error)
	Delete(ctx context.Context, id session.Identity, recordID string) (*models.DocumentRecord, error)
	Reindex(ctx context.Context, id session.Identity, recordID string) (*lifecycle.UploadResult, error)
	Reconcile(ctx context.Context, id session.Identity) (*lifecycle.Report, error)
	Query(ctx context.Context, id session.Identity, question, documentID string) (*indexclient.Answer, error)
}

// ListHandler handles GET /api/documents
type ListHandler struct {
	docs   DocumentService
	logger *slog.Logger
}

// NewListHandler creates a new list handler
func NewListHandler(docs DocumentService, logger *slog.Logger) *ListHandler {
	return &ListHandler{docs: docs, logger: logger}
}

func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	result, err := h.docs.List(r.Context(), identityFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if result.Degraded {
		w.Header().Set(DegradedHeader, "true")
	}
	writeJSON(w, http.StatusOK, result.Documents)
}

// UploadHandler handles POST /api/upload with a multipart "file" field
type UploadHandler struct {
	docs     DocumentService
	reader   *payload.Reader
	maxBytes int64
	logger   *slog.Logger
}

// NewUploadHandler creates a new upload handler accepting files up to maxBytes
func NewUploadHandler(docs DocumentService, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		docs:     docs,
		reader:   payload.NewReader(maxBytes),
		maxBytes: maxBytes,
		logger:   logger,
	}
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "upload_document",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()
	r = r.WithContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, h.logger, apperr.New(apperr.Validation, "handlers.upload", "File too large"))
			return
		}
		writeError(w, r, h.logger, apperr.New(apperr.Validation, "handlers.upload", "No file provided"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.logger, apperr.New(apperr.Validation, "handlers.upload", "No file provided"))
		return
	}
	defer file.Close()

	upload, err := h.reader.Read(file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		span.RecordError(err)
		writeError(w, r, h.logger, err)
		return
	}
	span.SetAttributes(
		attribute.String("file_name", upload.Filename),
		attribute.String("sha256", upload.Hash),
	)

	result, err := h.docs.Upload(ctx, identityFrom(r), upload)
	if err != nil {
		span.RecordError(err)
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// DeleteHandler handles DELETE /api/documents/{id} and DELETE /api/documents?id=
type DeleteHandler struct {
	docs   DocumentService
	logger *slog.Logger
}

// NewDeleteHandler creates a new delete handler
func NewDeleteHandler(docs DocumentService, logger *slog.Logger) *DeleteHandler {
	return &DeleteHandler{docs: docs, logger: logger}
}

func (h *DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	recordID := documentID(r)
	if recordID == "" {
		writeError(w, r, h.logger, apperr.New(apperr.Validation, "handlers.delete", "Document ID is required"))
		return
	}

	record, err := h.docs.Delete(r.Context(), identityFrom(r), recordID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: lifecycle.MessageDeleted, ID: record.ID})
}

// ReindexHandler handles POST /api/documents/{id}/reindex
type ReindexHandler struct {
	docs   DocumentService
	logger *slog.Logger
}

// NewReindexHandler creates a new reindex handler
func NewReindexHandler(docs DocumentService, logger *slog.Logger) *ReindexHandler {
	return &ReindexHandler{docs: docs, logger: logger}
}

func (h *ReindexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	result, err := h.docs.Reindex(r.Context(), identityFrom(r), documentID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ReconcileHandler handles GET /api/documents/reconcile
type ReconcileHandler struct {
	docs   DocumentService
	logger *slog.Logger
}

// NewReconcileHandler creates a new reconcile handler
func NewReconcileHandler(docs DocumentService, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{docs: docs, logger: logger}
}

func (h *ReconcileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, err := h.docs.Reconcile(r.Context(), identityFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// documentID reads the record id from the path, falling back to ?id=
func documentID(r *http.Request) string {
	if id := mux.Vars(r)["id"]; id != "" {
		return id
	}
	return r.URL.Query().Get("id")
}
