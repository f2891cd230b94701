package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/docsync/internal/apperr"
	"github.com/maneesh/docsync/internal/metrics"
	"github.com/maneesh/docsync/internal/models"
	"github.com/maneesh/docsync/internal/payload"
	"github.com/maneesh/docsync/internal/session"
)

// Upload messages
const (
	MessageProcessed        = "File uploaded and processed"
	MessageProcessingFailed = "File uploaded but processing failed"
	MessageDeleted          = "Document deleted successfully"
)

// UploadResult describes a stored upload. Indexed is false when the record
// was created but the backend did not acknowledge it.
type UploadResult struct {
	Record     *models.DocumentRecord `json:"document"`
	ChunkCount int                    `json:"chunks"`
	Indexed    bool                   `json:"indexed"`
	Message    string                 `json:"message"`
}

// ListResult is the owner's records joined with live index entries.
// Degraded is set when the backend could not be consulted.
type ListResult struct {
	Documents []models.EnrichedDocument `json:"documents"`
	Degraded  bool                      `json:"degraded"`
}

// Upload stores the file, creates its record and asks the backend to ingest
// it. An ingest failure leaves the record in place, unindexed.
func (c *Coordinator) Upload(ctx context.Context, id session.Identity, file *models.UploadedFile) (*UploadResult, error) {
	const op = "lifecycle.upload"
	if err := requireIdentity(id, op); err != nil {
		return nil, err
	}
	if file == nil || file.Filename == "" {
		metrics.RecordUpload("rejected")
		return nil, apperr.New(apperr.Validation, op, "No file provided")
	}
	if len(file.Data) == 0 {
		metrics.RecordUpload("rejected")
		return nil, apperr.New(apperr.Validation, op, "File is empty")
	}

	ctx, span := tracer.Start(ctx, "lifecycle.upload",
		trace.WithAttributes(
			attribute.String("owner_id", id.Subject),
			attribute.String("file_name", file.Filename),
			attribute.Int("size_bytes", len(file.Data)),
		),
	)
	defer span.End()

	store, err := c.store(ctx, op)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if file.Hash == "" {
		file.Hash = payload.ComputeHash(file.Data)
	}

	location := c.objectKey(id.Subject, file.Filename)
	if err := c.blobs.PutObject(ctx, location, file.Data, file.ContentType, file.Hash); err != nil {
		span.RecordError(err)
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}

	record, err := store.Create(ctx, id.Subject, file.Filename, location, file.ContentType)
	if err != nil {
		span.RecordError(err)
		c.removeBlob(ctx, id.Subject, "", location)
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	span.SetAttributes(attribute.String("document_id", record.ID))

	logger := c.logger.With(
		slog.String("op", op),
		slog.String("owner_id", id.Subject),
		slog.String("document_id", record.ID),
	)

	result := c.ingest(ctx, logger, store, id, record, file.Data)
	span.SetAttributes(attribute.Bool("indexed", result.Indexed))
	return result, nil
}

// Reindex repeats ingestion for a record the backend never acknowledged
func (c *Coordinator) Reindex(ctx context.Context, id session.Identity, recordID string) (*UploadResult, error) {
	const op = "lifecycle.reindex"
	if err := requireIdentity(id, op); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "lifecycle.reindex",
		trace.WithAttributes(
			attribute.String("owner_id", id.Subject),
			attribute.String("document_id", recordID),
		),
	)
	defer span.End()

	store, err := c.store(ctx, op)
	if err != nil {
		return nil, err
	}

	record, err := store.FindByID(ctx, recordID, id.Subject)
	if err != nil {
		return nil, err
	}
	if record.Indexed() {
		return nil, apperr.New(apperr.Validation, op, "Document is already indexed")
	}

	data, checksum, err := c.blobs.GetObject(ctx, record.StorageLocation)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Wrap(apperr.Internal, op, fmt.Errorf("error reading stored document: %w", err))
	}

	logger := c.logger.With(
		slog.String("op", op),
		slog.String("owner_id", id.Subject),
		slog.String("document_id", record.ID),
	)

	// Objects written before checksums were recorded carry none.
	if checksum != "" && !payload.VerifyHash(data, checksum) {
		err := fmt.Errorf("stored document %s failed checksum verification", record.StorageLocation)
		span.RecordError(err)
		logger.Error("stored document corrupted, not reindexing", slog.String("sha256", checksum))
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	return c.ingest(ctx, logger, store, id, record, data), nil
}

// ingest asks the backend to index data and records the acknowledgement
func (c *Coordinator) ingest(ctx context.Context, logger *slog.Logger, store RecordStore, id session.Identity, record *models.DocumentRecord, data []byte) *UploadResult {
	defer c.invalidate(ctx, id.Subject)

	unindexed := &UploadResult{Record: record, Message: MessageProcessingFailed}

	res, err := c.index.Ingest(ctx, id.Token, data, record.Filename, record.ContentType)
	if err != nil {
		logger.Warn("ingest failed, record left unindexed", slog.String("error", err.Error()))
		metrics.RecordUpload("unindexed")
		return unindexed
	}

	// The entry now exists in the backend, so the acknowledgement is
	// persisted even if the caller goes away.
	dctx, cancel := c.detached(ctx)
	defer cancel()
	if err := store.SetIndexRef(dctx, record.ID, res.IndexRef); err != nil {
		logger.Error("failed to record index reference",
			slog.String("index_ref", res.IndexRef),
			slog.String("error", err.Error()),
		)
		metrics.RecordUpload("unindexed")
		return unindexed
	}

	record.IndexRef = res.IndexRef
	metrics.RecordUpload("indexed")
	logger.Info("document indexed",
		slog.String("index_ref", res.IndexRef),
		slog.Int("chunks", res.ChunkCount),
	)
	return &UploadResult{
		Record:     record,
		ChunkCount: res.ChunkCount,
		Indexed:    true,
		Message:    MessageProcessed,
	}
}

// List returns the owner's records newest first, each joined with its live
// index entry. An unavailable backend yields a degraded result, not an error.
func (c *Coordinator) List(ctx context.Context, id session.Identity) (*ListResult, error) {
	const op = "lifecycle.list"
	if err := requireIdentity(id, op); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "lifecycle.list",
		trace.WithAttributes(attribute.String("owner_id", id.Subject)),
	)
	defer span.End()

	store, err := c.store(ctx, op)
	if err != nil {
		return nil, err
	}

	records, err := store.ListByOwner(ctx, id.Subject)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}

	result := &ListResult{Documents: make([]models.EnrichedDocument, 0, len(records))}

	var refs []string
	for _, rec := range records {
		if rec.Indexed() {
			refs = append(refs, rec.IndexRef)
		}
	}

	entries, err := c.cachedEntries(ctx, id, refs)
	if err != nil {
		c.logger.Warn("index backend unavailable, listing without index status",
			slog.String("op", op),
			slog.String("owner_id", id.Subject),
			slog.String("error", err.Error()),
		)
		metrics.RecordDegraded("list")
		result.Degraded = true
	}

	chunks := make(map[string]int, len(entries))
	for _, e := range entries {
		chunks[e.IndexRef] = e.ChunkCount
	}

	for _, rec := range records {
		doc := models.EnrichedDocument{DocumentRecord: *rec}
		if rec.Indexed() {
			if n, ok := chunks[rec.IndexRef]; ok {
				doc.InIndex = true
				doc.ChunkCount = n
			}
		}
		result.Documents = append(result.Documents, doc)
	}

	span.SetAttributes(
		attribute.Int("document_count", len(result.Documents)),
		attribute.Bool("degraded", result.Degraded),
	)
	return result, nil
}

// Delete removes the owner's record, then best-effort removes its index
// entry and stored bytes. Returns the deleted record.
func (c *Coordinator) Delete(ctx context.Context, id session.Identity, recordID string) (*models.DocumentRecord, error) {
	const op = "lifecycle.delete"
	if err := requireIdentity(id, op); err != nil {
		return nil, err
	}
	if recordID == "" {
		return nil, apperr.New(apperr.Validation, op, "Document ID is required")
	}

	ctx, span := tracer.Start(ctx, "lifecycle.delete",
		trace.WithAttributes(
			attribute.String("owner_id", id.Subject),
			attribute.String("document_id", recordID),
		),
	)
	defer span.End()

	store, err := c.store(ctx, op)
	if err != nil {
		return nil, err
	}

	record, err := store.Delete(ctx, recordID, id.Subject)
	if err != nil {
		if !apperr.Is(err, apperr.NotFound) {
			span.RecordError(err)
			err = apperr.Wrap(apperr.Internal, op, err)
		}
		return nil, err
	}

	dctx, cancel := c.detached(ctx)
	defer cancel()

	if record.Indexed() {
		if err := c.index.DeleteEntry(dctx, id.Token, record.IndexRef); err != nil {
			c.logger.Warn("index entry cleanup failed",
				slog.String("op", op),
				slog.String("owner_id", id.Subject),
				slog.String("document_id", record.ID),
				slog.String("index_ref", record.IndexRef),
				slog.String("error", err.Error()),
			)
			metrics.RecordAdvisoryFailure("index_entry")
		}
	}
	c.removeBlob(dctx, id.Subject, record.ID, record.StorageLocation)
	c.invalidate(dctx, id.Subject)

	c.logger.Info("document deleted",
		slog.String("owner_id", id.Subject),
		slog.String("document_id", record.ID),
	)
	return record, nil
}

func (c *Coordinator) removeBlob(ctx context.Context, ownerID, recordID, location string) {
	if location == "" {
		return
	}
	if err := c.blobs.DeleteObject(ctx, location); err != nil {
		c.logger.Warn("blob cleanup failed",
			slog.String("owner_id", ownerID),
			slog.String("document_id", recordID),
			slog.String("object_key", location),
			slog.String("error", err.Error()),
		)
		metrics.RecordAdvisoryFailure("blob")
	}
}
