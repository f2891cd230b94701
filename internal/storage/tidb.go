package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/docsync/internal/apperr"
	"github.com/maneesh/docsync/internal/models"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id               VARCHAR(36)  NOT NULL PRIMARY KEY,
		owner_id         VARCHAR(64)  NOT NULL,
		filename         VARCHAR(512) NOT NULL,
		storage_location VARCHAR(1024) NOT NULL,
		content_type     VARCHAR(255) NOT NULL,
		created_at       DATETIME(6)  NOT NULL,
		index_ref        VARCHAR(255) NULL,
		KEY idx_documents_owner_created (owner_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            VARCHAR(36)  NOT NULL PRIMARY KEY,
		name          VARCHAR(255) NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		created_at    DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_users_email (email)
	)`,
}

const documentColumns = `id, owner_id, filename, storage_location, content_type, created_at, index_ref`

// MetadataStore wraps document and user records in TiDB with tracing
type MetadataStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMetadataStore wraps an open database handle
func NewMetadataStore(db *sql.DB) *MetadataStore {
	return &MetadataStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the database connection
func (ms *MetadataStore) Close() error {
	return ms.db.Close()
}

// Ping checks the database connection
func (ms *MetadataStore) Ping(ctx context.Context) error {
	return ms.db.PingContext(ctx)
}

// EnsureSchema creates the documents and users tables if absent
func (ms *MetadataStore) EnsureSchema(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "tidb.ensure_schema")
	defer span.End()

	for _, stmt := range schema {
		if _, err := ms.db.ExecContext(ctx, stmt); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Create inserts a new unindexed document record with tracing
func (ms *MetadataStore) Create(ctx context.Context, ownerID, filename, location, contentType string) (*models.DocumentRecord, error) {
	record := &models.DocumentRecord{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		Filename:        filename,
		StorageLocation: location,
		ContentType:     contentType,
		CreatedAt:       ms.now(),
	}

	ctx, span := tracer.Start(ctx, "tidb.create_document",
		trace.WithAttributes(
			attribute.String("document_id", record.ID),
			attribute.String("owner_id", ownerID),
			attribute.String("file_name", filename),
		),
	)
	defer span.End()

	query := `INSERT INTO documents (id, owner_id, filename, storage_location, content_type, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := ms.db.ExecContext(ctx, query,
		record.ID, record.OwnerID, record.Filename, record.StorageLocation, record.ContentType, record.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return record, nil
}

// ListByOwner returns the owner's records newest first
func (ms *MetadataStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.DocumentRecord, error) {
	ctx, span := tracer.Start(ctx, "tidb.list_documents",
		trace.WithAttributes(attribute.String("owner_id", ownerID)),
	)
	defer span.End()

	query := `SELECT ` + documentColumns + `
			  FROM documents
			  WHERE owner_id = ?
			  ORDER BY created_at DESC`

	records, err := ms.queryDocuments(ctx, query, ownerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("document_count", len(records)))
	return records, nil
}

// ListUnindexed returns the owner's records the index backend never acknowledged
func (ms *MetadataStore) ListUnindexed(ctx context.Context, ownerID string) ([]*models.DocumentRecord, error) {
	ctx, span := tracer.Start(ctx, "tidb.list_unindexed",
		trace.WithAttributes(attribute.String("owner_id", ownerID)),
	)
	defer span.End()

	query := `SELECT ` + documentColumns + `
			  FROM documents
			  WHERE owner_id = ? AND index_ref IS NULL
			  ORDER BY created_at DESC`

	records, err := ms.queryDocuments(ctx, query, ownerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("document_count", len(records)))
	return records, nil
}

// FindByID retrieves a record visible to ownerID. Records of other owners
// are reported as not found.
func (ms *MetadataStore) FindByID(ctx context.Context, recordID, ownerID string) (*models.DocumentRecord, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_document",
		trace.WithAttributes(
			attribute.String("document_id", recordID),
			attribute.String("owner_id", ownerID),
		),
	)
	defer span.End()

	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ? AND owner_id = ?`

	record, err := scanDocument(ms.db.QueryRowContext(ctx, query, recordID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, apperr.New(apperr.NotFound, "storage.find_document", "Document not found")
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query document: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return record, nil
}

// SetIndexRef records the backend's acknowledgement. Repeating the same
// value is a no-op; a different value never replaces an existing one.
func (ms *MetadataStore) SetIndexRef(ctx context.Context, recordID, indexRef string) error {
	ctx, span := tracer.Start(ctx, "tidb.set_index_ref",
		trace.WithAttributes(
			attribute.String("document_id", recordID),
			attribute.String("index_ref", indexRef),
		),
	)
	defer span.End()

	if indexRef == "" {
		return apperr.New(apperr.Validation, "storage.set_index_ref", "index reference is empty")
	}

	query := `UPDATE documents SET index_ref = ?
			  WHERE id = ? AND (index_ref IS NULL OR index_ref = ?)`

	res, err := ms.db.ExecContext(ctx, query, indexRef, recordID, indexRef)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set index ref: %w", err)
	}

	// Affected rows is zero both for a missing record and for a repeat of
	// the same value, so only a conflicting value is looked up.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var current sql.NullString
		err := ms.db.QueryRowContext(ctx, `SELECT index_ref FROM documents WHERE id = ?`, recordID).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return apperr.New(apperr.NotFound, "storage.set_index_ref", "Document not found")
		case err != nil:
			span.RecordError(err)
			return fmt.Errorf("failed to read index ref: %w", err)
		case current.Valid && current.String != indexRef:
			return apperr.New(apperr.Validation, "storage.set_index_ref", "Document already indexed")
		}
	}

	span.SetAttributes(attribute.Bool("update_success", true))
	return nil
}

// Delete removes the owner's record inside one transaction and returns it
func (ms *MetadataStore) Delete(ctx context.Context, recordID, ownerID string) (*models.DocumentRecord, error) {
	ctx, span := tracer.Start(ctx, "tidb.delete_document",
		trace.WithAttributes(
			attribute.String("document_id", recordID),
			attribute.String("owner_id", ownerID),
		),
	)
	defer span.End()

	tx, err := ms.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ? AND owner_id = ? FOR UPDATE`

	record, err := scanDocument(tx.QueryRowContext(ctx, query, recordID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, apperr.New(apperr.NotFound, "storage.delete_document", "Document not found")
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to lock document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ? AND owner_id = ?`, recordID, ownerID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}

	span.SetAttributes(attribute.Bool("delete_success", true))
	return record, nil
}

// CreateUser inserts an account. A duplicate email is a validation error.
func (ms *MetadataStore) CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	user := &models.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    ms.now(),
	}

	ctx, span := tracer.Start(ctx, "tidb.create_user",
		trace.WithAttributes(attribute.String("user_id", user.ID)),
	)
	defer span.End()

	query := `INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := ms.db.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return nil, apperr.New(apperr.Validation, "storage.create_user", "User exists")
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return user, nil
}

// FindUserByEmail looks up an account for login
func (ms *MetadataStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_user")
	defer span.End()

	query := `SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`

	var user models.User
	err := ms.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, apperr.New(apperr.NotFound, "storage.find_user", "User not found")
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &user, nil
}

func (ms *MetadataStore) queryDocuments(ctx context.Context, query string, args ...any) ([]*models.DocumentRecord, error) {
	rows, err := ms.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	records := []*models.DocumentRecord{}
	for rows.Next() {
		record, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.DocumentRecord, error) {
	var (
		record   models.DocumentRecord
		indexRef sql.NullString
	)
	err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.Filename,
		&record.StorageLocation,
		&record.ContentType,
		&record.CreatedAt,
		&indexRef,
	)
	if err != nil {
		return nil, err
	}
	record.IndexRef = indexRef.String
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}
