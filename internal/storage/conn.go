package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"
)

// Opener opens and verifies a database handle
type Opener func(ctx context.Context) (*sql.DB, error)

// MySQLOpener returns an Opener for a TiDB/MySQL DSN
func MySQLOpener(dsn string) Opener {
	return func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Test the connection
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		// Set connection pool settings
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)

		return db, nil
	}
}

// DBHolder opens the process-wide database handle on first use.
// Concurrent first callers share one open; a failed open is retried
// by the next caller.
type DBHolder struct {
	mu     sync.Mutex
	open   Opener
	db     *sql.DB
	store  *MetadataStore
	closed bool
}

// NewDBHolder creates a holder that has not yet connected
func NewDBHolder(open Opener) *DBHolder {
	return &DBHolder{open: open}
}

// Get returns the shared handle, opening it if needed
func (h *DBHolder) Get(ctx context.Context) (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ensureLocked(ctx); err != nil {
		return nil, err
	}
	return h.db, nil
}

// Store returns the metadata store backed by the shared handle
func (h *DBHolder) Store(ctx context.Context) (*MetadataStore, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ensureLocked(ctx); err != nil {
		return nil, err
	}
	return h.store, nil
}

func (h *DBHolder) ensureLocked(ctx context.Context) error {
	if h.closed {
		return fmt.Errorf("database holder closed")
	}
	if h.db != nil {
		return nil
	}

	db, err := h.open(ctx)
	if err != nil {
		return err
	}
	h.db = db
	h.store = NewMetadataStore(db)
	return nil
}

// Close closes the handle if it was opened
func (h *DBHolder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	h.store = nil
	return err
}
