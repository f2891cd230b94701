// Package lifecycle keeps document records and their index entries in a
// defined relationship across upload, listing, query and delete.
//
// A record moves from Created to Indexed once the backend acknowledges the
// ingest, and from either state to Deleted on an owner's request. The
// metadata store is authoritative; index and blob cleanup after a committed
// delete is best effort and never unwinds it.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/maneesh/docsync/internal/apperr"
	"github.com/maneesh/docsync/internal/indexclient"
	"github.com/maneesh/docsync/internal/models"
	"github.com/maneesh/docsync/internal/session"
	"github.com/maneesh/docsync/internal/storage"
)

var tracer = otel.Tracer("docsync-lifecycle")

// DefaultAdvisoryTimeout bounds cleanup steps that run after a commit
const DefaultAdvisoryTimeout = 15 * time.Second

// RecordStore persists document records
type RecordStore interface {
	Create(ctx context.Context, ownerID, filename, location, contentType string) (*models.DocumentRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.DocumentRecord, error)
	ListUnindexed(ctx context.Context, ownerID string) ([]*models.DocumentRecord, error)
	FindByID(ctx context.Context, recordID, ownerID string) (*models.DocumentRecord, error)
	SetIndexRef(ctx context.Context, recordID, indexRef string) error
	Delete(ctx context.Context, recordID, ownerID string) (*models.DocumentRecord, error)
}

// RecordStoreProvider returns the record store, connecting on first use
type RecordStoreProvider func(ctx context.Context) (RecordStore, error)

// StaticRecords wraps an already connected store
func StaticRecords(store RecordStore) RecordStoreProvider {
	return func(context.Context) (RecordStore, error) { return store, nil }
}

// BlobStore holds uploaded bytes alongside their SHA-256 checksum
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType, checksum string) error
	GetObject(ctx context.Context, key string) (data []byte, checksum string, err error)
	DeleteObject(ctx context.Context, key string) error
}

// IndexBackend is the external vector index
type IndexBackend interface {
	Ingest(ctx context.Context, token string, data []byte, filename, contentType string) (*indexclient.IngestResult, error)
	Query(ctx context.Context, token, question, indexRef string) (*indexclient.Answer, error)
	DeleteEntry(ctx context.Context, token, indexRef string) error
	ListEntries(ctx context.Context, token string) ([]models.IndexEntry, error)
}

// EntryCache caches each owner's live index entries
type EntryCache interface {
	GetEntries(ctx context.Context, ownerID string) ([]models.IndexEntry, bool, error)
	SetEntries(ctx context.Context, ownerID string, entries []models.IndexEntry) error
	Invalidate(ctx context.Context, ownerID string) error
}

// Coordinator orchestrates document operations for one identity at a time
type Coordinator struct {
	records         RecordStoreProvider
	blobs           BlobStore
	index           IndexBackend
	cache           EntryCache
	logger          *slog.Logger
	advisoryTimeout time.Duration
	objectKey       func(ownerID, filename string) string
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithEntryCache enables caching of backend entry lists
func WithEntryCache(cache EntryCache) Option {
	return func(c *Coordinator) { c.cache = cache }
}

// WithAdvisoryTimeout overrides DefaultAdvisoryTimeout
func WithAdvisoryTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.advisoryTimeout = d
		}
	}
}

// WithObjectKey overrides how blob keys are derived
func WithObjectKey(fn func(ownerID, filename string) string) Option {
	return func(c *Coordinator) { c.objectKey = fn }
}

// New creates a coordinator
func New(records RecordStoreProvider, blobs BlobStore, index IndexBackend, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		records:         records,
		blobs:           blobs,
		index:           index,
		logger:          logger.With(slog.String("component", "lifecycle")),
		advisoryTimeout: DefaultAdvisoryTimeout,
		objectKey:       storage.ObjectKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) store(ctx context.Context, op string) (RecordStore, error) {
	store, err := c.records(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	return store, nil
}

// detached returns a context that survives request cancellation, for steps
// that must run once a metadata mutation has committed
func (c *Coordinator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.advisoryTimeout)
}

// cachedEntries returns the owner's live entries from cache or backend.
// A cached list missing any of the wanted refs predates an ingest and is
// refetched.
func (c *Coordinator) cachedEntries(ctx context.Context, id session.Identity, want []string) ([]models.IndexEntry, error) {
	if c.cache != nil {
		entries, ok, err := c.cache.GetEntries(ctx, id.Subject)
		if err != nil {
			c.logger.Warn("entry cache read failed",
				slog.String("owner_id", id.Subject),
				slog.String("error", err.Error()),
			)
		} else if ok {
			missing := missingRef(entries, want)
			if missing == "" {
				return entries, nil
			}
			c.logger.Debug("cached entries stale, refetching",
				slog.String("owner_id", id.Subject),
				slog.String("index_ref", missing),
			)
		}
	}

	entries, err := c.index.ListEntries(ctx, id.Token)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetEntries(ctx, id.Subject, entries); err != nil {
			c.logger.Warn("entry cache write failed",
				slog.String("owner_id", id.Subject),
				slog.String("error", err.Error()),
			)
		}
	}
	return entries, nil
}

// missingRef returns the first wanted ref absent from entries
func missingRef(entries []models.IndexEntry, want []string) string {
	have := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		have[e.IndexRef] = struct{}{}
	}
	for _, ref := range want {
		if _, ok := have[ref]; !ok {
			return ref
		}
	}
	return ""
}

func (c *Coordinator) invalidate(ctx context.Context, ownerID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, ownerID); err != nil {
		c.logger.Warn("entry cache invalidation failed",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
	}
}

func requireIdentity(id session.Identity, op string) error {
	if id.Subject == "" {
		return apperr.New(apperr.Unauthorized, op, "Unauthorized")
	}
	return nil
}
