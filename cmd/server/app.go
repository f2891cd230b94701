package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maneesh/docsync/internal/config"
	"github.com/maneesh/docsync/internal/handlers"
	"github.com/maneesh/docsync/internal/indexclient"
	"github.com/maneesh/docsync/internal/lifecycle"
	"github.com/maneesh/docsync/internal/session"
	"github.com/maneesh/docsync/internal/storage"
)

// lruEntries bounds the in-process entry cache by owner count
const lruEntries = 4096

// app holds the wired collaborators shared by every command
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *storage.DBHolder
	blobs     *storage.MinioClient
	index     *indexclient.Client
	cache     lifecycle.EntryCache
	tokens    *session.TokenService
	resolver  *session.Resolver
	coord     *lifecycle.Coordinator
	closeFunc []func() error
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := newCoreApp(cfg, logger)

	// Initialize MinIO client
	blobs, err := storage.NewMinioClient(
		cfg.MinIOEndpoint,
		cfg.MinIOAccessKey,
		cfg.MinIOSecretKey,
		cfg.MinIOBucketName,
		cfg.MinIOUseSSL,
		logger,
	)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}
	a.blobs = blobs

	a.cache = a.entryCache()

	if a.resolver.FallbackActive() {
		logger.Warn("debug fallback identity is active; unauthenticated requests are served as the placeholder user",
			slog.String("subject", session.DebugSubject),
		)
	}

	a.coord = lifecycle.New(a.records, a.blobs, a.index, logger,
		lifecycle.WithEntryCache(a.cache),
	)
	return a, nil
}

// newReconcileApp wires only the record store and index backend. The blob
// store and entry cache are never contacted.
func newReconcileApp(cfg *config.Config, logger *slog.Logger) *app {
	a := newCoreApp(cfg, logger)
	a.coord = lifecycle.New(a.records, nil, a.index, logger)
	return a
}

// newCoreApp wires the collaborators that connect lazily
func newCoreApp(cfg *config.Config, logger *slog.Logger) *app {
	a := &app{cfg: cfg, logger: logger}

	// TiDB is opened lazily on first use
	a.db = storage.NewDBHolder(storage.MySQLOpener(cfg.GetDSN()))
	a.closeFunc = append(a.closeFunc, a.db.Close)

	a.index = indexclient.New(cfg.IndexBackendURL, cfg.IndexTimeout, logger)
	a.tokens = session.NewTokenService([]byte(cfg.JWTSecret))
	a.resolver = session.NewResolver(a.tokens, cfg.AuthDebugFallback)
	return a
}

// entryCache prefers Redis and falls back to an in-process LRU
func (a *app) entryCache() lifecycle.EntryCache {
	if a.cfg.RedisEnabled {
		redisClient, err := storage.NewRedisClient(a.cfg.GetRedisAddr(), a.cfg.RedisPassword, a.cfg.RedisDB, a.cfg.EntryCacheTTL)
		if err == nil {
			a.closeFunc = append(a.closeFunc, redisClient.Close)
			a.logger.Info("redis entry cache initialized", slog.String("addr", a.cfg.GetRedisAddr()))
			return redisClient
		}
		a.logger.Warn("redis unavailable, using in-process entry cache", slog.String("error", err.Error()))
	}
	return storage.NewLRUEntryCache(lruEntries, a.cfg.EntryCacheTTL)
}

func (a *app) records(ctx context.Context) (lifecycle.RecordStore, error) {
	store, err := a.db.Store(ctx)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (a *app) users(ctx context.Context) (handlers.UserStore, error) {
	store, err := a.db.Store(ctx)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// ensureSchema creates tables when the database is reachable. A failure is
// logged and retried implicitly by the next lazy open.
func (a *app) ensureSchema(ctx context.Context) {
	store, err := a.db.Store(ctx)
	if err != nil {
		a.logger.Warn("database not reachable at startup", slog.String("error", err.Error()))
		return
	}
	if err := store.EnsureSchema(ctx); err != nil {
		a.logger.Error("failed to ensure schema", slog.String("error", err.Error()))
	}
}

func (a *app) health(ctx context.Context) error {
	store, err := a.db.Store(ctx)
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

// checkIndex logs backend readiness; the service starts either way
func (a *app) checkIndex(ctx context.Context) {
	status, err := a.index.Status(ctx)
	if err != nil {
		a.logger.Warn("index backend not reachable at startup",
			slog.String("url", a.cfg.IndexBackendURL),
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.Info("index backend reachable", slog.Any("status", status))
}

func (a *app) close() {
	for i := len(a.closeFunc) - 1; i >= 0; i-- {
		if err := a.closeFunc[i](); err != nil {
			a.logger.Warn("error during shutdown", slog.String("error", err.Error()))
		}
	}
}
