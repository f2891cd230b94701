package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/docsync/internal/models"
)

// RedisClient caches each owner's live index entries with tracing
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(addr, password string, db int, ttl time.Duration) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewRedisEntryCache(client, ttl), nil
}

// NewRedisEntryCache wraps an existing client
func NewRedisEntryCache(client *redis.Client, ttl time.Duration) *RedisClient {
	return &RedisClient{client: client, ttl: ttl}
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

func entriesKey(ownerID string) string {
	return fmt.Sprintf("index:entries:%s", ownerID)
}

// GetEntries returns cached entries. A miss is (nil, false, nil).
func (rc *RedisClient) GetEntries(ctx context.Context, ownerID string) ([]models.IndexEntry, bool, error) {
	ctx, span := tracer.Start(ctx, "redis.get_entries",
		trace.WithAttributes(
			attribute.String("owner_id", ownerID),
		),
	)
	defer span.End()

	data, err := rc.client.Get(ctx, entriesKey(ownerID)).Result()
	if err == redis.Nil {
		span.SetAttributes(
			attribute.Bool("cache_hit", false),
			attribute.String("cache_status", "miss"),
		)
		return nil, false, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("failed to get from cache: %w", err)
	}

	var entries []models.IndexEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	span.SetAttributes(
		attribute.Bool("cache_hit", true),
		attribute.String("cache_status", "hit"),
	)
	return entries, true, nil
}

// SetEntries caches the owner's entries for the configured TTL
func (rc *RedisClient) SetEntries(ctx context.Context, ownerID string, entries []models.IndexEntry) error {
	ctx, span := tracer.Start(ctx, "redis.set_entries",
		trace.WithAttributes(
			attribute.String("owner_id", ownerID),
			attribute.Int("entry_count", len(entries)),
		),
	)
	defer span.End()

	data, err := json.Marshal(entries)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal entries: %w", err)
	}

	if err := rc.client.Set(ctx, entriesKey(ownerID), data, rc.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	span.SetAttributes(
		attribute.Bool("cache_set_success", true),
		attribute.Int64("ttl_seconds", int64(rc.ttl.Seconds())),
	)
	return nil
}

// Invalidate drops the owner's cached entries
func (rc *RedisClient) Invalidate(ctx context.Context, ownerID string) error {
	ctx, span := tracer.Start(ctx, "redis.invalidate_entries",
		trace.WithAttributes(
			attribute.String("owner_id", ownerID),
		),
	)
	defer span.End()

	if err := rc.client.Del(ctx, entriesKey(ownerID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache_invalidate_success", true))
	return nil
}
