package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCacheStore wraps a BlobStore with a Redis read-through,
// write-through cache.
type RedisCacheStore struct {
	store  BlobStore
	client *redis.Client
	logger *zap.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisCacheStore creates a cached decorator around store.
// A zero ttl keeps cached blobs until they are overwritten.
func NewRedisCacheStore(store BlobStore, client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCacheStore {
	return &RedisCacheStore{
		store:  store,
		client: client,
		logger: logger,
		prefix: "shortify:cache:",
		ttl:    ttl,
	}
}

// Get returns the cached blob, falling back to the wrapped store on a miss
// or a cache failure.
func (r *RedisCacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err == nil {
		return value, nil
	}

	if !errors.Is(err, redis.Nil) {
		r.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, err = r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	r.fill(ctx, key, value)

	return value, nil
}

// Set drops the cached copy, writes to the wrapped store and then refreshes
// the cache. A cached blob never outlives a successful write.
func (r *RedisCacheStore) Set(ctx context.Context, key string, value []byte) error {
	r.invalidate(ctx, key)

	if err := r.store.Set(ctx, key, value); err != nil {
		return err
	}

	r.fill(ctx, key, value)

	return nil
}

// Ping checks both the cache and the wrapped store.
func (r *RedisCacheStore) Ping(ctx context.Context) error {
	return errors.Join(r.client.Ping(ctx).Err(), r.store.Ping(ctx))
}

// Shutdown closes the wrapped store when it owns resources.
// The Redis client is managed externally.
func (r *RedisCacheStore) Shutdown() error {
	if s, ok := r.store.(interface{ Shutdown() error }); ok {
		return s.Shutdown()
	}

	return nil
}

func (r *RedisCacheStore) fill(ctx context.Context, key string, value []byte) {
	err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err()
	if err == nil {
		return
	}

	r.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	r.invalidate(ctx, key)
}

func (r *RedisCacheStore) invalidate(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		r.logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

// Compile-time check.
var _ BlobStore = (*RedisCacheStore)(nil)
