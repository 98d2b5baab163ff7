// Package cache implements the read-side cache decorator spec §4.E/§9 describes: a store
// fronting adapter reads, keyed by a normalized (table, conditions, options) fingerprint, with
// writes invalidating a whole table's entries rather than individual keys ("coarse but
// correct", spec §9 "Result caching"). Grounded on forbearing-gst's go.mod carrying both
// dgraph-io/ristretto and redis/go-redis as its cache-shaped dependencies (no cache source
// survived retrieval filtering, so the Store abstraction and both backends below are built
// from spec §4.E/§9 directly, using each library's documented top-level API).
package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/redis/go-redis/v9"

	"github.com/forbearing/polydb/config"
	"github.com/forbearing/polydb/dberrors"
)

// Store is the minimal byte-oriented cache backend the Decorator builds its fingerprinted
// keys on top of. Invalidation is generation-based (see Decorator), so Store itself never
// needs prefix deletion or scanning.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Close() error
}

// NewStore builds the Store selected by cfg.Backend.
func NewStore(cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case config.CacheRedis:
		return newRedisStore(cfg)
	default:
		return newRistrettoStore(cfg)
	}
}

// ristrettoStore is the in-process backend (config.CacheRistretto), sized by cfg.MaxCost.
type ristrettoStore struct {
	c *ristretto.Cache[string, []byte]
}

func newRistrettoStore(cfg config.CacheConfig) (*ristrettoStore, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e7,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, dberrors.Wrap(err, "ristretto cache init")
	}
	return &ristrettoStore{c: c}, nil
}

func (s *ristrettoStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	return v, ok, nil
}

func (s *ristrettoStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	s.c.SetWithTTL(key, val, int64(len(val)), ttl)
	s.c.Wait()
	return nil
}

func (s *ristrettoStore) Close() error {
	s.c.Close()
	return nil
}

// redisStore is the shared backend (config.CacheRedis) for multi-process deployments.
type redisStore struct {
	rdb *redis.Client
}

func newRedisStore(cfg config.CacheConfig) (*redisStore, error) {
	if cfg.RedisAddr == "" {
		return nil, dberrors.NewConfigError("cache: redis_addr is required for backend %q", config.CacheRedis)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	return &redisStore{rdb: rdb}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dberrors.Wrap(err, "redis get %q", key)
	}
	return val, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		return dberrors.Wrap(err, "redis set %q", key)
	}
	return nil
}

func (s *redisStore) Close() error { return s.rdb.Close() }
