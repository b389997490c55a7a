// Package cache keeps successful per-date fetch results in Redis so a rerun
// over the same range does not hit the exchanges again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"
	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/bwibbu-backfill/internal/config"
	"github.com/trogers1052/bwibbu-backfill/internal/exchange"
	"github.com/trogers1052/bwibbu-backfill/internal/logging"
	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// KeyPrefix namespaces every cache key
const KeyPrefix = "bwibbu"

// errMiss reports a key that is not cached
var errMiss = errors.New("cache miss")

type kvStore interface {
	get(ctx context.Context, key string) ([]byte, error)
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	close() error
}

type redisStore struct {
	client *redis.Client
}

func (r *redisStore) get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errMiss
	}
	return b, err
}

func (r *redisStore) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisStore) close() error {
	return r.client.Close()
}

// Cache is a Redis-backed store of fetch results
type Cache struct {
	kv     kvStore
	ttl    time.Duration
	logger *log.Logger
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, cfg config.RedisConfig, logger *log.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newCache(&redisStore{client: client}, cfg.TTL, logger), nil
}

func newCache(kv kvStore, ttl time.Duration, logger *log.Logger) *Cache {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Cache{kv: kv, ttl: ttl, logger: logger}
}

// Key returns the cache key for a source and date
func Key(source string, day time.Time) string {
	return KeyPrefix + ":" + source + ":" + day.Format(models.DateLayout)
}

// Wrap returns a Fetcher that consults the cache before f
func (c *Cache) Wrap(f exchange.Fetcher) exchange.Fetcher {
	return &cachedFetcher{next: f, cache: c}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.kv.close()
}

func (c *Cache) load(ctx context.Context, key string) ([]models.Record, bool) {
	b, err := c.kv.get(ctx, key)
	if err != nil {
		if !errors.Is(err, errMiss) {
			c.logger.Warn().Str("key", key).Err(err).Msg("cache read failed")
		}
		return nil, false
	}
	var records []models.Record
	if err := json.Unmarshal(b, &records); err != nil || len(records) == 0 {
		c.logger.Warn().Str("key", key).Err(err).Msg("discarding unreadable cache entry")
		return nil, false
	}
	return records, true
}

func (c *Cache) store(ctx context.Context, key string, records []models.Record) {
	b, err := json.Marshal(records)
	if err != nil {
		c.logger.Warn().Str("key", key).Err(err).Msg("cache encode failed")
		return
	}
	if err := c.kv.set(ctx, key, b, c.ttl); err != nil {
		c.logger.Warn().Str("key", key).Err(err).Msg("cache write failed")
	}
}

// cachedFetcher serves Success results from the cache. NoData and
// Exhausted are never cached, so a later run retries those dates.
type cachedFetcher struct {
	next  exchange.Fetcher
	cache *Cache
}

func (f *cachedFetcher) Source() string {
	return f.next.Source()
}

func (f *cachedFetcher) FetchDate(ctx context.Context, day time.Time) exchange.Result {
	key := Key(f.next.Source(), day)
	if records, ok := f.cache.load(ctx, key); ok {
		f.cache.logger.Debug().Str("key", key).Int("records", len(records)).Msg("cache hit")
		return exchange.Success(records)
	}

	res := f.next.FetchDate(ctx, day)
	if res.Status == exchange.StatusSuccess {
		f.cache.store(ctx, key, res.Records)
	}
	return res
}

func (f *cachedFetcher) Close() error {
	return f.next.Close()
}
