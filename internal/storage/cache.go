package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// RedisClient defines the Redis operations the embedding cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for the embedding cache.
type CacheConfig struct {
	Prefix       string
	EmbeddingTTL time.Duration
}

// DefaultCacheConfig returns a default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Prefix:       "hikma",
		EmbeddingTTL: 30 * 24 * time.Hour,
	}
}

// CacheMetrics counts lookups. Errors covers failed writes and undecodable
// entries; a failed read counts as a miss.
type CacheMetrics struct {
	Hits   uint64
	Misses uint64
	Errors uint64
}

// EmbeddingCache stores embeddings in Redis under {prefix}:emb:{key} as packed
// little-endian float32s. Every failure degrades to a miss, so ingestion never
// stops because the cache is unavailable.
type EmbeddingCache struct {
	client RedisClient
	config CacheConfig
	logger *slog.Logger

	hits, misses, errs atomic.Uint64
	healthy            atomic.Bool
}

// NewEmbeddingCache wraps client. A nil client or a failed ping yields a
// disabled cache.
func NewEmbeddingCache(ctx context.Context, client RedisClient, logger *slog.Logger, config CacheConfig) *EmbeddingCache {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Prefix == "" {
		config.Prefix = DefaultCacheConfig().Prefix
	}
	c := &EmbeddingCache{client: client, config: config, logger: logger.With("component", "embedding_cache")}
	if client == nil {
		return c
	}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		c.logger.Warn("redis unreachable, embedding cache disabled", "error", err)
		return c
	}
	c.healthy.Store(true)
	return c
}

func (c *EmbeddingCache) IsHealthy() bool {
	return c.client != nil && c.healthy.Load()
}

func (c *EmbeddingCache) GetMetrics() CacheMetrics {
	return CacheMetrics{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errs.Load()}
}

func (c *EmbeddingCache) GetEmbedding(ctx context.Context, key string) ([]float32, bool) {
	if !c.IsHealthy() {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.key(key))
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	vec, err := unpackFloats([]byte(raw))
	if err != nil {
		c.errs.Add(1)
		c.logger.Warn("dropping corrupt cache entry", "key", key, "error", err)
		return nil, false
	}
	c.hits.Add(1)
	return vec, true
}

func (c *EmbeddingCache) SetEmbedding(ctx context.Context, key string, vec []float32) {
	if !c.IsHealthy() {
		return
	}
	if err := c.client.Set(ctx, c.key(key), packFloats(vec), c.config.EmbeddingTTL); err != nil {
		c.errs.Add(1)
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Purge deletes every cached embedding under the prefix and reports how many
// keys went.
func (c *EmbeddingCache) Purge(ctx context.Context) (int, error) {
	if !c.IsHealthy() {
		return 0, nil
	}
	keys, err := c.client.Keys(ctx, c.key("*"))
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", c.key("*"), err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.client.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("delete %d cached embeddings: %w", len(keys), err)
	}
	return len(keys), nil
}

func (c *EmbeddingCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *EmbeddingCache) key(k string) string {
	return c.config.Prefix + ":emb:" + k
}

func packFloats(vec []float32) []byte {
	buf := make([]byte, 0, 4*len(vec))
	for _, v := range vec {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

func unpackFloats(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of float32s", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, nil
}
