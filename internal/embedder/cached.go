package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"github.com/alqutdigital/hikma/pkg/logger"
)

// RemoteCache stores embeddings outside the process, e.g. in Redis.
// Implementations should treat backend failures as misses.
type RemoteCache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool)
	SetEmbedding(ctx context.Context, key string, embedding []float32)
}

// CachedEmbedder wraps an Embedder with a bounded in-process cache and an
// optional remote cache. Only texts missing from both reach the inner embedder.
type CachedEmbedder struct {
	inner  Embedder
	local  *boundedCache
	remote RemoteCache
	log    *logger.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder creates a caching decorator. remote may be nil.
func NewCachedEmbedder(inner Embedder, localSize int, remote RemoteCache, log *logger.Logger) *CachedEmbedder {
	if log == nil {
		log = logger.Default()
	}
	return &CachedEmbedder{
		inner:  inner,
		local:  newBoundedCache(localSize),
		remote: remote,
		log:    log.WithComponent("embedding_cache"),
	}
}

// Embed generates or recalls an embedding for a single text.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, ErrShortResult
	}
	return embeddings[0], nil
}

// EmbedBatch returns cached embeddings where available and embeds the rest in one call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		key := c.key(text)
		if emb := c.local.get(key); emb != nil {
			results[i] = emb
			c.hits.Add(1)
			continue
		}
		if c.remote != nil {
			if emb, ok := c.remote.GetEmbedding(ctx, key); ok {
				c.local.set(key, emb)
				results[i] = emb
				c.hits.Add(1)
				continue
			}
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
		c.misses.Add(1)
	}

	if len(missTexts) == 0 {
		c.log.Debug("all embeddings from cache", "count", len(texts))
		return results, nil
	}

	embeddings, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(missTexts) {
		return nil, ErrShortResult
	}

	for j, emb := range embeddings {
		results[missIdx[j]] = emb
		key := c.key(missTexts[j])
		c.local.set(key, emb)
		if c.remote != nil {
			c.remote.SetEmbedding(ctx, key, emb)
		}
	}

	return results, nil
}

// Dimension returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

// ModelName returns the inner embedder's model name.
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// HitRate returns hits and misses seen so far.
func (c *CachedEmbedder) HitRate() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// key namespaces the text hash by model so switching models never returns stale vectors.
func (c *CachedEmbedder) key(text string) string {
	hash := sha256.Sum256([]byte(text))
	return c.inner.ModelName() + ":" + hex.EncodeToString(hash[:16])
}

// boundedCache evicts the oldest entry once full.
type boundedCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	order   []string
	maxSize int
}

func newBoundedCache(maxSize int) *boundedCache {
	return &boundedCache{
		entries: make(map[string][]float32),
		maxSize: maxSize,
	}
}

func (c *boundedCache) get(key string) []float32 {
	if c.maxSize <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key]
}

func (c *boundedCache) set(key string, embedding []float32) {
	if c.maxSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		return
	}
	if len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = embedding
	c.order = append(c.order, key)
}

func (c *boundedCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
