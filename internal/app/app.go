// Package app builds the shared dependencies of the command-line tools from
// configuration. Optional infrastructure (Redis, NATS, object storage) is
// skipped with a warning when it is not configured or cannot be reached.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/alqutdigital/hikma/internal/chunker"
	"github.com/alqutdigital/hikma/internal/config"
	"github.com/alqutdigital/hikma/internal/embedder"
	"github.com/alqutdigital/hikma/internal/events"
	"github.com/alqutdigital/hikma/internal/ingest"
	"github.com/alqutdigital/hikma/internal/storage"
	"github.com/alqutdigital/hikma/pkg/logger"
	"github.com/alqutdigital/hikma/pkg/shutdown"
)

// localCacheSize bounds the in-process embedding cache.
const localCacheSize = 10000

// NewLogger creates the process logger. Output always goes to stderr.
func NewLogger(cfg *config.Config) *logger.Logger {
	log := logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})
	log.SetDefault()
	return log
}

// EmbedderConfig maps configuration onto the embedding client.
func EmbedderConfig(cfg *config.Config) embedder.Config {
	apiKey := cfg.Gemini.APIKey
	if cfg.Embedding.Provider == "openai" {
		apiKey = cfg.Embedding.OpenAIKey
	}
	ec := embedder.DefaultConfig(cfg.Embedding.Provider, apiKey)
	if cfg.Embedding.Provider == "gemini" && cfg.Embedding.Model != "" {
		ec.Model = cfg.Embedding.Model
	}
	if cfg.Embedding.Provider == "mock" {
		ec.Dimension = cfg.Vector.Dimension
	}
	ec.RateLimitRPS = cfg.Embedding.RateLimitRPS
	ec.MaxRetries = cfg.Embedding.MaxRetries
	return ec
}

// OpenCache connects the Redis embedding cache. It returns nil when REDIS_URL
// is unset or Redis is unreachable.
func OpenCache(ctx context.Context, cfg *config.Config, log *logger.Logger, sd *shutdown.Handler) *storage.EmbeddingCache {
	if cfg.Redis.URL == "" {
		return nil
	}
	client, err := storage.DialRedis(ctx, cfg.Redis.URL)
	if err != nil {
		log.WithError(err).Warn("embedding cache disabled")
		return nil
	}
	cache := storage.NewEmbeddingCache(ctx, client, log.Logger, storage.CacheConfig{
		Prefix:       storage.DefaultCacheConfig().Prefix,
		EmbeddingTTL: cfg.Redis.EmbeddingTTL,
	})
	sd.RegisterNamed("redis", func(context.Context) error { return cache.Close() })
	return cache
}

// OpenEmbedder creates the configured embedder behind a bounded local cache
// and, when available, the Redis cache.
func OpenEmbedder(ctx context.Context, cfg *config.Config, log *logger.Logger, cache *storage.EmbeddingCache) (*embedder.CachedEmbedder, error) {
	inner, err := embedder.New(ctx, EmbedderConfig(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	var remote embedder.RemoteCache
	if cache != nil {
		remote = cache
	}
	return embedder.NewCachedEmbedder(inner, localCacheSize, remote, log), nil
}

// OpenQueryEmbedder creates an embedder for search queries. Query embeddings
// use their own task type, so they skip the shared Redis cache.
func OpenQueryEmbedder(ctx context.Context, cfg *config.Config, log *logger.Logger) (*embedder.CachedEmbedder, error) {
	ec := EmbedderConfig(cfg)
	ec.TaskType = "RETRIEVAL_QUERY"
	inner, err := embedder.New(ctx, ec, log)
	if err != nil {
		return nil, fmt.Errorf("create query embedder: %w", err)
	}
	return embedder.NewCachedEmbedder(inner, 1000, nil, log), nil
}

// OpenVectorStore creates the configured vector store.
func OpenVectorStore(ctx context.Context, cfg *config.Config, log *logger.Logger, sd *shutdown.Handler) (storage.VectorStore, error) {
	store, err := storage.NewVectorStore(ctx, cfg.Vector.Backend,
		storage.PineconeConfig{
			APIKey:     cfg.Vector.PineconeAPIKey,
			Index:      cfg.Vector.PineconeIndex,
			APIVersion: cfg.Vector.PineconeAPIVersion,
			BaseURL:    cfg.Vector.PineconeBaseURL,
			Logger:     log.Logger,
		},
		storage.QdrantConfig{
			Addr:       cfg.Vector.QdrantAddr,
			Collection: cfg.Vector.QdrantCollection,
			Dimension:  cfg.Vector.Dimension,
			Logger:     log.Logger,
		},
		cfg.Vector.Dimension,
	)
	if err != nil {
		return nil, fmt.Errorf("open %s vector store: %w", cfg.Vector.Backend, err)
	}
	if c, ok := store.(io.Closer); ok {
		sd.RegisterNamed(cfg.Vector.Backend, func(context.Context) error { return c.Close() })
	}
	log.Info("vector store ready", "backend", cfg.Vector.Backend)
	return store, nil
}

// OpenObjectStorage connects the snapshot bucket. It returns nil when
// STORAGE_ENDPOINT is unset or the bucket cannot be prepared.
func OpenObjectStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) *storage.MinIOStorage {
	if cfg.Storage.Endpoint == "" {
		return nil
	}
	store, err := storage.NewMinIOStorage(storage.MinIOConfig{
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		BucketName:      cfg.Storage.BucketName,
		UseSSL:          cfg.Storage.UseSSL,
		Region:          cfg.Storage.Region,
	})
	if err != nil {
		log.WithError(err).Warn("object storage disabled")
		return nil
	}
	if err := store.InitBucket(ctx); err != nil {
		log.WithError(err).Warn("object storage disabled", "bucket", cfg.Storage.BucketName)
		return nil
	}
	return store
}

// OpenNotifier connects the NATS event publisher, or returns a no-op notifier.
func OpenNotifier(ctx context.Context, cfg *config.Config, log *logger.Logger, sd *shutdown.Handler) ingest.Notifier {
	if cfg.NATS.URL == "" {
		return events.Nop{}
	}
	ncfg := events.DefaultConfig(cfg.NATS.URL)
	if cfg.NATS.Name != "" {
		ncfg.Name = cfg.NATS.Name
	}
	pub, err := events.NewPublisher(ctx, ncfg, log.Logger)
	if err != nil {
		log.WithError(err).Warn("ingestion events disabled")
		return events.Nop{}
	}
	sd.RegisterNamed("nats", func(context.Context) error { return pub.Close() })
	return pub
}

// NewBudget creates the embedding token budget, falling back to a rune
// estimate when the tokenizer cannot be loaded.
func NewBudget(cfg *config.Config, log *logger.Logger) *chunker.TextBudget {
	bc := chunker.DefaultBudgetConfig()
	if cfg.Embedding.MaxTokens > 0 {
		bc.MaxTokens = cfg.Embedding.MaxTokens
	}
	budget, err := chunker.NewTextBudget(bc)
	if err != nil {
		log.WithError(err).Warn("tokenizer unavailable, estimating token counts")
		return chunker.NewApproxBudget(bc.MaxTokens)
	}
	return budget
}
