package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alqutdigital/hikma/internal/config"
	"github.com/alqutdigital/hikma/internal/events"
	"github.com/alqutdigital/hikma/internal/storage"
	"github.com/alqutdigital/hikma/pkg/logger"
	"github.com/alqutdigital/hikma/pkg/shutdown"
)

func testConfig() *config.Config {
	return &config.Config{
		Gemini:    config.GeminiConfig{APIKey: "gemini-key"},
		Embedding: config.EmbeddingConfig{Provider: "mock", Model: "text-embedding-004", OpenAIKey: "openai-key", RateLimitRPS: 5, MaxTokens: 512},
		Vector:    config.VectorConfig{Backend: "memory", Dimension: 16},
	}
}

func TestEmbedderConfig(t *testing.T) {
	cfg := testConfig()

	ec := EmbedderConfig(cfg)
	assert.Equal(t, "mock", ec.Provider)
	assert.Equal(t, 16, ec.Dimension)
	assert.Equal(t, 5, ec.RateLimitRPS)

	cfg.Embedding.Provider = "gemini"
	cfg.Embedding.Model = "text-embedding-005"
	ec = EmbedderConfig(cfg)
	assert.Equal(t, "gemini-key", ec.APIKey)
	assert.Equal(t, "text-embedding-005", ec.Model)

	cfg.Embedding.Provider = "openai"
	ec = EmbedderConfig(cfg)
	assert.Equal(t, "openai-key", ec.APIKey)
	assert.Equal(t, "text-embedding-3-small", ec.Model)
	assert.Equal(t, 1536, ec.Dimension)
}

func TestOpenLocalStack(t *testing.T) {
	cfg := testConfig()
	log := logger.Discard()
	sd := shutdown.New(log.Logger, 0)
	ctx := t.Context()

	assert.Nil(t, OpenCache(ctx, cfg, log, sd))
	assert.Nil(t, OpenObjectStorage(ctx, cfg, log))
	assert.Equal(t, events.Nop{}, OpenNotifier(ctx, cfg, log, sd))

	emb, err := OpenEmbedder(ctx, cfg, log, nil)
	require.NoError(t, err)
	assert.Equal(t, 16, emb.Dimension())

	qemb, err := OpenQueryEmbedder(ctx, cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 16, qemb.Dimension())

	store, err := OpenVectorStore(ctx, cfg, log, sd)
	require.NoError(t, err)
	_, ok := store.(*storage.MemoryStore)
	assert.True(t, ok)

	assert.NoError(t, sd.Shutdown())
}

func TestOpenVectorStore_Unsupported(t *testing.T) {
	cfg := testConfig()
	cfg.Vector.Backend = "faiss"
	log := logger.Discard()
	_, err := OpenVectorStore(t.Context(), cfg, log, shutdown.New(log.Logger, 0))
	assert.Error(t, err)
}
