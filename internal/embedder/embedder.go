// Package embedder provides embedding generation services for text-to-vector conversion.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alqutdigital/hikma/pkg/logger"
)

// ErrShortResult is returned when a backend answers with fewer vectors than texts.
var ErrShortResult = errors.New("embedding result shorter than input")

// Embedder defines the interface for embedding generation.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one per input in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension.
	Dimension() int

	// ModelName returns the model name.
	ModelName() string
}

// Config holds configuration shared by the remote embedders.
type Config struct {
	Provider       string // gemini, openai, mock
	APIKey         string
	BaseURL        string
	Model          string
	Dimension      int
	MaxBatchSize   int           // Max texts per request
	MaxRetries     int           // Retries after the first attempt
	RetryDelay     time.Duration // Initial retry delay, doubled per attempt
	RateLimitRPS   int           // Requests per second, 0 disables
	RequestTimeout time.Duration // Timeout per request
	TaskType       string        // Gemini task type
}

// DefaultConfig returns default configuration for the given provider.
func DefaultConfig(provider, apiKey string) Config {
	cfg := Config{
		Provider:       strings.ToLower(provider),
		APIKey:         apiKey,
		MaxBatchSize:   100,
		MaxRetries:     0,
		RetryDelay:     time.Second,
		RateLimitRPS:   10,
		RequestTimeout: 60 * time.Second,
		TaskType:       "RETRIEVAL_DOCUMENT",
	}
	switch cfg.Provider {
	case "openai":
		cfg.Model = "text-embedding-3-small"
		cfg.Dimension = 1536
	default:
		cfg.Model = "text-embedding-004"
		cfg.Dimension = 768
	}
	return cfg
}

// New creates the embedder selected by cfg.Provider.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "":
		return NewGeminiEmbedder(ctx, cfg, log)
	case "openai":
		return NewOpenAIEmbedder(cfg, log)
	case "mock":
		dim := cfg.Dimension
		if dim <= 0 {
			dim = 768
		}
		return NewMockEmbedder(dim), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// Stats tracks embedding usage statistics.
type Stats struct {
	TotalRequests int64   `json:"total_requests"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalTexts    int64   `json:"total_texts"`
	Errors        int64   `json:"errors"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
}

// callFunc performs one embedding request for at most MaxBatchSize texts.
// It returns the vectors and the number of tokens billed, when known.
type callFunc func(ctx context.Context, texts []string) ([][]float32, int, error)

// client carries the rate limiting, retry and statistics logic shared by the
// remote embedders.
type client struct {
	config      Config
	rateLimiter *rate.Limiter
	log         *logger.Logger
	call        callFunc

	statsMu sync.RWMutex
	stats   Stats
}

func newClient(cfg Config, log *logger.Logger, call callFunc) *client {
	if log == nil {
		log = logger.Default()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitRPS)
	}

	return &client{
		config:      cfg,
		rateLimiter: limiter,
		log:         log.WithComponent("embedder").WithFields(map[string]any{"model": cfg.Model}),
		call:        call,
	}
}

func (c *client) embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, ErrShortResult
	}
	return embeddings[0], nil
}

func (c *client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	began := time.Now()
	out := make([][]float32, 0, len(texts))
	for batch := range slices.Chunk(texts, c.config.MaxBatchSize) {
		vecs, tokens, err := c.send(ctx, batch)
		switch {
		case err != nil:
			c.incrementError()
			return nil, fmt.Errorf("embed %d texts: %w", len(batch), err)
		case len(vecs) != len(batch):
			c.incrementError()
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrShortResult, len(vecs), len(batch))
		}
		out = append(out, vecs...)
		c.updateStats(len(batch), tokens, time.Since(began))
	}

	c.log.Debug("embedded", "texts", len(texts), "duration_ms", time.Since(began).Milliseconds())
	return out, nil
}

// send makes one rate-limited request, retrying up to MaxRetries times with
// the delay doubling after each failure.
func (c *client) send(ctx context.Context, texts []string) ([][]float32, int, error) {
	delay := c.config.RetryDelay
	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("rate limit wait: %w", err)
		}
		callCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
		vecs, tokens, err := c.call(callCtx, texts)
		cancel()
		if err == nil {
			return vecs, tokens, nil
		}
		if attempt >= c.config.MaxRetries {
			return nil, 0, err
		}

		c.log.WithError(err).Warn("embedding request failed, retrying", "attempt", attempt+1, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// GetStats returns current embedding statistics.
func (c *client) GetStats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

func (c *client) updateStats(textCount, tokens int, latency time.Duration) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	c.stats.TotalRequests++
	c.stats.TotalTokens += int64(tokens)
	c.stats.TotalTexts += int64(textCount)

	totalLatency := c.stats.AvgLatencyMs * float64(c.stats.TotalRequests-1)
	c.stats.AvgLatencyMs = (totalLatency + float64(latency.Milliseconds())) / float64(c.stats.TotalRequests)
}

func (c *client) incrementError() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.Errors++
}

// CosineSimilarity calculates cosine similarity between two embeddings.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}
