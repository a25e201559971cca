// Package rag retrieves Quran and Hadith passages for a natural-language query
// and formats them as citable context.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alqutdigital/hikma/internal/storage"
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("query is empty")

// Embedder generates query embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrieverConfig holds configuration for the retriever.
type RetrieverConfig struct {
	DefaultTopK int
	MinScore    float64
	Overfetch   int // query TopK*Overfetch candidates before filtering
}

// DefaultRetrieverConfig returns a default configuration.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		DefaultTopK: 5,
		Overfetch:   2,
	}
}

// Options narrows a single search.
type Options struct {
	TopK     int
	Type     string // "quran", "hadith" or empty for both
	MinScore float64
}

// Result is the outcome of a search.
type Result struct {
	Query    string    `json:"query"`
	Language Language  `json:"language"`
	Passages []Passage `json:"passages"`
	Sources  []string  `json:"sources"`
	Timing   Timing    `json:"timing"`
}

// Timing tracks where a search spent its time.
type Timing struct {
	EmbeddingMs int64 `json:"embedding_ms"`
	QueryMs     int64 `json:"query_ms"`
	TotalMs     int64 `json:"total_ms"`
}

// Retriever embeds queries and searches the vector store.
type Retriever struct {
	store    storage.VectorStore
	embedder Embedder
	logger   *slog.Logger
	config   RetrieverConfig
}

// NewRetriever creates a new Retriever instance.
func NewRetriever(store storage.VectorStore, embedder Embedder, logger *slog.Logger, config RetrieverConfig) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultRetrieverConfig()
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = def.DefaultTopK
	}
	if config.Overfetch <= 0 {
		config.Overfetch = def.Overfetch
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		logger:   logger.With("component", "retriever"),
		config:   config,
	}
}

// Search returns up to TopK passages for query, best first.
func (r *Retriever) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if opts.TopK <= 0 {
		opts.TopK = r.config.DefaultTopK
	}
	if opts.MinScore <= 0 {
		opts.MinScore = r.config.MinScore
	}

	result := &Result{Query: query, Language: DetectLanguage(query)}
	r.logger.Info("starting retrieval",
		"query", truncateQuery(query),
		"language", result.Language,
		"type", opts.Type,
		"top_k", opts.TopK,
	)

	embedStart := time.Now()
	embedding, err := r.embedder.Embed(ctx, query)
	result.Timing.EmbeddingMs = time.Since(embedStart).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	req := storage.QueryRequest{
		Vector: embedding,
		TopK:   opts.TopK * r.config.Overfetch,
	}
	if opts.Type != "" {
		req.Filter = map[string]any{"type": opts.Type}
	}

	queryStart := time.Now()
	matches, err := r.store.Query(ctx, req)
	result.Timing.QueryMs = time.Since(queryStart).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}

	for _, m := range matches {
		if len(result.Passages) == opts.TopK {
			break
		}
		if m.Score < opts.MinScore {
			continue
		}
		p := passageFromMatch(m, result.Language)
		// stores without server-side filtering still honor Type
		if opts.Type != "" && p.Type != opts.Type {
			continue
		}
		result.Passages = append(result.Passages, p)
	}
	result.Sources = Sources(result.Passages)
	result.Timing.TotalMs = time.Since(start).Milliseconds()

	r.logger.Info("retrieval completed",
		"candidates", len(matches),
		"results", len(result.Passages),
		"total_ms", result.Timing.TotalMs,
	)
	return result, nil
}

func truncateQuery(q string) string {
	r := []rune(q)
	if len(r) <= 60 {
		return q
	}
	return string(r[:60]) + "..."
}
