package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/alqutdigital/hikma/pkg/logger"
)

// GeminiEmbedder implements embedding generation using the Gemini embedContent API.
type GeminiEmbedder struct {
	*client
	api *genai.Client
}

// NewGeminiEmbedder creates a new Gemini embedder.
func NewGeminiEmbedder(ctx context.Context, cfg Config, log *logger.Logger) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	if cfg.TaskType == "" {
		cfg.TaskType = "RETRIEVAL_DOCUMENT"
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	api, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	e := &GeminiEmbedder{api: api}
	e.client = newClient(cfg, log, e.doEmbedBatch)
	return e, nil
}

// Embed generates an embedding for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text)
}

// EmbedBatch generates embeddings for multiple texts.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embedBatch(ctx, texts)
}

func (e *GeminiEmbedder) doEmbedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	embedCfg := &genai.EmbedContentConfig{TaskType: e.config.TaskType}
	if e.config.Dimension > 0 {
		embedCfg.OutputDimensionality = genai.Ptr(int32(e.config.Dimension))
	}

	resp, err := e.api.Models.EmbedContent(ctx, e.config.Model, contents, embedCfg)
	if err != nil {
		return nil, 0, fmt.Errorf("gemini embed content: %w", err)
	}

	embeddings := make([][]float32, 0, len(resp.Embeddings))
	tokens := 0
	for _, emb := range resp.Embeddings {
		if emb == nil {
			embeddings = append(embeddings, nil)
			continue
		}
		embeddings = append(embeddings, emb.Values)
		if emb.Statistics != nil {
			tokens += int(emb.Statistics.TokenCount)
		}
	}
	return embeddings, tokens, nil
}

// Dimension returns the embedding dimension.
func (e *GeminiEmbedder) Dimension() int {
	if e.config.Dimension > 0 {
		return e.config.Dimension
	}
	return 768
}

// ModelName returns the model name.
func (e *GeminiEmbedder) ModelName() string {
	return e.config.Model
}
