package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alqutdigital/hikma/pkg/logger"
)

const defaultOpenAIModel = "text-embedding-3-small"

// openAIDimensions are the native output sizes of the embedding models.
var openAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder calls the /embeddings endpoint of OpenAI or any server that
// mirrors it.
type OpenAIEmbedder struct {
	*client
	api *openai.Client
}

func NewOpenAIEmbedder(cfg Config, log *logger.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	e := &OpenAIEmbedder{api: openai.NewClientWithConfig(apiCfg)}
	e.client = newClient(cfg, log, e.request)
	return e, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text)
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embedBatch(ctx, texts)
}

// request sends one call. Results are placed by their reported index since
// the API does not promise input order.
func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, int, error) {
	req := openai.EmbeddingRequest{Input: texts, Model: openai.EmbeddingModel(e.config.Model)}
	// ada-002 rejects the dimensions parameter.
	if e.config.Dimension > 0 && e.config.Model != string(openai.AdaEmbeddingV2) {
		req.Dimensions = e.config.Dimension
	}

	resp, err := e.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("openai embeddings: %w", err)
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		slot := i
		if d.Index >= 0 && d.Index < len(out) {
			slot = d.Index
		}
		out[slot] = d.Embedding
	}
	return out, resp.Usage.TotalTokens, nil
}

// Dimension is the configured size, else the model's native size.
func (e *OpenAIEmbedder) Dimension() int {
	if e.config.Dimension > 0 {
		return e.config.Dimension
	}
	if d, ok := openAIDimensions[e.config.Model]; ok {
		return d
	}
	return openAIDimensions[defaultOpenAIModel]
}

func (e *OpenAIEmbedder) ModelName() string { return e.config.Model }
