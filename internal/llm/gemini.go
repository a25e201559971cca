package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface over the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
	logger *slog.Logger
	config ProviderConfig
}

// NewGeminiProvider creates a Gemini provider. An empty APIKey is rejected so the
// SDK never silently falls back to ambient credentials.
func NewGeminiProvider(ctx context.Context, cfg ProviderConfig, logger *slog.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := nameOr(cfg.Model, GetDefaultModel(string(ProviderGemini)))
	return &GeminiProvider{
		client: client,
		model:  model,
		logger: logger.With("component", "gemini_provider"),
		config: cfg,
	}, nil
}

// Chat sends a chat request to Gemini and returns the response.
func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	genCfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	maxTokens, temperature := p.config.limits(req)
	if temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(temperature))
	}
	if maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(maxTokens)
	}
	if req.JSONOutput {
		genCfg.ResponseMIMEType = "application/json"
	}

	p.logger.Debug("sending request to Gemini",
		"model", p.model,
		"message_count", len(contents),
	)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	out := &ChatResponse{
		Text:       resp.Text(),
		StopReason: StopReasonEndTurn,
		Model:      p.model,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		switch resp.Candidates[0].FinishReason {
		case genai.FinishReasonMaxTokens:
			out.StopReason = StopReasonMaxTokens
		case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist:
			out.StopReason = StopReasonBlocked
		}
	}
	return out, nil
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return string(ProviderGemini)
}

// Model returns the model name.
func (p *GeminiProvider) Model() string {
	return p.model
}
