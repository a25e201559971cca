package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// keylessToken is sent to local servers that ignore the Authorization header
// but reject an empty one.
const keylessToken = "local"

// OpenAICompatProvider talks to any server exposing the OpenAI chat
// completions API: OpenAI itself, Ollama and LM Studio.
type OpenAICompatProvider struct {
	client *openai.Client
	name   string
	model  string
	cfg    ProviderConfig
	logger *slog.Logger
}

func NewOpenAICompatProvider(cfg ProviderConfig, logger *slog.Logger) (*OpenAICompatProvider, error) {
	name := nameOr(cfg.Provider, "openai_compat")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base URL is required", name)
	}
	if logger == nil {
		logger = slog.Default()
	}

	token := cfg.APIKey
	if token == "" {
		token = keylessToken
	}
	clientCfg := openai.DefaultConfig(token)
	clientCfg.BaseURL = cfg.BaseURL

	return &OpenAICompatProvider{
		client: openai.NewClientWithConfig(clientCfg),
		name:   name,
		model:  nameOr(cfg.Model, GetDefaultModel(name)),
		cfg:    cfg,
		logger: logger.With("component", "llm", "provider", name),
	}, nil
}

func (p *OpenAICompatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	maxTokens, temperature := p.cfg.limits(req)

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	body := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	}
	if req.JSONOutput {
		body.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	p.logger.Debug("chat completion", "model", p.model, "base_url", p.cfg.BaseURL, "messages", len(msgs))
	resp, err := p.client.CreateChatCompletion(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.name)
	}

	stop := StopReasonEndTurn
	switch resp.Choices[0].FinishReason {
	case openai.FinishReasonLength:
		stop = StopReasonMaxTokens
	case openai.FinishReasonContentFilter:
		stop = StopReasonBlocked
	}
	return &ChatResponse{
		Text:       resp.Choices[0].Message.Content,
		StopReason: stop,
		Usage:      Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
		Model:      resp.Model,
	}, nil
}

func (p *OpenAICompatProvider) Name() string  { return p.name }
func (p *OpenAICompatProvider) Model() string { return p.model }
