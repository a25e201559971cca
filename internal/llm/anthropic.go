package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicMaxTokens is used when neither the request nor the config sets a
// limit; the Messages API requires one.
const anthropicMaxTokens = 4096

// jsonInstruction is appended to the system prompt for JSONOutput requests
// since the Messages API has no response format switch.
const jsonInstruction = "Respond with JSON only."

// AnthropicProvider serves Claude models through the Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
	cfg    ProviderConfig
	logger *slog.Logger
}

func NewAnthropicProvider(cfg ProviderConfig, logger *slog.Logger) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  nameOr(cfg.Model, GetDefaultModel(string(ProviderAnthropic))),
		cfg:    cfg,
		logger: logger.With("component", "llm", "provider", string(ProviderAnthropic)),
	}, nil
}

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	maxTokens, temperature := p.cfg.limits(req)
	if maxTokens == 0 {
		maxTokens = anthropicMaxTokens
	}

	turns := make([]anthropic.MessageParam, len(req.Messages))
	for i, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			turns[i] = anthropic.NewAssistantMessage(block)
		} else {
			turns[i] = anthropic.NewUserMessage(block)
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  turns,
	}
	system := req.SystemPrompt
	if req.JSONOutput {
		system = strings.TrimSpace(system + "\n" + jsonInstruction)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if temperature > 0 {
		params.Temperature = anthropic.Float(temperature)
	}

	p.logger.Debug("messages request", "model", p.model, "messages", len(turns))
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	stop := StopReasonEndTurn
	switch string(msg.StopReason) {
	case "max_tokens":
		stop = StopReasonMaxTokens
	case "stop_sequence":
		stop = StopReasonStop
	case "refusal":
		stop = StopReasonBlocked
	}
	return &ChatResponse{
		Text:       text.String(),
		StopReason: stop,
		Usage:      Usage{InputTokens: int(msg.Usage.InputTokens), OutputTokens: int(msg.Usage.OutputTokens)},
		Model:      string(msg.Model),
	}, nil
}

func (p *AnthropicProvider) Name() string  { return string(ProviderAnthropic) }
func (p *AnthropicProvider) Model() string { return p.model }
