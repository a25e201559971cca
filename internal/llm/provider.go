// Package llm puts the text-generation backends (Gemini, Anthropic and
// OpenAI-compatible servers) behind one chat interface.
package llm

import (
	"context"
	"strings"
)

// Provider is a text-generation backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	Model() string
}

type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonStop      StopReason = "stop"
	StopReasonBlocked   StopReason = "blocked"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: text}
}

// ChatRequest is one generation call. Zero MaxTokens and Temperature fall
// back to the provider's configured defaults.
type ChatRequest struct {
	Messages     []Message `json:"messages"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float64   `json:"temperature,omitempty"`
	JSONOutput   bool      `json:"json_output,omitempty"` // request a JSON document where supported
}

type ChatResponse struct {
	Text       string     `json:"text"`
	StopReason StopReason `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
	Model      string     `json:"model"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ProviderConfig selects and configures a provider. BaseURL applies to
// OpenAI-compatible servers only.
type ProviderConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	APIKey      string  `json:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// limits resolves a request's token limit and temperature against the
// configured defaults. Zero means unset.
func (c ProviderConfig) limits(req ChatRequest) (maxTokens int, temperature float64) {
	maxTokens, temperature = req.MaxTokens, req.Temperature
	if maxTokens == 0 {
		maxTokens = c.MaxTokens
	}
	if temperature == 0 {
		temperature = c.Temperature
	}
	return maxTokens, temperature
}

func nameOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// Complete sends a single user prompt and returns the trimmed response text.
func Complete(ctx context.Context, p Provider, system, prompt string, jsonOutput bool) (string, error) {
	resp, err := p.Chat(ctx, ChatRequest{
		Messages:     []Message{NewTextMessage(RoleUser, prompt)},
		SystemPrompt: system,
		JSONOutput:   jsonOutput,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
