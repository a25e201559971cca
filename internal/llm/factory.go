package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ProviderType names a text-generation backend.
type ProviderType string

const (
	ProviderGemini    ProviderType = "gemini"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderOllama    ProviderType = "ollama"
	ProviderLMStudio  ProviderType = "lmstudio"
)

type providerDefaults struct {
	model   string
	baseURL string // OpenAI-compatible endpoint, empty for native SDKs
	keyless bool   // local servers accept any key
}

var providers = map[ProviderType]providerDefaults{
	ProviderGemini:    {model: "gemini-2.5-flash"},
	ProviderAnthropic: {model: "claude-sonnet-4-20250514"},
	ProviderOpenAI:    {model: "gpt-4o-mini", baseURL: "https://api.openai.com/v1"},
	ProviderOllama:    {model: "llama3.2", baseURL: "http://localhost:11434/v1", keyless: true},
	ProviderLMStudio:  {model: "local-model", baseURL: "http://localhost:1234/v1", keyless: true},
}

func lookup(provider string) (ProviderType, providerDefaults, bool) {
	t := ProviderType(strings.ToLower(strings.TrimSpace(provider)))
	def, ok := providers[t]
	return t, def, ok
}

// NewProvider builds the provider named by cfg.Provider, filling in the
// default model and base URL.
func NewProvider(ctx context.Context, cfg ProviderConfig, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ValidateProviderConfig(cfg); err != nil {
		return nil, err
	}

	t, def, _ := lookup(cfg.Provider)
	cfg.Provider = string(t)
	if cfg.Model == "" {
		cfg.Model = def.model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.baseURL
	}

	logger.Debug("creating LLM provider", "provider", t, "model", cfg.Model)
	switch t {
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg, logger)
	default:
		return NewOpenAICompatProvider(cfg, logger)
	}
}

// ValidateProviderConfig checks that the provider is known and, unless it is
// a local server, has an API key.
func ValidateProviderConfig(cfg ProviderConfig) error {
	t, def, ok := lookup(cfg.Provider)
	if !ok {
		return fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
	if !def.keyless && cfg.APIKey == "" {
		return fmt.Errorf("API key is required for %s provider", t)
	}
	return nil
}

// GetDefaultModel returns the default model for provider, or "" if unknown.
func GetDefaultModel(provider string) string {
	_, def, _ := lookup(provider)
	return def.model
}

// GetDefaultBaseURL returns the OpenAI-compatible endpoint for provider, or ""
// for providers with a native SDK.
func GetDefaultBaseURL(provider string) string {
	_, def, _ := lookup(provider)
	return def.baseURL
}
