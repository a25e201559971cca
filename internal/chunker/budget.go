// Package chunker keeps embedding input within a model's token budget.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding matches the tokenizer of the OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

// runesPerToken approximates token counts when no tokenizer is available.
const runesPerToken = 4

// BudgetConfig holds configuration for a TextBudget.
type BudgetConfig struct {
	MaxTokens int    // Maximum tokens kept per text (default: 2048)
	Encoding  string // tiktoken encoding (default: cl100k_base)
}

// DefaultBudgetConfig returns the default budget configuration.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		MaxTokens: 2048,
		Encoding:  DefaultEncoding,
	}
}

// TextBudget truncates text to a token limit.
type TextBudget struct {
	config    BudgetConfig
	tokenizer *tiktoken.Tiktoken
}

// NewTextBudget creates a budget backed by a tiktoken encoding. An unknown
// encoding falls back to cl100k_base.
func NewTextBudget(cfg BudgetConfig) (*TextBudget, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultBudgetConfig().MaxTokens
	}
	if cfg.Encoding == "" {
		cfg.Encoding = DefaultEncoding
	}

	tokenizer, err := tiktoken.GetEncoding(cfg.Encoding)
	if err != nil {
		tokenizer, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
		}
	}

	return &TextBudget{config: cfg, tokenizer: tokenizer}, nil
}

// NewApproxBudget creates a budget that estimates tokens from rune counts.
// Used when the tokenizer's vocabulary cannot be loaded.
func NewApproxBudget(maxTokens int) *TextBudget {
	if maxTokens <= 0 {
		maxTokens = DefaultBudgetConfig().MaxTokens
	}
	return &TextBudget{config: BudgetConfig{MaxTokens: maxTokens}}
}

// MaxTokens returns the configured limit.
func (b *TextBudget) MaxTokens() int {
	return b.config.MaxTokens
}

// Count returns the number of tokens in text.
func (b *TextBudget) Count(text string) int {
	if b.tokenizer == nil {
		n := utf8.RuneCountInString(text)
		return (n + runesPerToken - 1) / runesPerToken
	}
	return len(b.tokenizer.Encode(text, nil, nil))
}

// Fit returns text unchanged when it is within budget. Otherwise it cuts at
// the limit and backs off to the last sentence or line break in the second
// half of the kept text, if any.
func (b *TextBudget) Fit(text string) (string, bool) {
	if b.tokenizer == nil {
		limit := b.config.MaxTokens * runesPerToken
		if utf8.RuneCountInString(text) <= limit {
			return text, false
		}
		return backOff([]rune(text)[:limit]), true
	}

	tokens := b.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= b.config.MaxTokens {
		return text, false
	}
	kept := b.tokenizer.Decode(tokens[:b.config.MaxTokens])
	// a cut inside a multi-byte sequence decodes to a replacement rune
	kept = strings.TrimRight(kept, "�")
	return backOff([]rune(kept)), true
}

func backOff(r []rune) string {
	s := string(r)
	cut := strings.LastIndexAny(s, ".!?\n")
	if cut >= len(s)/2 {
		return strings.TrimSpace(s[:cut+1])
	}
	return strings.TrimSpace(s)
}
