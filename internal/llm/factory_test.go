package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateProviderConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		wantErr bool
	}{
		{"gemini with key", ProviderConfig{Provider: "gemini", APIKey: "k"}, false},
		{"gemini without key", ProviderConfig{Provider: "gemini"}, true},
		{"anthropic without key", ProviderConfig{Provider: "Anthropic"}, true},
		{"openai without key", ProviderConfig{Provider: "openai"}, true},
		{"ollama needs no key", ProviderConfig{Provider: "ollama"}, false},
		{"lmstudio needs no key", ProviderConfig{Provider: "lmstudio"}, false},
		{"unknown", ProviderConfig{Provider: "crewai"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProviderConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetDefaults(t *testing.T) {
	assert.Equal(t, "gemini-2.5-flash", GetDefaultModel("gemini"))
	assert.Equal(t, "llama3.2", GetDefaultModel("OLLAMA"))
	assert.Equal(t, "", GetDefaultModel("unknown"))
	assert.Equal(t, "http://localhost:1234/v1", GetDefaultBaseURL("lmstudio"))
	assert.Equal(t, "", GetDefaultBaseURL("gemini"))
}

func TestNewProvider_OpenAICompatChat(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "llama3.2",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "[{\"type\":\"mcq\"}]"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer srv.Close()

	p, err := NewProvider(context.Background(), ProviderConfig{Provider: "ollama", BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
	assert.Equal(t, "llama3.2", p.Model())

	text, err := Complete(context.Background(), p, "You write quizzes.", "Create one question.", true)
	require.NoError(t, err)
	assert.Equal(t, `[{"type":"mcq"}]`, text)

	messages, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])

	format, ok := gotBody["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestNewProvider_Unsupported(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Provider: "crewai"}, nil)
	assert.Error(t, err)
}
