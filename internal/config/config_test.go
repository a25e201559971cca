package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"GEMINI_MODEL", "VECTOR_BACKEND", "EMBEDDING_PROVIDER", "FETCH_WORKERS", "CREWAI_ENABLED", "BATCH_DELAY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, "text-embedding-004", cfg.Embedding.Model)
	assert.Equal(t, "pinecone", cfg.Vector.Backend)
	assert.Equal(t, "hikma-fatwas", cfg.Vector.PineconeIndex)
	assert.Equal(t, 10, cfg.Sources.Workers)
	assert.Equal(t, 30*time.Second, cfg.Sources.HadithTimeout)
	assert.Equal(t, 15*time.Second, cfg.Sources.QuranTimeout)
	assert.Equal(t, 100, cfg.Ingest.HadithBatchSize)
	assert.Equal(t, 20, cfg.Ingest.QuranBatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.BatchDelay)
	assert.False(t, cfg.Agent.Enabled)
}

func TestLoad_AgentFlag(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"YES", true},
		{"0", false},
		{"no", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("CREWAI_ENABLED", tt.value)
			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Agent.Enabled)
		})
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "faiss")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VECTOR_BACKEND")
}

func TestValidateIngest_ReportsMissingCredentials(t *testing.T) {
	cfg := &Config{
		Embedding: EmbeddingConfig{Provider: "gemini"},
		Vector:    VectorConfig{Backend: "pinecone"},
	}

	err := cfg.ValidateIngest(true)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{"HADITH_API_KEY", "PINECONE_API_KEY", "GEMINI_API_KEY"}, cfgErr.Missing)

	cfg.Vector.Backend = "memory"
	cfg.Embedding.Provider = "mock"
	assert.NoError(t, cfg.ValidateIngest(false))
}

func TestValidateGrading(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"nothing configured", Config{}, true},
		{"gemini key", Config{Gemini: GeminiConfig{APIKey: "k"}}, false},
		{"agent enabled", Config{Agent: AgentConfig{Enabled: true}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateGrading()
			if tt.wantErr {
				var cfgErr *ConfigError
				assert.True(t, errors.As(err, &cfgErr))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("HIKMA_TEST_A=from-file\nHIKMA_TEST_B=from-file\n"), 0o600))

	t.Setenv("HIKMA_TEST_A", "from-env")
	os.Unsetenv("HIKMA_TEST_B")
	t.Cleanup(func() { os.Unsetenv("HIKMA_TEST_B") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-env", os.Getenv("HIKMA_TEST_A"))
	assert.Equal(t, "from-file", os.Getenv("HIKMA_TEST_B"))
}
