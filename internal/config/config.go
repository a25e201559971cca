// Package config provides configuration management for the hikma commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Gemini    GeminiConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	Sources   SourcesConfig
	Ingest    IngestConfig
	Agent     AgentConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Storage   StorageConfig
	Log       LogConfig
}

// GeminiConfig holds direct Gemini access settings.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider     string // gemini, openai, mock
	Model        string
	OpenAIKey    string
	RateLimitRPS int
	MaxRetries   int
	MaxTokens    int
}

// VectorConfig holds vector store settings.
type VectorConfig struct {
	Backend            string // pinecone, qdrant, memory
	PineconeAPIKey     string
	PineconeIndex      string
	PineconeAPIVersion string
	PineconeBaseURL    string
	QdrantAddr         string
	QdrantCollection   string
	Dimension          int
}

// SourcesConfig holds the external corpus API settings.
type SourcesConfig struct {
	HadithAPIKey  string
	HadithBaseURL string
	QuranBaseURL  string
	Workers       int
	RateLimit     float64 // requests per second across all workers, 0 disables
	HadithTimeout time.Duration
	QuranTimeout  time.Duration
}

// IngestConfig holds batch pipeline settings.
type IngestConfig struct {
	HadithBatchSize int
	QuranBatchSize  int
	BatchDelay      time.Duration
	ItemDelay       time.Duration
}

// AgentConfig holds settings for the agent tier.
type AgentConfig struct {
	Enabled         bool
	Provider        string
	Model           string
	AnthropicKey    string
	OpenAIKey       string
	OllamaBaseURL   string
	LMStudioBaseURL string
	MaxTokens       int
	Temperature     float64
}

// RedisConfig holds Redis configuration for the embedding cache.
type RedisConfig struct {
	URL          string
	EmbeddingTTL time.Duration
}

// NATSConfig holds NATS configuration for ingestion events.
type NATSConfig struct {
	URL  string
	Name string
}

// StorageConfig holds object storage configuration for corpus snapshots.
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	Region          string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level     string
	Format    string
	AddSource bool
}

// ConfigError reports mandatory settings that are missing.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}

// LoadDotEnv loads variables from the given files without overriding the environment.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Embedding: EmbeddingConfig{
			Provider:     strings.ToLower(getEnv("EMBEDDING_PROVIDER", "gemini")),
			Model:        getEnv("EMBEDDING_MODEL", "text-embedding-004"),
			OpenAIKey:    getEnv("OPENAI_API_KEY", ""),
			RateLimitRPS: getEnvAsInt("EMBEDDING_RATE_LIMIT", 10),
			MaxRetries:   getEnvAsInt("EMBEDDING_MAX_RETRIES", 0),
			MaxTokens:    getEnvAsInt("EMBED_MAX_TOKENS", 2048),
		},
		Vector: VectorConfig{
			Backend:            strings.ToLower(getEnv("VECTOR_BACKEND", "pinecone")),
			PineconeAPIKey:     getEnv("PINECONE_API_KEY", ""),
			PineconeIndex:      getEnv("PINECONE_INDEX", "hikma-fatwas"),
			PineconeAPIVersion: getEnv("PINECONE_API_VERSION", "2025-04"),
			PineconeBaseURL:    getEnv("PINECONE_BASE_URL", "https://api.pinecone.io"),
			QdrantAddr:         getEnv("QDRANT_ADDR", "localhost:6334"),
			QdrantCollection:   getEnv("QDRANT_COLLECTION", "hikma-fatwas"),
			Dimension:          getEnvAsInt("VECTOR_DIMENSION", 768),
		},
		Sources: SourcesConfig{
			HadithAPIKey:  getEnv("HADITH_API_KEY", ""),
			HadithBaseURL: getEnv("HADITH_API_BASE_URL", "https://hadithapi.com/api"),
			QuranBaseURL:  getEnv("QURAN_API_BASE_URL", "http://api.alquran.cloud/v1"),
			Workers:       getEnvAsInt("FETCH_WORKERS", 10),
			RateLimit:     getEnvAsFloat("FETCH_RATE_LIMIT", 0),
			HadithTimeout: getEnvAsDuration("HADITH_API_TIMEOUT", 30*time.Second),
			QuranTimeout:  getEnvAsDuration("QURAN_API_TIMEOUT", 15*time.Second),
		},
		Ingest: IngestConfig{
			HadithBatchSize: getEnvAsInt("HADITH_BATCH_SIZE", 100),
			QuranBatchSize:  getEnvAsInt("QURAN_BATCH_SIZE", 20),
			BatchDelay:      getEnvAsDuration("BATCH_DELAY", 500*time.Millisecond),
			ItemDelay:       getEnvAsDuration("ITEM_DELAY", 100*time.Millisecond),
		},
		Agent: AgentConfig{
			Enabled:         getEnvAsFlag("CREWAI_ENABLED"),
			Provider:        strings.ToLower(getEnv("AGENT_PROVIDER", "gemini")),
			Model:           getEnv("AGENT_MODEL", ""),
			AnthropicKey:    getEnv("ANTHROPIC_API_KEY", ""),
			OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
			OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
			LMStudioBaseURL: getEnv("LMSTUDIO_BASE_URL", "http://localhost:1234/v1"),
			MaxTokens:       getEnvAsInt("AGENT_MAX_TOKENS", 4096),
			Temperature:     getEnvAsFloat("AGENT_TEMPERATURE", 0.3),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			EmbeddingTTL: getEnvAsDuration("EMBEDDING_CACHE_TTL", 30*24*time.Hour),
		},
		NATS: NATSConfig{
			URL:  getEnv("NATS_URL", ""),
			Name: getEnv("NATS_CLIENT_NAME", "hikma-ingest"),
		},
		Storage: StorageConfig{
			Endpoint:        getEnv("STORAGE_ENDPOINT", ""),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", ""),
			BucketName:      getEnv("STORAGE_BUCKET", "hikma-corpus"),
			UseSSL:          getEnvAsBool("STORAGE_USE_SSL", false),
			Region:          getEnv("STORAGE_REGION", "us-east-1"),
		},
		Log: LogConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "json"),
			AddSource: getEnvAsBool("LOG_ADD_SOURCE", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks enumerated settings and numeric bounds.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "gemini", "openai", "mock":
	default:
		return fmt.Errorf("unsupported EMBEDDING_PROVIDER: %s", c.Embedding.Provider)
	}
	switch c.Vector.Backend {
	case "pinecone", "qdrant", "memory":
	default:
		return fmt.Errorf("unsupported VECTOR_BACKEND: %s", c.Vector.Backend)
	}
	if c.Sources.Workers <= 0 {
		return fmt.Errorf("FETCH_WORKERS must be positive, got %d", c.Sources.Workers)
	}
	if c.Ingest.HadithBatchSize <= 0 || c.Ingest.QuranBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	return nil
}

// ValidateIngest checks the credentials an ingestion run cannot do without.
func (c *Config) ValidateIngest(needHadith bool) error {
	var missing []string
	if needHadith && c.Sources.HadithAPIKey == "" {
		missing = append(missing, "HADITH_API_KEY")
	}
	missing = append(missing, c.storeCredentials()...)
	switch c.Embedding.Provider {
	case "gemini":
		if c.Gemini.APIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	case "openai":
		if c.Embedding.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// ValidateIndex checks the credentials needed to talk to the vector store.
func (c *Config) ValidateIndex() error {
	if missing := c.storeCredentials(); len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// ValidateGrading reports whether any generation or grading backend is
// configured. The agent tier may still fail to build at run time.
func (c *Config) ValidateGrading() error {
	if c.Agent.Enabled || c.Gemini.APIKey != "" {
		return nil
	}
	return &ConfigError{Missing: []string{"GEMINI_API_KEY or CREWAI_ENABLED"}}
}

func (c *Config) storeCredentials() []string {
	if c.Vector.Backend == "pinecone" && c.Vector.PineconeAPIKey == "" {
		return []string{"PINECONE_API_KEY"}
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsFlag accepts 1, true and yes in any case.
func getEnvAsFlag(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
