// Package config provides configuration management for Cognate.
// It loads settings from an optional YAML file and from environment
// variables with the COGNATE_ prefix; environment variables take precedence
// over file values, and sensible defaults cover everything else.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the resolution layer.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	LLM        LLMConfig        `yaml:"llm"`
	Resolution ResolutionConfig `yaml:"resolution"`
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	// Engine selects the backend: sqlite or postgres (default: sqlite).
	Engine string `yaml:"engine"`

	// DSN is the database connection string. For sqlite this is a file
	// path or ":memory:"; for postgres a connection URL.
	DSN string `yaml:"dsn"`
}

// LLMConfig contains LLM provider configuration for disambiguation and
// embeddings.
type LLMConfig struct {
	// Provider selects the disambiguation backend: ollama, openai,
	// anthropic, or none (default: none; recognition then resolves the
	// ambiguous zone as no-match).
	Provider string `yaml:"provider"`

	OllamaURL            string `yaml:"ollama_url"`             // default: http://localhost:11434
	OllamaModel          string `yaml:"ollama_model"`           // default: qwen2.5:7b
	OllamaEmbeddingModel string `yaml:"ollama_embedding_model"` // default: nomic-embed-text

	OpenAIAPIKey         string `yaml:"openai_api_key"`
	OpenAIModel          string `yaml:"openai_model"`           // default: gpt-4o-mini
	OpenAIEmbeddingModel string `yaml:"openai_embedding_model"` // default: text-embedding-3-small

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"` // default: claude-haiku-4-5-20251001

	// EmbeddingsEnabled gates the embedding strategy independently of the
	// disambiguation provider (default: true when the provider supports
	// embeddings).
	EmbeddingsEnabled bool `yaml:"embeddings_enabled"`
}

// ResolutionConfig contains matching thresholds.
type ResolutionConfig struct {
	// MatchThreshold is the default embedding-similarity threshold for
	// entity matching (default: 0.6).
	MatchThreshold float64 `yaml:"match_threshold"`

	// RecognitionThreshold is the default duplicate-confidence threshold
	// for recognition (default: 0.75).
	RecognitionThreshold float64 `yaml:"recognition_threshold"`

	// AutoCreate controls whether alignment creates new entities for
	// unmatched values by default (default: true).
	AutoCreate bool `yaml:"auto_create"`
}

// LoadConfig loads configuration from environment variables with defaults.
func LoadConfig() *Config {
	cfg := defaultConfig()
	applyEnv(cfg)
	return cfg
}

// LoadConfigFile loads configuration from a YAML file, then applies
// environment variable overrides on top.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine: "sqlite",
			DSN:    "./data/cognate.db",
		},
		LLM: LLMConfig{
			Provider:             "none",
			OllamaURL:            "http://localhost:11434",
			OllamaModel:          "qwen2.5:7b",
			OllamaEmbeddingModel: "nomic-embed-text",
			OpenAIModel:          "gpt-4o-mini",
			OpenAIEmbeddingModel: "text-embedding-3-small",
			AnthropicModel:       "claude-haiku-4-5-20251001",
			EmbeddingsEnabled:    true,
		},
		Resolution: ResolutionConfig{
			MatchThreshold:       0.6,
			RecognitionThreshold: 0.75,
			AutoCreate:           true,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("COGNATE_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DSN = getEnv("COGNATE_DSN", cfg.Storage.DSN)

	cfg.LLM.Provider = getEnv("COGNATE_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.OllamaURL = getEnv("COGNATE_OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.OllamaModel = getEnv("COGNATE_OLLAMA_MODEL", cfg.LLM.OllamaModel)
	cfg.LLM.OllamaEmbeddingModel = getEnv("COGNATE_OLLAMA_EMBEDDING_MODEL", cfg.LLM.OllamaEmbeddingModel)
	cfg.LLM.OpenAIAPIKey = getEnv("COGNATE_OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.OpenAIModel = getEnv("COGNATE_OPENAI_MODEL", cfg.LLM.OpenAIModel)
	cfg.LLM.OpenAIEmbeddingModel = getEnv("COGNATE_OPENAI_EMBEDDING_MODEL", cfg.LLM.OpenAIEmbeddingModel)
	cfg.LLM.AnthropicAPIKey = getEnv("COGNATE_ANTHROPIC_API_KEY", cfg.LLM.AnthropicAPIKey)
	cfg.LLM.AnthropicModel = getEnv("COGNATE_ANTHROPIC_MODEL", cfg.LLM.AnthropicModel)
	cfg.LLM.EmbeddingsEnabled = getEnvBool("COGNATE_EMBEDDINGS_ENABLED", cfg.LLM.EmbeddingsEnabled)

	cfg.Resolution.MatchThreshold = getEnvFloat("COGNATE_MATCH_THRESHOLD", cfg.Resolution.MatchThreshold)
	cfg.Resolution.RecognitionThreshold = getEnvFloat("COGNATE_RECOGNITION_THRESHOLD", cfg.Resolution.RecognitionThreshold)
	cfg.Resolution.AutoCreate = getEnvBool("COGNATE_AUTO_CREATE", cfg.Resolution.AutoCreate)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" and "false", "0", "no".
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value if unset or unparseable.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
