package llm

import (
	"fmt"

	"github.com/scrypster/cognate/internal/config"
)

// NewDisambiguator creates the configured disambiguation arbiter.
// Returns (nil, nil) when the provider is "none": recognition then resolves
// the ambiguous middle zone as no-match instead of escalating.
func NewDisambiguator(cfg config.LLMConfig) (Disambiguator, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		return NewPromptDisambiguator(NewOpenAIClient(OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		})), nil
	case "anthropic":
		return NewPromptDisambiguator(NewAnthropicClient(AnthropicConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
		})), nil
	case "ollama":
		return NewPromptDisambiguator(NewOllamaClient(OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
		})), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the configured embedding generator.
// Returns (nil, nil) when embeddings are disabled or the provider has no
// embeddings endpoint (anthropic, none): the finder's embedding strategy
// and the scorer's embedding fallback are then skipped.
func NewEmbeddingGenerator(cfg config.LLMConfig) (EmbeddingGenerator, error) {
	if !cfg.EmbeddingsEnabled {
		return nil, nil
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIEmbeddingModel,
		}), nil
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaEmbeddingModel,
		}), nil
	case "", "none", "anthropic":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
