// Package llm provides the outbound language-model surface of the
// resolution layer: an embedding generator used by the entity finder's
// semantic strategy, and a disambiguator used by recognition's ambiguous
// middle zone. All HTTP calls are wrapped with circuit breaker protection.
package llm

import (
	"context"
	"errors"
)

// ErrUpstream indicates that an embedding or LLM call failed.
// Callers decide whether to swallow it (alignment) or convert it into a
// non-match decision (recognition).
var ErrUpstream = errors.New("upstream llm failure")

// TextGenerator is the interface for LLM text completion.
// Disambiguation prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Its absence disables the finder's embedding strategy and the scorer's
// embedding fallback; nothing else degrades.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// DisambiguationRequest carries everything the arbiter needs to decide
// whether a candidate record duplicates the best stored match.
type DisambiguationRequest struct {
	// Candidate is the incoming record data.
	Candidate map[string]interface{}

	// Match is the best-scoring stored record.
	Match map[string]interface{}

	// Confidence is the heuristic score that landed in the ambiguous zone.
	Confidence float64

	// Context is free-form caller context (e.g. what kind of records these
	// are). Optional.
	Context string

	// CustomPrompt replaces the built-in prompt when set.
	CustomPrompt string

	// AgentGoal is an optional statement of what the calling agent is
	// trying to accomplish, included to steer borderline judgments.
	AgentGoal string
}

// Verdict is the arbiter's decision, returned verbatim to recognition
// callers.
type Verdict struct {
	IsMatch            bool    `json:"is_match"`
	AdjustedConfidence float64 `json:"adjusted_confidence"`
	Explanation        string  `json:"explanation"`
}

// Disambiguator is the external LLM arbiter consulted only for confidence
// scores inside the ambiguous middle zone.
type Disambiguator interface {
	Disambiguate(ctx context.Context, req DisambiguationRequest) (*Verdict, error)
}
