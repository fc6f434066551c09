package llm

import (
	"context"
	"fmt"
)

// PromptDisambiguator implements Disambiguator on top of any TextGenerator:
// it renders the disambiguation prompt, runs a single completion, and parses
// the JSON verdict. Retry and timeout policy live in the underlying client;
// this layer mandates no retries of its own.
type PromptDisambiguator struct {
	generator TextGenerator
}

// NewPromptDisambiguator creates a disambiguator backed by the given
// text generator.
func NewPromptDisambiguator(generator TextGenerator) *PromptDisambiguator {
	return &PromptDisambiguator{generator: generator}
}

// Disambiguate asks the arbiter whether the candidate duplicates the match
// and returns its verdict verbatim.
func (d *PromptDisambiguator) Disambiguate(ctx context.Context, req DisambiguationRequest) (*Verdict, error) {
	prompt := BuildDisambiguationPrompt(req)

	response, err := d.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("disambiguation call failed: %w", err)
	}

	verdict, err := ParseVerdict(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return verdict, nil
}

// Compile-time assertion.
var _ Disambiguator = (*PromptDisambiguator)(nil)
