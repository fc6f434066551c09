// Package resolve implements entity resolution: the strategy-cascade finder
// that maps a raw field value to canonical entity IDs, and the alignment
// service that persists those decisions.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/cognate/internal/llm"
	"github.com/scrypster/cognate/internal/normalize"
	"github.com/scrypster/cognate/internal/storage"
	"github.com/scrypster/cognate/pkg/types"
)

// ErrServiceUnavailable indicates an operation that requires an embedding
// generator was invoked without one configured.
var ErrServiceUnavailable = errors.New("embedding generator not configured")

// DefaultMatchThreshold is the embedding-similarity threshold used when the
// caller does not supply one.
const DefaultMatchThreshold = 0.6

// Strategy identifies which matching strategy produced a result.
type Strategy string

const (
	StrategyExact      Strategy = "exact"
	StrategyAlias      Strategy = "alias"
	StrategySimilarity Strategy = "similarity"
	StrategyEmbedding  Strategy = "embedding"
)

// Match is the result of resolving one value: the matching entity IDs, the
// strategy that found them, and (for embedding matches) the best cosine
// similarity.
type Match struct {
	EntityIDs  []string
	Strategy   Strategy
	Similarity float64
}

// Finder resolves raw field values to entity IDs by trying strategies in a
// fixed order (exact, alias, text similarity, embedding), stopping at
// the first one that yields a result. The cheap deterministic strategies
// run before the costly embedding call, which also makes the finder fully
// functional when no embedding backend is configured.
type Finder struct {
	entities storage.EntityStore
	embedder llm.EmbeddingGenerator // nil disables the embedding strategy
}

// NewFinder creates a finder over the given entity store. embedder may be
// nil; the embedding strategy is then skipped.
func NewFinder(entities storage.EntityStore, embedder llm.EmbeddingGenerator) *Finder {
	return &Finder{entities: entities, embedder: embedder}
}

// HasEmbedder reports whether the embedding strategy is available.
func (f *Finder) HasEmbedder() bool {
	return f.embedder != nil
}

// FindMatchingEntityIDs resolves value to the set of entity IDs that
// plausibly denote it. threshold <= 0 selects DefaultMatchThreshold.
// Running it twice with no intervening writes returns the same IDs.
func (f *Finder) FindMatchingEntityIDs(ctx context.Context, value, entityType, tenantID string, threshold float64) ([]string, error) {
	match, err := f.Resolve(ctx, value, entityType, tenantID, threshold)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, nil
	}
	return match.EntityIDs, nil
}

// Resolve runs the strategy cascade and returns the first non-empty match,
// or nil when no strategy matched. An embedding call failure is returned as
// an error wrapping llm.ErrUpstream; the deterministic strategies have
// already been tried at that point.
func (f *Finder) Resolve(ctx context.Context, value, entityType, tenantID string, threshold float64) (*Match, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}

	entities, err := f.entities.ListEntities(ctx, tenantID, entityType)
	if err != nil {
		return nil, fmt.Errorf("resolve: failed to list entities for %q: %w", entityType, err)
	}

	strategies := []struct {
		name Strategy
		fn   func(ctx context.Context, value string) (*Match, error)
	}{
		{StrategyExact, func(_ context.Context, v string) (*Match, error) {
			return findExact(entities, v), nil
		}},
		{StrategyAlias, func(_ context.Context, v string) (*Match, error) {
			return findAlias(entities, v), nil
		}},
		{StrategySimilarity, func(_ context.Context, v string) (*Match, error) {
			return findSimilar(entities, v), nil
		}},
		{StrategyEmbedding, func(ctx context.Context, v string) (*Match, error) {
			return f.findByEmbedding(ctx, v, entityType, tenantID, threshold)
		}},
	}

	for _, strategy := range strategies {
		match, err := strategy.fn(ctx, value)
		if err != nil {
			return nil, err
		}
		if match != nil && len(match.EntityIDs) > 0 {
			return match, nil
		}
	}

	return nil, nil
}

// FindExact runs only the exact strategy (case-insensitive canonical-name
// equality). Used by the ENTITY_EXACT filter operator.
func (f *Finder) FindExact(ctx context.Context, value, entityType, tenantID string) ([]string, error) {
	entities, err := f.entities.ListEntities(ctx, tenantID, entityType)
	if err != nil {
		return nil, fmt.Errorf("resolve: failed to list entities for %q: %w", entityType, err)
	}
	if m := findExact(entities, value); m != nil {
		return m.EntityIDs, nil
	}
	return nil, nil
}

// FindAlias runs only the alias strategy. Used by the ENTITY_ALIAS filter
// operator.
func (f *Finder) FindAlias(ctx context.Context, value, entityType, tenantID string) ([]string, error) {
	entities, err := f.entities.ListEntities(ctx, tenantID, entityType)
	if err != nil {
		return nil, fmt.Errorf("resolve: failed to list entities for %q: %w", entityType, err)
	}
	if m := findAlias(entities, value); m != nil {
		return m.EntityIDs, nil
	}
	return nil, nil
}

// FindFuzzy runs the fuzzy tail of the cascade: text similarity, then
// embedding when configured. Used by the ENTITY_FUZZY filter operator.
func (f *Finder) FindFuzzy(ctx context.Context, value, entityType, tenantID string, threshold float64) ([]string, error) {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}

	entities, err := f.entities.ListEntities(ctx, tenantID, entityType)
	if err != nil {
		return nil, fmt.Errorf("resolve: failed to list entities for %q: %w", entityType, err)
	}

	if m := findSimilar(entities, value); m != nil {
		return m.EntityIDs, nil
	}

	m, err := f.findByEmbedding(ctx, value, entityType, tenantID, threshold)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return m.EntityIDs, nil
	}
	return nil, nil
}

// Embed exposes the configured embedding generator for callers that attach
// vectors to newly created entities. Returns ErrServiceUnavailable when no
// generator is configured.
func (f *Finder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedder == nil {
		return nil, ErrServiceUnavailable
	}
	return f.embedder.Embed(ctx, text)
}

// findExact matches on case-insensitive canonical-name equality.
func findExact(entities []*types.Entity, value string) *Match {
	var ids []string
	for _, e := range entities {
		if strings.EqualFold(e.CanonicalName, value) {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return &Match{EntityIDs: ids, Strategy: StrategyExact}
}

// findAlias matches when value is a member of an entity's alias list.
func findAlias(entities []*types.Entity, value string) *Match {
	var ids []string
	for _, e := range entities {
		for _, alias := range e.Aliases {
			if strings.EqualFold(alias, value) {
				ids = append(ids, e.ID)
				break
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return &Match{EntityIDs: ids, Strategy: StrategyAlias}
}

// findSimilar matches on core-term similarity against the canonical name
// and every alias.
func findSimilar(entities []*types.Entity, value string) *Match {
	valueTerms := normalize.CoreTerms(value)
	if len(valueTerms) == 0 {
		return nil
	}

	var ids []string
	for _, e := range entities {
		if normalize.TermsSimilar(valueTerms, normalize.CoreTerms(e.CanonicalName)) {
			ids = append(ids, e.ID)
			continue
		}
		for _, alias := range e.Aliases {
			if normalize.TermsSimilar(valueTerms, normalize.CoreTerms(alias)) {
				ids = append(ids, e.ID)
				break
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return &Match{EntityIDs: ids, Strategy: StrategySimilarity}
}

// findByEmbedding embeds the value and ranks stored entities by cosine
// similarity. Skipped silently when no embedding generator is configured.
func (f *Finder) findByEmbedding(ctx context.Context, value, entityType, tenantID string, threshold float64) (*Match, error) {
	if f.embedder == nil {
		return nil, nil
	}

	vector, err := f.embedder.Embed(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("resolve: embedding of %q failed: %w", value, err)
	}

	matches, err := f.entities.SearchByEmbedding(ctx, tenantID, entityType, vector, threshold, 10)
	if err != nil {
		return nil, fmt.Errorf("resolve: embedding search for %q: %w", value, err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return &Match{EntityIDs: ids, Strategy: StrategyEmbedding, Similarity: matches[0].Similarity}, nil
}
