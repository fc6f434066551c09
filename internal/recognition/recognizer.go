package recognition

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/scrypster/cognate/internal/llm"
	"github.com/scrypster/cognate/internal/storage"
	"github.com/scrypster/cognate/pkg/types"
)

const (
	// DefaultThreshold is the recognition decision threshold when the
	// caller does not supply one.
	DefaultThreshold = 0.75

	// bandHalfWidth is how far on either side of the threshold the
	// ambiguous zone extends. Scores inside it go to the LLM arbiter.
	bandHalfWidth = 0.11

	// defaultShortlistLimit caps how many stored records are scored per
	// call.
	defaultShortlistLimit = 50

	scoreWorkers = 4
)

// RecognizeOptions configures one recognition call.
type RecognizeOptions struct {
	// Entities maps field paths of the candidate to entity types; these
	// fields drive both the shortlist and the scoring.
	Entities map[string]string

	// Tags shortlists stored records by tag when entity fields produce
	// nothing.
	Tags []string

	// Threshold is the decision threshold. Zero selects the recognizer's
	// configured default.
	Threshold float64

	// LLMLowerBound and LLMUpperBound override the edges of the ambiguous
	// zone independently.
	LLMLowerBound *float64
	LLMUpperBound *float64

	// Limit caps the shortlist. Zero selects defaultShortlistLimit.
	Limit int

	// Context, CustomPrompt and AgentGoal pass through to the arbiter
	// prompt.
	Context      string
	CustomPrompt string
	AgentGoal    string
}

// Recognizer decides whether a candidate record duplicates one already
// stored. Clear scores decide directly; scores inside the ambiguous band
// around the threshold are escalated to the LLM arbiter when one is
// configured.
type Recognizer struct {
	store            storage.Store
	scorer           *Scorer
	finder           EntityIDFinder
	disambiguator    llm.Disambiguator // nil: ambiguous scores resolve to no-match
	defaultThreshold float64
}

// NewRecognizer wires a recognizer. disambiguator may be nil; threshold <= 0
// selects DefaultThreshold. Per-call opts.Threshold overrides either.
func NewRecognizer(store storage.Store, scorer *Scorer, finder EntityIDFinder, disambiguator llm.Disambiguator, threshold float64) *Recognizer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Recognizer{
		store:            store,
		scorer:           scorer,
		finder:           finder,
		disambiguator:    disambiguator,
		defaultThreshold: threshold,
	}
}

// Recognize scores the candidate against a shortlist of stored records and
// returns the decision for the best-scoring one. An arbiter failure is
// reported inside the result as a no-match decision, not as an error; the
// store failing is an error.
func (r *Recognizer) Recognize(ctx context.Context, candidate map[string]interface{}, tenantID string, opts RecognizeOptions) (*types.RecognitionResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant ID is required", storage.ErrInvalidInput)
	}

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = r.defaultThreshold
	}

	keys, err := r.shortlist(ctx, candidate, tenantID, opts)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return &types.RecognitionResult{IsMatch: false, Confidence: 0}, nil
	}

	records, err := r.store.GetRecords(ctx, tenantID, keys)
	if err != nil {
		return nil, err
	}

	best, err := r.scoreAll(ctx, tenantID, candidate, records, opts.Entities)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return &types.RecognitionResult{IsMatch: false, Confidence: 0}, nil
	}

	lower := max(0, threshold-bandHalfWidth)
	if opts.LLMLowerBound != nil {
		lower = *opts.LLMLowerBound
	}
	upper := min(1, threshold+bandHalfWidth)
	if opts.LLMUpperBound != nil {
		upper = *opts.LLMUpperBound
	}

	switch {
	case best.Confidence >= upper:
		return &types.RecognitionResult{
			IsMatch:      true,
			Confidence:   best.Confidence,
			MatchingKey:  best.Key,
			MatchingData: best.Data,
		}, nil
	case best.Confidence < lower:
		return &types.RecognitionResult{IsMatch: false, Confidence: best.Confidence}, nil
	default:
		return r.escalate(ctx, candidate, best, opts), nil
	}
}

// shortlist picks the stored records worth scoring: entity-field matches
// first, then tag matches, then recency when neither is supplied.
func (r *Recognizer) shortlist(ctx context.Context, candidate map[string]interface{}, tenantID string, opts RecognizeOptions) ([]string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultShortlistLimit
	}

	if len(opts.Entities) > 0 && r.finder != nil {
		keys, err := r.shortlistByEntities(ctx, candidate, tenantID, opts.Entities)
		if err != nil {
			return nil, err
		}
		if len(keys) > 0 {
			return truncate(keys, limit), nil
		}
	}

	if len(opts.Tags) > 0 {
		keys, err := r.store.FindKeysByTags(ctx, tenantID, opts.Tags, limit)
		if err != nil {
			return nil, err
		}
		if len(keys) > 0 {
			return keys, nil
		}
	}

	if len(opts.Entities) > 0 || len(opts.Tags) > 0 {
		return nil, nil
	}

	records, err := r.store.ListRecentRecords(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(records))
	for i, rec := range records {
		keys[i] = rec.Key
	}
	return keys, nil
}

// shortlistByEntities resolves each entity field of the candidate, maps the
// resulting IDs to memory keys through the alignment index (union per
// field), and intersects across fields that produced a value.
func (r *Recognizer) shortlistByEntities(ctx context.Context, candidate map[string]interface{}, tenantID string, entities map[string]string) ([]string, error) {
	var result map[string]bool
	for path, entityType := range entities {
		value, err := stringAtPath(candidate, path)
		if err != nil {
			return nil, err
		}
		if value == "" {
			continue
		}

		ids, err := r.finder.FindMatchingEntityIDs(ctx, value, entityType, tenantID, 0)
		if err != nil {
			log.Printf("recognizer: entity shortlist for field %q failed, skipping field: %v", path, err)
			continue
		}
		if len(ids) == 0 {
			continue
		}

		keys, err := r.store.FindKeysByEntityIDs(ctx, tenantID, path, ids)
		if err != nil {
			return nil, err
		}

		set := make(map[string]bool, len(keys))
		for _, k := range keys {
			set[k] = true
		}
		if result == nil {
			result = set
		} else {
			for k := range result {
				if !set[k] {
					delete(result, k)
				}
			}
		}
	}

	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// scoreAll scores the candidate against every shortlisted record
// concurrently and returns the best-scoring candidate. Ties keep the
// earlier record in shortlist order, so repeated calls decide the same
// way.
func (r *Recognizer) scoreAll(ctx context.Context, tenantID string, candidate map[string]interface{}, records []*types.Record, entities map[string]string) (*types.CandidateMatch, error) {
	matches := make([]types.CandidateMatch, len(records))
	errs := make([]error, len(records))

	var wg sync.WaitGroup
	sem := make(chan struct{}, scoreWorkers)
	for i, record := range records {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, record *types.Record) {
			defer wg.Done()
			defer func() { <-sem }()
			score, err := r.scorer.CalculateConfidence(ctx, tenantID, candidate, record.Value, entities)
			matches[i] = types.CandidateMatch{Key: record.Key, Data: record.Value, Confidence: score}
			errs[i] = err
		}(i, record)
	}
	wg.Wait()

	var best *types.CandidateMatch
	for i := range matches {
		if errs[i] != nil {
			return nil, errs[i]
		}
		if best == nil || matches[i].Confidence > best.Confidence {
			best = &matches[i]
		}
	}
	return best, nil
}

// escalate asks the LLM arbiter to decide an ambiguous score. Arbiter
// unavailability or failure resolves to no-match inside the result.
func (r *Recognizer) escalate(ctx context.Context, candidate map[string]interface{}, best *types.CandidateMatch, opts RecognizeOptions) *types.RecognitionResult {
	if r.disambiguator == nil {
		return &types.RecognitionResult{
			IsMatch:     false,
			Confidence:  best.Confidence,
			Explanation: "score is ambiguous and no disambiguator is configured",
		}
	}

	verdict, err := r.disambiguator.Disambiguate(ctx, llm.DisambiguationRequest{
		Candidate:    candidate,
		Match:        best.Data,
		Confidence:   best.Confidence,
		Context:      opts.Context,
		CustomPrompt: opts.CustomPrompt,
		AgentGoal:    opts.AgentGoal,
	})
	if err != nil {
		log.Printf("recognizer: disambiguation failed: %v", err)
		return &types.RecognitionResult{
			IsMatch:     false,
			Confidence:  0,
			UsedLLM:     true,
			Explanation: fmt.Sprintf("disambiguation failed: %v", err),
		}
	}

	result := &types.RecognitionResult{
		IsMatch:     verdict.IsMatch,
		Confidence:  verdict.AdjustedConfidence,
		UsedLLM:     true,
		Explanation: verdict.Explanation,
	}
	if verdict.IsMatch {
		result.MatchingKey = best.Key
		result.MatchingData = best.Data
	}
	return result
}

func truncate(keys []string, limit int) []string {
	if len(keys) <= limit {
		return keys
	}
	return keys[:limit]
}
