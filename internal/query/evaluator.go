package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/scrypster/cognate/internal/storage"
	"github.com/scrypster/cognate/pkg/types"
)

// EntityFinder is the slice of the resolver the evaluator needs: one lookup
// per entity operator.
type EntityFinder interface {
	FindExact(ctx context.Context, value, entityType, tenantID string) ([]string, error)
	FindAlias(ctx context.Context, value, entityType, tenantID string) ([]string, error)
	FindFuzzy(ctx context.Context, value, entityType, tenantID string, threshold float64) ([]string, error)
}

// defaultScanLimit bounds the record scan when no entity filter narrows the
// candidate set first.
const defaultScanLimit = 1000

// Evaluator applies filter lists to a tenant's records. Entity filters run
// first against the alignment index, shrinking the candidate key set to the
// records whose aligned entity at the filter's path is in the resolved set;
// the remaining filters are evaluated in-process over the fetched records.
type Evaluator struct {
	finder     EntityFinder
	alignments storage.AlignmentStore
	records    storage.RecordStore
}

// NewEvaluator wires an evaluator over the given stores. finder may be nil
// when entity operators are not needed; using one then fails with
// ErrInvalidFilter.
func NewEvaluator(finder EntityFinder, alignments storage.AlignmentStore, records storage.RecordStore) *Evaluator {
	return &Evaluator{finder: finder, alignments: alignments, records: records}
}

// Apply evaluates all filters conjunctively and returns the matching
// records for the tenant, most recently updated first.
func (e *Evaluator) Apply(ctx context.Context, tenantID string, filters []*Filter) ([]*types.Record, error) {
	var entityFilters, scalarFilters []*Filter
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		if f.IsEntity() {
			entityFilters = append(entityFilters, f)
		} else {
			scalarFilters = append(scalarFilters, f)
		}
	}

	candidates, narrowed, err := e.entityCandidates(ctx, tenantID, entityFilters)
	if err != nil {
		return nil, err
	}
	if narrowed && len(candidates) == 0 {
		return nil, nil
	}

	var records []*types.Record
	if narrowed {
		records, err = e.records.GetRecords(ctx, tenantID, candidates)
	} else {
		records, err = e.records.ListRecentRecords(ctx, tenantID, defaultScanLimit)
	}
	if err != nil {
		return nil, err
	}

	var matched []*types.Record
	for _, record := range records {
		ok, err := matchesAll(record, scalarFilters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

// MatchRecord evaluates the non-entity filters of the list against a single
// record, for callers that already hold a candidate set.
func (e *Evaluator) MatchRecord(record *types.Record, filters []*Filter) (bool, error) {
	var scalar []*Filter
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return false, err
		}
		if !f.IsEntity() {
			scalar = append(scalar, f)
		}
	}
	return matchesAll(record, scalar)
}

// entityCandidates resolves each entity filter to a key set via the
// alignment index and intersects the sets. narrowed is false when no entity
// filters were supplied.
func (e *Evaluator) entityCandidates(ctx context.Context, tenantID string, filters []*Filter) (keys []string, narrowed bool, err error) {
	if len(filters) == 0 {
		return nil, false, nil
	}
	if e.finder == nil {
		return nil, false, fmt.Errorf("%w: entity operators require a configured resolver", ErrInvalidFilter)
	}

	var result map[string]bool
	for _, f := range filters {
		value := f.Value.(string)

		var ids []string
		switch f.Operator {
		case OpEntityExact:
			ids, err = e.finder.FindExact(ctx, value, f.EntityType, tenantID)
		case OpEntityAlias:
			ids, err = e.finder.FindAlias(ctx, value, f.EntityType, tenantID)
		default:
			ids, err = e.finder.FindFuzzy(ctx, value, f.EntityType, tenantID, 0)
		}
		if err != nil {
			return nil, true, err
		}
		if len(ids) == 0 {
			return nil, true, nil
		}

		matched, err := e.alignments.FindKeysByEntityIDs(ctx, tenantID, f.Path, ids)
		if err != nil {
			return nil, true, err
		}

		set := make(map[string]bool, len(matched))
		for _, k := range matched {
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
		if len(result) == 0 {
			return nil, true, nil
		}
	}

	keys = make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, true, nil
}

func matchesAll(record *types.Record, filters []*Filter) (bool, error) {
	for _, f := range filters {
		resolved, err := GetValueByPath(record.Value, f.Path)
		if err != nil {
			return false, err
		}
		if !compareScalar(resolved, f.Operator, f.Value) {
			return false, nil
		}
	}
	return true, nil
}

// compareScalar applies one scalar operator. Missing values (nil) fail
// every operator except !=.
func compareScalar(resolved interface{}, op Operator, want interface{}) bool {
	switch op {
	case OpEquals:
		return scalarEqual(resolved, want)
	case OpNotEquals:
		return !scalarEqual(resolved, want)
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		a, okA := toFloat(resolved)
		b, okB := toFloat(want)
		if !okA || !okB {
			return false
		}
		switch op {
		case OpGreaterThan:
			return a > b
		case OpGreaterOrEqual:
			return a >= b
		case OpLessThan:
			return a < b
		default:
			return a <= b
		}
	case OpContains, OpStartsWith, OpEndsWith:
		a, okA := resolved.(string)
		b, okB := want.(string)
		if !okA || !okB {
			return false
		}
		switch op {
		case OpContains:
			return strings.Contains(a, b)
		case OpStartsWith:
			return strings.HasPrefix(a, b)
		default:
			return strings.HasSuffix(a, b)
		}
	}
	return false
}

func scalarEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa == sb
		}
		return false
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
