package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is a filter comparison operator.
type Operator string

// Scalar operators compare the resolved value against the filter value
// natively: strings byte for byte (case-sensitive), numbers numerically.
// Spelling variation is the entity operators' job.
const (
	OpEquals         Operator = "="
	OpNotEquals      Operator = "!="
	OpGreaterThan    Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLessThan       Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpContains       Operator = "CONTAINS"
	OpStartsWith     Operator = "STARTS_WITH"
	OpEndsWith       Operator = "ENDS_WITH"

	// Entity operators resolve the filter value through the entity layer
	// instead of comparing text. ENTITY_EXACT uses canonical-name
	// equality only, ENTITY_ALIAS alias membership only, ENTITY_FUZZY
	// the full fuzzy tail (text similarity, then embeddings).
	OpEntityFuzzy Operator = "ENTITY_FUZZY"
	OpEntityExact Operator = "ENTITY_EXACT"
	OpEntityAlias Operator = "ENTITY_ALIAS"
)

var validOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true,
	OpGreaterThan: true, OpGreaterOrEqual: true,
	OpLessThan: true, OpLessOrEqual: true,
	OpContains: true, OpStartsWith: true, OpEndsWith: true,
	OpEntityFuzzy: true, OpEntityExact: true, OpEntityAlias: true,
}

// Filter is one predicate over a record: a dot path into the record value,
// an operator, and a comparison value. Entity operators additionally need
// EntityType, naming the entity namespace the value resolves in.
type Filter struct {
	Path       string      `json:"path"`
	Operator   Operator    `json:"operator"`
	Value      interface{} `json:"value"`
	EntityType string      `json:"entity_type,omitempty"`
}

// IsEntity reports whether the filter uses an entity operator.
func (f *Filter) IsEntity() bool {
	switch f.Operator {
	case OpEntityFuzzy, OpEntityExact, OpEntityAlias:
		return true
	}
	return false
}

// Validate checks the filter's path, operator and entity-type requirements.
func (f *Filter) Validate() error {
	if err := ValidatePath(f.Path); err != nil {
		return err
	}
	if !validOperators[f.Operator] {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Operator)
	}
	if f.IsEntity() {
		if f.EntityType == "" {
			return fmt.Errorf("%w: operator %s requires an entity type", ErrInvalidFilter, f.Operator)
		}
		if _, ok := f.Value.(string); !ok {
			return fmt.Errorf("%w: operator %s requires a string value", ErrInvalidFilter, f.Operator)
		}
	}
	return nil
}

// ParseFilter parses the compact "path OPERATOR value" string form, e.g.
// `sessions[].speakers[].name ENTITY_FUZZY "J. Smith"`. Values may be
// quoted; unquoted values are coerced to number or bool when they parse as
// one. Entity type for entity operators must be set on the returned filter
// by the caller.
func ParseFilter(s string) (*Filter, error) {
	parts := strings.SplitN(strings.TrimSpace(s), " ", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected \"path operator value\", got %q", ErrInvalidFilter, s)
	}

	f := &Filter{
		Path:     parts[0],
		Operator: Operator(strings.ToUpper(parts[1])),
		Value:    parseValue(strings.TrimSpace(parts[2])),
	}
	if err := ValidatePath(f.Path); err != nil {
		return nil, err
	}
	if !validOperators[f.Operator] {
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, parts[1])
	}
	// Entity type for entity operators arrives out of band; Validate
	// enforces it at evaluation time.
	return f, nil
}

func parseValue(raw string) interface{} {
	if len(raw) >= 2 {
		if (raw[0] == '"' && raw[len(raw)-1] == '"') || (raw[0] == '\'' && raw[len(raw)-1] == '\'') {
			return raw[1 : len(raw)-1]
		}
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
