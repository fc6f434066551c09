// Package query implements the path and filter engine used to evaluate
// structured predicates over memory records, including the entity-aware
// filter operators backed by the resolver.
package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFilter indicates a filter whose path or operator is malformed.
var ErrInvalidFilter = errors.New("invalid filter")

// ValidatePath checks a dot path for structural validity. Array segments
// use the "field[]" form and must be followed by at least one more segment.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidFilter)
	}
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if seg == "" {
			return fmt.Errorf("%w: empty segment in path %q", ErrInvalidFilter, path)
		}
		if strings.HasSuffix(seg, "[]") {
			if seg == "[]" {
				return fmt.Errorf("%w: invalid array path syntax in %q", ErrInvalidFilter, path)
			}
			if strings.Contains(strings.TrimSuffix(seg, "[]"), "[") {
				return fmt.Errorf("%w: invalid array path syntax in %q", ErrInvalidFilter, path)
			}
			if i == len(segments)-1 {
				return fmt.Errorf("%w: array path %q must specify a field", ErrInvalidFilter, path)
			}
		} else if strings.ContainsAny(seg, "[]") {
			return fmt.Errorf("%w: invalid array path syntax in %q", ErrInvalidFilter, path)
		}
	}
	return nil
}

// GetValueByPath resolves a dot path against a decoded JSON object. An
// array segment ("speakers[]") scans the array and the first element whose
// remaining path resolves to a defined value wins. Missing keys yield
// (nil, nil); only a malformed path is an error.
func GetValueByPath(obj map[string]interface{}, path string) (interface{}, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return walkPath(obj, strings.Split(path, "."))
}

func walkPath(current interface{}, segments []string) (interface{}, error) {
	if len(segments) == 0 {
		return current, nil
	}

	obj, ok := current.(map[string]interface{})
	if !ok {
		return nil, nil
	}

	seg := segments[0]
	if field, isArray := strings.CutSuffix(seg, "[]"); isArray {
		arr, ok := obj[field].([]interface{})
		if !ok {
			return nil, nil
		}
		for _, element := range arr {
			value, err := walkPath(element, segments[1:])
			if err != nil {
				return nil, err
			}
			if value != nil {
				return value, nil
			}
		}
		return nil, nil
	}

	return walkPath(obj[seg], segments[1:])
}
