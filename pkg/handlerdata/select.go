package handlerdata

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// Select evaluates a JSONPath expression against value. A single match is
// returned as-is, several matches as a slice. No match is ErrNotFound.
func Select(value any, path string) (any, error) {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}

	results := x.Get(value)
	switch len(results) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
