package rules

import (
	"fmt"

	"alertrules/internal/domain"
)

// Combine folds boolean results with one match mode.
// Params: ALL/ANY/NONE mode and evaluated results.
// Returns: combined result or ErrUnsupportedMatch.
func Combine(mode domain.MatchMode, results []bool) (bool, error) {
	switch mode {
	case domain.MatchAll:
		for _, result := range results {
			if !result {
				return false, nil
			}
		}
		return true, nil
	case domain.MatchAny:
		for _, result := range results {
			if result {
				return true, nil
			}
		}
		return false, nil
	case domain.MatchNone:
		for _, result := range results {
			if result {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w %q", ErrUnsupportedMatch, mode)
	}
}
