package rules

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ComparisonCount compares the window value with the threshold directly.
	ComparisonCount = "count"
	// ComparisonPercent compares window growth against a shifted window.
	ComparisonPercent = "percent"
)

// FrequencyCondition is a slow condition backed by one rate handler kind.
// Params: handler kind used as UniqueConditionQuery.Handler.
// Returns: SlowCondition for event_frequency style kinds.
type FrequencyCondition struct {
	Handler string
}

// frequencyParams is one decoded event_frequency configuration.
type frequencyParams struct {
	query      UniqueConditionQuery
	comparison string
	threshold  float64
}

// Queries returns one key for count comparison and two for percent comparison.
// Params: condition params and rule environment.
// Returns: ordered queries (current window first) or param error.
func (c FrequencyCondition) Queries(params map[string]any, environment string) ([]UniqueConditionQuery, error) {
	parsed, err := c.parse(params, environment)
	if err != nil {
		return nil, err
	}
	current := parsed.query
	current.ComparisonInterval = 0
	if parsed.comparison == ComparisonCount {
		return []UniqueConditionQuery{current}, nil
	}
	return []UniqueConditionQuery{current, parsed.query}, nil
}

// Passes reports whether the calculated value is strictly greater than threshold.
// Params: condition params and values ordered as returned by Queries.
// Returns: decision or error when values do not fit the comparison type.
func (c FrequencyCondition) Passes(params map[string]any, values []float64) (bool, error) {
	parsed, err := c.parse(params, "")
	if err != nil {
		return false, err
	}
	switch parsed.comparison {
	case ComparisonCount:
		if len(values) != 1 {
			return false, fmt.Errorf("count comparison expects 1 value, got %d", len(values))
		}
		return values[0] > parsed.threshold, nil
	default:
		if len(values) != 2 {
			return false, fmt.Errorf("percent comparison expects 2 values, got %d", len(values))
		}
		return PercentIncrease(values[0], values[1]) > parsed.threshold, nil
	}
}

func (c FrequencyCondition) parse(params map[string]any, environment string) (frequencyParams, error) {
	if strings.TrimSpace(c.Handler) == "" {
		return frequencyParams{}, errors.New("frequency condition handler is empty")
	}
	intervalLabel, err := requireString(params, "interval")
	if err != nil {
		return frequencyParams{}, err
	}
	interval, err := ParseInterval(intervalLabel)
	if err != nil {
		return frequencyParams{}, err
	}
	threshold, err := requireFloat(params, "value")
	if err != nil {
		return frequencyParams{}, err
	}
	if threshold < 0 {
		return frequencyParams{}, errors.New("param \"value\" must be >=0")
	}

	comparison, _ := paramString(params, "comparison_type")
	comparison = strings.ToLower(comparison)
	if comparison == "" {
		comparison = ComparisonCount
	}
	out := frequencyParams{
		query: UniqueConditionQuery{
			Handler:     c.Handler,
			Interval:    interval,
			Environment: environment,
		},
		comparison: comparison,
		threshold:  threshold,
	}
	switch comparison {
	case ComparisonCount:
	case ComparisonPercent:
		label, err := requireString(params, "comparison_interval")
		if err != nil {
			return frequencyParams{}, err
		}
		shift, err := ParseComparisonInterval(label)
		if err != nil {
			return frequencyParams{}, err
		}
		out.query.ComparisonInterval = shift
	default:
		return frequencyParams{}, fmt.Errorf("unsupported comparison_type %q", comparison)
	}
	return out, nil
}
