package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// UniqueConditionQuery is the de-duplication key of one aggregate query.
// Params: rate handler kind, window, environment, and comparison shift.
// Returns: comparable value shared by identical slow conditions across rules.
type UniqueConditionQuery struct {
	Handler            string
	Interval           time.Duration
	Environment        string
	ComparisonInterval time.Duration
}

// End returns the window end for one query run at now.
// Params: evaluation time.
// Returns: now shifted back by the comparison interval.
func (q UniqueConditionQuery) End(now time.Time) time.Time {
	return now.Add(-q.ComparisonInterval)
}

// String renders query for logs and metric labels.
func (q UniqueConditionQuery) String() string {
	var builder strings.Builder
	builder.WriteString(q.Handler)
	builder.WriteString("/")
	builder.WriteString(q.Interval.String())
	if q.Environment != "" {
		builder.WriteString("/env=")
		builder.WriteString(q.Environment)
	}
	if q.ComparisonInterval > 0 {
		builder.WriteString("/cmp=")
		builder.WriteString(q.ComparisonInterval.String())
	}
	return builder.String()
}

// SortQueries orders queries deterministically.
func SortQueries(queries []UniqueConditionQuery) {
	sort.Slice(queries, func(i, j int) bool {
		a, b := queries[i], queries[j]
		if a.Handler != b.Handler {
			return a.Handler < b.Handler
		}
		if a.Interval != b.Interval {
			return a.Interval < b.Interval
		}
		if a.Environment != b.Environment {
			return a.Environment < b.Environment
		}
		return a.ComparisonInterval < b.ComparisonInterval
	})
}

var (
	frequencyIntervals = map[string]time.Duration{
		"1m":  time.Minute,
		"5m":  5 * time.Minute,
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
		"30d": 30 * 24 * time.Hour,
	}
	comparisonIntervals = map[string]time.Duration{
		"5m":  5 * time.Minute,
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
		"30d": 30 * 24 * time.Hour,
	}
)

// ParseInterval resolves a frequency window label such as "1h".
// Params: interval label.
// Returns: window duration or error for unknown labels.
func ParseInterval(label string) (time.Duration, error) {
	value, ok := frequencyIntervals[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", label)
	}
	return value, nil
}

// ParseComparisonInterval resolves a percent comparison shift label.
// Params: comparison interval label.
// Returns: shift duration or error for unknown labels.
func ParseComparisonInterval(label string) (time.Duration, error) {
	value, ok := comparisonIntervals[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return 0, fmt.Errorf("unsupported comparison_interval %q", label)
	}
	return value, nil
}

// PercentIncrease computes relative growth of current over previous in percent.
// Params: current and previous window values.
// Returns: growth percent; 0 when previous is not positive.
func PercentIncrease(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return (current - previous) / previous * 100
}
