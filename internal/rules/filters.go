package rules

import (
	"fmt"
	"strings"
	"time"

	"alertrules/internal/domain"
)

// Built-in filter kinds.
const (
	KindLevel            = "level"
	KindTaggedEvent      = "tagged_event"
	KindEventAttribute   = "event_attribute"
	KindAgeComparison    = "age_comparison"
	KindIssueOccurrences = "issue_occurrences"
)

var levelRank = map[string]int{
	"debug":   10,
	"info":    20,
	"warning": 30,
	"warn":    30,
	"error":   40,
	"fatal":   50,
}

var ageUnits = map[string]time.Duration{
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// levelFilter compares event level against configured level.
// Params: match (eq|gte|lte) and level name.
// Returns: false for events with unknown level.
func levelFilter(event domain.Event, _ domain.EventState, _ domain.Rule, params map[string]any) (bool, error) {
	expectedName, err := requireString(params, "level")
	if err != nil {
		return false, err
	}
	expected, ok := levelRank[strings.ToLower(expectedName)]
	if !ok {
		return false, fmt.Errorf("unsupported level %q", expectedName)
	}
	actual, ok := levelRank[strings.ToLower(strings.TrimSpace(event.Level))]
	if !ok {
		return false, nil
	}
	op, _ := paramString(params, "match")
	switch strings.ToLower(op) {
	case "", "eq":
		return actual == expected, nil
	case "gte":
		return actual >= expected, nil
	case "lte":
		return actual <= expected, nil
	default:
		return false, fmt.Errorf("unsupported level match %q", op)
	}
}

// taggedEventFilter matches one event tag with string operator.
// Params: key, match, and value (not needed for is/ns).
func taggedEventFilter(event domain.Event, _ domain.EventState, _ domain.Rule, params map[string]any) (bool, error) {
	key, err := requireString(params, "key")
	if err != nil {
		return false, err
	}
	actual, present := event.Tag(key)
	return matchStringParams(params, actual, present)
}

// eventAttributeFilter matches one well-known event attribute with string operator.
// Params: attribute, match, and value.
func eventAttributeFilter(event domain.Event, _ domain.EventState, _ domain.Rule, params map[string]any) (bool, error) {
	attribute, err := requireString(params, "attribute")
	if err != nil {
		return false, err
	}
	var actual string
	switch strings.ToLower(attribute) {
	case "message":
		actual = event.Message
	case "environment":
		actual = event.Environment
	case "platform":
		actual = event.Platform
	case "release":
		actual = event.Release
	case "level":
		actual = event.Level
	case "user_id":
		actual = event.UserID
	default:
		return false, fmt.Errorf("unsupported attribute %q", attribute)
	}
	return matchStringParams(params, actual, actual != "")
}

// ageComparisonFilter compares subject age at event time with a threshold.
// Params: comparison_type (older|newer), value, and time unit.
func ageComparisonFilter(event domain.Event, _ domain.EventState, _ domain.Rule, params map[string]any) (bool, error) {
	comparison, err := requireString(params, "comparison_type")
	if err != nil {
		return false, err
	}
	value, err := requireFloat(params, "value")
	if err != nil {
		return false, err
	}
	unitName, err := requireString(params, "time")
	if err != nil {
		return false, err
	}
	unit, ok := ageUnits[strings.ToLower(unitName)]
	if !ok {
		return false, fmt.Errorf("unsupported time unit %q", unitName)
	}
	if event.Group.FirstSeen.IsZero() {
		return false, nil
	}
	threshold := time.Duration(value * float64(unit))
	age := event.EventTime().Sub(event.Group.FirstSeen)
	switch strings.ToLower(comparison) {
	case "older":
		return age > threshold, nil
	case "newer":
		return age < threshold, nil
	default:
		return false, fmt.Errorf("unsupported comparison_type %q", comparison)
	}
}

// issueOccurrencesFilter passes when the subject was seen at least value times.
func issueOccurrencesFilter(event domain.Event, _ domain.EventState, _ domain.Rule, params map[string]any) (bool, error) {
	value, err := requireFloat(params, "value")
	if err != nil {
		return false, err
	}
	return float64(event.Group.TimesSeen) >= value, nil
}

// matchStringParams applies params match/value to one attribute.
func matchStringParams(params map[string]any, actual string, present bool) (bool, error) {
	op, err := requireString(params, "match")
	if err != nil {
		return false, err
	}
	expected, _ := paramString(params, "value")
	return matchString(op, actual, present, expected)
}

// matchString evaluates case-insensitive string operators.
// Params: operator code, attribute value, presence flag, and expected value.
// Returns: operator result or error for unknown operators.
func matchString(op, actual string, present bool, expected string) (bool, error) {
	lhs := strings.ToLower(actual)
	rhs := strings.ToLower(expected)
	switch strings.ToLower(op) {
	case "is":
		return present, nil
	case "ns":
		return !present, nil
	}
	if !present {
		// negative operators hold for absent attributes
		switch strings.ToLower(op) {
		case "ne", "nc":
			return true, nil
		}
		return false, nil
	}
	switch strings.ToLower(op) {
	case "eq":
		return lhs == rhs, nil
	case "ne":
		return lhs != rhs, nil
	case "sw":
		return strings.HasPrefix(lhs, rhs), nil
	case "ew":
		return strings.HasSuffix(lhs, rhs), nil
	case "co":
		return strings.Contains(lhs, rhs), nil
	case "nc":
		return !strings.Contains(lhs, rhs), nil
	default:
		return false, fmt.Errorf("unsupported match %q", op)
	}
}
