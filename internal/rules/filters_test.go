package rules

import (
	"testing"
	"time"

	"alertrules/internal/domain"

	"github.com/stretchr/testify/require"
)

func evalKind(t *testing.T, kind string, event domain.Event, state domain.EventState, rule domain.Rule, params map[string]any) (bool, error) {
	t.Helper()
	registry, err := RegisterBuiltins(NewBuilder()).Build()
	require.NoError(t, err)
	entry, err := registry.Lookup(kind)
	require.NoError(t, err)
	return entry.Evaluator.Evaluate(event, state, rule, params)
}

func TestLevelFilter(t *testing.T) {
	t.Parallel()

	event := domain.Event{Level: "error"}
	cases := []struct {
		params map[string]any
		want   bool
	}{
		{map[string]any{"match": "eq", "level": "error"}, true},
		{map[string]any{"match": "gte", "level": "warning"}, true},
		{map[string]any{"match": "gte", "level": "fatal"}, false},
		{map[string]any{"match": "lte", "level": "info"}, false},
		{map[string]any{"level": "error"}, true},
	}
	for _, tc := range cases {
		got, err := evalKind(t, KindLevel, event, domain.EventState{}, domain.Rule{}, tc.params)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "%v", tc.params)
	}

	got, err := evalKind(t, KindLevel, domain.Event{}, domain.EventState{}, domain.Rule{}, map[string]any{"level": "error"})
	require.NoError(t, err)
	require.False(t, got)

	_, err = evalKind(t, KindLevel, event, domain.EventState{}, domain.Rule{}, map[string]any{"level": "loud"})
	require.Error(t, err)
}

func TestTaggedEventFilter(t *testing.T) {
	t.Parallel()

	event := domain.Event{Tags: map[string]string{"browser": "Firefox 120"}}
	cases := []struct {
		params map[string]any
		want   bool
	}{
		{map[string]any{"key": "browser", "match": "eq", "value": "firefox 120"}, true},
		{map[string]any{"key": "browser", "match": "sw", "value": "fire"}, true},
		{map[string]any{"key": "browser", "match": "ew", "value": "120"}, true},
		{map[string]any{"key": "browser", "match": "co", "value": "fox"}, true},
		{map[string]any{"key": "browser", "match": "nc", "value": "chrome"}, true},
		{map[string]any{"key": "browser", "match": "ne", "value": "chrome"}, true},
		{map[string]any{"key": "browser", "match": "is"}, true},
		{map[string]any{"key": "browser", "match": "ns"}, false},
		{map[string]any{"key": "os", "match": "eq", "value": "linux"}, false},
		{map[string]any{"key": "os", "match": "ne", "value": "linux"}, true},
		{map[string]any{"key": "os", "match": "ns"}, true},
	}
	for _, tc := range cases {
		got, err := evalKind(t, KindTaggedEvent, event, domain.EventState{}, domain.Rule{}, tc.params)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "%v", tc.params)
	}

	_, err := evalKind(t, KindTaggedEvent, event, domain.EventState{}, domain.Rule{}, map[string]any{"key": "browser", "match": "regex", "value": "x"})
	require.Error(t, err)
}

func TestEventAttributeFilter(t *testing.T) {
	t.Parallel()

	event := domain.Event{Message: "TimeoutError: upstream", Platform: "go"}
	got, err := evalKind(t, KindEventAttribute, event, domain.EventState{}, domain.Rule{}, map[string]any{"attribute": "message", "match": "co", "value": "timeout"})
	require.NoError(t, err)
	require.True(t, got)

	got, err = evalKind(t, KindEventAttribute, event, domain.EventState{}, domain.Rule{}, map[string]any{"attribute": "platform", "match": "eq", "value": "python"})
	require.NoError(t, err)
	require.False(t, got)

	_, err = evalKind(t, KindEventAttribute, event, domain.EventState{}, domain.Rule{}, map[string]any{"attribute": "stacktrace", "match": "eq", "value": "x"})
	require.Error(t, err)
}

func TestAgeComparisonFilter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := domain.Event{DT: now.UnixMilli(), Group: domain.GroupInfo{FirstSeen: now.Add(-3 * time.Hour)}}

	older, err := evalKind(t, KindAgeComparison, event, domain.EventState{}, domain.Rule{}, map[string]any{"comparison_type": "older", "value": 2, "time": "hour"})
	require.NoError(t, err)
	require.True(t, older)

	newer, err := evalKind(t, KindAgeComparison, event, domain.EventState{}, domain.Rule{}, map[string]any{"comparison_type": "newer", "value": 2, "time": "hour"})
	require.NoError(t, err)
	require.False(t, newer)

	_, err = evalKind(t, KindAgeComparison, event, domain.EventState{}, domain.Rule{}, map[string]any{"comparison_type": "older", "value": 2, "time": "year"})
	require.Error(t, err)
}

func TestIssueOccurrencesFilter(t *testing.T) {
	t.Parallel()

	event := domain.Event{Group: domain.GroupInfo{TimesSeen: 5}}
	got, err := evalKind(t, KindIssueOccurrences, event, domain.EventState{}, domain.Rule{}, map[string]any{"value": 5})
	require.NoError(t, err)
	require.True(t, got)
	got, err = evalKind(t, KindIssueOccurrences, event, domain.EventState{}, domain.Rule{}, map[string]any{"value": 6})
	require.NoError(t, err)
	require.False(t, got)
}

func TestFirstSeenUsesEnvironmentFlagForScopedRules(t *testing.T) {
	t.Parallel()

	state := domain.EventState{IsNew: false, IsNewGroupEnvironment: true}
	got, err := evalKind(t, KindFirstSeenEvent, domain.Event{}, state, domain.Rule{Environment: "prod"}, nil)
	require.NoError(t, err)
	require.True(t, got)

	got, err = evalKind(t, KindFirstSeenEvent, domain.Event{}, state, domain.Rule{}, nil)
	require.NoError(t, err)
	require.False(t, got)
}

func TestNewHighPriorityIssue(t *testing.T) {
	t.Parallel()

	state := domain.EventState{IsNew: true}
	got, err := evalKind(t, KindNewHighPriorityIssue, domain.Event{Group: domain.GroupInfo{Priority: "high"}}, state, domain.Rule{}, nil)
	require.NoError(t, err)
	require.True(t, got)
	got, err = evalKind(t, KindNewHighPriorityIssue, domain.Event{Group: domain.GroupInfo{Priority: "low"}}, state, domain.Rule{}, nil)
	require.NoError(t, err)
	require.False(t, got)
}
