package rules

import (
	"testing"

	"alertrules/internal/domain"

	"github.com/stretchr/testify/require"
)

type stubAction struct{}

func (stubAction) After(domain.Event, domain.Rule, map[string]any) ([]ActionFuture, error) {
	return nil, nil
}

func TestBuiltinRegistryClassification(t *testing.T) {
	t.Parallel()

	registry, err := RegisterBuiltins(NewBuilder()).Build()
	require.NoError(t, err)

	fastConditions := []string{KindEveryEvent, KindFirstSeenEvent, KindRegressionEvent, KindReappearedEvent, KindEscalatingEvent, KindNewHighPriorityIssue}
	for _, kind := range fastConditions {
		entry, err := registry.Lookup(kind)
		require.NoError(t, err, kind)
		require.Equal(t, FamilyCondition, entry.Family, kind)
		require.True(t, entry.IsFast(), kind)
	}
	for _, kind := range []string{KindEventFrequency, KindEventUniqueUserFrequency} {
		entry, err := registry.Lookup(kind)
		require.NoError(t, err, kind)
		require.Equal(t, FamilyCondition, entry.Family)
		require.False(t, entry.IsFast(), kind)
	}
	for _, kind := range []string{KindLevel, KindTaggedEvent, KindEventAttribute, KindAgeComparison, KindIssueOccurrences} {
		entry, err := registry.Lookup(kind)
		require.NoError(t, err, kind)
		require.Equal(t, FamilyFilter, entry.Family, kind)
		require.True(t, entry.IsFast(), kind)
	}
}

func TestRegistryLookupUnknownKind(t *testing.T) {
	t.Parallel()

	registry, err := NewBuilder().Build()
	require.NoError(t, err)
	_, err = registry.Lookup("nope")
	require.ErrorIs(t, err, ErrUnknownKind)
	_, err = registry.Action("nope")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestBuilderRejectsFrequencyKindAsFastCondition(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder().Condition("event_frequency_custom", EvaluatorFunc(everyEvent)).Build()
	require.Error(t, err)
}

func TestBuilderRejectsFrequencyKindAsFilter(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder().Filter("Event_Frequency_level", EvaluatorFunc(everyEvent)).Build()
	require.ErrorContains(t, err, "must be registered as slow condition")
}

func TestBuilderRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder().
		Condition("x", EvaluatorFunc(everyEvent)).
		Filter("X", EvaluatorFunc(everyEvent)).
		Build()
	require.Error(t, err)

	_, err = NewBuilder().Action("a", stubAction{}).Action("a", stubAction{}).Build()
	require.Error(t, err)
}

func TestRegistryIsImmutableAfterBuild(t *testing.T) {
	t.Parallel()

	builder := NewBuilder().Condition("x", EvaluatorFunc(everyEvent))
	registry, err := builder.Build()
	require.NoError(t, err)

	builder.Condition("y", EvaluatorFunc(everyEvent))
	_, err = registry.Lookup("y")
	require.ErrorIs(t, err, ErrUnknownKind)
	require.Equal(t, []string{"x"}, registry.Kinds())
}

func TestValidateRule(t *testing.T) {
	t.Parallel()

	registry, err := RegisterBuiltins(NewBuilder()).Action("notify", stubAction{}).Build()
	require.NoError(t, err)

	rule := domain.Rule{
		ID:          1,
		ActionMatch: domain.MatchAll,
		FilterMatch: domain.MatchAll,
		Conditions: []domain.ConditionSpec{
			{Kind: KindEveryEvent},
			{Kind: KindEventFrequency, Params: map[string]any{"interval": "1h", "value": int64(10)}},
		},
		Actions: []domain.ActionSpec{{Kind: "notify"}},
	}
	require.NoError(t, registry.ValidateRule(rule))

	bad := rule
	bad.ActionMatch = "xor"
	require.ErrorIs(t, registry.ValidateRule(bad), ErrUnsupportedMatch)

	bad = rule
	bad.Conditions = []domain.ConditionSpec{{Kind: KindEventFrequency, Params: map[string]any{"interval": "2h", "value": 1}}}
	require.Error(t, registry.ValidateRule(bad))

	bad = rule
	bad.Actions = []domain.ActionSpec{{Kind: "email"}}
	require.ErrorIs(t, registry.ValidateRule(bad), ErrUnknownKind)
}
