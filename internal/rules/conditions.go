package rules

import "alertrules/internal/domain"

// Built-in fast condition kinds.
const (
	KindEveryEvent           = "every_event"
	KindFirstSeenEvent       = "first_seen_event"
	KindRegressionEvent      = "regression_event"
	KindReappearedEvent      = "reappeared_event"
	KindEscalatingEvent      = "escalating_event"
	KindNewHighPriorityIssue = "new_high_priority_issue"
)

// Built-in slow condition kinds; each is also a rate handler kind.
const (
	KindEventFrequency           = "event_frequency"
	KindEventUniqueUserFrequency = "event_unique_user_frequency"
)

func everyEvent(domain.Event, domain.EventState, domain.Rule, map[string]any) (bool, error) {
	return true, nil
}

// firstSeen uses the per-environment flag for environment-scoped rules.
func firstSeen(state domain.EventState, rule domain.Rule) bool {
	if rule.Environment != "" {
		return state.IsNewGroupEnvironment
	}
	return state.IsNew
}

func firstSeenEvent(_ domain.Event, state domain.EventState, rule domain.Rule, _ map[string]any) (bool, error) {
	return firstSeen(state, rule), nil
}

func regressionEvent(_ domain.Event, state domain.EventState, _ domain.Rule, _ map[string]any) (bool, error) {
	return state.IsRegression, nil
}

func reappearedEvent(_ domain.Event, state domain.EventState, _ domain.Rule, _ map[string]any) (bool, error) {
	return state.HasReappeared, nil
}

func escalatingEvent(_ domain.Event, state domain.EventState, _ domain.Rule, _ map[string]any) (bool, error) {
	return state.HasEscalated, nil
}

func newHighPriorityIssue(event domain.Event, state domain.EventState, rule domain.Rule, _ map[string]any) (bool, error) {
	return firstSeen(state, rule) && event.Group.Priority == "high", nil
}
