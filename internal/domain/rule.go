package domain

import (
	"strings"
	"time"
)

// MatchMode is the boolean combinator applied to a list of results.
type MatchMode string

const (
	// MatchAll is logical AND; vacuously true.
	MatchAll MatchMode = "all"
	// MatchAny is logical OR; vacuously false.
	MatchAny MatchMode = "any"
	// MatchNone is logical NOR.
	MatchNone MatchMode = "none"
)

// NormalizeMatchMode canonicalizes a configured match mode.
// Params: raw value from config.
// Returns: lowercase trimmed mode; empty input stays empty.
func NormalizeMatchMode(value string) MatchMode {
	return MatchMode(strings.ToLower(strings.TrimSpace(value)))
}

// ConditionSpec is one configured condition or filter instance.
// Params: registered kind and free-form parameters.
// Returns: value resolved through the registry at evaluation time.
type ConditionSpec struct {
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

// ActionSpec is one configured action instance.
// Params: registered action kind and parameters.
// Returns: value resolved to an action handler on fire.
type ActionSpec struct {
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

// Rule describes one alert rule owned by a project.
// Params: identity, scope, conditions, match modes, cooldown, and actions.
// Returns: read-only rule definition for evaluators.
type Rule struct {
	ID               int64
	ProjectID        int64
	Label            string
	Environment      string
	Conditions       []ConditionSpec
	ActionMatch      MatchMode
	FilterMatch      MatchMode
	FrequencyMinutes int
	Actions          []ActionSpec
	Snoozed          bool
}

// Frequency returns cooldown window between two fires of the rule.
// Params: none.
// Returns: frequency in minutes as duration.
func (r Rule) Frequency() time.Duration {
	return time.Duration(r.FrequencyMinutes) * time.Minute
}

// Notification is the outbound payload built from one action dispatch group.
// Params: dispatch key, event identity, and contributing rules.
// Returns: one notification request for the notify layer.
type Notification struct {
	ID          string            `json:"id"`
	Channel     string            `json:"channel"`
	Key         string            `json:"key"`
	ProjectID   int64             `json:"project_id"`
	GroupID     int64             `json:"group_id"`
	EventID     string            `json:"event_id"`
	Environment string            `json:"environment,omitempty"`
	Level       string            `json:"level,omitempty"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	RuleIDs     []int64           `json:"rule_ids"`
	RuleLabels  []string          `json:"rule_labels"`
	Tags        map[string]string `json:"tags,omitempty"`
	Params      map[string]any    `json:"params,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}
