package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"alertrules/internal/domain"
)

var (
	// ErrUnknownKind indicates condition, filter, or action kind without registration.
	ErrUnknownKind = errors.New("unknown kind")
	// ErrUnsupportedMatch indicates match mode outside ALL/ANY/NONE.
	ErrUnsupportedMatch = errors.New("unsupported match mode")
)

// Family separates event-type conditions from attribute filters.
type Family string

const (
	// FamilyCondition marks event-type conditions combined with action_match.
	FamilyCondition Family = "condition"
	// FamilyFilter marks filters combined with filter_match.
	FamilyFilter Family = "filter"
)

// slowKindPrefix marks kinds that always require windowed aggregate counts.
const slowKindPrefix = "event_frequency"

// Evaluator decides one fast condition or filter from the event alone.
// Params: event, transition flags, owning rule, and condition params.
// Returns: match result or evaluation error.
type Evaluator interface {
	Evaluate(event domain.Event, state domain.EventState, rule domain.Rule, params map[string]any) (bool, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(event domain.Event, state domain.EventState, rule domain.Rule, params map[string]any) (bool, error)

// Evaluate calls the wrapped function.
func (f EvaluatorFunc) Evaluate(event domain.Event, state domain.EventState, rule domain.Rule, params map[string]any) (bool, error) {
	return f(event, state, rule, params)
}

// SlowCondition resolves one windowed condition into aggregate queries and
// decides it from their results.
type SlowCondition interface {
	// Queries returns the unique queries the condition needs, in the order
	// Passes expects their values.
	Queries(params map[string]any, environment string) ([]UniqueConditionQuery, error)
	// Passes compares fetched values with the configured threshold.
	Passes(params map[string]any, values []float64) (bool, error)
}

// ActionHandler turns a fired rule into mergeable action futures.
// Params: event that fired, rule, and action params.
// Returns: zero or more futures or an error.
type ActionHandler interface {
	After(event domain.Event, rule domain.Rule, params map[string]any) ([]ActionFuture, error)
}

// Registration is one registry entry for a condition or filter kind.
type Registration struct {
	Kind      string
	Family    Family
	Evaluator Evaluator
	Slow      SlowCondition
}

// IsFast reports whether the kind can be decided from the event alone.
func (r Registration) IsFast() bool {
	return r.Slow == nil
}

// Registry is an immutable lookup table of condition, filter, and action kinds.
// Params: entries fixed at Build time.
// Returns: goroutine-safe read-only registry.
type Registry struct {
	entries map[string]Registration
	actions map[string]ActionHandler
}

// Lookup resolves one condition or filter kind.
// Params: registered kind string.
// Returns: registration or ErrUnknownKind.
func (r *Registry) Lookup(kind string) (Registration, error) {
	entry, ok := r.entries[normalizeKind(kind)]
	if !ok {
		return Registration{}, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	return entry, nil
}

// Action resolves one action kind.
// Params: registered action kind string.
// Returns: action handler or ErrUnknownKind.
func (r *Registry) Action(kind string) (ActionHandler, error) {
	handler, ok := r.actions[normalizeKind(kind)]
	if !ok {
		return nil, fmt.Errorf("%w action %q", ErrUnknownKind, kind)
	}
	return handler, nil
}

// Kinds returns sorted condition and filter kinds.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.entries))
	for kind := range r.entries {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

// ValidateRule checks that every kind referenced by rule is registered and
// every slow condition resolves to queries.
// Params: rule definition.
// Returns: first validation error.
func (r *Registry) ValidateRule(rule domain.Rule) error {
	for _, mode := range []domain.MatchMode{rule.ActionMatch, rule.FilterMatch} {
		if _, err := Combine(mode, nil); err != nil {
			return err
		}
	}
	for i, spec := range rule.Conditions {
		entry, err := r.Lookup(spec.Kind)
		if err != nil {
			return fmt.Errorf("condition[%d]: %w", i, err)
		}
		if entry.Slow != nil {
			if _, err := entry.Slow.Queries(spec.Params, rule.Environment); err != nil {
				return fmt.Errorf("condition[%d] %s: %w", i, spec.Kind, err)
			}
		}
	}
	for i, spec := range rule.Actions {
		if _, err := r.Action(spec.Kind); err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
	}
	return nil
}

// Builder collects registrations before freezing them into a Registry.
type Builder struct {
	entries map[string]Registration
	actions map[string]ActionHandler
	errs    []error
}

// NewBuilder creates an empty registry builder.
func NewBuilder() *Builder {
	return &Builder{
		entries: make(map[string]Registration),
		actions: make(map[string]ActionHandler),
	}
}

// Condition registers a fast event-type condition.
func (b *Builder) Condition(kind string, evaluator Evaluator) *Builder {
	return b.addFast(Registration{Kind: kind, Family: FamilyCondition, Evaluator: evaluator})
}

// Filter registers an attribute filter.
func (b *Builder) Filter(kind string, evaluator Evaluator) *Builder {
	return b.addFast(Registration{Kind: kind, Family: FamilyFilter, Evaluator: evaluator})
}

// addFast rejects frequency-prefixed kinds, which are always slow.
func (b *Builder) addFast(entry Registration) *Builder {
	if strings.HasPrefix(normalizeKind(entry.Kind), slowKindPrefix) {
		b.errs = append(b.errs, fmt.Errorf("kind %q must be registered as slow condition", entry.Kind))
		return b
	}
	return b.add(entry)
}

// SlowCondition registers a windowed condition.
func (b *Builder) SlowCondition(kind string, slow SlowCondition) *Builder {
	if slow == nil {
		b.errs = append(b.errs, fmt.Errorf("kind %q: slow condition is nil", kind))
		return b
	}
	return b.add(Registration{Kind: kind, Family: FamilyCondition, Slow: slow})
}

// Action registers an action handler.
func (b *Builder) Action(kind string, handler ActionHandler) *Builder {
	key := normalizeKind(kind)
	if key == "" || handler == nil {
		b.errs = append(b.errs, fmt.Errorf("invalid action registration %q", kind))
		return b
	}
	if _, exists := b.actions[key]; exists {
		b.errs = append(b.errs, fmt.Errorf("duplicate action kind %q", kind))
		return b
	}
	b.actions[key] = handler
	return b
}

func (b *Builder) add(entry Registration) *Builder {
	key := normalizeKind(entry.Kind)
	if key == "" {
		b.errs = append(b.errs, errors.New("empty kind"))
		return b
	}
	if entry.Slow == nil && entry.Evaluator == nil {
		b.errs = append(b.errs, fmt.Errorf("kind %q: evaluator is nil", entry.Kind))
		return b
	}
	if _, exists := b.entries[key]; exists {
		b.errs = append(b.errs, fmt.Errorf("duplicate kind %q", entry.Kind))
		return b
	}
	entry.Kind = key
	b.entries[key] = entry
	return b
}

// Build freezes registrations into an immutable registry.
// Params: none.
// Returns: registry or joined registration errors.
func (b *Builder) Build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	entries := make(map[string]Registration, len(b.entries))
	for key, entry := range b.entries {
		entries[key] = entry
	}
	actions := make(map[string]ActionHandler, len(b.actions))
	for key, handler := range b.actions {
		actions[key] = handler
	}
	return &Registry{entries: entries, actions: actions}, nil
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
