package processor

import (
	"context"
	"log/slog"
	"time"

	"alertrules/internal/buffer"
	"alertrules/internal/clock"
	"alertrules/internal/domain"
	"alertrules/internal/metrics"
	"alertrules/internal/rules"
	"alertrules/internal/suppression"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Decision is the per-rule outcome of the fast path.
type Decision string

const (
	// DecisionReject drops the rule for this event.
	DecisionReject Decision = "reject"
	// DecisionDefer buffers the rule/subject pair for the delayed path.
	DecisionDefer Decision = "defer"
	// DecisionFire fires the rule now.
	DecisionFire Decision = "fire"
)

// Deps are collaborators shared by both processors.
type Deps struct {
	Rules       *rules.Repository
	Registry    *rules.Registry
	Suppression suppression.Store
	History     suppression.HistoryRecorder
	Buffer      buffer.Buffer
	Clock       clock.Clock
	Logger      *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// RuleProcessor evaluates each incoming event against its project's rules.
type RuleProcessor struct {
	deps      Deps
	activator *activator
}

// NewRuleProcessor creates the per-event evaluator.
// Params: shared dependencies; Clock and Logger default when nil.
// Returns: processor safe for concurrent use.
func NewRuleProcessor(deps Deps) *RuleProcessor {
	deps = deps.withDefaults()
	return &RuleProcessor{
		deps: deps,
		activator: &activator{
			registry:    deps.Registry,
			suppression: deps.Suppression,
			history:     deps.History,
			logger:      deps.Logger,
		},
	}
}

// Evaluate runs every active rule of the event's project.
// Rules needing windowed counts are buffered; rules decided by the event
// alone fire through TryFire. Failures stay inside the rule they hit.
// Params: event and its transition flags.
// Returns: action futures merged by key; each group must be dispatched once.
func (p *RuleProcessor) Evaluate(ctx context.Context, event domain.Event, state domain.EventState) []rules.FutureGroup {
	ctx, span := tracer.Start(ctx, "processor.Evaluate", trace.WithAttributes(
		attribute.Int64("project_id", event.ProjectID),
		attribute.Int64("group_id", event.GroupID),
		attribute.String("event_id", event.EventID),
	))
	defer span.End()
	started := time.Now()
	defer func() { metrics.EvaluateDuration.Observe(time.Since(started).Seconds()) }()

	if !event.IsActionable() {
		return nil
	}
	active := p.deps.Rules.ActiveRules(event.ProjectID)
	if len(active) == 0 {
		return nil
	}

	ids := make([]int64, len(active))
	for i, rule := range active {
		ids[i] = rule.ID
	}
	records, err := p.deps.Suppression.GetOrCreateBulk(ctx, ids, event.GroupID)
	if err != nil {
		// TryFire still gates every fire when the cooldown pre-check is unavailable.
		p.deps.Logger.Error("load suppression records failed", "project_id", event.ProjectID, "group_id", event.GroupID, "error", err.Error())
		records = nil
	}

	now := p.deps.Clock.Now()
	set := rules.NewFutureSet(event)
	for _, rule := range active {
		logger := p.deps.Logger.With("rule_id", rule.ID, "project_id", event.ProjectID, "group_id", event.GroupID)
		if rule.Environment != "" && rule.Environment != event.Environment {
			metrics.RuleEvaluationsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if record, ok := records[rule.ID]; ok && !record.CanFire(now, rule.Frequency()) {
			metrics.RuleEvaluationsTotal.WithLabelValues("cooldown").Inc()
			continue
		}

		decision, err := Decide(p.deps.Registry, rule, event, state, logger)
		if err != nil {
			metrics.RuleEvaluationsTotal.WithLabelValues("error").Inc()
			logger.Error("rule skipped", "error", err.Error())
			continue
		}
		metrics.RuleEvaluationsTotal.WithLabelValues(string(decision)).Inc()
		switch decision {
		case DecisionFire:
			p.activator.fire(ctx, rule, event, PathFast, now, set)
		case DecisionDefer:
			p.enqueue(ctx, rule, event, logger)
		}
	}
	span.SetAttributes(attribute.Int("future_groups", set.Len()))
	return set.Groups()
}

func (p *RuleProcessor) enqueue(ctx context.Context, rule domain.Rule, event domain.Event, logger *slog.Logger) {
	key := buffer.Key{OwnerID: rule.ID, SubjectID: event.GroupID, ConditionGroupIDs: []int64{rule.ID}}
	payload := buffer.Payload{EventID: event.EventID, OccurrenceID: event.OccurrenceID}
	if err := p.deps.Buffer.Enqueue(ctx, event.ProjectID, key, payload); err != nil {
		logger.Error("buffer enqueue failed", "error", err.Error())
	}
}

// Decide classifies rule conditions and applies filter_match, action_match,
// and the fast/slow decision table for one event.
// Params: registry, rule, event, transition flags, and rule-scoped logger.
// Returns: decision, or error only for an unsupported match mode.
func Decide(registry *rules.Registry, rule domain.Rule, event domain.Event, state domain.EventState, logger *slog.Logger) (Decision, error) {
	var filterResults, fastResults []bool
	hasSlow := false
	for i, spec := range rule.Conditions {
		entry, err := registry.Lookup(spec.Kind)
		if err != nil {
			logger.Warn("condition kind is not registered", "condition", i, "kind", spec.Kind)
			fastResults = append(fastResults, false)
			continue
		}
		if !entry.IsFast() {
			hasSlow = true
			continue
		}
		matched, err := entry.Evaluator.Evaluate(event, state, rule, spec.Params)
		if err != nil {
			logger.Warn("condition evaluation failed", "condition", i, "kind", entry.Kind, "error", err.Error())
			matched = false
		}
		if entry.Family == rules.FamilyFilter {
			filterResults = append(filterResults, matched)
		} else {
			fastResults = append(fastResults, matched)
		}
	}

	filtersPass, err := rules.Combine(rule.FilterMatch, filterResults)
	if err != nil {
		return DecisionReject, err
	}
	fastPass, err := rules.Combine(rule.ActionMatch, fastResults)
	if err != nil {
		return DecisionReject, err
	}
	if !filtersPass {
		return DecisionReject, nil
	}

	switch {
	case !fastPass && rule.ActionMatch == domain.MatchAny && hasSlow:
		return DecisionDefer, nil
	case !fastPass:
		return DecisionReject, nil
	case hasSlow:
		return DecisionDefer, nil
	default:
		return DecisionFire, nil
	}
}
