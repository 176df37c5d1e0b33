package processor

import (
	"context"
	"log/slog"
	"time"

	"alertrules/internal/domain"
	"alertrules/internal/metrics"
	"alertrules/internal/rules"
	"alertrules/internal/suppression"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

// Evaluation paths recorded in fire history and metrics.
const (
	PathFast    = "fast"
	PathDelayed = "delayed"
)

var tracer = otel.Tracer("alertrules/internal/processor")

// activator fires one rule for one event: TryFire, history, then action hooks.
type activator struct {
	registry    *rules.Registry
	suppression suppression.Store
	history     suppression.HistoryRecorder
	logger      *slog.Logger
}

// fire gates rule through TryFire and merges action futures into set.
// Params: rule, triggering event, evaluation path, evaluation time, and merge set.
// Returns: true when this call won the fire.
func (a *activator) fire(ctx context.Context, rule domain.Rule, event domain.Event, path string, now time.Time, set *rules.FutureSet) bool {
	logger := a.logger.With("rule_id", rule.ID, "project_id", event.ProjectID, "group_id", event.GroupID, "path", path)

	won, err := a.suppression.TryFire(ctx, rule.ID, event.GroupID, now, rule.Frequency())
	if err != nil {
		logger.Error("suppression try-fire failed", "error", err.Error())
		return false
	}
	if !won {
		metrics.RuleEvaluationsTotal.WithLabelValues("race_lost").Inc()
		logger.Debug("rule already fired inside cooldown")
		return false
	}
	metrics.RulesFiredTotal.WithLabelValues(path).Inc()

	if a.history != nil {
		record := suppression.FireRecord{
			ID:        uuid.NewString(),
			RuleID:    rule.ID,
			ProjectID: event.ProjectID,
			GroupID:   event.GroupID,
			EventID:   event.EventID,
			Path:      path,
			FiredAt:   now,
		}
		if err := a.history.Record(ctx, record); err != nil {
			logger.Warn("fire history write failed", "error", err.Error())
		}
	}

	for i, spec := range rule.Actions {
		handler, err := a.registry.Action(spec.Kind)
		if err != nil {
			logger.Warn("action kind is not registered", "action", i, "kind", spec.Kind, "error", err.Error())
			continue
		}
		futures, err := handler.After(event, rule, spec.Params)
		if err != nil {
			logger.Warn("action hook failed", "action", i, "kind", spec.Kind, "error", err.Error())
			continue
		}
		set.Add(futures...)
	}
	logger.Info("rule fired", "event_id", event.EventID)
	return true
}
