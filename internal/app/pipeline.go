package app

import (
	"context"
	"fmt"
	"log/slog"

	"alertrules/internal/actions"
	"alertrules/internal/domain"
	"alertrules/internal/eventstore"
	"alertrules/internal/processor"
	"alertrules/internal/rates"
	"alertrules/internal/rules"
)

// Pipeline is the ingest sink: it stores the event, records rate samples,
// evaluates rules, and dispatches the merged futures.
type Pipeline struct {
	events     eventstore.Store
	recorder   rates.Recorder
	processor  *processor.RuleProcessor
	dispatcher processor.Dispatcher
	logger     *slog.Logger
}

// NewPipeline creates the per-event pipeline.
// Params: event store, rate recorder, fast processor, dispatcher, and logger.
// Returns: ingest sink.
func NewPipeline(events eventstore.Store, recorder rates.Recorder, rp *processor.RuleProcessor, dispatcher processor.Dispatcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		events:     events,
		recorder:   recorder,
		processor:  rp,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Push processes one envelope.
// Storage failures are returned so the transport can redeliver. Dispatch
// failures are only logged: the rules already won TryFire for this event.
// Params: context and validated envelope.
// Returns: event store or rate recorder error.
func (p *Pipeline) Push(ctx context.Context, envelope domain.Envelope) error {
	event := envelope.Event
	if err := p.events.Put(ctx, event); err != nil {
		return fmt.Errorf("store event %s: %w", event.EventID, err)
	}
	if err := p.recorder.Record(ctx, event); err != nil {
		return fmt.Errorf("record rates for event %s: %w", event.EventID, err)
	}

	groups := p.processor.Evaluate(ctx, event, envelope.State)
	if len(groups) == 0 {
		return nil
	}
	if err := p.dispatcher.DispatchAll(ctx, groups); err != nil {
		p.logger.Warn("event dispatch had failures",
			"event_id", event.EventID,
			"project_id", event.ProjectID,
			"groups", len(groups),
			"error", err.Error(),
		)
	}
	return nil
}

// PushBatch processes envelopes in order and stops at the first storage error.
func (p *Pipeline) PushBatch(ctx context.Context, envelopes []domain.Envelope) error {
	for _, envelope := range envelopes {
		if err := p.Push(ctx, envelope); err != nil {
			return err
		}
	}
	return nil
}

// BuildRegistry returns the registry with built-in conditions, filters, and actions.
func BuildRegistry() (*rules.Registry, error) {
	return actions.Register(rules.RegisterBuiltins(rules.NewBuilder())).Build()
}

// ValidateRules checks every rule against the registry.
// Params: registry and rule list.
// Returns: first invalid rule error.
func ValidateRules(registry *rules.Registry, list []domain.Rule) error {
	for _, rule := range list {
		if err := registry.ValidateRule(rule); err != nil {
			return fmt.Errorf("rule %d (%s): %w", rule.ID, rule.Label, err)
		}
	}
	return nil
}
