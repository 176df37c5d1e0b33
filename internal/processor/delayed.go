package processor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"alertrules/internal/buffer"
	"alertrules/internal/domain"
	"alertrules/internal/eventstore"
	"alertrules/internal/metrics"
	"alertrules/internal/rates"
	"alertrules/internal/rules"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Dispatcher executes merged future groups.
type Dispatcher interface {
	DispatchAll(ctx context.Context, groups []rules.FutureGroup) error
}

// Report summarizes one ProcessProject run.
type Report struct {
	Entries         int
	ConditionGroups int
	Queries         int
	FailedQueries   int
	Fired           int
}

// slowCondition is one resolved slow condition of a condition group.
type slowCondition struct {
	index   int
	spec    domain.ConditionSpec
	slow    rules.SlowCondition
	queries []rules.UniqueConditionQuery
}

// conditionGroup is one drained rule with the subjects buffered for it.
type conditionGroup struct {
	rule     domain.Rule
	ownerID  int64
	slow     []slowCondition
	subjects map[int64]buffer.Payload
}

// DelayedProcessor resolves buffered slow conditions for one project at a time.
type DelayedProcessor struct {
	deps             Deps
	handlers         rates.Handlers
	events           eventstore.Store
	dispatcher       Dispatcher
	queryConcurrency int
	activator        *activator
}

// NewDelayedProcessor creates the batch processor.
// Params: shared deps, rate handlers, event store, dispatcher, and max parallel queries.
// Returns: processor safe for concurrent use on different projects.
func NewDelayedProcessor(deps Deps, handlers rates.Handlers, events eventstore.Store, dispatcher Dispatcher, queryConcurrency int) *DelayedProcessor {
	deps = deps.withDefaults()
	if queryConcurrency <= 0 {
		queryConcurrency = 1
	}
	return &DelayedProcessor{
		deps:             deps,
		handlers:         handlers,
		events:           events,
		dispatcher:       dispatcher,
		queryConcurrency: queryConcurrency,
		activator: &activator{
			registry:    deps.Registry,
			suppression: deps.Suppression,
			history:     deps.History,
			logger:      deps.Logger,
		},
	}
}

// ProcessProject drains the project's buffer, answers every distinct rate
// query once, fires the subjects whose slow conditions pass, and deletes the
// drained entries. A run with no pending work is a no-op. Failures are
// logged; entries stay leased for redelivery only when events cannot be loaded.
// Params: project id.
// Returns: run summary.
func (p *DelayedProcessor) ProcessProject(ctx context.Context, projectID int64) Report {
	ctx, span := tracer.Start(ctx, "processor.ProcessProject", trace.WithAttributes(attribute.Int64("project_id", projectID)))
	defer span.End()
	started := time.Now()
	defer func() { metrics.DelayedProjectDuration.Observe(time.Since(started).Seconds()) }()

	logger := p.deps.Logger.With("project_id", projectID)
	var report Report

	entries, err := p.deps.Buffer.DrainProject(ctx, projectID)
	if err != nil {
		metrics.DelayedProjectsTotal.WithLabelValues("failed").Inc()
		logger.Error("buffer drain failed", "error", err.Error())
		return report
	}
	if len(entries) == 0 {
		metrics.DelayedProjectsTotal.WithLabelValues("empty").Inc()
		return report
	}
	report.Entries = len(entries)
	metrics.DelayedEntriesTotal.Add(float64(len(entries)))

	groups := p.conditionGroups(projectID, entries, logger)
	report.ConditionGroups = len(groups)

	now := p.deps.Clock.Now()
	querySubjects := collectQueries(groups)
	results, failed := p.runQueries(ctx, querySubjects, now, logger)
	report.Queries = len(querySubjects)
	report.FailedQueries = failed

	firing := evaluateGroups(groups, results, logger)
	fired, err := p.fire(ctx, groups, firing, now, logger)
	if err != nil {
		metrics.DelayedProjectsTotal.WithLabelValues("failed").Inc()
		logger.Error("delayed fire aborted; entries stay leased", "error", err.Error())
		return report
	}
	report.Fired = fired

	if err := p.deps.Buffer.Delete(ctx, projectID, entries); err != nil {
		logger.Error("buffer delete failed", "entries", len(entries), "error", err.Error())
	}
	metrics.DelayedProjectsTotal.WithLabelValues("processed").Inc()
	span.SetAttributes(
		attribute.Int("entries", report.Entries),
		attribute.Int("queries", report.Queries),
		attribute.Int("fired", report.Fired),
	)
	logger.Debug("delayed batch processed", "entries", report.Entries, "queries", report.Queries, "failed_queries", report.FailedQueries, "fired", report.Fired)
	return report
}

// conditionGroups resolves drained entries into live condition groups.
// Entries pointing at deleted, snoozed, or foreign rules are skipped.
func (p *DelayedProcessor) conditionGroups(projectID int64, entries []buffer.Entry, logger *slog.Logger) map[int64]*conditionGroup {
	groups := make(map[int64]*conditionGroup)
	for _, entry := range entries {
		if _, ok := p.deps.Rules.RuleByID(entry.Key.OwnerID); !ok {
			logger.Debug("skip entry of deleted owner", "owner_id", entry.Key.OwnerID, "group_id", entry.Key.SubjectID)
			continue
		}
		for _, groupID := range entry.Key.ConditionGroupIDs {
			group, ok := groups[groupID]
			if !ok {
				rule, found := p.deps.Rules.RuleByID(groupID)
				if !found || rule.ProjectID != projectID || rule.Snoozed {
					logger.Debug("skip stale condition group", "rule_id", groupID)
					continue
				}
				slow := p.slowConditions(rule, logger)
				if len(slow) == 0 {
					logger.Debug("skip condition group without slow conditions", "rule_id", groupID)
					continue
				}
				group = &conditionGroup{rule: rule, ownerID: entry.Key.OwnerID, slow: slow, subjects: make(map[int64]buffer.Payload)}
				groups[groupID] = group
			}
			group.subjects[entry.Key.SubjectID] = entry.Payload
		}
	}
	return groups
}

func (p *DelayedProcessor) slowConditions(rule domain.Rule, logger *slog.Logger) []slowCondition {
	var out []slowCondition
	for i, spec := range rule.Conditions {
		entry, err := p.deps.Registry.Lookup(spec.Kind)
		if err != nil || entry.IsFast() {
			continue
		}
		queries, err := entry.Slow.Queries(spec.Params, rule.Environment)
		if err != nil {
			logger.Warn("slow condition params invalid", "rule_id", rule.ID, "condition", i, "kind", spec.Kind, "error", err.Error())
			queries = nil
		}
		out = append(out, slowCondition{index: i, spec: spec, slow: entry.Slow, queries: queries})
	}
	return out
}

// collectQueries unions subjects per distinct query across all groups.
// Params: resolved condition groups.
// Returns: query -> sorted subject ids.
func collectQueries(groups map[int64]*conditionGroup) map[rules.UniqueConditionQuery][]int64 {
	union := make(map[rules.UniqueConditionQuery]map[int64]struct{})
	for _, group := range groups {
		for _, condition := range group.slow {
			for _, query := range condition.queries {
				subjects, ok := union[query]
				if !ok {
					subjects = make(map[int64]struct{})
					union[query] = subjects
				}
				for subject := range group.subjects {
					subjects[subject] = struct{}{}
				}
			}
		}
	}
	out := make(map[rules.UniqueConditionQuery][]int64, len(union))
	for query, subjects := range union {
		ids := make([]int64, 0, len(subjects))
		for id := range subjects {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out[query] = ids
	}
	return out
}

// runQueries executes each query once with bounded parallelism.
// A failed query is absent from results.
// Params: query subjects, evaluation time, and logger.
// Returns: results per query and number of failed queries.
func (p *DelayedProcessor) runQueries(ctx context.Context, querySubjects map[rules.UniqueConditionQuery][]int64, now time.Time, logger *slog.Logger) (map[rules.UniqueConditionQuery]map[int64]float64, int) {
	queries := make([]rules.UniqueConditionQuery, 0, len(querySubjects))
	for query := range querySubjects {
		queries = append(queries, query)
	}
	rules.SortQueries(queries)

	var (
		mu      sync.Mutex
		results = make(map[rules.UniqueConditionQuery]map[int64]float64, len(queries))
		failed  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.queryConcurrency)
	for _, query := range queries {
		query := query
		g.Go(func() error {
			values, err := p.runQuery(gctx, query, querySubjects[query], now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				metrics.DelayedQueriesTotal.WithLabelValues(query.Handler, "failed").Inc()
				logger.Warn("rate query failed", "query", query.String(), "subjects", len(querySubjects[query]), "error", err.Error())
				return nil
			}
			metrics.DelayedQueriesTotal.WithLabelValues(query.Handler, "ok").Inc()
			results[query] = values
			return nil
		})
	}
	_ = g.Wait()
	return results, failed
}

func (p *DelayedProcessor) runQuery(ctx context.Context, query rules.UniqueConditionQuery, subjects []int64, now time.Time) (map[int64]float64, error) {
	ctx, span := tracer.Start(ctx, "processor.rateQuery", trace.WithAttributes(
		attribute.String("query", query.String()),
		attribute.Int("subjects", len(subjects)),
	))
	defer span.End()
	handler, err := p.handlers.Lookup(query.Handler)
	if err != nil {
		return nil, err
	}
	values, err := handler.GetRatesBulk(ctx, query.Interval, subjects, query.Environment, query.End(now))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return values, nil
}

// evaluateGroups decides each (group, subject) from fetched rates only.
// A condition whose query failed counts as not passing; a subject missing from
// a successful result counts as zero.
// Params: condition groups, query results, and logger.
// Returns: subject -> firing condition group ids, sorted.
func evaluateGroups(groups map[int64]*conditionGroup, results map[rules.UniqueConditionQuery]map[int64]float64, logger *slog.Logger) map[int64][]int64 {
	firing := make(map[int64][]int64)
	for groupID, group := range groups {
		for subject := range group.subjects {
			outcomes := make([]bool, 0, len(group.slow))
			for _, condition := range group.slow {
				outcomes = append(outcomes, conditionPasses(condition, subject, results, group.rule.ID, logger))
			}
			passes, err := rules.Combine(group.rule.ActionMatch, outcomes)
			if err != nil {
				logger.Error("condition group skipped", "rule_id", group.rule.ID, "error", err.Error())
				break
			}
			if passes {
				firing[subject] = append(firing[subject], groupID)
			}
		}
	}
	for subject := range firing {
		ids := firing[subject]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return firing
}

func conditionPasses(condition slowCondition, subject int64, results map[rules.UniqueConditionQuery]map[int64]float64, ruleID int64, logger *slog.Logger) bool {
	if len(condition.queries) == 0 {
		return false
	}
	values := make([]float64, 0, len(condition.queries))
	for _, query := range condition.queries {
		result, ok := results[query]
		if !ok {
			return false
		}
		values = append(values, result[subject])
	}
	passes, err := condition.slow.Passes(condition.spec.Params, values)
	if err != nil {
		logger.Warn("slow condition evaluation failed", "rule_id", ruleID, "group_id", subject, "condition", condition.index, "error", err.Error())
		return false
	}
	return passes
}

// fire loads buffered events and activates every firing group per subject.
// Futures of one subject merge into one set built on its newest event.
// Params: groups, firing map, evaluation time, and logger.
// Returns: number of rules that won TryFire, or event store error.
func (p *DelayedProcessor) fire(ctx context.Context, groups map[int64]*conditionGroup, firing map[int64][]int64, now time.Time, logger *slog.Logger) (int, error) {
	if len(firing) == 0 {
		return 0, nil
	}
	seen := make(map[string]struct{})
	var eventIDs []string
	for subject, groupIDs := range firing {
		for _, groupID := range groupIDs {
			id := groups[groupID].subjects[subject].EventID
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				eventIDs = append(eventIDs, id)
			}
		}
	}
	sort.Strings(eventIDs)
	events, err := p.events.GetMany(ctx, eventIDs)
	if err != nil {
		return 0, err
	}

	subjects := make([]int64, 0, len(firing))
	for subject := range firing {
		subjects = append(subjects, subject)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i] < subjects[j] })

	fired := 0
	var dispatch []rules.FutureGroup
	for _, subject := range subjects {
		var (
			latest domain.Event
			found  bool
		)
		for _, groupID := range firing[subject] {
			event, ok := events[groups[groupID].subjects[subject].EventID]
			if !ok {
				continue
			}
			if !found || event.DT > latest.DT {
				latest, found = event, true
			}
		}
		if !found {
			logger.Debug("skip subject without stored event", "group_id", subject)
			continue
		}

		set := rules.NewFutureSet(latest)
		for _, groupID := range firing[subject] {
			group := groups[groupID]
			if _, ok := p.deps.Rules.RuleByID(group.ownerID); !ok {
				continue
			}
			event, ok := events[group.subjects[subject].EventID]
			if !ok {
				logger.Debug("skip condition group without stored event", "rule_id", groupID, "group_id", subject)
				continue
			}
			if p.activator.fire(ctx, group.rule, event, PathDelayed, now, set) {
				fired++
			}
		}
		dispatch = append(dispatch, set.Groups()...)
	}
	if len(dispatch) > 0 && p.dispatcher != nil {
		if err := p.dispatcher.DispatchAll(ctx, dispatch); err != nil {
			logger.Warn("delayed dispatch had failures", "error", err.Error())
		}
	}
	return fired, nil
}
