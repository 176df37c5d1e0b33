package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"alertrules/internal/buffer"
	"alertrules/internal/domain"
	"alertrules/internal/eventstore"
	"alertrules/internal/rates"
	"alertrules/internal/rules"
	"alertrules/internal/suppression"

	"github.com/stretchr/testify/require"
)

const (
	testProject      = int64(1)
	kindTrue         = "test_true"
	kindFalse        = "test_false"
	kindBroken       = "test_broken"
	kindFilterTrue   = "test_filter_true"
	kindFilterFalse  = "test_filter_false"
	actionEmail      = "email"
	actionBrokenHook = "broken_hook"
)

var harnessStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type actionFunc func(event domain.Event, rule domain.Rule, params map[string]any) ([]rules.ActionFuture, error)

func (f actionFunc) After(event domain.Event, rule domain.Rule, params map[string]any) ([]rules.ActionFuture, error) {
	return f(event, rule, params)
}

type rateCall struct {
	handler  string
	duration time.Duration
	subjects []int64
	env      string
	end      time.Time
}

type fakeRates struct {
	mu     sync.Mutex
	calls  []rateCall
	values map[string]map[int64]float64
	fail   map[string]error
}

func (f *fakeRates) handler(kind string) rates.Handler {
	return rates.HandlerFunc(func(_ context.Context, duration time.Duration, groupIDs []int64, environment string, end time.Time) (map[int64]float64, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, rateCall{handler: kind, duration: duration, subjects: append([]int64(nil), groupIDs...), env: environment, end: end})
		if err := f.fail[kind]; err != nil {
			return nil, err
		}
		out := make(map[int64]float64)
		for _, id := range groupIDs {
			if value, ok := f.values[kind][id]; ok {
				out[id] = value
			}
		}
		return out, nil
	})
}

func (f *fakeRates) set(kind string, values map[int64]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[kind] = values
}

func (f *fakeRates) callsSnapshot() []rateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rateCall(nil), f.calls...)
}

type captureDispatcher struct {
	mu     sync.Mutex
	groups []rules.FutureGroup
}

func (d *captureDispatcher) DispatchAll(_ context.Context, groups []rules.FutureGroup) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups = append(d.groups, groups...)
	return nil
}

func (d *captureDispatcher) snapshot() []rules.FutureGroup {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]rules.FutureGroup(nil), d.groups...)
}

type harness struct {
	t          *testing.T
	clock      *manualClock
	repo       *rules.Repository
	registry   *rules.Registry
	store      *suppression.MemoryStore
	history    *suppression.MemoryHistory
	buf        *buffer.MemoryBuffer
	events     *eventstore.MemoryStore
	rates      *fakeRates
	dispatcher *captureDispatcher
	fast       *RuleProcessor
	delayed    *DelayedProcessor
	seq        int
}

func newHarness(t *testing.T, ruleList ...domain.Rule) *harness {
	t.Helper()
	clk := &manualClock{now: harnessStart}
	builder := rules.RegisterBuiltins(rules.NewBuilder()).
		Condition(kindTrue, rules.EvaluatorFunc(func(domain.Event, domain.EventState, domain.Rule, map[string]any) (bool, error) { return true, nil })).
		Condition(kindFalse, rules.EvaluatorFunc(func(domain.Event, domain.EventState, domain.Rule, map[string]any) (bool, error) { return false, nil })).
		Condition(kindBroken, rules.EvaluatorFunc(func(domain.Event, domain.EventState, domain.Rule, map[string]any) (bool, error) {
			return true, errors.New("evaluator exploded")
		})).
		Filter(kindFilterTrue, rules.EvaluatorFunc(func(domain.Event, domain.EventState, domain.Rule, map[string]any) (bool, error) { return true, nil })).
		Filter(kindFilterFalse, rules.EvaluatorFunc(func(domain.Event, domain.EventState, domain.Rule, map[string]any) (bool, error) { return false, nil })).
		Action(actionEmail, actionFunc(func(_ domain.Event, rule domain.Rule, _ map[string]any) ([]rules.ActionFuture, error) {
			return []rules.ActionFuture{{Key: "email", Callback: "email", RuleID: rule.ID, RuleLabel: rule.Label}}, nil
		})).
		Action(actionBrokenHook, actionFunc(func(domain.Event, domain.Rule, map[string]any) ([]rules.ActionFuture, error) {
			return nil, errors.New("hook exploded")
		}))
	registry, err := builder.Build()
	require.NoError(t, err)

	h := &harness{
		t:          t,
		clock:      clk,
		repo:       rules.NewRepository(ruleList),
		registry:   registry,
		store:      suppression.NewMemoryStore(),
		history:    suppression.NewMemoryHistory(100),
		buf:        buffer.NewMemoryBuffer(clk, time.Minute, nil),
		events:     eventstore.NewMemoryStore(time.Hour, clk),
		rates:      &fakeRates{values: map[string]map[int64]float64{}, fail: map[string]error{}},
		dispatcher: &captureDispatcher{},
	}
	deps := Deps{
		Rules:       h.repo,
		Registry:    registry,
		Suppression: h.store,
		History:     h.history,
		Buffer:      h.buf,
		Clock:       clk,
	}
	handlers := rates.Handlers{
		rates.KindEventCount:  h.rates.handler(rates.KindEventCount),
		rates.KindUniqueUsers: h.rates.handler(rates.KindUniqueUsers),
	}
	h.fast = NewRuleProcessor(deps)
	h.delayed = NewDelayedProcessor(deps, handlers, h.events, h.dispatcher, 4)
	return h
}

// ingest stores the event like the pipeline does and runs the fast path.
func (h *harness) ingest(groupID int64, mutate ...func(*domain.Event)) []rules.FutureGroup {
	h.t.Helper()
	event := h.event(groupID, mutate...)
	require.NoError(h.t, h.events.Put(context.Background(), event))
	return h.fast.Evaluate(context.Background(), event, domain.EventState{})
}

func (h *harness) event(groupID int64, mutate ...func(*domain.Event)) domain.Event {
	h.seq++
	event := domain.Event{
		EventID:   fmt.Sprintf("e%d", h.seq),
		ProjectID: testProject,
		GroupID:   groupID,
		DT:        h.clock.Now().UnixMilli(),
		Level:     "error",
	}
	for _, fn := range mutate {
		fn(&event)
	}
	return event
}

func testRule(id int64, match domain.MatchMode, conditions ...domain.ConditionSpec) domain.Rule {
	return domain.Rule{
		ID:               id,
		ProjectID:        testProject,
		Label:            fmt.Sprintf("rule-%d", id),
		Conditions:       conditions,
		ActionMatch:      match,
		FilterMatch:      domain.MatchAll,
		FrequencyMinutes: 30,
		Actions:          []domain.ActionSpec{{Kind: actionEmail}},
	}
}

func cond(kind string) domain.ConditionSpec {
	return domain.ConditionSpec{Kind: kind}
}

func frequency(interval string, value float64) domain.ConditionSpec {
	return domain.ConditionSpec{Kind: rules.KindEventFrequency, Params: map[string]any{"interval": interval, "value": value}}
}

func futureCount(groups []rules.FutureGroup) int {
	total := 0
	for _, group := range groups {
		total += len(group.Futures)
	}
	return total
}
