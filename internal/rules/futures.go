package rules

import "alertrules/internal/domain"

// ActionFuture is a deferred, mergeable description of one side effect.
// Params: dispatch identity key, callback name, contributing rule, and kwargs.
// Returns: unit merged by key before dispatch.
type ActionFuture struct {
	Key       string
	Callback  string
	RuleID    int64
	RuleLabel string
	Kwargs    map[string]any
}

// FutureGroup is every future sharing one key for one event.
// Params: key, callback, triggering event, and merged futures.
// Returns: one dispatch unit; the side effect runs once per group.
type FutureGroup struct {
	Key      string
	Callback string
	Event    domain.Event
	Futures  []ActionFuture
}

// RuleIDs lists contributing rule ids in merge order without duplicates.
func (g FutureGroup) RuleIDs() []int64 {
	seen := make(map[int64]struct{}, len(g.Futures))
	out := make([]int64, 0, len(g.Futures))
	for _, future := range g.Futures {
		if _, ok := seen[future.RuleID]; ok {
			continue
		}
		seen[future.RuleID] = struct{}{}
		out = append(out, future.RuleID)
	}
	return out
}

// FutureSet merges futures for one event by key.
type FutureSet struct {
	event  domain.Event
	order  []string
	groups map[string]*FutureGroup
}

// NewFutureSet creates an empty merge set for one event.
func NewFutureSet(event domain.Event) *FutureSet {
	return &FutureSet{event: event, groups: make(map[string]*FutureGroup)}
}

// Add merges futures into their key groups.
// Params: futures produced by action hooks.
// Returns: none.
func (s *FutureSet) Add(futures ...ActionFuture) {
	for _, future := range futures {
		group, ok := s.groups[future.Key]
		if !ok {
			group = &FutureGroup{Key: future.Key, Callback: future.Callback, Event: s.event}
			s.groups[future.Key] = group
			s.order = append(s.order, future.Key)
		}
		group.Futures = append(group.Futures, future)
	}
}

// Len returns number of distinct keys.
func (s *FutureSet) Len() int {
	return len(s.order)
}

// Groups returns merged groups in first-seen key order.
func (s *FutureSet) Groups() []FutureGroup {
	if len(s.order) == 0 {
		return nil
	}
	out := make([]FutureGroup, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.groups[key])
	}
	return out
}
