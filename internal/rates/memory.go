package rates

import (
	"context"
	"sync"
	"time"

	"alertrules/internal/domain"
)

type bucketKey struct {
	groupID     int64
	environment string
}

// userSighting is one user seen on one event.
type userSighting struct {
	userID  string
	eventID string
}

// MemoryStore keeps raw observations in memory and serves both handler kinds.
// Users are kept per sighting so every window counts the users it actually saw.
type MemoryStore struct {
	mu        sync.RWMutex
	retention time.Duration
	events    map[bucketKey]map[string]time.Time
	users     map[bucketKey]map[userSighting]time.Time
}

// NewMemoryStore creates in-memory rate store.
// Params: retention window relative to the newest recorded event.
// Returns: empty store.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		retention: retention,
		events:    make(map[bucketKey]map[string]time.Time),
		users:     make(map[bucketKey]map[userSighting]time.Time),
	}
}

// Record stores event id and user id observations.
func (s *MemoryStore) Record(_ context.Context, event domain.Event) error {
	at := event.EventTime()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range recordEnvironments(event) {
		key := bucketKey{groupID: event.GroupID, environment: env}
		observe(s.events, key, event.EventID, at, s.retention)
		if event.UserID != "" {
			observe(s.users, key, userSighting{userID: event.UserID, eventID: event.EventID}, at, s.retention)
		}
	}
	return nil
}

func observe[M comparable](index map[bucketKey]map[M]time.Time, key bucketKey, member M, at time.Time, retention time.Duration) {
	bucket, ok := index[key]
	if !ok {
		bucket = make(map[M]time.Time)
		index[key] = bucket
	}
	if prev, ok := bucket[member]; !ok || at.After(prev) {
		bucket[member] = at
	}
	if retention <= 0 {
		return
	}
	cutoff := at.Add(-retention)
	for id, seen := range bucket {
		if seen.Before(cutoff) {
			delete(bucket, id)
		}
	}
}

// EventCounts returns handler counting events.
func (s *MemoryStore) EventCounts() Handler {
	return HandlerFunc(func(ctx context.Context, duration time.Duration, groupIDs []int64, environment string, end time.Time) (map[int64]float64, error) {
		return countWindow(ctx, s, s.events, func(eventID string) string { return eventID }, duration, groupIDs, environment, end)
	})
}

// UniqueUsers returns handler counting distinct users.
func (s *MemoryStore) UniqueUsers() Handler {
	return HandlerFunc(func(ctx context.Context, duration time.Duration, groupIDs []int64, environment string, end time.Time) (map[int64]float64, error) {
		return countWindow(ctx, s, s.users, func(seen userSighting) string { return seen.userID }, duration, groupIDs, environment, end)
	})
}

// Handlers returns both handler kinds keyed for rule queries.
func (s *MemoryStore) Handlers() Handlers {
	return Handlers{
		KindEventCount:  s.EventCounts(),
		KindUniqueUsers: s.UniqueUsers(),
	}
}

// countWindow counts distinct identities observed inside (end-duration, end].
func countWindow[M comparable](ctx context.Context, s *MemoryStore, index map[bucketKey]map[M]time.Time, identity func(M) string, duration time.Duration, groupIDs []int64, environment string, end time.Time) (map[int64]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := end.Add(-duration)
	env := environmentKey(environment)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]float64, len(groupIDs))
	for _, groupID := range groupIDs {
		seen := make(map[string]struct{})
		for member, at := range index[bucketKey{groupID: groupID, environment: env}] {
			if at.After(start) && !at.After(end) {
				seen[identity(member)] = struct{}{}
			}
		}
		out[groupID] = float64(len(seen))
	}
	return out, nil
}
