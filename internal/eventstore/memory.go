package eventstore

import (
	"context"
	"sync"
	"time"

	"alertrules/internal/clock"
	"alertrules/internal/domain"
)

type memoryEntry struct {
	event     domain.Event
	expiresAt time.Time
}

const maxSweepInterval = time.Minute

// MemoryStore is a TTL map for single mode and tests.
// Expired entries are hidden on read and swept from Put at most once per sweep interval.
type MemoryStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	clock     clock.Clock
	entries   map[string]memoryEntry
	nextSweep time.Time
}

// NewMemoryStore creates memory event store.
// Params: entry TTL (no expiry when <=0) and clock (RealClock when nil).
// Returns: store.
func NewMemoryStore(ttl time.Duration, clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryStore{ttl: ttl, clock: clk, entries: make(map[string]memoryEntry)}
}

// Put stores event; expired entries are evicted once the sweep interval elapses.
func (s *MemoryStore) Put(_ context.Context, event domain.Event) error {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	entry := memoryEntry{event: event}
	if s.ttl > 0 {
		entry.expiresAt = now.Add(s.ttl)
	}
	s.entries[event.EventID] = entry
	return nil
}

// GetMany returns live events by id.
func (s *MemoryStore) GetMany(_ context.Context, ids []string) (map[string]domain.Event, error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Event, len(ids))
	for _, id := range ids {
		entry, ok := s.entries[id]
		if !ok || s.expired(entry, now) {
			continue
		}
		out[id] = entry.event
	}
	return out, nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	if s.ttl <= 0 || now.Before(s.nextSweep) {
		return
	}
	for id, entry := range s.entries {
		if s.expired(entry, now) {
			delete(s.entries, id)
		}
	}
	s.nextSweep = now.Add(min(s.ttl, maxSweepInterval))
}

func (s *MemoryStore) expired(entry memoryEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}

// Close releases nothing.
func (s *MemoryStore) Close() error {
	return nil
}
