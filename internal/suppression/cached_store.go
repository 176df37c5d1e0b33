package suppression

import (
	"context"
	"sync"
	"time"

	"alertrules/internal/clock"
)

// CachedStore serves record reads from a short-lived local cache and
// delegates TryFire to the backing store.
// Params: backing store, cache TTL, and clock.
// Returns: Store with cached reads.
type CachedStore struct {
	backend Store
	ttl     time.Duration
	clock   clock.Clock
	maxSize int

	mu      sync.Mutex
	entries map[recordKey]cachedRecord
}

type cachedRecord struct {
	record    Record
	expiresAt time.Time
}

// NewCachedStore wraps store with read cache.
// Params: backend store, entry TTL, max entries, and clock (RealClock when nil).
// Returns: cached store.
func NewCachedStore(backend Store, ttl time.Duration, maxSize int, clk clock.Clock) *CachedStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &CachedStore{
		backend: backend,
		ttl:     ttl,
		clock:   clk,
		maxSize: maxSize,
		entries: make(map[recordKey]cachedRecord),
	}
}

// GetOrCreate returns cached record or loads it from backend.
func (s *CachedStore) GetOrCreate(ctx context.Context, ruleID, groupID int64) (Record, error) {
	records, err := s.GetOrCreateBulk(ctx, []int64{ruleID}, groupID)
	if err != nil {
		return Record{}, err
	}
	return records[ruleID], nil
}

// GetOrCreateBulk returns cached records and bulk-loads the misses.
// Params: rule ids and subject id.
// Returns: records keyed by rule id.
func (s *CachedStore) GetOrCreateBulk(ctx context.Context, ruleIDs []int64, groupID int64) (map[int64]Record, error) {
	now := s.clock.Now()
	out := make(map[int64]Record, len(ruleIDs))
	missing := make([]int64, 0, len(ruleIDs))

	s.mu.Lock()
	for _, ruleID := range ruleIDs {
		cached, ok := s.entries[recordKey{ruleID: ruleID, groupID: groupID}]
		if ok && now.Before(cached.expiresAt) {
			out[ruleID] = cached.record
			continue
		}
		missing = append(missing, ruleID)
	}
	s.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}
	loaded, err := s.backend.GetOrCreateBulk(ctx, missing, groupID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ruleID, record := range loaded {
		out[ruleID] = record
		s.storeLocked(recordKey{ruleID: ruleID, groupID: groupID}, record, now)
	}
	return out, nil
}

// TryFire delegates to backend and refreshes the cache entry on success.
// Params: rule/subject ids, evaluation time, and cooldown.
// Returns: backend TryFire result.
func (s *CachedStore) TryFire(ctx context.Context, ruleID, groupID int64, now time.Time, cooldown time.Duration) (bool, error) {
	fired, err := s.backend.TryFire(ctx, ruleID, groupID, now, cooldown)
	key := recordKey{ruleID: ruleID, groupID: groupID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil || !fired {
		delete(s.entries, key)
		return fired, err
	}
	firedAt := now
	s.storeLocked(key, Record{RuleID: ruleID, GroupID: groupID, LastActive: &firedAt}, s.clock.Now())
	return true, nil
}

func (s *CachedStore) storeLocked(key recordKey, record Record, now time.Time) {
	if len(s.entries) >= s.maxSize {
		for existing, cached := range s.entries {
			if !now.Before(cached.expiresAt) {
				delete(s.entries, existing)
			}
		}
		if len(s.entries) >= s.maxSize {
			return
		}
	}
	s.entries[key] = cachedRecord{record: record, expiresAt: now.Add(s.ttl)}
}

// Close closes backend store.
func (s *CachedStore) Close() error {
	return s.backend.Close()
}
