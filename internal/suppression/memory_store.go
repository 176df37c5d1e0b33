package suppression

import (
	"context"
	"sync"
	"time"
)

type recordKey struct {
	ruleID  int64
	groupID int64
}

// MemoryStore keeps suppression records in process memory for single-instance mode.
// Params: in-memory record map guarded by mutex.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu      sync.Mutex
	records map[recordKey]Record
}

// NewMemoryStore creates in-memory suppression store.
// Params: none.
// Returns: initialized in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]Record)}
}

// GetOrCreate returns record, creating an empty one when absent.
// Params: rule and subject ids.
// Returns: record copy.
func (s *MemoryStore) GetOrCreate(_ context.Context, ruleID, groupID int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(ruleID, groupID), nil
}

// GetOrCreateBulk returns records for every rule id.
// Params: rule ids and subject id.
// Returns: records keyed by rule id.
func (s *MemoryStore) GetOrCreateBulk(_ context.Context, ruleIDs []int64, groupID int64) (map[int64]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]Record, len(ruleIDs))
	for _, ruleID := range ruleIDs {
		out[ruleID] = s.getOrCreateLocked(ruleID, groupID)
	}
	return out, nil
}

// TryFire performs check-and-set of last_active under the store mutex.
// Params: rule/subject ids, evaluation time, and cooldown.
// Returns: true when this call recorded the fire.
func (s *MemoryStore) TryFire(_ context.Context, ruleID, groupID int64, now time.Time, cooldown time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.getOrCreateLocked(ruleID, groupID)
	if !record.CanFire(now, cooldown) {
		return false, nil
	}
	firedAt := now
	record.LastActive = &firedAt
	s.records[recordKey{ruleID: ruleID, groupID: groupID}] = record
	return true, nil
}

func (s *MemoryStore) getOrCreateLocked(ruleID, groupID int64) Record {
	key := recordKey{ruleID: ruleID, groupID: groupID}
	record, ok := s.records[key]
	if !ok {
		record = Record{RuleID: ruleID, GroupID: groupID}
		s.records[key] = record
	}
	if record.LastActive != nil {
		lastActive := *record.LastActive
		record.LastActive = &lastActive
	}
	return record
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}
