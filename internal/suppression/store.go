package suppression

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates absent suppression record.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates revision mismatch that outlived CAS retries.
	ErrConflict = errors.New("revision conflict")
)

// Record is last-fired state of one rule for one subject.
// Params: rule id, subject (group) id, and optional last fire time.
// Returns: persisted suppression state.
type Record struct {
	RuleID     int64      `json:"rule_id"`
	GroupID    int64      `json:"group_id"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

// CanFire reports whether record is outside its cooldown window at now.
// Params: evaluation time and rule frequency.
// Returns: true when never fired or last fire is at or before now-cooldown.
func (r Record) CanFire(now time.Time, cooldown time.Duration) bool {
	if r.LastActive == nil {
		return true
	}
	return !r.LastActive.After(now.Add(-cooldown))
}

// Store persists suppression records and exposes atomic fire gating.
// Params: record lookups keyed by rule and subject.
// Returns: backend persistence behavior.
type Store interface {
	GetOrCreate(ctx context.Context, ruleID, groupID int64) (Record, error)
	// GetOrCreateBulk returns one record per rule, creating missing ones and
	// tolerating concurrent creators.
	GetOrCreateBulk(ctx context.Context, ruleIDs []int64, groupID int64) (map[int64]Record, error)
	// TryFire sets last_active to now iff the record is outside cooldown.
	// It is a single conditional write; true means this call won.
	TryFire(ctx context.Context, ruleID, groupID int64, now time.Time, cooldown time.Duration) (bool, error)
	Close() error
}
