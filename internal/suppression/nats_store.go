package suppression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"alertrules/internal/config"

	"github.com/nats-io/nats.go"
)

// NATSStore persists suppression records in a JetStream KV bucket and uses
// KV revisions for compare-and-swap fire gating.
// Params: NATS connection and KV bucket handle.
// Returns: KV-backed suppression store.
type NATSStore struct {
	nc         *nats.Conn
	kv         nats.KeyValue
	maxRetries int
}

// NewNATSStore opens (or creates) the suppression bucket.
// Params: NATS state settings derived from config.
// Returns: initialized NATS store or setup error.
func NewNATSStore(settings config.NATSStateConfig) (*NATSStore, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(settings.SuppressionBucket)
	if err != nil {
		if !settings.AllowCreateBuckets {
			nc.Close()
			return nil, fmt.Errorf("open suppression bucket %q: %w", settings.SuppressionBucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: settings.SuppressionBucket,
			TTL:    settings.RecordTTL,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create suppression bucket %q: %w", settings.SuppressionBucket, err)
		}
	}

	maxRetries := settings.MaxCASRetries
	if maxRetries <= 0 {
		maxRetries = 8
	}
	return &NATSStore{nc: nc, kv: kv, maxRetries: maxRetries}, nil
}

// recordKVKey builds KV key for one rule/subject pair.
func recordKVKey(ruleID, groupID int64) string {
	return "rule." + strconv.FormatInt(ruleID, 10) + ".group." + strconv.FormatInt(groupID, 10)
}

// GetOrCreate reads record or creates an empty one.
// Params: rule and subject ids.
// Returns: stored record.
func (s *NATSStore) GetOrCreate(_ context.Context, ruleID, groupID int64) (Record, error) {
	record, _, err := s.getOrCreate(ruleID, groupID)
	return record, err
}

// GetOrCreateBulk reads records for all rule ids, creating missing ones.
// Params: rule ids and subject id.
// Returns: records keyed by rule id.
func (s *NATSStore) GetOrCreateBulk(_ context.Context, ruleIDs []int64, groupID int64) (map[int64]Record, error) {
	out := make(map[int64]Record, len(ruleIDs))
	for _, ruleID := range ruleIDs {
		record, _, err := s.getOrCreate(ruleID, groupID)
		if err != nil {
			return nil, err
		}
		out[ruleID] = record
	}
	return out, nil
}

// TryFire updates last_active with revision CAS; a conflict re-reads and
// re-checks the cooldown, so concurrent callers see exactly one winner.
// Params: rule/subject ids, evaluation time, and cooldown.
// Returns: true when this call recorded the fire.
func (s *NATSStore) TryFire(_ context.Context, ruleID, groupID int64, now time.Time, cooldown time.Duration) (bool, error) {
	key := recordKVKey(ruleID, groupID)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		record, revision, err := s.getOrCreate(ruleID, groupID)
		if err != nil {
			return false, err
		}
		if !record.CanFire(now, cooldown) {
			return false, nil
		}
		firedAt := now.UTC()
		record.LastActive = &firedAt
		body, err := json.Marshal(record)
		if err != nil {
			return false, fmt.Errorf("encode suppression record: %w", err)
		}
		if _, err := s.kv.Update(key, body, revision); err != nil {
			if isConflict(err) {
				continue
			}
			return false, fmt.Errorf("update suppression record: %w", err)
		}
		return true, nil
	}
	return false, ErrConflict
}

// getOrCreate reads record with revision; absent keys are created with
// kv.Create, and a lost create race falls back to reading the winner.
func (s *NATSStore) getOrCreate(ruleID, groupID int64) (Record, uint64, error) {
	key := recordKVKey(ruleID, groupID)
	record, revision, err := s.get(key)
	if err == nil {
		return record, revision, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Record{}, 0, err
	}

	record = Record{RuleID: ruleID, GroupID: groupID}
	body, err := json.Marshal(record)
	if err != nil {
		return Record{}, 0, fmt.Errorf("encode suppression record: %w", err)
	}
	revision, err = s.kv.Create(key, body)
	if err == nil {
		return record, revision, nil
	}
	if !isConflict(err) {
		return Record{}, 0, fmt.Errorf("create suppression record: %w", err)
	}
	return s.get(key)
}

func (s *NATSStore) get(key string) (Record, uint64, error) {
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
			return Record{}, 0, ErrNotFound
		}
		return Record{}, 0, fmt.Errorf("get suppression record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(entry.Value(), &record); err != nil {
		return Record{}, 0, fmt.Errorf("decode suppression record: %w", err)
	}
	return record, entry.Revision(), nil
}

// isConflict maps JetStream CAS failures to one predicate.
func isConflict(err error) bool {
	return errors.Is(err, nats.ErrKeyExists) || strings.Contains(strings.ToLower(err.Error()), "wrong last sequence")
}

// Close closes underlying NATS connection.
// Params: none.
// Returns: nil after connection close.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}
