package buffer

import (
	"context"
	"log/slog"
	"sort"
)

// Buffer accumulates deferred (rule, subject) evaluations per project.
//
// Enqueue merges on key: writing the same key twice keeps one entry with the
// latest payload. DrainProject moves pending rows into an in-flight set under
// a per-project lease; a concurrent drain of the same project returns no
// entries. Delete removes consumed in-flight rows and releases the lease
// only when the entries carry the token of the drain that still holds it.
// Rows of a drain that is never deleted are returned again once the lease
// expires.
type Buffer interface {
	Enqueue(ctx context.Context, projectID int64, key Key, payload Payload) error
	DrainProject(ctx context.Context, projectID int64) ([]Entry, error)
	Delete(ctx context.Context, projectID int64, entries []Entry) error
	PendingProjects(ctx context.Context, limit int) ([]int64, error)
	Close() error
}

// decodeEntries converts raw field/value pairs into sorted entries.
// Params: raw hash map, drain lease token, logger, and project for diagnostics.
// Returns: valid entries plus raw fields that failed to decode.
func decodeEntries(raw map[string]string, lease string, logger *slog.Logger, projectID int64) ([]Entry, []string) {
	entries := make([]Entry, 0, len(raw))
	var broken []string
	for field, value := range raw {
		key, err := DecodeKey(field)
		if err != nil {
			broken = append(broken, field)
			logger.Warn("drop malformed buffer key", "project_id", projectID, "field", field, "err", err)
			continue
		}
		payload, err := decodePayload(value)
		if err != nil {
			broken = append(broken, field)
			logger.Warn("drop malformed buffer payload", "project_id", projectID, "field", field, "err", err)
			continue
		}
		entries = append(entries, Entry{Key: key, Payload: payload, Field: field, Lease: lease})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Field < entries[j].Field
	})
	return entries, broken
}
