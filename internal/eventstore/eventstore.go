package eventstore

import (
	"context"

	"alertrules/internal/domain"
)

// Store keeps recently ingested events so the delayed path can rebuild them
// from buffered ids.
type Store interface {
	Put(ctx context.Context, event domain.Event) error
	// GetMany returns events found by id; missing or expired ids are absent
	// from the result rather than an error.
	GetMany(ctx context.Context, ids []string) (map[string]domain.Event, error)
	Close() error
}
