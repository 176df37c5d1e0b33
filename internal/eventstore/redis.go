package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"alertrules/internal/domain"
	"alertrules/internal/redisconn"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one JSON string per event with TTL.
type RedisStore struct {
	client redis.UniversalClient
	keys   redisconn.Keyspace
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates event store over shared client.
// Params: Redis client, key prefix, entry TTL, and logger.
// Returns: ready store.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, keys: redisconn.NewKeyspace(prefix), ttl: ttl, logger: logger}
}

func (s *RedisStore) key(eventID string) string {
	return s.keys.Key("event", eventID)
}

// Put writes event JSON; a repeated id overwrites and refreshes TTL.
func (s *RedisStore) Put(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID, err)
	}
	if err := s.client.Set(ctx, s.key(event.EventID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store event %s: %w", event.EventID, err)
	}
	return nil
}

// GetMany loads events with one MGET; undecodable values are logged and skipped.
func (s *RedisStore) GetMany(ctx context.Context, ids []string) (map[string]domain.Event, error) {
	out := make(map[string]domain.Event, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var event domain.Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			s.logger.Warn("stored event decode failed", "event_id", ids[i], "error", err.Error())
			continue
		}
		out[ids[i]] = event
	}
	return out, nil
}

// Close leaves the shared client open.
func (s *RedisStore) Close() error {
	return nil
}
