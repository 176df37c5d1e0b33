package rates

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"alertrules/internal/domain"
	"alertrules/internal/redisconn"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps per-subject sorted sets scored by event time.
//
// Event counts use member=event_id. Unique users keep one member per sighting
// (user id plus event id), and a window counts the distinct user ids among
// its members.
type RedisStore struct {
	client    redis.UniversalClient
	keys      redisconn.Keyspace
	retention time.Duration
}

// NewRedisStore creates rate store over shared client.
// Params: Redis client, key prefix, and retention.
// Returns: ready store.
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		keys:      redisconn.NewKeyspace(prefix),
		retention: retention,
	}
}

func (s *RedisStore) eventsKey(groupID int64, environment string) string {
	return s.keys.Key("rates", "events", groupID, environment)
}

func (s *RedisStore) usersKey(groupID int64, environment string) string {
	return s.keys.Key("rates", "users", groupID, environment)
}

// Record adds event and user observations and trims expired members.
func (s *RedisStore) Record(ctx context.Context, event domain.Event) error {
	score := float64(event.DT)
	cutoff := "-inf"
	if s.retention > 0 {
		cutoff = "(" + strconv.FormatInt(event.EventTime().Add(-s.retention).UnixMilli(), 10)
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, env := range recordEnvironments(event) {
			eventsKey := s.eventsKey(event.GroupID, env)
			pipe.ZAdd(ctx, eventsKey, redis.Z{Score: score, Member: event.EventID})
			s.trim(ctx, pipe, eventsKey, cutoff)
			if event.UserID == "" {
				continue
			}
			usersKey := s.usersKey(event.GroupID, env)
			pipe.ZAdd(ctx, usersKey, redis.Z{Score: score, Member: encodeSighting(event.UserID, event.EventID)})
			s.trim(ctx, pipe, usersKey, cutoff)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record rates group=%d: %w", event.GroupID, err)
	}
	return nil
}

func (s *RedisStore) trim(ctx context.Context, pipe redis.Pipeliner, key, cutoff string) {
	if s.retention <= 0 {
		return
	}
	pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
	pipe.PExpire(ctx, key, s.retention)
}

// EventCounts returns handler counting events.
func (s *RedisStore) EventCounts() Handler {
	return HandlerFunc(func(ctx context.Context, duration time.Duration, groupIDs []int64, environment string, end time.Time) (map[int64]float64, error) {
		return s.count(ctx, s.eventsKey, duration, groupIDs, environment, end)
	})
}

// UniqueUsers returns handler counting distinct users.
func (s *RedisStore) UniqueUsers() Handler {
	return HandlerFunc(func(ctx context.Context, duration time.Duration, groupIDs []int64, environment string, end time.Time) (map[int64]float64, error) {
		return s.countUsers(ctx, duration, groupIDs, environment, end)
	})
}

// Handlers returns both handler kinds keyed for rule queries.
func (s *RedisStore) Handlers() Handlers {
	return Handlers{
		KindEventCount:  s.EventCounts(),
		KindUniqueUsers: s.UniqueUsers(),
	}
}

func (s *RedisStore) count(ctx context.Context, keyFn func(int64, string) string, duration time.Duration, groupIDs []int64, environment string, end time.Time) (map[int64]float64, error) {
	if len(groupIDs) == 0 {
		return map[int64]float64{}, nil
	}
	env := environmentKey(environment)
	minScore, maxScore := windowScores(duration, end)

	cmds := make([]*redis.IntCmd, len(groupIDs))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, groupID := range groupIDs {
			cmds[i] = pipe.ZCount(ctx, keyFn(groupID, env), minScore, maxScore)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count rates groups=%d: %w", len(groupIDs), err)
	}
	out := make(map[int64]float64, len(groupIDs))
	for i, groupID := range groupIDs {
		out[groupID] = float64(cmds[i].Val())
	}
	return out, nil
}

func (s *RedisStore) countUsers(ctx context.Context, duration time.Duration, groupIDs []int64, environment string, end time.Time) (map[int64]float64, error) {
	if len(groupIDs) == 0 {
		return map[int64]float64{}, nil
	}
	env := environmentKey(environment)
	minScore, maxScore := windowScores(duration, end)

	cmds := make([]*redis.StringSliceCmd, len(groupIDs))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, groupID := range groupIDs {
			cmds[i] = pipe.ZRangeByScore(ctx, s.usersKey(groupID, env), &redis.ZRangeBy{Min: minScore, Max: maxScore})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count unique users groups=%d: %w", len(groupIDs), err)
	}
	out := make(map[int64]float64, len(groupIDs))
	for i, groupID := range groupIDs {
		users := make(map[string]struct{})
		for _, member := range cmds[i].Val() {
			userID, ok := decodeSightingUser(member)
			if !ok {
				continue
			}
			users[userID] = struct{}{}
		}
		out[groupID] = float64(len(users))
	}
	return out, nil
}

// windowScores renders (end-duration, end] as ZSET score bounds.
func windowScores(duration time.Duration, end time.Time) (string, string) {
	return "(" + strconv.FormatInt(end.Add(-duration).UnixMilli(), 10), strconv.FormatInt(end.UnixMilli(), 10)
}

// encodeSighting renders "<len(user)>:<user><event>" so user ids may contain any byte.
func encodeSighting(userID, eventID string) string {
	return strconv.Itoa(len(userID)) + ":" + userID + eventID
}

func decodeSightingUser(member string) (string, bool) {
	sep := strings.IndexByte(member, ':')
	if sep <= 0 {
		return "", false
	}
	size, err := strconv.Atoi(member[:sep])
	if err != nil || size <= 0 || sep+1+size > len(member) {
		return "", false
	}
	return member[sep+1 : sep+1+size], true
}
