package redisconn

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"alertrules/internal/config"

	"github.com/redis/go-redis/v9"
)

// Open creates a pooled Redis client and verifies connectivity.
// Params: ctx bounds the initial ping; cfg carries address, pool, and timeouts.
// Returns: connected client or dial/ping error.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  millis(cfg.DialTimeoutMS),
		ReadTimeout:  millis(cfg.ReadTimeoutMS),
		WriteTimeout: millis(cfg.WriteTimeoutMS),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Keyspace builds colon-joined keys under one prefix.
type Keyspace struct {
	prefix string
}

// NewKeyspace creates keyspace for prefix; empty prefix yields bare keys.
func NewKeyspace(prefix string) Keyspace {
	return Keyspace{prefix: strings.Trim(strings.TrimSpace(prefix), ":")}
}

// Key joins parts under the keyspace prefix.
// Params: key segments; int64 values are rendered in base 10.
// Returns: full Redis key.
func (k Keyspace) Key(parts ...any) string {
	segments := make([]string, 0, len(parts)+1)
	if k.prefix != "" {
		segments = append(segments, k.prefix)
	}
	for _, part := range parts {
		switch typed := part.(type) {
		case string:
			segments = append(segments, typed)
		case int64:
			segments = append(segments, strconv.FormatInt(typed, 10))
		case int:
			segments = append(segments, strconv.Itoa(typed))
		default:
			segments = append(segments, fmt.Sprint(typed))
		}
	}
	return strings.Join(segments, ":")
}

func millis(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Millisecond
}
