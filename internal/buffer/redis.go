package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"alertrules/internal/clock"
	"alertrules/internal/redisconn"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// drainScript takes the per-project lease, folds pending rows into the
// in-flight hash in chunks, and returns the in-flight hash.
// KEYS: pending, inflight, lock. ARGV: token, lease ms.
var drainScript = redis.NewScript(`
if not redis.call('SET', KEYS[3], ARGV[1], 'NX', 'PX', ARGV[2]) then
  return false
end
local pending = redis.call('HGETALL', KEYS[1])
local chunk = 2000
for i = 1, #pending, chunk do
  local last = math.min(i + chunk - 1, #pending)
  redis.call('HSET', KEYS[2], unpack(pending, i, last))
end
redis.call('DEL', KEYS[1])
local inflight = redis.call('HGETALL', KEYS[2])
if #inflight == 0 then
  redis.call('DEL', KEYS[3])
end
return inflight
`)

// deleteScript removes consumed in-flight fields, releases the lease held by
// token, and unindexes the project once nothing is left.
// KEYS: inflight, lock, pending, index. ARGV: token, project id, fields...
var deleteScript = redis.NewScript(`
local chunk = 1000
for i = 3, #ARGV, chunk do
  local last = math.min(i + chunk - 1, #ARGV)
  redis.call('HDEL', KEYS[1], unpack(ARGV, i, last))
end
if redis.call('GET', KEYS[2]) == ARGV[1] then
  redis.call('DEL', KEYS[2])
end
if redis.call('HLEN', KEYS[1]) == 0 and redis.call('HLEN', KEYS[3]) == 0 then
  redis.call('ZREM', KEYS[4], ARGV[2])
end
return 1
`)

// RedisBuffer is the shared Buffer backed by per-project hashes and a pending-project ZSET.
type RedisBuffer struct {
	client   redis.UniversalClient
	keys     redisconn.Keyspace
	leaseTTL time.Duration
	clk      clock.Clock
	logger   *slog.Logger
}

// NewRedisBuffer creates buffer over an existing client.
// Params: Redis client, key prefix, drain lease ttl, clock for the pending index, and logger.
// Returns: ready buffer; client ownership stays with caller.
func NewRedisBuffer(client redis.UniversalClient, prefix string, leaseTTL time.Duration, clk clock.Clock, logger *slog.Logger) *RedisBuffer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if leaseTTL <= 0 {
		leaseTTL = 5 * time.Minute
	}
	return &RedisBuffer{
		client:   client,
		keys:     redisconn.NewKeyspace(prefix),
		leaseTTL: leaseTTL,
		clk:      clk,
		logger:   logger,
	}
}

func (b *RedisBuffer) pendingKey(projectID int64) string {
	return b.keys.Key("buffer", "pending", projectID)
}

func (b *RedisBuffer) inflightKey(projectID int64) string {
	return b.keys.Key("buffer", "inflight", projectID)
}

func (b *RedisBuffer) lockKey(projectID int64) string {
	return b.keys.Key("buffer", "lock", projectID)
}

func (b *RedisBuffer) indexKey() string {
	return b.keys.Key("buffer", "projects")
}

// Enqueue writes one row and indexes the project atomically.
func (b *RedisBuffer) Enqueue(ctx context.Context, projectID int64, key Key, payload Payload) error {
	value, err := payload.encode()
	if err != nil {
		return err
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, b.pendingKey(projectID), key.Encode(), value)
		pipe.ZAddNX(ctx, b.indexKey(), redis.Z{
			Score:  float64(b.clk.Now().UnixMilli()),
			Member: strconv.FormatInt(projectID, 10),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue buffer project=%d: %w", projectID, err)
	}
	return nil
}

// DrainProject leases the project and returns its in-flight rows.
// Params: project id.
// Returns: entries; empty when another drain holds the lease or nothing is pending.
func (b *RedisBuffer) DrainProject(ctx context.Context, projectID int64) ([]Entry, error) {
	token := uuid.NewString()
	result, err := drainScript.Run(ctx, b.client,
		[]string{b.pendingKey(projectID), b.inflightKey(projectID), b.lockKey(projectID)},
		token, b.leaseTTL.Milliseconds(),
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("drain buffer project=%d: %w", projectID, err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	raw := make(map[string]string, len(result)/2)
	for i := 0; i+1 < len(result); i += 2 {
		raw[result[i]] = result[i+1]
	}
	entries, broken := decodeEntries(raw, token, b.logger, projectID)
	if len(broken) > 0 {
		if err := b.client.HDel(ctx, b.inflightKey(projectID), broken...).Err(); err != nil {
			b.logger.Warn("drop malformed buffer rows failed", "project_id", projectID, "err", err)
		}
	}
	if len(entries) == 0 {
		return nil, b.delete(ctx, projectID, token, nil)
	}
	return entries, nil
}

// Delete removes consumed rows and releases the lease taken by the drain
// that returned them. A drain whose lease already passed to another drain
// leaves that lock in place.
func (b *RedisBuffer) Delete(ctx context.Context, projectID int64, entries []Entry) error {
	return b.delete(ctx, projectID, leaseOf(entries), entries)
}

func (b *RedisBuffer) delete(ctx context.Context, projectID int64, token string, entries []Entry) error {
	args := make([]any, 0, len(entries)+2)
	args = append(args, token, strconv.FormatInt(projectID, 10))
	for _, entry := range entries {
		args = append(args, entry.Field)
	}
	err := deleteScript.Run(ctx, b.client,
		[]string{b.inflightKey(projectID), b.lockKey(projectID), b.pendingKey(projectID), b.indexKey()},
		args...,
	).Err()
	if err != nil {
		return fmt.Errorf("delete buffer project=%d entries=%d: %w", projectID, len(entries), err)
	}
	return nil
}

// PendingProjects lists indexed projects, oldest enqueue first.
func (b *RedisBuffer) PendingProjects(ctx context.Context, limit int) ([]int64, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	members, err := b.client.ZRange(ctx, b.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending projects: %w", err)
	}
	out := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			b.logger.Warn("skip malformed pending project", "member", member)
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Close is a no-op; the shared client is closed by its owner.
func (b *RedisBuffer) Close() error {
	return nil
}
