package testutil

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// StartLocalRedisServer starts an ephemeral redis-server without persistence.
// Params: test handle for lifecycle and failure reporting.
// Returns: host:port address and stop callback.
func StartLocalRedisServer(tb testing.TB) (string, func()) {
	tb.Helper()

	port, err := FreePort()
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}
	stop := startServerProcess(tb, "redis-server",
		"--port", strconv.Itoa(port),
		"--bind", "127.0.0.1",
		"--save", "",
		"--appendonly", "no",
		"--dir", tb.TempDir(),
	)

	addr := "127.0.0.1:" + strconv.Itoa(port)
	waitReady(tb, addr, 8*time.Second, func() error {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	})
	return addr, stop
}
