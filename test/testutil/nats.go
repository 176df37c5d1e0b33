package testutil

import (
	"strconv"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// StartLocalNATSServer starts local nats-server with JetStream enabled for tests.
// Params: test handle for lifecycle and failure reporting.
// Returns: server URL and stop callback.
func StartLocalNATSServer(tb testing.TB) (string, func()) {
	tb.Helper()

	port, err := FreePort()
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}
	stop := startServerProcess(tb, "nats-server", "-js", "-p", strconv.Itoa(port), "-sd", tb.TempDir())

	url := "nats://127.0.0.1:" + strconv.Itoa(port)
	waitReady(tb, url, 8*time.Second, func() error {
		nc, err := nats.Connect(url)
		if err != nil {
			return err
		}
		nc.Close()
		return nil
	})
	return url, stop
}
