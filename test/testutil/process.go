package testutil

import (
	"net"
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"
)

// FreePort reserves a local TCP port and returns it to the caller.
// Params: none.
// Returns: free port number or error.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// startServerProcess launches one local server binary and skips the test when it is absent.
// Params: test handle, binary name, and arguments.
// Returns: idempotent stop callback that terminates the process.
func startServerProcess(tb testing.TB, binary string, args ...string) func() {
	tb.Helper()

	if _, err := exec.LookPath(binary); err != nil {
		tb.Skipf("%s is required for integration test: %v", binary, err)
	}
	cmd := exec.Command(binary, args...)
	if err := cmd.Start(); err != nil {
		tb.Skipf("%s is required for integration test: %v", binary, err)
	}

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			if cmd.Process == nil {
				return
			}
			_ = cmd.Process.Signal(syscall.SIGTERM)
			done := make(chan struct{})
			go func() {
				_, _ = cmd.Process.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				_ = cmd.Process.Kill()
				<-done
			}
		})
	}
}

// waitReady polls probe until it succeeds or timeout elapses.
// Params: test handle, endpoint label, timeout, and probe.
// Returns: endpoint is reachable or test fails.
func waitReady(tb testing.TB, endpoint string, timeout time.Duration, probe func() error) {
	tb.Helper()

	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if lastErr = probe(); lastErr == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	tb.Fatalf("%s did not become ready: %v", endpoint, lastErr)
}
