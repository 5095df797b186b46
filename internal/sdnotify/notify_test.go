package sdnotify

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/interlope/internal/logging"
)

// listen opens a datagram socket and points NOTIFY_SOCKET at it.
func listen(t *testing.T) *net.UnixConn {
	t.Helper()
	dir, err := os.MkdirTemp("", "sdn")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Skipf("skipped, unixgram not available: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func read(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	buf := make([]byte, 1024)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestNotifier_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	n := New(logging.Discard())

	require.False(t, n.Ready())
	require.False(t, n.Status("waiting"))
	require.False(t, n.Stopping())
}

func TestNotifier_Messages(t *testing.T) {
	conn := listen(t)
	n := New(logging.Discard())

	require.True(t, n.Ready())
	require.Equal(t, "READY=1", read(t, conn))

	require.True(t, n.Status("runs=%d failures=%d", 4, 1))
	require.Equal(t, "STATUS=runs=4 failures=1", read(t, conn))

	require.True(t, n.Stopping())
	require.Equal(t, "STOPPING=1", read(t, conn))
}

func TestNotifier_SendError(t *testing.T) {
	n := New(logging.Discard())
	n.send = func(string) (bool, error) { return false, errors.New("boom") }

	require.False(t, n.Ready())
}

func TestNotifier_WatchdogDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, New(logging.Discard()).Watchdog(ctx))
	require.Less(t, time.Since(start), 500*time.Millisecond, "disabled watchdog should return at once")
}

func TestNotifier_WatchdogPings(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "40000") // 40ms
	t.Setenv("WATCHDOG_PID", strconv.Itoa(os.Getpid()))

	var mu sync.Mutex
	var got []string
	n := New(logging.Discard())
	n.send = func(state string) (bool, error) {
		mu.Lock()
		got = append(got, state)
		mu.Unlock()
		return true, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Watchdog(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	for _, s := range got {
		require.Equal(t, "WATCHDOG=1", s)
	}
}

func TestNotifier_WatchdogBadEnv(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "not-a-number")
	t.Setenv("WATCHDOG_PID", "")

	require.Error(t, New(logging.Discard()).Watchdog(context.Background()))
}
