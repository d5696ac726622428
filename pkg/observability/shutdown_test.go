package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{name: "custom timeout", timeout: 10 * time.Second, expectedTimeout: 10 * time.Second},
		{name: "zero uses default", timeout: 0, expectedTimeout: DefaultShutdownTimeout},
		{name: "negative uses default", timeout: -time.Second, expectedTimeout: DefaultShutdownTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tel := New(context.Background(), testConfig(), WithOutput(&syncBuffer{}))
			sm := NewShutdownManager(tel, tt.timeout)
			assert.Equal(t, tt.expectedTimeout, sm.timeout)
		})
	}
}

func startTestServer(t *testing.T, handler http.Handler) *http.Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Addr: ln.Addr().String(), Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	return srv
}

func TestShutdownManager_Shutdown(t *testing.T) {
	var out syncBuffer
	tel := New(context.Background(), testConfig(), WithOutput(&out))
	srv := startTestServer(t, http.NotFoundHandler())

	sm := NewShutdownManager(tel, 5*time.Second, srv)

	var calls int32
	sm.Register("cache", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	sm.Register("queue", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	_, err := http.Get("http://" + srv.Addr)
	assert.Error(t, err, "server should no longer accept connections")

	entries := decodeLines(t, out.String())
	require.NotEmpty(t, entries)
	assert.Equal(t, "Graceful shutdown complete", entries[len(entries)-1][KeyMessage])
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	var out syncBuffer
	tel := New(context.Background(), testConfig(), WithOutput(&out))
	sm := NewShutdownManager(tel, time.Second)

	errFlush := errors.New("flush failed")
	sm.Register("ok", func(ctx context.Context) error { return nil })
	sm.Register("flush", func(ctx context.Context) error { return errFlush })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errFlush)
	assert.Contains(t, err.Error(), "flush")
	assert.Contains(t, out.String(), "Shutdown function failed")
}

func TestShutdownManager_Timeout(t *testing.T) {
	tel := New(context.Background(), testConfig(), WithOutput(&syncBuffer{}))
	sm := NewShutdownManager(tel, 50*time.Millisecond)

	release := make(chan struct{})
	defer close(release)
	sm.Register("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	start := time.Now()
	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestShutdownManager_WaitForShutdown(t *testing.T) {
	var out syncBuffer
	tel := New(context.Background(), testConfig(), WithOutput(&out))
	sm := NewShutdownManager(tel, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sm.WaitForShutdown(ctx) }()

	select {
	case <-done:
		t.Fatal("WaitForShutdown returned before cancellation")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForShutdown did not return")
	}
	assert.Contains(t, out.String(), "Shutdown signal received")
}
