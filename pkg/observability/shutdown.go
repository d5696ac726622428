package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultShutdownTimeout bounds Shutdown when no timeout is configured.
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

// ShutdownManager stops HTTP servers first, then runs the registered cleanup
// functions concurrently, then flushes telemetry.
type ShutdownManager struct {
	tel     *Telemetry
	servers []*http.Server
	timeout time.Duration

	mu    sync.Mutex
	funcs []namedShutdownFunc
}

type namedShutdownFunc struct {
	name string
	fn   ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(tel *Telemetry, timeout time.Duration, servers ...*http.Server) *ShutdownManager {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &ShutdownManager{
		tel:     tel,
		servers: servers,
		timeout: timeout,
	}
}

// Register adds a cleanup function run after the servers have stopped.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, namedShutdownFunc{name: name, fn: fn})
}

// Shutdown drains the servers and runs cleanup within the manager timeout.
// The telemetry façade is shut down last so the shutdown itself is logged
// and traced.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	var errs []error

	for _, srv := range sm.servers {
		sm.tel.Info(ctx, "Shutting down HTTP server", Fields{"addr": srv.Addr})
		if err := srv.Shutdown(ctx); err != nil {
			sm.tel.Error(ctx, "HTTP server shutdown error", err, Fields{"addr": srv.Addr})
			errs = append(errs, fmt.Errorf("server %s: %w", srv.Addr, err))
		}
	}

	sm.mu.Lock()
	funcs := append([]namedShutdownFunc(nil), sm.funcs...)
	sm.mu.Unlock()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
	)
	for _, f := range funcs {
		wg.Add(1)
		go func(f namedShutdownFunc) {
			defer wg.Done()
			if err := f.fn(ctx); err != nil {
				sm.tel.Error(ctx, "Shutdown function failed", err, Fields{"name": f.name})
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
				errMu.Unlock()
			}
		}(f)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sm.tel.Warn(ctx, "Shutdown timeout reached, forcing shutdown")
		errMu.Lock()
		errs = append(errs, fmt.Errorf("shutdown timeout reached: %w", ctx.Err()))
		errMu.Unlock()
	}

	errMu.Lock()
	err := errors.Join(errs...)
	errMu.Unlock()

	if err == nil {
		sm.tel.Info(ctx, "Graceful shutdown complete")
	}

	if tErr := sm.tel.Shutdown(ctx); tErr != nil {
		err = errors.Join(err, tErr)
	}
	return err
}

// WaitForShutdown blocks until ctx is cancelled, typically by a signal, then
// runs Shutdown on a fresh context.
func (sm *ShutdownManager) WaitForShutdown(ctx context.Context) error {
	<-ctx.Done()
	sm.tel.Info(context.Background(), "Shutdown signal received, starting graceful shutdown")
	return sm.Shutdown(context.Background())
}
