// Package simulate produces the random latency and failure rolls that make
// the lab services behave like real backends.
package simulate

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Simulator draws latencies and failures. It is safe for concurrent use.
type Simulator struct {
	failRate float64
	sleep    bool

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Simulator
type Option func(*Simulator)

// WithSeed makes the random sequence reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithoutLatency makes Sleep return immediately while still drawing the
// duration, so tests keep the same random sequence without waiting.
func WithoutLatency() Option {
	return func(s *Simulator) { s.sleep = false }
}

// New creates a Simulator that fails with probability failRate.
func New(failRate float64, opts ...Option) *Simulator {
	s := &Simulator{
		failRate: failRate,
		sleep:    true,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailRate returns the configured failure probability.
func (s *Simulator) FailRate() float64 {
	return s.failRate
}

// ShouldFail rolls the failure dice.
func (s *Simulator) ShouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.failRate
}

// Duration draws a duration uniformly from [lo, hi).
func (s *Simulator) Duration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + time.Duration(s.rng.Int64N(int64(hi-lo)))
}

// Sleep waits a random duration in [lo, hi) and returns it. It returns
// early with ctx.Err() when ctx is done first.
func (s *Simulator) Sleep(ctx context.Context, lo, hi time.Duration) (time.Duration, error) {
	d := s.Duration(lo, hi)
	if !s.sleep || d <= 0 {
		return d, ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return d, nil
	case <-ctx.Done():
		return d, ctx.Err()
	}
}

// IntN returns a random int in [0, n). n must be positive.
func (s *Simulator) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
