package simulate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldFail_Bounds(t *testing.T) {
	never := New(0, WithSeed(1))
	always := New(1, WithSeed(1))

	for i := 0; i < 1000; i++ {
		assert.False(t, never.ShouldFail())
		assert.True(t, always.ShouldFail())
	}
}

func TestShouldFail_Rate(t *testing.T) {
	s := New(0.3, WithSeed(42))

	failures := 0
	const rolls = 20000
	for i := 0; i < rolls; i++ {
		if s.ShouldFail() {
			failures++
		}
	}
	assert.InDelta(t, 0.3, float64(failures)/rolls, 0.03)
}

func TestSeedIsReproducible(t *testing.T) {
	a := New(0.5, WithSeed(7))
	b := New(0.5, WithSeed(7))

	for i := 0; i < 100; i++ {
		require.Equal(t, a.Duration(0, time.Second), b.Duration(0, time.Second))
	}
}

func TestDuration_Range(t *testing.T) {
	s := New(0, WithSeed(3))

	for i := 0; i < 1000; i++ {
		d := s.Duration(100*time.Millisecond, 300*time.Millisecond)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 300*time.Millisecond)
	}

	assert.Equal(t, 50*time.Millisecond, s.Duration(50*time.Millisecond, 50*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, s.Duration(50*time.Millisecond, 10*time.Millisecond))
}

func TestSleep(t *testing.T) {
	t.Run("waits", func(t *testing.T) {
		s := New(0, WithSeed(1))
		start := time.Now()
		d, err := s.Sleep(context.Background(), 10*time.Millisecond, 20*time.Millisecond)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), d)
	})

	t.Run("without latency", func(t *testing.T) {
		s := New(0, WithSeed(1), WithoutLatency())
		start := time.Now()
		d, err := s.Sleep(context.Background(), time.Second, 2*time.Second)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("cancelled", func(t *testing.T) {
		s := New(0, WithSeed(1))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.Sleep(ctx, time.Second, 2*time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestConcurrentUse(t *testing.T) {
	s := New(0.5)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.ShouldFail()
				s.Duration(0, time.Millisecond)
				s.IntN(10)
			}
		}()
	}
	wg.Wait()
}
