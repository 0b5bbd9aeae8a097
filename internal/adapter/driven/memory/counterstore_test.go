package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCounterStore_HitRejectsPastLimit(t *testing.T) {
	s := NewCounterStore()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		res, err := s.Hit(ctx, "user:owner-1", time.Minute, 50, t0.Add(time.Duration(i)*100*time.Millisecond))
		require.NoError(t, err)
		require.True(t, res.Admitted, "hit %d", i+1)
	}

	res, err := s.Hit(ctx, "user:owner-1", time.Minute, 50, t0.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, t0, res.Oldest)
}

func TestCounterStore_AtMostLimitInAnyWindow(t *testing.T) {
	s := NewCounterStore()
	ctx := context.Background()
	const limit = 5
	window := 10 * time.Second

	var admitted []time.Time
	for i := 0; i < 100; i++ {
		now := t0.Add(time.Duration(i) * 700 * time.Millisecond)
		res, err := s.Hit(ctx, "k", window, limit, now)
		require.NoError(t, err)
		if res.Admitted {
			admitted = append(admitted, now)
		}
	}

	for i := range admitted {
		n := 0
		for j := i; j < len(admitted) && admitted[j].Sub(admitted[i]) < window; j++ {
			n++
		}
		assert.LessOrEqual(t, n, limit)
	}
}

func TestCounterStore_ConcurrentHits(t *testing.T) {
	s := NewCounterStore()
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Hit(ctx, "global", time.Minute, 10, t0)
			assert.NoError(t, err)
			if res.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, admitted)
}

func TestCounterStore_CompareAndSet(t *testing.T) {
	s := NewCounterStore()
	ctx := context.Background()

	ok, err := s.CompareAndSet(ctx, "sent:job_1", 0, 1, time.Minute, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSet(ctx, "sent:job_1", 0, 1, time.Minute, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := s.Get(ctx, "sent:job_1", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, v, "expired counter reads as zero")
}

func TestCounterStore_Prune(t *testing.T) {
	s := NewCounterStore()
	ctx := context.Background()

	_, _ = s.Hit(ctx, "k", time.Minute, 10, t0)
	_, _ = s.CompareAndSet(ctx, "c", 0, 1, time.Second, t0)

	n, err := s.Prune(ctx, time.Minute, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
