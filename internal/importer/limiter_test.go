package importer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AcquireTimesOutWhenFull(t *testing.T) {
	limiter := NewLimiter(1, 20*time.Millisecond)
	require.NoError(t, limiter.Acquire(context.Background()))

	err := limiter.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTooManyImports)
	assert.Equal(t, LimiterStatus{Active: 1, Available: 0, MaxConcurrent: 1}, limiter.Status())

	limiter.Release()
	require.NoError(t, limiter.Acquire(context.Background()), "released slot is reusable")
}

func TestLimiter_AcquireReturnsContextError(t *testing.T) {
	limiter := NewLimiter(1, time.Minute)
	require.True(t, limiter.TryAcquire())
	assert.False(t, limiter.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := limiter.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTooManyImports)
	assert.Equal(t, 1, limiter.ActiveCount())
}

func TestLimiter_WaitForDrain(t *testing.T) {
	limiter := NewLimiter(2, time.Second)
	require.NoError(t, limiter.WaitForDrain(context.Background()), "idle limiter drains at once")

	require.NoError(t, limiter.Acquire(context.Background()))
	go func() {
		time.Sleep(50 * time.Millisecond)
		limiter.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, limiter.WaitForDrain(ctx))
	assert.Zero(t, limiter.ActiveCount())

	require.NoError(t, limiter.Acquire(context.Background()))
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, limiter.WaitForDrain(short), context.DeadlineExceeded)
}
