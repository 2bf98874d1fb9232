package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/domain"
)

func TestTaskPoolRunsTasks(t *testing.T) {
	pool := NewTaskPool(2, 8, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, pool.Submit(func(context.Context) { ran.Add(1) }))
	}

	require.Eventually(t, func() bool { return ran.Load() == 8 }, 2*time.Second, 5*time.Millisecond)
}

func TestTaskPoolSaturation(t *testing.T) {
	pool := NewTaskPool(1, 1, nil)
	defer pool.Stop()

	// not started, so the queue fills
	require.NoError(t, pool.Submit(func(context.Context) {}))
	assert.ErrorIs(t, pool.Submit(func(context.Context) {}), domain.ErrPoolSaturated)
	assert.Equal(t, 1, pool.Pending())
}

func TestTaskPoolStopCancelsRunningTasks(t *testing.T) {
	pool := NewTaskPool(1, 1, nil)
	pool.Start(context.Background())

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, pool.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}))

	<-started
	pool.Stop()
	assert.True(t, cancelled.Load())
	assert.ErrorIs(t, pool.Submit(func(context.Context) {}), domain.ErrPoolClosed)
	pool.Stop()
}

func TestTaskPoolRecoversPanics(t *testing.T) {
	pool := NewTaskPool(1, 2, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, pool.Submit(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
}
