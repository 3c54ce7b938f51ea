package pool

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailarchive/backend/internal/monitoring"
)

func TestWorkerPool_RunsAllTasks(t *testing.T) {
	p := NewWorkerPool(4, 8, nil, nil)
	p.Start(context.Background())

	var done atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Submit(context.Background(), func() { done.Add(1) }))
	}
	p.Stop()

	assert.Equal(t, int64(100), done.Load())
}

func TestWorkerPool_RecoversPanic(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	p := NewWorkerPool(1, 4, nil, metrics)
	p.Start(context.Background())

	var done atomic.Int64
	require.NoError(t, p.Submit(context.Background(), func() { panic("boom") }))
	require.NoError(t, p.Submit(context.Background(), func() { done.Add(1) }))
	p.Stop()

	assert.Equal(t, int64(1), done.Load(), "worker survives a panicking task")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PanicsTotal))
}

func TestWorkerPool_SubmitAfterStop(t *testing.T) {
	p := NewWorkerPool(1, 1, nil, nil)
	p.Start(context.Background())
	p.Stop()
	p.Stop()

	assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrPoolStopped)
	assert.False(t, p.TrySubmit(func() {}))
}

func TestWorkerPool_SubmitCanceled(t *testing.T) {
	// 不启动工作协程，队列满后 Submit 只能等待 ctx
	p := NewWorkerPool(1, 1, nil, nil)
	require.True(t, p.TrySubmit(func() {}))
	assert.False(t, p.TrySubmit(func() {}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Submit(ctx, func() {}), context.Canceled)
}
