package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregbrowndev/eventsourcing/worker"
)

type fakeWorker struct {
	name      string
	running   atomic.Bool
	starts    atomic.Int32
	failFirst bool
}

func (w *fakeWorker) Name() string { return w.name }

func (w *fakeWorker) IsRunning() bool { return w.running.Load() }

func (w *fakeWorker) Start(ctx context.Context) error {
	w.starts.Add(1)
	if w.failFirst && w.starts.Load() == 1 {
		return assert.AnError
	}
	w.running.Store(true)
	return nil
}

func (w *fakeWorker) Stop(ctx context.Context) {
	w.running.Store(false)
}

func TestRunnerStartsWorkersImmediately(t *testing.T) {
	w := &fakeWorker{name: "a"}
	r := worker.NewRunner(nil, []worker.Worker{w}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, w.IsRunning, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.False(t, w.IsRunning())
}

func TestRunnerRestartsFailedWorkerOnNextTick(t *testing.T) {
	w := &fakeWorker{name: "a", failFirst: true}
	r := worker.NewRunner(nil, []worker.Worker{w}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, w.IsRunning, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.GreaterOrEqual(t, w.starts.Load(), int32(2))
}

func TestRunnerStopsAllWorkersOnCancel(t *testing.T) {
	w1 := &fakeWorker{name: "a"}
	w2 := &fakeWorker{name: "b"}
	r := worker.NewRunner(nil, []worker.Worker{w1, w2}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return w1.IsRunning() && w2.IsRunning() }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.False(t, w1.IsRunning())
	assert.False(t, w2.IsRunning())
}
