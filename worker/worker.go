// Package worker drives background jobs that poll the notification log
// or sweep for snapshot-eligible aggregates on a fixed heartbeat.
// Distributed cluster balancing is out of scope: nothing in this module
// needs more than one process polling a range at a time (partitioning,
// where needed, is static — see recorder.Filter.Partitions).
package worker

import (
	"context"
	"time"

	"github.com/gregbrowndev/eventsourcing/internal/logging"
)

// Worker is a named background job that can be started and stopped
// repeatedly, with no cluster-membership concerns.
type Worker interface {
	Name() string
	IsRunning() bool
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// Runner drives a set of Workers on a fixed heartbeat: every tick, any
// stopped worker is (re)started. This is the simplest policy that fits
// a single-process deployment, running everything and restarting
// anything that died.
type Runner struct {
	logger   logging.Logger
	workers  []Worker
	interval time.Duration
}

// NewRunner builds a Runner over workers, ticking every interval.
func NewRunner(logger logging.Logger, workers []Worker, interval time.Duration) *Runner {
	if logger == nil {
		logger = logging.Noop{}
	}
	return &Runner{logger: logger, workers: workers, interval: interval}
}

// Run blocks until ctx is cancelled, ensuring every worker is running at
// each tick and logging (without aborting) any that fail to start.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.ensureStarted(ctx)
	for {
		select {
		case <-ctx.Done():
			for _, w := range r.workers {
				if w.IsRunning() {
					w.Stop(ctx)
				}
			}
			return
		case <-ticker.C:
			r.ensureStarted(ctx)
		}
	}
}

func (r *Runner) ensureStarted(ctx context.Context) {
	for _, w := range r.workers {
		if w.IsRunning() {
			continue
		}
		if err := w.Start(ctx); err != nil {
			r.logger.Warnf("worker %q failed to start: %v", w.Name(), err)
		}
	}
}
