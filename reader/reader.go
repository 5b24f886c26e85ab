// Package reader provides pull-based consumption of the notification
// log. Push-based subscriptions are out of scope; this generalizes a
// single batch fetch into a restartable read loop with optional
// polling for new notifications.
package reader

import (
	"context"
	"time"

	"github.com/gregbrowndev/eventsourcing"
	"github.com/gregbrowndev/eventsourcing/recorder"
)

// Handler processes one notification. Returning an error stops Read
// without advancing past the failed notification, so a retry resumes
// from the same id.
type Handler func(ctx context.Context, n eventsourcing.Notification) error

// Option configures a Reader.
type Option func(*Reader)

// WithFilter narrows which notifications Read delivers to handler.
func WithFilter(filter recorder.Filter) Option {
	return func(r *Reader) { r.filter = filter }
}

// WithBatchSize bounds how many notifications are fetched per page.
// Defaults to 100.
func WithBatchSize(n int) Option {
	return func(r *Reader) { r.batchSize = n }
}

// WithPoll makes Read keep running past the end of the log, sleeping
// interval between empty pages instead of returning. Without it, Read
// returns once it catches up to the current end of the log, matching a
// one-shot catch-up consumer.
func WithPoll(interval time.Duration) Option {
	return func(r *Reader) { r.pollInterval = interval }
}

// Reader pulls pages from a NotificationLog and dispatches each
// notification to a Handler in order, tracking the next id to resume
// from so a crash only replays, never skips (at-least-once delivery).
type Reader struct {
	log          *eventsourcing.NotificationLog
	filter       recorder.Filter
	batchSize    int
	pollInterval time.Duration
}

// New builds a Reader over log.
func New(log *eventsourcing.NotificationLog, opts ...Option) *Reader {
	r := &Reader{log: log, batchSize: 100}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Read starts delivering notifications with id >= start to handler,
// advancing strictly in id order. It returns nil once the log is caught
// up (unless WithPoll was given, in which case it keeps polling until
// ctx is cancelled), or the first error handler or the log return.
func (r *Reader) Read(ctx context.Context, start uint64, handler Handler) error {
	next := start
	if next == 0 {
		next = 1
	}

	for {
		notifications, err := r.log.Select(ctx, next, r.batchSize, r.filter)
		if err != nil {
			return err
		}

		for _, n := range notifications {
			if err := handler(ctx, eventsourcing.Notification{ID: n.ID, StoredEvent: n.StoredEvent}); err != nil {
				return err
			}
			next = n.ID + 1
		}

		if len(notifications) > 0 {
			continue
		}

		if r.pollInterval == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}
