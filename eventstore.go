package eventsourcing

import (
	"context"

	"github.com/gregbrowndev/eventsourcing/recorder"
)

// Options carries the per-save extras a batch commit supports: an
// idempotency key deduplicating a whole batch, and opaque labels
// attached to every event in it for later filtering.
type Options struct {
	IdempotencyKey string
	Labels         map[string]interface{}
}

type SaveOption func(*Options)

// WithIdempotencyKey deduplicates an entire Put call: a second call with
// the same key is a silent no-op rather than a conflict.
func WithIdempotencyKey(key string) SaveOption {
	return func(o *Options) { o.IdempotencyKey = key }
}

// WithLabels attaches metadata to every event in the batch, queryable
// later via recorder.Filter.
func WithLabels(labels map[string]interface{}) SaveOption {
	return func(o *Options) { o.Labels = labels }
}

// EventStore composes a Mapper with a recorder.Interface and exposes
// Put/Get of domain events.
type EventStore struct {
	mapper *Mapper
	store  recorder.Interface
}

// NewEventStore composes mapper and store into an EventStore.
func NewEventStore(mapper *Mapper, store recorder.Interface) *EventStore {
	return &EventStore{mapper: mapper, store: store}
}

// Put atomically appends events, all belonging to one or more
// aggregates, and returns the notification ids assigned to them in
// commit order. An empty slice is a ProgrammingError.
func (es *EventStore) Put(ctx context.Context, events []Event, opts ...SaveOption) ([]uint64, error) {
	if len(events) == 0 {
		return nil, ProgrammingError("put: empty batch")
	}

	var options Options
	for _, o := range opts {
		o(&options)
	}

	if options.IdempotencyKey != "" {
		seen, err := es.store.HasIdempotencyKey(ctx, options.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if seen {
			return nil, nil
		}
	}

	stored := make([]recorder.StoredEvent, len(events))
	for i, e := range events {
		se, err := es.mapper.FromDomain(e)
		if err != nil {
			return nil, err
		}
		se.IdempotencyKey = options.IdempotencyKey
		se.Labels = options.Labels
		stored[i] = se
	}

	return es.store.InsertEvents(ctx, recorder.Batch{
		IdempotencyKey: options.IdempotencyKey,
		Events:         stored,
	})
}

// Get returns events for originatorID ordered by originator version,
// optionally bounded by (gt, lte], reversed and/or limited.
func (es *EventStore) Get(ctx context.Context, originatorID string, gt, lte uint32, desc bool, limit int) ([]Event, error) {
	stored, err := es.store.SelectEvents(ctx, originatorID, gt, lte, desc, limit)
	if err != nil {
		return nil, err
	}
	events := make([]Event, len(stored))
	for i, se := range stored {
		e, err := es.mapper.ToDomain(se)
		if err != nil {
			return nil, err
		}
		events[i] = e
	}
	return events, nil
}
