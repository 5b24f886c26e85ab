// Package recorder defines the durability and ordering contract of the
// event-sourcing core. It is the one abstraction every backend
// (store/postgres, store/sqlite, store/memory) implements; the rest of
// the module never talks to a database directly.
package recorder

import (
	"context"
	"time"

	"github.com/gregbrowndev/eventsourcing/eventid"
)

// StoredEvent is the recorder-level record: immutable, keyed by
// (OriginatorID, OriginatorVersion). EventID is a time+aggregate
// sortable natural key, distinct from the notification id a backend
// assigns on commit; it is carried through unchanged by every backend.
type StoredEvent struct {
	OriginatorID      string
	OriginatorVersion uint32
	Topic             string
	State             []byte
	IdempotencyKey    string
	Labels            map[string]interface{}
	CreatedAt         time.Time
	EventID           eventid.EventID
}

// Notification augments a StoredEvent with a globally dense, monotonic
// id, assigned in commit order.
type Notification struct {
	ID uint64
	StoredEvent
}

// Snapshot captures an aggregate's full state at a version, in a
// separate logical stream from events.
type Snapshot struct {
	OriginatorID      string
	OriginatorVersion uint32
	Topic             string
	State             []byte
	CreatedAt         time.Time
}

// Filter narrows a notification scan. Zero value matches everything.
// Partitioning lets independent pull-based readers shard the log between
// themselves without coordinating (there is no push dispatch to shard).
type Filter struct {
	Topics        []string
	Labels        map[string][]string
	Partitions    uint32
	PartitionLow  uint32
	PartitionHigh uint32
}

// Batch is a non-empty group of events belonging to one or more
// aggregates, appended atomically by InsertEvents.
type Batch struct {
	IdempotencyKey string
	Events         []StoredEvent
}

// Interface is the recorder contract. Every method may block on I/O;
// nothing else in the module does. Implementations must document which
// of the two notification-ordering strategies they use (single-writer
// lock, or committed-max-id watermark).
type Interface interface {
	// InsertEvents atomically appends batch and returns one notification
	// id per event, in the same order as batch.Events. On a duplicate
	// (OriginatorID, OriginatorVersion) it returns a ConflictError and
	// leaves all prior state unchanged.
	InsertEvents(ctx context.Context, batch Batch) ([]uint64, error)

	// SelectEvents returns events for originatorID ordered by version,
	// optionally bounded by (gt, lte] and reversed/limited.
	SelectEvents(ctx context.Context, originatorID string, gt, lte uint32, desc bool, limit int) ([]StoredEvent, error)

	// SelectNotifications returns up to limit notifications with
	// id >= start, in increasing, contiguous order, matching filter.
	SelectNotifications(ctx context.Context, start uint64, limit int, filter Filter) ([]Notification, error)

	// MaxNotificationID returns the highest assigned notification id, or
	// 0 if none have been committed yet.
	MaxNotificationID(ctx context.Context) (uint64, error)

	// InsertSnapshot stores a snapshot in its own logical stream.
	InsertSnapshot(ctx context.Context, snap Snapshot) error

	// SelectSnapshot returns the latest snapshot for originatorID with
	// version <= atOrBefore (atOrBefore == 0 means "no upper bound").
	// Returns the zero Snapshot, nil if none exists.
	SelectSnapshot(ctx context.Context, originatorID string, atOrBefore uint32) (Snapshot, error)

	// HasIdempotencyKey reports whether a batch carrying this key has
	// already been committed.
	HasIdempotencyKey(ctx context.Context, key string) (bool, error)

	// Forget rewrites the State of every stored event and snapshot for
	// originatorID using transform, without touching ids or versions.
	Forget(ctx context.Context, originatorID string, transform func(topic string, state []byte) ([]byte, error)) error
}
