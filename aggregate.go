package eventsourcing

import "time"

// Typer is implemented by every event kind; EventType is the stable part
// of its topic (see topic.go), a compile-time replacement for resolving
// event kinds by a runtime class name.
type Typer interface {
	EventType() string
}

// Event wraps a domain event with its positioning metadata. Two events
// with the same (OriginatorID, OriginatorVersion) are forbidden.
type Event struct {
	OriginatorID      string
	OriginatorVersion uint32
	CreatedAt         time.Time
	Payload           Typer
}

// Aggregater is the contract every aggregate kind satisfies so the
// EventStore/Repository can manipulate it without knowing its concrete
// type. It replaces class inheritance with a capability set: dispatch
// happens by topic, not by language-level dynamic binding.
type Aggregater interface {
	Typer
	GetID() string
	GetVersion() uint32
	SetVersion(uint32)
	GetCreatedAt() time.Time
	GetUpdatedAt() time.Time
	SetUpdatedAt(time.Time)
	// Apply folds e onto the aggregate's state. It is used both when a
	// command method constructs and applies a new event, and when the
	// Repository replays history, preserving apply-on-command ==
	// apply-on-replay.
	Apply(e Typer) error
	// PendingEvents peeks at the buffer collected since the last
	// DrainEvents, in the order they were applied.
	PendingEvents() []Typer
	// DrainEvents empties the pending buffer and returns its contents
	// positioned with (OriginatorID, OriginatorVersion); the caller now
	// owns the returned slice.
	DrainEvents() []Event
	// EventsSinceSnapshot is used by a SnapshotPolicy to decide whether
	// to compact.
	EventsSinceSnapshot() uint32
	// ResetSnapshotCounter is called once a snapshot has been taken.
	ResetSnapshotCounter()
}

type pendingEvent struct {
	payload Typer
	version uint32
}

// Root is embedded by concrete aggregate structs to supply the bookkeeping
// every aggregate needs: identity, version, timestamps and the pending
// event buffer. It owns no business state; subtypes hold that themselves
// and supply Apply.
type Root struct {
	id                  string
	version             uint32
	createdAt           time.Time
	updatedAt           time.Time
	pending             []pendingEvent
	eventsSinceSnapshot uint32
}

// NewRoot starts a fresh aggregate identified by id. version is left at 0
// until the creation event is enqueued (or replayed), which sets it to 1.
func NewRoot(id string) Root {
	return Root{id: id}
}

func (r *Root) GetID() string { return r.id }

func (r *Root) GetVersion() uint32 { return r.version }

func (r *Root) SetVersion(v uint32) { r.version = v }

func (r *Root) GetCreatedAt() time.Time { return r.createdAt }

func (r *Root) GetUpdatedAt() time.Time { return r.updatedAt }

func (r *Root) SetUpdatedAt(t time.Time) {
	if r.createdAt.IsZero() {
		r.createdAt = t
	}
	r.updatedAt = t
}

// PendingEvents peeks at the uncommitted events without draining them.
func (r *Root) PendingEvents() []Typer {
	out := make([]Typer, len(r.pending))
	for i, p := range r.pending {
		out[i] = p.payload
	}
	return out
}

// DrainEvents empties the pending buffer and returns its contents as
// positioned Events, ready for EventStore.Put.
func (r *Root) DrainEvents() []Event {
	out := make([]Event, len(r.pending))
	for i, p := range r.pending {
		out[i] = Event{OriginatorID: r.id, OriginatorVersion: p.version, Payload: p.payload}
	}
	r.pending = nil
	return out
}

func (r *Root) EventsSinceSnapshot() uint32 { return r.eventsSinceSnapshot }

// ResetSnapshotCounter is called by the Application after a snapshot is
// taken.
func (r *Root) ResetSnapshotCounter() { r.eventsSinceSnapshot = 0 }

// Enqueue records a newly-constructed event as pending, tagging it with
// the version it bumps the aggregate to. Aggregate command methods call
// Enqueue after calling Apply, so replaying the same events later onto a
// fresh Root produces identical state.
func (r *Root) Enqueue(e Typer) {
	r.version++
	r.pending = append(r.pending, pendingEvent{payload: e, version: r.version})
	r.eventsSinceSnapshot++
}
