package eventsourcing

import (
	"context"
	"fmt"

	"github.com/quintans/faults"

	"github.com/gregbrowndev/eventsourcing/errkind"
	"github.com/gregbrowndev/eventsourcing/recorder"
)

// AggregateConstructor allocates a blank aggregate of one kind identified
// by id, ready to receive either a decoded snapshot or the fold of its
// event history.
type AggregateConstructor func(id string) Aggregater

// AggregateRegistry resolves an aggregate kind (its EventType()) to a
// constructor, the aggregate-side counterpart of Registry for events.
type AggregateRegistry struct {
	kinds map[string]AggregateConstructor
}

func NewAggregateRegistry() *AggregateRegistry {
	return &AggregateRegistry{kinds: map[string]AggregateConstructor{}}
}

func (r *AggregateRegistry) Register(kind string, ctor AggregateConstructor) {
	r.kinds[kind] = ctor
}

func (r *AggregateRegistry) New(kind, id string) (Aggregater, error) {
	ctor, ok := r.kinds[kind]
	if !ok {
		return nil, faults.Wrap(fmt.Errorf("%w: aggregate kind %q", errkind.Transcoding, kind))
	}
	return ctor(id), nil
}

// Repository reconstitutes aggregates from their event history (and,
// when enabled, the latest applicable snapshot).
type Repository struct {
	store      recorder.Interface
	mapper     *Mapper
	aggregates *AggregateRegistry
	snapshots  bool
}

// RepositoryOption configures the Repository.
type RepositoryOption func(*Repository)

// WithSnapshots enables loading the latest applicable snapshot before
// replaying events.
func WithSnapshots() RepositoryOption {
	return func(r *Repository) { r.snapshots = true }
}

func NewRepository(store recorder.Interface, mapper *Mapper, aggregates *AggregateRegistry, opts ...RepositoryOption) *Repository {
	r := &Repository{store: store, mapper: mapper, aggregates: aggregates}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Get reconstitutes the aggregate kind's instance identified by id. If
// version is 0, the full history is replayed; otherwise replay stops at
// that version (inclusive). Returns NotFoundError if neither a snapshot
// nor any event exists, or if version exceeds the stored history.
func (r *Repository) Get(ctx context.Context, kind, id string, version uint32) (Aggregater, error) {
	if version != 0 {
		if err := checkPositiveVersion(version); err != nil {
			return nil, err
		}
	}

	var agg Aggregater
	var snapVersion uint32

	if r.snapshots {
		snap, err := r.store.SelectSnapshot(ctx, id, version)
		if err != nil {
			return nil, err
		}
		if snap.OriginatorID != "" {
			a, err := r.aggregates.New(kind, id)
			if err != nil {
				return nil, err
			}
			if err := restoreSnapshot(r.mapper, snap, a); err != nil {
				return nil, err
			}
			a.SetVersion(snap.OriginatorVersion)
			a.SetUpdatedAt(snap.CreatedAt)
			agg = a
			snapVersion = snap.OriginatorVersion
		}
	}

	events, err := r.store.SelectEvents(ctx, id, snapVersion, version, false, 0)
	if err != nil {
		return nil, err
	}

	if agg == nil && len(events) == 0 {
		return nil, NotFoundError(id)
	}

	for _, se := range events {
		domainEvent, err := r.mapper.ToDomain(se)
		if err != nil {
			return nil, err
		}
		if agg == nil {
			a, err := r.aggregates.New(kind, id)
			if err != nil {
				return nil, err
			}
			agg = a
		}
		if err := agg.Apply(domainEvent.Payload); err != nil {
			return nil, err
		}
		agg.SetVersion(domainEvent.OriginatorVersion)
		agg.SetUpdatedAt(domainEvent.CreatedAt)
		// Apply is called directly here rather than through Enqueue, so
		// replayed events never touch the pending buffer.
	}

	if version != 0 && agg.GetVersion() < version {
		return nil, NotFoundError(id)
	}

	return agg, nil
}

func checkPositiveVersion(version uint32) error {
	if int32(version) <= 0 {
		return ProgrammingError("version must be a positive integer")
	}
	return nil
}
