package eventsourcing

import (
	"context"
	"time"

	"github.com/gregbrowndev/eventsourcing/recorder"
)

// Application binds EventStore, Repository and NotificationLog behind a
// single facade.
type Application struct {
	store  *EventStore
	repo   *Repository
	log    *NotificationLog
	mapper *Mapper
	policy SnapshotPolicy
}

// NewApplication wires the components together. policy may be nil, which
// disables automatic snapshotting on save (snapshots can still be read if
// the Repository was built WithSnapshots and something else writes them).
func NewApplication(store *EventStore, repo *Repository, log *NotificationLog, mapper *Mapper, policy SnapshotPolicy) *Application {
	return &Application{store: store, repo: repo, log: log, mapper: mapper, policy: policy}
}

// Save drains pending events from every aggregate and submits them as one
// atomic batch:
//  1. Collect pending events from each aggregate (emptying its buffer).
//  2. Submit them as one atomic batch to the EventStore.
//  3. On ConflictError, surface it to the caller; pending buffers are not
//     restored, so the caller must discard the aggregate instance.
//  4. On success, the events are durable and carry notification ids.
func (a *Application) Save(ctx context.Context, aggregates []Aggregater, opts ...SaveOption) ([]uint64, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	var events []Event
	for _, agg := range aggregates {
		// Guard against clock skew: a batch's CreatedAt must strictly
		// follow the aggregate's previous UpdatedAt.
		ts := now
		if !ts.After(agg.GetUpdatedAt()) {
			ts = agg.GetUpdatedAt().Add(time.Millisecond)
		}
		for _, e := range agg.DrainEvents() {
			e.CreatedAt = ts
			events = append(events, e)
			agg.SetVersion(e.OriginatorVersion)
			agg.SetUpdatedAt(ts)
		}
	}

	if len(events) == 0 {
		return nil, nil
	}

	ids, err := a.store.Put(ctx, events, opts...)
	if err != nil {
		// Conflict: surface as-is. The pending buffers were already
		// drained and are not restored; the caller must discard these
		// aggregate instances and reload.
		return nil, err
	}

	if a.policy != nil {
		if err := a.maybeSnapshot(ctx, aggregates); err != nil {
			return ids, err
		}
	}

	return ids, nil
}

func (a *Application) maybeSnapshot(ctx context.Context, aggregates []Aggregater) error {
	for _, agg := range aggregates {
		if !a.policy.ShouldSnapshot(agg.EventsSinceSnapshot()) {
			continue
		}
		snap, err := takeSnapshot(a.mapper, agg)
		if err != nil {
			return err
		}
		if err := a.store.store.InsertSnapshot(ctx, snap); err != nil {
			return err
		}
		agg.ResetSnapshotCounter()
	}
	return nil
}

// Repository returns the bound Repository.
func (a *Application) Repository() *Repository { return a.repo }

// Log returns the bound NotificationLog.
func (a *Application) Log() *NotificationLog { return a.log }

// ForgetRequest identifies which aggregate's stored payloads should be
// rewritten for redaction purposes.
type ForgetRequest struct {
	OriginatorID string
}

// Forget rewrites the decoded payload of every stored event and snapshot
// for request.OriginatorID using transform, re-running transform's output
// back through the encode pipeline. It does not alter ids or versions.
func (a *Application) Forget(ctx context.Context, request ForgetRequest, transform func(topic string, payload interface{}) (interface{}, error)) error {
	return a.store.store.Forget(ctx, request.OriginatorID, func(topic string, state []byte) ([]byte, error) {
		event, err := a.mapper.ToDomain(recorder.StoredEvent{Topic: topic, State: state})
		if err != nil {
			return nil, err
		}
		newPayload, err := transform(topic, event.Payload)
		if err != nil {
			return nil, err
		}
		rewritten, err := a.mapper.FromDomain(Event{
			OriginatorID:      event.OriginatorID,
			OriginatorVersion: event.OriginatorVersion,
			CreatedAt:         event.CreatedAt,
			Payload:           newPayload.(Typer),
		})
		if err != nil {
			return nil, err
		}
		return rewritten.State, nil
	})
}
