// Package memory is an in-process recorder.Interface implementation,
// grounded on the enmand-eventsourcing in-memory store pattern: a
// per-aggregate slice plus a single globally ordered slice, both guarded
// by one mutex. It exists for unit tests and as the simplest possible
// reference recorder; it does not survive a process restart.
package memory

import (
	"context"
	"sync"

	"github.com/gregbrowndev/eventsourcing"
	"github.com/gregbrowndev/eventsourcing/common"
	"github.com/gregbrowndev/eventsourcing/eventid"
	"github.com/gregbrowndev/eventsourcing/recorder"
)

var _ recorder.Interface = (*Recorder)(nil)

// Recorder holds every event and snapshot in memory. Notification ids
// are assigned under the single mutex that also guards the append
// itself, so there is no window in which id k is visible before k-1: a
// single-writer lock around commit and id assignment.
type Recorder struct {
	mu             sync.Mutex
	byAggregate    map[string][]recorder.StoredEvent
	notifications  []recorder.Notification
	snapshots      map[string][]recorder.Snapshot
	idempotencyKey map[string]bool
}

// New returns an empty recorder.
func New() *Recorder {
	return &Recorder{
		byAggregate:    map[string][]recorder.StoredEvent{},
		snapshots:      map[string][]recorder.Snapshot{},
		idempotencyKey: map[string]bool{},
	}
}

func (r *Recorder) InsertEvents(ctx context.Context, batch recorder.Batch) ([]uint64, error) {
	if len(batch.Events) == 0 {
		return nil, eventsourcing.ProgrammingError("insert: empty batch")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if batch.IdempotencyKey != "" && r.idempotencyKey[batch.IdempotencyKey] {
		return nil, nil
	}

	// Validate the whole batch before mutating anything: either all
	// events commit or none do.
	seen := map[string]uint32{}
	for _, e := range batch.Events {
		existing := r.byAggregate[e.OriginatorID]
		lastVersion := uint32(0)
		if len(existing) > 0 {
			lastVersion = existing[len(existing)-1].OriginatorVersion
		}
		if v, ok := seen[e.OriginatorID]; ok {
			lastVersion = v
		}
		if e.OriginatorVersion <= lastVersion {
			return nil, conflict(e.OriginatorID, e.OriginatorVersion)
		}
		for _, existingEvt := range existing {
			if existingEvt.OriginatorVersion == e.OriginatorVersion {
				return nil, conflict(e.OriginatorID, e.OriginatorVersion)
			}
		}
		seen[e.OriginatorID] = e.OriginatorVersion
	}

	ids := make([]uint64, len(batch.Events))
	nextID := uint64(len(r.notifications)) + 1
	for i, e := range batch.Events {
		if e.EventID == "" {
			e.EventID = eventid.New(e.CreatedAt, e.OriginatorID, e.OriginatorVersion)
		}
		r.byAggregate[e.OriginatorID] = append(r.byAggregate[e.OriginatorID], e)
		n := recorder.Notification{ID: nextID, StoredEvent: e}
		r.notifications = append(r.notifications, n)
		ids[i] = nextID
		nextID++
	}

	if batch.IdempotencyKey != "" {
		r.idempotencyKey[batch.IdempotencyKey] = true
	}

	return ids, nil
}

func (r *Recorder) SelectEvents(ctx context.Context, originatorID string, gt, lte uint32, desc bool, limit int) ([]recorder.StoredEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.byAggregate[originatorID]
	out := make([]recorder.StoredEvent, 0, len(events))
	for _, e := range events {
		if e.OriginatorVersion <= gt {
			continue
		}
		if lte > 0 && e.OriginatorVersion > lte {
			continue
		}
		out = append(out, e)
	}

	if desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Recorder) SelectNotifications(ctx context.Context, start uint64, limit int, filter recorder.Filter) ([]recorder.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if start == 0 {
		start = 1
	}

	out := []recorder.Notification{}
	for _, n := range r.notifications {
		if n.ID < start {
			continue
		}
		if !matches(n.StoredEvent, filter) {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matches(e recorder.StoredEvent, filter recorder.Filter) bool {
	if len(filter.Topics) > 0 {
		found := false
		for _, t := range filter.Topics {
			if t == e.Topic {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Partitions > 0 {
		p := common.WhichPartition(e.OriginatorID, filter.Partitions)
		if p < filter.PartitionLow || p > filter.PartitionHigh {
			return false
		}
	}
	for k, values := range filter.Labels {
		v, ok := e.Labels[k]
		if !ok {
			return false
		}
		found := false
		for _, want := range values {
			if want == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (r *Recorder) MaxNotificationID(ctx context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.notifications)), nil
}

func (r *Recorder) InsertSnapshot(ctx context.Context, snap recorder.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[snap.OriginatorID] = append(r.snapshots[snap.OriginatorID], snap)
	return nil
}

func (r *Recorder) SelectSnapshot(ctx context.Context, originatorID string, atOrBefore uint32) (recorder.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best recorder.Snapshot
	for _, s := range r.snapshots[originatorID] {
		if atOrBefore > 0 && s.OriginatorVersion > atOrBefore {
			continue
		}
		if s.OriginatorVersion > best.OriginatorVersion {
			best = s
		}
	}
	return best, nil
}

func (r *Recorder) HasIdempotencyKey(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idempotencyKey[key], nil
}

func (r *Recorder) Forget(ctx context.Context, originatorID string, transform func(topic string, state []byte) ([]byte, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.byAggregate[originatorID]
	for i, e := range events {
		state, err := transform(e.Topic, e.State)
		if err != nil {
			return err
		}
		events[i].State = state
	}

	// notifications holds its own copy of each StoredEvent, so the
	// rewritten state must be mirrored there too or Section/Select would
	// keep serving the pre-redaction payload.
	for i, n := range r.notifications {
		if n.OriginatorID != originatorID {
			continue
		}
		for _, e := range events {
			if e.OriginatorVersion == n.OriginatorVersion {
				r.notifications[i].State = e.State
				break
			}
		}
	}

	snaps := r.snapshots[originatorID]
	for i, s := range snaps {
		state, err := transform(s.Topic, s.State)
		if err != nil {
			return err
		}
		snaps[i].State = state
	}
	return nil
}

func conflict(originatorID string, version uint32) error {
	return eventsourcing.ConflictError(originatorID, version)
}
