// Package sqlite implements recorder.Interface on top of SQLite via
// mattn/go-sqlite3, using the same query shapes as store/postgres but
// guarded by an in-process mutex: SQLite allows only one writer at a
// time, so notification id assignment uses a single-writer lock around
// commit and id assignment, the same approach store/memory uses.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/quintans/faults"

	"github.com/gregbrowndev/eventsourcing"
	"github.com/gregbrowndev/eventsourcing/common"
	"github.com/gregbrowndev/eventsourcing/eventid"
	"github.com/gregbrowndev/eventsourcing/recorder"
)

var _ recorder.Interface = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	notification_id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL UNIQUE,
	originator_id TEXT NOT NULL,
	originator_version INTEGER NOT NULL,
	aggregate_hash INTEGER NOT NULL,
	topic TEXT NOT NULL,
	state BLOB NOT NULL,
	idempotency_key TEXT,
	labels TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	UNIQUE (originator_id, originator_version)
);
CREATE INDEX IF NOT EXISTS evt_aggregate_hash_idx ON events (aggregate_hash);

CREATE TABLE IF NOT EXISTS snapshots (
	originator_id TEXT NOT NULL,
	originator_version INTEGER NOT NULL,
	topic TEXT NOT NULL,
	state BLOB NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (originator_id, originator_version)
);
`

// Store is a recorder.Interface backed by a SQLite file (or ":memory:").
type Store struct {
	mu sync.Mutex
	db *sqlx.DB
}

// New opens (and migrates) the database at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, faults.Wrap(err)
	}
	// go-sqlite3's driver serializes access internally, but we still
	// enforce a single open connection so our own mutex and the driver's
	// locking agree on what "one writer" means.
	db.SetMaxOpenConns(1)
	dbx := sqlx.NewDb(db, "sqlite3")
	if _, err := dbx.Exec(schema); err != nil {
		return nil, faults.Wrap(fmt.Errorf("apply schema: %w", err))
	}
	return &Store{db: dbx}, nil
}

func (s *Store) InsertEvents(ctx context.Context, batch recorder.Batch) ([]uint64, error) {
	if len(batch.Events) == 0 {
		return nil, eventsourcing.ProgrammingError("insert: empty batch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uint64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if batch.IdempotencyKey != "" {
			var exists bool
			if err := tx.GetContext(ctx, &exists,
				`SELECT EXISTS(SELECT 1 FROM events WHERE idempotency_key = ?)`, batch.IdempotencyKey); err != nil {
				return faults.Wrap(err)
			}
			if exists {
				ids = nil
				return nil
			}
		}

		ids = make([]uint64, len(batch.Events))
		for i, e := range batch.Events {
			labels, err := json.Marshal(e.Labels)
			if err != nil {
				return faults.Wrap(err)
			}
			hash := common.Hash(e.OriginatorID)
			eid := e.EventID
			if eid == "" {
				eid = eventid.New(e.CreatedAt, e.OriginatorID, e.OriginatorVersion)
			}

			res, err := tx.ExecContext(ctx,
				`INSERT INTO events (event_id, originator_id, originator_version, topic, state, idempotency_key, labels, created_at, aggregate_hash)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				eid, e.OriginatorID, e.OriginatorVersion, e.Topic, e.State, e.IdempotencyKey, labels, e.CreatedAt, hash)
			if err != nil {
				if isSqliteConflict(err) {
					return eventsourcing.ConflictError(e.OriginatorID, e.OriginatorVersion)
				}
				return faults.Wrap(err)
			}
			notificationID, err := res.LastInsertId()
			if err != nil {
				return faults.Wrap(err)
			}
			ids[i] = uint64(notificationID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func isSqliteConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func (s *Store) SelectEvents(ctx context.Context, originatorID string, gt, lte uint32, desc bool, limit int) ([]recorder.StoredEvent, error) {
	var query strings.Builder
	query.WriteString("SELECT * FROM events WHERE originator_id = ? AND originator_version > ?")
	args := []interface{}{originatorID, gt}
	if lte > 0 {
		query.WriteString(" AND originator_version <= ?")
		args = append(args, lte)
	}
	if desc {
		query.WriteString(" ORDER BY originator_version DESC")
	} else {
		query.WriteString(" ORDER BY originator_version ASC")
	}
	if limit > 0 {
		fmt.Fprintf(&query, " LIMIT %d", limit)
	}

	rows := []eventRow{}
	if err := s.db.SelectContext(ctx, &rows, query.String(), args...); err != nil {
		return nil, faults.Wrap(fmt.Errorf("select events for %q: %w", originatorID, err))
	}
	return toStoredEvents(rows)
}

func (s *Store) SelectNotifications(ctx context.Context, start uint64, limit int, filter recorder.Filter) ([]recorder.Notification, error) {
	if start == 0 {
		start = 1
	}
	var query strings.Builder
	query.WriteString("SELECT * FROM events WHERE notification_id >= ?")
	args := []interface{}{start}
	if len(filter.Topics) > 0 {
		query.WriteString(" AND (")
		for i, t := range filter.Topics {
			if i > 0 {
				query.WriteString(" OR ")
			}
			query.WriteString("topic = ?")
			args = append(args, t)
		}
		query.WriteString(")")
	}
	if filter.Partitions > 0 {
		query.WriteString(" AND (aggregate_hash % ?) + 1 BETWEEN ? AND ?")
		args = append(args, filter.Partitions, filter.PartitionLow, filter.PartitionHigh)
	}
	query.WriteString(" ORDER BY notification_id ASC")
	if limit > 0 {
		fmt.Fprintf(&query, " LIMIT %d", limit)
	}

	rows := []eventRow{}
	if err := s.db.SelectContext(ctx, &rows, query.String(), args...); err != nil {
		return nil, faults.Wrap(fmt.Errorf("select notifications from %d: %w", start, err))
	}

	events, err := toStoredEvents(rows)
	if err != nil {
		return nil, err
	}
	out := make([]recorder.Notification, 0, len(rows))
	for i, r := range rows {
		if !matchesLabels(events[i], filter) {
			continue
		}
		out = append(out, recorder.Notification{ID: r.NotificationID, StoredEvent: events[i]})
	}
	return out, nil
}

func matchesLabels(e recorder.StoredEvent, filter recorder.Filter) bool {
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

type eventRow struct {
	NotificationID    uint64         `db:"notification_id"`
	EventID           string         `db:"event_id"`
	OriginatorID      string         `db:"originator_id"`
	OriginatorVersion uint32         `db:"originator_version"`
	Topic             string         `db:"topic"`
	State             []byte         `db:"state"`
	IdempotencyKey    sql.NullString `db:"idempotency_key"`
	Labels            []byte         `db:"labels"`
	CreatedAt         time.Time      `db:"created_at"`
	AggregateHash     uint32         `db:"aggregate_hash"`
}

type snapshotRow struct {
	OriginatorID      string    `db:"originator_id"`
	OriginatorVersion uint32    `db:"originator_version"`
	Topic             string    `db:"topic"`
	State             []byte    `db:"state"`
	CreatedAt         time.Time `db:"created_at"`
}

func toStoredEvents(rows []eventRow) ([]recorder.StoredEvent, error) {
	out := make([]recorder.StoredEvent, len(rows))
	for i, r := range rows {
		labels := map[string]interface{}{}
		if len(r.Labels) > 0 {
			if err := json.Unmarshal(r.Labels, &labels); err != nil {
				return nil, faults.Wrap(err)
			}
		}
		out[i] = recorder.StoredEvent{
			OriginatorID:      r.OriginatorID,
			OriginatorVersion: r.OriginatorVersion,
			Topic:             r.Topic,
			State:             r.State,
			IdempotencyKey:    r.IdempotencyKey.String,
			Labels:            labels,
			CreatedAt:         r.CreatedAt,
			EventID:           eventid.EventID(r.EventID),
		}
	}
	return out, nil
}

func (s *Store) MaxNotificationID(ctx context.Context) (uint64, error) {
	var max sql.NullInt64
	if err := s.db.GetContext(ctx, &max, "SELECT MAX(notification_id) FROM events"); err != nil {
		return 0, faults.Wrap(err)
	}
	if !max.Valid {
		return 0, nil
	}
	return uint64(max.Int64), nil
}

func (s *Store) InsertSnapshot(ctx context.Context, snap recorder.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (originator_id, originator_version, topic, state, created_at) VALUES (?, ?, ?, ?, ?)`,
		snap.OriginatorID, snap.OriginatorVersion, snap.Topic, snap.State, snap.CreatedAt)
	if err != nil {
		return faults.Wrap(fmt.Errorf("insert snapshot for %q: %w", snap.OriginatorID, err))
	}
	return nil
}

func (s *Store) SelectSnapshot(ctx context.Context, originatorID string, atOrBefore uint32) (recorder.Snapshot, error) {
	var query strings.Builder
	query.WriteString("SELECT * FROM snapshots WHERE originator_id = ?")
	args := []interface{}{originatorID}
	if atOrBefore > 0 {
		query.WriteString(" AND originator_version <= ?")
		args = append(args, atOrBefore)
	}
	query.WriteString(" ORDER BY originator_version DESC LIMIT 1")

	row := snapshotRow{}
	if err := s.db.GetContext(ctx, &row, query.String(), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return recorder.Snapshot{}, nil
		}
		return recorder.Snapshot{}, faults.Wrap(fmt.Errorf("select snapshot for %q: %w", originatorID, err))
	}
	return recorder.Snapshot{
		OriginatorID:      row.OriginatorID,
		OriginatorVersion: row.OriginatorVersion,
		Topic:             row.Topic,
		State:             row.State,
		CreatedAt:         row.CreatedAt,
	}, nil
}

func (s *Store) HasIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM events WHERE idempotency_key = ?)`, key); err != nil {
		return false, faults.Wrap(err)
	}
	return exists, nil
}

func (s *Store) Forget(ctx context.Context, originatorID string, transform func(topic string, state []byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		rows := []eventRow{}
		if err := tx.SelectContext(ctx, &rows, "SELECT * FROM events WHERE originator_id = ?", originatorID); err != nil {
			return faults.Wrap(err)
		}
		for _, r := range rows {
			state, err := transform(r.Topic, r.State)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "UPDATE events SET state = ? WHERE notification_id = ?", state, r.NotificationID); err != nil {
				return faults.Wrap(err)
			}
		}

		snaps := []snapshotRow{}
		if err := tx.SelectContext(ctx, &snaps, "SELECT * FROM snapshots WHERE originator_id = ?", originatorID); err != nil {
			return faults.Wrap(err)
		}
		for _, sn := range snaps {
			state, err := transform(sn.Topic, sn.State)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE snapshots SET state = ? WHERE originator_id = ? AND originator_version = ?",
				state, sn.OriginatorID, sn.OriginatorVersion); err != nil {
				return faults.Wrap(err)
			}
		}
		return nil
	})
}

func (s *Store) withTx(ctx context.Context, fn func(*sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return faults.Wrap(err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
