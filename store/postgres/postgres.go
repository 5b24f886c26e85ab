// Package postgres implements recorder.Interface on top of Postgres
// using sqlx.DB and lib/pq, with a withTx helper and error-code-based
// conflict detection, and a dense global notification ordering.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/quintans/faults"

	"github.com/gregbrowndev/eventsourcing"
	"github.com/gregbrowndev/eventsourcing/common"
	"github.com/gregbrowndev/eventsourcing/eventid"
	"github.com/gregbrowndev/eventsourcing/recorder"
)

const pgUniqueViolation = "23505"

var _ recorder.Interface = (*Store)(nil)

// eventRow mirrors the events table; db tags drive sqlx's StructScan.
type eventRow struct {
	NotificationID    uint64       `db:"notification_id"`
	EventID           string       `db:"event_id"`
	OriginatorID      string       `db:"originator_id"`
	OriginatorVersion uint32       `db:"originator_version"`
	Topic             string       `db:"topic"`
	State             []byte       `db:"state"`
	IdempotencyKey    string       `db:"idempotency_key"`
	Labels            []byte       `db:"labels"`
	CreatedAt         sql.NullTime `db:"created_at"`
	AggregateHash     uint32       `db:"aggregate_hash"`
}

type snapshotRow struct {
	OriginatorID      string       `db:"originator_id"`
	OriginatorVersion uint32       `db:"originator_version"`
	Topic             string       `db:"topic"`
	State             []byte       `db:"state"`
	CreatedAt         sql.NullTime `db:"created_at"`
}

// Store is a recorder.Interface backed by Postgres. InsertEvents holds an
// EXCLUSIVE lock on the events table for its whole transaction and
// numbers the batch from MAX(notification_id)+1, so ids are dense and a
// reader never observes id k before k-1 is committed (a single-writer
// lock around commit and id assignment). The lock does not block plain
// SELECTs.
type Store struct {
	db *sqlx.DB
}

// New opens a connection pool against dburl (a postgres:// DSN).
func New(dburl string) (*Store, error) {
	db, err := sql.Open("postgres", dburl)
	if err != nil {
		return nil, faults.Wrap(err)
	}
	return NewFromDB(db), nil
}

// NewFromDB wraps an already-open *sql.DB, letting callers share a pool
// or inject a test double.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

func (s *Store) InsertEvents(ctx context.Context, batch recorder.Batch) ([]uint64, error) {
	if len(batch.Events) == 0 {
		return nil, eventsourcing.ProgrammingError("insert: empty batch")
	}

	var ids []uint64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		// One writer at a time: ids are assigned and committed batch by
		// batch, so they stay dense and become visible in id order.
		if _, err := tx.ExecContext(ctx, "LOCK TABLE events IN EXCLUSIVE MODE"); err != nil {
			return faults.Wrap(err)
		}

		if batch.IdempotencyKey != "" {
			var exists bool
			if err := tx.GetContext(ctx, &exists,
				`SELECT EXISTS(SELECT 1 FROM events WHERE idempotency_key = $1)`, batch.IdempotencyKey); err != nil {
				return faults.Wrap(err)
			}
			if exists {
				ids = nil
				return nil
			}
		}

		var maxID uint64
		if err := tx.GetContext(ctx, &maxID, "SELECT COALESCE(MAX(notification_id), 0) FROM events"); err != nil {
			return faults.Wrap(err)
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
			// Only the batch's first row carries the idempotency key: the
			// partial unique index on idempotency_key allows one row per key.
			idemKey := ""
			if i == 0 {
				idemKey = e.IdempotencyKey
			}

			var notificationID uint64
			err = tx.QueryRowContext(ctx,
				`INSERT INTO events (notification_id, event_id, originator_id, originator_version, topic, state, idempotency_key, labels, created_at, aggregate_hash)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				 RETURNING notification_id`,
				maxID+uint64(i)+1, eid, e.OriginatorID, e.OriginatorVersion, e.Topic, e.State, idemKey, labels, e.CreatedAt, hash,
			).Scan(&notificationID)
			if err != nil {
				if isPgConflict(err) {
					return eventsourcing.ConflictError(e.OriginatorID, e.OriginatorVersion)
				}
				return faults.Wrap(err)
			}
			ids[i] = notificationID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func isPgConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

func (s *Store) SelectEvents(ctx context.Context, originatorID string, gt, lte uint32, desc bool, limit int) ([]recorder.StoredEvent, error) {
	var query strings.Builder
	query.WriteString("SELECT * FROM events WHERE originator_id = $1 AND originator_version > $2")
	args := []interface{}{originatorID, gt}
	if lte > 0 {
		args = append(args, lte)
		fmt.Fprintf(&query, " AND originator_version <= $%d", len(args))
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
	query.WriteString("SELECT * FROM events WHERE notification_id >= $1")
	args := []interface{}{start}
	args = buildFilter(filter, &query, args)
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
	out := make([]recorder.Notification, len(rows))
	for i, r := range rows {
		out[i] = recorder.Notification{ID: r.NotificationID, StoredEvent: events[i]}
	}
	return out, nil
}

func buildFilter(filter recorder.Filter, query *strings.Builder, args []interface{}) []interface{} {
	if len(filter.Topics) > 0 {
		query.WriteString(" AND (")
		for i, t := range filter.Topics {
			if i > 0 {
				query.WriteString(" OR ")
			}
			args = append(args, t)
			fmt.Fprintf(query, "topic = $%d", len(args))
		}
		query.WriteString(")")
	}
	if filter.Partitions > 0 {
		args = append(args, filter.Partitions, filter.PartitionLow, filter.PartitionHigh)
		n := len(args)
		fmt.Fprintf(query, " AND MOD(aggregate_hash, $%d) + 1 BETWEEN $%d AND $%d", n-2, n-1, n)
	}
	for k, values := range filter.Labels {
		query.WriteString(" AND (")
		for i, v := range values {
			if i > 0 {
				query.WriteString(" OR ")
			}
			fmt.Fprintf(query, `labels @> '{"%s": "%s"}'`, escape(k), escape(v))
		}
		query.WriteString(")")
	}
	return args
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
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
			IdempotencyKey:    r.IdempotencyKey,
			Labels:            labels,
			CreatedAt:         r.CreatedAt.Time,
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (originator_id, originator_version, topic, state, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		snap.OriginatorID, snap.OriginatorVersion, snap.Topic, snap.State, snap.CreatedAt)
	if err != nil {
		return faults.Wrap(fmt.Errorf("insert snapshot for %q: %w", snap.OriginatorID, err))
	}
	return nil
}

func (s *Store) SelectSnapshot(ctx context.Context, originatorID string, atOrBefore uint32) (recorder.Snapshot, error) {
	var query strings.Builder
	query.WriteString("SELECT * FROM snapshots WHERE originator_id = $1")
	args := []interface{}{originatorID}
	if atOrBefore > 0 {
		args = append(args, atOrBefore)
		fmt.Fprintf(&query, " AND originator_version <= $%d", len(args))
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
		CreatedAt:         row.CreatedAt.Time,
	}, nil
}

func (s *Store) HasIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM events WHERE idempotency_key = $1)`, key); err != nil {
		return false, faults.Wrap(err)
	}
	return exists, nil
}

// Forget rewrites the body of every stored event and snapshot for
// originatorID, row by row. Notification ids and versions are
// untouched, so the log's density invariant holds.
func (s *Store) Forget(ctx context.Context, originatorID string, transform func(topic string, state []byte) ([]byte, error)) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		rows := []eventRow{}
		if err := tx.SelectContext(ctx, &rows, "SELECT * FROM events WHERE originator_id = $1", originatorID); err != nil {
			return faults.Wrap(err)
		}
		for _, r := range rows {
			state, err := transform(r.Topic, r.State)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "UPDATE events SET state = $1 WHERE notification_id = $2", state, r.NotificationID); err != nil {
				return faults.Wrap(err)
			}
		}

		snaps := []snapshotRow{}
		if err := tx.SelectContext(ctx, &snaps, "SELECT * FROM snapshots WHERE originator_id = $1", originatorID); err != nil {
			return faults.Wrap(err)
		}
		for _, sn := range snaps {
			state, err := transform(sn.Topic, sn.State)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE snapshots SET state = $1 WHERE originator_id = $2 AND originator_version = $3",
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
