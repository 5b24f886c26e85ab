package reader_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregbrowndev/eventsourcing"
	"github.com/gregbrowndev/eventsourcing/reader"
	"github.com/gregbrowndev/eventsourcing/recorder"
	"github.com/gregbrowndev/eventsourcing/store/memory"
)

type created struct{ Name string }

func (*created) EventType() string { return "test:created" }

func newNotificationLog(t *testing.T) (*eventsourcing.NotificationLog, recorder.Interface) {
	t.Helper()
	registry := eventsourcing.NewRegistry()
	registry.Register("test:created", 1, func() eventsourcing.Typer { return &created{} })
	mapper := eventsourcing.NewMapper(registry)
	rec := memory.New()

	store := eventsourcing.NewEventStore(mapper, rec)
	now := time.Now().UTC()
	for i := 1; i <= 5; i++ {
		_, err := store.Put(context.Background(), []eventsourcing.Event{
			{OriginatorID: "agg", OriginatorVersion: uint32(i), CreatedAt: now, Payload: &created{Name: "n"}},
		})
		require.NoError(t, err)
	}

	return eventsourcing.NewNotificationLog(rec, mapper), rec
}

func TestReaderCatchesUpThenReturns(t *testing.T) {
	log, _ := newNotificationLog(t)
	r := reader.New(log)

	var seen []uint64
	err := r.Read(context.Background(), 1, func(ctx context.Context, n eventsourcing.Notification) error {
		seen = append(seen, n.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seen)
}

func TestReaderStartsMidLog(t *testing.T) {
	log, _ := newNotificationLog(t)
	r := reader.New(log)

	var seen []uint64
	err := r.Read(context.Background(), 3, func(ctx context.Context, n eventsourcing.Notification) error {
		seen = append(seen, n.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4, 5}, seen)
}

func TestReaderStopsOnHandlerError(t *testing.T) {
	log, _ := newNotificationLog(t)
	r := reader.New(log)

	boom := assert.AnError
	count := 0
	err := r.Read(context.Background(), 1, func(ctx context.Context, n eventsourcing.Notification) error {
		count++
		if n.ID == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, count)
}

func TestReaderPollPicksUpNewNotifications(t *testing.T) {
	log, rec := newNotificationLog(t)
	r := reader.New(log, reader.WithPoll(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	seen := make(chan uint64, 10)
	done := make(chan error, 1)
	go func() {
		done <- r.Read(ctx, 1, func(ctx context.Context, n eventsourcing.Notification) error {
			seen <- n.ID
			return nil
		})
	}()

	for i := 0; i < 5; i++ {
		<-seen
	}

	_, err := rec.InsertEvents(context.Background(), recorder.Batch{Events: []recorder.StoredEvent{
		{OriginatorID: "agg", OriginatorVersion: 6, Topic: "test:created", State: []byte("{}"), CreatedAt: time.Now().UTC()},
	}})
	require.NoError(t, err)
	select {
	case id := <-seen:
		assert.Equal(t, uint64(6), id)
	case <-ctx.Done():
		t.Fatal("the notification appended after catch-up was not delivered")
	}
	cancel()
	<-done
}
