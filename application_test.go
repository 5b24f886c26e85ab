package eventsourcing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregbrowndev/eventsourcing"
	"github.com/gregbrowndev/eventsourcing/recorder"
	"github.com/gregbrowndev/eventsourcing/store/memory"
)

func newTestApplication() *eventsourcing.Application {
	registry, aggregates := newWorldRegistries()
	mapper := eventsourcing.NewMapper(registry)
	rec := memory.New()
	store := eventsourcing.NewEventStore(mapper, rec)
	repo := eventsourcing.NewRepository(rec, mapper, aggregates)
	log := eventsourcing.NewNotificationLog(rec, mapper)
	return eventsourcing.NewApplication(store, repo, log, mapper, nil)
}

// TestScenario1CreateAndHistory creates an aggregate, applies a run of
// events, saves it, and checks the resulting notification ids and history.
func TestScenario1CreateAndHistory(t *testing.T) {
	ctx := context.Background()
	app := newTestApplication()

	earth, err := Create("earth", "Earth")
	require.NoError(t, err)
	require.NoError(t, earth.Happen("dinosaurs"))
	require.NoError(t, earth.Happen("trucks"))
	require.NoError(t, earth.Happen("internet"))

	ids, err := app.Save(ctx, []eventsourcing.Aggregater{earth})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4}, ids)
	assert.Equal(t, []string{"dinosaurs", "trucks", "internet"}, earth.History)
	assert.Equal(t, uint32(4), earth.GetVersion())

	notifications, err := app.Log().Section(ctx, eventsourcing.Section{Start: 1, End: 4})
	require.NoError(t, err)
	require.Len(t, notifications, 4)
	for _, n := range notifications {
		assert.Equal(t, "earth", n.OriginatorID)
	}
}

// TestScenario3LoadAtVersion reloads an aggregate at a version short of
// its latest and checks the replay stops there.
func TestScenario3LoadAtVersion(t *testing.T) {
	ctx := context.Background()
	app := newTestApplication()

	earth, err := Create("earth", "Earth")
	require.NoError(t, err)
	require.NoError(t, earth.Happen("dinosaurs"))
	require.NoError(t, earth.Happen("trucks"))
	require.NoError(t, earth.Happen("internet"))
	_, err = app.Save(ctx, []eventsourcing.Aggregater{earth})
	require.NoError(t, err)

	loaded, err := app.Repository().Get(ctx, "world", "earth", 3)
	require.NoError(t, err)
	world := loaded.(*World)
	assert.Equal(t, []string{"dinosaurs", "trucks"}, world.History)
	assert.Equal(t, uint32(3), world.GetVersion())
}

// TestScenario4OptimisticConcurrency saves from a stale aggregate instance
// after a concurrent save and checks it is rejected as a conflict.
func TestScenario4OptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	app := newTestApplication()

	earth, err := Create("earth", "Earth")
	require.NoError(t, err)
	require.NoError(t, earth.Happen("dinosaurs"))
	require.NoError(t, earth.Happen("trucks"))
	require.NoError(t, earth.Happen("internet"))
	_, err = app.Save(ctx, []eventsourcing.Aggregater{earth})
	require.NoError(t, err)

	stale, err := app.Repository().Get(ctx, "world", "earth", 3)
	require.NoError(t, err)
	staleWorld := stale.(*World)

	fresh, err := app.Repository().Get(ctx, "world", "earth", 0)
	require.NoError(t, err)
	freshWorld := fresh.(*World)
	require.NoError(t, freshWorld.Happen("moon landing"))
	_, err = app.Save(ctx, []eventsourcing.Aggregater{freshWorld})
	require.NoError(t, err)

	require.NoError(t, staleWorld.Happen("future"))
	_, err = app.Save(ctx, []eventsourcing.Aggregater{staleWorld})
	assert.ErrorIs(t, err, eventsourcing.ErrConflict)

	notifications, err := app.Log().Section(ctx, eventsourcing.Section{Start: 1, End: 10})
	require.NoError(t, err)
	assert.Len(t, notifications, 5)
}

// TestScenario5MultiAggregateNotificationLog checks that three aggregates
// of four events each produce 12 dense notifications, and that a reader
// started at id 5 sees exactly 8.
func TestScenario5MultiAggregateNotificationLog(t *testing.T) {
	ctx := context.Background()
	app := newTestApplication()

	for _, name := range []string{"earth", "mars", "venus"} {
		w, err := Create(name, name)
		require.NoError(t, err)
		require.NoError(t, w.Happen("a"))
		require.NoError(t, w.Happen("b"))
		require.NoError(t, w.Happen("c"))
		_, err = app.Save(ctx, []eventsourcing.Aggregater{w})
		require.NoError(t, err)
	}

	max, err := app.Log().MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), max)

	all, err := app.Log().Section(ctx, eventsourcing.Section{Start: 1, End: 12})
	require.NoError(t, err)
	require.Len(t, all, 12)
	for i, n := range all {
		assert.Equal(t, uint64(i+1), n.ID)
	}

	fromFive, err := app.Log().Select(ctx, 5, 0, recorder.Filter{})
	require.NoError(t, err)
	assert.Len(t, fromFive, 8)
}

// TestScenario6RoundTripReplay checks that reloading an aggregate from its
// event history reproduces identical state to the live instance.
func TestScenario6RoundTripReplay(t *testing.T) {
	ctx := context.Background()
	app := newTestApplication()

	earth, err := Create("earth", "Earth")
	require.NoError(t, err)
	require.NoError(t, earth.Happen("dinosaurs"))
	require.NoError(t, earth.Happen("trucks"))
	_, err = app.Save(ctx, []eventsourcing.Aggregater{earth})
	require.NoError(t, err)

	reloaded, err := app.Repository().Get(ctx, "world", "earth", 0)
	require.NoError(t, err)
	reloadedWorld := reloaded.(*World)

	assert.Equal(t, earth.GetID(), reloadedWorld.GetID())
	assert.Equal(t, earth.GetVersion(), reloadedWorld.GetVersion())
	assert.Equal(t, earth.GetCreatedAt(), reloadedWorld.GetCreatedAt())
	assert.Equal(t, earth.GetUpdatedAt(), reloadedWorld.GetUpdatedAt())
	assert.Equal(t, earth.Name, reloadedWorld.Name)
	assert.Equal(t, earth.History, reloadedWorld.History)
}

func TestGetUnknownAggregateIsNotFound(t *testing.T) {
	ctx := context.Background()
	app := newTestApplication()

	_, err := app.Repository().Get(ctx, "world", "does-not-exist", 0)
	assert.ErrorIs(t, err, eventsourcing.ErrNotFound)
}

// TestSnapshotTakenAndConsumedOnReload drives a real CountPolicy past its
// threshold, confirms a snapshot lands in the store, and checks
// Repository.Get reconstitutes the aggregate from that snapshot plus the
// tail of events saved after it, rather than replaying from scratch.
func TestSnapshotTakenAndConsumedOnReload(t *testing.T) {
	ctx := context.Background()
	registry, aggregates := newWorldRegistries()
	mapper := eventsourcing.NewMapper(registry)
	rec := memory.New()
	store := eventsourcing.NewEventStore(mapper, rec)
	repo := eventsourcing.NewRepository(rec, mapper, aggregates, eventsourcing.WithSnapshots())
	log := eventsourcing.NewNotificationLog(rec, mapper)
	app := eventsourcing.NewApplication(store, repo, log, mapper, eventsourcing.CountPolicy{Every: 3})

	earth, err := Create("earth", "Earth")
	require.NoError(t, err)
	require.NoError(t, earth.Happen("dinosaurs"))
	require.NoError(t, earth.Happen("trucks"))
	_, err = app.Save(ctx, []eventsourcing.Aggregater{earth})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), earth.EventsSinceSnapshot(), "a snapshot must be taken once Every is reached, resetting the counter")

	snap, err := rec.SelectSnapshot(ctx, "earth", 0)
	require.NoError(t, err)
	require.NotEmpty(t, snap.OriginatorID, "a snapshot must have been persisted at version 3")
	assert.Equal(t, uint32(3), snap.OriginatorVersion)

	require.NoError(t, earth.Happen("internet"))
	require.NoError(t, earth.Happen("moon landing"))
	_, err = app.Save(ctx, []eventsourcing.Aggregater{earth})
	require.NoError(t, err)

	snapAfter, err := rec.SelectSnapshot(ctx, "earth", 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), snapAfter.OriginatorVersion, "2 events since the last snapshot must not cross the Every:3 threshold")

	reloaded, err := app.Repository().Get(ctx, "world", "earth", 0)
	require.NoError(t, err)
	reloadedWorld := reloaded.(*World)

	assert.Equal(t, earth.GetVersion(), reloadedWorld.GetVersion())
	assert.Equal(t, earth.Name, reloadedWorld.Name)
	assert.Equal(t, earth.History, reloadedWorld.History)
	assert.Equal(t, []string{"dinosaurs", "trucks", "internet", "moon landing"}, reloadedWorld.History)
}

