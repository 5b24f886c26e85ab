package eventsourcing_test

import (
	"fmt"

	"github.com/gregbrowndev/eventsourcing"
	"github.com/gregbrowndev/eventsourcing/encoding"
)

// World is the test aggregate used throughout the root package's test
// suite, modelling Earth/Mars/Venus style multi-aggregate scenarios.
type World struct {
	eventsourcing.Root
	Name    string
	History []string
	Photo   encoding.Base64
}

func NewWorld(id string) *World {
	return &World{Root: eventsourcing.NewRoot(id)}
}

func (w *World) EventType() string { return "world" }

// Apply folds payload onto the aggregate's state; it is the single
// function used both when a command constructs a new event and when the
// Repository replays history.
func (w *World) Apply(payload eventsourcing.Typer) error {
	switch e := payload.(type) {
	case *WorldCreated:
		w.Name = e.Name
	case *WorldEventHappened:
		w.History = append(w.History, e.Description)
	case *WorldPhotographed:
		w.Photo = e.Photo
	default:
		return fmt.Errorf("world: unknown event type %T", payload)
	}
	return nil
}

// Create constructs the creation event, applies it and enqueues it.
func Create(id, name string) (*World, error) {
	w := NewWorld(id)
	e := &WorldCreated{Name: name}
	if err := w.Apply(e); err != nil {
		return nil, err
	}
	w.Enqueue(e)
	return w, nil
}

// Happen records a new history entry on w.
func (w *World) Happen(description string) error {
	e := &WorldEventHappened{Description: description}
	if err := w.Apply(e); err != nil {
		return err
	}
	w.Enqueue(e)
	return nil
}

type WorldCreated struct {
	Name string
}

func (*WorldCreated) EventType() string { return "world:created" }

type WorldEventHappened struct {
	Description string
}

func (*WorldEventHappened) EventType() string { return "world:event-happened" }

// WorldPhotographed carries an arbitrary binary payload. Photo is typed
// encoding.Base64 so it survives the mapper's JSON transcoding as a
// base64 string.
type WorldPhotographed struct {
	Photo encoding.Base64
}

func (*WorldPhotographed) EventType() string { return "world:photographed" }

func newWorldRegistries() (*eventsourcing.Registry, *eventsourcing.AggregateRegistry) {
	registry := eventsourcing.NewRegistry()
	registry.Register("world:created", 1, func() eventsourcing.Typer { return &WorldCreated{} })
	registry.Register("world:event-happened", 1, func() eventsourcing.Typer { return &WorldEventHappened{} })
	registry.Register("world:photographed", 1, func() eventsourcing.Typer { return &WorldPhotographed{} })

	aggregates := eventsourcing.NewAggregateRegistry()
	aggregates.Register("world", func(id string) eventsourcing.Aggregater { return NewWorld(id) })

	return registry, aggregates
}
