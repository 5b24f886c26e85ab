package eventsourcing

import "fmt"

// UpcastFunc transforms a decoded payload of schema version n into the
// shape expected by version n+1. Upcasters are pure and side-effect
// free.
type UpcastFunc func(payload interface{}) (interface{}, error)

// Constructor allocates a fresh, zero-valued event of one kind, ready to
// be decoded into.
type Constructor func() Typer

type registeredKind struct {
	topic       string
	version     int
	constructor Constructor
	upcasters   []UpcastFunc // upcasters[i] transforms version i+1 -> i+2
}

// Registry is a compile-time replacement for resolving a topic string to
// a class at runtime: every event kind is registered once, up front,
// with its current schema version and the ordered chain of upcasters
// needed to bring an older stored payload up to that version.
// Resolution is deterministic and side-effect free.
type Registry struct {
	kinds map[string]*registeredKind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: map[string]*registeredKind{}}
}

// Register associates topic with the current (highest) schema version of
// the event kind and a constructor that allocates a blank instance for
// decoding.
func (r *Registry) Register(topic string, version int, ctor Constructor) {
	r.kinds[topic] = &registeredKind{topic: topic, version: version, constructor: ctor}
}

// RegisterUpcaster appends an upcaster transforming payloads stored at
// fromVersion into the shape expected at fromVersion+1. Upcasters must be
// registered in increasing fromVersion order for a topic.
func (r *Registry) RegisterUpcaster(topic string, fromVersion int, fn UpcastFunc) error {
	k, ok := r.kinds[topic]
	if !ok {
		return ProgrammingError(fmt.Sprintf("topic:%s unregistered", topic))
	}
	if fromVersion != len(k.upcasters)+1 {
		return ProgrammingError(fmt.Sprintf("topic:%s upcaster for version %d registered out of order", topic, fromVersion))
	}
	k.upcasters = append(k.upcasters, fn)
	return nil
}

// New allocates a blank event for topic, or ErrTranscoding if topic was
// never registered.
func (r *Registry) New(topic string) (Typer, error) {
	k, ok := r.kinds[topic]
	if !ok {
		return nil, ErrTranscoding
	}
	return k.constructor(), nil
}

// CurrentVersion returns the schema version a topic is currently
// registered at.
func (r *Registry) CurrentVersion(topic string) (int, error) {
	k, ok := r.kinds[topic]
	if !ok {
		return 0, ErrTranscoding
	}
	return k.version, nil
}

// Upcast applies every upcaster between storedVersion and the topic's
// current version, in order, and returns the resulting payload.
func (r *Registry) Upcast(topic string, storedVersion int, payload interface{}) (interface{}, error) {
	k, ok := r.kinds[topic]
	if !ok {
		return nil, ErrTranscoding
	}
	for v := storedVersion; v < k.version; v++ {
		idx := v - 1
		if idx < 0 || idx >= len(k.upcasters) {
			return nil, ProgrammingError(fmt.Sprintf("topic:%s missing upcaster from version %d", topic, v))
		}
		var err error
		payload, err = k.upcasters[idx](payload)
		if err != nil {
			return nil, err
		}
	}
	return payload, nil
}
