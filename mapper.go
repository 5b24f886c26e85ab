package eventsourcing

import (
	"encoding/json"
	"fmt"

	"github.com/quintans/faults"

	"github.com/gregbrowndev/eventsourcing/cipher"
	"github.com/gregbrowndev/eventsourcing/compressor"
	"github.com/gregbrowndev/eventsourcing/errkind"
	"github.com/gregbrowndev/eventsourcing/eventid"
	"github.com/gregbrowndev/eventsourcing/recorder"
	"github.com/gregbrowndev/eventsourcing/transcoder"
)

// Codec is satisfied by transcoder.JSON (and any custom transcoder).
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// Mapper binds event metadata and the transcode -> compress -> encrypt
// pipeline into StoredEvent records and back, including version
// upcasting.
type Mapper struct {
	codec      Codec
	registry   *Registry
	compressor compressor.Compressor
	cipher     cipher.Cipher
}

// MapperOption configures optional pipeline stages.
type MapperOption func(*Mapper)

func WithCompressor(c compressor.Compressor) MapperOption {
	return func(m *Mapper) { m.compressor = c }
}

func WithCipher(c cipher.Cipher) MapperOption {
	return func(m *Mapper) { m.cipher = c }
}

func WithCustomCodec(c Codec) MapperOption {
	return func(m *Mapper) { m.codec = c }
}

// NewMapper builds a Mapper over registry, defaulting to a plain JSON
// transcoder and no compression/encryption.
func NewMapper(registry *Registry, opts ...MapperOption) *Mapper {
	m := &Mapper{
		codec:      transcoder.New(),
		registry:   registry,
		compressor: compressor.None{},
		cipher:     cipher.None{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// FromDomain derives a StoredEvent from a positioned domain event: topic
// from the payload's kind, then transcode -> compress -> encrypt.
func (m *Mapper) FromDomain(e Event) (recorder.StoredEvent, error) {
	topic := e.Payload.EventType()
	version, err := m.registry.CurrentVersion(topic)
	if err != nil {
		return recorder.StoredEvent{}, faults.Wrap(fmt.Errorf("%w: %s", errkind.Transcoding, topic))
	}

	body, err := m.codec.Encode(e.Payload)
	if err != nil {
		return recorder.StoredEvent{}, err
	}

	envelope, err := withSchemaVersion(body, version)
	if err != nil {
		return recorder.StoredEvent{}, faults.Wrap(fmt.Errorf("%w: %v", errkind.Transcoding, err))
	}

	state, err := m.compressor.Compress(envelope)
	if err != nil {
		return recorder.StoredEvent{}, err
	}
	state, err = m.cipher.Encrypt(state)
	if err != nil {
		return recorder.StoredEvent{}, err
	}

	return recorder.StoredEvent{
		OriginatorID:      e.OriginatorID,
		OriginatorVersion: e.OriginatorVersion,
		Topic:             topic,
		State:             state,
		CreatedAt:         e.CreatedAt,
		EventID:           eventid.New(e.CreatedAt, e.OriginatorID, e.OriginatorVersion),
	}, nil
}

// ToDomain reverses the pipeline and resolves topic to an event
// constructor, running the upcaster chain if the stored schema version
// lags the topic's current version.
func (m *Mapper) ToDomain(stored recorder.StoredEvent) (Event, error) {
	plain, err := m.cipher.Decrypt(stored.State)
	if err != nil {
		return Event{}, err
	}
	envelope, err := m.compressor.Decompress(plain)
	if err != nil {
		return Event{}, err
	}

	body, storedVersion, err := withoutSchemaVersion(envelope)
	if err != nil {
		return Event{}, faults.Wrap(fmt.Errorf("%w: %v", errkind.Transcoding, err))
	}

	currentVersion, err := m.registry.CurrentVersion(stored.Topic)
	if err != nil {
		return Event{}, faults.Wrap(fmt.Errorf("%w: %s", errkind.Transcoding, stored.Topic))
	}

	if storedVersion < currentVersion {
		var raw interface{}
		if err := json.Unmarshal(body, &raw); err != nil {
			return Event{}, faults.Wrap(fmt.Errorf("%w: %v", errkind.Transcoding, err))
		}
		raw, err = m.registry.Upcast(stored.Topic, storedVersion, raw)
		if err != nil {
			return Event{}, err
		}
		body, err = json.Marshal(raw)
		if err != nil {
			return Event{}, faults.Wrap(fmt.Errorf("%w: %v", errkind.Transcoding, err))
		}
	}

	payload, err := m.registry.New(stored.Topic)
	if err != nil {
		return Event{}, err
	}
	if err := m.codec.Decode(body, payload); err != nil {
		return Event{}, err
	}

	return Event{
		OriginatorID:      stored.OriginatorID,
		OriginatorVersion: stored.OriginatorVersion,
		CreatedAt:         stored.CreatedAt,
		Payload:           payload,
	}, nil
}

// withSchemaVersion wraps an encoded payload with its schema version so
// ToDomain can decide whether to upcast, without needing a second store
// column for it.
func withSchemaVersion(body []byte, version int) ([]byte, error) {
	var data json.RawMessage = body
	return json.Marshal(struct {
		V int             `json:"__v"`
		D json.RawMessage `json:"__d"`
	}{V: version, D: data})
}

func withoutSchemaVersion(envelope []byte) ([]byte, int, error) {
	var wrapper struct {
		V int             `json:"__v"`
		D json.RawMessage `json:"__d"`
	}
	if err := json.Unmarshal(envelope, &wrapper); err != nil {
		return nil, 0, err
	}
	return wrapper.D, wrapper.V, nil
}
