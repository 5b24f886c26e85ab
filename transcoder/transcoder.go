// Package transcoder maps domain values to and from a neutral,
// self-describing byte encoding (JSON with typed envelopes for
// polymorphic fields).
package transcoder

import (
	"encoding/json"
	"fmt"

	"github.com/quintans/faults"

	"github.com/gregbrowndev/eventsourcing/errkind"
)

// Transcoder is the contract: Encode(v) -> bytes, Decode(bytes, &v).
// decode(encode(v)) must equal v for every registered type.
type Transcoder interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// Serializer turns a registered domain value into its wire form.
type Serializer func(v interface{}) ([]byte, error)

// Deserializer rebuilds a registered domain value from its wire form.
type Deserializer func(data []byte) (interface{}, error)

type typeCodec struct {
	serialize   Serializer
	deserialize Deserializer
}

// Named is implemented by domain values that want to travel through a
// polymorphic (interface-typed) field and therefore need an explicit type
// tag in the envelope, e.g. a field typed `interface{ Amount() }`.
type Named interface {
	TranscoderName() string
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// JSON is the default Transcoder: plain `encoding/json` for ordinary
// struct values, plus a name -> (serializer, deserializer) registry for
// values that implement Named and therefore need a tagged envelope to
// survive a round trip through an `interface{}`-typed field.
type JSON struct {
	byName map[string]typeCodec
}

// New returns an empty JSON transcoder. Register custom types before use.
func New() *JSON {
	return &JSON{byName: map[string]typeCodec{}}
}

// Register associates a type name with its serializer/deserializer pair.
// The name must match what the registered value's TranscoderName returns.
func (j *JSON) Register(name string, ser Serializer, deser Deserializer) {
	j.byName[name] = typeCodec{serialize: ser, deserialize: deser}
}

// Encode serializes v. Values implementing Named are wrapped in a typed
// envelope so Decode can reconstruct them without knowing the concrete
// type ahead of time; everything else uses plain JSON.
func (j *JSON) Encode(v interface{}) ([]byte, error) {
	if named, ok := v.(Named); ok {
		name := named.TranscoderName()
		codec, ok := j.byName[name]
		if !ok {
			return nil, faults.Wrap(fmt.Errorf("%w: unregistered type %q", errkind.Transcoding, name))
		}
		raw, err := codec.serialize(v)
		if err != nil {
			return nil, faults.Wrap(fmt.Errorf("%w: %v", errkind.Transcoding, err))
		}
		body, err := json.Marshal(envelope{Type: name, Data: raw})
		if err != nil {
			return nil, faults.Wrap(fmt.Errorf("%w: %v", errkind.Transcoding, err))
		}
		return body, nil
	}

	body, err := json.Marshal(v)
	if err != nil {
		return nil, faults.Wrap(fmt.Errorf("%w: %v", errkind.Transcoding, err))
	}
	return body, nil
}

// Decode reconstructs v from data. If v is a non-nil *interface{} and
// data is a typed envelope, the registered deserializer produces the
// concrete value. Otherwise data is unmarshalled directly into v.
func (j *JSON) Decode(data []byte, v interface{}) error {
	if target, ok := v.(*interface{}); ok {
		var env envelope
		if err := json.Unmarshal(data, &env); err == nil && env.Type != "" {
			codec, ok := j.byName[env.Type]
			if !ok {
				return faults.Wrap(fmt.Errorf("%w: unregistered type %q", errkind.Transcoding, env.Type))
			}
			value, err := codec.deserialize(env.Data)
			if err != nil {
				return faults.Wrap(fmt.Errorf("%w: %v", errkind.Transcoding, err))
			}
			*target = value
			return nil
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return faults.Wrap(fmt.Errorf("%w: malformed payload: %v", errkind.Transcoding, err))
	}
	return nil
}
