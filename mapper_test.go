package eventsourcing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregbrowndev/eventsourcing"
	"github.com/gregbrowndev/eventsourcing/cipher"
	"github.com/gregbrowndev/eventsourcing/compressor"
	"github.com/gregbrowndev/eventsourcing/encoding"
)

func TestMapperRoundTrip(t *testing.T) {
	registry, _ := newWorldRegistries()
	mapper := eventsourcing.NewMapper(registry)

	e := eventsourcing.Event{
		OriginatorID:      "earth",
		OriginatorVersion: 1,
		CreatedAt:         time.Now().UTC().Truncate(time.Millisecond),
		Payload:           &WorldCreated{Name: "Earth"},
	}

	stored, err := mapper.FromDomain(e)
	require.NoError(t, err)
	assert.Equal(t, "world:created", stored.Topic)
	assert.NotEmpty(t, stored.EventID)

	back, err := mapper.ToDomain(stored)
	require.NoError(t, err)
	assert.Equal(t, e.OriginatorID, back.OriginatorID)
	assert.Equal(t, e.OriginatorVersion, back.OriginatorVersion)
	assert.Equal(t, e.CreatedAt, back.CreatedAt)
	assert.Equal(t, e.Payload, back.Payload)
}

func TestMapperRoundTripsBase64Payload(t *testing.T) {
	registry, _ := newWorldRegistries()
	mapper := eventsourcing.NewMapper(registry)

	photo := make([]byte, 256)
	for i := range photo {
		photo[i] = byte(i)
	}

	e := eventsourcing.Event{
		OriginatorID:      "earth",
		OriginatorVersion: 1,
		CreatedAt:         time.Now().UTC(),
		Payload:           &WorldPhotographed{Photo: photo},
	}

	stored, err := mapper.FromDomain(e)
	require.NoError(t, err)

	back, err := mapper.ToDomain(stored)
	require.NoError(t, err)
	got := back.Payload.(*WorldPhotographed)
	assert.Equal(t, encoding.Base64(photo), got.Photo)
}

func TestMapperWithCipherAndCompressorHidesPlaintext(t *testing.T) {
	registry, _ := newWorldRegistries()
	key, err := cipher.GenerateKey(0)
	require.NoError(t, err)
	c, err := cipher.NewChaCha20Poly1305(key)
	require.NoError(t, err)
	z, err := compressor.NewZstd()
	require.NoError(t, err)

	mapper := eventsourcing.NewMapper(registry, eventsourcing.WithCipher(c), eventsourcing.WithCompressor(z))

	e := eventsourcing.Event{
		OriginatorID:      "earth",
		OriginatorVersion: 1,
		CreatedAt:         time.Now().UTC(),
		Payload:           &WorldEventHappened{Description: "dinosaurs"},
	}

	stored, err := mapper.FromDomain(e)
	require.NoError(t, err)
	assert.NotContains(t, string(stored.State), "dinosaurs")

	back, err := mapper.ToDomain(stored)
	require.NoError(t, err)
	assert.Equal(t, e.Payload, back.Payload)
}

func TestMapperWithoutCipherExposesPlaintext(t *testing.T) {
	registry, _ := newWorldRegistries()
	mapper := eventsourcing.NewMapper(registry)

	e := eventsourcing.Event{
		OriginatorID:      "earth",
		OriginatorVersion: 1,
		CreatedAt:         time.Now().UTC(),
		Payload:           &WorldEventHappened{Description: "trucks"},
	}

	stored, err := mapper.FromDomain(e)
	require.NoError(t, err)
	assert.Contains(t, string(stored.State), "trucks")
}

func TestMapperUpcastsOlderSchemaVersion(t *testing.T) {
	registry := eventsourcing.NewRegistry()
	registry.Register("world:renamed", 2, func() eventsourcing.Typer { return &renamedV2{} })
	require.NoError(t, registry.RegisterUpcaster("world:renamed", 1, func(payload interface{}) (interface{}, error) {
		m := payload.(map[string]interface{})
		m["NewName"] = m["Name"]
		delete(m, "Name")
		return m, nil
	}))

	mapper := eventsourcing.NewMapper(registry)

	// Simulate a payload persisted under schema version 1 by building the
	// envelope by hand, the way an old row would read back.
	oldPayload := &renamedV1{Name: "Terra"}
	oldRegistry := eventsourcing.NewRegistry()
	oldRegistry.Register("world:renamed", 1, func() eventsourcing.Typer { return &renamedV1{} })
	oldMapper := eventsourcing.NewMapper(oldRegistry)
	stored, err := oldMapper.FromDomain(eventsourcing.Event{
		OriginatorID: "earth", OriginatorVersion: 1, Payload: oldPayload,
	})
	require.NoError(t, err)

	back, err := mapper.ToDomain(stored)
	require.NoError(t, err)
	upcasted := back.Payload.(*renamedV2)
	assert.Equal(t, "Terra", upcasted.NewName)
}

type renamedV1 struct {
	Name string
}

func (*renamedV1) EventType() string { return "world:renamed" }

type renamedV2 struct {
	NewName string
}

func (*renamedV2) EventType() string { return "world:renamed" }
