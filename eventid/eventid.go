// Package eventid defines the per-event identifier stored, uniquely
// indexed, with each event. It is distinct from a notification id: this ID
// is a time+aggregate sortable string, useful as a natural row key and
// for cross-backend ordering hints, while notification ids are the dense
// ℕ⁺ sequence required by the notification log (see package recorder).
package eventid

import (
	"encoding/hex"
	"fmt"
	"time"
)

// EventID identifies a single stored event. It sorts lexically in
// commit-time order for a given aggregate because it is built from a
// millisecond timestamp followed by the aggregate hash and version.
type EventID string

// New builds an EventID from the event's commit time, the owning
// aggregate id and its version. Two events for the same aggregate always
// produce distinct, increasing ids because version is monotonic.
func New(createdAt time.Time, aggregateID string, version uint32) EventID {
	ms := uint64(createdAt.UTC().UnixMilli())
	h := Hash(aggregateID)
	buf := make([]byte, 8+4+4)
	putUint64(buf[0:8], ms)
	putUint32(buf[8:12], h)
	putUint32(buf[12:16], version)
	return EventID(hex.EncodeToString(buf))
}

// IsZero reports whether the id is the empty value.
func (id EventID) IsZero() bool {
	return id == ""
}

func (id EventID) String() string {
	return string(id)
}

// Hash is a small FNV-1a style hash used to derive a stable partition
// key from an aggregate id without pulling in a full hashing package.
func Hash(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func putUint32(b []byte, v uint32) {
	for i := 3; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// MustParseVersion is a guard for callers constructing a batch: it
// returns an error unless the version is positive.
func MustParseVersion(v uint32) error {
	if v == 0 {
		return fmt.Errorf("eventid: version must be >= 1, got %d", v)
	}
	return nil
}
