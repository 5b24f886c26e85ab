package eventsourcing

import (
	"strconv"

	"github.com/quintans/faults"

	"github.com/gregbrowndev/eventsourcing/errkind"
)

// Re-exported so callers can do `errors.Is(err, eventsourcing.ErrConflict)`
// without importing errkind directly.
var (
	ErrConflict    = errkind.Conflict
	ErrNotFound    = errkind.NotFound
	ErrTranscoding = errkind.Transcoding
	ErrIntegrity   = errkind.Integrity
	ErrPersistence = errkind.Persistence
	ErrProgramming = errkind.Programming
)

// ConflictError reports an optimistic-concurrency collision for the given
// aggregate at the given version.
func ConflictError(originatorID string, version uint32) error {
	return faults.Wrap(&taxonomyError{sentinel: errkind.Conflict, originatorID: originatorID, version: version})
}

// NotFoundError reports that no events or snapshot exist for originatorID.
func NotFoundError(originatorID string) error {
	return faults.Wrap(&taxonomyError{sentinel: errkind.NotFound, originatorID: originatorID})
}

// ProgrammingError reports a contract violation, e.g. an empty batch or a
// non-monotonic version sequence.
func ProgrammingError(msg string) error {
	return faults.Wrap(&taxonomyError{sentinel: errkind.Programming, msg: msg})
}

type taxonomyError struct {
	sentinel     error
	originatorID string
	version      uint32
	msg          string
}

func (e *taxonomyError) Error() string {
	if e.msg != "" {
		return e.sentinel.Error() + ": " + e.msg
	}
	if e.version != 0 {
		return e.sentinel.Error() + ": " + e.originatorID + " at version " + strconv.FormatUint(uint64(e.version), 10)
	}
	if e.originatorID != "" {
		return e.sentinel.Error() + ": " + e.originatorID
	}
	return e.sentinel.Error()
}

func (e *taxonomyError) Unwrap() error {
	return e.sentinel
}
