// Package errkind holds the sentinel errors for the library's error
// taxonomy. It has no dependencies on the rest of the module so both the
// root package and the leaf packages (transcoder, cipher, compressor,
// recorder, store/*) can wrap these sentinels without import cycles.
package errkind

import "errors"

var (
	// Conflict: optimistic concurrency violation on append. Not fatal;
	// the caller may reload and retry.
	Conflict = errors.New("concurrent modification")

	// NotFound: no events (and no snapshot) for an aggregate id, or the
	// requested version exceeds stored history.
	NotFound = errors.New("aggregate not found")

	// Transcoding: unknown type or malformed payload at encode/decode.
	Transcoding = errors.New("transcoding error")

	// Integrity: ciphertext tampering, decompression failure, or a
	// corrupted record.
	Integrity = errors.New("integrity error")

	// Persistence: backend I/O failure. Caller-classified retryable vs
	// fatal per backend documentation.
	Persistence = errors.New("persistence error")

	// Programming: contract violation (empty batch, non-monotonic
	// versions in a batch, unregistered topic).
	Programming = errors.New("programming error")
)
