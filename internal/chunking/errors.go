package chunking

import "errors"

// Sentinel errors surfaced by the session API. Call sites wrap them with
// context via fmt.Errorf("%w: ..."); callers test with errors.Is.
var (
	// ErrSessionNotFound indicates the session id never existed or has
	// expired. The two cases are indistinguishable to the caller.
	ErrSessionNotFound = errors.New("chunk session not found")

	// ErrChunkOutOfRange indicates a chunk number outside [1, total_chunks].
	ErrChunkOutOfRange = errors.New("chunk number out of range")
)
