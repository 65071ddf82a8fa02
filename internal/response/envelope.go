package response

import (
	"github.com/lakefront-data/mcp-dataquery/internal/chunking"
)

// StatusError is the status value carried by every error envelope.
const StatusError = "error"

// Outcome labels used on envelopes and metrics.
const (
	OutcomeComplete = "complete"
	OutcomeChunked  = "chunked"
	OutcomeError    = "error"
)

// ErrorKind classifies an error envelope for programmatic handling.
type ErrorKind string

// Error kinds emitted by the formatter.
const (
	KindSessionNotFound      ErrorKind = "session_not_found"
	KindChunkOutOfRange      ErrorKind = "chunk_out_of_range"
	KindSerializationFailure ErrorKind = "serialization_failure"
	KindReadOnlyViolation    ErrorKind = "read_only_violation"
	KindUnknownDatabase      ErrorKind = "unknown_database"
	KindUnknownTable         ErrorKind = "unknown_table"
	KindQueryFailed          ErrorKind = "query_failed"
	KindInvalidRequest       ErrorKind = "invalid_request"
	KindInternalError        ErrorKind = "internal_error"
)

// ErrorPayload is the fixed wire shape of an error envelope.
type ErrorPayload struct {
	Status  string         `json:"status"`
	Kind    ErrorKind      `json:"error_kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Envelope is one formatted response: the complete payload, the first
// chunk of a new session, or an error.
type Envelope struct {
	outcome string
	payload any
}

// Payload returns the wire value.
func (e *Envelope) Payload() any { return e.payload }

// Chunked reports whether the envelope is the first chunk of a session.
func (e *Envelope) Chunked() bool { return e.outcome == OutcomeChunked }

// IsError reports whether the envelope carries an error payload.
func (e *Envelope) IsError() bool { return e.outcome == OutcomeError }

// Outcome labels the envelope for logging and metrics.
func (e *Envelope) Outcome() string { return e.outcome }

// Chunk returns the chunk payload, or nil for non-chunked envelopes.
func (e *Envelope) Chunk() *chunking.ChunkEnvelope {
	c, _ := e.payload.(*chunking.ChunkEnvelope)
	return c
}

// Err returns the error payload, or nil for non-error envelopes.
func (e *Envelope) Err() *ErrorPayload {
	p, _ := e.payload.(*ErrorPayload)
	return p
}
