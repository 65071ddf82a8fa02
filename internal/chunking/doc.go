// Package chunking splits oversized payloads into ordered, token-bounded
// chunks and serves them back through a session-based pagination protocol.
//
// A split stores its chunks under a fresh opaque session id in an in-memory
// table owned by one Service instance. Chunks are numbered 1..N in strict
// original-item order; retrieval by absolute number is idempotent and
// order-independent until the session expires. Sessions are immutable after
// creation and removed only by the TTL sweep or, at capacity, by oldest-first
// eviction.
//
// Expiry is opportunistic: every create and read call sweeps the table for
// entries older than the TTL. There is no background reaper, so staleness is
// bounded by the time since the table was last touched.
package chunking
