package chunking

import (
	"reflect"
	"sort"
	"time"

	"github.com/lakefront-data/mcp-dataquery/internal/tokens"
)

// ChunkEnvelope is the wire shape of one chunk of a split response.
//
// The first envelope of a session carries the session id and continuation
// instructions; envelopes served by GetChunk carry only the chunk position
// and data.
type ChunkEnvelope struct {
	ChunkNumber int    `json:"chunk_number"`
	TotalChunks int    `json:"total_chunks"`
	SessionID   string `json:"session_id,omitempty"`
	Data        any    `json:"data"`
	Message     string `json:"message,omitempty"`
}

// SessionInfo describes a live chunk session.
type SessionInfo struct {
	TotalChunks      int       `json:"total_chunks"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresInSeconds int       `json:"expires_in_seconds"`
}

// session holds the immutable chunk set for one oversized response.
type session struct {
	id          string
	chunks      []any
	totalChunks int
	createdAt   time.Time
}

// isExpired reports whether the session's age exceeds ttl.
func (s *session) isExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.createdAt) > ttl
}

// dominantIterable locates the collection to split inside data. The
// convention is part of the API contract: a slice payload is split itself;
// for a map payload the top-level key whose slice serializes largest is
// split, ties broken by the lexicographically smallest key. Anything else
// has no iterable and is treated as a single indivisible item by the
// caller.
//
// Selection goes by serialized size rather than element count so that a
// result with few large rows still splits the rows, not some incidental
// list of labels that happens to have more entries.
func dominantIterable(data any) ([]any, bool) {
	if items, ok := sliceElements(data); ok {
		return items, true
	}

	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var best []any
	bestSize := -1
	for _, k := range keys {
		items, ok := sliceElements(m[k])
		if !ok {
			continue
		}
		if size := serializedSize(m[k]); size > bestSize {
			best = items
			bestSize = size
		}
	}

	return best, bestSize >= 0
}

// serializedSize is the canonical byte length of v. Unserializable values
// rank smallest so any representable collection beats them.
func serializedSize(v any) int {
	raw, err := tokens.MarshalCanonical(v)
	if err != nil {
		return 0
	}
	return len(raw)
}

// sliceElements normalizes any slice value to []any without copying the
// elements themselves.
func sliceElements(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []map[string]any:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case []byte:
		// Raw bytes are one opaque value, not an iterable to split.
		return nil, false
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
