package chunking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEstimator charges a fixed token cost per item of the iterable.
type stubEstimator struct {
	perItem int
}

func (s stubEstimator) EstimateTokens(data any, model string) (int, error) {
	if items, ok := data.([]any); ok {
		return len(items) * s.perItem, nil
	}
	return s.perItem, nil
}

// failingEstimator always reports a serialization failure.
type failingEstimator struct{}

func (failingEstimator) EstimateTokens(any, string) (int, error) {
	return 0, errors.New("serialize for token estimation: unsupported type")
}

// mockSessionMetrics records session table events for test assertions.
type mockSessionMetrics struct {
	mu      sync.Mutex
	created int
	served  int
	removed map[string]int
	active  int
}

func newMockSessionMetrics() *mockSessionMetrics {
	return &mockSessionMetrics{removed: make(map[string]int)}
}

func (m *mockSessionMetrics) RecordSessionCreated(_ context.Context, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *mockSessionMetrics) RecordChunkServed(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.served++
}

func (m *mockSessionMetrics) RecordSessionRemoved(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed[reason]++
}

func (m *mockSessionMetrics) SetActiveSessions(_ context.Context, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = count
}

func (m *mockSessionMetrics) removedBy(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removed[reason]
}

// makeRows builds n distinct row objects in a stable order.
func makeRows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{
			"id":   i,
			"name": fmt.Sprintf("row-%05d", i),
		}
	}
	return rows
}

func TestCreateChunkedResponsePlansByBudget(t *testing.T) {
	// 5000 rows at ~50 tokens each against a 9000 token budget:
	// 180 items per chunk, 28 chunks, final chunk holds 140 rows.
	svc := NewService(stubEstimator{perItem: 50})
	data := map[string]any{"rows": makeRows(5000), "row_count": 5000}

	env, err := svc.CreateChunkedResponse(context.Background(), data, "gpt-4", 9000)
	require.NoError(t, err)

	assert.Equal(t, 1, env.ChunkNumber)
	assert.Equal(t, 28, env.TotalChunks)
	assert.NotEmpty(t, env.SessionID)
	assert.Contains(t, env.Message, "chunk 1 of 28")

	first, ok := env.Data.([]any)
	require.True(t, ok, "chunk data should be a slice")
	assert.Len(t, first, 180)

	last, err := svc.GetChunk(context.Background(), env.SessionID, 28)
	require.NoError(t, err)
	assert.Equal(t, 28, last.ChunkNumber)
	assert.Len(t, last.Data.([]any), 140)
}

func TestChunkCompleteness(t *testing.T) {
	// Concatenating chunks 1..N must reconstruct the iterable exactly.
	svc := NewService(stubEstimator{perItem: 10})
	rows := makeRows(437)

	env, err := svc.CreateChunkedResponse(context.Background(), map[string]any{"rows": rows}, "gpt-4", 100)
	require.NoError(t, err)
	assert.Equal(t, 44, env.TotalChunks, "ceil(437/10) chunks")

	var rebuilt []any
	for k := 1; k <= env.TotalChunks; k++ {
		chunk, err := svc.GetChunk(context.Background(), env.SessionID, k)
		require.NoError(t, err)

		items := chunk.Data.([]any)
		assert.LessOrEqual(t, len(items), 10, "chunk %d exceeds per-chunk capacity", k)
		rebuilt = append(rebuilt, items...)
	}

	require.Len(t, rebuilt, len(rows))
	for i, row := range rows {
		assert.Equal(t, row, rebuilt[i], "row %d out of order or altered", i)
	}
}

func TestGetChunkIdempotent(t *testing.T) {
	svc := NewService(stubEstimator{perItem: 10})

	env, err := svc.CreateChunkedResponse(context.Background(), makeRows(50), "gpt-4", 100)
	require.NoError(t, err)

	first, err := svc.GetChunk(context.Background(), env.SessionID, 3)
	require.NoError(t, err)
	second, err := svc.GetChunk(context.Background(), env.SessionID, 3)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, first.TotalChunks, second.TotalChunks)
}

func TestGetChunkSessionNotFound(t *testing.T) {
	svc := NewService(stubEstimator{perItem: 10})

	_, err := svc.GetChunk(context.Background(), "nonexistent", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = svc.GetSessionInfo(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestGetChunkOutOfRange(t *testing.T) {
	// 25 items at 20 tokens each with a 100 token budget: 5 chunks.
	svc := NewService(stubEstimator{perItem: 20})

	env, err := svc.CreateChunkedResponse(context.Background(), makeRows(25), "gpt-4", 100)
	require.NoError(t, err)
	require.Equal(t, 5, env.TotalChunks)

	for _, chunkNumber := range []int{0, 6, -1} {
		_, err := svc.GetChunk(context.Background(), env.SessionID, chunkNumber)
		require.Error(t, err, "chunk %d should be rejected", chunkNumber)
		assert.True(t, errors.Is(err, ErrChunkOutOfRange))
	}

	// Boundary chunks are valid.
	_, err = svc.GetChunk(context.Background(), env.SessionID, 1)
	assert.NoError(t, err)
	_, err = svc.GetChunk(context.Background(), env.SessionID, 5)
	assert.NoError(t, err)
}

func TestSessionExpiry(t *testing.T) {
	currentTime := time.Now()
	mockClock := func() time.Time { return currentTime }

	recorder := newMockSessionMetrics()
	svc := NewService(stubEstimator{perItem: 10},
		WithConfig(Config{SessionTTL: 60 * time.Minute}),
		WithMetrics(recorder),
		withClock(mockClock),
	)

	env, err := svc.CreateChunkedResponse(context.Background(), makeRows(50), "gpt-4", 100)
	require.NoError(t, err)

	// Still retrievable just inside the TTL.
	currentTime = currentTime.Add(59 * time.Minute)
	_, err = svc.GetChunk(context.Background(), env.SessionID, 1)
	require.NoError(t, err)

	// Past the TTL the sweep removes the entry and lookups fail.
	currentTime = currentTime.Add(2 * time.Minute)
	_, err = svc.GetChunk(context.Background(), env.SessionID, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.Equal(t, 0, svc.SessionCount(), "expired session should be absent from the table")
	assert.Equal(t, 1, recorder.removedBy(RemovalReasonExpired))
}

func TestGetSessionInfo(t *testing.T) {
	currentTime := time.Now()
	mockClock := func() time.Time { return currentTime }

	svc := NewService(stubEstimator{perItem: 10},
		WithConfig(Config{SessionTTL: 60 * time.Minute}),
		withClock(mockClock),
	)

	createdAt := currentTime
	env, err := svc.CreateChunkedResponse(context.Background(), makeRows(50), "gpt-4", 100)
	require.NoError(t, err)

	currentTime = currentTime.Add(10 * time.Minute)

	info, err := svc.GetSessionInfo(context.Background(), env.SessionID)
	require.NoError(t, err)
	assert.Equal(t, env.TotalChunks, info.TotalChunks)
	assert.Equal(t, createdAt, info.CreatedAt)
	assert.Equal(t, int((50 * time.Minute).Seconds()), info.ExpiresInSeconds)
}

func TestSingleOversizedItem(t *testing.T) {
	// One item costing far more than the budget still yields a valid
	// 1-of-1 chunk: the budget is best-effort, not a hard cap on
	// indivisible items.
	svc := NewService(stubEstimator{perItem: 50000})

	env, err := svc.CreateChunkedResponse(context.Background(), makeRows(1), "gpt-4", 9000)
	require.NoError(t, err)

	assert.Equal(t, 1, env.ChunkNumber)
	assert.Equal(t, 1, env.TotalChunks)
	assert.Len(t, env.Data.([]any), 1)
}

func TestZeroItems(t *testing.T) {
	svc := NewService(stubEstimator{perItem: 10})

	env, err := svc.CreateChunkedResponse(context.Background(), map[string]any{"rows": []any{}}, "gpt-4", 100)
	require.NoError(t, err)

	assert.Equal(t, 1, env.TotalChunks)
	assert.Empty(t, env.Data.([]any))

	chunk, err := svc.GetChunk(context.Background(), env.SessionID, 1)
	require.NoError(t, err)
	assert.Empty(t, chunk.Data.([]any))
}

func TestNoIterablePayload(t *testing.T) {
	svc := NewService(stubEstimator{perItem: 50000})
	payload := map[string]any{"blob": "a very large opaque value"}

	env, err := svc.CreateChunkedResponse(context.Background(), payload, "gpt-4", 10)
	require.NoError(t, err)

	require.Equal(t, 1, env.TotalChunks)
	items := env.Data.([]any)
	require.Len(t, items, 1)
	assert.Equal(t, payload, items[0])
}

func TestMaxSessionsEviction(t *testing.T) {
	currentTime := time.Now()
	mockClock := func() time.Time { return currentTime }

	recorder := newMockSessionMetrics()
	svc := NewService(stubEstimator{perItem: 10},
		WithConfig(Config{SessionTTL: time.Hour, MaxSessions: 2}),
		WithMetrics(recorder),
		withClock(mockClock),
	)

	var ids []string
	for i := 0; i < 3; i++ {
		env, err := svc.CreateChunkedResponse(context.Background(), makeRows(30), "gpt-4", 100)
		require.NoError(t, err)
		ids = append(ids, env.SessionID)
		currentTime = currentTime.Add(time.Minute)
	}

	assert.Equal(t, 2, svc.SessionCount())
	assert.Equal(t, 1, recorder.removedBy(RemovalReasonEvicted))

	// The oldest session was evicted; the newer two survive.
	_, err := svc.GetChunk(context.Background(), ids[0], 1)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	_, err = svc.GetChunk(context.Background(), ids[1], 1)
	assert.NoError(t, err)
	_, err = svc.GetChunk(context.Background(), ids[2], 1)
	assert.NoError(t, err)
}

func TestCreateChunkedResponseEstimatorError(t *testing.T) {
	svc := NewService(failingEstimator{})

	_, err := svc.CreateChunkedResponse(context.Background(), makeRows(10), "gpt-4", 100)
	require.Error(t, err)
	assert.Equal(t, 0, svc.SessionCount(), "failed planning should not create a session")
}

func TestDominantIterable(t *testing.T) {
	tests := []struct {
		name      string
		data      any
		wantFound bool
		wantLen   int
	}{
		{
			name:      "slice payload is split itself",
			data:      []any{1, 2, 3},
			wantFound: true,
			wantLen:   3,
		},
		{
			name:      "typed slice payload",
			data:      makeRows(4),
			wantFound: true,
			wantLen:   4,
		},
		{
			name: "largest slice wins",
			data: map[string]any{
				"columns": []any{"id", "name"},
				"rows":    makeRows(5),
			},
			wantFound: true,
			wantLen:   5,
		},
		{
			name: "bulk beats element count",
			data: map[string]any{
				// Two fat rows outweigh five short labels.
				"labels": []any{"a", "b", "c", "d", "e"},
				"rows":   makeRows(2),
			},
			wantFound: true,
			wantLen:   2,
		},
		{
			name: "size tie broken by smallest key",
			data: map[string]any{
				"b": []any{3, 4},
				"a": []any{1, 2},
			},
			wantFound: true,
			wantLen:   2,
		},
		{
			name:      "scalar payload has no iterable",
			data:      map[string]any{"value": 42},
			wantFound: false,
		},
		{
			name:      "bytes are not an iterable",
			data:      map[string]any{"blob": []byte("abc")},
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, found := dominantIterable(tt.data)
			require.Equal(t, tt.wantFound, found)
			if found {
				assert.Len(t, items, tt.wantLen)
			}
		})
	}

	// The tie-break picks key "a": its first element is 1, not 3.
	items, found := dominantIterable(map[string]any{
		"b": []any{3, 4},
		"a": []any{1, 2},
	})
	require.True(t, found)
	assert.Equal(t, 1, items[0])
}

func TestServiceStats(t *testing.T) {
	svc := NewService(stubEstimator{perItem: 10},
		WithConfig(Config{SessionTTL: 30 * time.Minute, MaxSessions: 100}))

	_, err := svc.CreateChunkedResponse(context.Background(), makeRows(50), "gpt-4", 100)
	require.NoError(t, err)

	stats := svc.Stats()
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 100, stats.MaxSessions)
	assert.Equal(t, 30*time.Minute, stats.SessionTTL)
}
