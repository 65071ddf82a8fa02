package chunking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session removal reasons for metrics.
const (
	// RemovalReasonExpired indicates a session removed by the TTL sweep.
	RemovalReasonExpired = "expired"

	// RemovalReasonEvicted indicates the oldest session removed because
	// the table was at capacity.
	RemovalReasonEvicted = "evicted"
)

// Config holds configuration options for the Service.
type Config struct {
	// SessionTTL is how long a chunk session stays retrievable after
	// creation. Expired sessions are removed by the on-access sweep.
	//
	// Default: 60 minutes.
	SessionTTL time.Duration

	// MaxSessions bounds the session table. At capacity the oldest
	// session is evicted before a new one is stored, so a burst of
	// oversized responses cannot grow memory without bound between
	// sweeps.
	//
	// Default: 256.
	MaxSessions int

	// RetrievalHint is included in the first chunk's message to tell the
	// caller how to fetch the remaining chunks.
	RetrievalHint string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SessionTTL:    60 * time.Minute,
		MaxSessions:   256,
		RetrievalHint: "Request the remaining chunks with get_chunk using this session_id.",
	}
}

// TokenEstimator is the estimation capability the service needs.
// Satisfied by *tokens.Estimator.
type TokenEstimator interface {
	EstimateTokens(data any, model string) (int, error)
}

// MetricsRecorder defines the interface for recording session table events.
// This decouples the service from the concrete instrumentation
// implementation.
type MetricsRecorder interface {
	// RecordSessionCreated records the creation of a chunk session.
	RecordSessionCreated(ctx context.Context, totalChunks int)

	// RecordChunkServed records one chunk served by GetChunk.
	RecordChunkServed(ctx context.Context)

	// RecordSessionRemoved records a session removal with its reason.
	RecordSessionRemoved(ctx context.Context, reason string)

	// SetActiveSessions sets the current session table size gauge.
	SetActiveSessions(ctx context.Context, count int)
}

// noopMetricsRecorder is a no-op implementation of MetricsRecorder.
type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordSessionCreated(context.Context, int)    {}
func (noopMetricsRecorder) RecordChunkServed(context.Context)            {}
func (noopMetricsRecorder) RecordSessionRemoved(context.Context, string) {}
func (noopMetricsRecorder) SetActiveSessions(context.Context, int)       {}

// Service splits oversized payloads into chunk sessions and serves the
// stored chunks back by session id and 1-based chunk number.
//
// The session table is the only shared mutable state in the engine and is
// guarded by a mutex because MCP transports serve concurrent callers. Each
// Service owns its table exclusively; independent instances are fully
// isolated.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*session

	config    Config
	estimator TokenEstimator
	logger    *slog.Logger
	metrics   MetricsRecorder

	// newID generates session identifiers; replaced in tests.
	newID func() string

	// now is a clock abstraction for deterministic expiry tests.
	now func() time.Time
}

// Option is a functional option for configuring a Service.
type Option func(*Service)

// WithConfig sets the service configuration.
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the service.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// withClock sets the clock function for testing.
func withClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// withIDGenerator sets the session id generator for testing.
func withIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// NewService creates a Service with the provided options. The estimator is
// required for chunk planning.
func NewService(estimator TokenEstimator, opts ...Option) *Service {
	s := &Service{
		sessions:  make(map[string]*session),
		config:    DefaultConfig(),
		estimator: estimator,
		logger:    slog.Default(),
		metrics:   noopMetricsRecorder{},
		newID: func() string {
			return uuid.New().String()
		},
		now: time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.config.SessionTTL <= 0 {
		s.config.SessionTTL = DefaultConfig().SessionTTL
	}
	if s.config.MaxSessions <= 0 {
		s.config.MaxSessions = DefaultConfig().MaxSessions
	}
	if s.config.RetrievalHint == "" {
		s.config.RetrievalHint = DefaultConfig().RetrievalHint
	}

	return s
}

// CreateChunkedResponse splits data into token-bounded chunks, stores them
// under a fresh session, and returns the first chunk with continuation
// instructions.
//
// The budget is best-effort: a single item that alone exceeds it is still
// delivered as a valid 1-of-1 chunk rather than failing.
func (s *Service) CreateChunkedResponse(ctx context.Context, data any, model string, budget int) (*ChunkEnvelope, error) {
	if s.estimator == nil {
		return nil, errors.New("chunking: no token estimator configured")
	}

	items, ok := dominantIterable(data)
	if !ok {
		// Nothing splittable: the whole payload is one indivisible item.
		items = []any{data}
	}

	itemsPerChunk := 1
	if len(items) > 0 {
		estimate, err := s.estimator.EstimateTokens(items, model)
		if err != nil {
			return nil, fmt.Errorf("estimate iterable for chunk planning: %w", err)
		}

		perItem := float64(estimate) / float64(len(items))
		if perItem > 0 {
			itemsPerChunk = int(float64(budget) / perItem)
			if itemsPerChunk < 1 {
				itemsPerChunk = 1
			}
		}
	}

	chunks := make([]any, 0, (len(items)+itemsPerChunk-1)/itemsPerChunk)
	for start := 0; start < len(items); start += itemsPerChunk {
		end := min(start+itemsPerChunk, len(items))
		chunks = append(chunks, items[start:end])
	}
	if len(chunks) == 0 {
		// Zero items still produce a single trivial chunk.
		chunks = append(chunks, []any{})
	}

	now := s.now()
	sess := &session{
		id:          s.newID(),
		chunks:      chunks,
		totalChunks: len(chunks),
		createdAt:   now,
	}

	s.mu.Lock()
	s.sweepExpiredLocked(ctx, now)
	s.evictIfNeededLocked(ctx)
	s.sessions[sess.id] = sess
	active := len(s.sessions)
	s.mu.Unlock()

	s.metrics.RecordSessionCreated(ctx, sess.totalChunks)
	s.metrics.SetActiveSessions(ctx, active)

	s.logger.Debug("Created chunk session",
		"session_id", sess.id,
		"total_chunks", sess.totalChunks,
		"items", len(items),
		"items_per_chunk", itemsPerChunk,
		"budget", budget)

	return &ChunkEnvelope{
		ChunkNumber: 1,
		TotalChunks: sess.totalChunks,
		SessionID:   sess.id,
		Data:        chunks[0],
		Message:     s.continuationMessage(sess),
	}, nil
}

// GetChunk returns the stored chunk for the given session and 1-based chunk
// number, verbatim as stored. Repeated calls for the same chunk return
// identical data until the session expires.
func (s *Service) GetChunk(ctx context.Context, sessionID string, chunkNumber int) (*ChunkEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepExpiredLocked(ctx, s.now())

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	if chunkNumber < 1 || chunkNumber > sess.totalChunks {
		return nil, fmt.Errorf("%w: chunk %d of session %q (valid range 1-%d)",
			ErrChunkOutOfRange, chunkNumber, sessionID, sess.totalChunks)
	}

	s.metrics.RecordChunkServed(ctx)

	return &ChunkEnvelope{
		ChunkNumber: chunkNumber,
		TotalChunks: sess.totalChunks,
		Data:        sess.chunks[chunkNumber-1],
	}, nil
}

// GetSessionInfo returns metadata for a live session.
func (s *Service) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepExpiredLocked(ctx, now)

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}

	remaining := s.config.SessionTTL - now.Sub(sess.createdAt)
	if remaining < 0 {
		remaining = 0
	}

	return &SessionInfo{
		TotalChunks:      sess.totalChunks,
		CreatedAt:        sess.createdAt,
		ExpiresInSeconds: int(remaining.Seconds()),
	}, nil
}

// SessionCount returns the current number of live sessions.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Stats describes the session table for monitoring.
type Stats struct {
	// ActiveSessions is the current number of live sessions.
	ActiveSessions int

	// MaxSessions is the configured table capacity.
	MaxSessions int

	// SessionTTL is the configured time-to-live.
	SessionTTL time.Duration
}

// Stats returns session table statistics for monitoring.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		ActiveSessions: len(s.sessions),
		MaxSessions:    s.config.MaxSessions,
		SessionTTL:     s.config.SessionTTL,
	}
}

// continuationMessage builds the instructions returned with the first chunk.
func (s *Service) continuationMessage(sess *session) string {
	return fmt.Sprintf("Showing chunk 1 of %d. %s Session expires in %s.",
		sess.totalChunks, s.config.RetrievalHint, s.config.SessionTTL)
}

// sweepExpiredLocked removes sessions older than the TTL. Runs on every
// create and read call; there is no background reaper, so staleness is
// bounded by the time since the table was last touched.
// Must be called with s.mu held.
func (s *Service) sweepExpiredLocked(ctx context.Context, now time.Time) {
	expired := 0
	for id, sess := range s.sessions {
		if sess.isExpired(now, s.config.SessionTTL) {
			delete(s.sessions, id)
			expired++
			s.metrics.RecordSessionRemoved(ctx, RemovalReasonExpired)
		}
	}

	if expired > 0 {
		s.metrics.SetActiveSessions(ctx, len(s.sessions))
		s.logger.Debug("Swept expired chunk sessions",
			"expired_count", expired,
			"remaining", len(s.sessions))
	}
}

// evictIfNeededLocked removes the oldest session when the table is at
// capacity. Must be called with s.mu held.
func (s *Service) evictIfNeededLocked(ctx context.Context) {
	if len(s.sessions) < s.config.MaxSessions {
		return
	}

	var oldestID string
	var oldestAt time.Time
	for id, sess := range s.sessions {
		if oldestID == "" || sess.createdAt.Before(oldestAt) {
			oldestID = id
			oldestAt = sess.createdAt
		}
	}

	if oldestID != "" {
		delete(s.sessions, oldestID)
		s.metrics.RecordSessionRemoved(ctx, RemovalReasonEvicted)
		s.logger.Debug("Evicted oldest chunk session at capacity",
			"session_id", oldestID,
			"created_at", oldestAt)
	}
}
