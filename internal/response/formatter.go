package response

import (
	"context"
	"errors"

	"github.com/lakefront-data/mcp-dataquery/internal/chunking"
	"github.com/lakefront-data/mcp-dataquery/internal/database"
	"github.com/lakefront-data/mcp-dataquery/internal/tokens"
)

// Default limits for response formatting.
// The budget is tuned so a full response plus protocol framing stays well
// inside typical LLM tool-result windows.
const (
	// DefaultMaxTokens is the default per-response token budget.
	DefaultMaxTokens = 9000

	// MinMaxTokens is the smallest configurable budget. Below this a
	// response cannot carry even one meaningful row plus framing.
	MinMaxTokens = 256

	// AbsoluteMaxTokens is the absolute maximum budget that can be
	// requested.
	AbsoluteMaxTokens = 200000

	// DefaultModel selects the tokenizer when callers do not.
	DefaultModel = "gpt-4"
)

// Config holds configuration for a Formatter.
type Config struct {
	// MaxTokens is the per-response token budget.
	// Default: 9000, bounds: [256, 200000].
	MaxTokens int `json:"maxTokens" yaml:"maxTokens"`

	// Model names the tokenizer used for estimation.
	// Default: "gpt-4".
	Model string `json:"model" yaml:"model"`

	// ResponseOverhead is added to every estimate to account for envelope
	// framing. Zero selects the estimator's default.
	ResponseOverhead int `json:"responseOverhead" yaml:"responseOverhead"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxTokens: DefaultMaxTokens,
		Model:     DefaultModel,
	}
}

// Validate validates the configuration and applies bounds.
// It returns a validated copy with any out-of-range values clamped.
func (c *Config) Validate() *Config {
	validated := *c

	if validated.MaxTokens <= 0 {
		validated.MaxTokens = DefaultMaxTokens
	}
	if validated.MaxTokens < MinMaxTokens {
		validated.MaxTokens = MinMaxTokens
	}
	if validated.MaxTokens > AbsoluteMaxTokens {
		validated.MaxTokens = AbsoluteMaxTokens
	}
	if validated.Model == "" {
		validated.Model = DefaultModel
	}
	if validated.ResponseOverhead < 0 {
		validated.ResponseOverhead = 0
	}

	return &validated
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Estimator is the token estimation capability the Formatter needs.
// *tokens.Estimator satisfies it.
type Estimator interface {
	EstimateResponseTokens(data any, model string, overhead int) (int, error)
}

// Chunker is the session capability the Formatter needs.
// *chunking.Service satisfies it.
type Chunker interface {
	CreateChunkedResponse(ctx context.Context, data any, model string, budget int) (*chunking.ChunkEnvelope, error)
}

// Formatter decides between returning a payload complete and splitting it
// into a chunk session. Safe for concurrent use.
type Formatter struct {
	config    *Config
	estimator Estimator
	chunker   Chunker
}

// NewFormatter creates a Formatter with the given configuration. A nil
// config selects defaults.
func NewFormatter(estimator Estimator, chunker Chunker, config *Config) *Formatter {
	if config == nil {
		config = DefaultConfig()
	}
	return &Formatter{
		config:    config.Validate(),
		estimator: estimator,
		chunker:   chunker,
	}
}

// Config returns the formatter's validated configuration.
func (f *Formatter) Config() *Config {
	return f.config.Clone()
}

// FormatOptions adjusts a single Format call. Zero values select the
// formatter's configured defaults.
type FormatOptions struct {
	// Model overrides the configured tokenizer model.
	Model string

	// MaxTokens overrides the configured token budget.
	MaxTokens int

	// DisableChunking skips budgeting and returns the payload complete.
	// Escape hatch for callers that know the payload is already bounded.
	DisableChunking bool
}

// Format returns data complete when it fits the configured budget, or the
// first chunk of a new session when it does not. Failures come back as
// error envelopes; Format never returns nil.
func (f *Formatter) Format(ctx context.Context, data any) *Envelope {
	return f.FormatWithOptions(ctx, data, FormatOptions{})
}

// FormatWithOptions is Format with per-call overrides.
func (f *Formatter) FormatWithOptions(ctx context.Context, data any, opts FormatOptions) *Envelope {
	if opts.DisableChunking {
		return f.FormatComplete(data)
	}

	model := opts.Model
	if model == "" {
		model = f.config.Model
	}
	budget := opts.MaxTokens
	if budget <= 0 {
		budget = f.config.MaxTokens
	}

	if f.estimator == nil {
		return f.FormatError(KindInternalError, "response formatter has no token estimator", nil)
	}

	estimate, err := f.estimator.EstimateResponseTokens(data, model, f.config.ResponseOverhead)
	if err != nil {
		return f.ErrorFrom(err, KindInternalError)
	}
	if estimate <= budget {
		return &Envelope{outcome: OutcomeComplete, payload: data}
	}

	if f.chunker == nil {
		return f.FormatError(KindInternalError, "response formatter has no chunking service", nil)
	}
	chunk, err := f.chunker.CreateChunkedResponse(ctx, data, model, budget)
	if err != nil {
		return f.ErrorFrom(err, KindInternalError)
	}
	return &Envelope{outcome: OutcomeChunked, payload: chunk}
}

// FormatComplete wraps data as-is, with no estimation and no chunking.
func (f *Formatter) FormatComplete(data any) *Envelope {
	return &Envelope{outcome: OutcomeComplete, payload: data}
}

// FormatError builds an error envelope. Error envelopes are always
// complete: a failure report must never arrive split across chunks.
func (f *Formatter) FormatError(kind ErrorKind, message string, details map[string]any) *Envelope {
	return &Envelope{
		outcome: OutcomeError,
		payload: &ErrorPayload{
			Status:  StatusError,
			Kind:    kind,
			Message: message,
			Details: details,
		},
	}
}

// ErrorFrom classifies err against the known sentinel errors and builds
// the envelope. Errors outside the known set take the fallback kind, or
// KindInternalError when fallback is empty.
func (f *Formatter) ErrorFrom(err error, fallback ErrorKind) *Envelope {
	return f.FormatError(classifyError(err, fallback), err.Error(), nil)
}

// Render serializes an envelope for the wire in the canonical compact
// form, the same form estimates are computed against. A payload that
// cannot be serialized degrades to a serialization_failure error envelope
// rather than failing the call.
func (f *Formatter) Render(env *Envelope) string {
	raw, err := tokens.MarshalCanonical(env.payload)
	if err == nil {
		return string(raw)
	}

	fallback := f.FormatError(KindSerializationFailure, "response could not be serialized", map[string]any{
		"error": err.Error(),
	})
	raw, err = tokens.MarshalCanonical(fallback.payload)
	if err != nil {
		// The fallback shape is static strings; it always marshals.
		return `{"error_kind":"serialization_failure","message":"response could not be serialized","status":"error"}`
	}
	return string(raw)
}

// classifyError maps sentinel errors anywhere in err's chain to their
// wire kinds.
func classifyError(err error, fallback ErrorKind) ErrorKind {
	switch {
	case errors.Is(err, chunking.ErrSessionNotFound):
		return KindSessionNotFound
	case errors.Is(err, chunking.ErrChunkOutOfRange):
		return KindChunkOutOfRange
	case errors.Is(err, tokens.ErrSerialization):
		return KindSerializationFailure
	case errors.Is(err, database.ErrReadOnly):
		return KindReadOnlyViolation
	case errors.Is(err, database.ErrUnknownProfile):
		return KindUnknownDatabase
	case errors.Is(err, database.ErrUnknownTable):
		return KindUnknownTable
	case errors.Is(err, database.ErrEmptyQuery):
		return KindInvalidRequest
	}

	if fallback == "" {
		return KindInternalError
	}
	return fallback
}
