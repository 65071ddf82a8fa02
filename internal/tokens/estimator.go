package tokens

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

// ErrSerialization indicates a value with no canonical textual
// representation, such as a channel or a function. It is the only error
// estimation can produce.
var ErrSerialization = errors.New("value is not serializable")

const (
	// DefaultEncoding is the tokenizer encoding used when a model
	// identifier cannot be resolved to a specific encoding.
	DefaultEncoding = "cl100k_base"

	// DefaultResponseOverhead is the token allowance added by
	// EstimateResponseTokens for envelope wrapping (status fields, chunk
	// metadata, protocol framing) so the final wire size is never
	// undercounted.
	DefaultResponseOverhead = 64
)

// canonical is the serialization used for all token estimation: compact,
// std-compatible JSON with sorted map keys. Estimates are only meaningful
// relative to one stable textual form, so this convention must not change
// between releases.
var canonical = sonic.ConfigStd

// MarshalCanonical serializes v to the canonical textual form used for
// token estimation. Response bodies go over the wire in this same form so
// estimates track what is actually sent. Failures wrap ErrSerialization.
func MarshalCanonical(v any) ([]byte, error) {
	raw, err := canonical.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return raw, nil
}

// tiktoken resolves BPE files through a package-level loader. The offline
// loader serves embedded encodings so tokenizer construction never touches
// the network; encodings it does not carry fall back to DefaultEncoding.
var loaderOnce sync.Once

func useOfflineLoader() {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})
}

// Tokenizer converts text into a token count under one specific encoding.
// Implementations must be deterministic and safe for concurrent use.
type Tokenizer interface {
	Count(text string) int
}

// Config holds configuration options for an Estimator.
type Config struct {
	// DefaultEncoding is used when a model identifier cannot be resolved
	// or its encoding cannot be constructed.
	//
	// Default: DefaultEncoding.
	DefaultEncoding string

	// CacheCapacity bounds how many constructed tokenizers are kept in
	// memory at once.
	//
	// Default: DefaultCacheCapacity.
	CacheCapacity int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultEncoding: DefaultEncoding,
		CacheCapacity:   DefaultCacheCapacity,
	}
}

// builderFunc constructs a tokenizer for an encoding name.
type builderFunc func(encoding string) (Tokenizer, error)

// Estimator produces token estimates for text and structured data under a
// named model's tokenizer. Safe for concurrent use.
type Estimator struct {
	config  Config
	builder builderFunc
	cache   *encodingCache
	metrics MetricsRecorder
}

// Option is a functional option for configuring an Estimator.
type Option func(*Estimator)

// WithConfig sets the estimator configuration.
func WithConfig(config Config) Option {
	return func(e *Estimator) {
		e.config = config
	}
}

// WithMetrics sets the metrics recorder for tokenizer cache events.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(e *Estimator) {
		e.metrics = metrics
	}
}

// withBuilder replaces tokenizer construction for testing.
func withBuilder(builder builderFunc) Option {
	return func(e *Estimator) {
		e.builder = builder
	}
}

// NewEstimator creates an Estimator with the provided options.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		config:  DefaultConfig(),
		builder: buildBPE,
		metrics: noopMetricsRecorder{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.config.DefaultEncoding == "" {
		e.config.DefaultEncoding = DefaultEncoding
	}
	if e.config.CacheCapacity <= 0 {
		e.config.CacheCapacity = DefaultCacheCapacity
	}

	e.cache = newEncodingCache(e.config.CacheCapacity, e.metrics)

	return e
}

// CountTokens returns the number of tokens in text under the tokenizer
// bound to model. Unknown models are counted under the default encoding.
func (e *Estimator) CountTokens(text, model string) int {
	return e.tokenizerFor(model).Count(text)
}

// EstimateTokens serializes data to the canonical textual form and counts
// the tokens of that string. The only possible error is ErrSerialization
// for values with no JSON representation.
func (e *Estimator) EstimateTokens(data any, model string) (int, error) {
	raw, err := MarshalCanonical(data)
	if err != nil {
		return 0, err
	}
	return e.CountTokens(string(raw), model), nil
}

// EstimateResponseTokens estimates the tokens data will occupy once wrapped
// in a response envelope. A non-positive overhead selects
// DefaultResponseOverhead.
func (e *Estimator) EstimateResponseTokens(data any, model string, overhead int) (int, error) {
	estimate, err := e.EstimateTokens(data, model)
	if err != nil {
		return 0, err
	}
	if overhead <= 0 {
		overhead = DefaultResponseOverhead
	}
	return estimate + overhead, nil
}

// CacheStats returns tokenizer cache statistics for monitoring.
func (e *Estimator) CacheStats() CacheStats {
	return e.cache.stats()
}

// tokenizerFor resolves model to a tokenizer, building and caching it as
// needed. Resolution never fails: unresolvable encodings degrade to the
// default encoding and finally to a heuristic count.
func (e *Estimator) tokenizerFor(model string) Tokenizer {
	encoding := resolveEncoding(model, e.config.DefaultEncoding)

	tk, err := e.cache.getOrBuild(encoding, e.builder)
	if err == nil {
		return tk
	}

	if encoding != e.config.DefaultEncoding {
		if tk, err = e.cache.getOrBuild(e.config.DefaultEncoding, e.builder); err == nil {
			return tk
		}
	}

	return heuristicTokenizer{}
}

// resolveEncoding maps a model identifier to its tokenizer encoding name.
// Models sharing an encoding share one cache entry.
func resolveEncoding(model, fallback string) string {
	if model == "" {
		return fallback
	}

	if encoding, ok := tiktoken.MODEL_TO_ENCODING[model]; ok {
		return encoding
	}
	for prefix, encoding := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(model, prefix) {
			return encoding
		}
	}

	return fallback
}

// bpeTokenizer wraps a constructed tiktoken encoding.
type bpeTokenizer struct {
	tk *tiktoken.Tiktoken
}

func (b *bpeTokenizer) Count(text string) int {
	return len(b.tk.Encode(text, nil, nil))
}

// buildBPE constructs the BPE tokenizer for an encoding name.
func buildBPE(encoding string) (Tokenizer, error) {
	useOfflineLoader()

	tk, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("construct tokenizer for encoding %q: %w", encoding, err)
	}
	return &bpeTokenizer{tk: tk}, nil
}

// heuristicTokenizer approximates roughly four characters per token,
// rounding up. Last resort when no BPE encoding can be constructed.
type heuristicTokenizer struct{}

func (heuristicTokenizer) Count(text string) int {
	return (len(text) + 3) / 4
}
