// Package config loads and validates the server's YAML configuration:
// database profiles plus the output block that controls token budgeting
// and chunk session retention.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lakefront-data/mcp-dataquery/internal/chunking"
	"github.com/lakefront-data/mcp-dataquery/internal/database"
	"github.com/lakefront-data/mcp-dataquery/internal/response"
)

// Session retention limits.
const (
	// DefaultSessionTTLMinutes is how long chunk sessions stay
	// retrievable.
	DefaultSessionTTLMinutes = 60

	// MaxSessionTTLMinutes caps retention at one day; beyond that stale
	// sessions are dead weight.
	MaxSessionTTLMinutes = 1440

	// DefaultMaxSessions bounds the number of live chunk sessions.
	DefaultMaxSessions = 256

	// AbsoluteMaxSessions is the hard cap on the session table size.
	AbsoluteMaxSessions = 10000
)

// Config is the on-disk configuration of the server.
type Config struct {
	// Profiles lists the databases tools may target.
	Profiles []database.Profile `json:"profiles" yaml:"profiles"`

	// Output controls token budgeting and chunk session retention for
	// tool responses.
	Output OutputConfig `json:"output" yaml:"output"`
}

// OutputConfig mirrors the output block of the config file.
type OutputConfig struct {
	// MaxTokens is the per-response token budget.
	// Default: 9000, bounds: [256, 200000].
	MaxTokens int `json:"maxTokens" yaml:"maxTokens"`

	// SessionTTLMinutes is how long chunk sessions stay retrievable.
	// Default: 60, bounds: [1, 1440].
	SessionTTLMinutes int `json:"sessionTTLMinutes" yaml:"sessionTTLMinutes"`

	// Model names the tokenizer used for estimation.
	// Default: "gpt-4".
	Model string `json:"model" yaml:"model"`

	// MaxSessions caps concurrently live chunk sessions.
	// Default: 256, bounds: [1, 10000].
	MaxSessions int `json:"maxSessions" yaml:"maxSessions"`

	// ResponseOverhead is added to estimates for envelope framing. Zero
	// selects the estimator's default.
	ResponseOverhead int `json:"responseOverhead,omitempty" yaml:"responseOverhead,omitempty"`
}

// Default returns the configuration used when no file is provided.
// Profiles are empty; the serve command fills them from flags.
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			MaxTokens:         response.DefaultMaxTokens,
			SessionTTLMinutes: DefaultSessionTTLMinutes,
			Model:             response.DefaultModel,
			MaxSessions:       DefaultMaxSessions,
		},
	}
}

// Load reads, parses, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration bytes over the defaults and validates
// the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies defaults and bounds in place. Profile problems are
// errors because they cannot be corrected; out-of-range numeric fields are
// clamped.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Profiles))
	for _, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate database profile %q", p.Name)
		}
		seen[p.Name] = true
	}

	o := &c.Output
	if o.MaxTokens <= 0 {
		o.MaxTokens = response.DefaultMaxTokens
	}
	if o.MaxTokens < response.MinMaxTokens {
		o.MaxTokens = response.MinMaxTokens
	}
	if o.MaxTokens > response.AbsoluteMaxTokens {
		o.MaxTokens = response.AbsoluteMaxTokens
	}
	if o.SessionTTLMinutes <= 0 {
		o.SessionTTLMinutes = DefaultSessionTTLMinutes
	}
	if o.SessionTTLMinutes > MaxSessionTTLMinutes {
		o.SessionTTLMinutes = MaxSessionTTLMinutes
	}
	if o.Model == "" {
		o.Model = response.DefaultModel
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = DefaultMaxSessions
	}
	if o.MaxSessions > AbsoluteMaxSessions {
		o.MaxSessions = AbsoluteMaxSessions
	}
	if o.ResponseOverhead < 0 {
		o.ResponseOverhead = 0
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	if c.Profiles != nil {
		clone.Profiles = make([]database.Profile, len(c.Profiles))
		copy(clone.Profiles, c.Profiles)
	}
	return &clone
}

// FormatterConfig converts the output block to the response package's
// configuration.
func (o OutputConfig) FormatterConfig() *response.Config {
	return &response.Config{
		MaxTokens:        o.MaxTokens,
		Model:            o.Model,
		ResponseOverhead: o.ResponseOverhead,
	}
}

// ChunkingConfig converts the output block to the chunking package's
// configuration.
func (o OutputConfig) ChunkingConfig() chunking.Config {
	cfg := chunking.DefaultConfig()
	cfg.SessionTTL = time.Duration(o.SessionTTLMinutes) * time.Minute
	cfg.MaxSessions = o.MaxSessions
	return cfg
}
