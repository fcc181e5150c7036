package chatrelay

import (
	"fmt"
	"time"
)

// Config holds the full relay configuration. All durations are expressed as
// Go duration strings ("10m", "500ms") so the same file works for YAML and
// JSON.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `json:"server" yaml:"server"`
	// Inference configures the upstream LLM endpoint.
	Inference InferenceConfig `json:"inference" yaml:"inference"`
	// Cache configures the response cache.
	Cache CacheConfig `json:"cache" yaml:"cache"`
	// Breaker configures the circuit breaker guarding the upstream
	// (optional; disabled when Enabled is false).
	Breaker BreakerConfig `json:"breaker,omitempty" yaml:"breaker,omitempty"`
	// RequestLog configures the per-request audit trail (optional).
	RequestLog RequestLogConfig `json:"request_log,omitempty" yaml:"request_log,omitempty"`
	// Log configures structured logging.
	Log LogConfig `json:"log,omitempty" yaml:"log,omitempty"`
	// MaxQueryLen caps the accepted query length in bytes (default 8192).
	MaxQueryLen int `json:"max_query_len,omitempty" yaml:"max_query_len,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
}

// InferenceConfig configures the upstream LLM endpoint.
type InferenceConfig struct {
	// BaseURL is the OpenAI-compatible endpoint to forward to.
	BaseURL string `json:"base_url" yaml:"base_url"`
	// APIKey authenticates with the provider. Usually set via the API_KEY
	// environment variable rather than the config file; never logged.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// Model is the default model when a request does not name one.
	Model string `json:"model" yaml:"model"`
	// SystemPrompt overrides the built-in system prompt when non-empty.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	// MaxTokens caps completion length (default 500).
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	// Temperature is the default sampling temperature (default 0.7).
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	// Retry bounds the transient-failure retry loop.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// RetryConfig defines retry behavior for upstream calls.
type RetryConfig struct {
	// Attempts is the total number of attempts including the first (default 3).
	Attempts int `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	// BaseBackoff is the delay before the second attempt (default "500ms").
	BaseBackoff string `json:"base_backoff,omitempty" yaml:"base_backoff,omitempty"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// Backend selects the cache implementation: "redis" or "memory"
	// (default "redis" when Addr is set, otherwise "memory").
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// Addr is the Redis host:port.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
	// Password is the Redis password; never logged.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// DB is the Redis database index.
	DB int `json:"db,omitempty" yaml:"db,omitempty"`
	// Namespace prefixes every cache key so the relay can share a Redis
	// instance with other applications.
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	// TTL is how long cached responses live (default "10m").
	TTL string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	// MaxEntries bounds the in-memory backend (ignored for Redis).
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	Enabled          bool   `json:"enabled" yaml:"enabled"`
	FailureThreshold int    `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	SuccessThreshold int    `json:"success_threshold,omitempty" yaml:"success_threshold,omitempty"`
	Cooldown         string `json:"cooldown,omitempty" yaml:"cooldown,omitempty"`
}

// RequestLogConfig configures the audit trail store.
type RequestLogConfig struct {
	// Driver selects the store: "", "none", "sqlite", or "postgres".
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	// DSN is the driver-specific connection string.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error" (default "info").
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is "json" or "text" (default "json").
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// Defaults applied by the constructors and validated here.
const (
	DefaultPort        = 8080
	DefaultTTL         = 10 * time.Minute
	DefaultMaxQueryLen = 8192
)

// CacheTTL parses the configured TTL, falling back to DefaultTTL.
func (c CacheConfig) CacheTTL() (time.Duration, error) {
	if c.TTL == "" {
		return DefaultTTL, nil
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0, fmt.Errorf("parsing cache ttl %q: %w", c.TTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("cache ttl must be positive, got %q", c.TTL)
	}
	return d, nil
}

// BackoffDuration parses the configured base backoff, zero meaning "use the
// client default".
func (c RetryConfig) BackoffDuration() (time.Duration, error) {
	if c.BaseBackoff == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.BaseBackoff)
	if err != nil {
		return 0, fmt.Errorf("parsing retry base backoff %q: %w", c.BaseBackoff, err)
	}
	return d, nil
}

// CooldownDuration parses the configured breaker cooldown, zero meaning "use
// the breaker default".
func (c BreakerConfig) CooldownDuration() (time.Duration, error) {
	if c.Cooldown == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Cooldown)
	if err != nil {
		return 0, fmt.Errorf("parsing breaker cooldown %q: %w", c.Cooldown, err)
	}
	return d, nil
}
