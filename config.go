package textact

import (
	"github.com/EugeneMsv/textact/internal/storage"
)

// Config holds the full service configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `json:"server" yaml:"server"`
	// Targets is the ordered provider fallback chain; the first healthy,
	// un-throttled provider answers.
	Targets []Target `json:"targets" yaml:"targets"`
	// Cache configures the prompt response cache.
	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
	// Storage configures the settings storage backend and its quotas.
	Storage StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`
	// RateLimit caps outbound calls per provider.
	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	// CircuitBreaker guards each provider target.
	CircuitBreaker BreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
	// Generation tunes the outbound generation requests.
	Generation GenerationConfig `json:"generation,omitempty" yaml:"generation,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr        string   `json:"addr,omitempty" yaml:"addr,omitempty"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

// Target names one provider in the fallback chain. APIKey and BaseURL are
// optional; the provider-specific environment variables and defaults apply
// when empty. Model overrides the user-configured model for this target.
type Target struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Region applies to the bedrock provider only.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// CacheConfig configures the prompt response cache.
type CacheConfig struct {
	// Capacity is the maximum number of memoized prompts (default 100).
	Capacity int `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// Storage backend names.
const (
	StorageBackendMemory   = "memory"
	StorageBackendSQLite   = "sqlite"
	StorageBackendPostgres = "postgres"
)

// StorageConfig configures the settings storage backend.
type StorageConfig struct {
	// Backend is one of memory (default), sqlite, postgres.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// DSN is the database path (sqlite) or connection string (postgres).
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// Limits are the per-item and aggregate byte budgets (defaults 8192/102400).
	Limits storage.Limits `json:"limits,omitempty" yaml:"limits,omitempty"`
}

// RateLimitConfig caps outbound calls per provider. Zero disables limiting.
type RateLimitConfig struct {
	RatePerSecond float64 `json:"rate_per_second,omitempty" yaml:"rate_per_second,omitempty"`
	Burst         float64 `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// BreakerConfig configures the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	SuccessThreshold int `json:"success_threshold,omitempty" yaml:"success_threshold,omitempty"`
	CooldownSeconds  int `json:"cooldown_seconds,omitempty" yaml:"cooldown_seconds,omitempty"`
}

// GenerationConfig tunes outbound generation requests.
type GenerationConfig struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}
