package textact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// knownProviders are the provider names a Target may reference.
var knownProviders = map[string]bool{
	"gemini":    true,
	"openai":    true,
	"anthropic": true,
	"bedrock":   true,
}

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

// ValidateConfig validates a Config for correctness.
func ValidateConfig(cfg Config) error {
	if len(cfg.Targets) == 0 {
		return fmt.Errorf("at least one provider target is required")
	}
	for _, t := range cfg.Targets {
		if !knownProviders[t.Provider] {
			return fmt.Errorf("unknown provider %q", t.Provider)
		}
	}

	switch cfg.Storage.Backend {
	case "", StorageBackendMemory, StorageBackendSQLite, StorageBackendPostgres:
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == StorageBackendPostgres && cfg.Storage.DSN == "" {
		return fmt.Errorf("postgres storage backend requires a dsn")
	}

	if cfg.Cache.Capacity < 0 {
		return fmt.Errorf("cache capacity must not be negative")
	}
	if cfg.RateLimit.RatePerSecond < 0 {
		return fmt.Errorf("rate_per_second must not be negative")
	}
	if lim := cfg.Storage.Limits; lim.ItemBytes < 0 || lim.TotalBytes < 0 {
		return fmt.Errorf("storage limits must not be negative")
	}
	if g := cfg.Generation; g.Temperature != nil && (*g.Temperature < 0 || *g.Temperature > 2) {
		return fmt.Errorf("generation temperature must be between 0 and 2")
	}
	return nil
}
