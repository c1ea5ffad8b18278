package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	textact "github.com/EugeneMsv/textact"
	"github.com/EugeneMsv/textact/internal/requestlog"
	"github.com/EugeneMsv/textact/internal/settings"
	"github.com/EugeneMsv/textact/internal/storage"
	"github.com/EugeneMsv/textact/internal/version"
	"github.com/EugeneMsv/textact/providers"
)

func main() {
	// Load and validate config if TEXTACT_CONFIG is set.
	var cfg textact.Config
	if cfgPath := os.Getenv("TEXTACT_CONFIG"); cfgPath != "" {
		loaded, err := textact.LoadConfig(cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
		log.Printf("Config loaded: targets=%d, storage=%s", len(cfg.Targets), cfg.Storage.Backend)
	}

	registry := buildRegistry(cfg)
	if len(registry.List()) == 0 {
		log.Fatal("No providers configured. Set at least one provider API key (e.g., GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY) or list targets in TEXTACT_CONFIG")
	}

	// Default target chain mirrors the registered providers when the config
	// does not pin one.
	if len(cfg.Targets) == 0 {
		for _, name := range registry.List() {
			cfg.Targets = append(cfg.Targets, textact.Target{Provider: name})
		}
		log.Printf("No targets configured; using fallback chain %v", registry.List())
	}

	if err := textact.ValidateConfig(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	store, err := buildStore(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open settings storage: %v", err)
	}
	defer func() {
		if closer, ok := store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}()

	logWriter, err := buildRequestLog(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open action log storage: %v", err)
	}

	settingsSvc := settings.NewService(store)

	dispatcher, err := textact.NewDispatcher(cfg, registry, settingsSvc, logWriter)
	if err != nil {
		log.Fatalf("Failed to create dispatcher: %v", err)
	}

	corsOrigins := cfg.Server.CORSOrigins
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}

	r := newRouter(dispatcher, store, logWriter, corsOrigins)

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("textactd %s listening on %s (%d provider(s))", version.Short(), addr, len(registry.List()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

// buildRegistry registers providers from the config targets, falling back to
// environment variables for credentials. Targets without keys are skipped
// with a warning; providers with env keys are auto-registered even when the
// config never names them.
func buildRegistry(cfg textact.Config) *providers.Registry {
	registry := providers.NewRegistry()

	apiKey := func(target textact.Target, envKey string) string {
		if target.APIKey != "" {
			return target.APIKey
		}
		return os.Getenv(envKey)
	}

	register := func(name string, target textact.Target) {
		if _, ok := registry.Get(name); ok {
			return
		}
		var (
			p   providers.Provider
			err error
		)
		switch name {
		case "gemini":
			key := apiKey(target, "GEMINI_API_KEY")
			if key == "" {
				return
			}
			p, err = providers.NewGemini(key, target.BaseURL)
		case "openai":
			key := apiKey(target, "OPENAI_API_KEY")
			if key == "" {
				return
			}
			p, err = providers.NewOpenAI(key, target.BaseURL)
		case "anthropic":
			key := apiKey(target, "ANTHROPIC_API_KEY")
			if key == "" {
				return
			}
			p, err = providers.NewAnthropic(key, target.BaseURL)
		case "bedrock":
			region := target.Region
			if region == "" {
				region = os.Getenv("AWS_REGION")
			}
			if region == "" {
				return
			}
			p, err = providers.NewBedrock(region, os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"))
		default:
			return
		}
		if err != nil {
			log.Printf("Warning: %s provider not registered: %v", name, err)
			return
		}
		registry.Register(p)
		log.Printf("Provider registered: %s", name)
	}

	for _, target := range cfg.Targets {
		register(target.Provider, target)
	}
	// Env-configured providers not named in the targets.
	for _, name := range []string{"gemini", "openai", "anthropic"} {
		register(name, textact.Target{})
	}
	return registry
}

// buildStore opens the settings storage backend named in the config.
func buildStore(cfg textact.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case textact.StorageBackendSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "textact.db"
		}
		return storage.NewSQLiteStore(dsn, cfg.Limits)
	case textact.StorageBackendPostgres:
		return storage.NewPostgresStore(cfg.DSN, cfg.Limits)
	default:
		return storage.NewMemoryStore(cfg.Limits), nil
	}
}

// buildRequestLog opens an action log writer co-located with the settings
// backend. The in-memory backend gets a no-op writer.
func buildRequestLog(cfg textact.StorageConfig) (requestlog.Writer, error) {
	switch cfg.Backend {
	case textact.StorageBackendSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "textact.db"
		}
		return requestlog.NewSQLiteWriter(dsn)
	case textact.StorageBackendPostgres:
		return requestlog.NewPostgresWriter(cfg.DSN)
	default:
		return requestlog.NoopWriter{}, nil
	}
}
