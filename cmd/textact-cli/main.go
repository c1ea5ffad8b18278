// Package main provides the textact-cli command line tool: one-shot text
// actions from the terminal plus config validation.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	textact "github.com/EugeneMsv/textact"
	"github.com/EugeneMsv/textact/internal/requestlog"
	"github.com/EugeneMsv/textact/internal/settings"
	"github.com/EugeneMsv/textact/internal/storage"
	"github.com/EugeneMsv/textact/internal/version"
	"github.com/EugeneMsv/textact/providers"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "textact-cli",
	Short: "Run AI text actions from the command line",
	Long:  "textact-cli runs one-shot text actions (summarize, explain, rephrase, translate) against a configured provider and validates textactd config files.",
}

var (
	runConfigPath string
	runLanguage   string
	runModel      string
)

var runCmd = &cobra.Command{
	Use:   "run <action> [text]",
	Short: "Run a text action; reads text from the argument or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		action, err := textact.ParseAction(args[0])
		if err != nil {
			return err
		}

		var text string
		if len(args) == 2 {
			text = args[1]
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			text = strings.TrimSpace(string(data))
		}
		if text == "" {
			return fmt.Errorf("no text provided")
		}

		cfg, err := loadRunConfig()
		if err != nil {
			return err
		}

		registry, err := buildRegistry(cfg)
		if err != nil {
			return err
		}

		svc := settings.NewService(storage.NewMemoryStore(cfg.Storage.Limits))
		if runModel != "" {
			if err := svc.Save(cmd.Context(), settings.Settings{Model: runModel}); err != nil {
				return err
			}
		}

		dispatcher, err := textact.NewDispatcher(cfg, registry, svc, requestlog.NoopWriter{})
		if err != nil {
			return err
		}

		result, err := dispatcher.Do(cmd.Context(), textact.ActionRequest{
			Action:         action,
			Text:           text,
			TargetLanguage: runLanguage,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, result.Text)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <config-file>",
	Short: "Validate a textactd configuration file (JSON/YAML)",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := textact.LoadConfig(args[0])
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := textact.ValidateConfig(*cfg); err != nil {
			return fmt.Errorf("validation error: %w", err)
		}

		var names []string
		for _, t := range cfg.Targets {
			names = append(names, t.Provider)
		}
		fmt.Printf("Config is valid\n")
		fmt.Printf("  Targets: %d (%s)\n", len(cfg.Targets), strings.Join(names, ", "))
		fmt.Printf("  Storage: %s\n", storageBackendName(cfg.Storage.Backend))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version info",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("textact-cli %s\n", version.String())
	},
}

// loadRunConfig loads the --config file when given, otherwise builds a
// single-provider config from the environment.
func loadRunConfig() (textact.Config, error) {
	if runConfigPath != "" {
		loaded, err := textact.LoadConfig(runConfigPath)
		if err != nil {
			return textact.Config{}, err
		}
		return *loaded, nil
	}

	var targets []textact.Target
	for _, candidate := range []struct {
		envKey   string
		provider string
	}{
		{"GEMINI_API_KEY", "gemini"},
		{"OPENAI_API_KEY", "openai"},
		{"ANTHROPIC_API_KEY", "anthropic"},
	} {
		if os.Getenv(candidate.envKey) != "" {
			targets = append(targets, textact.Target{Provider: candidate.provider})
		}
	}
	if len(targets) == 0 {
		return textact.Config{}, fmt.Errorf("no provider configured: set GEMINI_API_KEY, OPENAI_API_KEY, or ANTHROPIC_API_KEY, or pass --config")
	}
	return textact.Config{Targets: targets}, nil
}

// buildRegistry registers a provider for every config target with a usable
// credential.
func buildRegistry(cfg textact.Config) (*providers.Registry, error) {
	registry := providers.NewRegistry()
	for _, target := range cfg.Targets {
		if _, ok := registry.Get(target.Provider); ok {
			continue
		}
		var (
			p   providers.Provider
			err error
		)
		switch target.Provider {
		case "gemini":
			p, err = providers.NewGemini(envOr(target.APIKey, "GEMINI_API_KEY"), target.BaseURL)
		case "openai":
			p, err = providers.NewOpenAI(envOr(target.APIKey, "OPENAI_API_KEY"), target.BaseURL)
		case "anthropic":
			p, err = providers.NewAnthropic(envOr(target.APIKey, "ANTHROPIC_API_KEY"), target.BaseURL)
		case "bedrock":
			region := target.Region
			if region == "" {
				region = os.Getenv("AWS_REGION")
			}
			p, err = providers.NewBedrock(region, os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"))
		}
		if err != nil {
			return nil, fmt.Errorf("%s provider: %w", target.Provider, err)
		}
		if p != nil {
			registry.Register(p)
		}
	}
	if len(registry.List()) == 0 {
		return nil, fmt.Errorf("no provider could be registered from the config")
	}
	return registry, nil
}

func envOr(value, envKey string) string {
	if value != "" {
		return value
	}
	return os.Getenv(envKey)
}

func storageBackendName(backend string) string {
	if backend == "" {
		return textact.StorageBackendMemory
	}
	return backend
}

func main() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "path to a textactd config file")
	runCmd.Flags().StringVar(&runLanguage, "lang", "", "target language for translate")
	runCmd.Flags().StringVar(&runModel, "model", "", "model override")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
