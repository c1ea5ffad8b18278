// Package settings manages user-facing configuration: the generation API key,
// the model, per-action prompt templates, and the domain blocklist. Settings
// are persisted through a quota-guarded storage.Store, so oversized settings
// are rejected before they reach the backend. Incoming JSON payloads are
// validated against an embedded JSON Schema.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/EugeneMsv/textact/internal/storage"
)

// Storage keys. Settings are written as one batch so a quota rejection leaves
// the previous settings intact.
const (
	keyAPIKey         = "apiKey"
	keyModel          = "model"
	keyTemplates      = "templates"
	keyBlockedDomains = "blockedDomains"
)

// DefaultModel is used when the user has not picked one.
const DefaultModel = "gemini-2.0-flash"

// DefaultTemplates are the built-in prompt templates per action. {{text}} is
// replaced by the selected text, {{targetLanguage}} by the translation target.
var DefaultTemplates = map[string]string{
	"summarize": "Summarize the following text in a few sentences:\n\n{{text}}",
	"explain":   "Explain the meaning of the following text in simple terms:\n\n{{text}}",
	"rephrase":  "Rephrase the following text, keeping its meaning:\n\n{{text}}",
	"translate": "Translate the following text to {{targetLanguage}}:\n\n{{text}}",
}

// Settings holds all user-managed configuration.
type Settings struct {
	APIKey         string            `json:"apiKey,omitempty"`
	Model          string            `json:"model,omitempty"`
	Templates      map[string]string `json:"templates,omitempty"`
	BlockedDomains []string          `json:"blockedDomains,omitempty"`
}

// withDefaults fills unset fields from the built-in defaults.
func (s Settings) withDefaults() Settings {
	if s.Model == "" {
		s.Model = DefaultModel
	}
	merged := make(map[string]string, len(DefaultTemplates))
	for action, tpl := range DefaultTemplates {
		merged[action] = tpl
	}
	for action, tpl := range s.Templates {
		if tpl != "" {
			merged[action] = tpl
		}
	}
	s.Templates = merged
	return s
}

// Template returns the prompt template for action, falling back to the
// built-in default.
func (s Settings) Template(action string) (string, bool) {
	if tpl, ok := s.Templates[action]; ok && tpl != "" {
		return tpl, true
	}
	tpl, ok := DefaultTemplates[action]
	return tpl, ok
}

// IsBlocked reports whether host matches the blocklist: an exact match or a
// dot-boundary suffix match ("example.com" blocks "mail.example.com" but not
// "notexample.com").
func (s Settings) IsBlocked(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	for _, blocked := range s.BlockedDomains {
		blocked = strings.ToLower(strings.TrimSpace(blocked))
		if blocked == "" {
			continue
		}
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

// Service persists Settings through a quota-guarded store.
type Service struct {
	store storage.Store
}

// NewService creates a settings Service backed by store.
func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// Load reads the persisted settings, filling defaults for anything unset.
func (s *Service) Load(ctx context.Context) (Settings, error) {
	var out Settings
	if _, err := storage.GetJSON(ctx, s.store, keyAPIKey, &out.APIKey); err != nil {
		return Settings{}, fmt.Errorf("load api key: %w", err)
	}
	if _, err := storage.GetJSON(ctx, s.store, keyModel, &out.Model); err != nil {
		return Settings{}, fmt.Errorf("load model: %w", err)
	}
	if _, err := storage.GetJSON(ctx, s.store, keyTemplates, &out.Templates); err != nil {
		return Settings{}, fmt.Errorf("load templates: %w", err)
	}
	if _, err := storage.GetJSON(ctx, s.store, keyBlockedDomains, &out.BlockedDomains); err != nil {
		return Settings{}, fmt.Errorf("load blocked domains: %w", err)
	}
	return out.withDefaults(), nil
}

// Save validates and persists the settings as one all-or-nothing batch.
func (s *Service) Save(ctx context.Context, in Settings) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := ValidateJSON(raw); err != nil {
		return err
	}

	items := map[string]any{
		keyAPIKey:         in.APIKey,
		keyModel:          in.Model,
		keyTemplates:      in.Templates,
		keyBlockedDomains: in.BlockedDomains,
	}
	if err := s.store.SetBatch(ctx, items); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}

// SaveJSON validates a raw settings payload against the schema and persists it.
func (s *Service) SaveJSON(ctx context.Context, raw []byte) (Settings, error) {
	if err := ValidateJSON(raw); err != nil {
		return Settings{}, err
	}
	var in Settings
	if err := json.Unmarshal(raw, &in); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Save(ctx, in); err != nil {
		return Settings{}, err
	}
	return in.withDefaults(), nil
}

// Reset removes all persisted settings, restoring defaults.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.Remove(ctx, keyAPIKey, keyModel, keyTemplates, keyBlockedDomains); err != nil {
		return fmt.Errorf("reset settings: %w", err)
	}
	return nil
}
