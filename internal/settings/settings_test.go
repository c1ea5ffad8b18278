package settings

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/EugeneMsv/textact/internal/storage"
)

func newTestService() *Service {
	return NewService(storage.NewMemoryStore(storage.DefaultLimits()))
}

func TestService_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	in := Settings{
		APIKey:         "sk-test",
		Model:          "gemini-1.5-pro",
		Templates:      map[string]string{"summarize": "TL;DR: {{text}}"},
		BlockedDomains: []string{"bank.example.com"},
	}
	if err := svc.Save(ctx, in); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := svc.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", got.APIKey)
	}
	if got.Model != "gemini-1.5-pro" {
		t.Errorf("Model = %q", got.Model)
	}
	if got.Templates["summarize"] != "TL;DR: {{text}}" {
		t.Errorf("summarize template = %q", got.Templates["summarize"])
	}
	// Untouched actions keep their defaults.
	if got.Templates["translate"] != DefaultTemplates["translate"] {
		t.Errorf("translate template = %q, want default", got.Templates["translate"])
	}
}

func TestService_LoadDefaults(t *testing.T) {
	got, err := newTestService().Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", got.Model, DefaultModel)
	}
	for action := range DefaultTemplates {
		if _, ok := got.Template(action); !ok {
			t.Errorf("missing default template for %q", action)
		}
	}
}

func TestService_SaveJSON(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	got, err := svc.SaveJSON(ctx, []byte(`{"apiKey":"sk-1","blockedDomains":["mail.example.com"]}`))
	if err != nil {
		t.Fatalf("SaveJSON() error: %v", err)
	}
	if got.APIKey != "sk-1" {
		t.Errorf("APIKey = %q", got.APIKey)
	}

	loaded, _ := svc.Load(ctx)
	if !loaded.IsBlocked("mail.example.com") {
		t.Error("expected persisted blocklist entry")
	}
}

func TestService_SaveJSONRejectsUnknownFields(t *testing.T) {
	_, err := newTestService().SaveJSON(context.Background(), []byte(`{"apiKey":"x","bogus":1}`))
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Errorf("expected schema rejection, got %v", err)
	}
}

func TestService_SaveJSONRejectsWrongTypes(t *testing.T) {
	cases := []string{
		`{"apiKey":123}`,
		`{"templates":{"summarize":5}}`,
		`{"templates":{"unknownAction":"x"}}`,
		`{"blockedDomains":"not-an-array"}`,
		`not json`,
	}
	svc := newTestService()
	for _, raw := range cases {
		if _, err := svc.SaveJSON(context.Background(), []byte(raw)); err == nil {
			t.Errorf("expected rejection for %s", raw)
		}
	}
}

func TestService_SaveQuotaExceededIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(storage.Limits{ItemBytes: 256, TotalBytes: 1024})
	svc := NewService(store)

	if err := svc.Save(ctx, Settings{APIKey: "original"}); err != nil {
		t.Fatalf("seed Save() error: %v", err)
	}

	huge := Settings{
		APIKey:    "changed",
		Templates: map[string]string{"summarize": strings.Repeat("x", 500)},
	}
	err := svc.Save(ctx, huge)
	if !errors.Is(err, storage.ErrQuotaExceeded) {
		t.Fatalf("expected quota rejection, got %v", err)
	}

	got, _ := svc.Load(ctx)
	if got.APIKey != "original" {
		t.Errorf("APIKey = %q; oversized save must not partially apply", got.APIKey)
	}
}

func TestService_Reset(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_ = svc.Save(ctx, Settings{APIKey: "sk-1", Model: "gpt-4o"})
	if err := svc.Reset(ctx); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}

	got, _ := svc.Load(ctx)
	if got.APIKey != "" || got.Model != DefaultModel {
		t.Errorf("expected defaults after reset, got %+v", got)
	}
}

func TestSettings_IsBlocked(t *testing.T) {
	s := Settings{BlockedDomains: []string{"example.com", "Mail.Corp.NET "}}

	tests := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"mail.example.com", true},
		{"deep.sub.example.com", true},
		{"notexample.com", false},
		{"example.com.evil.org", false},
		{"mail.corp.net", true},
		{"MAIL.CORP.NET", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := s.IsBlocked(tt.host); got != tt.want {
			t.Errorf("IsBlocked(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}
