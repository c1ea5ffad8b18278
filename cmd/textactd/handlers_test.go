package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	textact "github.com/EugeneMsv/textact"
	"github.com/EugeneMsv/textact/internal/requestlog"
	"github.com/EugeneMsv/textact/internal/settings"
	"github.com/EugeneMsv/textact/internal/storage"
	"github.com/EugeneMsv/textact/providers"
)

type fakeProvider struct {
	name   string
	models []string
	text   string
	err    error
}

func (f *fakeProvider) Name() string              { return f.name }
func (f *fakeProvider) SupportedModels() []string { return f.models }
func (f *fakeProvider) SupportsModel(m string) bool {
	for _, mm := range f.models {
		if mm == m {
			return true
		}
	}
	return false
}

func (f *fakeProvider) Generate(_ context.Context, req providers.Request) (*providers.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &providers.Response{Text: f.text, Model: req.Model, Provider: f.name}, nil
}

func newTestRouter(t *testing.T, fake *fakeProvider) (http.Handler, storage.Store) {
	t.Helper()

	registry := providers.NewRegistry()
	registry.Register(fake)
	store := storage.NewMemoryStore(storage.Limits{})
	svc := settings.NewService(store)

	cfg := textact.Config{
		Targets: []textact.Target{{Provider: fake.name}},
		CircuitBreaker: textact.BreakerConfig{
			FailureThreshold: 100,
			SuccessThreshold: 1,
			CooldownSeconds:  60,
		},
	}
	dispatcher, err := textact.NewDispatcher(cfg, registry, svc, requestlog.NoopWriter{})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return newRouter(dispatcher, store, requestlog.NoopWriter{}, nil), store
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t, &fakeProvider{name: "gemini", models: []string{"gemini-model"}, text: "ok"})
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "OK" {
		t.Errorf("body = %q, want OK", got)
	}
}

func TestActionEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r, _ := newTestRouter(t, &fakeProvider{name: "gemini", models: []string{"gemini-model"}, text: "a summary"})

		req := httptest.NewRequest("POST", "/v1/actions/summarize",
			strings.NewReader(`{"text":"long article"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
		}
		var result textact.ActionResult
		if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if result.Text != "a summary" {
			t.Errorf("responseText = %q, want %q", result.Text, "a summary")
		}
		if result.Provider != "gemini" {
			t.Errorf("provider = %q, want gemini", result.Provider)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		r, _ := newTestRouter(t, &fakeProvider{name: "gemini", models: []string{"gemini-model"}, text: "x"})

		req := httptest.NewRequest("POST", "/v1/actions/shorten",
			strings.NewReader(`{"text":"t"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		var body struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decoding error body: %v", err)
		}
		if body.Error.Message == "" {
			t.Error("error payload missing nested error.message")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		r, _ := newTestRouter(t, &fakeProvider{name: "gemini", models: []string{"gemini-model"}, text: "x"})

		req := httptest.NewRequest("POST", "/v1/actions/summarize", strings.NewReader(`{`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("remote failure maps to 502", func(t *testing.T) {
		r, _ := newTestRouter(t, &fakeProvider{
			name:   "gemini",
			models: []string{"gemini-model"},
			err:    &providers.Error{Provider: "gemini", StatusCode: 500, Message: "boom"},
		})

		req := httptest.NewRequest("POST", "/v1/actions/summarize",
			strings.NewReader(`{"text":"t"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502: %s", w.Code, w.Body)
		}
	})

	t.Run("blocked domain maps to 403", func(t *testing.T) {
		r, store := newTestRouter(t, &fakeProvider{name: "gemini", models: []string{"gemini-model"}, text: "x"})
		svc := settings.NewService(store)
		if err := svc.Save(context.Background(), settings.Settings{BlockedDomains: []string{"example.com"}}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		req := httptest.NewRequest("POST", "/v1/actions/summarize",
			strings.NewReader(`{"text":"t","sourceUrl":"https://example.com/page"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403: %s", w.Code, w.Body)
		}
	})
}

func TestSettingsEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, &fakeProvider{name: "gemini", models: []string{"gemini-model"}, text: "x"})

	t.Run("get returns defaults", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/settings", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var s settings.Settings
		if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
			t.Fatalf("decoding settings: %v", err)
		}
		if s.Model != settings.DefaultModel {
			t.Errorf("model = %q, want %q", s.Model, settings.DefaultModel)
		}
	})

	t.Run("put then get round-trips", func(t *testing.T) {
		put := httptest.NewRequest("PUT", "/v1/settings",
			strings.NewReader(`{"model":"gemini-model","blockedDomains":["example.com"]}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, put)
		if w.Code != http.StatusOK {
			t.Fatalf("PUT status = %d, want 200: %s", w.Code, w.Body)
		}

		get := httptest.NewRequest("GET", "/v1/settings", nil)
		w = httptest.NewRecorder()
		r.ServeHTTP(w, get)
		var s settings.Settings
		if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
			t.Fatalf("decoding settings: %v", err)
		}
		if s.Model != "gemini-model" {
			t.Errorf("model = %q, want gemini-model", s.Model)
		}
		if len(s.BlockedDomains) != 1 || s.BlockedDomains[0] != "example.com" {
			t.Errorf("blockedDomains = %v", s.BlockedDomains)
		}
	})

	t.Run("put rejects unknown fields", func(t *testing.T) {
		put := httptest.NewRequest("PUT", "/v1/settings",
			strings.NewReader(`{"model":"x","theme":"dark"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, put)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400: %s", w.Code, w.Body)
		}
	})

	t.Run("put rejects oversized values", func(t *testing.T) {
		big := strings.Repeat("x", 9000)
		put := httptest.NewRequest("PUT", "/v1/settings",
			strings.NewReader(`{"apiKey":"`+big+`"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, put)
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413: %s", w.Code, w.Body)
		}
	})

	t.Run("delete resets", func(t *testing.T) {
		del := httptest.NewRequest("DELETE", "/v1/settings", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, del)
		if w.Code != http.StatusNoContent {
			t.Fatalf("DELETE status = %d, want 204", w.Code)
		}

		get := httptest.NewRequest("GET", "/v1/settings", nil)
		w = httptest.NewRecorder()
		r.ServeHTTP(w, get)
		var s settings.Settings
		if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
			t.Fatalf("decoding settings: %v", err)
		}
		if s.Model != settings.DefaultModel {
			t.Errorf("model after reset = %q, want %q", s.Model, settings.DefaultModel)
		}
	})
}

func TestStorageUsageEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeProvider{name: "gemini", models: []string{"gemini-model"}, text: "x"})

	put := httptest.NewRequest("PUT", "/v1/settings", strings.NewReader(`{"model":"gemini-model"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, put)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body)
	}

	req := httptest.NewRequest("GET", "/v1/storage/usage", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var usage map[string]int
	if err := json.NewDecoder(w.Body).Decode(&usage); err != nil {
		t.Fatalf("decoding usage: %v", err)
	}
	if usage["bytesInUse"] <= 0 {
		t.Errorf("bytesInUse = %d, want > 0", usage["bytesInUse"])
	}
	if usage["itemLimit"] != storage.DefaultItemBytes || usage["totalLimit"] != storage.DefaultTotalBytes {
		t.Errorf("limits = %d/%d, want %d/%d",
			usage["itemLimit"], usage["totalLimit"], storage.DefaultItemBytes, storage.DefaultTotalBytes)
	}
}

func TestLogsEndpointWithoutSQLBackend(t *testing.T) {
	r, _ := newTestRouter(t, &fakeProvider{name: "gemini", models: []string{"gemini-model"}, text: "x"})

	req := httptest.NewRequest("GET", "/v1/logs", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var entries []requestlog.Entry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decoding entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

func TestSettingsPage(t *testing.T) {
	r, _ := newTestRouter(t, &fakeProvider{name: "gemini", models: []string{"gemini-model"}, text: "x"})

	req := httptest.NewRequest("GET", "/settings", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(w.Body.String(), "textact settings") {
		t.Error("settings page body missing title")
	}
}

func TestCORSMiddleware(t *testing.T) {
	r, _ := newTestRouter(t, &fakeProvider{name: "gemini", models: []string{"gemini-model"}, text: "x"})

	t.Run("wildcard by default", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/healthz", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q, want *", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/v1/actions/summarize", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want 204", w.Code)
		}
	})
}
