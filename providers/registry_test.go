package providers

import (
	"context"
	"testing"
)

type stubProvider struct {
	name   string
	models []string
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Generate(_ context.Context, _ Request) (*Response, error) {
	return &Response{Text: "stub", Provider: s.name}, nil
}
func (s *stubProvider) SupportedModels() []string { return s.models }
func (s *stubProvider) SupportsModel(model string) bool {
	for _, m := range s.models {
		if m == model {
			return true
		}
	}
	return false
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "gemini", models: []string{"gemini-2.0-flash"}})

	p, ok := r.Get("gemini")
	if !ok {
		t.Fatal("expected gemini to be registered")
	}
	if p.Name() != "gemini" {
		t.Errorf("Name() = %q", p.Name())
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("expected miss for unregistered provider")
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "openai"})
	r.Register(&stubProvider{name: "gemini"})

	got := r.List()
	if len(got) != 2 || got[0] != "gemini" || got[1] != "openai" {
		t.Errorf("List() = %v, want sorted [gemini openai]", got)
	}
}

func TestRegistry_FindByModel(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubProvider{name: "gemini", models: []string{"gemini-2.0-flash"}})
	r.Register(&stubProvider{name: "openai", models: []string{"gpt-4o"}})

	p, ok := r.FindByModel("gpt-4o")
	if !ok || p.Name() != "openai" {
		t.Errorf("FindByModel(gpt-4o) = %v, %v", p, ok)
	}
	if _, ok := r.FindByModel("unknown-model"); ok {
		t.Error("expected no provider for unknown model")
	}
}
