package providers

import (
	"strings"
	"testing"
)

func TestRequest_Validate(t *testing.T) {
	temp := func(v float64) *float64 { return &v }
	max := func(v int) *int { return &v }

	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{"valid", Request{Model: "gemini-2.0-flash", Prompt: "hi"}, ""},
		{"missing model", Request{Prompt: "hi"}, "model is required"},
		{"missing prompt", Request{Model: "gemini-2.0-flash"}, "prompt is required"},
		{"temperature too high", Request{Model: "m", Prompt: "p", Temperature: temp(2.5)}, "temperature"},
		{"temperature negative", Request{Model: "m", Prompt: "p", Temperature: temp(-0.1)}, "temperature"},
		{"max tokens zero", Request{Model: "m", Prompt: "p", MaxTokens: max(0)}, "max_tokens"},
		{"boundary temperature", Request{Model: "m", Prompt: "p", Temperature: temp(2)}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	e := &Error{Provider: "gemini", StatusCode: 429, Message: "quota exhausted"}
	if got := e.Error(); got != "gemini API error (429): quota exhausted" {
		t.Errorf("Error() = %q", got)
	}

	e = &Error{Provider: "openai", Message: "connection refused"}
	if got := e.Error(); got != "openai API error: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}
