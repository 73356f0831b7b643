package llm

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct{}

func (stubProvider) GenerateContent(context.Context, string) (string, error) { return "ok", nil }
func (stubProvider) GetProviderName() string { return "stub" }
func (stubProvider) Close() error { return nil }

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{"plain", `{"score": 7}`, `{"score": 7}`, false},
		{"fenced", "```json\n{\"score\": 7}\n```", `{"score": 7}`, false},
		{"chatter", `Here you go: {"a": {"b": 1}} thanks`, `{"a": {"b": 1}}`, false},
		{"none", "no json here", "", true},
		{"reversed", "} oops {", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ProviderError{Provider: "vertexai", Code: ErrCodeServiceDown, Message: "failed", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("ProviderError should unwrap to its cause")
	}
	if got, want := err.Error(), "vertexai error: failed (boom)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRegistry(t *testing.T) {
	RegisterProvider("stub", func(Settings) (Provider, error) { return stubProvider{}, nil })

	p, err := NewProvider("stub", Settings{})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if p.GetProviderName() != "stub" {
		t.Errorf("GetProviderName() = %q", p.GetProviderName())
	}

	if _, err := NewProvider("nope", Settings{}); err == nil {
		t.Error("Expected error for unknown provider")
	}

	names := ProviderNames()
	for _, want := range []string{"gemini", "stub", "vertexai"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("ProviderNames() = %v, missing %s", names, want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"rpc error: code = ResourceExhausted desc = Quota exceeded", ErrCodeRateLimit},
		{"Error 429: too many requests", ErrCodeRateLimit},
		{"rpc error: code = InvalidArgument", ErrCodeInvalidInput},
		{"connection refused", ErrCodeServiceDown},
	}
	for _, tt := range tests {
		if got := classifyError(errors.New(tt.msg)); got != tt.want {
			t.Errorf("classifyError(%q) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}

func TestNewVertexAIClientRequiresProject(t *testing.T) {
	_, err := NewVertexAIClient(context.Background(), Settings{})
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Code != ErrCodeConfig {
		t.Fatalf("Expected config ProviderError, got %v", err)
	}
}
