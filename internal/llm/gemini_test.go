package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/genai"
)

func newStubGemini(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     "test",
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: server.Client(),
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    server.URL,
			APIVersion: "v1beta",
		},
	})
	if err != nil {
		t.Fatalf("failed to create genai client: %v", err)
	}
	return &GeminiClient{client: client, model: "test-model"}
}

func TestGeminiGenerateContent(t *testing.T) {
	client := newStubGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/test-model:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "What is a goroutine?"}}}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	got, err := client.GenerateContent(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}
	if got != "What is a goroutine?" {
		t.Errorf("GenerateContent() = %q", got)
	}
}

func TestGeminiGenerateContentRateLimit(t *testing.T) {
	client := newStubGemini(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "429 rate limit", http.StatusTooManyRequests)
	})

	_, err := client.GenerateContent(context.Background(), "prompt")
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Code != ErrCodeRateLimit {
		t.Fatalf("Expected rate limit ProviderError, got %v", err)
	}
}

func TestGeminiGenerateContentEmpty(t *testing.T) {
	client := newStubGemini(t, func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"candidates": []map[string]any{{"content": map[string]any{"parts": []map[string]any{{"text": ""}}}}}}
		json.NewEncoder(w).Encode(resp)
	})

	if _, err := client.GenerateContent(context.Background(), "prompt"); err == nil {
		t.Fatal("Expected error for empty response")
	}
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background(), Settings{}); err == nil {
		t.Fatal("Expected error without API key")
	}
}
