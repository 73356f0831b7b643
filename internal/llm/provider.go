package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider generates text from a prompt
type Provider interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	GetProviderName() string
	Close() error
}

// VisionProvider is a Provider that can also reason about an image
type VisionProvider interface {
	Provider
	GenerateFromImage(ctx context.Context, prompt string, mimeType string, image []byte) (string, error)
}

// Settings carries what a provider factory needs to connect
type Settings struct {
	Project  string
	Location string
	APIKey   string
	Model    string
}

// represents an error from an LLM provider
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + " error: " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Provider + " error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Common error codes
const (
	ErrCodeConfig       = "invalid_config"
	ErrCodeRateLimit    = "rate_limit_exceeded"
	ErrCodeServiceDown  = "service_unavailable"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeEmpty        = "empty_response"
)

// ExtractJSON returns the outermost JSON object in a model response, tolerating
// markdown fences and chatter around it
func ExtractJSON(response string) (string, error) {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("no JSON found in response")
	}

	return response[startIdx : endIdx+1], nil
}
