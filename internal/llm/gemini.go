package llm

import (
	"context"

	"google.golang.org/genai"
)

func init() {
	RegisterProvider("gemini", func(settings Settings) (Provider, error) {
		return NewGeminiClient(context.Background(), settings)
	})
}

// GeminiClient talks to the Gemini API with an API key
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a client for the configured model
func NewGeminiClient(ctx context.Context, settings Settings) (*GeminiClient, error) {
	if settings.APIKey == "" {
		return nil, &ProviderError{Provider: "gemini", Code: ErrCodeConfig, Message: "GEMINI_API_KEY not set"}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  settings.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &ProviderError{
			Provider: "gemini",
			Code:     ErrCodeConfig,
			Message:  "Failed to create Gemini client",
			Err:      err,
		}
	}

	model := settings.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}

	return &GeminiClient{client: client, model: model}, nil
}

// GenerateContent sends prompt and returns the concatenated text parts
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(
		ctx,
		c.model,
		genai.Text(prompt),
		nil,
	)
	if err != nil {
		return "", &ProviderError{
			Provider: "gemini",
			Code:     classifyError(err),
			Message:  "Failed to generate content",
			Err:      err,
		}
	}

	if result == nil {
		return "", &ProviderError{
			Provider: "gemini",
			Code:     ErrCodeEmpty,
			Message:  "No response generated",
		}
	}

	text, err := result.Text()
	if err != nil {
		return "", &ProviderError{
			Provider: "gemini",
			Code:     ErrCodeInvalidInput,
			Message:  "Failed to extract response text",
			Err:      err,
		}
	}
	if text == "" {
		return "", &ProviderError{
			Provider: "gemini",
			Code:     ErrCodeEmpty,
			Message:  "Empty response generated",
		}
	}

	return text, nil
}

// GetProviderName returns the provider name
func (c *GeminiClient) GetProviderName() string {
	return "gemini"
}

// Close is a no-op; the Gemini API client holds no connection
func (c *GeminiClient) Close() error {
	return nil
}
