package llm

import (
	"context"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

func init() {
	RegisterProvider("vertexai", func(settings Settings) (Provider, error) {
		return NewVertexAIClient(context.Background(), settings)
	})
}

// VertexAIClient wraps the Vertex AI Gemini API
type VertexAIClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	projectID string
	location  string
}

// NewVertexAIClient creates a new Vertex AI client
func NewVertexAIClient(ctx context.Context, settings Settings) (*VertexAIClient, error) {
	if settings.Project == "" {
		return nil, &ProviderError{Provider: "vertexai", Code: ErrCodeConfig, Message: "GOOGLE_CLOUD_PROJECT not set"}
	}

	location := settings.Location
	if location == "" {
		location = "us-central1"
	}
	modelName := settings.Model
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, settings.Project, location)
	if err != nil {
		return nil, &ProviderError{Provider: "vertexai", Code: ErrCodeConfig, Message: "failed to create Vertex AI client", Err: err}
	}

	model := client.GenerativeModel(modelName)

	// low temperature keeps scoring consistent between runs
	model.SetTemperature(0.2)
	model.SetTopK(40)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(2048)

	return &VertexAIClient{
		client:    client,
		model:     model,
		projectID: settings.Project,
		location:  location,
	}, nil
}

// GenerateContent sends a prompt to the model and returns the response
func (v *VertexAIClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return v.generate(ctx, genai.Text(prompt))
}

// GenerateFromImage sends a prompt together with an image, e.g. a camera frame
func (v *VertexAIClient) GenerateFromImage(ctx context.Context, prompt string, mimeType string, image []byte) (string, error) {
	format := strings.TrimPrefix(mimeType, "image/")
	return v.generate(ctx, genai.ImageData(format, image), genai.Text(prompt))
}

func (v *VertexAIClient) generate(ctx context.Context, parts ...genai.Part) (string, error) {
	resp, err := v.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", &ProviderError{Provider: "vertexai", Code: classifyError(err), Message: "failed to generate content", Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &ProviderError{Provider: "vertexai", Code: ErrCodeEmpty, Message: "no response candidates returned"}
	}

	var result strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			result.WriteString(string(text))
		}
	}

	if result.Len() == 0 {
		return "", &ProviderError{Provider: "vertexai", Code: ErrCodeEmpty, Message: "empty response generated"}
	}
	return result.String(), nil
}

// GetProviderName returns the registry name of this provider
func (v *VertexAIClient) GetProviderName() string {
	return "vertexai"
}

// Close closes the Vertex AI client
func (v *VertexAIClient) Close() error {
	return v.client.Close()
}

// classifyError maps transport errors onto provider error codes
func classifyError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "resourceexhausted"),
		strings.Contains(msg, "resource exhausted"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota"):
		return ErrCodeRateLimit
	case strings.Contains(msg, "invalidargument"), strings.Contains(msg, "invalid argument"):
		return ErrCodeInvalidInput
	default:
		return ErrCodeServiceDown
	}
}
