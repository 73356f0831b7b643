package proctoring

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fmuoria/ai-interviewer/internal/llm"
	"github.com/fmuoria/ai-interviewer/internal/prompts"
)

// FaceCounter reports how many faces are visible in a frame
type FaceCounter interface {
	CountFaces(ctx context.Context, frame Frame) (int, error)
}

// VisionFaceCounter asks a multimodal model to count faces
type VisionFaceCounter struct {
	provider llm.VisionProvider
	prompts  *prompts.PromptManager
}

// NewVisionFaceCounter creates a face counter backed by a vision-capable provider
func NewVisionFaceCounter(provider llm.VisionProvider, pm *prompts.PromptManager) *VisionFaceCounter {
	return &VisionFaceCounter{provider: provider, prompts: pm}
}

type faceCount struct {
	Faces *int `json:"faces"`
}

// CountFaces sends the frame to the model and parses {"faces": n}
func (v *VisionFaceCounter) CountFaces(ctx context.Context, frame Frame) (int, error) {
	prompt, err := v.prompts.BuildPrompt(prompts.Face, nil)
	if err != nil {
		return 0, err
	}

	response, err := v.provider.GenerateFromImage(ctx, prompt, frame.MIMEType, frame.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to get LLM response: %w", err)
	}

	jsonStr, err := llm.ExtractJSON(response)
	if err != nil {
		return 0, err
	}

	var fc faceCount
	if err := json.Unmarshal([]byte(jsonStr), &fc); err != nil {
		return 0, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if fc.Faces == nil || *fc.Faces < 0 {
		return 0, fmt.Errorf("invalid face count in response: %s", jsonStr)
	}
	return *fc.Faces, nil
}
