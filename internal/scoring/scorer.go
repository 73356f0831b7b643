package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fmuoria/ai-interviewer/internal/ingestion"
	"github.com/fmuoria/ai-interviewer/internal/llm"
	"github.com/fmuoria/ai-interviewer/internal/models"
	"github.com/fmuoria/ai-interviewer/internal/prompts"
)

const (
	// MaxScore is the top of the per-answer scale
	MaxScore = 10.0
	// maxAnswerChars bounds how much of one answer is sent to the model
	maxAnswerChars = 6000
)

// Evaluation is the structured verdict the model returns for one answer
type Evaluation struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Scorer grades answers and writes interview feedback using an LLM
type Scorer struct {
	provider llm.Provider
	prompts  *prompts.PromptManager
}

// NewScorer creates a new scorer instance
func NewScorer(provider llm.Provider, pm *prompts.PromptManager) *Scorer {
	return &Scorer{
		provider: provider,
		prompts:  pm,
	}
}

// EvaluateAnswer scores one answer on a 0-10 scale
func (s *Scorer) EvaluateAnswer(ctx context.Context, question, answer string) (float64, error) {
	prompt, err := s.prompts.BuildPrompt(prompts.Evaluate, map[string]string{
		"Question": ingestion.SanitizeUTF8(question),
		"Answer":   truncate(ingestion.SanitizeUTF8(answer), maxAnswerChars),
	})
	if err != nil {
		return 0, &models.ScoringError{Err: err}
	}

	response, err := s.provider.GenerateContent(ctx, prompt)
	if err != nil {
		return 0, &models.ScoringError{Err: fmt.Errorf("failed to get LLM response: %w", err)}
	}

	eval, err := parseEvaluation(response)
	if err != nil {
		return 0, &models.ScoringError{Err: fmt.Errorf("failed to parse score: %w", err)}
	}

	return eval.Score, nil
}

// GenerateFeedback writes candidate feedback over the scored log
func (s *Scorer) GenerateFeedback(ctx context.Context, entries []models.QAEntry) (string, error) {
	if len(entries) == 0 {
		return "", &models.GenerationError{Op: "feedback", Err: errors.New("no answers to review")}
	}

	prompt, err := s.prompts.BuildPrompt(prompts.Feedback, map[string]string{
		"Transcript": buildTranscript(entries),
	})
	if err != nil {
		return "", &models.GenerationError{Op: "feedback", Err: err}
	}

	response, err := s.provider.GenerateContent(ctx, prompt)
	if err != nil {
		return "", &models.GenerationError{Op: "feedback", Err: fmt.Errorf("failed to get LLM response: %w", err)}
	}

	feedback := strings.TrimSpace(response)
	if feedback == "" {
		return "", &models.GenerationError{Op: "feedback", Err: errors.New("model returned empty feedback")}
	}
	return feedback, nil
}

// buildTranscript renders the log the way the report lists it
func buildTranscript(entries []models.QAEntry) string {
	var sb strings.Builder
	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("Q%d: %s\n", i+1, ingestion.SanitizeUTF8(e.Question)))
		sb.WriteString(fmt.Sprintf("A%d: %s\n", i+1, truncate(ingestion.SanitizeUTF8(e.Answer), maxAnswerChars)))
		if e.Scored() {
			sb.WriteString(fmt.Sprintf("Score: %.1f/10\n", e.ScoreValue()))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// parseEvaluation extracts the score from LLM response and clamps it to the scale
func parseEvaluation(response string) (Evaluation, error) {
	jsonStr, err := llm.ExtractJSON(response)
	if err != nil {
		return Evaluation{}, err
	}

	var eval Evaluation
	if err := json.Unmarshal([]byte(jsonStr), &eval); err != nil {
		return Evaluation{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	if eval.Score < 0 {
		eval.Score = 0
	}
	if eval.Score > MaxScore {
		eval.Score = MaxScore
	}
	return eval, nil
}

// truncate shortens s to maxLen bytes, marking the cut with "..."
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return strings.ToValidUTF8(s[:maxLen], "") + "..."
}
