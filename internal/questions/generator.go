package questions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fmuoria/ai-interviewer/internal/llm"
	"github.com/fmuoria/ai-interviewer/internal/models"
	"github.com/fmuoria/ai-interviewer/internal/prompts"
)

// QuestionInput is everything the generator sees when asking the next question
type QuestionInput struct {
	JobDescription  string
	Resume          string
	Project         string
	ExperienceYears int
	Previous        []string
}

// Generator produces interview questions with an LLM
type Generator struct {
	provider llm.Provider
	prompts  *prompts.PromptManager
}

// NewGenerator creates a question generator
func NewGenerator(provider llm.Provider, pm *prompts.PromptManager) *Generator {
	return &Generator{
		provider: provider,
		prompts:  pm,
	}
}

// GenerateQuestion asks the model for one new question tailored to the candidate
func (g *Generator) GenerateQuestion(ctx context.Context, in QuestionInput) (string, error) {
	prompt, err := g.prompts.BuildPrompt(prompts.Question, map[string]string{
		"JobDescription":    in.JobDescription,
		"Resume":            in.Resume,
		"Project":           in.Project,
		"ExperienceYears":   strconv.Itoa(in.ExperienceYears),
		"PreviousQuestions": formatPrevious(in.Previous),
	})
	if err != nil {
		return "", &models.GenerationError{Op: "question", Err: err}
	}

	response, err := g.provider.GenerateContent(ctx, prompt)
	if err != nil {
		return "", &models.GenerationError{Op: "question", Err: fmt.Errorf("failed to get LLM response: %w", err)}
	}

	question := cleanQuestion(response)
	if question == "" {
		return "", &models.GenerationError{Op: "question", Err: errors.New("model returned an empty question")}
	}
	return question, nil
}

func formatPrevious(previous []string) string {
	if len(previous) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for i, q := range previous {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, q))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// cleanQuestion strips labels and markdown the model sometimes adds
func cleanQuestion(response string) string {
	q := strings.TrimSpace(response)
	q = strings.Trim(q, "*`\"")
	q = strings.TrimSpace(q)

	lower := strings.ToLower(q)
	for _, prefix := range []string{"question:", "q:"} {
		if strings.HasPrefix(lower, prefix) {
			q = strings.Trim(q[len(prefix):], "*`\" ")
			break
		}
	}
	return q
}
