package checkpoint

import (
	"errors"

	"github.com/fmuoria/ai-interviewer/internal/models"
)

// ErrNotFound is returned by Load when no checkpoint exists for an interview
var ErrNotFound = errors.New("checkpoint not found")

// Store persists the answered questions of in-flight interviews
type Store interface {
	// Save replaces the checkpoint with the full log
	Save(interviewID string, entries []models.QAEntry) error
	Load(interviewID string) ([]models.QAEntry, error)
	Delete(interviewID string) error
	// List returns the ids of every interview that has a checkpoint
	List() ([]string, error)
}
