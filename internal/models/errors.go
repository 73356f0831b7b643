package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionNotFound is returned when no session exists for an interview id
	ErrSessionNotFound = errors.New("interview session not found")
	// ErrNoPendingQuestion is returned when an answer arrives with no question outstanding
	ErrNoPendingQuestion = errors.New("no question is pending an answer")
	// ErrTimeExpired is returned when the interview budget ran out before the action
	ErrTimeExpired = errors.New("interview time is over")
	// ErrReportNotFound is returned when no report has been written for an interview
	ErrReportNotFound = errors.New("report not found")
)

// IncompleteIntakeError lists the documents missing or empty at interview start
type IncompleteIntakeError struct {
	Missing []DocumentKind
}

func (e *IncompleteIntakeError) Error() string {
	labels := make([]string, len(e.Missing))
	for i, k := range e.Missing {
		labels[i] = k.Label()
	}
	return "missing or unreadable documents: " + strings.Join(labels, ", ")
}

// UnsupportedFormatError is returned when a document cannot be converted to text
type UnsupportedFormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *UnsupportedFormatError) Error() string {
	msg := fmt.Sprintf("unsupported document %s", e.Path)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

// GenerationError wraps a failed question or feedback generation call
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ScoringError wraps a failed answer evaluation
type ScoringError struct {
	Err error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("failed to score answer: %v", e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }

// CameraUnavailableError is returned when a camera frame cannot be acquired
type CameraUnavailableError struct {
	Err error
}

func (e *CameraUnavailableError) Error() string {
	return fmt.Sprintf("camera unavailable: %v", e.Err)
}

func (e *CameraUnavailableError) Unwrap() error { return e.Err }

// CheckpointWriteError is returned when answered questions could not be persisted
type CheckpointWriteError struct {
	InterviewID string
	Err         error
}

func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("failed to write checkpoint for interview %s: %v", e.InterviewID, e.Err)
}

func (e *CheckpointWriteError) Unwrap() error { return e.Err }

// ReportWriteError is returned when the final report could not be written
type ReportWriteError struct {
	InterviewID string
	Err         error
}

func (e *ReportWriteError) Error() string {
	return fmt.Sprintf("failed to write report for interview %s: %v", e.InterviewID, e.Err)
}

func (e *ReportWriteError) Unwrap() error { return e.Err }

// InvalidPhaseError is returned when an operation is not allowed in the current phase
type InvalidPhaseError struct {
	Op    string
	Phase Phase
}

func (e *InvalidPhaseError) Error() string {
	return fmt.Sprintf("cannot %s while interview is in phase %q", e.Op, e.Phase)
}
