package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fmuoria/ai-interviewer/internal/fsutil"
	"github.com/fmuoria/ai-interviewer/internal/models"
)

const (
	reportPrefix = "interview_report_"
	textSuffix   = ".txt"
	jsonSuffix   = ".json"
)

// ReportWriter stores finished reports as a plain-text file plus a JSON copy.
// The text file is written last and its presence marks the report as complete.
type ReportWriter struct {
	dir string
}

// NewReportWriter creates a writer rooted at dir
func NewReportWriter(dir string) (*ReportWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}
	return &ReportWriter{dir: dir}, nil
}

// TextPath returns the location of the plain-text report
func (w *ReportWriter) TextPath(interviewID string) string {
	return filepath.Join(w.dir, reportPrefix+interviewID+textSuffix)
}

// JSONPath returns the location of the structured report copy
func (w *ReportWriter) JSONPath(interviewID string) string {
	return filepath.Join(w.dir, reportPrefix+interviewID+jsonSuffix)
}

// Exists reports whether a complete report is on disk
func (w *ReportWriter) Exists(interviewID string) bool {
	_, err := os.Stat(w.TextPath(interviewID))
	return err == nil
}

// Write stores the report atomically
func (w *ReportWriter) Write(report *models.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := fsutil.WriteFileAtomic(w.JSONPath(report.InterviewID), data, 0644); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(w.TextPath(report.InterviewID), []byte(FormatReport(report)), 0644)
}

// Read loads a stored report, or models.ErrReportNotFound
func (w *ReportWriter) Read(interviewID string) (*models.Report, error) {
	if !w.Exists(interviewID) {
		return nil, models.ErrReportNotFound
	}

	data, err := os.ReadFile(w.JSONPath(interviewID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("report %s has no structured copy: %w", interviewID, err)
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// List returns the ids of every complete report, sorted
func (w *ReportWriter) List() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, reportPrefix) || !strings.HasSuffix(name, textSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, reportPrefix), textSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// FormatReport renders the plain-text report
func FormatReport(report *models.Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Interview ID: %s\n", report.InterviewID))
	sb.WriteString(fmt.Sprintf("Average Score: %.2f\n", report.AverageScore))
	sb.WriteString(fmt.Sprintf("Decision: %s\n", report.Decision))
	if report.TimedOut {
		sb.WriteString("Note: interview ended when the time limit was reached\n")
	}
	sb.WriteString("\n")

	sb.WriteString("Detailed Answers and Scores:\n")
	for i, e := range report.Entries {
		sb.WriteString(fmt.Sprintf("Q%d: %s\n", i+1, e.Question))
		sb.WriteString(fmt.Sprintf("A%d: %s\n", i+1, e.Answer))
		sb.WriteString(fmt.Sprintf("Score: %s\n", formatScore(e.ScoreValue())))
		if e.ScoreError != "" {
			sb.WriteString(fmt.Sprintf("Scoring error: %s\n", e.ScoreError))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Feedback:\n")
	sb.WriteString(report.Feedback)
	sb.WriteString("\n")

	return sb.String()
}

// formatScore prints whole scores without decimals
func formatScore(score float64) string {
	if score == float64(int64(score)) {
		return fmt.Sprintf("%d", int64(score))
	}
	return fmt.Sprintf("%.1f", score)
}
