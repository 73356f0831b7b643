package proctoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fmuoria/ai-interviewer/internal/fsutil"
	"github.com/fmuoria/ai-interviewer/internal/locks"
	"github.com/fmuoria/ai-interviewer/internal/metrics"
	"github.com/fmuoria/ai-interviewer/internal/models"
)

const (
	eventLogFile     = "face_events.json"
	initialFaceFile  = "initial_face"
	snapshotTimeForm = "20060102_150405.000"
)

// EventLog is the append-only proctoring log of every interview, stored as
// <dir>/<interview id>/face_events.json with snapshots next to it.
type EventLog struct {
	dir   string
	locks *locks.KeyedMutex
	now   func() time.Time
}

// NewEventLog creates an event log rooted at dir
func NewEventLog(dir string) *EventLog {
	return &EventLog{dir: dir, locks: locks.New(), now: time.Now}
}

// Dir returns the directory holding one interview's log and snapshots
func (l *EventLog) Dir(interviewID string) string {
	return filepath.Join(l.dir, interviewID)
}

// Append stores the frame as a snapshot (when given) and appends an event.
// Appends for the same interview are serialized and the log is rewritten atomically.
func (l *EventLog) Append(interviewID, message string, frame *Frame) (models.ProctoringEvent, error) {
	unlock := l.locks.Lock(interviewID)
	defer unlock()

	now := l.now()
	event := models.ProctoringEvent{Timestamp: now, Message: message}

	dir := l.Dir(interviewID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return event, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if frame != nil {
		name := now.Format(snapshotTimeForm) + "_" + uuid.NewString()[:8]
		path := filepath.Join(dir, name+frame.Ext())
		if err := os.WriteFile(path, frame.Data, 0644); err != nil {
			return event, fmt.Errorf("failed to write snapshot: %w", err)
		}
		event.SnapshotRef = path
	}

	events, err := l.read(interviewID)
	if err != nil {
		return event, err
	}
	events = append(events, event)

	data, err := json.MarshalIndent(events, "", "    ")
	if err != nil {
		return event, fmt.Errorf("failed to encode event log: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, eventLogFile), data, 0644); err != nil {
		return event, fmt.Errorf("failed to write event log: %w", err)
	}

	metrics.ProctoringEvent(message)
	return event, nil
}

// Events returns every logged event for an interview, oldest first
func (l *EventLog) Events(interviewID string) ([]models.ProctoringEvent, error) {
	unlock := l.locks.Lock(interviewID)
	defer unlock()
	return l.read(interviewID)
}

// SaveInitialFace stores the reference frame captured when the interview starts
func (l *EventLog) SaveInitialFace(interviewID string, frame Frame) (string, error) {
	unlock := l.locks.Lock(interviewID)
	defer unlock()

	path := filepath.Join(l.Dir(interviewID), initialFaceFile+frame.Ext())
	if err := fsutil.WriteFileAtomic(path, frame.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write initial face: %w", err)
	}
	return path, nil
}

func (l *EventLog) read(interviewID string) ([]models.ProctoringEvent, error) {
	data, err := os.ReadFile(filepath.Join(l.Dir(interviewID), eventLogFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.ProctoringEvent{}, nil
		}
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	var events []models.ProctoringEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse event log: %w", err)
	}
	return events, nil
}
