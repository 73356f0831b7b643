package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/fmuoria/ai-interviewer/internal/checkpoint"
	"github.com/fmuoria/ai-interviewer/internal/export"
	"github.com/fmuoria/ai-interviewer/internal/ingestion"
	"github.com/fmuoria/ai-interviewer/internal/locks"
	"github.com/fmuoria/ai-interviewer/internal/metrics"
	"github.com/fmuoria/ai-interviewer/internal/models"
	"github.com/fmuoria/ai-interviewer/internal/proctoring"
	"github.com/fmuoria/ai-interviewer/internal/session"
)

// GmailFetcher downloads intake documents attached to an email
type GmailFetcher interface {
	FetchAttachments(ctx context.Context, interviewID, subject string) (map[models.DocumentKind]string, error)
}

// ReportStore reads finished reports
type ReportStore interface {
	Exists(interviewID string) bool
	Read(interviewID string) (*models.Report, error)
	List() ([]string, error)
}

// EventSource reads the proctoring log of an interview
type EventSource interface {
	Events(interviewID string) ([]models.ProctoringEvent, error)
}

// MonitorFactory builds the background proctoring monitor of one interview
type MonitorFactory func(interviewID string) *proctoring.Monitor

// Options wires an InterviewAgent
type Options struct {
	Store       session.Store
	Machine     *session.Machine
	Files       *ingestion.FileHandler
	Gmail       GmailFetcher
	Checkpoints checkpoint.Store
	Reports     ReportStore
	Events      EventSource
	Checker     *proctoring.Checker
	NewMonitor  MonitorFactory
	// Extract turns an uploaded file into text; defaults to ingestion.ExtractText
	Extract func(path string) (string, error)
	Logger  *zap.Logger
}

// InterviewAgent orchestrates interviews: intake, questioning, proctoring and
// finalization. Actions on one interview are serialized; different interviews
// proceed independently.
type InterviewAgent struct {
	store       session.Store
	machine     *session.Machine
	files       *ingestion.FileHandler
	gmail       GmailFetcher
	checkpoints checkpoint.Store
	reports     ReportStore
	events      EventSource
	checker     *proctoring.Checker
	newMonitor  MonitorFactory
	extract     func(string) (string, error)
	logger      *zap.Logger
	locks       *locks.KeyedMutex
	// shared extends the per-interview lock to other instances
	shared session.Locker

	mu       sync.Mutex
	monitors map[string]*proctoring.Monitor
}

// NewInterviewAgent creates a new interview agent
func NewInterviewAgent(opts Options) *InterviewAgent {
	a := &InterviewAgent{
		store:       opts.Store,
		machine:     opts.Machine,
		files:       opts.Files,
		gmail:       opts.Gmail,
		checkpoints: opts.Checkpoints,
		reports:     opts.Reports,
		events:      opts.Events,
		checker:     opts.Checker,
		newMonitor:  opts.NewMonitor,
		extract:     opts.Extract,
		logger:      opts.Logger,
		locks:       locks.New(),
		monitors:    make(map[string]*proctoring.Monitor),
	}
	if a.store == nil {
		a.store = session.NewMemoryStore()
	}
	if l, ok := a.store.(session.Locker); ok {
		a.shared = l
	}
	if a.extract == nil {
		a.extract = ingestion.ExtractText
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// lock serializes work on one interview. With a shared store the lock also
// holds off other instances.
func (a *InterviewAgent) lock(ctx context.Context, id string) (func(), error) {
	unlock := a.locks.Lock(id)
	if a.shared == nil {
		return unlock, nil
	}

	release, err := a.shared.Lock(ctx, id)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("failed to lock interview %s: %w", id, err)
	}
	return func() {
		release()
		unlock()
	}, nil
}

// load returns the stored session. Sessions are dropped once their report is
// written, so a finished interview comes back as a DONE session rebuilt from
// the report.
func (a *InterviewAgent) load(ctx context.Context, id string) (*models.InterviewSession, error) {
	s, err := a.store.Get(ctx, id)
	if !errors.Is(err, models.ErrSessionNotFound) || a.reports == nil || !a.reports.Exists(id) {
		return s, err
	}

	report, err := a.reports.Read(id)
	if err != nil {
		return nil, err
	}
	s = a.machine.NewSession()
	s.ID = id
	s.Phase = models.PhaseDone
	s.QALog = report.Entries
	s.TimedOut = report.TimedOut
	return s, nil
}

// update loads a session under its lock, applies fn and stores the result.
// The session is stored even when fn fails, since a failed submit can still
// move the session to FINALIZING.
func (a *InterviewAgent) update(ctx context.Context, id string, fn func(s *models.InterviewSession) error) (*models.InterviewSession, error) {
	unlock, err := a.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := a.load(ctx, id)
	if err != nil {
		return nil, err
	}

	before := s.Clone()
	fnErr := fn(s)
	if !before.Phase.CanAdvanceTo(s.Phase) {
		return nil, fmt.Errorf("interview %s cannot move from %s back to %s", id, before.Phase, s.Phase)
	}
	if s.TimedOut && !before.TimedOut {
		metrics.InterviewTimedOut()
	}

	if err := a.persist(ctx, before, s); err != nil {
		if fnErr != nil {
			a.logger.Error("failed to store session", zap.String("interview_id", id), zap.Error(err))
			return s, fnErr
		}
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return s, fnErr
}

// persist writes s back when fn changed it. A DONE session is removed instead;
// its report is the record from then on.
func (a *InterviewAgent) persist(ctx context.Context, before, s *models.InterviewSession) error {
	switch {
	case s.Phase == models.PhaseDone:
		if err := a.store.Delete(ctx, s.ID); err != nil {
			a.logger.Warn("failed to delete finished session", zap.String("interview_id", s.ID), zap.Error(err))
		}
		return nil
	case reflect.DeepEqual(before, s):
		return nil
	default:
		return a.store.Put(ctx, s)
	}
}

// Create starts a new interview in INTAKE
func (a *InterviewAgent) Create(ctx context.Context) (models.SessionView, error) {
	s := a.machine.NewSession()
	if err := a.store.Put(ctx, s); err != nil {
		return models.SessionView{}, fmt.Errorf("failed to store session: %w", err)
	}
	a.logger.Info("interview created", zap.String("interview_id", s.ID))
	return models.NewSessionView(s, a.machine.Now()), nil
}

// GetSession returns the current view of an interview
func (a *InterviewAgent) GetSession(ctx context.Context, id string) (models.SessionView, error) {
	s, err := a.load(ctx, id)
	if err != nil {
		return models.SessionView{}, err
	}
	return models.NewSessionView(s, a.machine.Now()), nil
}

// UploadDocument stores an intake document and extracts its text
func (a *InterviewAgent) UploadDocument(ctx context.Context, id string, kind models.DocumentKind, filename string, content io.Reader) (models.SessionView, error) {
	s, err := a.update(ctx, id, func(s *models.InterviewSession) error {
		if s.Phase != models.PhaseIntake {
			return &models.InvalidPhaseError{Op: "upload a document", Phase: s.Phase}
		}

		path, err := a.files.SaveUploadedFile(id, kind, filename, content)
		if err != nil {
			return err
		}

		text, err := a.extract(path)
		if err != nil {
			return err
		}

		a.logger.Info("document uploaded",
			zap.String("interview_id", id),
			zap.String("kind", string(kind)),
			zap.Int("chars", len(text)))
		return a.machine.SetDocument(s, kind, text)
	})
	if err != nil {
		return models.SessionView{}, err
	}
	return models.NewSessionView(s, a.machine.Now()), nil
}

// IngestFromGmail fetches intake documents from the newest email matching subject
func (a *InterviewAgent) IngestFromGmail(ctx context.Context, id, subject string) (models.SessionView, error) {
	if a.gmail == nil {
		return models.SessionView{}, errors.New("gmail intake is not configured")
	}

	s, err := a.update(ctx, id, func(s *models.InterviewSession) error {
		if s.Phase != models.PhaseIntake {
			return &models.InvalidPhaseError{Op: "fetch documents", Phase: s.Phase}
		}

		docs, err := a.gmail.FetchAttachments(ctx, id, subject)
		if err != nil {
			return fmt.Errorf("failed to fetch Gmail attachments: %w", err)
		}

		for _, kind := range models.DocumentKinds {
			path, ok := docs[kind]
			if !ok {
				continue
			}
			text, err := a.extract(path)
			if err != nil {
				return err
			}
			if err := a.machine.SetDocument(s, kind, text); err != nil {
				return err
			}
		}

		a.logger.Info("documents fetched from gmail",
			zap.String("interview_id", id),
			zap.String("subject", subject),
			zap.Int("documents", len(docs)))
		return nil
	})
	if err != nil {
		return models.SessionView{}, err
	}
	return models.NewSessionView(s, a.machine.Now()), nil
}

// Start begins questioning and launches the proctoring monitor
func (a *InterviewAgent) Start(ctx context.Context, id string) (models.SessionView, error) {
	s, err := a.update(ctx, id, func(s *models.InterviewSession) error {
		return a.machine.Start(s)
	})
	if err != nil {
		return models.SessionView{}, err
	}
	metrics.InterviewStarted()

	if a.checker != nil {
		if path, err := a.checker.CaptureInitialFace(ctx, id); err != nil {
			a.logger.Warn("failed to capture initial face", zap.String("interview_id", id), zap.Error(err))
		} else {
			a.logger.Info("initial face captured", zap.String("interview_id", id), zap.String("path", path))
		}
	}
	a.startMonitor(id)

	return models.NewSessionView(s, a.machine.Now()), nil
}

func (a *InterviewAgent) startMonitor(id string) {
	if a.newMonitor == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.monitors[id]; ok {
		return
	}

	m := a.newMonitor(id)
	// the monitor outlives the request that started it
	if err := m.Start(context.Background()); err != nil {
		a.logger.Warn("failed to start proctoring monitor", zap.String("interview_id", id), zap.Error(err))
		return
	}
	a.monitors[id] = m
}

// StopMonitor stops and joins the proctoring monitor of an interview, if any
func (a *InterviewAgent) StopMonitor(id string) {
	a.mu.Lock()
	m, ok := a.monitors[id]
	delete(a.monitors, id)
	a.mu.Unlock()

	if ok {
		m.Stop()
	}
}

// MonitorRunning reports whether a monitor is registered for the interview
func (a *InterviewAgent) MonitorRunning(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.monitors[id]
	if !ok {
		return false
	}
	select {
	case <-m.Done():
		return false
	default:
		return true
	}
}

// Next returns the pending question or the phase change that ended questioning
func (a *InterviewAgent) Next(ctx context.Context, id string) (models.QuestionResponse, error) {
	var resp models.QuestionResponse
	_, err := a.update(ctx, id, func(s *models.InterviewSession) error {
		hadQuestion := s.HasPendingQuestion()
		r, err := a.machine.Next(ctx, s)
		if err != nil {
			return err
		}
		if !hadQuestion && r.Question != "" {
			metrics.QuestionGenerated()
		}
		resp = r
		return nil
	})
	return resp, err
}

// Submit records the answer to the pending question
func (a *InterviewAgent) Submit(ctx context.Context, id, answer string) (models.SessionView, error) {
	s, err := a.update(ctx, id, func(s *models.InterviewSession) error {
		return a.machine.Submit(ctx, s, answer)
	})
	if s == nil {
		return models.SessionView{}, err
	}
	if err == nil {
		metrics.AnswerSubmitted()
	}
	return models.NewSessionView(s, a.machine.Now()), err
}

// Abort ends questioning early
func (a *InterviewAgent) Abort(ctx context.Context, id string) (models.SessionView, error) {
	s, err := a.update(ctx, id, func(s *models.InterviewSession) error {
		return a.machine.Abort(s)
	})
	if err != nil {
		return models.SessionView{}, err
	}
	return models.NewSessionView(s, a.machine.Now()), nil
}

// ValidateFace runs an on-demand face check
func (a *InterviewAgent) ValidateFace(ctx context.Context, id string) (models.FaceCheckResponse, error) {
	s, err := a.load(ctx, id)
	if err != nil {
		return models.FaceCheckResponse{}, err
	}
	return a.machine.ValidateFace(ctx, s)
}

// Finalize scores the interview and writes its report. The proctoring
// monitor is stopped once the interview is DONE. A caller going away does not
// abandon a finalize that has started.
func (a *InterviewAgent) Finalize(ctx context.Context, id string) (*models.Report, error) {
	ctx = context.WithoutCancel(ctx)
	var report *models.Report
	s, err := a.update(ctx, id, func(s *models.InterviewSession) error {
		a.machine.ExpireIfOverdue(s)
		r, err := a.machine.Finalize(ctx, s)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	if s != nil && s.Phase == models.PhaseDone {
		a.StopMonitor(id)
	}
	return report, err
}

// GetReport returns the stored report of an interview
func (a *InterviewAgent) GetReport(_ context.Context, id string) (*models.Report, error) {
	return a.reports.Read(id)
}

// ListReports returns the ids of all stored reports
func (a *InterviewAgent) ListReports() ([]string, error) {
	return a.reports.List()
}

// Events returns the proctoring log of an interview
func (a *InterviewAgent) Events(ctx context.Context, id string) ([]models.ProctoringEvent, error) {
	if _, err := a.load(ctx, id); err != nil {
		return nil, err
	}
	if a.events == nil {
		return []models.ProctoringEvent{}, nil
	}
	return a.events.Events(id)
}

// ExportReport writes the report and proctoring log of an interview as a workbook
func (a *InterviewAgent) ExportReport(ctx context.Context, id, outputPath string) error {
	report, err := a.reports.Read(id)
	if err != nil {
		return err
	}

	var events []models.ProctoringEvent
	if a.events != nil {
		if events, err = a.events.Events(id); err != nil {
			a.logger.Warn("failed to read proctoring events", zap.String("interview_id", id), zap.Error(err))
		}
	}

	return export.ExportToExcel(report, events, outputPath)
}

// ExpireOverdue moves every QUESTIONING interview past its deadline to
// FINALIZING and returns their ids
func (a *InterviewAgent) ExpireOverdue(ctx context.Context) ([]string, error) {
	ids, err := a.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var expired []string
	for _, id := range ids {
		var did bool
		_, err := a.update(ctx, id, func(s *models.InterviewSession) error {
			did = a.machine.ExpireIfOverdue(s)
			return nil
		})
		if err != nil {
			if errors.Is(err, models.ErrSessionNotFound) {
				continue
			}
			a.logger.Warn("failed to check deadline", zap.String("interview_id", id), zap.Error(err))
			continue
		}
		if did {
			expired = append(expired, id)
		}
	}
	return expired, nil
}

// Recover finalizes interviews left behind by a crash or a missed deadline:
// checkpoints without a session, sessions stuck in FINALIZING and QUESTIONING
// sessions past their deadline. Live interviews are left alone. It returns the
// recovered ids.
func (a *InterviewAgent) Recover(ctx context.Context) ([]string, error) {
	ids, err := a.checkpoints.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	live, err := a.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	ids = append(ids, live...)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var (
		recovered []string
		errs      []error
	)
	for _, id := range ids {
		ok, err := a.recoverOne(ctx, id)
		if err != nil {
			a.logger.Error("failed to recover interview", zap.String("interview_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("interview %s: %w", id, err))
			continue
		}
		if ok {
			recovered = append(recovered, id)
		}
	}
	return recovered, errors.Join(errs...)
}

func (a *InterviewAgent) recoverOne(ctx context.Context, id string) (bool, error) {
	unlock, err := a.lock(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	if a.reports.Exists(id) {
		// report written but the cleanup after it failed
		if err := a.checkpoints.Delete(id); err != nil {
			a.logger.Warn("failed to delete stale checkpoint", zap.String("interview_id", id), zap.Error(err))
		}
		if err := a.store.Delete(ctx, id); err != nil {
			a.logger.Warn("failed to delete finished session", zap.String("interview_id", id), zap.Error(err))
		}
		return false, nil
	}

	s, err := a.store.Get(ctx, id)
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		entries, err := a.checkpoints.Load(id)
		if errors.Is(err, checkpoint.ErrNotFound) {
			// finished or deleted since the listing
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		s = a.machine.NewSession()
		s.ID = id
		s.QALog = entries
		s.Phase = models.PhaseFinalizing
	case err != nil:
		return false, err
	case s.Phase == models.PhaseQuestioning:
		if !a.machine.ExpireIfOverdue(s) {
			return false, nil
		}
		metrics.InterviewTimedOut()
	case s.Phase != models.PhaseFinalizing:
		return false, nil
	}

	if _, err := a.machine.Finalize(ctx, s); err != nil {
		// keep the session FINALIZING for the next pass
		if putErr := a.store.Put(ctx, s); putErr != nil {
			a.logger.Warn("failed to store session", zap.String("interview_id", id), zap.Error(putErr))
		}
		return false, err
	}
	if err := a.store.Delete(ctx, id); err != nil {
		a.logger.Warn("failed to delete finished session", zap.String("interview_id", id), zap.Error(err))
	}

	a.StopMonitor(id)

	a.logger.Info("interview recovered", zap.String("interview_id", id), zap.Int("answers", len(s.QALog)))
	return true, nil
}

// Close stops every running proctoring monitor
func (a *InterviewAgent) Close() error {
	a.mu.Lock()
	monitors := a.monitors
	a.monitors = make(map[string]*proctoring.Monitor)
	a.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
	return nil
}
