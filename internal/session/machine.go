package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fmuoria/ai-interviewer/internal/checkpoint"
	"github.com/fmuoria/ai-interviewer/internal/models"
	"github.com/fmuoria/ai-interviewer/internal/questions"
)

const (
	// DefaultQuestionLimit is how many questions an interview asks
	DefaultQuestionLimit = 3
	// DefaultDuration is the interview time budget
	DefaultDuration = 45 * time.Minute
)

// Notices returned alongside phase changes
const (
	NoticeTimeOver    = "Interview time is over. Your answers have been saved."
	NoticeAllAnswered = "All questions answered."
	NoticeAborted     = "Interview ended early."
	NoticeCompleted   = "Interview completed."
)

// QuestionGenerator produces the next interview question
type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, in questions.QuestionInput) (string, error)
}

// Finalizer turns a FINALIZING session into a report
type Finalizer interface {
	// Finalize scores and writes the report; it may fill entry scores in s
	Finalize(ctx context.Context, s *models.InterviewSession) (*models.Report, error)
	// Load returns the stored report for an interview, or models.ErrReportNotFound
	Load(interviewID string) (*models.Report, error)
}

// FaceValidator runs a single face check for an interview
type FaceValidator interface {
	Check(ctx context.Context, interviewID string) (models.FaceCheckResponse, error)
}

// Config wires the machine's collaborators
type Config struct {
	Generator   QuestionGenerator
	Checkpoints checkpoint.Store
	Finalizer   Finalizer
	Faces       FaceValidator
	// Experience derives years of experience from resume text
	Experience    func(text string) int
	Duration      time.Duration
	QuestionLimit int
	Now           func() time.Time
	Logger        *zap.Logger
}

// Machine enforces the interview lifecycle. It mutates the session it is
// given; callers serialize access per interview and persist the result.
type Machine struct {
	generator   QuestionGenerator
	checkpoints checkpoint.Store
	finalizer   Finalizer
	faces       FaceValidator
	experience  func(string) int
	duration    time.Duration
	limit       int
	now         func() time.Time
	logger      *zap.Logger
}

// NewMachine creates a state machine, filling defaults for unset limits
func NewMachine(cfg Config) *Machine {
	m := &Machine{
		generator:   cfg.Generator,
		checkpoints: cfg.Checkpoints,
		finalizer:   cfg.Finalizer,
		faces:       cfg.Faces,
		experience:  cfg.Experience,
		duration:    cfg.Duration,
		limit:       cfg.QuestionLimit,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	if m.duration <= 0 {
		m.duration = DefaultDuration
	}
	if m.limit <= 0 {
		m.limit = DefaultQuestionLimit
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.experience == nil {
		m.experience = func(string) int { return 0 }
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Now returns the machine's clock reading
func (m *Machine) Now() time.Time {
	return m.now()
}

// NewSession creates a fresh session in INTAKE with a new id
func (m *Machine) NewSession() *models.InterviewSession {
	return &models.InterviewSession{
		ID:            uuid.New().String(),
		Phase:         models.PhaseIntake,
		CreatedAt:     m.now(),
		Duration:      m.duration,
		QuestionLimit: m.limit,
		QALog:         []models.QAEntry{},
	}
}

// SetDocument stores the extracted text of one intake document
func (m *Machine) SetDocument(s *models.InterviewSession, kind models.DocumentKind, text string) error {
	if s.Phase != models.PhaseIntake {
		return &models.InvalidPhaseError{Op: "set document", Phase: s.Phase}
	}

	switch kind {
	case models.DocumentJobDescription:
		s.JDText = text
	case models.DocumentResume:
		s.ResumeText = text
	case models.DocumentProject:
		s.ProjectText = text
	default:
		return &models.UnsupportedFormatError{Path: string(kind), Reason: "unknown document kind"}
	}
	return nil
}

// Start moves INTAKE to QUESTIONING once all three documents have text
func (m *Machine) Start(s *models.InterviewSession) error {
	if s.Phase != models.PhaseIntake {
		return &models.InvalidPhaseError{Op: "start", Phase: s.Phase}
	}

	var missing []models.DocumentKind
	for _, kind := range models.DocumentKinds {
		if strings.TrimSpace(s.Document(kind)) == "" {
			missing = append(missing, kind)
		}
	}
	if len(missing) > 0 {
		return &models.IncompleteIntakeError{Missing: missing}
	}

	s.ExperienceYears = m.experience(s.ResumeText)
	if s.ExperienceYears < 0 {
		s.ExperienceYears = 0
	}
	s.StartedAt = m.now()
	s.QALog = []models.QAEntry{}
	s.CurrentQuestion = ""
	s.Phase = models.PhaseQuestioning

	m.logger.Info("interview started",
		zap.String("interview_id", s.ID),
		zap.Int("experience_years", s.ExperienceYears),
		zap.Time("deadline", s.Deadline()))
	return nil
}

// ExpireIfOverdue forces a QUESTIONING session past its deadline into
// FINALIZING, discarding any pending question. It reports whether it did.
func (m *Machine) ExpireIfOverdue(s *models.InterviewSession) bool {
	if s.Phase != models.PhaseQuestioning || s.Remaining(m.now()) > 0 {
		return false
	}

	s.CurrentQuestion = ""
	s.TimedOut = true
	s.Phase = models.PhaseFinalizing

	m.logger.Info("interview time over",
		zap.String("interview_id", s.ID),
		zap.Int("answered", len(s.QALog)))
	return true
}

// Next returns the pending question, generating one if needed. When the time
// budget or question limit is exhausted the session moves to FINALIZING and the
// response carries the new phase instead of a question.
func (m *Machine) Next(ctx context.Context, s *models.InterviewSession) (models.QuestionResponse, error) {
	switch s.Phase {
	case models.PhaseIntake:
		return models.QuestionResponse{}, &models.InvalidPhaseError{Op: "ask a question", Phase: s.Phase}
	case models.PhaseFinalizing, models.PhaseDone:
		return m.closedResponse(s), nil
	}

	if m.ExpireIfOverdue(s) {
		return m.closedResponse(s), nil
	}

	if s.HasPendingQuestion() {
		return m.pendingResponse(s), nil
	}

	if len(s.QALog) >= s.QuestionLimit {
		s.Phase = models.PhaseFinalizing
		return m.closedResponse(s), nil
	}

	previous := make([]string, len(s.QALog))
	for i, e := range s.QALog {
		previous[i] = e.Question
	}

	question, err := m.generator.GenerateQuestion(ctx, questions.QuestionInput{
		JobDescription:  s.JDText,
		Resume:          s.ResumeText,
		Project:         s.ProjectText,
		ExperienceYears: s.ExperienceYears,
		Previous:        previous,
	})
	if err != nil {
		var genErr *models.GenerationError
		if !errors.As(err, &genErr) {
			err = &models.GenerationError{Op: "question", Err: err}
		}
		m.logger.Warn("question generation failed", zap.String("interview_id", s.ID), zap.Error(err))
		return models.QuestionResponse{}, err
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return models.QuestionResponse{}, &models.GenerationError{Op: "question", Err: errors.New("empty question")}
	}

	s.CurrentQuestion = question
	return m.pendingResponse(s), nil
}

// Submit records the answer to the pending question. The full log is
// checkpointed before the entry is committed; reaching the question limit moves
// the session to FINALIZING.
func (m *Machine) Submit(ctx context.Context, s *models.InterviewSession, answer string) error {
	if s.Phase == models.PhaseFinalizing && s.TimedOut {
		return models.ErrTimeExpired
	}
	if s.Phase != models.PhaseQuestioning {
		return &models.InvalidPhaseError{Op: "submit an answer", Phase: s.Phase}
	}

	if m.ExpireIfOverdue(s) {
		return models.ErrTimeExpired
	}

	if !s.HasPendingQuestion() {
		return models.ErrNoPendingQuestion
	}

	entries := make([]models.QAEntry, len(s.QALog), len(s.QALog)+1)
	copy(entries, s.QALog)
	entries = append(entries, models.QAEntry{Question: s.CurrentQuestion, Answer: answer})

	if err := m.checkpoints.Save(s.ID, entries); err != nil {
		m.logger.Error("checkpoint write failed", zap.String("interview_id", s.ID), zap.Error(err))
		return &models.CheckpointWriteError{InterviewID: s.ID, Err: err}
	}

	s.QALog = entries
	s.CurrentQuestion = ""

	if len(s.QALog) >= s.QuestionLimit {
		s.Phase = models.PhaseFinalizing
		m.logger.Info("question limit reached", zap.String("interview_id", s.ID))
	}
	return nil
}

// Abort ends questioning early; already answered questions are kept
func (m *Machine) Abort(s *models.InterviewSession) error {
	switch s.Phase {
	case models.PhaseQuestioning:
		s.CurrentQuestion = ""
		s.Phase = models.PhaseFinalizing
		m.logger.Info("interview aborted", zap.String("interview_id", s.ID), zap.Int("answered", len(s.QALog)))
		return nil
	case models.PhaseFinalizing:
		return nil
	default:
		return &models.InvalidPhaseError{Op: "abort", Phase: s.Phase}
	}
}

// ValidateFace runs a one-off face check. It is allowed in any phase and
// never changes the session.
func (m *Machine) ValidateFace(ctx context.Context, s *models.InterviewSession) (models.FaceCheckResponse, error) {
	if m.faces == nil {
		return models.FaceCheckResponse{}, &models.CameraUnavailableError{Err: errors.New("proctoring is not configured")}
	}
	return m.faces.Check(ctx, s.ID)
}

// Finalize moves FINALIZING to DONE through the finalizer. On a DONE session it
// returns the stored report without scoring anything.
func (m *Machine) Finalize(ctx context.Context, s *models.InterviewSession) (*models.Report, error) {
	switch s.Phase {
	case models.PhaseDone:
		return m.finalizer.Load(s.ID)
	case models.PhaseFinalizing:
	default:
		return nil, &models.InvalidPhaseError{Op: "finalize", Phase: s.Phase}
	}

	report, err := m.finalizer.Finalize(ctx, s)
	if err != nil {
		return nil, err
	}

	s.Phase = models.PhaseDone
	return report, nil
}

func (m *Machine) pendingResponse(s *models.InterviewSession) models.QuestionResponse {
	return models.QuestionResponse{
		Phase:    s.Phase,
		Number:   len(s.QALog) + 1,
		Question: s.CurrentQuestion,
	}
}

func (m *Machine) closedResponse(s *models.InterviewSession) models.QuestionResponse {
	resp := models.QuestionResponse{Phase: s.Phase}
	switch {
	case s.TimedOut:
		resp.Notice = NoticeTimeOver
	case len(s.QALog) >= s.QuestionLimit:
		resp.Notice = NoticeAllAnswered
	case s.Phase == models.PhaseDone:
		resp.Notice = NoticeCompleted
	default:
		resp.Notice = NoticeAborted
	}
	return resp
}
