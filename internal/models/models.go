package models

import "time"

// Phase is the lifecycle stage of an interview session
type Phase string

const (
	PhaseIntake      Phase = "intake"
	PhaseQuestioning Phase = "questioning"
	PhaseFinalizing  Phase = "finalizing"
	PhaseDone        Phase = "done"
)

// order returns the position of the phase in the lifecycle
func (p Phase) order() int {
	switch p {
	case PhaseIntake:
		return 0
	case PhaseQuestioning:
		return 1
	case PhaseFinalizing:
		return 2
	case PhaseDone:
		return 3
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from p to next keeps the lifecycle monotonic
func (p Phase) CanAdvanceTo(next Phase) bool {
	return next.order() >= p.order() && next.order() >= 0
}

// DocumentKind identifies one of the three intake documents
type DocumentKind string

const (
	DocumentJobDescription DocumentKind = "job_description"
	DocumentResume         DocumentKind = "resume"
	DocumentProject        DocumentKind = "project"
)

// DocumentKinds lists the intake documents in presentation order
var DocumentKinds = []DocumentKind{DocumentJobDescription, DocumentResume, DocumentProject}

// Label returns a human readable name for the document
func (k DocumentKind) Label() string {
	switch k {
	case DocumentJobDescription:
		return "Job Description"
	case DocumentResume:
		return "Resume"
	case DocumentProject:
		return "Project Requirements"
	default:
		return string(k)
	}
}

// QAEntry is one answered question in an interview
type QAEntry struct {
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Score      *float64 `json:"score,omitempty"`
	ScoreError string   `json:"score_error,omitempty"`
}

// Scored reports whether the entry already has a score assigned
func (e QAEntry) Scored() bool {
	return e.Score != nil
}

// ScoreValue returns the score or 0 when the entry is unscored
func (e QAEntry) ScoreValue() float64 {
	if e.Score == nil {
		return 0
	}
	return *e.Score
}

// InterviewSession holds the full state of one interview
type InterviewSession struct {
	ID              string        `json:"id"`
	Phase           Phase         `json:"phase"`
	CreatedAt       time.Time     `json:"created_at"`
	StartedAt       time.Time     `json:"started_at,omitempty"`
	Duration        time.Duration `json:"duration"`
	QuestionLimit   int           `json:"question_limit"`
	JDText          string        `json:"jd_text,omitempty"`
	ResumeText      string        `json:"resume_text,omitempty"`
	ProjectText     string        `json:"project_text,omitempty"`
	ExperienceYears int           `json:"experience_years"`
	QALog           []QAEntry     `json:"qa_log"`
	CurrentQuestion string        `json:"current_question,omitempty"`
	TimedOut        bool          `json:"timed_out,omitempty"`
}

// Document returns the stored text for a document kind
func (s *InterviewSession) Document(kind DocumentKind) string {
	switch kind {
	case DocumentJobDescription:
		return s.JDText
	case DocumentResume:
		return s.ResumeText
	case DocumentProject:
		return s.ProjectText
	default:
		return ""
	}
}

// Remaining returns the time left in the interview budget at now
func (s *InterviewSession) Remaining(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return s.Duration
	}
	return s.Duration - now.Sub(s.StartedAt)
}

// Deadline returns the wall-clock instant at which the interview expires
func (s *InterviewSession) Deadline() time.Time {
	return s.StartedAt.Add(s.Duration)
}

// HasPendingQuestion reports whether a question is waiting for an answer
func (s *InterviewSession) HasPendingQuestion() bool {
	return s.CurrentQuestion != ""
}

// Clone returns a deep copy so callers can mutate without aliasing the stored value
func (s *InterviewSession) Clone() *InterviewSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.QALog != nil {
		c.QALog = make([]QAEntry, len(s.QALog))
		for i, e := range s.QALog {
			c.QALog[i] = e
			if e.Score != nil {
				v := *e.Score
				c.QALog[i].Score = &v
			}
		}
	}
	return &c
}

// FaceStatus is the outcome of a single face-count check
type FaceStatus string

const (
	FacePresent  FaceStatus = "present"
	FaceAbsent   FaceStatus = "absent"
	FaceMultiple FaceStatus = "multiple"
)

// FaceStatusFromCount classifies a face count
func FaceStatusFromCount(count int) FaceStatus {
	switch {
	case count == 1:
		return FacePresent
	case count > 1:
		return FaceMultiple
	default:
		return FaceAbsent
	}
}

// Proctoring event messages
const (
	MessageNoFace        = "No face detected"
	MessageMultipleFaces = "Multiple faces detected"
	MessageFaceValidated = "Face validated"
)

// ProctoringEvent is one entry of the per-interview proctoring log
type ProctoringEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	SnapshotRef string    `json:"snapshot"`
	Message     string    `json:"message"`
}

// Decision is the binary outcome of an interview
type Decision string

const (
	DecisionPromote Decision = "Promote to next round"
	DecisionReject  Decision = "Reject"
)

// Report is the terminal artifact of an interview
type Report struct {
	InterviewID  string    `json:"interview_id"`
	AverageScore float64   `json:"average_score"`
	Decision     Decision  `json:"decision"`
	Entries      []QAEntry `json:"entries"`
	Feedback     string    `json:"feedback"`
	TimedOut     bool      `json:"timed_out,omitempty"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// SessionView is the API representation of a session
type SessionView struct {
	ID               string         `json:"id"`
	Phase            Phase          `json:"phase"`
	Answered         int            `json:"answered"`
	QuestionLimit    int            `json:"question_limit"`
	RemainingSeconds int64          `json:"remaining_seconds"`
	CurrentQuestion  string         `json:"current_question,omitempty"`
	ExperienceYears  int            `json:"experience_years"`
	TimedOut         bool           `json:"timed_out,omitempty"`
	Documents        []DocumentKind `json:"documents"`
}

// NewSessionView builds the API view of s at now
func NewSessionView(s *InterviewSession, now time.Time) SessionView {
	view := SessionView{
		ID:              s.ID,
		Phase:           s.Phase,
		Answered:        len(s.QALog),
		QuestionLimit:   s.QuestionLimit,
		CurrentQuestion: s.CurrentQuestion,
		ExperienceYears: s.ExperienceYears,
		TimedOut:        s.TimedOut,
		Documents:       []DocumentKind{},
	}
	for _, k := range DocumentKinds {
		if s.Document(k) != "" {
			view.Documents = append(view.Documents, k)
		}
	}
	if s.Phase == PhaseQuestioning {
		remaining := s.Remaining(now)
		if remaining < 0 {
			remaining = 0
		}
		view.RemainingSeconds = int64(remaining.Seconds())
	}
	return view
}

// QuestionResponse is returned when polling for the next question
type QuestionResponse struct {
	Phase    Phase  `json:"phase"`
	Number   int    `json:"number,omitempty"`
	Question string `json:"question,omitempty"`
	Notice   string `json:"notice,omitempty"`
}

// SubmitAnswerRequest is the payload for submitting an answer
type SubmitAnswerRequest struct {
	Answer string `json:"answer"`
}

// FaceCheckResponse is returned by an on-demand face validation
type FaceCheckResponse struct {
	Status  FaceStatus `json:"status"`
	Message string     `json:"message"`
}

// GmailIntakeRequest asks the service to fetch intake documents from Gmail
type GmailIntakeRequest struct {
	Subject string `json:"subject"`
}
