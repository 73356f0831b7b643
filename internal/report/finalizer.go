package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fmuoria/ai-interviewer/internal/checkpoint"
	"github.com/fmuoria/ai-interviewer/internal/metrics"
	"github.com/fmuoria/ai-interviewer/internal/models"
)

const (
	// DefaultPromoteThreshold is the average score at or above which a candidate is promoted
	DefaultPromoteThreshold = 6.0
	// DefaultScoreRetries is how many extra attempts a failed evaluation gets
	DefaultScoreRetries = 1
)

// ProgressCallback is called to report progress while scoring
type ProgressCallback func(current, total int, message string)

// Scorer evaluates answers and writes overall feedback
type Scorer interface {
	EvaluateAnswer(ctx context.Context, question, answer string) (float64, error)
	GenerateFeedback(ctx context.Context, entries []models.QAEntry) (string, error)
}

// Writer persists finished reports
type Writer interface {
	Exists(interviewID string) bool
	Write(report *models.Report) error
	Read(interviewID string) (*models.Report, error)
}

// Recorder keeps a history of finalized reports
type Recorder interface {
	Record(ctx context.Context, report *models.Report) error
}

// Publisher announces finalized reports
type Publisher interface {
	PublishReport(ctx context.Context, report *models.Report) error
}

// Options configures a Finalizer
type Options struct {
	Scorer      Scorer
	Writer      Writer
	Checkpoints checkpoint.Store
	Threshold   float64
	Retries     int
	History     Recorder
	Publisher   Publisher
	Progress    ProgressCallback
	Now         func() time.Time
	Logger      *zap.Logger
}

// Finalizer scores a finished interview and writes its report exactly once
type Finalizer struct {
	scorer      Scorer
	writer      Writer
	checkpoints checkpoint.Store
	threshold   float64
	retries     int
	history     Recorder
	publisher   Publisher
	progress    ProgressCallback
	now         func() time.Time
	logger      *zap.Logger
}

// NewFinalizer creates a finalizer. A zero threshold means DefaultPromoteThreshold;
// negative retries mean none.
func NewFinalizer(opts Options) *Finalizer {
	f := &Finalizer{
		scorer:      opts.Scorer,
		writer:      opts.Writer,
		checkpoints: opts.Checkpoints,
		threshold:   opts.Threshold,
		retries:     opts.Retries,
		history:     opts.History,
		publisher:   opts.Publisher,
		progress:    opts.Progress,
		now:         opts.Now,
		logger:      opts.Logger,
	}
	if f.threshold == 0 {
		f.threshold = DefaultPromoteThreshold
	}
	if f.retries < 0 {
		f.retries = 0
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return f
}

// Decide maps an average score onto a decision
func (f *Finalizer) Decide(average float64) models.Decision {
	if average >= f.threshold {
		return models.DecisionPromote
	}
	return models.DecisionReject
}

// Load returns the stored report for an interview
func (f *Finalizer) Load(interviewID string) (*models.Report, error) {
	return f.writer.Read(interviewID)
}

// Finalize scores every unscored entry of s, writes the report and clears the
// checkpoint. If a report already exists it is returned untouched.
func (f *Finalizer) Finalize(ctx context.Context, s *models.InterviewSession) (*models.Report, error) {
	if s.Phase != models.PhaseFinalizing {
		return nil, &models.InvalidPhaseError{Op: "finalize", Phase: s.Phase}
	}

	if f.writer.Exists(s.ID) {
		f.logger.Info("report already exists", zap.String("interview_id", s.ID))
		return f.writer.Read(s.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, f.interrupted(s.ID, err)
	}

	started := f.now()
	total := len(s.QALog)

	for i := range s.QALog {
		entry := &s.QALog[i]
		f.reportProgress(i, total, fmt.Sprintf("Scoring answer %d of %d...", i+1, total))
		if entry.Scored() {
			continue
		}

		score, err := f.score(ctx, s.ID, entry.Question, entry.Answer)
		if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
			// entries scored so far keep their scores for the next attempt
			return nil, f.interrupted(s.ID, ctxErr)
		}
		if err != nil {
			var scoreErr *models.ScoringError
			if !errors.As(err, &scoreErr) {
				err = &models.ScoringError{Err: err}
			}
			f.logger.Warn("scoring failed, using sentinel score",
				zap.String("interview_id", s.ID),
				zap.Int("question", i+1),
				zap.Error(err))
			metrics.ScoringFailed()
			entry.ScoreError = err.Error()
			score = 0
		}
		entry.Score = &score
	}

	average := averageScore(s.QALog)

	f.reportProgress(total, total, "Generating feedback...")
	feedback := ""
	if len(s.QALog) > 0 {
		fb, err := f.scorer.GenerateFeedback(ctx, s.QALog)
		if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
			return nil, f.interrupted(s.ID, ctxErr)
		}
		if err != nil {
			f.logger.Warn("feedback generation failed", zap.String("interview_id", s.ID), zap.Error(err))
		} else {
			feedback = fb
		}
	}

	entries := make([]models.QAEntry, len(s.QALog))
	copy(entries, s.QALog)

	report := &models.Report{
		InterviewID:  s.ID,
		AverageScore: average,
		Decision:     f.Decide(average),
		Entries:      entries,
		Feedback:     feedback,
		TimedOut:     s.TimedOut,
		GeneratedAt:  f.now(),
	}

	if err := f.writer.Write(report); err != nil {
		f.logger.Error("report write failed", zap.String("interview_id", s.ID), zap.Error(err))
		return nil, &models.ReportWriteError{InterviewID: s.ID, Err: err}
	}

	if f.checkpoints != nil {
		if err := f.checkpoints.Delete(s.ID); err != nil {
			f.logger.Warn("failed to delete checkpoint", zap.String("interview_id", s.ID), zap.Error(err))
		}
	}

	if f.history != nil {
		if err := f.history.Record(ctx, report); err != nil {
			f.logger.Warn("failed to record report history", zap.String("interview_id", s.ID), zap.Error(err))
		}
	}
	if f.publisher != nil {
		if err := f.publisher.PublishReport(ctx, report); err != nil {
			f.logger.Warn("failed to publish report", zap.String("interview_id", s.ID), zap.Error(err))
		}
	}

	metrics.ReportFinalized(string(report.Decision), f.now().Sub(started))
	f.logger.Info("interview finalized",
		zap.String("interview_id", s.ID),
		zap.Float64("average_score", average),
		zap.String("decision", string(report.Decision)),
		zap.Bool("timed_out", s.TimedOut))

	return report, nil
}

// interrupted reports a cancelled finalize; nothing is written and the
// session stays FINALIZING
func (f *Finalizer) interrupted(interviewID string, err error) error {
	f.logger.Warn("finalize interrupted", zap.String("interview_id", interviewID), zap.Error(err))
	return fmt.Errorf("finalize interrupted: %w", err)
}

// score calls the scorer once plus the configured number of retries
func (f *Finalizer) score(ctx context.Context, interviewID, question, answer string) (float64, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		score, err := f.scorer.EvaluateAnswer(ctx, question, answer)
		if err == nil {
			return score, nil
		}
		lastErr = err
		f.logger.Debug("scoring attempt failed",
			zap.String("interview_id", interviewID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return 0, lastErr
}

func (f *Finalizer) reportProgress(current, total int, message string) {
	if f.progress != nil {
		f.progress(current, total, message)
	}
}

// averageScore returns the mean score, or 0 for an empty log
func averageScore(entries []models.QAEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += e.ScoreValue()
	}
	return sum / float64(len(entries))
}
