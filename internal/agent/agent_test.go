package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/ai-interviewer/internal/checkpoint"
	"github.com/fmuoria/ai-interviewer/internal/export"
	"github.com/fmuoria/ai-interviewer/internal/ingestion"
	"github.com/fmuoria/ai-interviewer/internal/jobs"
	"github.com/fmuoria/ai-interviewer/internal/models"
	"github.com/fmuoria/ai-interviewer/internal/proctoring"
	"github.com/fmuoria/ai-interviewer/internal/questions"
	"github.com/fmuoria/ai-interviewer/internal/report"
	"github.com/fmuoria/ai-interviewer/internal/session"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *fakeGenerator) GenerateQuestion(_ context.Context, in questions.QuestionInput) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return fmt.Sprintf("Question %d?", len(in.Previous)+1), nil
}

type fakeScorer struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeScorer) EvaluateAnswer(_ context.Context, _, answer string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if answer == "" {
		return 0, nil
	}
	return 8, nil
}

func (s *fakeScorer) GenerateFeedback(context.Context, []models.QAEntry) (string, error) {
	return "Clear and structured.", nil
}

type fakeCamera struct{}

func (fakeCamera) Capture(context.Context) (proctoring.Frame, error) {
	return proctoring.Frame{Data: []byte("frame"), MIMEType: "image/jpeg"}, nil
}

type fakeCounter struct{ faces int }

func (c fakeCounter) CountFaces(context.Context, proctoring.Frame) (int, error) {
	return c.faces, nil
}

type harness struct {
	agent       *InterviewAgent
	clock       *clock
	generator   *fakeGenerator
	scorer      *fakeScorer
	store       session.Store
	machine     *session.Machine
	checkpoints *checkpoint.ExcelStore
	reports     *export.ReportWriter
	events      *proctoring.EventLog
	dir         string
}

func newHarness(t *testing.T, faces int) *harness {
	t.Helper()
	return newHarnessWithStore(t, faces, session.NewMemoryStore())
}

func newHarnessWithStore(t *testing.T, faces int, store session.Store) *harness {
	t.Helper()
	dir := t.TempDir()

	checkpoints, err := checkpoint.NewExcelStore(filepath.Join(dir, "checkpoints"))
	require.NoError(t, err)
	reports, err := export.NewReportWriter(filepath.Join(dir, "reports"))
	require.NoError(t, err)

	h := &harness{
		clock:       &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		generator:   &fakeGenerator{},
		scorer:      &fakeScorer{},
		store:       store,
		checkpoints: checkpoints,
		reports:     reports,
		events:      proctoring.NewEventLog(filepath.Join(dir, "snapshots")),
		dir:         dir,
	}

	finalizer := report.NewFinalizer(report.Options{
		Scorer:      h.scorer,
		Writer:      reports,
		Checkpoints: checkpoints,
		Now:         h.clock.Now,
	})
	checker := proctoring.NewChecker(fakeCamera{}, fakeCounter{faces: faces}, h.events, nil)
	h.machine = session.NewMachine(session.Config{
		Generator:   h.generator,
		Checkpoints: checkpoints,
		Finalizer:   finalizer,
		Faces:       checker,
		Experience:  ingestion.ExtractExperienceYears,
		Now:         h.clock.Now,
	})

	h.agent = h.newAgent(t, h.store, faces)
	return h
}

// newAgent builds another agent over the same files and machine, as a second
// server instance would
func (h *harness) newAgent(t *testing.T, store session.Store, faces int) *InterviewAgent {
	t.Helper()
	a := NewInterviewAgent(Options{
		Store:       store,
		Machine:     h.machine,
		Files:       ingestion.NewFileHandler(filepath.Join(h.dir, "uploads")),
		Checkpoints: h.checkpoints,
		Reports:     h.reports,
		Events:      h.events,
		Checker:     proctoring.NewChecker(fakeCamera{}, fakeCounter{faces: faces}, h.events, nil),
		NewMonitor: func(id string) *proctoring.Monitor {
			return proctoring.NewMonitor(id, fakeCamera{}, fakeCounter{faces: faces}, h.events, 10*time.Millisecond, nil)
		},
	})
	t.Cleanup(func() { a.Close() })
	return a
}

func (h *harness) started(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	view, err := h.agent.Create(ctx)
	require.NoError(t, err)

	docs := map[models.DocumentKind]string{
		models.DocumentJobDescription: "Backend engineer working on Go services.",
		models.DocumentResume:         "Engineer with 5+ years of experience in backend systems.",
		models.DocumentProject:        "Build a rate limiter.",
	}
	for kind, text := range docs {
		_, err := h.agent.UploadDocument(ctx, view.ID, kind, string(kind)+".txt", strings.NewReader(text))
		require.NoError(t, err)
	}

	started, err := h.agent.Start(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, models.PhaseQuestioning, started.Phase)
	require.Equal(t, 5, started.ExperienceYears)
	return view.ID
}

func TestFullInterview(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	id := h.started(t)
	assert.True(t, h.agent.MonitorRunning(id))

	for i := 1; i <= session.DefaultQuestionLimit; i++ {
		q, err := h.agent.Next(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i, q.Number)
		assert.Equal(t, fmt.Sprintf("Question %d?", i), q.Question)

		_, err = h.agent.Submit(ctx, id, fmt.Sprintf("Answer %d", i))
		require.NoError(t, err)

		entries, err := h.checkpoints.Load(id)
		require.NoError(t, err)
		assert.Len(t, entries, i)
	}

	q, err := h.agent.Next(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFinalizing, q.Phase)
	assert.Equal(t, session.NoticeAllAnswered, q.Notice)

	rep, err := h.agent.Finalize(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 8.0, rep.AverageScore)
	assert.Equal(t, models.DecisionPromote, rep.Decision)
	assert.False(t, h.agent.MonitorRunning(id), "monitor should stop once the interview is done")

	_, err = h.checkpoints.Load(id)
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	calls := h.scorer.calls
	again, err := h.agent.Finalize(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rep.AverageScore, again.AverageScore)
	assert.Equal(t, calls, h.scorer.calls)

	view, err := h.agent.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDone, view.Phase)

	out := filepath.Join(h.dir, "export", "report")
	require.NoError(t, h.agent.ExportReport(ctx, id, out))
	_, err = os.Stat(out + ".xlsx")
	assert.NoError(t, err)
}

func TestStartRequiresAllDocuments(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	view, err := h.agent.Create(ctx)
	require.NoError(t, err)
	_, err = h.agent.UploadDocument(ctx, view.ID, models.DocumentResume, "cv.txt", strings.NewReader("Senior engineer with strong skills."))
	require.NoError(t, err)

	_, err = h.agent.Start(ctx, view.ID)
	var intakeErr *models.IncompleteIntakeError
	require.ErrorAs(t, err, &intakeErr)
	assert.ElementsMatch(t, []models.DocumentKind{models.DocumentJobDescription, models.DocumentProject}, intakeErr.Missing)
	assert.False(t, h.agent.MonitorRunning(view.ID))
}

func TestUploadUnsupportedFormat(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	view, err := h.agent.Create(ctx)
	require.NoError(t, err)

	_, err = h.agent.UploadDocument(ctx, view.ID, models.DocumentResume, "cv.exe", strings.NewReader("MZ"))
	var formatErr *models.UnsupportedFormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestUnknownInterview(t *testing.T) {
	h := newHarness(t, 1)
	_, err := h.agent.Next(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSubmitAfterDeadline(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	id := h.started(t)

	_, err := h.agent.Next(ctx, id)
	require.NoError(t, err)

	h.clock.Advance(session.DefaultDuration + time.Second)

	view, err := h.agent.Submit(ctx, id, "late")
	assert.ErrorIs(t, err, models.ErrTimeExpired)
	assert.Equal(t, models.PhaseFinalizing, view.Phase)

	rep, err := h.agent.Finalize(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rep.AverageScore)
	assert.Equal(t, models.DecisionReject, rep.Decision)
	assert.True(t, rep.TimedOut)
}

func TestConcurrentSubmitsAcceptOneAnswer(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	id := h.started(t)

	_, err := h.agent.Next(ctx, id)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		noPending int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.agent.Submit(ctx, id, fmt.Sprintf("answer %d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrNoPendingQuestion):
				noPending++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, noPending)

	view, err := h.agent.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Answered)
}

func TestExpireOverdue(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	id := h.started(t)

	expired, err := h.agent.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	h.clock.Advance(session.DefaultDuration)

	expired, err = h.agent.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, expired)

	q, err := h.agent.Next(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFinalizing, q.Phase)
	assert.Equal(t, session.NoticeTimeOver, q.Notice)
}

func TestAbortKeepsAnswers(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	id := h.started(t)

	_, err := h.agent.Next(ctx, id)
	require.NoError(t, err)
	_, err = h.agent.Submit(ctx, id, "only answer")
	require.NoError(t, err)

	view, err := h.agent.Abort(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFinalizing, view.Phase)

	rep, err := h.agent.Finalize(ctx, id)
	require.NoError(t, err)
	require.Len(t, rep.Entries, 1)
	assert.Equal(t, "only answer", rep.Entries[0].Answer)
}

func TestRecoverOrphanedCheckpoint(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	entries := []models.QAEntry{
		{Question: "Q1?", Answer: "A1"},
		{Question: "Q2?", Answer: ""},
	}
	require.NoError(t, h.checkpoints.Save("orphan", entries))

	live := h.started(t)
	_, err := h.agent.Next(ctx, live)
	require.NoError(t, err)
	_, err = h.agent.Submit(ctx, live, "in progress")
	require.NoError(t, err)

	recovered, err := h.agent.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, recovered)

	rep, err := h.agent.GetReport(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, 4.0, rep.AverageScore)
	assert.Equal(t, models.DecisionReject, rep.Decision)

	view, err := h.agent.GetSession(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDone, view.Phase)

	// the live interview keeps its checkpoint and phase
	_, err = h.checkpoints.Load(live)
	assert.NoError(t, err)
	liveView, err := h.agent.GetSession(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseQuestioning, liveView.Phase)

	again, err := h.agent.Recover(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMonitorLogsMultipleFaces(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	id := h.started(t)

	require.Eventually(t, func() bool {
		events, err := h.agent.Events(ctx, id)
		return err == nil && len(events) > 0
	}, 2*time.Second, 10*time.Millisecond)

	events, err := h.agent.Events(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.MessageMultipleFaces, events[0].Message)

	_, err = h.agent.Next(ctx, id)
	require.NoError(t, err)
	_, err = h.agent.Submit(ctx, id, "unaffected")
	assert.NoError(t, err)

	h.agent.StopMonitor(id)
	assert.False(t, h.agent.MonitorRunning(id))
}

func TestValidateFace(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	view, err := h.agent.Create(ctx)
	require.NoError(t, err)

	resp, err := h.agent.ValidateFace(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FaceAbsent, resp.Status)
	assert.Equal(t, models.MessageNoFace, resp.Message)

	events, err := h.agent.Events(ctx, view.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].SnapshotRef)
}

func TestIngestFromGmailNotConfigured(t *testing.T) {
	h := newHarness(t, 1)
	view, err := h.agent.Create(context.Background())
	require.NoError(t, err)

	_, err = h.agent.IngestFromGmail(context.Background(), view.ID, "Interview")
	assert.ErrorContains(t, err, "not configured")
}

type fakeGmail struct{ docs map[models.DocumentKind]string }

func (g fakeGmail) FetchAttachments(context.Context, string, string) (map[models.DocumentKind]string, error) {
	return g.docs, nil
}

func TestIngestFromGmail(t *testing.T) {
	h := newHarness(t, 1)
	dir := t.TempDir()
	docs := map[models.DocumentKind]string{}
	for _, kind := range models.DocumentKinds {
		path := filepath.Join(dir, string(kind)+".txt")
		require.NoError(t, os.WriteFile(path, []byte("text of "+string(kind)), 0644))
		docs[kind] = path
	}
	h.agent.gmail = fakeGmail{docs: docs}

	view, err := h.agent.Create(context.Background())
	require.NoError(t, err)

	view, err = h.agent.IngestFromGmail(context.Background(), view.ID, "Interview")
	require.NoError(t, err)
	assert.Len(t, view.Documents, 3)
}

type countingStore struct {
	session.Store
	mu   sync.Mutex
	puts int
}

func (c *countingStore) Put(ctx context.Context, s *models.InterviewSession) error {
	c.mu.Lock()
	c.puts++
	c.mu.Unlock()
	return c.Store.Put(ctx, s)
}

func (c *countingStore) Puts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

func TestFinishedSessionLeavesStore(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	id := h.started(t)

	_, err := h.agent.Abort(ctx, id)
	require.NoError(t, err)
	rep, err := h.agent.Finalize(ctx, id)
	require.NoError(t, err)

	_, err = h.store.Get(ctx, id)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	ids, err := h.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	view, err := h.agent.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDone, view.Phase)

	_, err = h.agent.Events(ctx, id)
	assert.NoError(t, err)

	again, err := h.agent.Finalize(ctx, id)
	require.NoError(t, err)
	assert.True(t, rep.GeneratedAt.Equal(again.GeneratedAt))

	_, err = h.agent.Submit(ctx, id, "too late")
	var phaseErr *models.InvalidPhaseError
	assert.ErrorAs(t, err, &phaseErr)
}

func TestUnchangedSessionsAreNotRewritten(t *testing.T) {
	store := &countingStore{Store: session.NewMemoryStore()}
	h := newHarnessWithStore(t, 1, store)
	ctx := context.Background()
	id := h.started(t)

	puts := store.Puts()
	for i := 0; i < 3; i++ {
		_, err := h.agent.ExpireOverdue(ctx)
		require.NoError(t, err)
	}
	_, err := h.agent.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, puts, store.Puts(), "polling must not refresh the session")

	h.clock.Advance(session.DefaultDuration)
	expired, err := h.agent.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, expired)
	assert.Equal(t, puts+1, store.Puts())
}

func TestFinalizeOutlivesCancelledRequest(t *testing.T) {
	h := newHarness(t, 1)
	id := h.started(t)

	_, err := h.agent.Next(context.Background(), id)
	require.NoError(t, err)
	_, err = h.agent.Submit(context.Background(), id, "only answer")
	require.NoError(t, err)
	_, err = h.agent.Abort(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := h.agent.Finalize(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 8.0, rep.AverageScore)
	assert.Equal(t, models.DecisionPromote, rep.Decision)
	require.Len(t, rep.Entries, 1)
	assert.Empty(t, rep.Entries[0].ScoreError)
}

func TestSweepFinalizesTimedOutInterviewWithoutAnswers(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	id := h.started(t)

	sweeper := jobs.NewDeadlineSweeper(h.agent, "", nil)

	result, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Expired)
	assert.Empty(t, result.Recovered)

	h.clock.Advance(session.DefaultDuration)

	result, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, result.Expired)
	assert.Equal(t, []string{id}, result.Recovered)

	rep, err := h.agent.GetReport(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, rep.Entries)
	assert.Equal(t, 0.0, rep.AverageScore)
	assert.Equal(t, models.DecisionReject, rep.Decision)
	assert.True(t, rep.TimedOut)
	assert.False(t, h.agent.MonitorRunning(id))

	view, err := h.agent.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDone, view.Phase)

	result, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Recovered)
}

func TestInstancesSharingRedisAcceptOneAnswer(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	redisStore := func() session.Store {
		store, err := session.NewRedisStore(ctx, mr.Addr(), time.Hour)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	}

	h := newHarnessWithStore(t, 1, redisStore())
	other := h.newAgent(t, redisStore(), 1)
	id := h.started(t)

	_, err = h.agent.Next(ctx, id)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		a := h.agent
		if i%2 == 1 {
			a = other
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := a.Submit(ctx, id, fmt.Sprintf("answer %d", i)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)

	view, err := other.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Answered)

	entries, err := h.checkpoints.Load(id)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
