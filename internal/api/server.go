package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/fmuoria/ai-interviewer/internal/history"
	"github.com/fmuoria/ai-interviewer/internal/metrics"
	"github.com/fmuoria/ai-interviewer/internal/models"
	"github.com/fmuoria/ai-interviewer/internal/session"
)

const maxUploadBytes = 32 << 20

// Interviewer is the interview service the API exposes
type Interviewer interface {
	Create(ctx context.Context) (models.SessionView, error)
	GetSession(ctx context.Context, id string) (models.SessionView, error)
	UploadDocument(ctx context.Context, id string, kind models.DocumentKind, filename string, content io.Reader) (models.SessionView, error)
	IngestFromGmail(ctx context.Context, id, subject string) (models.SessionView, error)
	Start(ctx context.Context, id string) (models.SessionView, error)
	Next(ctx context.Context, id string) (models.QuestionResponse, error)
	Submit(ctx context.Context, id, answer string) (models.SessionView, error)
	Abort(ctx context.Context, id string) (models.SessionView, error)
	ValidateFace(ctx context.Context, id string) (models.FaceCheckResponse, error)
	Events(ctx context.Context, id string) ([]models.ProctoringEvent, error)
	Finalize(ctx context.Context, id string) (*models.Report, error)
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ExportReport(ctx context.Context, id, outputPath string) error
	ListReports() ([]string, error)
}

// History lists finalized reports from the database
type History interface {
	List(ctx context.Context, limit int) ([]history.ReportRecord, error)
	Stats(ctx context.Context) (history.Stats, error)
}

// Options configures a Server
type Options struct {
	History        History
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Server handles HTTP requests
type Server struct {
	agent   Interviewer
	history History
	origins []string
	logger  *zap.Logger
}

// NewServer creates a new API server
func NewServer(agent Interviewer, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		agent:   agent,
		history: opts.History,
		origins: opts.AllowedOrigins,
		logger:  logger,
	}
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
			AllowCredentials: true,
		}))
	}
	r.Use(middleware.RequestID, middleware.RealIP, s.loggingMiddleware, middleware.Recoverer, metrics.Middleware)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/interviews", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/documents", s.handleUpload)
			r.Post("/gmail", s.handleGmail)
			r.Post("/start", s.handleStart)
			r.Get("/question", s.handleQuestion)
			r.Post("/answers", s.handleSubmit)
			r.Post("/abort", s.handleAbort)
			r.Post("/face", s.handleFace)
			r.Get("/events", s.handleEvents)
			r.Post("/finalize", s.handleFinalize)
			r.Get("/report", s.handleReport)
			r.Get("/report.xlsx", s.handleReportExcel)
		})
	})

	r.Get("/reports", s.handleListReports)
	r.Get("/reports/stats", s.handleReportStats)

	return r
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "AI Interviewer",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"POST /interviews":                 "Create an interview",
			"POST /interviews/{id}/documents":  "Upload job_description, resume and project files",
			"POST /interviews/{id}/gmail":      "Fetch documents from Gmail by subject",
			"POST /interviews/{id}/start":      "Start questioning and proctoring",
			"GET /interviews/{id}/question":    "Current or next question",
			"POST /interviews/{id}/answers":    "Submit an answer",
			"POST /interviews/{id}/abort":      "End the interview early",
			"POST /interviews/{id}/face":       "Validate the candidate's face",
			"GET /interviews/{id}/events":      "Proctoring events",
			"POST /interviews/{id}/finalize":   "Score and write the report",
			"GET /interviews/{id}/report":      "Stored report",
			"GET /interviews/{id}/report.xlsx": "Excel export of the report",
			"GET /reports":                     "Report history",
			"GET /health":                      "Health check",
			"GET /metrics":                     "Prometheus metrics",
		},
	})
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	view, err := s.agent.Create(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.agent.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

// handleUpload stores any of the three intake documents sent as multipart files
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse form: %v", err))
		return
	}

	var (
		view     models.SessionView
		uploaded int
	)
	for _, kind := range models.DocumentKinds {
		file, header, err := r.FormFile(string(kind))
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read %s: %v", kind, err))
			return
		}

		view, err = s.agent.UploadDocument(r.Context(), id, kind, header.Filename, file)
		file.Close()
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		uploaded++
	}

	if uploaded == 0 {
		s.respondError(w, http.StatusBadRequest, "no documents uploaded: expected job_description, resume or project files")
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleGmail(w http.ResponseWriter, r *http.Request) {
	var req models.GmailIntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Subject == "" {
		s.respondError(w, http.StatusBadRequest, "subject is required")
		return
	}

	view, err := s.agent.IngestFromGmail(r.Context(), chi.URLParam(r, "id"), req.Subject)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	view, err := s.agent.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	resp, err := s.agent.Next(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	view, err := s.agent.Submit(r.Context(), chi.URLParam(r, "id"), req.Answer)
	if errors.Is(err, models.ErrTimeExpired) {
		s.respondJSON(w, http.StatusOK, models.QuestionResponse{
			Phase:  models.PhaseFinalizing,
			Notice: session.NoticeTimeOver,
		})
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	view, err := s.agent.Abort(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleFace(w http.ResponseWriter, r *http.Request) {
	resp, err := s.agent.ValidateFace(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.agent.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, events)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	report, err := s.agent.Finalize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.agent.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

// handleReportExcel exports the report to a temporary workbook and streams it
func (s *Server) handleReportExcel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tmpDir, err := os.MkdirTemp("", "interview-export-*")
	if err != nil {
		s.respondErr(w, r, fmt.Errorf("failed to create temp directory: %w", err))
		return
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "interview_report_"+id+".xlsx")
	if err := s.agent.ExportReport(r.Context(), id, path); err != nil {
		s.respondErr(w, r, err)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.respondErr(w, r, fmt.Errorf("failed to read export: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleListReports returns the database history when configured, otherwise
// the ids of the reports on disk
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		ids, err := s.agent.ListReports()
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"interview_ids": ids})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"reports": records})
}

func (s *Server) handleReportStats(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusNotFound, "report history is not configured")
		return
	}
	stats, err := s.history.Stats(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// respondError sends an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// errorBody is the JSON shape of a failed request
type errorBody struct {
	Error     string                `json:"error"`
	Missing   []models.DocumentKind `json:"missing,omitempty"`
	Retryable bool                  `json:"retryable,omitempty"`
}

// respondErr maps a service error onto an HTTP status
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	s.respondJSON(w, status, body)
}

func statusFor(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}

	var (
		intakeErr     *models.IncompleteIntakeError
		formatErr     *models.UnsupportedFormatError
		phaseErr      *models.InvalidPhaseError
		genErr        *models.GenerationError
		cameraErr     *models.CameraUnavailableError
		checkpointErr *models.CheckpointWriteError
		reportErr     *models.ReportWriteError
	)
	switch {
	case errors.As(err, &intakeErr):
		body.Missing = intakeErr.Missing
		return http.StatusBadRequest, body
	case errors.As(err, &formatErr):
		return http.StatusUnsupportedMediaType, body
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrReportNotFound):
		return http.StatusNotFound, body
	case errors.As(err, &phaseErr), errors.Is(err, models.ErrNoPendingQuestion):
		return http.StatusConflict, body
	case errors.As(err, &genErr):
		return http.StatusBadGateway, body
	case errors.As(err, &cameraErr):
		return http.StatusServiceUnavailable, body
	case errors.As(err, &checkpointErr), errors.As(err, &reportErr):
		body.Retryable = true
		return http.StatusInternalServerError, body
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		body.Retryable = true
		return http.StatusServiceUnavailable, body
	default:
		return http.StatusInternalServerError, body
	}
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("remote_addr", r.RemoteAddr))
	})
}
