package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "interviewer"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	interviewsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interviews_started_total",
		Help:      "Interviews that left intake",
	})

	questionsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "questions_generated_total",
		Help:      "Questions produced by the generator",
	})

	answersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_submitted_total",
		Help:      "Answers committed to a checkpoint",
	})

	interviewsTimedOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interviews_timed_out_total",
		Help:      "Interviews forced into finalizing by the clock",
	})

	reportsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_finalized_total",
		Help:      "Reports written, by decision",
	}, []string{"decision"})

	scoringFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scoring_failures_total",
		Help:      "Answers that fell back to the sentinel score",
	})

	finalizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "finalize_duration_seconds",
		Help:      "Time spent scoring and writing a report",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
	})

	proctoringEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proctoring_events_total",
		Help:      "Proctoring events logged, by message",
	}, []string{"message"})

	activeMonitors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "proctoring_monitors_active",
		Help:      "Proctoring monitors currently running",
	})
)

// Counters bumped by the interview lifecycle
func InterviewStarted() { interviewsStarted.Inc() }
func QuestionGenerated() { questionsGenerated.Inc() }
func AnswerSubmitted() { answersSubmitted.Inc() }
func InterviewTimedOut() { interviewsTimedOut.Inc() }
func ScoringFailed() { scoringFailures.Inc() }
func MonitorStarted() { activeMonitors.Inc() }
func MonitorStopped() { activeMonitors.Dec() }

// ReportFinalized records a written report and how long finalizing took
func ReportFinalized(decision string, took time.Duration) {
	reportsFinalized.WithLabelValues(decision).Inc()
	finalizeDuration.Observe(took.Seconds())
}

// ProctoringEvent counts a logged proctoring event
func ProctoringEvent(message string) {
	proctoringEvents.WithLabelValues(message).Inc()
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware records request metrics labelled by chi route pattern
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
