package proctoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fmuoria/ai-interviewer/internal/metrics"
	"github.com/fmuoria/ai-interviewer/internal/models"
)

// DefaultInterval is the sampling cadence of a monitor
const DefaultInterval = 3 * time.Second

// ErrMonitorStarted is returned when Start is called twice
var ErrMonitorStarted = errors.New("monitor already started")

// Monitor samples the camera in the background for one interview and logs an
// event whenever the frame shows no face or more than one face.
type Monitor struct {
	interviewID string
	camera      Camera
	counter     FaceCounter
	log         *EventLog
	interval    time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewMonitor creates a monitor; it does nothing until Start
func NewMonitor(interviewID string, camera Camera, counter FaceCounter, log *EventLog, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		interviewID: interviewID,
		camera:      camera,
		counter:     counter,
		log:         log,
		interval:    interval,
		logger:      logger.With(zap.String("interview_id", interviewID)),
	}
}

// Start launches the sampling goroutine. The monitor runs until Stop is
// called, ctx is cancelled, or the camera becomes unavailable.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done != nil || m.stopped {
		return ErrMonitorStarted
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	metrics.MonitorStarted()
	go m.run(ctx, m.done)

	m.logger.Info("proctoring monitor started", zap.Duration("interval", m.interval))
	return nil
}

// Stop cancels the monitor and waits for the goroutine to exit. It is safe to
// call more than once and on a monitor that was never started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed once the sampling goroutine has exited
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.done
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer metrics.MonitorStopped()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if !m.sample(ctx) {
			return
		}

		select {
		case <-ctx.Done():
			m.logger.Info("proctoring monitor stopped")
			return
		case <-ticker.C:
		}
	}
}

// sample takes one frame and logs an event if needed. It returns false when the
// monitor should stop.
func (m *Monitor) sample(ctx context.Context) bool {
	frame, err := m.camera.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		var camErr *models.CameraUnavailableError
		if errors.As(err, &camErr) {
			m.logger.Warn("camera unavailable, proctoring monitor stopping", zap.Error(err))
			return false
		}
		m.logger.Warn("frame capture failed", zap.Error(err))
		return true
	}

	count, err := m.counter.CountFaces(ctx, frame)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("face count failed", zap.Error(err))
		}
		return ctx.Err() == nil
	}

	var message string
	switch models.FaceStatusFromCount(count) {
	case models.FaceAbsent:
		message = models.MessageNoFace
	case models.FaceMultiple:
		message = models.MessageMultipleFaces
	default:
		return true
	}

	if _, err := m.log.Append(m.interviewID, message, &frame); err != nil {
		m.logger.Error("failed to log proctoring event", zap.String("message", message), zap.Error(err))
		return true
	}
	m.logger.Info("proctoring event", zap.String("message", message), zap.Int("faces", count))
	return true
}
