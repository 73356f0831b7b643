package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs the sweep twice a minute
const DefaultSchedule = "@every 30s"

// Target is what the sweeper maintains
type Target interface {
	ExpireOverdue(ctx context.Context) ([]string, error)
	Recover(ctx context.Context) ([]string, error)
}

// SweepResult reports what a single sweep changed
type SweepResult struct {
	Expired   []string
	Recovered []string
}

// DeadlineSweeper enforces interview deadlines for interviews nobody polls and
// finalizes interviews left behind by a crash
type DeadlineSweeper struct {
	target   Target
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewDeadlineSweeper creates a sweeper; an empty schedule means DefaultSchedule
func NewDeadlineSweeper(target Target, schedule string, logger *zap.Logger) *DeadlineSweeper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadlineSweeper{
		target:   target,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start schedules the sweep
func (s *DeadlineSweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error("deadline sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule deadline sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("deadline sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish
func (s *DeadlineSweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("deadline sweeper stopped")
	}
}

// RunOnce performs a single sweep. Overlapping runs are skipped.
func (s *DeadlineSweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("deadline sweep already running, skipping")
		return SweepResult{}, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var result SweepResult

	expired, err := s.target.ExpireOverdue(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to expire overdue interviews: %w", err)
	}
	result.Expired = expired
	if len(expired) > 0 {
		s.logger.Info("expired overdue interviews", zap.Strings("interview_ids", expired))
	}

	recovered, err := s.target.Recover(ctx)
	result.Recovered = recovered
	if len(recovered) > 0 {
		s.logger.Info("finalized interviews", zap.Strings("interview_ids", recovered))
	}
	if err != nil {
		return result, fmt.Errorf("failed to recover interviews: %w", err)
	}

	return result, nil
}
