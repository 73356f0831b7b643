package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fmuoria/ai-interviewer/internal/agent"
	"github.com/fmuoria/ai-interviewer/internal/checkpoint"
	"github.com/fmuoria/ai-interviewer/internal/config"
	"github.com/fmuoria/ai-interviewer/internal/export"
	"github.com/fmuoria/ai-interviewer/internal/history"
	"github.com/fmuoria/ai-interviewer/internal/ingestion"
	"github.com/fmuoria/ai-interviewer/internal/llm"
	"github.com/fmuoria/ai-interviewer/internal/notify"
	"github.com/fmuoria/ai-interviewer/internal/proctoring"
	"github.com/fmuoria/ai-interviewer/internal/prompts"
	"github.com/fmuoria/ai-interviewer/internal/questions"
	"github.com/fmuoria/ai-interviewer/internal/report"
	"github.com/fmuoria/ai-interviewer/internal/scoring"
	"github.com/fmuoria/ai-interviewer/internal/session"
)

// sessionTTL bounds how long an idle session is kept in Redis
const sessionTTL = 24 * time.Hour

// app is the fully wired interview service
type app struct {
	agent   *agent.InterviewAgent
	history *history.Repository
	closers []func() error
}

// newApp builds every component from configuration. Optional backends
// (Redis, database, RabbitMQ, Gmail, camera) are skipped when unconfigured.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	cfg.ApplyToEnv()

	pm, err := prompts.NewPromptManager()
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	provider, err := llm.NewProvider(cfg.LLMProvider, llm.Settings{
		Project:  cfg.GoogleCloudProject,
		Location: cfg.GoogleCloudLocation,
		APIKey:   cfg.GeminiAPIKey,
		Model:    cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	a.closers = append(a.closers, provider.Close)
	logger.Info("LLM provider ready", zap.String("provider", provider.GetProviderName()))

	checkpoints, err := checkpoint.NewExcelStore(cfg.CheckpointDir)
	if err != nil {
		return nil, err
	}
	reports, err := export.NewReportWriter(cfg.ReportsDir)
	if err != nil {
		return nil, err
	}

	finalizerOpts := report.Options{
		Scorer:      scoring.NewScorer(provider, pm),
		Writer:      reports,
		Checkpoints: checkpoints,
		Threshold:   cfg.PromoteThreshold,
		Retries:     cfg.ScoreRetries,
		Progress: func(current, total int, message string) {
			logger.Debug("finalize progress", zap.Int("current", current), zap.Int("total", total), zap.String("message", message))
		},
		Logger: logger,
	}

	if cfg.DatabaseDriver != "" {
		repo, err := history.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		a.history = repo
		a.closers = append(a.closers, repo.Close)
		finalizerOpts.History = repo
		logger.Info("report history enabled", zap.String("driver", cfg.DatabaseDriver))
	}

	if cfg.RabbitMQURL != "" {
		publisher, err := notify.NewRabbitMQ(cfg.RabbitMQURL, notify.DefaultQueue)
		if err != nil {
			logger.Warn("report notifications disabled", zap.Error(err))
		} else {
			a.closers = append(a.closers, publisher.Close)
			finalizerOpts.Publisher = publisher
			logger.Info("report notifications enabled", zap.String("queue", notify.DefaultQueue))
		}
	}

	var store session.Store = session.NewMemoryStore()
	if cfg.RedisAddr != "" {
		redisStore, err := session.NewRedisStore(ctx, cfg.RedisAddr, sessionTTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redisStore.Close)
		store = redisStore
		logger.Info("sessions stored in redis", zap.String("addr", cfg.RedisAddr))
	}

	events := proctoring.NewEventLog(cfg.SnapshotDir)
	machineCfg := session.Config{
		Generator:     questions.NewGenerator(provider, pm),
		Checkpoints:   checkpoints,
		Finalizer:     report.NewFinalizer(finalizerOpts),
		Experience:    ingestion.ExtractExperienceYears,
		Duration:      cfg.InterviewDuration(),
		QuestionLimit: cfg.QuestionLimit,
		Logger:        logger,
	}

	agentOpts := agent.Options{
		Store:       store,
		Files:       ingestion.NewFileHandler(cfg.UploadsDir),
		Checkpoints: checkpoints,
		Reports:     reports,
		Events:      events,
		Logger:      logger,
	}

	vision, isVision := provider.(llm.VisionProvider)
	switch {
	case len(cfg.CameraCommand) == 0:
		logger.Warn("proctoring disabled: no camera command configured")
	case !isVision:
		logger.Warn("proctoring disabled: provider cannot read images", zap.String("provider", provider.GetProviderName()))
	default:
		camera := proctoring.NewCommandCamera(cfg.CameraCommand)
		counter := proctoring.NewVisionFaceCounter(vision, pm)
		checker := proctoring.NewChecker(camera, counter, events, logger)
		machineCfg.Faces = checker
		agentOpts.Checker = checker
		interval := cfg.MonitorInterval()
		agentOpts.NewMonitor = func(id string) *proctoring.Monitor {
			return proctoring.NewMonitor(id, camera, counter, events, interval, logger)
		}
	}

	if cfg.GmailCredentialsPath != "" {
		gmail, err := ingestion.NewGmailHandler(ctx, cfg.GmailCredentialsPath, cfg.GmailTokenPath, agentOpts.Files, logger)
		if err != nil {
			logger.Warn("gmail intake disabled", zap.Error(err))
		} else {
			agentOpts.Gmail = gmail
		}
	}

	agentOpts.Machine = session.NewMachine(machineCfg)
	a.agent = agent.NewInterviewAgent(agentOpts)
	a.closers = append(a.closers, a.agent.Close)

	ok = true
	return a, nil
}

// Close releases resources in reverse order of creation
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
