package proctoring

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fmuoria/ai-interviewer/internal/models"
)

// Checker runs a single face validation on demand
type Checker struct {
	camera  Camera
	counter FaceCounter
	log     *EventLog
	logger  *zap.Logger
}

// NewChecker creates an on-demand face checker sharing the monitor's event log
func NewChecker(camera Camera, counter FaceCounter, log *EventLog, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{camera: camera, counter: counter, log: log, logger: logger}
}

// Check captures one frame, classifies it and logs the outcome as an event
func (c *Checker) Check(ctx context.Context, interviewID string) (models.FaceCheckResponse, error) {
	frame, err := c.camera.Capture(ctx)
	if err != nil {
		return models.FaceCheckResponse{}, err
	}

	count, err := c.counter.CountFaces(ctx, frame)
	if err != nil {
		return models.FaceCheckResponse{}, fmt.Errorf("failed to count faces: %w", err)
	}

	status := models.FaceStatusFromCount(count)
	resp := models.FaceCheckResponse{Status: status}

	switch status {
	case models.FaceAbsent:
		resp.Message = models.MessageNoFace
	case models.FaceMultiple:
		resp.Message = models.MessageMultipleFaces
	default:
		resp.Message = models.MessageFaceValidated
	}

	var snapshot *Frame
	if status != models.FacePresent {
		snapshot = &frame
	}
	if _, err := c.log.Append(interviewID, resp.Message, snapshot); err != nil {
		c.logger.Error("failed to log face check",
			zap.String("interview_id", interviewID),
			zap.String("status", string(status)),
			zap.Error(err))
	}

	return resp, nil
}

// CaptureInitialFace stores a reference frame for the interview
func (c *Checker) CaptureInitialFace(ctx context.Context, interviewID string) (string, error) {
	frame, err := c.camera.Capture(ctx)
	if err != nil {
		return "", err
	}
	return c.log.SaveInitialFace(interviewID, frame)
}
