package proctoring

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/fmuoria/ai-interviewer/internal/models"
)

// Frame is one still image captured from the candidate's camera
type Frame struct {
	Data     []byte
	MIMEType string
}

// Ext returns the file extension used when the frame is stored as a snapshot
func (f Frame) Ext() string {
	switch f.MIMEType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

// Camera produces frames. Failures are reported as *models.CameraUnavailableError.
type Camera interface {
	Capture(ctx context.Context) (Frame, error)
}

// CommandCamera captures a frame by running an external command that writes a
// single image to stdout, e.g. ffmpeg reading a v4l2 device.
type CommandCamera struct {
	command []string
	timeout time.Duration
}

// NewCommandCamera creates a camera around a capture command
func NewCommandCamera(command []string) *CommandCamera {
	return &CommandCamera{command: command, timeout: 10 * time.Second}
}

// Capture runs the command and returns the image it printed
func (c *CommandCamera) Capture(ctx context.Context) (Frame, error) {
	if len(c.command) == 0 {
		return Frame{}, &models.CameraUnavailableError{Err: errors.New("no capture command configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.command[0], c.command[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[len(msg)-200:]
		}
		return Frame{}, &models.CameraUnavailableError{Err: fmt.Errorf("%s failed: %w: %s", c.command[0], err, msg)}
	}

	return NewFrame(stdout.Bytes())
}

// NewFrame wraps raw image bytes, sniffing the image type
func NewFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, &models.CameraUnavailableError{Err: errors.New("camera returned an empty frame")}
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return Frame{}, &models.CameraUnavailableError{Err: fmt.Errorf("camera returned %s, not an image", mime)}
	}
	return Frame{Data: data, MIMEType: mime}, nil
}
