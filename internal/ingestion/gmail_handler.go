package ingestion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/fmuoria/ai-interviewer/internal/models"
)

// GmailHandler fetches intake documents sent to the recruiting mailbox
type GmailHandler struct {
	service     *gmail.Service
	fileHandler *FileHandler
	logger      *zap.Logger
}

// NewGmailHandler creates a Gmail handler from OAuth client credentials and a
// previously authorized token file
func NewGmailHandler(ctx context.Context, credentialsPath, tokenPath string, fileHandler *FileHandler, logger *zap.Logger) (*GmailHandler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
		return nil, fmt.Errorf("gmail token %s unavailable (authorize at %s): %w", tokenPath, authURL, err)
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail client: %w", err)
	}

	return &GmailHandler{
		service:     srv,
		fileHandler: fileHandler,
		logger:      logger,
	}, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// FetchAttachments downloads the attachments of messages matching subject and
// stores each recognised document under the interview's upload directory
func (gh *GmailHandler) FetchAttachments(ctx context.Context, interviewID, subject string) (map[models.DocumentKind]string, error) {
	user := "me"
	query := fmt.Sprintf("subject:%s has:attachment", subject)

	r, err := gh.service.Users.Messages.List(user).Q(query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve messages: %w", err)
	}

	if len(r.Messages) == 0 {
		return nil, fmt.Errorf("no messages found with subject: %s", subject)
	}

	saved := make(map[models.DocumentKind]string)
	for _, msg := range r.Messages {
		message, err := gh.service.Users.Messages.Get(user, msg.Id).Context(ctx).Do()
		if err != nil {
			gh.logger.Warn("unable to retrieve message", zap.String("message_id", msg.Id), zap.Error(err))
			continue
		}

		for _, part := range message.Payload.Parts {
			if part.Filename == "" || part.Body == nil || part.Body.AttachmentId == "" {
				continue
			}

			kind, ok := ClassifyAttachment(part.Filename)
			if !ok || !IsSupportedExtension(part.Filename) {
				gh.logger.Info("skipping attachment", zap.String("filename", part.Filename))
				continue
			}
			if _, done := saved[kind]; done {
				continue
			}

			attachment, err := gh.service.Users.Messages.Attachments.Get(user, msg.Id, part.Body.AttachmentId).Context(ctx).Do()
			if err != nil {
				gh.logger.Warn("unable to retrieve attachment", zap.String("filename", part.Filename), zap.Error(err))
				continue
			}

			data, err := base64.URLEncoding.DecodeString(attachment.Data)
			if err != nil {
				gh.logger.Warn("unable to decode attachment", zap.String("filename", part.Filename), zap.Error(err))
				continue
			}

			path, err := gh.fileHandler.SaveUploadedFile(interviewID, kind, part.Filename, bytes.NewReader(data))
			if err != nil {
				return saved, fmt.Errorf("failed to store attachment %s: %w", part.Filename, err)
			}
			saved[kind] = path
			gh.logger.Info("downloaded intake document",
				zap.String("interview_id", interviewID),
				zap.String("kind", string(kind)),
				zap.String("filename", part.Filename))
		}
	}

	return saved, nil
}

// ClassifyAttachment guesses which intake document an attachment holds from its name
func ClassifyAttachment(filename string) (models.DocumentKind, bool) {
	base := strings.ToLower(strings.TrimSuffix(filename, filepath.Ext(filename)))

	switch {
	case strings.Contains(base, "resume") || strings.Contains(base, "cv"):
		return models.DocumentResume, true
	case strings.Contains(base, "project") || strings.Contains(base, "requirement"):
		return models.DocumentProject, true
	case strings.Contains(base, "jd") || strings.Contains(base, "job") || strings.Contains(base, "description"):
		return models.DocumentJobDescription, true
	default:
		return "", false
	}
}
