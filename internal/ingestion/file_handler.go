package ingestion

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fmuoria/ai-interviewer/internal/models"
)

// SupportedExtensions lists the upload formats ExtractText understands
var SupportedExtensions = []string{".pdf", ".txt", ".md", ".doc", ".docx"}

// IsSupportedExtension reports whether filename has an accepted document extension
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// FileHandler manages the uploaded intake documents of each interview
type FileHandler struct {
	uploadsDir string
}

// NewFileHandler creates a new file handler
func NewFileHandler(uploadsDir string) *FileHandler {
	return &FileHandler{
		uploadsDir: uploadsDir,
	}
}

// interviewDir returns the upload directory of one interview
func (fh *FileHandler) interviewDir(interviewID string) (string, error) {
	if interviewID == "" || filepath.Base(interviewID) != interviewID || interviewID == "." || interviewID == ".." {
		return "", fmt.Errorf("invalid interview id %q", interviewID)
	}
	return filepath.Join(fh.uploadsDir, interviewID), nil
}

// SaveUploadedFile stores an intake document as <uploads>/<interview>/<kind><ext>,
// replacing any earlier upload of the same kind
func (fh *FileHandler) SaveUploadedFile(interviewID string, kind models.DocumentKind, filename string, content io.Reader) (string, error) {
	if !IsSupportedExtension(filename) {
		return "", &models.UnsupportedFormatError{Path: filename, Reason: fmt.Sprintf("unsupported file type %q", filepath.Ext(filename))}
	}

	dir, err := fh.interviewDir(interviewID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}

	// drop a previous upload of this kind that used a different extension
	if old, ok := fh.findDocument(dir, kind); ok {
		os.Remove(old)
	}

	filePath := filepath.Join(dir, string(kind)+strings.ToLower(filepath.Ext(filename)))
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, content); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return filePath, nil
}

// LoadDocuments returns the stored document path of each kind uploaded for an interview
func (fh *FileHandler) LoadDocuments(interviewID string) (map[models.DocumentKind]string, error) {
	dir, err := fh.interviewDir(interviewID)
	if err != nil {
		return nil, err
	}

	docs := make(map[models.DocumentKind]string)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return docs, nil
	}

	for _, kind := range models.DocumentKinds {
		if path, ok := fh.findDocument(dir, kind); ok {
			docs[kind] = path
		}
	}
	return docs, nil
}

// findDocument locates the file of a given kind inside an interview directory
func (fh *FileHandler) findDocument(dir string, kind models.DocumentKind) (string, bool) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == string(kind) {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}

// ClearUploads removes all uploaded files of one interview
func (fh *FileHandler) ClearUploads(interviewID string) error {
	dir, err := fh.interviewDir(interviewID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear uploads directory: %w", err)
	}
	return nil
}
