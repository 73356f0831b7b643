package ingestion

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmuoria/ai-interviewer/internal/models"
)

func TestNewFileHandler(t *testing.T) {
	fh := NewFileHandler("test_uploads")
	if fh == nil {
		t.Fatal("Expected non-nil FileHandler")
	}

	if fh.uploadsDir != "test_uploads" {
		t.Errorf("Expected uploadsDir 'test_uploads', got '%s'", fh.uploadsDir)
	}
}

func TestSaveUploadedFile(t *testing.T) {
	tmpDir := t.TempDir()
	fh := NewFileHandler(tmpDir)

	path, err := fh.SaveUploadedFile("interview-1", models.DocumentResume, "My CV.TXT", strings.NewReader("Test CV content"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	expectedPath := filepath.Join(tmpDir, "interview-1", "resume.txt")
	if path != expectedPath {
		t.Errorf("Expected path %s, got %s", expectedPath, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(data) != "Test CV content" {
		t.Errorf("Expected content 'Test CV content', got '%s'", string(data))
	}
}

func TestSaveUploadedFileRejectsUnsupportedType(t *testing.T) {
	fh := NewFileHandler(t.TempDir())

	if _, err := fh.SaveUploadedFile("interview-1", models.DocumentResume, "photo.png", strings.NewReader("x")); err == nil {
		t.Error("Expected error for unsupported extension")
	}
}

func TestSaveUploadedFileRejectsPathTraversal(t *testing.T) {
	fh := NewFileHandler(t.TempDir())

	for _, id := range []string{"", "..", "../escape", "a/b"} {
		if _, err := fh.SaveUploadedFile(id, models.DocumentResume, "cv.txt", strings.NewReader("x")); err == nil {
			t.Errorf("Expected error for interview id %q", id)
		}
	}
}

func TestSaveUploadedFileReplacesPreviousUpload(t *testing.T) {
	tmpDir := t.TempDir()
	fh := NewFileHandler(tmpDir)

	if _, err := fh.SaveUploadedFile("interview-1", models.DocumentProject, "project.txt", strings.NewReader("v1")); err != nil {
		t.Fatal(err)
	}
	if _, err := fh.SaveUploadedFile("interview-1", models.DocumentProject, "project.md", strings.NewReader("v2")); err != nil {
		t.Fatal(err)
	}

	docs, err := fh.LoadDocuments("interview-1")
	if err != nil {
		t.Fatalf("Failed to load documents: %v", err)
	}
	if filepath.Base(docs[models.DocumentProject]) != "project.md" {
		t.Errorf("Expected latest upload project.md, got %s", docs[models.DocumentProject])
	}

	entries, _ := os.ReadDir(filepath.Join(tmpDir, "interview-1"))
	if len(entries) != 1 {
		t.Errorf("Expected old upload removed, found %d files", len(entries))
	}
}

func TestLoadDocuments(t *testing.T) {
	tmpDir := t.TempDir()
	fh := NewFileHandler(tmpDir)

	if _, err := fh.SaveUploadedFile("interview-1", models.DocumentJobDescription, "jd.pdf", strings.NewReader("%PDF-1.4")); err != nil {
		t.Fatal(err)
	}
	if _, err := fh.SaveUploadedFile("interview-1", models.DocumentResume, "cv.docx", strings.NewReader("PK")); err != nil {
		t.Fatal(err)
	}

	docs, err := fh.LoadDocuments("interview-1")
	if err != nil {
		t.Fatalf("Failed to load documents: %v", err)
	}

	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, got %d", len(docs))
	}
	if _, ok := docs[models.DocumentProject]; ok {
		t.Error("Project document should be absent")
	}
}

func TestLoadDocumentsUnknownInterview(t *testing.T) {
	fh := NewFileHandler(t.TempDir())

	docs, err := fh.LoadDocuments("nobody")
	if err != nil {
		t.Fatalf("Failed to load documents: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("Expected no documents, got %d", len(docs))
	}
}

func TestClearUploads(t *testing.T) {
	tmpDir := t.TempDir()
	fh := NewFileHandler(tmpDir)

	if _, err := fh.SaveUploadedFile("interview-1", models.DocumentResume, "cv.txt", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}

	if err := fh.ClearUploads("interview-1"); err != nil {
		t.Fatalf("Failed to clear uploads: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "interview-1")); !os.IsNotExist(err) {
		t.Errorf("Expected interview directory removed, stat error = %v", err)
	}
}
