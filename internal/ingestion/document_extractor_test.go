package ingestion

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fmuoria/ai-interviewer/internal/models"
)

// TestIsBinaryData_PlainText tests that plain text is not detected as binary
func TestIsBinaryData_PlainText(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "Simple text",
			content: "This is a plain text CV with normal content.",
		},
		{
			name:    "Multi-line text",
			content: "John Doe\nSoftware Engineer\n5 years experience",
		},
		{
			name:    "Text with special chars",
			content: "Education: Bachelor's Degree in Computer Science\nGPA: 3.8/4.0",
		},
		{
			name:    "Empty string",
			content: "",
		},
		{
			name:    "Text with tabs and newlines",
			content: "Name:\tJohn\nTitle:\tEngineer\nYears:\t5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsBinaryData(tt.content) {
				t.Errorf("IsBinaryData() returned true for plain text: %q", tt.content)
			}
		})
	}
}

// TestIsBinaryData_PDF tests that PDF content is detected as binary
func TestIsBinaryData_PDF(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "PDF header v1.4",
			content: "%PDF-1.4\n%âãÏÓ\n",
		},
		{
			name:    "PDF header v1.5",
			content: "%PDF-1.5\n%ÓÔÅÔ\n1 0 obj\n",
		},
		{
			name:    "PDF header v1.7",
			content: "%PDF-1.7\n%%EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !IsBinaryData(tt.content) {
				t.Errorf("IsBinaryData() returned false for PDF content")
			}
		})
	}
}

// TestIsBinaryData_ZIP tests that ZIP/DOCX content is detected as binary
func TestIsBinaryData_ZIP(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "ZIP magic number",
			content: "PK\x03\x04",
		},
		{
			name:    "DOCX file (ZIP format)",
			content: "PK\x03\x04\x14\x00\x00\x00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !IsBinaryData(tt.content) {
				t.Errorf("IsBinaryData() returned false for ZIP/DOCX content")
			}
		})
	}
}

// TestIsBinaryData_HighNonPrintable tests binary detection with high non-printable chars
func TestIsBinaryData_HighNonPrintable(t *testing.T) {
	// Create a string with many non-printable characters (>30% of first 1000 chars)
	// This simulates corrupted or binary data
	// Non-printable means < 32 excluding \n, \r, \t
	var sb strings.Builder
	// Add 400 non-printable characters (bytes 0-31 except 9, 10, 13)
	for i := 0; i < 400; i++ {
		sb.WriteByte(0x01) // Non-printable byte
	}
	// Add 600 printable characters
	for i := 0; i < 600; i++ {
		sb.WriteString("x")
	}

	content := sb.String()

	if !IsBinaryData(content) {
		t.Errorf("IsBinaryData() returned false for content with high proportion of non-printable chars")
	}
}

// TestIsBinaryData_LowNonPrintable tests that text with few non-printable chars is not binary
func TestIsBinaryData_LowNonPrintable(t *testing.T) {
	// Create mostly normal text with a few non-printable characters
	content := "John Doe - Software Engineer\x00\nExperience: 5 years\nEducation: BS Computer Science"

	if IsBinaryData(content) {
		t.Errorf("IsBinaryData() returned true for mostly text content with few non-printable chars")
	}
}

// TestExtractText_TXT tests that TXT files are read and trimmed
func TestExtractText_TXT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.txt")
	if err := os.WriteFile(path, []byte("  Senior engineer with strong skills.\n\n"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := ExtractText(path)
	if err != nil {
		t.Fatalf("ExtractText() returned error for .txt file: %v", err)
	}
	if result != "Senior engineer with strong skills." {
		t.Errorf("ExtractText() = %q", result)
	}
}

// TestExtractText_TXTWithBinaryContent tests that a renamed binary file is rejected
func TestExtractText_TXTWithBinaryContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.txt")
	if err := os.WriteFile(path, []byte("%PDF-1.4\n%âãÏÓ\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := ExtractText(path)
	var formatErr *models.UnsupportedFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("ExtractText() error = %v, want UnsupportedFormatError", err)
	}
}

// TestExtractText_UnsupportedType tests that unsupported file types return error
func TestExtractText_UnsupportedType(t *testing.T) {
	tests := []string{
		"test.jpg",
		"test.png",
		"test.xlsx",
		"test.unknown",
	}

	for _, filename := range tests {
		t.Run(filename, func(t *testing.T) {
			_, err := ExtractText(filename)
			if err == nil {
				t.Fatalf("ExtractText() should return error for unsupported file type %s", filename)
			}
			var formatErr *models.UnsupportedFormatError
			if !errors.As(err, &formatErr) {
				t.Errorf("ExtractText() error type = %T, want *models.UnsupportedFormatError", err)
			}
			if !strings.Contains(err.Error(), "unsupported file type") {
				t.Errorf("Error message should mention 'unsupported file type', got: %v", err)
			}
		})
	}
}

// TestExtractText_MissingDOCX tests that a missing DOCX reports an unsupported document
func TestExtractText_MissingDOCX(t *testing.T) {
	_, err := ExtractText(filepath.Join(t.TempDir(), "missing.docx"))
	if err == nil {
		t.Fatal("ExtractText() should return error for non-existent .docx file")
	}
	var formatErr *models.UnsupportedFormatError
	if !errors.As(err, &formatErr) {
		t.Errorf("ExtractText() error type = %T, want *models.UnsupportedFormatError", err)
	}
}

// TestDocxXMLToText tests that WordprocessingML markup is reduced to paragraphs
func TestDocxXMLToText(t *testing.T) {
	xml := `<w:document><w:body>` +
		`<w:p><w:r><w:t>Backend Engineer</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Go &amp; Postgres</w:t><w:tab/><w:t>5 years</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	got := docxXMLToText(xml)
	want := "Backend Engineer\nGo & Postgres\t5 years\n"
	if got != want {
		t.Errorf("docxXMLToText() = %q, want %q", got, want)
	}
}

// TestSanitizeUTF8 tests that invalid sequences are replaced and valid text is untouched
func TestSanitizeUTF8(t *testing.T) {
	valid := "José González - 软件工程师"
	if got := SanitizeUTF8(valid); got != valid {
		t.Errorf("SanitizeUTF8() changed valid string: %q", got)
	}

	invalid := "Start " + string([]byte{0xFF, 0xFE}) + " End"
	got := SanitizeUTF8(invalid)
	if !utf8.ValidString(got) {
		t.Errorf("SanitizeUTF8() returned invalid UTF-8: %q", got)
	}
	if !strings.Contains(got, "Start") || !strings.Contains(got, "End") {
		t.Errorf("SanitizeUTF8() lost valid text: %q", got)
	}
}
