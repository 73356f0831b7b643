package ingestion

import (
	"fmt"
	"html"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nguyenthenguyen/docx"

	"github.com/fmuoria/ai-interviewer/internal/models"
)

const (
	// MinExtractedTextLength is the minimum text length required for successful PDF extraction
	MinExtractedTextLength = 50
	// BinarySampleSize is the number of bytes to sample for binary detection
	BinarySampleSize = 1000
	// BinaryThreshold is the proportion of non-printable characters that indicates binary data
	BinaryThreshold = 0.3
)

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
	docxTab          = regexp.MustCompile(`<w:tab/>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
)

// ExtractText extracts text from PDF, DOCX, DOC, or TXT files
func ExtractText(filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	var (
		text string
		err  error
	)
	switch ext {
	case ".txt", ".md":
		text, err = extractPlain(filePath)
	case ".pdf":
		text, err = extractPDF(filePath)
	case ".docx":
		text, err = extractDOCX(filePath)
	case ".doc":
		text, err = extractDOC(filePath)
	default:
		return "", &models.UnsupportedFormatError{Path: filePath, Reason: fmt.Sprintf("unsupported file type %q", ext)}
	}
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(SanitizeUTF8(text)), nil
}

// extractPlain reads a text file, rejecting content that is really binary
func extractPlain(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", &models.UnsupportedFormatError{Path: filePath, Reason: "unreadable", Err: err}
	}

	content := string(data)
	if IsBinaryData(content) {
		return "", &models.UnsupportedFormatError{Path: filePath, Reason: "file has a text extension but binary content"}
	}
	return content, nil
}

// extractPDF extracts text from PDF using pdftotext (poppler-utils)
func extractPDF(filePath string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", filePath, "-")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", &models.UnsupportedFormatError{Path: filePath, Reason: "PDF extraction requires 'pdftotext' (install poppler-utils)", Err: err}
	}

	text := string(output)
	if len(strings.TrimSpace(text)) < MinExtractedTextLength {
		return "", &models.UnsupportedFormatError{Path: filePath, Reason: "extracted text is too short (scanned or image-only PDF?)"}
	}

	return text, nil
}

// extractDOCX reads the document body of a .docx file and strips the WordprocessingML markup
func extractDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", &models.UnsupportedFormatError{Path: filePath, Reason: "invalid DOCX archive", Err: err}
	}
	defer r.Close()

	return docxXMLToText(r.Editable().GetContent()), nil
}

// docxXMLToText converts document.xml content to plain text, one paragraph per line
func docxXMLToText(content string) string {
	content = docxParagraphEnd.ReplaceAllString(content, "\n")
	content = docxTab.ReplaceAllString(content, "\t")
	content = xmlTag.ReplaceAllString(content, "")
	return html.UnescapeString(content)
}

// extractDOC extracts text from legacy .doc files using antiword
func extractDOC(filePath string) (string, error) {
	cmd := exec.Command("antiword", filePath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", &models.UnsupportedFormatError{Path: filePath, Reason: "DOC extraction requires 'antiword'", Err: err}
	}
	return string(output), nil
}

// IsBinaryData checks if content appears to be binary (PDF/ZIP markers)
func IsBinaryData(content string) bool {
	if len(content) == 0 {
		return false
	}

	if strings.HasPrefix(content, "%PDF-") {
		return true
	}

	// ZIP magic number (DOCX files)
	if len(content) >= 2 && content[:2] == "PK" {
		return true
	}

	sampleSize := min(BinarySampleSize, len(content))
	nonPrintable := 0
	for i := 0; i < sampleSize; i++ {
		ch := content[i]
		if ch < 32 && ch != '\n' && ch != '\r' && ch != '\t' {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(sampleSize) > BinaryThreshold
}

// SanitizeUTF8 replaces invalid UTF-8 sequences so the text is safe to send to an LLM
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}
