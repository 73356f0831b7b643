package checkpoint

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/ai-interviewer/internal/fsutil"
	"github.com/fmuoria/ai-interviewer/internal/locks"
	"github.com/fmuoria/ai-interviewer/internal/models"
)

const (
	sheetName  = "Answers"
	filePrefix = "interview_"
	fileSuffix = ".xlsx"

	// encodedMarker flags a row whose exact text follows in base64
	encodedMarker = "base64"
)

// ExcelStore keeps one workbook per interview with a Question | Answer sheet
type ExcelStore struct {
	dir   string
	locks *locks.KeyedMutex
}

// NewExcelStore creates a checkpoint store rooted at dir
func NewExcelStore(dir string) (*ExcelStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &ExcelStore{dir: dir, locks: locks.New()}, nil
}

// Path returns the workbook location for an interview
func (s *ExcelStore) Path(interviewID string) string {
	return filepath.Join(s.dir, filePrefix+interviewID+fileSuffix)
}

// Save rewrites the interview workbook atomically
func (s *ExcelStore) Save(interviewID string, entries []models.QAEntry) error {
	if interviewID == "" {
		return errors.New("interview id is required")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &[]string{"Question", "Answer"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, e := range entries {
		cells := encodeRow(e)
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", i+2), &cells); err != nil {
			return fmt.Errorf("failed to write entry %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("failed to encode workbook: %w", err)
	}

	unlock := s.locks.Lock(interviewID)
	defer unlock()

	return fsutil.WriteFileAtomic(s.Path(interviewID), buf.Bytes(), 0644)
}

// Load reads the entries back in order
func (s *ExcelStore) Load(interviewID string) ([]models.QAEntry, error) {
	unlock := s.locks.Lock(interviewID)
	defer unlock()

	f, err := excelize.OpenFile(s.Path(interviewID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint rows: %w", err)
	}

	entries := make([]models.QAEntry, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		e, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint row %d: %w", i+1, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Delete removes the workbook; a missing checkpoint is not an error
func (s *ExcelStore) Delete(interviewID string) error {
	unlock := s.locks.Lock(interviewID)
	defer unlock()

	if err := os.Remove(s.Path(interviewID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns interview ids with a checkpoint on disk, sorted
func (s *ExcelStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// encodeRow lays out one entry as Question | Answer. Text a cell cannot hold
// exactly (too long, XML-forbidden characters, escapes, bad UTF-8) is also
// stored base64 encoded after an encodedMarker cell, split across as many
// cells as needed. An all-empty entry is encoded too so the row is not dropped.
func encodeRow(e models.QAEntry) []string {
	cells := []string{e.Question, e.Answer}
	if cellSafe(e.Question) && cellSafe(e.Answer) && (e.Question != "" || e.Answer != "") {
		return cells
	}

	payload := base64.StdEncoding.EncodeToString([]byte(e.Question)) + "." +
		base64.StdEncoding.EncodeToString([]byte(e.Answer))
	cells = append(cells, encodedMarker)
	for len(payload) > excelize.TotalCellChars {
		cells = append(cells, payload[:excelize.TotalCellChars])
		payload = payload[excelize.TotalCellChars:]
	}
	return append(cells, payload)
}

func decodeRow(row []string) (models.QAEntry, error) {
	var e models.QAEntry
	if len(row) > 2 && row[2] == encodedMarker {
		question, answer, ok := strings.Cut(strings.Join(row[3:], ""), ".")
		if !ok {
			return e, errors.New("malformed encoded entry")
		}
		q, err := base64.StdEncoding.DecodeString(question)
		if err != nil {
			return e, fmt.Errorf("bad encoded question: %w", err)
		}
		a, err := base64.StdEncoding.DecodeString(answer)
		if err != nil {
			return e, fmt.Errorf("bad encoded answer: %w", err)
		}
		return models.QAEntry{Question: string(q), Answer: string(a)}, nil
	}

	if len(row) > 0 {
		e.Question = row[0]
	}
	if len(row) > 1 {
		e.Answer = row[1]
	}
	return e, nil
}

// cellSafe reports whether s reads back from a cell byte for byte
func cellSafe(s string) bool {
	if !utf8.ValidString(s) || strings.TrimSpace(s) != s || strings.Contains(s, "_x") {
		return false
	}
	units := 0
	for _, r := range s {
		if r == '\r' || !xmlChar(r) {
			return false
		}
		units += utf16.RuneLen(r)
	}
	return units <= excelize.TotalCellChars
}

func xmlChar(r rune) bool {
	return r == '\t' || r == '\n' ||
		(r >= 0x20 && r <= 0xD7FF) ||
		(r >= 0xE000 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= 0x10FFFF)
}
