package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fmuoria/ai-interviewer/internal/models"
	"github.com/xuri/excelize/v2"
)

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// score bands used for color-coding answer rows
var scoreBands = []struct {
	label string
	min   float64
	color string
}{
	{"Strong (8-10):", 8, "C6EFCE"},
	{"Adequate (6-7.9):", 6, "FFEB9C"},
	{"Weak (4-5.9):", 4, "FFC7CE"},
	{"Poor (<4):", 0, "FF9999"},
}

func bandIndex(score float64) int {
	for i, b := range scoreBands {
		if score >= b.min {
			return i
		}
	}
	return len(scoreBands) - 1
}

// ExportToExcel writes an interview report, plus its proctoring events, as a workbook
func ExportToExcel(report *models.Report, events []models.ProctoringEvent, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	// Ensure output path has .xlsx extension
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}
	outputPath = filepath.Clean(outputPath)

	summarySheet := "Summary"
	answersSheet := "Detailed Answers"
	proctoringSheet := "Proctoring"

	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(answersSheet)
	f.NewSheet(proctoringSheet)

	if err := createSummarySheet(f, summarySheet, report, len(events)); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	if err := createAnswersSheet(f, answersSheet, report.Entries); err != nil {
		return fmt.Errorf("failed to create answers sheet: %w", err)
	}

	if err := createProctoringSheet(f, proctoringSheet, events); err != nil {
		return fmt.Errorf("failed to create proctoring sheet: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Try to save the file directly
	if err := f.SaveAs(outputPath); err != nil {
		// If direct save fails, try buffer write fallback
		var buf bytes.Buffer
		if writeErr := f.Write(&buf); writeErr != nil {
			return fmt.Errorf("failed to save Excel file: direct save failed (%v), buffer write also failed: %w", err, writeErr)
		}

		if fileErr := os.WriteFile(outputPath, buf.Bytes(), 0644); fileErr != nil {
			return fmt.Errorf("failed to save Excel file: direct save failed (%v), file write failed: %w", err, fileErr)
		}
	}

	return nil
}

// createSummarySheet creates the summary sheet with the decision and statistics
func createSummarySheet(f *excelize.File, sheetName string, report *models.Report, eventCount int) error {
	f.SetColWidth(sheetName, "A", "A", 25)
	f.SetColWidth(sheetName, "B", "B", 60)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return err
	}

	labelStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return err
	}

	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return err
	}

	row := 1
	label := func(name string, value interface{}) {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), name)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), labelStyle)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), value)
		row++
	}
	heading := func(title string) {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), title)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), headerStyle)
		f.MergeCell(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row))
		row++
	}

	heading("Interview Report")
	row++

	label("Interview ID:", report.InterviewID)
	label("Generated:", report.GeneratedAt.Format("2006-01-02 15:04:05"))
	label("Average Score:", fmt.Sprintf("%.2f", report.AverageScore))
	label("Decision:", string(report.Decision))
	label("Questions Answered:", len(report.Entries))
	if report.TimedOut {
		label("Note:", "Interview ended when the time limit was reached.")
	}
	label("Proctoring Events:", eventCount)
	row++

	heading("Statistics:")

	counts := make([]int, len(scoreBands))
	failed := 0
	for _, e := range report.Entries {
		counts[bandIndex(e.ScoreValue())]++
		if e.ScoreError != "" {
			failed++
		}
	}
	for i, b := range scoreBands {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), b.label)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), counts[i])
		row++
	}
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), "Scoring Failures:")
	f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), failed)
	row++

	if len(report.Entries) > 0 {
		minScore := report.Entries[0].ScoreValue()
		maxScore := minScore
		for _, e := range report.Entries {
			if s := e.ScoreValue(); s < minScore {
				minScore = s
			} else if s > maxScore {
				maxScore = s
			}
		}
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), "Highest Score:")
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), fmt.Sprintf("%.2f", maxScore))
		row++
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), "Lowest Score:")
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), fmt.Sprintf("%.2f", minScore))
		row++
	}
	row++

	heading("Feedback:")
	cell := fmt.Sprintf("A%d", row)
	f.SetCellValue(sheetName, cell, report.Feedback)
	f.MergeCell(sheetName, cell, fmt.Sprintf("B%d", row))
	f.SetCellStyle(sheetName, cell, fmt.Sprintf("B%d", row), wrapStyle)
	f.SetRowHeight(sheetName, row, 120)

	return nil
}

// createAnswersSheet lists every question with its answer and score, color-coded by score
func createAnswersSheet(f *excelize.File, sheetName string, entries []models.QAEntry) error {
	f.SetColWidth(sheetName, "A", "A", 6)
	f.SetColWidth(sheetName, "B", "B", 50)
	f.SetColWidth(sheetName, "C", "C", 70)
	f.SetColWidth(sheetName, "D", "D", 10)
	f.SetColWidth(sheetName, "E", "E", 30)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	bandStyles := make([]int, len(scoreBands))
	for i, b := range scoreBands {
		style, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{b.color}, Pattern: 1},
			Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
			Border:    thinBorder,
		})
		if err != nil {
			return err
		}
		bandStyles[i] = style
	}

	headers := []string{"#", "Question", "Answer", "Score", "Scoring Error"}
	for col, header := range headers {
		cell := fmt.Sprintf("%s1", string(rune('A'+col)))
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, e := range entries {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), i+1)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), e.Question)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), e.Answer)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), e.ScoreValue())
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), e.ScoreError)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("E%d", row), bandStyles[bandIndex(e.ScoreValue())])
		f.SetRowHeight(sheetName, row, 60)
	}

	if len(entries) > 0 {
		f.AutoFilter(sheetName, fmt.Sprintf("A1:E%d", len(entries)+1), []excelize.AutoFilterOptions{})
	}

	// Freeze top row
	f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	return nil
}

// createProctoringSheet lists the face-monitoring events with links to their snapshots
func createProctoringSheet(f *excelize.File, sheetName string, events []models.ProctoringEvent) error {
	f.SetColWidth(sheetName, "A", "A", 22)
	f.SetColWidth(sheetName, "B", "B", 30)
	f.SetColWidth(sheetName, "C", "C", 20)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	linkStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Color: "0563C1", Underline: "single"},
		Border: thinBorder,
	})
	if err != nil {
		return err
	}

	cellStyle, err := f.NewStyle(&excelize.Style{Border: thinBorder})
	if err != nil {
		return err
	}

	headers := []string{"Timestamp", "Message", "Snapshot"}
	for col, header := range headers {
		cell := fmt.Sprintf("%s1", string(rune('A'+col)))
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, ev := range events {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), ev.Timestamp.Format("2006-01-02 15:04:05.000"))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), ev.Message)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("C%d", row), cellStyle)

		if ev.SnapshotRef == "" {
			continue
		}
		snapCell := fmt.Sprintf("C%d", row)
		absPath, err := filepath.Abs(ev.SnapshotRef)
		if err != nil {
			absPath = ev.SnapshotRef
		}
		f.SetCellValue(sheetName, snapCell, "Open snapshot")
		// Use file:// protocol with forward slashes
		fileURL := "file:///" + strings.TrimPrefix(strings.ReplaceAll(absPath, "\\", "/"), "/")
		f.SetCellHyperLink(sheetName, snapCell, fileURL, "External")
		f.SetCellStyle(sheetName, snapCell, snapCell, linkStyle)
	}

	f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	return nil
}
