package writer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/transcript-converter/internal/models"
)

// Sheet names of the transcript workbook.
const (
	SheetStudent = "Student"
	SheetCourses = "Courses"
	SheetHistory = "History"
)

// XLSXWriter writes a transcript as an Excel workbook with one sheet each
// for the student profile, the courses and the semester history.
type XLSXWriter struct{}

// WriteToFile writes the workbook to path.
func (w *XLSXWriter) WriteToFile(path string, t *models.Transcript) error {
	f, err := w.build(t)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %q: %w", path, err)
	}
	return nil
}

// Write writes the workbook to out.
func (w *XLSXWriter) Write(out io.Writer, t *models.Transcript) error {
	f, err := w.build(t)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (w *XLSXWriter) build(t *models.Transcript) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetStudent); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetCourses, SheetHistory} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	p := t.Student
	student := [][]any{
		{"Field", "Value"},
		{"Student ID", p.ID},
		{"Name", p.Name},
		{"Status", p.Status},
		{"Credits Attempted", p.CreditsAttempted},
		{"Credits Passed", p.CreditsPassed},
		{"Cumulative GPA", p.CumulativeGPA},
		{"Preparatory GPA", p.PreparatoryGPA},
		{"Preparatory Credits", p.PreparatoryCredits},
		{"Undergraduate GPA", p.UndergraduateGPA},
		{"Undergraduate Credits", p.UndergraduateCredits},
	}
	if t.Source != "" {
		student = append(student, []any{"Source", t.Source})
	}

	courses := [][]any{{"Code", "Title", "Credits", "Year", "Term", "Grade", "Phase"}}
	for _, c := range t.Courses {
		courses = append(courses, []any{c.Code, c.Title, c.Credits, c.Year, c.Term.Label(), c.Grade, string(c.Phase)})
	}

	history := [][]any{{"Year", "Term", "Term GPA", "Cumulative GPA", "Term Credits"}}
	for _, h := range t.History {
		history = append(history, []any{h.Year, h.Term.Label(), h.TermGPA, h.CumulativeGPA, h.TermCredits})
	}

	sheets := []struct {
		name  string
		rows  [][]any
		width []float64
	}{
		{SheetStudent, student, []float64{22, 36}},
		{SheetCourses, courses, []float64{12, 40, 8, 8, 8, 8, 14}},
		{SheetHistory, history, []float64{8, 8, 10, 14, 12}},
	}
	for _, s := range sheets {
		if err := writeSheet(f, s.name, s.rows, s.width, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write sheet %s: %w", s.name, err)
		}
	}

	f.SetActiveSheet(0)
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]any, widths []float64, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}

	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, headerStyle)
}
