package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/insightdelivered/transcript-converter/internal/models"
)

// CSVWriter writes transcripts to CSV format.
type CSVWriter struct {
	IncludeHeader bool
}

// WriteToFile writes the course list to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, t *models.Transcript) error {
	return writeFile(path, func(out io.Writer) error { return w.Write(out, t) })
}

// WriteHistoryToFile writes the semester history to a CSV file at the given path.
func (w *CSVWriter) WriteHistoryToFile(path string, t *models.Transcript) error {
	return writeFile(path, func(out io.Writer) error { return w.WriteHistory(out, t) })
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write writes the course records in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, t *models.Transcript) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		writeMetadata(writer, t.Student)
	}

	header := []string{"Code", "Title", "Credits", "Year", "Term", "Grade", "Phase"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, c := range t.Courses {
		row := []string{
			c.Code,
			c.Title,
			strconv.Itoa(c.Credits),
			strconv.Itoa(c.Year),
			c.Term.Label(),
			c.Grade,
			string(c.Phase),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteHistory writes the semester history in CSV format to the given writer.
func (w *CSVWriter) WriteHistory(out io.Writer, t *models.Transcript) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		writeMetadata(writer, t.Student)
	}

	header := []string{"Year", "Term", "Term GPA", "Cumulative GPA", "Term Credits"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, h := range t.History {
		row := []string{
			strconv.Itoa(h.Year),
			h.Term.Label(),
			formatGPA(h.TermGPA),
			formatGPA(h.CumulativeGPA),
			strconv.Itoa(h.TermCredits),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeMetadata writes the student profile as "# Label,value" rows.
func writeMetadata(writer *csv.Writer, p models.StudentProfile) {
	if p.ID != "" {
		writer.Write([]string{"# Student ID", p.ID})
	}
	if p.Name != "" {
		writer.Write([]string{"# Name", p.Name})
	}
	if p.Status != "" {
		writer.Write([]string{"# Status", p.Status})
	}
	writer.Write([]string{"# Credits", fmt.Sprintf("%d / %d", p.CreditsAttempted, p.CreditsPassed)})
	writer.Write([]string{"# Cumulative GPA", formatGPA(p.CumulativeGPA)})
}

func formatGPA(gpa float64) string {
	return strconv.FormatFloat(gpa, 'f', 2, 64)
}
