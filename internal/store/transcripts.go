package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/insightdelivered/transcript-converter/internal/models"
)

// LoadStats reports what LoadTranscript wrote.
type LoadStats struct {
	Courses   int // course records in the transcript
	Loaded    int // facts present after the load (new or already stored)
	Skipped   int // courses whose grade is not in dim_grade
	Semesters int // semester facts written
}

// LoadTranscript writes one transcript in a single transaction.
//
// The student row is upserted by its natural key. Course and term keys are
// looked up or created. A transcript fact is inserted only if the same
// (student, course, term) is not already stored, and courses whose grade is
// missing from dim_grade are skipped. Semester facts are upserted.
func (s *Store) LoadTranscript(ctx context.Context, t *models.Transcript) (LoadStats, error) {
	stats := LoadStats{Courses: len(t.Courses)}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	studentKey, err := upsertStudent(ctx, tx, t.Student)
	if err != nil {
		return stats, err
	}

	for _, c := range t.Courses {
		var gradeKey int64
		var weight float64
		err := tx.QueryRowContext(ctx,
			`SELECT id, weight FROM dim_grade WHERE letter = ?`, c.Grade,
		).Scan(&gradeKey, &weight)
		if errors.Is(err, sql.ErrNoRows) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("failed to look up grade %q: %w", c.Grade, err)
		}

		courseKey, err := getOrCreate(ctx, tx,
			`SELECT id FROM dim_course WHERE code = ?`, []any{c.Code},
			`INSERT INTO dim_course (code, title, credits, phase) VALUES (?, ?, ?, ?)`,
			[]any{c.Code, c.Title, c.Credits, string(c.Phase)},
		)
		if err != nil {
			return stats, fmt.Errorf("failed to store course %q: %w", c.Code, err)
		}

		termKey, err := termKey(ctx, tx, c.Key())
		if err != nil {
			return stats, err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO fact_transcript (student_key, course_key, term_key, grade_key, weighted_credits)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(student_key, course_key, term_key) DO NOTHING`,
			studentKey, courseKey, termKey, gradeKey, float64(c.Credits)*weight,
		)
		if err != nil {
			return stats, fmt.Errorf("failed to store fact for %q: %w", c.Code, err)
		}
		stats.Loaded++
	}

	for _, h := range t.History {
		termKey, err := termKey(ctx, tx, h.Key())
		if err != nil {
			return stats, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fact_semester (student_key, term_key, term_gpa, cumulative_gpa, term_credits)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(student_key, term_key) DO UPDATE SET
				term_gpa = excluded.term_gpa,
				cumulative_gpa = excluded.cumulative_gpa,
				term_credits = excluded.term_credits`,
			studentKey, termKey, h.TermGPA, h.CumulativeGPA, h.TermCredits,
		)
		if err != nil {
			return stats, fmt.Errorf("failed to store semester %d/%s: %w", h.Year, h.Term, err)
		}
		stats.Semesters++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit transcript: %w", err)
	}
	return stats, nil
}

func upsertStudent(ctx context.Context, tx *sql.Tx, p models.StudentProfile) (int64, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO dim_student (
			student_id, name, status, cumulative_gpa, credits_attempted, credits_passed,
			preparatory_gpa, preparatory_credits, undergraduate_gpa, undergraduate_credits
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(student_id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			cumulative_gpa = excluded.cumulative_gpa,
			credits_attempted = excluded.credits_attempted,
			credits_passed = excluded.credits_passed,
			preparatory_gpa = excluded.preparatory_gpa,
			preparatory_credits = excluded.preparatory_credits,
			undergraduate_gpa = excluded.undergraduate_gpa,
			undergraduate_credits = excluded.undergraduate_credits,
			updated_at = CURRENT_TIMESTAMP`,
		p.ID, p.Name, p.Status, p.CumulativeGPA, p.CreditsAttempted, p.CreditsPassed,
		p.PreparatoryGPA, p.PreparatoryCredits, p.UndergraduateGPA, p.UndergraduateCredits,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to store student %q: %w", p.ID, err)
	}

	var key int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM dim_student WHERE student_id = ?`, p.ID).Scan(&key); err != nil {
		return 0, fmt.Errorf("failed to read student key %q: %w", p.ID, err)
	}
	return key, nil
}

func termKey(ctx context.Context, tx *sql.Tx, k models.TermKey) (int64, error) {
	key, err := getOrCreate(ctx, tx,
		`SELECT id FROM dim_term WHERE year = ? AND term = ?`, []any{k.Year, string(k.Term)},
		`INSERT INTO dim_term (year, term) VALUES (?, ?)`, []any{k.Year, string(k.Term)},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to store term %d/%s: %w", k.Year, k.Term, err)
	}
	return key, nil
}

// getOrCreate returns the key selected by query, inserting a row first when
// none exists.
func getOrCreate(ctx context.Context, tx *sql.Tx, query string, queryArgs []any, insert string, insertArgs []any) (int64, error) {
	var key int64
	err := tx.QueryRowContext(ctx, query, queryArgs...).Scan(&key)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, insert, insertArgs...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// termOrderSQL sorts the odd term before the even term within a year.
const termOrderSQL = `CASE t.term WHEN 'odd' THEN 0 ELSE 1 END`

// GetStudent returns the stored profile for a student.
func (s *Store) GetStudent(ctx context.Context, studentID string) (models.StudentProfile, error) {
	var p models.StudentProfile
	err := s.db.QueryRowContext(ctx,
		`SELECT student_id, name, status, cumulative_gpa, credits_attempted, credits_passed,
			preparatory_gpa, preparatory_credits, undergraduate_gpa, undergraduate_credits
		 FROM dim_student WHERE student_id = ?`, studentID,
	).Scan(
		&p.ID, &p.Name, &p.Status, &p.CumulativeGPA, &p.CreditsAttempted, &p.CreditsPassed,
		&p.PreparatoryGPA, &p.PreparatoryCredits, &p.UndergraduateGPA, &p.UndergraduateCredits,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("student %q: %w", studentID, ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("failed to read student %q: %w", studentID, err)
	}
	return p, nil
}

// ListCourses returns a student's stored courses in chronological order.
func (s *Store) ListCourses(ctx context.Context, studentID string) ([]models.CourseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.code, c.title, c.credits, t.year, t.term, g.letter, c.phase
		 FROM fact_transcript f
		 JOIN dim_student s ON s.id = f.student_key
		 JOIN dim_course c ON c.id = f.course_key
		 JOIN dim_term t ON t.id = f.term_key
		 JOIN dim_grade g ON g.id = f.grade_key
		 WHERE s.student_id = ?
		 ORDER BY t.year, `+termOrderSQL+`, f.id`, studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	var courses []models.CourseRecord
	for rows.Next() {
		var (
			c           models.CourseRecord
			term, phase string
		)
		if err := rows.Scan(&c.Code, &c.Title, &c.Credits, &c.Year, &term, &c.Grade, &phase); err != nil {
			return nil, err
		}
		c.Term = models.Term(term)
		c.Phase = models.Phase(phase)
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// ListHistory returns a student's stored semester history in chronological order.
func (s *Store) ListHistory(ctx context.Context, studentID string) ([]models.SemesterHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.year, t.term, f.term_gpa, f.cumulative_gpa, f.term_credits
		 FROM fact_semester f
		 JOIN dim_student s ON s.id = f.student_key
		 JOIN dim_term t ON t.id = f.term_key
		 WHERE s.student_id = ?
		 ORDER BY t.year, `+termOrderSQL, studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []models.SemesterHistoryEntry
	for rows.Next() {
		var (
			e    models.SemesterHistoryEntry
			term string
		)
		if err := rows.Scan(&e.Year, &term, &e.TermGPA, &e.CumulativeGPA, &e.TermCredits); err != nil {
			return nil, err
		}
		e.Term = models.Term(term)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
