package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/insightdelivered/transcript-converter/internal/grades"
)

// ErrNotFound is returned when a student is not in the warehouse.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS dim_student (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id            TEXT NOT NULL UNIQUE,
	name                  TEXT NOT NULL,
	status                TEXT DEFAULT '',
	cumulative_gpa        REAL NOT NULL DEFAULT 0,
	credits_attempted     INTEGER NOT NULL DEFAULT 0,
	credits_passed        INTEGER NOT NULL DEFAULT 0,
	preparatory_gpa       REAL NOT NULL DEFAULT 0,
	preparatory_credits   INTEGER NOT NULL DEFAULT 0,
	undergraduate_gpa     REAL NOT NULL DEFAULT 0,
	undergraduate_credits INTEGER NOT NULL DEFAULT 0,
	updated_at            DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS dim_course (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	code    TEXT NOT NULL UNIQUE,
	title   TEXT NOT NULL,
	credits INTEGER NOT NULL,
	phase   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dim_term (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	year INTEGER NOT NULL,
	term TEXT NOT NULL,
	UNIQUE (year, term)
);

CREATE TABLE IF NOT EXISTS dim_grade (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	letter TEXT NOT NULL UNIQUE,
	weight REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS fact_transcript (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	student_key      INTEGER NOT NULL REFERENCES dim_student(id),
	course_key       INTEGER NOT NULL REFERENCES dim_course(id),
	term_key         INTEGER NOT NULL REFERENCES dim_term(id),
	grade_key        INTEGER NOT NULL REFERENCES dim_grade(id),
	weighted_credits REAL NOT NULL,
	UNIQUE (student_key, course_key, term_key)
);
CREATE INDEX IF NOT EXISTS idx_fact_transcript_student ON fact_transcript(student_key);

CREATE TABLE IF NOT EXISTS fact_semester (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	student_key    INTEGER NOT NULL REFERENCES dim_student(id),
	term_key       INTEGER NOT NULL REFERENCES dim_term(id),
	term_gpa       REAL NOT NULL,
	cumulative_gpa REAL NOT NULL,
	term_credits   INTEGER NOT NULL,
	UNIQUE (student_key, term_key)
);
`

// Store is the SQLite transcript warehouse.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the warehouse at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}
	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SeedGrades fills dim_grade from table when it is empty and returns the
// number of rows inserted.
func (s *Store) SeedGrades(ctx context.Context, table grades.Table) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dim_grade`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count grades: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	return s.upsertGrades(ctx, table)
}

// ReplaceGrades writes every letter of table into dim_grade, updating
// existing weights. Letters missing from table are left in place.
func (s *Store) ReplaceGrades(ctx context.Context, table grades.Table) (int, error) {
	return s.upsertGrades(ctx, table)
}

func (s *Store) upsertGrades(ctx context.Context, table grades.Table) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dim_grade (letter, weight) VALUES (?, ?)
		 ON CONFLICT(letter) DO UPDATE SET weight = excluded.weight`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, letter := range table.Letters() {
		w, _ := table.Weight(letter)
		if _, err := stmt.ExecContext(ctx, letter, w); err != nil {
			return n, fmt.Errorf("failed to store grade %q: %w", letter, err)
		}
		n++
	}
	return n, tx.Commit()
}

// LoadGradeWeights reads dim_grade into an immutable table.
func (s *Store) LoadGradeWeights(ctx context.Context) (grades.Table, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT letter, weight FROM dim_grade`)
	if err != nil {
		return grades.Table{}, fmt.Errorf("failed to query grades: %w", err)
	}
	defer rows.Close()

	weights := make(map[string]float64)
	for rows.Next() {
		var (
			letter string
			weight float64
		)
		if err := rows.Scan(&letter, &weight); err != nil {
			return grades.Table{}, err
		}
		weights[letter] = weight
	}
	if err := rows.Err(); err != nil {
		return grades.Table{}, err
	}
	if len(weights) == 0 {
		return grades.Table{}, fmt.Errorf("grade table is empty")
	}
	return grades.New(weights)
}
