package transcript

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/insightdelivered/transcript-converter/internal/extractor"
	"github.com/insightdelivered/transcript-converter/internal/grades"
	"github.com/insightdelivered/transcript-converter/internal/history"
	"github.com/insightdelivered/transcript-converter/internal/models"
	"github.com/insightdelivered/transcript-converter/internal/parser"
)

// Stage names the pipeline step that rejected a document.
type Stage string

const (
	StageExtract Stage = "extract"
	StageHeader  Stage = "header"
	StageCourses Stage = "courses"
)

// ParseError is the single failure returned for a rejected document.
// Err is one of parser.ErrIllegibleDocument, parser.ErrMissingMandatoryField
// (possibly as *parser.MissingFieldsError) or parser.ErrNoCoursesFound.
type ParseError struct {
	Stage Stage
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExtractFunc returns the text of each page of a document.
type ExtractFunc func(path string) ([]string, error)

// Parser turns transcript documents into structured records.
// A Parser holds no per-document state and may be shared between goroutines.
type Parser struct {
	weights grades.Table
	split   parser.PhaseSplit
	extract ExtractFunc
	logger  *zap.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithPhaseSplit overrides how the undergraduate phase boundary is located.
func WithPhaseSplit(split parser.PhaseSplit) Option {
	return func(p *Parser) { p.split = split }
}

// WithExtractor replaces the PDF text extractor.
func WithExtractor(fn ExtractFunc) Option {
	return func(p *Parser) { p.extract = fn }
}

// New creates a Parser using the given grade table.
func New(weights grades.Table, logger *zap.Logger, opts ...Option) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Parser{
		weights: weights,
		split:   parser.MarkerSplit(parser.UndergraduateMarker),
		extract: extractor.ExtractText,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile extracts and parses one document. An unreadable file is reported
// the same way as a file with no text.
func (p *Parser) ParseFile(path string) (*models.Transcript, error) {
	pages, err := p.extract(path)
	if err != nil {
		p.logger.Warn("text extraction failed",
			zap.String("file", filepath.Base(path)),
			zap.Error(err),
		)
		pages = nil
	}

	t, err := p.ParseText(pages)
	if err != nil {
		return nil, err
	}
	t.Source = filepath.Base(path)
	return t, nil
}

// ParseText parses the extracted pages of one document.
func (p *Parser) ParseText(pages []string) (*models.Transcript, error) {
	text := parser.Normalize(pages)
	if text == "" {
		return nil, &ParseError{Stage: StageExtract, Err: parser.ErrIllegibleDocument}
	}

	student, err := parser.ParseHeader(text)
	if err != nil {
		p.logger.Warn("student header could not be parsed", zap.Error(err))
		return nil, &ParseError{Stage: StageHeader, Err: err}
	}

	courses, warnings := parser.ExtractCourses(text, p.split)
	if len(courses) == 0 {
		p.logger.Warn("no course records found", zap.String("student", student.ID))
		return nil, &ParseError{Stage: StageCourses, Err: parser.ErrNoCoursesFound}
	}

	if student.CreditsPassed > student.CreditsAttempted {
		warnings = append(warnings, models.Warning{
			Kind:   models.WarnCreditsInconsistent,
			Detail: fmt.Sprintf("credits passed %d exceed credits attempted %d", student.CreditsPassed, student.CreditsAttempted),
		})
	}

	entries, histWarnings := history.Aggregate(courses, p.weights)
	warnings = append(warnings, histWarnings...)
	if len(entries) == 0 {
		warnings = append(warnings, models.Warning{
			Kind:   models.WarnEmptyHistory,
			Detail: "no course carries a grade from the weight table",
		})
	}

	for _, w := range warnings {
		p.logger.Warn("transcript warning",
			zap.String("student", student.ID),
			zap.String("kind", string(w.Kind)),
			zap.String("course", w.CourseCode),
			zap.String("detail", w.Detail),
		)
	}

	p.logger.Info("transcript parsed",
		zap.String("student", student.ID),
		zap.String("name", student.Name),
		zap.Int("courses", len(courses)),
		zap.Int("terms", len(entries)),
		zap.Int("warnings", len(warnings)),
	)

	if entries == nil {
		entries = []models.SemesterHistoryEntry{}
	}
	return &models.Transcript{
		Student:  student,
		Courses:  courses,
		History:  entries,
		Warnings: warnings,
	}, nil
}
