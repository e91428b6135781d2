package parser

import (
	"errors"
	"strings"
)

var (
	// ErrIllegibleDocument means the extractor produced no usable text.
	ErrIllegibleDocument = errors.New("document is illegible: no text extracted")
	// ErrMissingMandatoryField means a required header field was not found.
	ErrMissingMandatoryField = errors.New("mandatory header field missing")
	// ErrNoCoursesFound means the course pattern matched nothing.
	ErrNoCoursesFound = errors.New("no course records found")
)

// MissingFieldsError lists every mandatory header field that could not be located.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return ErrMissingMandatoryField.Error() + ": " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrMissingMandatoryField
}
