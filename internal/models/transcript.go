package models

// Term is the half of an academic year a course was taken in.
type Term string

const (
	TermOdd  Term = "odd"  // Gasal
	TermEven Term = "even" // Genap
)

// Order returns the position of the term inside its academic year.
// The odd term always precedes the even term.
func (t Term) Order() int {
	if t == TermEven {
		return 1
	}
	return 0
}

// Label returns the name printed on the transcript for this term.
func (t Term) Label() string {
	switch t {
	case TermOdd:
		return "Gasal"
	case TermEven:
		return "Genap"
	}
	return string(t)
}

// Phase is the coarse academic stage a course belongs to.
type Phase string

const (
	PhasePreparatory   Phase = "preparatory"   // Tahap Persiapan
	PhaseUndergraduate Phase = "undergraduate" // Tahap Sarjana
)

// StudentProfile holds the identity and summary figures from the transcript header.
type StudentProfile struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Status               string  `json:"status"`
	CreditsAttempted     int     `json:"creditsAttempted"`
	CreditsPassed        int     `json:"creditsPassed"`
	CumulativeGPA        float64 `json:"cumulativeGpa"`
	PreparatoryGPA       float64 `json:"preparatoryGpa"`
	PreparatoryCredits   int     `json:"preparatoryCredits"`
	UndergraduateGPA     float64 `json:"undergraduateGpa"`
	UndergraduateCredits int     `json:"undergraduateCredits"`
}

// CourseRecord is one enrollment in one course during one term.
type CourseRecord struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Credits int    `json:"credits"`
	Year    int    `json:"year"`
	Term    Term   `json:"term"`
	Grade   string `json:"grade"`
	Phase   Phase  `json:"phase"`
	RawTerm string `json:"rawTerm,omitempty"` // e.g. "2020/Gs/A"
	Offset  int    `json:"-"`                 // byte offset in the normalized text
}

// TermKey identifies one academic semester.
type TermKey struct {
	Year int  `json:"year"`
	Term Term `json:"term"`
}

// Key returns the term key of the course.
func (c CourseRecord) Key() TermKey {
	return TermKey{Year: c.Year, Term: c.Term}
}

// Before reports whether k is chronologically earlier than other.
func (k TermKey) Before(other TermKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Term.Order() < other.Term.Order()
}

// SemesterHistoryEntry summarizes performance for one term.
type SemesterHistoryEntry struct {
	Year          int     `json:"year"`
	Term          Term    `json:"term"`
	TermGPA       float64 `json:"termGpa"`
	CumulativeGPA float64 `json:"cumulativeGpa"`
	TermCredits   int     `json:"termCredits"`
}

// Key returns the term key of the entry.
func (e SemesterHistoryEntry) Key() TermKey {
	return TermKey{Year: e.Year, Term: e.Term}
}

// WarningKind classifies a recoverable problem found while parsing.
type WarningKind string

const (
	WarnUnknownGrade        WarningKind = "unknown_grade"
	WarnMalformedTermToken  WarningKind = "malformed_term_token"
	WarnEmptyHistory        WarningKind = "empty_history"
	WarnCreditsInconsistent WarningKind = "credits_inconsistent"
)

// Warning is attached to a successful result when a unit of input was dropped.
type Warning struct {
	Kind       WarningKind `json:"kind"`
	CourseCode string      `json:"courseCode,omitempty"`
	Detail     string      `json:"detail"`
}

// Transcript is the assembled result for one document.
type Transcript struct {
	Source   string                 `json:"source,omitempty"`
	Student  StudentProfile         `json:"student"`
	Courses  []CourseRecord         `json:"courses"`
	History  []SemesterHistoryEntry `json:"history"`
	Warnings []Warning              `json:"warnings,omitempty"`
}
