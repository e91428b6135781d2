package parser

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/insightdelivered/transcript-converter/internal/models"
)

// Course entry pattern:
// CODE  TITLE  CREDITS  YEAR/TERM/ADMIN  GRADE
// Example: "IF184301 Struktur Data 4 2021/Gs/A BC"
//
// The year and term marker are captured loosely and validated afterwards so
// that a garbled token drops only its own entry. Grades prefer the
// institutional letters (AB, BC, A..E) and fall back to any one or two
// capitals, so an unknown grade still terminates its entry instead of letting
// the title run on into the next course.
var coursePattern = regexp.MustCompile(
	`(?s)([A-Z]{2}\d{5,6})\s*(.*?)\s*([1-9])\s*((\S+?)/(\S+?)/[A-Z]{1,2})\s*(AB|BC|[A-E]|[A-Z]{1,2})`,
)

// courseCode finds a course code inside a matched title, which means the
// entry it belongs to had no usable term token.
var courseCode = regexp.MustCompile(`\b[A-Z]{2}\d{5,6}\b`)

// termMarkers maps the printed term marker to the term it denotes.
var termMarkers = map[string]models.Term{
	"Gs": models.TermOdd,
	"Gn": models.TermEven,
}

// UndergraduateMarker is the section heading that opens the undergraduate phase.
var UndergraduateMarker = regexp.MustCompile(`Tahap:\s*Sarjana`)

// PhaseSplit returns the offset in the normalized text after which courses
// belong to the undergraduate phase, or -1 if every course is preparatory.
//
// Classification assumes the transcript lists courses in enrollment order.
type PhaseSplit func(text string) int

// MarkerSplit splits at the first occurrence of marker.
func MarkerSplit(marker *regexp.Regexp) PhaseSplit {
	return func(text string) int {
		loc := marker.FindStringIndex(text)
		if loc == nil {
			return -1
		}
		return loc[0]
	}
}

// FixedSplit splits at a caller-supplied offset.
func FixedSplit(offset int) PhaseSplit {
	return func(string) int { return offset }
}

// NoSplit classifies every course as preparatory.
func NoSplit(string) int { return -1 }

// ExtractCourses scans normalized text for course entries in document order.
// A nil split uses MarkerSplit(UndergraduateMarker). Entries whose term token
// is garbled or missing are skipped and reported as warnings; the entries
// around them are unaffected.
func ExtractCourses(text string, split PhaseSplit) ([]models.CourseRecord, []models.Warning) {
	if split == nil {
		split = MarkerSplit(UndergraduateMarker)
	}
	boundary := split(text)

	var (
		courses  []models.CourseRecord
		warnings []models.Warning
	)

	for pos := 0; pos < len(text); {
		loc := coursePattern.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}
		sub := func(i int) string { return text[loc[2*i]:loc[2*i+1]] }
		code := sub(1)

		// Rescan from the code the title ran into.
		if inner := courseCode.FindStringIndex(sub(2)); inner != nil {
			next := loc[4] + inner[0]
			warnings = append(warnings, models.Warning{
				Kind:       models.WarnMalformedTermToken,
				CourseCode: code,
				Detail:     fmt.Sprintf("no term token before %s", text[next:loc[4]+inner[1]]),
			})
			pos = next
			continue
		}
		pos = loc[1]

		year, yearOK := parseYear(sub(5))
		term, termOK := termMarkers[sub(6)]
		if !yearOK || !termOK {
			warnings = append(warnings, models.Warning{
				Kind:       models.WarnMalformedTermToken,
				CourseCode: code,
				Detail:     fmt.Sprintf("unrecognized term token %q", sub(4)),
			})
			continue
		}

		credits, _ := strconv.Atoi(sub(3))

		start := loc[0]
		phase := models.PhasePreparatory
		if boundary >= 0 && start > boundary {
			phase = models.PhaseUndergraduate
		}

		courses = append(courses, models.CourseRecord{
			Code:    code,
			Title:   collapseSpaces(sub(2)),
			Credits: credits,
			Year:    year,
			Term:    term,
			Grade:   sub(7),
			Phase:   phase,
			RawTerm: sub(4),
			Offset:  start,
		})
	}

	return courses, warnings
}

func parseYear(s string) (int, bool) {
	if len(s) != 4 {
		return 0, false
	}
	year, err := strconv.Atoi(s)
	return year, err == nil && year > 0
}
