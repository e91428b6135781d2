package history

import (
	"fmt"
	"sort"

	"github.com/insightdelivered/transcript-converter/internal/grades"
	"github.com/insightdelivered/transcript-converter/internal/models"
)

// termTotals accumulates graded credits for one term.
// Weighted credits are kept in hundredths of a grade point.
type termTotals struct {
	key      models.TermKey
	credits  int64
	weighted int64
}

// Aggregate derives the per-term history from a course list.
//
// Courses are ordered chronologically (odd term before even term within a
// year), grouped by term key and reduced to term and cumulative GPAs. Courses
// whose grade is not in the weight table contribute nothing and produce an
// unknown_grade warning; their term is still emitted. When no course at all
// carries a known grade the history is empty.
//
// GPAs are rounded half up to two decimals using exact integer arithmetic.
// The input slice is not modified.
func Aggregate(courses []models.CourseRecord, weights grades.Table) ([]models.SemesterHistoryEntry, []models.Warning) {
	sorted := make([]models.CourseRecord, len(courses))
	copy(sorted, courses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key().Before(sorted[j].Key())
	})

	var (
		terms    []*termTotals
		warnings []models.Warning
	)
	graded := false
	for _, c := range sorted {
		if len(terms) == 0 || terms[len(terms)-1].key != c.Key() {
			terms = append(terms, &termTotals{key: c.Key()})
		}
		w, ok := weights.Hundredths(c.Grade)
		if !ok {
			warnings = append(warnings, models.Warning{
				Kind:       models.WarnUnknownGrade,
				CourseCode: c.Code,
				Detail:     fmt.Sprintf("grade %q is not in the weight table; %d/%s excluded from GPA", c.Grade, c.Year, c.Term),
			})
			continue
		}
		cur := terms[len(terms)-1]
		cur.credits += int64(c.Credits)
		cur.weighted += int64(c.Credits) * w
		graded = true
	}
	if !graded {
		return nil, warnings
	}

	entries := make([]models.SemesterHistoryEntry, 0, len(terms))
	var cumCredits, cumWeighted int64
	for _, t := range terms {
		cumCredits += t.credits
		cumWeighted += t.weighted
		entries = append(entries, models.SemesterHistoryEntry{
			Year:          t.key.Year,
			Term:          t.key.Term,
			TermGPA:       GPA(t.weighted, t.credits),
			CumulativeGPA: GPA(cumWeighted, cumCredits),
			TermCredits:   int(t.credits),
		})
	}

	return entries, warnings
}

// GPA divides weighted credits (in hundredths) by credits and rounds half up
// to two decimal places. It returns 0 when credits is zero.
func GPA(weightedHundredths, credits int64) float64 {
	if credits <= 0 {
		return 0
	}
	h := (2*weightedHundredths + credits) / (2 * credits)
	return float64(h) / 100
}

// Overall returns the GPA over every graded course in the list, the value the
// last history entry's cumulative GPA must equal.
func Overall(courses []models.CourseRecord, weights grades.Table) float64 {
	var credits, weighted int64
	for _, c := range courses {
		w, ok := weights.Hundredths(c.Grade)
		if !ok {
			continue
		}
		credits += int64(c.Credits)
		weighted += int64(c.Credits) * w
	}
	return GPA(weighted, credits)
}
