package parser

import (
	"regexp"
	"strings"
	"testing"

	"github.com/insightdelivered/transcript-converter/internal/models"
)

func TestExtractCourses(t *testing.T) {
	courses, warnings := ExtractCourses(sampleText, nil)
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", warnings)
	}
	if len(courses) != 5 {
		t.Fatalf("courses: got %d, want 5", len(courses))
	}

	tests := []struct {
		code    string
		title   string
		credits int
		year    int
		term    models.Term
		grade   string
		phase   models.Phase
	}{
		{"KM184101", "Matematika I", 3, 2020, models.TermOdd, "A", models.PhasePreparatory},
		{"SF184102", "Fisika I", 4, 2020, models.TermOdd, "AB", models.PhasePreparatory},
		{"KM184201", "Matematika II", 3, 2020, models.TermEven, "B", models.PhasePreparatory},
		{"IF184301", "Struktur Data", 4, 2021, models.TermOdd, "BC", models.PhaseUndergraduate},
		{"IF184302", "Sistem Digital", 3, 2021, models.TermOdd, "A", models.PhaseUndergraduate},
	}

	for i, tt := range tests {
		c := courses[i]
		if c.Code != tt.code {
			t.Errorf("course[%d].Code: got %q, want %q", i, c.Code, tt.code)
		}
		if c.Title != tt.title {
			t.Errorf("course[%d].Title: got %q, want %q", i, c.Title, tt.title)
		}
		if c.Credits != tt.credits {
			t.Errorf("course[%d].Credits: got %d, want %d", i, c.Credits, tt.credits)
		}
		if c.Year != tt.year || c.Term != tt.term {
			t.Errorf("course[%d] term: got %d/%s, want %d/%s", i, c.Year, c.Term, tt.year, tt.term)
		}
		if c.Grade != tt.grade {
			t.Errorf("course[%d].Grade: got %q, want %q", i, c.Grade, tt.grade)
		}
		if c.Phase != tt.phase {
			t.Errorf("course[%d].Phase: got %q, want %q", i, c.Phase, tt.phase)
		}
	}

	if courses[0].RawTerm != "2020/Gs/A" {
		t.Errorf("RawTerm: got %q, want %q", courses[0].RawTerm, "2020/Gs/A")
	}
}

func TestExtractCourses_PhaseIsMonotonic(t *testing.T) {
	courses, _ := ExtractCourses(sampleText, nil)

	seenUndergraduate := false
	for i := 1; i < len(courses); i++ {
		if courses[i].Offset <= courses[i-1].Offset {
			t.Fatalf("courses not in document order at %d", i)
		}
	}
	for _, c := range courses {
		if c.Phase == models.PhaseUndergraduate {
			seenUndergraduate = true
		} else if seenUndergraduate {
			t.Fatalf("preparatory course %s after an undergraduate course", c.Code)
		}
	}
}

func TestExtractCourses_SplitStrategies(t *testing.T) {
	second := strings.Index(sampleText, "SF184102")

	tests := []struct {
		name              string
		split             PhaseSplit
		wantUndergraduate int
	}{
		{"no split", NoSplit, 0},
		{"fixed offset before second course", FixedSplit(second - 1), 4},
		{"fixed offset at start", FixedSplit(0), 5},
		{"custom marker", MarkerSplit(regexp.MustCompile(`Tahap:\s*Persiapan`)), 5},
		{"absent marker", MarkerSplit(regexp.MustCompile(`Profesi`)), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			courses, _ := ExtractCourses(sampleText, tt.split)
			got := 0
			for _, c := range courses {
				if c.Phase == models.PhaseUndergraduate {
					got++
				}
			}
			if got != tt.wantUndergraduate {
				t.Errorf("undergraduate courses: got %d, want %d", got, tt.wantUndergraduate)
			}
		})
	}
}

func TestExtractCourses_MalformedTermTokenSkipsOnlyThatEntry(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"unknown marker", "2020/Gx/A"},
		{"garbled year", "202O/Gn/A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Replace(sampleText, "2020/Gn/A", tt.token, 1)

			courses, warnings := ExtractCourses(text, nil)
			if len(courses) != 4 {
				t.Fatalf("courses: got %d, want 4", len(courses))
			}
			for _, c := range courses {
				if c.Code == "KM184201" {
					t.Error("course with malformed term token should be skipped")
				}
			}
			if len(warnings) != 1 {
				t.Fatalf("warnings: got %d, want 1", len(warnings))
			}
			if warnings[0].Kind != models.WarnMalformedTermToken || warnings[0].CourseCode != "KM184201" {
				t.Errorf("unexpected warning: %+v", warnings[0])
			}
		})
	}
}

func TestExtractCourses_GarbledTermTokenDoesNotMergeEntries(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		codes []string
	}{
		{
			name:  "letter in year",
			text:  "KM184101 Matematika I 3 202O/Gs/A A SF184102 Fisika I 4 2020/Gs/A AB IF184301 Struktur Data 4 2021/Gs/A BC",
			codes: []string{"SF184102", "IF184301"},
		},
		{
			name:  "digit in marker",
			text:  "KM184101 Matematika I 3 2020/G5/A A SF184102 Fisika I 4 2020/Gs/A AB",
			codes: []string{"SF184102"},
		},
		{
			name:  "no slashes",
			text:  "KM184101 Matematika I 3 2020-Gs-A A SF184102 Fisika I 4 2020/Gs/A AB",
			codes: []string{"SF184102"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			courses, warnings := ExtractCourses(tt.text, NoSplit)

			var codes []string
			for _, c := range courses {
				codes = append(codes, c.Code)
			}
			if strings.Join(codes, ",") != strings.Join(tt.codes, ",") {
				t.Fatalf("courses: got %v, want %v", codes, tt.codes)
			}
			if courses[0].Title != "Fisika I" || courses[0].Credits != 4 || courses[0].Grade != "AB" {
				t.Errorf("first course: got %+v", courses[0])
			}
			if len(warnings) != 1 {
				t.Fatalf("warnings: got %d, want 1", len(warnings))
			}
			if warnings[0].Kind != models.WarnMalformedTermToken || warnings[0].CourseCode != "KM184101" {
				t.Errorf("unexpected warning: %+v", warnings[0])
			}
		})
	}
}

func TestExtractCourses_TitleDoesNotSwallowFields(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		title   string
		credits int
		grade   string
	}{
		{
			name:    "digit inside title",
			text:    "UG184911 Pengantar Teknologi 2 Informasi 3 2019/Gs/A A",
			title:   "Pengantar Teknologi 2 Informasi",
			credits: 3,
			grade:   "A",
		},
		{
			name:    "five digit code and two letter admin code",
			text:    "MA12345 Kalkulus 2 2019/Gn/AB BC",
			title:   "Kalkulus",
			credits: 2,
			grade:   "BC",
		},
		{
			name:    "unknown grade letter",
			text:    "KP184801 Kerja Praktik 2 2022/Gs/A T KM184101 Matematika I 3 2020/Gs/A A",
			title:   "Kerja Praktik",
			credits: 2,
			grade:   "T",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			courses, _ := ExtractCourses(tt.text, NoSplit)
			if len(courses) == 0 {
				t.Fatal("expected at least one course")
			}
			c := courses[0]
			if c.Title != tt.title || c.Credits != tt.credits || c.Grade != tt.grade {
				t.Errorf("got %q/%d/%q, want %q/%d/%q", c.Title, c.Credits, c.Grade, tt.title, tt.credits, tt.grade)
			}
		})
	}
}

func TestExtractCourses_None(t *testing.T) {
	courses, warnings := ExtractCourses("NRP / Nama 1 / X SKS Tempuh", nil)
	if len(courses) != 0 || len(warnings) != 0 {
		t.Errorf("expected nothing, got %d courses and %d warnings", len(courses), len(warnings))
	}
}
