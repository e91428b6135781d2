package grades

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidWeight is returned when a weight is negative or not a number.
var ErrInvalidWeight = errors.New("invalid grade weight")

// Table maps grade letters to their numeric weight.
//
// Weights are stored in hundredths so GPA arithmetic downstream is exact.
// A Table is never mutated after construction and is safe to share between
// goroutines.
type Table struct {
	hundredths map[string]int64
}

// DefaultWeights is the institutional grading scale.
var DefaultWeights = map[string]float64{
	"A":  4.00,
	"AB": 3.50,
	"B":  3.00,
	"BC": 2.50,
	"C":  2.00,
	"D":  1.00,
	"E":  0.00,
}

// Default returns a table built from DefaultWeights.
func Default() Table {
	t, _ := New(DefaultWeights)
	return t
}

// New builds a table from letter → weight pairs. Letters are upper-cased and
// trimmed; weights are rounded to two decimals.
func New(weights map[string]float64) (Table, error) {
	t := Table{hundredths: make(map[string]int64, len(weights))}
	for letter, w := range weights {
		letter = strings.ToUpper(strings.TrimSpace(letter))
		if letter == "" {
			continue
		}
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return Table{}, fmt.Errorf("%w: %q = %v", ErrInvalidWeight, letter, w)
		}
		t.hundredths[letter] = int64(math.Round(w * 100))
	}
	return t, nil
}

// Weight returns the weight for a letter.
func (t Table) Weight(letter string) (float64, bool) {
	h, ok := t.hundredths[letter]
	return float64(h) / 100, ok
}

// Hundredths returns the weight for a letter multiplied by 100.
func (t Table) Hundredths(letter string) (int64, bool) {
	h, ok := t.hundredths[letter]
	return h, ok
}

// Len returns the number of letters in the table.
func (t Table) Len() int {
	return len(t.hundredths)
}

// Letters returns the known letters sorted by descending weight, then name.
func (t Table) Letters() []string {
	letters := make([]string, 0, len(t.hundredths))
	for l := range t.hundredths {
		letters = append(letters, l)
	}
	sort.Slice(letters, func(i, j int) bool {
		wi, wj := t.hundredths[letters[i]], t.hundredths[letters[j]]
		if wi != wj {
			return wi > wj
		}
		return letters[i] < letters[j]
	})
	return letters
}

// Map returns a copy of the table as letter → weight.
func (t Table) Map() map[string]float64 {
	m := make(map[string]float64, len(t.hundredths))
	for l, h := range t.hundredths {
		m[l] = float64(h) / 100
	}
	return m
}

type fileFormat struct {
	Grades map[string]float64 `yaml:"grades"`
}

// Parse reads a YAML document of the form:
//
//	grades:
//	  A: 4.00
//	  AB: 3.50
func Parse(data []byte) (Table, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Table{}, fmt.Errorf("failed to parse grade table: %w", err)
	}
	if len(f.Grades) == 0 {
		return Table{}, fmt.Errorf("grade table has no entries")
	}
	return New(f.Grades)
}

// LoadFile reads a grade table from a YAML file.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read grade table %q: %w", path, err)
	}
	return Parse(data)
}
