package parser

import (
	"regexp"
	"strconv"
)

// rule is a named pattern applied to the whole normalized transcript text.
// Each rule yields at most one capture set; a missing capture is a value,
// not an error, so callers decide whether the field is mandatory.
type rule struct {
	name    string
	pattern *regexp.Regexp
}

func newRule(name, expr string) rule {
	return rule{name: name, pattern: regexp.MustCompile(expr)}
}

// match is the optional result of applying a rule.
type match struct {
	groups []string
	ok     bool
}

func (r rule) find(text string) match {
	m := r.pattern.FindStringSubmatch(text)
	if m == nil {
		return match{}
	}
	return match{groups: m[1:], ok: true}
}

// group returns capture i (0-based, excluding the full match).
func (m match) group(i int) (string, bool) {
	if !m.ok || i >= len(m.groups) {
		return "", false
	}
	return m.groups[i], true
}

// text returns capture i with whitespace collapsed, absent when empty.
func (m match) text(i int) (string, bool) {
	s, ok := m.group(i)
	if !ok {
		return "", false
	}
	s = collapseSpaces(s)
	return s, s != ""
}

func (m match) integer(i int) (int, bool) {
	s, ok := m.group(i)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func (m match) decimal(i int) (float64, bool) {
	s, ok := m.group(i)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func intOr(n int, ok bool) int {
	if !ok {
		return 0
	}
	return n
}

func floatOr(f float64, ok bool) float64 {
	if !ok {
		return 0
	}
	return f
}
