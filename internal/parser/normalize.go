package parser

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Cleanup patterns for text coming out of the PDF extractor.
var (
	// "Informa-\ntika" → "Informatika" (only lowercase on both sides of the break)
	lineBreakHyphen = regexp.MustCompile(`(\p{Ll})-[ \t]*\r?\n[ \t]*(\p{Ll})`)
	// "J ohn" → "John": a lone capital split from the rest of its word
	splitCapital = regexp.MustCompile(`\b([A-Z])\s([a-z])`)
	// "StatusAktif" → "Status Aktif"
	joinedWords = regexp.MustCompile(`([a-z])([A-Z])`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// NormalizePage cleans the text of a single page into one line.
func NormalizePage(page string) string {
	s := norm.NFC.String(page)
	s = lineBreakHyphen.ReplaceAllString(s, "$1$2")
	s = splitCapital.ReplaceAllString(s, "$1$2")
	s = joinedWords.ReplaceAllString(s, "$1 $2")
	return collapseSpaces(s)
}

// Normalize cleans every page and joins the non-empty results with a newline,
// preserving page order. It returns "" when no page has any text.
func Normalize(pages []string) string {
	cleaned := make([]string, 0, len(pages))
	for _, page := range pages {
		if p := NormalizePage(page); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "\n")
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
