package extractor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsReadableText(t *testing.T) {
	transcript := "NRP / Nama 5025201001 / Budi Santoso SKS Tempuh / SKS Lulus 144 / 140 Status Aktif"

	tests := []struct {
		name     string
		pages    []string
		expected bool
	}{
		{"transcript header", []string{transcript}, true},
		{"split across pages", []string{transcript[:40], transcript[40:]}, true},
		{"too short", []string{"NRP 123"}, false},
		{"no transcript words", []string{strings.Repeat("lorem ipsum dolor ", 5)}, false},
		{"binary garbage", []string{strings.Repeat("â\u0080\u0099Ã", 30) + " nrp"}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsReadableText(tt.pages); got != tt.expected {
				t.Errorf("IsReadableText: got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExtractText_NonexistentFile(t *testing.T) {
	_, err := ExtractText(filepath.Join(t.TempDir(), "missing.pdf"))
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestExtractText_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	if err := os.WriteFile(path, []byte("just some text, not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractText(path); err == nil {
		t.Error("expected error for a file that is not a PDF")
	}
}

func TestPageCount_Nonexistent(t *testing.T) {
	if n := pageCount("/tmp/nonexistent-transcript-12345.pdf"); n != 0 {
		t.Errorf("expected 0 pages for nonexistent file, got %d", n)
	}
}
