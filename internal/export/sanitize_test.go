package export

import (
	"strings"
	"testing"
)

func TestSanitizeName_ControlChars(t *testing.T) {
	got := SanitizeName(" A\nB\rC\tD\x00 ", 100)
	if strings.ContainsAny(got, "\n\r\t\x00") {
		t.Fatalf("sanitize output contains control chars: %q", got)
	}
	if got != "ABCD" {
		t.Fatalf("SanitizeName control char behavior mismatch, got %q", got)
	}
}

func TestSanitizeName_MaxLength(t *testing.T) {
	got := SanitizeName("abcdefghijklmnopqrstuvwxyz", 10)
	if len([]rune(got)) != 10 {
		t.Fatalf("expected length 10, got %d (%q)", len([]rune(got)), got)
	}
}

func TestSanitizeName_ReplacesDisallowed(t *testing.T) {
	got := SanitizeName("bad<>|\"name", 100)
	if got != "bad____name" {
		t.Fatalf("SanitizeName disallowed replacement mismatch: got %q", got)
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		title, id, ext, want string
	}{
		{"Go Concurrency Patterns", "f6kdp27TYZs", "vtt", "Go Concurrency Patterns.vtt"},
		{"", "f6kdp27TYZs", "txt", "f6kdp27TYZs.txt"},
		{"\x00\x01", "", "edl", "video.edl"},
	}
	for _, tc := range tests {
		if got := Filename(tc.title, tc.id, tc.ext); got != tc.want {
			t.Errorf("Filename(%q, %q, %q) = %q, want %q", tc.title, tc.id, tc.ext, got, tc.want)
		}
	}
}
