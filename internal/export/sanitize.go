package export

import (
	"strings"
	"unicode"
)

// SanitizeName keeps letters, digits and a few punctuation marks, replaces
// everything else with '_' and drops control characters.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// Filename builds a download name from the video title, falling back to the
// external id when the title sanitizes to nothing.
func Filename(title, externalID, ext string) string {
	name := SanitizeName(title, 80)
	if name == "" {
		name = SanitizeName(externalID, 80)
	}
	if name == "" {
		name = "video"
	}
	return name + "." + ext
}
