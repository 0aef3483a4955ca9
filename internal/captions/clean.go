package captions

import (
	"regexp"
	"strings"
)

var (
	// Inline word timings such as <00:00:01.234> in auto-generated captions.
	inlineTimestampRe = regexp.MustCompile(`<\d{2}:\d{2}:\d{2}\.\d{3}>`)

	// <c>, <c.colorE5E5E5>, <i>, <font ...> and friends.
	styleTagRe = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

	cueSettingsRe = regexp.MustCompile(`\s+(align|position|line|size|vertical|region):\S+`)

	entityReplacer = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&nbsp;", " ")
)

// Clean strips styling and word-level timing from provider WebVTT so cues
// carry plain text. Timing lines lose their cue settings.
func Clean(vtt string) string {
	in := strings.Split(normalizeNewlines(vtt), "\n")
	out := make([]string, 0, len(in))
	for _, line := range in {
		if strings.Contains(line, "-->") {
			out = append(out, cueSettingsRe.ReplaceAllString(line, ""))
			continue
		}
		cleaned := inlineTimestampRe.ReplaceAllString(line, "")
		cleaned = styleTagRe.ReplaceAllString(cleaned, "")
		cleaned = strings.TrimSpace(entityReplacer.Replace(cleaned))
		// A line emptied by cleaning must not turn into a block separator.
		if cleaned == "" && strings.TrimSpace(line) != "" {
			continue
		}
		out = append(out, cleaned)
	}
	return strings.Join(out, "\n")
}
