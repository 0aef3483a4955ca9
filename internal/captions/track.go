package captions

import (
	"regexp"
	"strings"
)

// Source identifies where a caption track came from.
type Source string

const (
	SourceManual       Source = "manual"
	SourceAuto         Source = "auto"
	SourceSpeechToText Source = "speech-to-text"
)

// EmptyTrack is the serialized form of a track without cues.
const EmptyTrack = "WEBVTT\n\n"

// Cue is one timed utterance. Start and End are in seconds.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Track is an ordered list of cues with its language and provenance.
type Track struct {
	Cues     []Cue  `json:"cues"`
	Language string `json:"language"`
	Source   Source `json:"source"`
}

// VTT serializes the track.
func (t *Track) VTT() string {
	return GenerateTrack(t.Cues)
}

var timingLineRe = regexp.MustCompile(`^\s*(\S+)\s+-->\s+(\S+)(.*)$`)

// ParseTrack reads WebVTT text into cues. Header, STYLE, REGION and NOTE
// blocks are skipped, as are optional cue identifiers. Text made only of a
// header yields an empty cue list.
func ParseTrack(text string) ([]Cue, error) {
	cues := make([]Cue, 0)

	for _, block := range splitBlocks(text) {
		lines := strings.Split(block, "\n")
		if isMetaBlock(lines[0]) {
			continue
		}

		timing := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timing = i
				break
			}
		}
		if timing < 0 {
			continue
		}

		start, end, _, err := parseTimingLine(lines[timing])
		if err != nil {
			return nil, err
		}

		cues = append(cues, Cue{
			Start: float64(start) / 1000,
			End:   float64(end) / 1000,
			Text:  strings.Join(lines[timing+1:], "\n"),
		})
	}

	return cues, nil
}

// GenerateTrack writes cues as WebVTT. It is the inverse of ParseTrack.
func GenerateTrack(cues []Cue) string {
	var b strings.Builder
	b.WriteString(EmptyTrack)
	for _, c := range cues {
		b.WriteString(SecondsToTime(c.Start))
		b.WriteString(" --> ")
		b.WriteString(SecondsToTime(c.End))
		b.WriteByte('\n')
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// OffsetTrack shifts every cue in text by delta seconds. Cue settings after
// the end timestamp are preserved. Times that would become negative clamp
// to zero. A zero delta returns text unchanged.
func OffsetTrack(text string, delta float64) (string, error) {
	if delta == 0 {
		return text, nil
	}
	deltaMs := deltaMillis(delta)

	lines := strings.Split(normalizeNewlines(text), "\n")
	for i, line := range lines {
		if !strings.Contains(line, "-->") {
			continue
		}
		start, end, settings, err := parseTimingLine(line)
		if err != nil {
			return "", err
		}
		lines[i] = formatMillis(start+deltaMs) + " --> " + formatMillis(end+deltaMs) + settings
	}
	return strings.Join(lines, "\n"), nil
}

// OffsetCues returns a copy of cues shifted by delta seconds.
func OffsetCues(cues []Cue, delta float64) []Cue {
	deltaMs := deltaMillis(delta)
	out := make([]Cue, len(cues))
	for i, c := range cues {
		out[i] = Cue{
			Start: float64(max(secondsToMillis(c.Start)+deltaMs, 0)) / 1000,
			End:   float64(max(secondsToMillis(c.End)+deltaMs, 0)) / 1000,
			Text:  c.Text,
		}
	}
	return out
}

func parseTimingLine(line string) (start, end int64, settings string, err error) {
	m := timingLineRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, "", &FormatError{Input: line, Reason: "malformed timing line"}
	}
	if start, err = parseMillis(m[1]); err != nil {
		return 0, 0, "", err
	}
	if end, err = parseMillis(m[2]); err != nil {
		return 0, 0, "", err
	}
	return start, end, strings.TrimRight(m[3], " \t"), nil
}

func splitBlocks(text string) []string {
	var blocks []string
	var current []string
	for _, line := range strings.Split(normalizeNewlines(text), "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

func isMetaBlock(first string) bool {
	first = strings.TrimPrefix(first, "\ufeff")
	for _, prefix := range []string{"WEBVTT", "NOTE", "STYLE", "REGION"} {
		if first == prefix || strings.HasPrefix(first, prefix+" ") || strings.HasPrefix(first, prefix+"\t") {
			return true
		}
	}
	return false
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func deltaMillis(s float64) int64 {
	if s < 0 {
		return -secondsToMillis(-s)
	}
	return secondsToMillis(s)
}
