// Package captions converts between seconds and caption timestamps and
// reads, writes, merges and flattens WebVTT caption tracks.
package captions

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// FormatError reports a timestamp or timing line that could not be parsed.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid caption timestamp %q: %s", e.Input, e.Reason)
}

var (
	// HH:MM:SS.mmm or MM:SS.mmm; hours may exceed two digits for very long media.
	cueTimestampRe = regexp.MustCompile(`^(?:(\d{2,}):)?(\d{2}):(\d{2})\.(\d{3})$`)

	// M:SS, MM:SS, H:MM:SS, HH:MM:SS as written by people in descriptions.
	freeTextTimestampRe = regexp.MustCompile(`^(?:(\d{1,2}):)?(\d{1,2}):(\d{2})$`)
)

// SecondsToTime formats s as "HH:MM:SS.mmm". Sub-millisecond precision is
// truncated, never rounded. Negative values clamp to zero.
func SecondsToTime(s float64) string {
	return formatMillis(secondsToMillis(s))
}

// TimeToSeconds parses "HH:MM:SS.mmm" or "MM:SS.mmm".
func TimeToSeconds(text string) (float64, error) {
	ms, err := parseMillis(text)
	if err != nil {
		return 0, err
	}
	return float64(ms) / 1000, nil
}

// ParseFreeTextTimestamp parses a human-written marker such as "4:05" or
// "1:02:33". It reports false for anything else so prose can be skipped.
func ParseFreeTextTimestamp(token string) (float64, bool) {
	m := freeTextTimestampRe.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return 0, false
	}

	hours := 0
	if m[1] != "" {
		hours, _ = strconv.Atoi(m[1])
	}
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])

	if seconds >= 60 {
		return 0, false
	}
	if m[1] != "" && minutes >= 60 {
		return 0, false
	}

	return float64(hours*3600 + minutes*60 + seconds), true
}

func secondsToMillis(s float64) int64 {
	if s <= 0 || math.IsNaN(s) {
		return 0
	}
	// The epsilon absorbs binary representation error (0.3 -> 299.99999...).
	return int64(math.Floor(s*1000 + 1e-6))
}

func formatMillis(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3_600_000
	minutes := (ms / 60_000) % 60
	seconds := (ms / 1000) % 60
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

func parseMillis(text string) (int64, error) {
	m := cueTimestampRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, &FormatError{Input: text, Reason: "expected HH:MM:SS.mmm or MM:SS.mmm"}
	}

	var hours int64
	if m[1] != "" {
		hours, _ = strconv.ParseInt(m[1], 10, 64)
	}
	minutes, _ := strconv.ParseInt(m[2], 10, 64)
	seconds, _ := strconv.ParseInt(m[3], 10, 64)
	millis, _ := strconv.ParseInt(m[4], 10, 64)

	if minutes >= 60 || seconds >= 60 {
		return 0, &FormatError{Input: text, Reason: "minutes and seconds must be below 60"}
	}

	return ((hours*60+minutes)*60+seconds)*1000 + millis, nil
}
