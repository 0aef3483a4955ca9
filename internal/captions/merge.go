package captions

import (
	"errors"
	"fmt"
	"sort"
)

// ErrLengthMismatch is returned when tracks and offsets differ in length.
var ErrLengthMismatch = errors.New("captions: tracks and offsets differ in length")

// MergeTracks concatenates chunk-local tracks into one continuous track.
// Each track is shifted by its offset (seconds) and tracks are emitted in
// ascending offset order whatever order they were passed in. No tracks
// yields EmptyTrack.
func MergeTracks(tracks []string, offsets []float64) (string, error) {
	if len(tracks) != len(offsets) {
		return "", fmt.Errorf("%w: %d tracks, %d offsets", ErrLengthMismatch, len(tracks), len(offsets))
	}
	if len(tracks) == 0 {
		return EmptyTrack, nil
	}

	type part struct {
		text   string
		offset float64
	}
	parts := make([]part, len(tracks))
	for i := range tracks {
		parts[i] = part{text: tracks[i], offset: offsets[i]}
	}
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].offset < parts[j].offset })

	var merged []Cue
	for i, p := range parts {
		cues, err := ParseTrack(p.text)
		if err != nil {
			return "", fmt.Errorf("parse track %d: %w", i, err)
		}
		merged = append(merged, OffsetCues(cues, p.offset)...)
	}

	return GenerateTrack(merged), nil
}
