// Package media drives the external tools the enrichment pipeline depends
// on: yt-dlp for metadata, caption tracks and audio, and ffmpeg/ffprobe for
// probing and slicing audio.
package media

import (
	"fmt"
	"time"
)

// RunResult is the outcome of one subprocess execution.
type RunResult struct {
	Stdout     []byte        `json:"-"`
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// CommandError is returned for a non-zero exit. The stderr tail is part of
// the message so upstream classification can see yt-dlp's reason text.
type CommandError struct {
	Tool       string
	ExitCode   int
	StderrTail string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s exited %d: %s", e.Tool, e.ExitCode, truncate(e.StderrTail, 512))
}

// VideoInfo is the subset of yt-dlp's --dump-single-json output we use.
type VideoInfo struct {
	ID                string                   `json:"id"`
	Title             string                   `json:"title"`
	Channel           string                   `json:"channel"`
	Uploader          string                   `json:"uploader"`
	Description       string                   `json:"description"`
	Duration          float64                  `json:"duration"`
	Thumbnail         string                   `json:"thumbnail"`
	Chapters          []InfoChapter            `json:"chapters"`
	Subtitles         map[string][]TrackFormat `json:"subtitles"`
	AutomaticCaptions map[string][]TrackFormat `json:"automatic_captions"`
}

// ChannelName prefers the channel field and falls back to the uploader.
func (v *VideoInfo) ChannelName() string {
	if v.Channel != "" {
		return v.Channel
	}
	return v.Uploader
}

type InfoChapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// TrackFormat is one downloadable rendition of a caption track.
type TrackFormat struct {
	Ext  string `json:"ext"`
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// ProbeResult holds what ffprobe reports about an audio file.
type ProbeResult struct {
	Duration   float64
	Codec      string
	Bitrate    int64
	SampleRate int
	Size       int64
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
