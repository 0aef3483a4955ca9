// Package transcribe pushes audio chunks through a speech-to-text provider
// under concurrency and pacing limits and stitches the per-chunk output
// back into one caption track.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrRateLimited signals that the provider throttled us. It is retryable
// and distinct from other transcription failures.
var ErrRateLimited = errors.New("transcription provider rate limited")

// Segment is a timed span of recognized speech, relative to its chunk.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is what a provider returns for one audio payload.
type Transcription struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Result is the transcription of one chunk.
type Result struct {
	Transcription
	ChunkIndex int
}

// Provider turns audio into text. Payloads must stay under the provider's
// upload limit.
type Provider interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (*Transcription, error)
}

// Gate runs a call under a shared rate limiter.
type Gate interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// TranscriptionError wraps any non-rate-limit provider failure.
type TranscriptionError struct {
	ChunkIndex int
	Err        error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed for chunk %d: %v", e.ChunkIndex, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
