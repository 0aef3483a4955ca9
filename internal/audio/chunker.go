// Package audio downloads a video's audio track into a private temporary
// directory and slices it into fixed windows small enough for a
// speech-to-text provider.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/media"
)

const (
	// WindowSeconds is the length of every chunk but the last.
	WindowSeconds = 600
	// BitrateKbps keeps a full window near 4.8 MB.
	BitrateKbps = 64
	// ProviderLimitBytes is the speech-to-text upload ceiling.
	ProviderLimitBytes = 25 * 1024 * 1024
	// MaxChunkBytes leaves headroom under ProviderLimitBytes.
	MaxChunkBytes = 20 * 1024 * 1024
)

// ErrChunkTooLarge is returned when an encoded chunk exceeds MaxChunkBytes.
var ErrChunkTooLarge = errors.New("audio chunk exceeds size limit")

// Chunk is one slice of the source audio. Start and End are seconds in the
// source timeline.
type Chunk struct {
	Path  string
	Start float64
	End   float64
	Index int
}

// Window is a planned [Start, End) range.
type Window struct {
	Start float64
	End   float64
	Index int
}

// PlanChunks covers [0, total) with contiguous windows of the given length.
// Audio shorter than one window yields a single window spanning it.
func PlanChunks(total, window float64) []Window {
	if total <= 0 || window <= 0 {
		return nil
	}
	n := int(math.Ceil(total / window))
	out := make([]Window, n)
	for i := 0; i < n; i++ {
		out[i] = Window{
			Start: float64(i) * window,
			End:   math.Min(float64(i+1)*window, total),
			Index: i,
		}
	}
	return out
}

// Downloader fetches a video's audio into dir.
type Downloader interface {
	DownloadAudio(ctx context.Context, externalID, dir string) (string, error)
}

// Handle is downloaded audio plus the temporary directory that holds it
// and every chunk cut from it. Close removes the directory.
type Handle struct {
	Path     string
	Duration float64

	dir  string
	once sync.Once
	err  error
}

// Dir is the temporary directory owned by this handle.
func (h *Handle) Dir() string { return h.dir }

// Close removes the handle's directory. It is safe to call more than once.
func (h *Handle) Close() error {
	h.once.Do(func() {
		h.err = os.RemoveAll(h.dir)
	})
	return h.err
}

// Chunker owns the download and split steps of one or more runs.
type Chunker struct {
	downloader Downloader
	ffmpeg     media.FFmpeg
	baseDir    string
	window     float64
	logger     *slog.Logger
}

// NewChunker creates a chunker whose temporary directories live under
// baseDir (os.TempDir when empty).
func NewChunker(downloader Downloader, ffmpeg media.FFmpeg, baseDir string, logger *slog.Logger) *Chunker {
	return &Chunker{
		downloader: downloader,
		ffmpeg:     ffmpeg,
		baseDir:    baseDir,
		window:     WindowSeconds,
		logger:     logger,
	}
}

// Download opens a private temporary directory and fetches the audio into
// it. On failure the directory is already removed; on success the caller
// must Close the handle.
func (c *Chunker) Download(ctx context.Context, externalID string) (*Handle, error) {
	if c.baseDir != "" {
		if err := os.MkdirAll(c.baseDir, 0755); err != nil {
			return nil, fmt.Errorf("cannot create audio base dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(c.baseDir, "audio-"+sanitize(externalID)+"-")
	if err != nil {
		return nil, fmt.Errorf("cannot create audio scope: %w", err)
	}
	h := &Handle{dir: dir}

	path, err := c.downloader.DownloadAudio(ctx, externalID, dir)
	if err != nil {
		h.Close()
		return nil, err
	}

	probe, err := c.ffmpeg.Probe(ctx, path)
	if err != nil {
		h.Close()
		return nil, err
	}

	h.Path = path
	h.Duration = probe.Duration
	c.logger.Debug("audio ready", "external_id", externalID, "duration_s", probe.Duration)
	return h, nil
}

// Split cuts the handle's audio into windows re-encoded at BitrateKbps.
// Chunk files live inside the handle's directory.
func (c *Chunker) Split(ctx context.Context, h *Handle) ([]Chunk, error) {
	windows := PlanChunks(h.Duration, c.window)
	if len(windows) == 0 {
		return nil, fmt.Errorf("audio has no duration")
	}

	chunks := make([]Chunk, 0, len(windows))
	for _, w := range windows {
		out := filepath.Join(h.dir, fmt.Sprintf("chunk_%03d.mp3", w.Index))
		if err := c.ffmpeg.ExtractSegment(ctx, h.Path, out, w.Start, w.End-w.Start, BitrateKbps); err != nil {
			return nil, err
		}

		info, err := os.Stat(out)
		if err != nil {
			return nil, fmt.Errorf("chunk %d missing: %w", w.Index, err)
		}
		if info.Size() > MaxChunkBytes {
			return nil, fmt.Errorf("%w: chunk %d is %d bytes", ErrChunkTooLarge, w.Index, info.Size())
		}

		chunks = append(chunks, Chunk{Path: out, Start: w.Start, End: w.End, Index: w.Index})
	}

	c.logger.Debug("audio split", "chunks", len(chunks), "duration_s", h.Duration)
	return chunks, nil
}

func sanitize(id string) string {
	b := []byte(id)
	for i, ch := range b {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}
