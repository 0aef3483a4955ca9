package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/audio"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/captions"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/errclass"
)

// Config bounds how hard one run may push the provider.
type Config struct {
	Concurrency int           // chunks in flight
	Interval    time.Duration // minimum gap between call starts
}

func DefaultConfig() Config {
	return Config{Concurrency: 3, Interval: 3 * time.Second}
}

// Client transcribes chunk lists.
type Client struct {
	provider Provider
	gate     Gate
	cfg      Config
	logger   *slog.Logger
}

// NewClient builds a client. gate is the process-wide limiter shared by all
// runs; nil disables it.
func NewClient(provider Provider, gate Gate, cfg Config, logger *slog.Logger) *Client {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	return &Client{provider: provider, gate: gate, cfg: cfg, logger: logger}
}

// TranscribeChunks transcribes every chunk and returns results ordered by
// chunk index. The first failure abandons the remaining chunks. onProgress,
// if set, is called after each finished chunk.
func (c *Client) TranscribeChunks(ctx context.Context, chunks []audio.Chunk, onProgress func(done, total int)) ([]Result, error) {
	results := make([]Result, len(chunks))
	pacer := rate.NewLimiter(rate.Every(c.cfg.Interval), 1)
	if c.cfg.Interval == 0 {
		pacer = rate.NewLimiter(rate.Inf, 1)
	}

	var done atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			if err := pacer.Wait(gctx); err != nil {
				// Wait refuses early when the next slot falls past the
				// deadline; report that as the deadline it is.
				if gctx.Err() == nil {
					err = fmt.Errorf("%w: chunk %d: %v", context.DeadlineExceeded, chunk.Index, err)
				}
				return err
			}

			t, err := c.transcribeOne(gctx, chunk)
			if err != nil {
				return err
			}

			results[i] = Result{Transcription: *t, ChunkIndex: chunk.Index}
			n := int(done.Add(1))
			if onProgress != nil {
				onProgress(n, len(chunks))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ChunkIndex < results[j].ChunkIndex })
	return results, nil
}

func (c *Client) transcribeOne(ctx context.Context, chunk audio.Chunk) (*Transcription, error) {
	var out *Transcription
	call := func(ctx context.Context) error {
		f, err := os.Open(chunk.Path)
		if err != nil {
			return err
		}
		defer f.Close()

		out, err = c.provider.Transcribe(ctx, f, filepath.Base(chunk.Path))
		return err
	}

	var err error
	if c.gate != nil {
		err = c.gate.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err == nil {
		c.logger.Debug("chunk transcribed", "chunk", chunk.Index, "segments", len(out.Segments))
		return out, nil
	}

	if errclass.Classify(err).Kind == errclass.KindRateLimit {
		c.logger.Warn("transcription rate limited", "chunk", chunk.Index, "error", err)
		return nil, fmt.Errorf("%w: chunk %d: %v", ErrRateLimited, chunk.Index, err)
	}
	return nil, &TranscriptionError{ChunkIndex: chunk.Index, Err: err}
}

// ResultsToTrack builds each result's chunk-local cues and merges them,
// shifting result i by offsets[i].
func ResultsToTrack(results []Result, offsets []float64) (string, error) {
	if len(results) != len(offsets) {
		return "", fmt.Errorf("%w: %d results, %d offsets", captions.ErrLengthMismatch, len(results), len(offsets))
	}

	tracks := make([]string, len(results))
	for i, r := range results {
		tracks[i] = captions.GenerateTrack(segmentsToCues(r.Transcription))
	}
	return captions.MergeTracks(tracks, offsets)
}

func segmentsToCues(t Transcription) []captions.Cue {
	cues := make([]captions.Cue, 0, len(t.Segments))
	for _, s := range t.Segments {
		text := strings.Join(strings.Fields(s.Text), " ")
		if text == "" {
			continue
		}
		end := s.End
		if end <= s.Start {
			end = s.Start + 0.001
		}
		cues = append(cues, captions.Cue{Start: s.Start, End: end, Text: text})
	}
	return cues
}
