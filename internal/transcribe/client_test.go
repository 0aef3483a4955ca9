package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/audio"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/captions"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/errclass"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeProvider struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32

	mu     sync.Mutex
	starts []time.Time

	transcribeFn func(name string, body string) (*Transcription, error)
}

func (f *fakeProvider) Transcribe(ctx context.Context, r io.Reader, filename string) (*Transcription, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	body, _ := io.ReadAll(r)
	return f.transcribeFn(filename, string(body))
}

func writeChunks(t *testing.T, n int) []audio.Chunk {
	t.Helper()
	dir := t.TempDir()
	chunks := make([]audio.Chunk, n)
	for i := range chunks {
		path := filepath.Join(dir, fmt.Sprintf("chunk_%03d.mp3", i))
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("chunk-%d", i)), 0644))
		chunks[i] = audio.Chunk{Path: path, Start: float64(i * 600), End: float64((i + 1) * 600), Index: i}
	}
	return chunks
}

func TestClient_TranscribeChunks_OrderedByIndex(t *testing.T) {
	p := &fakeProvider{transcribeFn: func(name, body string) (*Transcription, error) {
		// Earlier chunks finish last.
		idx := 0
		fmt.Sscanf(body, "chunk-%d", &idx)
		time.Sleep(time.Duration(5-idx) * 10 * time.Millisecond)
		return &Transcription{Text: body, Segments: []Segment{{Start: 1, End: 2, Text: body}}, Language: "en"}, nil
	}}
	c := NewClient(p, nil, Config{Concurrency: 3, Interval: time.Millisecond}, testLogger())

	var progress atomic.Int32
	results, err := c.TranscribeChunks(context.Background(), writeChunks(t, 5), func(done, total int) {
		progress.Store(int32(done))
		assert.Equal(t, 5, total)
	})
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, r := range results {
		assert.Equal(t, i, r.ChunkIndex)
		assert.Equal(t, fmt.Sprintf("chunk-%d", i), r.Text)
	}
	assert.Equal(t, int32(5), progress.Load())
	assert.LessOrEqual(t, p.peak.Load(), int32(3))
}

func TestClient_TranscribeChunks_PacesCallStarts(t *testing.T) {
	p := &fakeProvider{transcribeFn: func(name, body string) (*Transcription, error) {
		return &Transcription{Text: body}, nil
	}}
	interval := 30 * time.Millisecond
	c := NewClient(p, nil, Config{Concurrency: 3, Interval: interval}, testLogger())

	_, err := c.TranscribeChunks(context.Background(), writeChunks(t, 3), nil)
	require.NoError(t, err)

	require.Len(t, p.starts, 3)
	total := p.starts[2].Sub(p.starts[0])
	assert.GreaterOrEqual(t, total, 2*interval-5*time.Millisecond)
}

func TestClient_TranscribeChunks_RateLimited(t *testing.T) {
	p := &fakeProvider{transcribeFn: func(name, body string) (*Transcription, error) {
		return nil, &StatusError{StatusCode: 429, Body: "slow down"}
	}}
	c := NewClient(p, nil, Config{Concurrency: 1, Interval: time.Millisecond}, testLogger())

	_, err := c.TranscribeChunks(context.Background(), writeChunks(t, 2), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.True(t, errclass.IsRetryable(err))
}

func TestClient_TranscribeChunks_PacingPastDeadlineIsRetryable(t *testing.T) {
	p := &fakeProvider{transcribeFn: func(name, body string) (*Transcription, error) {
		return &Transcription{Text: body}, nil
	}}
	c := NewClient(p, nil, Config{Concurrency: 2, Interval: 3 * time.Second}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.TranscribeChunks(ctx, writeChunks(t, 2), nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, errclass.IsRetryable(err))
	assert.Equal(t, errclass.KindTimeout, errclass.Classify(err).Kind)
}

func TestClient_TranscribeChunks_OtherFailure(t *testing.T) {
	p := &fakeProvider{transcribeFn: func(name, body string) (*Transcription, error) {
		if strings.HasSuffix(body, "1") {
			return nil, errors.New("model exploded")
		}
		return &Transcription{Text: body}, nil
	}}
	c := NewClient(p, nil, Config{Concurrency: 3, Interval: time.Millisecond}, testLogger())

	_, err := c.TranscribeChunks(context.Background(), writeChunks(t, 3), nil)

	var te *TranscriptionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.ChunkIndex)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

type countingGate struct{ calls atomic.Int32 }

func (g *countingGate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	g.calls.Add(1)
	return fn(ctx)
}

func TestClient_UsesSharedGate(t *testing.T) {
	p := &fakeProvider{transcribeFn: func(name, body string) (*Transcription, error) {
		return &Transcription{}, nil
	}}
	gate := &countingGate{}
	c := NewClient(p, gate, Config{Concurrency: 2, Interval: time.Millisecond}, testLogger())

	_, err := c.TranscribeChunks(context.Background(), writeChunks(t, 4), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(4), gate.calls.Load())
}

func TestResultsToTrack(t *testing.T) {
	results := []Result{
		{ChunkIndex: 1, Transcription: Transcription{Segments: []Segment{{Start: 0, End: 4, Text: " second "}}}},
		{ChunkIndex: 0, Transcription: Transcription{Segments: []Segment{{Start: 0, End: 2, Text: "first"}, {Start: 2, End: 2, Text: "blip"}, {Start: 3, End: 4, Text: "  "}}}},
	}

	track, err := ResultsToTrack(results, []float64{600, 0})
	require.NoError(t, err)

	cues, err := captions.ParseTrack(track)
	require.NoError(t, err)
	require.Len(t, cues, 3)
	assert.Equal(t, "first", cues[0].Text)
	assert.Equal(t, "blip", cues[1].Text)
	assert.Equal(t, 2.001, cues[1].End)
	assert.Equal(t, captions.Cue{Start: 600, End: 604, Text: "second"}, cues[2])

	_, err = ResultsToTrack(results, []float64{0})
	assert.ErrorIs(t, err, captions.ErrLengthMismatch)
}
