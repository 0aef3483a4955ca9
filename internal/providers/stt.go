package providers

import (
	"context"
	"fmt"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/audio"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/captions"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/transcribe"
)

// AudioChunker downloads and splits audio. *audio.Chunker implements it.
type AudioChunker interface {
	Download(ctx context.Context, externalID string) (*audio.Handle, error)
	Split(ctx context.Context, h *audio.Handle) ([]audio.Chunk, error)
}

// ChunkTranscriber transcribes chunk lists. *transcribe.Client implements it.
type ChunkTranscriber interface {
	TranscribeChunks(ctx context.Context, chunks []audio.Chunk, onProgress func(done, total int)) ([]transcribe.Result, error)
}

// SpeechToTextProvider transcribes the video's audio when no platform
// captions exist.
type SpeechToTextProvider struct {
	chunker     AudioChunker
	transcriber ChunkTranscriber
}

func NewSpeechToTextProvider(chunker AudioChunker, transcriber ChunkTranscriber) *SpeechToTextProvider {
	return &SpeechToTextProvider{chunker: chunker, transcriber: transcriber}
}

func (p *SpeechToTextProvider) Name() string { return string(captions.SourceSpeechToText) }

func (p *SpeechToTextProvider) Fetch(ctx context.Context, externalID string, duration float64) (*CaptionResult, error) {
	reportProgress(ctx, "Downloading audio")

	h, err := p.chunker.Download(ctx, externalID)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	chunks, err := p.chunker.Split(ctx, h)
	if err != nil {
		return nil, err
	}

	reportProgress(ctx, fmt.Sprintf("Transcribing audio (chunk 1/%d)", len(chunks)))
	results, err := p.transcriber.TranscribeChunks(ctx, chunks, func(done, total int) {
		if done < total {
			reportProgress(ctx, fmt.Sprintf("Transcribing audio (chunk %d/%d)", done+1, total))
		}
	})
	if err != nil {
		return nil, err
	}

	starts := make(map[int]float64, len(chunks))
	for _, ch := range chunks {
		starts[ch.Index] = ch.Start
	}
	offsets := make([]float64, len(results))
	language := ""
	for i, r := range results {
		offsets[i] = starts[r.ChunkIndex]
		if language == "" && r.Language != "" {
			language = languageCode(r.Language)
		}
	}

	vtt, err := transcribe.ResultsToTrack(results, offsets)
	if err != nil {
		return nil, err
	}
	cues, err := captions.ParseTrack(vtt)
	if err != nil {
		return nil, err
	}
	if len(cues) == 0 {
		return nil, nil
	}

	return newResult(cues, language, captions.SourceSpeechToText), nil
}
