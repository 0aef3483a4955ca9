// Package providers implements the ordered caption fallback chain: manual
// captions, then auto-generated captions, then speech-to-text.
package providers

import (
	"context"
	"log/slog"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/captions"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/errclass"
)

// CaptionResult is a usable caption track plus its plain-text transcript.
type CaptionResult struct {
	Track      captions.Track
	VTT        string
	Transcript string
}

// CaptionProvider fetches captions for a video. It returns nil, nil when it
// has nothing and an error only for unexpected transport or extraction
// failures.
type CaptionProvider interface {
	Name() string
	Fetch(ctx context.Context, externalID string, duration float64) (*CaptionResult, error)
}

// Chain tries providers in order and stops at the first result.
type Chain struct {
	providers []CaptionProvider
	logger    *slog.Logger
}

func NewChain(logger *slog.Logger, providers ...CaptionProvider) *Chain {
	return &Chain{providers: providers, logger: logger}
}

// Fetch walks the chain. A failure that is permanent for the video (private,
// removed, restricted) stops the walk; other failures fall through to the
// next provider and are reported only if no provider yields captions.
// Returned errors are always classified.
func (c *Chain) Fetch(ctx context.Context, externalID string, duration float64) (*CaptionResult, error) {
	var lastErr error

	for _, p := range c.providers {
		res, err := p.Fetch(ctx, externalID, duration)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errclass.Wrap(ctx.Err())
			}

			class := errclass.Classify(err)
			wrapped := errclass.Wrap(err)
			c.logger.Warn("caption provider failed",
				"provider", p.Name(),
				"external_id", externalID,
				"retryable", class.Retryable,
				"error", err,
			)
			if !class.Retryable && class.Kind != errclass.KindCaptionsDisabled && class.Kind != errclass.KindUnknown {
				return nil, wrapped
			}
			lastErr = wrapped
			continue
		}
		if res != nil {
			c.logger.Info("captions found", "provider", p.Name(), "external_id", externalID, "language", res.Track.Language, "cues", len(res.Track.Cues))
			return res, nil
		}
		c.logger.Debug("caption provider had nothing", "provider", p.Name(), "external_id", externalID)
	}

	return nil, lastErr
}

func newResult(cues []captions.Cue, language string, source captions.Source) *CaptionResult {
	track := captions.Track{Cues: cues, Language: language, Source: source}
	return &CaptionResult{
		Track:      track,
		VTT:        track.VTT(),
		Transcript: track.PlainText(),
	}
}

type progressKey struct{}

// WithProgress attaches a progress reporter that long-running providers
// call with human-readable status lines.
func WithProgress(ctx context.Context, fn func(message string)) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func reportProgress(ctx context.Context, message string) {
	if fn, ok := ctx.Value(progressKey{}).(func(string)); ok && fn != nil {
		fn(message)
	}
}
