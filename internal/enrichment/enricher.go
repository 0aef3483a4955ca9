// Package enrichment drives one enrichment run for a video: captions through
// the provider chain, chapters from the platform or the description, and
// the final status decision.
package enrichment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/catalog"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/chapters"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/errclass"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/logging"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/providers"
)

const (
	MessageFetchingCaptions  = "Fetching captions"
	MessageExtractingChapter = "Extracting chapters"
	MessageDone              = "Done"
	MessageFailed            = "Failed"
	MessageWaitingRetry      = "Waiting to retry"
)

// Store is the slice of the repository an enrichment run needs.
type Store interface {
	GetEnrichment(ctx context.Context, videoID string) (*catalog.Enrichment, error)
	UpsertEnrichment(ctx context.Context, e *catalog.Enrichment) error
	UpdateEnrichmentStatus(ctx context.Context, videoID, status, progressMessage string) error
}

// CaptionFetcher is satisfied by *providers.Chain.
type CaptionFetcher interface {
	Fetch(ctx context.Context, externalID string, duration float64) (*providers.CaptionResult, error)
}

// StageFunc is told when a run passes a checkpoint.
type StageFunc func(ctx context.Context, stage catalog.Stage)

type Enricher struct {
	store    Store
	captions CaptionFetcher
	platform chapters.PlatformSource
	logger   *slog.Logger
}

func NewEnricher(store Store, captions CaptionFetcher, platform chapters.PlatformSource, logger *slog.Logger) *Enricher {
	return &Enricher{
		store:    store,
		captions: captions,
		platform: platform,
		logger:   logging.WithComponent(logger, "enrichment"),
	}
}

// Run enriches video and returns the persisted record. Caption and chapter
// extraction are both attempted regardless of the other's outcome.
//
// The final status is completed when captions were found, partial when only
// chapters were found or nothing was found without a hard error, and failed
// when a permanent error left nothing usable. If captions are missing and a
// step failed with a retryable error, the record goes back to pending and a
// *errclass.TemporaryError is returned so the caller can reschedule.
func (e *Enricher) Run(ctx context.Context, video *catalog.Video, onStage StageFunc) (*catalog.Enrichment, error) {
	log := logging.WithVideoID(e.logger, video.ID)
	persistCtx := context.WithoutCancel(ctx)

	rec, err := e.store.GetEnrichment(ctx, video.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &catalog.Enrichment{VideoID: video.ID}
	}

	rec.Status = catalog.StatusProcessing
	rec.ErrorMessage = ""
	rec.ProgressMessage = MessageFetchingCaptions
	if err := e.store.UpsertEnrichment(ctx, rec); err != nil {
		return nil, err
	}
	log.Info("enrichment started", "external_id", video.ExternalID, "retry_count", rec.RetryCount)

	progressCtx := providers.WithProgress(ctx, func(message string) {
		if err := e.store.UpdateEnrichmentStatus(persistCtx, video.ID, catalog.StatusProcessing, message); err != nil {
			log.Warn("failed to record progress", "message", message, "error", err)
		}
	})

	captionResult, captionErr := e.captions.Fetch(progressCtx, video.ExternalID, video.DurationSeconds)
	if captionErr != nil {
		log.Warn("caption step failed", "error", captionErr)
	}
	if onStage != nil {
		onStage(ctx, catalog.StageCaptions)
	}

	if err := e.store.UpdateEnrichmentStatus(persistCtx, video.ID, catalog.StatusProcessing, MessageExtractingChapter); err != nil {
		log.Warn("failed to record progress", "error", err)
	}
	chapterList, origin, chapterErr := e.extractChapters(ctx, video)
	if chapterErr != nil {
		log.Warn("chapter step failed", "error", chapterErr)
	}
	if onStage != nil {
		onStage(ctx, catalog.StageChapters)
	}

	if captionResult != nil {
		rec.CaptionTrack = captionResult.VTT
		rec.CaptionLanguage = captionResult.Track.Language
		rec.CaptionSource = string(captionResult.Track.Source)
		rec.TranscriptText = captionResult.Transcript
	}
	if chapterList != nil {
		rec.Chapters = chapterList
		rec.ChaptersSource = string(origin)
	}

	status, runErr := decide(captionResult != nil, chapterList != nil, captionErr, chapterErr)
	rec.Status = status
	switch status {
	case catalog.StatusPending:
		rec.ProgressMessage = MessageWaitingRetry
	case catalog.StatusFailed:
		rec.ProgressMessage = MessageFailed
		rec.ErrorMessage = errclass.Classify(runErr).UserMessage
	default:
		rec.ProgressMessage = MessageDone
	}

	if err := e.store.UpsertEnrichment(persistCtx, rec); err != nil {
		return nil, err
	}

	log.Info("enrichment finished",
		"status", rec.Status,
		"caption_source", rec.CaptionSource,
		"chapters", len(rec.Chapters),
		"chapters_source", rec.ChaptersSource,
	)

	if status == catalog.StatusPending {
		return rec, runErr
	}
	return rec, nil
}

// decide maps step outcomes to a final status. For pending it returns the
// retryable error to surface; for failed, the permanent one to record.
func decide(gotCaptions, gotChapters bool, captionErr, chapterErr error) (string, error) {
	if gotCaptions {
		return catalog.StatusCompleted, nil
	}

	for _, err := range []error{captionErr, chapterErr} {
		if err != nil && errclass.IsRetryable(err) {
			return catalog.StatusPending, asTemporary(err)
		}
	}

	if gotChapters {
		return catalog.StatusPartial, nil
	}

	for _, err := range []error{captionErr, chapterErr} {
		if err != nil {
			return catalog.StatusFailed, err
		}
	}
	return catalog.StatusPartial, nil
}

func asTemporary(err error) error {
	var te *errclass.TemporaryError
	if errors.As(err, &te) {
		return err
	}
	return &errclass.TemporaryError{Message: errclass.Classify(err).UserMessage, Err: err}
}

// extractChapters prefers the platform's chapter list and falls back to the
// description. A platform failure is reported only when the description
// yields nothing either.
func (e *Enricher) extractChapters(ctx context.Context, video *catalog.Video) ([]chapters.Chapter, chapters.Origin, error) {
	var platformErr error
	if e.platform != nil {
		list, err := chapters.FetchPlatformChapters(ctx, e.platform, video.ExternalID, video.DurationSeconds)
		if err == nil && list != nil {
			return list, chapters.OriginPlatform, nil
		}
		platformErr = err
	}

	if list := chapters.ParseDescriptionChapters(video.Description, video.DurationSeconds); list != nil {
		return list, chapters.OriginDescription, nil
	}
	return nil, "", platformErr
}
