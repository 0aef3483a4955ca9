// Package importer hosts the two-phase video import: a fast synchronous
// create step and a background job that fetches metadata and runs the
// enrichment, reporting progress at every stage.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/catalog"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/enrichment"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/errclass"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/jobs"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/logging"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/media"
)

// Scheduler queues background jobs. *jobs.Pool implements it.
// Reserve claims a video ahead of SubmitReserved so that concurrent
// callers see jobs.ErrDuplicate; Release drops a claim that was never
// queued.
type Scheduler interface {
	Submit(videoID string) error
	Reserve(videoID string) error
	SubmitReserved(videoID string) error
	Release(videoID string)
}

// MetadataSource resolves title, channel, description and duration.
type MetadataSource interface {
	Info(ctx context.Context, externalID string) (*media.VideoInfo, error)
}

// EnrichmentRunner is satisfied by *enrichment.Enricher.
type EnrichmentRunner interface {
	Run(ctx context.Context, video *catalog.Video, onStage enrichment.StageFunc) (*catalog.Enrichment, error)
}

type Config struct {
	Service         *catalog.Service
	Repo            catalog.Repository
	Metadata        MetadataSource
	Enricher        EnrichmentRunner
	Tracker         *Tracker
	Scheduler       Scheduler
	MetadataTimeout time.Duration
	Logger          *slog.Logger
}

type Importer struct {
	service         *catalog.Service
	repo            catalog.Repository
	metadata        MetadataSource
	enricher        EnrichmentRunner
	tracker         *Tracker
	scheduler       Scheduler
	metadataTimeout time.Duration
	logger          *slog.Logger
}

func New(cfg Config) *Importer {
	timeout := cfg.MetadataTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Importer{
		service:         cfg.Service,
		repo:            cfg.Repo,
		metadata:        cfg.Metadata,
		enricher:        cfg.Enricher,
		tracker:         cfg.Tracker,
		scheduler:       cfg.Scheduler,
		metadataTimeout: timeout,
		logger:          logging.WithComponent(cfg.Logger, "importer"),
	}
}

// Import creates the video, tries a bounded metadata fetch inline and
// schedules the background job. The video is returned even when the fetch
// fails or the queue is full; the job or the next startup picks it up.
func (i *Importer) Import(ctx context.Context, userID, externalID string) (*catalog.Video, error) {
	video, created, err := i.service.CreateVideo(ctx, userID, externalID)
	if err != nil {
		return nil, err
	}
	if !created {
		return video, nil
	}
	i.tracker.Announce(ctx, video)

	mctx, cancel := context.WithTimeout(ctx, i.metadataTimeout)
	err = i.fetchMetadata(mctx, video)
	cancel()
	if err != nil {
		i.logger.Info("inline metadata fetch skipped", "video_id", video.ID, "error", err)
	} else if err := i.tracker.Advance(ctx, video, catalog.StageMetadata); err != nil {
		i.logger.Warn("failed to advance stage", "video_id", video.ID, "error", err)
	}

	if err := i.scheduler.Submit(video.ID); err != nil {
		i.logger.Warn("failed to schedule import", "video_id", video.ID, "error", err)
	}
	return video, nil
}

// Process is the background job for one video.
func (i *Importer) Process(ctx context.Context, videoID string) error {
	log := logging.WithVideoID(i.logger, videoID)

	video, err := i.repo.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if video == nil {
		log.Info("video deleted before processing")
		return nil
	}
	if video.ImportStage == catalog.StageComplete || video.ImportStage == catalog.StageError {
		log.Debug("video already settled", "stage", video.ImportStage)
		return nil
	}

	if video.ImportStage == catalog.StageCreated {
		if err := i.fetchMetadata(ctx, video); err != nil {
			c := errclass.Classify(err)
			if c.Retryable {
				return &errclass.TemporaryError{Message: c.UserMessage, Err: err}
			}
			log.Warn("metadata fetch failed", "error", err)
			return i.fail(ctx, video, c.UserMessage)
		}
		if err := i.tracker.Advance(ctx, video, catalog.StageMetadata); err != nil {
			return err
		}
	}

	rec, err := i.enricher.Run(ctx, video, func(ctx context.Context, stage catalog.Stage) {
		if err := i.tracker.Advance(ctx, video, stage); err != nil {
			log.Warn("failed to advance stage", "stage", stage, "error", err)
		}
	})
	if err != nil {
		return err
	}

	switch rec.Status {
	case catalog.StatusCompleted, catalog.StatusPartial:
		return i.tracker.Advance(ctx, video, catalog.StageComplete)
	case catalog.StatusFailed:
		return i.tracker.Advance(ctx, video, catalog.StageError)
	}
	return nil
}

// Exhausted settles a video whose job kept failing with retryable errors.
// Anything already extracted keeps the record partial; otherwise it fails.
func (i *Importer) Exhausted(ctx context.Context, videoID string, cause error) {
	i.settle(ctx, videoID, cause)
}

// Failed settles a video whose job stopped on a permanent error before the
// record was settled, such as a panic or a failed final write. Without it
// the record would stay processing and refuse every retry.
func (i *Importer) Failed(ctx context.Context, videoID string, cause error) {
	i.settle(ctx, videoID, cause)
}

func (i *Importer) settle(ctx context.Context, videoID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	log := logging.WithVideoID(i.logger, videoID)

	video, err := i.repo.GetVideo(ctx, videoID)
	if err != nil || video == nil {
		log.Warn("unsettled video not found", "error", err)
		return
	}
	if video.ImportStage == catalog.StageComplete || video.ImportStage == catalog.StageError {
		return
	}

	rec, err := i.repo.GetEnrichment(ctx, videoID)
	if err != nil {
		log.Error("failed to load enrichment", "error", err)
		return
	}

	target := catalog.StageComplete
	switch {
	case rec != nil && (rec.Status == catalog.StatusCompleted || rec.Status == catalog.StatusPartial):
	case rec != nil && rec.Status == catalog.StatusFailed:
		target = catalog.StageError
	case rec != nil && (rec.CaptionTrack != "" || len(rec.Chapters) > 0):
		rec.Status = catalog.StatusPartial
		rec.ProgressMessage = enrichment.MessageDone
		if err := i.repo.UpsertEnrichment(ctx, rec); err != nil {
			log.Error("failed to settle enrichment", "error", err)
			return
		}
	default:
		if err := i.fail(ctx, video, errclass.Classify(cause).UserMessage); err != nil {
			log.Error("failed to mark enrichment failed", "error", err)
		}
		return
	}

	if err := i.tracker.Advance(ctx, video, target); err != nil {
		log.Warn("failed to advance stage", "error", err)
	}
}

// Retry resets a video's enrichment and schedules it again. It returns
// catalog.ErrConflict while a job for the video is queued or running, or
// while another retry holds it.
func (i *Importer) Retry(ctx context.Context, videoID string) (*catalog.Video, error) {
	if err := i.scheduler.Reserve(videoID); err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			return nil, catalog.ErrConflict
		}
		return nil, fmt.Errorf("schedule retry: %w", err)
	}
	queued := false
	defer func() {
		if !queued {
			i.scheduler.Release(videoID)
		}
	}()

	if err := i.service.RetryEnrichment(ctx, videoID); err != nil {
		return nil, err
	}

	video, err := i.service.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	stage := catalog.StageCreated
	if video.HasMetadata() {
		stage = catalog.StageMetadata
	}
	if err := i.tracker.Reset(ctx, video, stage); err != nil {
		return nil, err
	}

	if err := i.scheduler.SubmitReserved(videoID); err != nil {
		return nil, fmt.Errorf("schedule retry: %w", err)
	}
	queued = true
	return video, nil
}

// Resume schedules every video whose import did not settle, typically
// after a restart.
func (i *Importer) Resume(ctx context.Context) (int, error) {
	videos, err := i.repo.ListVideosNeedingEnrichment(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, v := range videos {
		if err := i.scheduler.Submit(v.ID); err != nil {
			i.logger.Warn("failed to resume import", "video_id", v.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

func (i *Importer) fetchMetadata(ctx context.Context, video *catalog.Video) error {
	if i.metadata == nil {
		return errors.New("no metadata source")
	}
	info, err := i.metadata.Info(ctx, video.ExternalID)
	if err != nil {
		return err
	}

	if err := i.repo.UpdateVideoMetadata(ctx, video.ID, info.Title, info.ChannelName(), info.Description, info.Duration); err != nil {
		return err
	}
	video.Title = info.Title
	video.Channel = info.ChannelName()
	video.Description = info.Description
	video.DurationSeconds = info.Duration
	return nil
}

func (i *Importer) fail(ctx context.Context, video *catalog.Video, message string) error {
	rec, err := i.repo.GetEnrichment(ctx, video.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &catalog.Enrichment{VideoID: video.ID}
	}
	rec.Status = catalog.StatusFailed
	rec.ErrorMessage = message
	rec.ProgressMessage = enrichment.MessageFailed
	if err := i.repo.UpsertEnrichment(ctx, rec); err != nil {
		return err
	}
	return i.tracker.Advance(ctx, video, catalog.StageError)
}
