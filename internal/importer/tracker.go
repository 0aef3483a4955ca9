package importer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/catalog"
)

// StateStore persists a video's import stage.
type StateStore interface {
	UpdateImportState(ctx context.Context, id string, stage catalog.Stage, progress int) error
}

// Tracker applies stage transitions. The event is published before the
// write so the emitted state is never more than one transition ahead of the
// stored one.
type Tracker struct {
	store     StateStore
	publisher Publisher
	logger    *slog.Logger
}

func NewTracker(store StateStore, publisher Publisher, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, publisher: publisher, logger: logger}
}

// Advance moves video to target. Targets the video has already passed are
// ignored, which lets a rescheduled run cross earlier checkpoints again.
func (t *Tracker) Advance(ctx context.Context, video *catalog.Video, target catalog.Stage) error {
	tr, err := Next(video.ImportStage, target, video.ImportProgress)
	if errors.Is(err, ErrBackward) {
		t.logger.Debug("stage already reached", "video_id", video.ID, "stage", video.ImportStage, "target", target)
		return nil
	}
	if err != nil {
		return err
	}
	return t.apply(ctx, video, tr)
}

// Reset puts a video back on the success path for an explicit retry.
func (t *Tracker) Reset(ctx context.Context, video *catalog.Video, stage catalog.Stage) error {
	return t.apply(ctx, video, Transition{From: video.ImportStage, To: stage, Progress: Progress(stage)})
}

// Announce publishes the video's current state without changing it.
func (t *Tracker) Announce(ctx context.Context, video *catalog.Video) {
	t.publish(ctx, video.UserID, ProgressMessage{
		Type:     MessageTypeImportProgress,
		VideoID:  video.ID,
		Progress: video.ImportProgress,
		Stage:    video.ImportStage,
	})
}

func (t *Tracker) apply(ctx context.Context, video *catalog.Video, tr Transition) error {
	t.publish(ctx, video.UserID, ProgressMessage{
		Type:     MessageTypeImportProgress,
		VideoID:  video.ID,
		Progress: tr.Progress,
		Stage:    tr.To,
	})

	if err := t.store.UpdateImportState(context.WithoutCancel(ctx), video.ID, tr.To, tr.Progress); err != nil {
		return err
	}
	video.ImportStage = tr.To
	video.ImportProgress = tr.Progress

	t.logger.Debug("stage advanced", "video_id", video.ID, "from", tr.From, "to", tr.To, "progress", tr.Progress)
	return nil
}

func (t *Tracker) publish(ctx context.Context, userID string, msg ProgressMessage) {
	if err := t.publisher.Publish(ctx, Channel(userID), msg); err != nil {
		t.logger.Warn("failed to publish progress", "video_id", msg.VideoID, "stage", msg.Stage, "error", err)
	}
}
