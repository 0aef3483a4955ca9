package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type CatalogService interface {
	CreateVideo(ctx context.Context, userID, externalID string) (*Video, bool, error)
	GetVideo(ctx context.Context, id string) (*Video, error)
	ListVideos(ctx context.Context, userID string) ([]*Video, error)
	DeleteVideo(ctx context.Context, id string) error
	GetEnrichment(ctx context.Context, videoID string) (*Enrichment, error)
	RetryEnrichment(ctx context.Context, videoID string) error
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateVideo adds a video in the created stage. Importing the same
// external id twice for one user returns the existing video and false.
func (s *Service) CreateVideo(ctx context.Context, userID, externalID string) (*Video, bool, error) {
	userID = strings.TrimSpace(userID)
	externalID = strings.TrimSpace(externalID)
	if userID == "" || externalID == "" {
		return nil, false, fmt.Errorf("user id and external id are required")
	}

	existing, err := s.repo.GetVideoByExternalID(ctx, userID, externalID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := time.Now()
	video := &Video{
		ID:           NewID(),
		UserID:       userID,
		ExternalID:   externalID,
		ThumbnailURL: ThumbnailURL(externalID),
		ImportStage:  StageCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateVideo(ctx, video); err != nil {
		return nil, false, err
	}

	if s.logger != nil {
		s.logger.Info("video created", "video_id", video.ID, "external_id", externalID, "user_id", userID)
	}
	return video, true, nil
}

func (s *Service) GetVideo(ctx context.Context, id string) (*Video, error) {
	v, err := s.repo.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *Service) ListVideos(ctx context.Context, userID string) ([]*Video, error) {
	return s.repo.ListVideos(ctx, userID)
}

func (s *Service) DeleteVideo(ctx context.Context, id string) error {
	if _, err := s.GetVideo(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteVideo(ctx, id)
}

// GetEnrichment returns the video's record, or a pending placeholder when
// no enrichment has been attempted yet.
func (s *Service) GetEnrichment(ctx context.Context, videoID string) (*Enrichment, error) {
	if _, err := s.GetVideo(ctx, videoID); err != nil {
		return nil, err
	}
	e, err := s.repo.GetEnrichment(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return &Enrichment{VideoID: videoID, Status: StatusPending}, nil
	}
	return e, nil
}

// RetryEnrichment resets a record to pending, increments retry_count and
// clears error_message. A processing record yields ErrConflict.
func (s *Service) RetryEnrichment(ctx context.Context, videoID string) error {
	if _, err := s.GetVideo(ctx, videoID); err != nil {
		return err
	}

	err := s.repo.ResetEnrichmentForRetry(ctx, videoID)
	if errors.Is(err, ErrNotFound) {
		err = s.repo.UpsertEnrichment(ctx, &Enrichment{VideoID: videoID, Status: StatusPending, RetryCount: 1})
	}
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("enrichment reset for retry", "video_id", videoID)
	}
	return nil
}
