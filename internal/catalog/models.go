package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/chapters"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("enrichment is already processing")
)

// Stage is a checkpoint in a video's import lifecycle.
type Stage string

const (
	StageCreated  Stage = "created"
	StageMetadata Stage = "metadata"
	StageCaptions Stage = "captions"
	StageChapters Stage = "chapters"
	StageComplete Stage = "complete"
	StageError    Stage = "error"
)

type Video struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ExternalID      string    `json:"external_id"`
	Title           string    `json:"title"`
	Channel         string    `json:"channel"`
	Description     string    `json:"description,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	ImportStage     Stage     `json:"import_stage"`
	ImportProgress  int       `json:"import_progress"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasMetadata reports whether the metadata step has filled in the video.
func (v *Video) HasMetadata() bool {
	return v.Title != "" || v.DurationSeconds > 0
}

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// Enrichment is the 1:1 enrichment record of a video. It is created on the
// first enrichment attempt and mutated in place afterwards.
type Enrichment struct {
	ID              string             `json:"id"`
	VideoID         string             `json:"video_id"`
	Status          string             `json:"status"`
	CaptionTrack    string             `json:"-"`
	CaptionLanguage string             `json:"caption_language,omitempty"`
	CaptionSource   string             `json:"caption_source,omitempty"`
	TranscriptText  string             `json:"-"`
	Chapters        []chapters.Chapter `json:"chapters,omitempty"`
	ChaptersSource  string             `json:"chapters_source,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	RetryCount      int                `json:"retry_count"`
	ProgressMessage string             `json:"progress_message"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func NewID() string {
	return uuid.NewString()
}

// ThumbnailURL derives a video's thumbnail from its external id alone.
func ThumbnailURL(externalID string) string {
	return "https://i.ytimg.com/vi/" + externalID + "/hqdefault.jpg"
}
