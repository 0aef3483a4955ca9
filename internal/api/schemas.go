package api

import (
	"time"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/catalog"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/chapters"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/media"
)

type HealthResponse struct {
	Status         string             `json:"status"`
	Version        string             `json:"version"`
	UptimeS        int64              `json:"uptime_s"`
	Workers        int                `json:"workers"`
	ActiveJobs     int                `json:"active_jobs"`
	BreakerOpen    bool               `json:"breaker_open"`
	Tools          []media.ToolStatus `json:"tools,omitempty"`
	ToolsProbedAt  string             `json:"tools_probed_at,omitempty"`
	ToolsAvailable bool               `json:"tools_available"`
}

type CreateVideoRequest struct {
	UserID     string `json:"user_id"`
	ExternalID string `json:"external_id"`
}

type CreateVideoResponse struct {
	VideoID      string `json:"video_id"`
	Stage        string `json:"stage"`
	Progress     int    `json:"progress"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type VideoResponse struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	ExternalID      string  `json:"external_id"`
	Title           string  `json:"title"`
	Channel         string  `json:"channel"`
	DurationSeconds float64 `json:"duration_seconds"`
	ThumbnailURL    string  `json:"thumbnail_url"`
	Stage           string  `json:"stage"`
	Progress        int     `json:"progress"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type VideosResponse struct {
	Videos []VideoResponse `json:"videos"`
}

type EnrichmentResponse struct {
	VideoID         string             `json:"video_id"`
	Status          string             `json:"status"`
	RetryCount      int                `json:"retry_count"`
	ProgressMessage string             `json:"progress_message"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	CaptionLanguage string             `json:"caption_language,omitempty"`
	CaptionSource   string             `json:"caption_source,omitempty"`
	HasCaptions     bool               `json:"has_captions"`
	HasTranscript   bool               `json:"has_transcript"`
	Chapters        []chapters.Chapter `json:"chapters"`
	ChaptersSource  string             `json:"chapters_source,omitempty"`
	UpdatedAt       string             `json:"updated_at,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func VideoToResponse(v *catalog.Video) VideoResponse {
	return VideoResponse{
		ID:              v.ID,
		UserID:          v.UserID,
		ExternalID:      v.ExternalID,
		Title:           v.Title,
		Channel:         v.Channel,
		DurationSeconds: v.DurationSeconds,
		ThumbnailURL:    v.ThumbnailURL,
		Stage:           string(v.ImportStage),
		Progress:        v.ImportProgress,
		CreatedAt:       v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       v.UpdatedAt.Format(time.RFC3339),
	}
}

func EnrichmentToResponse(e *catalog.Enrichment) EnrichmentResponse {
	resp := EnrichmentResponse{
		VideoID:         e.VideoID,
		Status:          e.Status,
		RetryCount:      e.RetryCount,
		ProgressMessage: e.ProgressMessage,
		ErrorMessage:    e.ErrorMessage,
		CaptionLanguage: e.CaptionLanguage,
		CaptionSource:   e.CaptionSource,
		HasCaptions:     e.CaptionTrack != "",
		HasTranscript:   e.TranscriptText != "" || e.CaptionTrack != "",
		Chapters:        e.Chapters,
		ChaptersSource:  e.ChaptersSource,
	}
	if resp.Chapters == nil {
		resp.Chapters = []chapters.Chapter{}
	}
	if !e.UpdatedAt.IsZero() {
		resp.UpdatedAt = e.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}
