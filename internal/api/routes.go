package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/catalog"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/config"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/export"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/jobs"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/logging"
	"github.com/go-chi/chi/v5"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Post("/videos", createVideoHandler(cfg))
	r.Get("/users/{userID}/videos", listVideosHandler(cfg))

	r.Route("/videos/{id}", func(r chi.Router) {
		r.Get("/", getVideoHandler(cfg))
		r.Delete("/", deleteVideoHandler(cfg))
		r.Get("/enrichment", getEnrichmentHandler(cfg))
		r.Post("/enrichment/retry", retryEnrichmentHandler(cfg))
		r.Get("/captions.vtt", downloadHandler(cfg, export.FormatVTT))
		r.Get("/transcript.txt", downloadHandler(cfg, export.FormatTranscript))
		r.Get("/chapters.edl", downloadHandler(cfg, export.FormatEDL))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = config.Version
		}
		resp := HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		}

		if cfg.Workers != nil {
			resp.Workers = cfg.Workers.Workers()
			resp.ActiveJobs = cfg.Workers.Active()
		}
		if cfg.Breaker != nil {
			resp.BreakerOpen = cfg.Breaker.IsOpen()
		}

		if cfg.Doctor != nil {
			caps, err := cfg.Doctor.Get(r.Context())
			if err == nil && caps != nil {
				resp.Tools = caps.Tools
				resp.ToolsAvailable = caps.AllAvailable()
				if !caps.ProbedAt.IsZero() {
					resp.ToolsProbedAt = caps.ProbedAt.Format(time.RFC3339)
				}
			}
			if !resp.ToolsAvailable {
				resp.Status = "degraded"
			}
		}
		if resp.BreakerOpen {
			resp.Status = "degraded"
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func createVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateVideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		req.UserID = strings.TrimSpace(req.UserID)
		req.ExternalID = strings.TrimSpace(req.ExternalID)
		if req.UserID == "" || req.ExternalID == "" {
			WriteError(w, http.StatusBadRequest, "user_id and external_id are required", "BAD_REQUEST")
			return
		}

		video, err := cfg.Importer.Import(r.Context(), req.UserID, req.ExternalID)
		if err != nil {
			writeServiceError(cfg, w, r, err)
			return
		}

		WriteJSON(w, http.StatusAccepted, CreateVideoResponse{
			VideoID:      video.ID,
			Stage:        string(video.ImportStage),
			Progress:     video.ImportProgress,
			ThumbnailURL: video.ThumbnailURL,
		})
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if userID == "" {
			WriteError(w, http.StatusBadRequest, "user id required", "BAD_REQUEST")
			return
		}

		videos, err := cfg.CatalogService.ListVideos(r.Context(), userID)
		if err != nil {
			writeServiceError(cfg, w, r, err)
			return
		}

		resp := VideosResponse{Videos: make([]VideoResponse, len(videos))}
		for i, v := range videos {
			resp.Videos[i] = VideoToResponse(v)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, err := cfg.CatalogService.GetVideo(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(cfg, w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, VideoToResponse(video))
	}
}

func deleteVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.CatalogService.DeleteVideo(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(cfg, w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getEnrichmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := cfg.CatalogService.GetEnrichment(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(cfg, w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, EnrichmentToResponse(rec))
	}
}

func retryEnrichmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		video, err := cfg.Importer.Retry(r.Context(), id)
		if err != nil {
			writeServiceError(cfg, w, r, err)
			return
		}

		rec, err := cfg.CatalogService.GetEnrichment(r.Context(), video.ID)
		if err != nil {
			writeServiceError(cfg, w, r, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, EnrichmentToResponse(rec))
	}
}

// writeServiceError maps domain errors onto the {error, code} body.
func writeServiceError(cfg ServerConfig, w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		WriteError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
	case errors.Is(err, catalog.ErrConflict), errors.Is(err, jobs.ErrDuplicate):
		WriteError(w, http.StatusConflict, "enrichment is already in progress", "CONFLICT")
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrStopped):
		WriteError(w, http.StatusServiceUnavailable, "job queue unavailable, try again later", "UNAVAILABLE")
	default:
		requestID, _ := r.Context().Value(RequestIDKey).(string)
		logging.WithRequestID(cfg.Logger, requestID).Error("request failed", "path", r.URL.Path, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
