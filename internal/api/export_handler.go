package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/export"
	"github.com/go-chi/chi/v5"
)

func downloadHandler(cfg ServerConfig, format export.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		video, err := cfg.CatalogService.GetVideo(r.Context(), id)
		if err != nil {
			writeServiceError(cfg, w, r, err)
			return
		}
		rec, err := cfg.CatalogService.GetEnrichment(r.Context(), id)
		if err != nil {
			writeServiceError(cfg, w, r, err)
			return
		}

		dl, err := export.Render(format, video, rec)
		if errors.Is(err, export.ErrNoContent) {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("no %s available for this video", format), "NO_CONTENT")
			return
		}
		if err != nil {
			cfg.Logger.Error("export failed", "video_id", id, "format", format, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to render export", "INTERNAL_ERROR")
			return
		}

		w.Header().Set("Content-Type", dl.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write([]byte(dl.Body))
		}
	}
}
