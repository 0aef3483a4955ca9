package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/catalog"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/media"
)

// VideoImporter starts and restarts background imports.
type VideoImporter interface {
	Import(ctx context.Context, userID, externalID string) (*catalog.Video, error)
	Retry(ctx context.Context, videoID string) (*catalog.Video, error)
}

// Breaker reports whether provider traffic is currently cut off.
type Breaker interface {
	IsOpen() bool
}

// WorkerStats reports worker pool occupancy.
type WorkerStats interface {
	Workers() int
	Active() int
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port           int
	CatalogService catalog.CatalogService
	Importer       VideoImporter
	Doctor         *media.CachedDoctor
	Breaker        Breaker
	Workers        WorkerStats
	Logger         *slog.Logger
	StartTime      time.Time
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
