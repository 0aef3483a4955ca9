package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/api"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/audio"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/catalog"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/config"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/db"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/enrichment"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/importer"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/jobs"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/logging"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/media"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/providers"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/ratelimit"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/transcribe"
)

const infoCacheTTL = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.AudioDir(), 0755); err != nil {
		return fmt.Errorf("failed to create audio dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting enricher",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", cfg.DataDir(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	publisher, closePublisher := openPublisher(ctx, cfg, logger)
	defer closePublisher()

	catalogSvc := catalog.NewService(repo, logger)

	limiter := ratelimit.New(ratelimit.Config{
		MaxConcurrent:    cfg.STTConcurrency(),
		BaseDelay:        cfg.LimiterBaseDelay(),
		MaxDelay:         cfg.LimiterMaxDelay(),
		BackoffFactor:    cfg.LimiterBackoff(),
		RecoveryFactor:   cfg.LimiterRecovery(),
		FailureThreshold: cfg.BreakerThreshold(),
		Cooldown:         cfg.BreakerCooldown(),
	}, logger)

	cmdRunner := media.NewSubprocessRunner(logger)
	ytdlp := media.NewYtDlp(cmdRunner, cfg.YtDlpPath(), logger)
	ffmpeg := media.NewFFmpeg(cmdRunner, cfg.FFmpegPath(), cfg.FFprobePath(), logger)
	info := media.NewInfoCache(ytdlp, infoCacheTTL, logger)

	doctor := media.NewCachedDoctor(logger)
	doctor.Register("yt-dlp", ytdlp)
	doctor.Register("ffmpeg", ffmpeg)

	probeCtx, probeCancel := context.WithTimeout(ctx, 10*time.Second)
	if caps, err := doctor.Refresh(probeCtx); err == nil && !caps.AllAvailable() {
		logger.Warn("some external tools are missing, enrichment will degrade", "tools", caps.Tools)
	}
	probeCancel()

	languages := providers.NewLanguagePreference(cfg.SecondaryLanguage(), cfg.PreferredLanguages()...)
	if cfg.STTAPIKey() == "" {
		logger.Warn("speech-to-text API key not set, transcription fallback will fail")
	}
	stt := transcribe.NewWhisperHTTP(cfg.STTURL(), cfg.STTAPIKey(), cfg.STTModel(), logger)
	transcriber := transcribe.NewClient(stt, limiter, transcribe.Config{
		Concurrency: cfg.STTConcurrency(),
		Interval:    cfg.STTInterval(),
	}, logger)
	chunker := audio.NewChunker(ytdlp, ffmpeg, cfg.AudioDir(), logger)

	chain := providers.NewChain(logger,
		providers.NewManualProvider(info, ytdlp, languages),
		providers.NewAutoProvider(info, ytdlp, languages),
		providers.NewSpeechToTextProvider(chunker, transcriber),
	)

	enricher := enrichment.NewEnricher(repo, chain, info, logger)
	tracker := importer.NewTracker(repo, publisher, logger)

	var imp *importer.Importer
	pool := jobs.NewPool(jobs.Config{
		Workers:     cfg.Workers(),
		QueueSize:   cfg.QueueSize(),
		JobTimeout:  cfg.JobTimeout(),
		MaxAttempts: cfg.MaxAttempts(),
		RetryDelay:  cfg.RetryDelay(),
		OnExhausted: func(ctx context.Context, videoID string, err error) {
			imp.Exhausted(ctx, videoID, err)
		},
		OnFailed: func(ctx context.Context, videoID string, err error) {
			imp.Failed(ctx, videoID, err)
		},
	}, logger)

	imp = importer.New(importer.Config{
		Service:         catalogSvc,
		Repo:            repo,
		Metadata:        info,
		Enricher:        enricher,
		Tracker:         tracker,
		Scheduler:       pool,
		MetadataTimeout: cfg.MetadataTimeout(),
		Logger:          logger,
	})

	pool.Start(ctx, imp.Process)

	if n, err := imp.Resume(ctx); err != nil {
		logger.Error("failed to resume unfinished imports", "error", err)
	} else if n > 0 {
		logger.Info("resumed unfinished imports", "count", n)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		CatalogService: catalogSvc,
		Importer:       imp,
		Doctor:         doctor,
		Breaker:        limiter,
		Workers:        pool,
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("HTTP server error", "error", err)
		runErr = err
	}

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	cancel()
	pool.Stop()

	logger.Info("shutdown complete")
	return runErr
}

// openRepository returns Postgres when a database URL is configured and the
// embedded SQLite file otherwise.
func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (catalog.Repository, func(), error) {
	if url := cfg.DatabaseURL(); url != "" {
		repo, err := catalog.ConnectPostgres(ctx, url, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		logger.Info("using postgres repository")
		return repo, repo.Close, nil
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("using sqlite repository", "path", cfg.DBPath())
	return catalog.NewRepository(database.Conn()), func() { database.Close() }, nil
}

// openPublisher always logs progress events and additionally fans them out
// over Redis when configured. A Redis outage at startup is not fatal.
func openPublisher(ctx context.Context, cfg config.Config, logger *slog.Logger) (importer.Publisher, func()) {
	logPub := importer.NewLogPublisher(logger)
	url := cfg.RedisURL()
	if url == "" {
		return logPub, func() {}
	}

	redisPub, err := importer.NewRedisPublisher(ctx, url, logger)
	if err != nil {
		logger.Warn("redis unavailable, progress events are logged only",
			"redis_url", logging.SanitizeToken(url),
			"error", err,
		)
		return logPub, func() {}
	}
	return importer.MultiPublisher{logPub, redisPub}, func() { redisPub.Close() }
}
