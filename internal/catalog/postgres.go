package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS videos (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    external_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    channel TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    thumbnail_url TEXT NOT NULL DEFAULT '',
    import_stage TEXT NOT NULL DEFAULT 'created',
    import_progress INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (user_id, external_id)
);
CREATE INDEX IF NOT EXISTS idx_videos_user ON videos(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_videos_stage ON videos(import_stage);

CREATE TABLE IF NOT EXISTS video_enrichments (
    id TEXT PRIMARY KEY,
    video_id TEXT NOT NULL UNIQUE REFERENCES videos(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'pending',
    caption_track TEXT,
    caption_language TEXT,
    caption_source TEXT,
    transcript_text TEXT,
    chapters_json JSONB,
    chapters_source TEXT,
    error_message TEXT,
    retry_count INTEGER NOT NULL DEFAULT 0,
    progress_message TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_video_enrichments_status ON video_enrichments(status);
`

// PGRepository stores videos in Postgres. It is selected when a database
// URL is configured.
type PGRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// ConnectPostgres opens a pool, applies the schema and resets enrichment
// runs interrupted by a previous process.
func ConnectPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*PGRepository, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PGRepository{pool: pool, logger: logger}
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := r.markInterrupted(ctx); err != nil {
		logger.Warn("failed to mark interrupted enrichments", "error", err)
	}

	logger.Info("postgres connected", "host", config.ConnConfig.Host)
	return r, nil
}

func (r *PGRepository) Close() {
	r.pool.Close()
}

func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, pgSchema)
	return err
}

func (r *PGRepository) markInterrupted(ctx context.Context) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE video_enrichments SET status = 'pending', progress_message = 'interrupted by restart', updated_at = now()
		WHERE status = 'processing'
	`)
	if err != nil {
		return err
	}
	if n := tag.RowsAffected(); n > 0 {
		r.logger.Info("reset interrupted enrichments", "count", n)
	}
	return nil
}

func (r *PGRepository) CreateVideo(ctx context.Context, v *Video) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO videos (`+videoColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, v.ID, v.UserID, v.ExternalID, v.Title, v.Channel, v.Description, v.DurationSeconds, v.ThumbnailURL,
		string(v.ImportStage), v.ImportProgress, v.CreatedAt, v.UpdatedAt)
	return err
}

func (r *PGRepository) GetVideo(ctx context.Context, id string) (*Video, error) {
	return pgScanVideo(r.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
}

func (r *PGRepository) GetVideoByExternalID(ctx context.Context, userID, externalID string) (*Video, error) {
	return pgScanVideo(r.pool.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE user_id = $1 AND external_id = $2`, userID, externalID))
}

func (r *PGRepository) ListVideos(ctx context.Context, userID string) ([]*Video, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+videoColumns+` FROM videos WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return pgCollectVideos(rows)
}

func (r *PGRepository) ListVideosNeedingEnrichment(ctx context.Context) ([]*Video, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+videoColumns+` FROM videos
		WHERE import_stage NOT IN ('complete', 'error')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	return pgCollectVideos(rows)
}

func (r *PGRepository) DeleteVideo(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM videos WHERE id = $1", id)
	return err
}

func (r *PGRepository) UpdateVideoMetadata(ctx context.Context, id, title, channel, description string, duration float64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE videos SET title = $1, channel = $2, description = $3, duration_seconds = $4, updated_at = now() WHERE id = $5
	`, title, channel, description, duration, id)
	return err
}

func (r *PGRepository) UpdateImportState(ctx context.Context, id string, stage Stage, progress int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE videos SET import_stage = $1, import_progress = $2, updated_at = now() WHERE id = $3
	`, string(stage), progress, id)
	return err
}

func (r *PGRepository) GetEnrichment(ctx context.Context, videoID string) (*Enrichment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, video_id, status, COALESCE(caption_track, ''), COALESCE(caption_language, ''),
			COALESCE(caption_source, ''), COALESCE(transcript_text, ''), COALESCE(chapters_json::text, ''),
			COALESCE(chapters_source, ''), COALESCE(error_message, ''), retry_count, progress_message,
			created_at, updated_at
		FROM video_enrichments WHERE video_id = $1
	`, videoID)

	var e Enrichment
	var chaptersJSON string
	err := row.Scan(&e.ID, &e.VideoID, &e.Status, &e.CaptionTrack, &e.CaptionLanguage, &e.CaptionSource,
		&e.TranscriptText, &chaptersJSON, &e.ChaptersSource, &e.ErrorMessage, &e.RetryCount, &e.ProgressMessage,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if e.Chapters, err = decodeChapters(chaptersJSON); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PGRepository) UpsertEnrichment(ctx context.Context, e *Enrichment) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	chaptersJSON, err := encodeChapters(e.Chapters)
	if err != nil {
		return err
	}
	var chaptersArg any
	if chaptersJSON.Valid {
		chaptersArg = chaptersJSON.String
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO video_enrichments (`+enrichmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (video_id) DO UPDATE SET
			status = excluded.status,
			caption_track = excluded.caption_track,
			caption_language = excluded.caption_language,
			caption_source = excluded.caption_source,
			transcript_text = excluded.transcript_text,
			chapters_json = excluded.chapters_json,
			chapters_source = excluded.chapters_source,
			error_message = excluded.error_message,
			retry_count = excluded.retry_count,
			progress_message = excluded.progress_message,
			updated_at = excluded.updated_at
	`, e.ID, e.VideoID, e.Status, nullable(e.CaptionTrack), nullable(e.CaptionLanguage), nullable(e.CaptionSource),
		nullable(e.TranscriptText), chaptersArg, nullable(e.ChaptersSource), nullable(e.ErrorMessage),
		e.RetryCount, e.ProgressMessage, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *PGRepository) UpdateEnrichmentStatus(ctx context.Context, videoID, status, progressMessage string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE video_enrichments SET status = $1, progress_message = $2, updated_at = now() WHERE video_id = $3
	`, status, progressMessage, videoID)
	return err
}

func (r *PGRepository) ResetEnrichmentForRetry(ctx context.Context, videoID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE video_enrichments
		SET status = 'pending', retry_count = retry_count + 1, error_message = NULL,
			progress_message = '', updated_at = now()
		WHERE video_id = $1 AND status != 'processing'
	`, videoID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = r.pool.QueryRow(ctx, "SELECT status FROM video_enrichments WHERE video_id = $1", videoID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

func pgScanVideo(row pgx.Row) (*Video, error) {
	var v Video
	var stage string
	err := row.Scan(&v.ID, &v.UserID, &v.ExternalID, &v.Title, &v.Channel, &v.Description, &v.DurationSeconds,
		&v.ThumbnailURL, &stage, &v.ImportProgress, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v.ImportStage = Stage(stage)
	return &v, nil
}

func pgCollectVideos(rows pgx.Rows) ([]*Video, error) {
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		v, err := pgScanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
