package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/chapters"
)

// Repository persists videos and their enrichment records. Lookups return
// nil, nil when the row does not exist.
type Repository interface {
	CreateVideo(ctx context.Context, video *Video) error
	GetVideo(ctx context.Context, id string) (*Video, error)
	GetVideoByExternalID(ctx context.Context, userID, externalID string) (*Video, error)
	ListVideos(ctx context.Context, userID string) ([]*Video, error)
	DeleteVideo(ctx context.Context, id string) error
	UpdateVideoMetadata(ctx context.Context, id, title, channel, description string, duration float64) error
	UpdateImportState(ctx context.Context, id string, stage Stage, progress int) error
	ListVideosNeedingEnrichment(ctx context.Context) ([]*Video, error)

	GetEnrichment(ctx context.Context, videoID string) (*Enrichment, error)
	UpsertEnrichment(ctx context.Context, e *Enrichment) error
	UpdateEnrichmentStatus(ctx context.Context, videoID, status, progressMessage string) error
	ResetEnrichmentForRetry(ctx context.Context, videoID string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const videoColumns = `id, user_id, external_id, title, channel, description, duration_seconds, thumbnail_url, import_stage, import_progress, created_at, updated_at`

func (r *SQLiteRepository) CreateVideo(ctx context.Context, v *Video) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (`+videoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.UserID, v.ExternalID, v.Title, v.Channel, v.Description, v.DurationSeconds, v.ThumbnailURL,
		string(v.ImportStage), v.ImportProgress, formatTime(v.CreatedAt), formatTime(v.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetVideo(ctx context.Context, id string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	return scanVideo(row)
}

func (r *SQLiteRepository) GetVideoByExternalID(ctx context.Context, userID, externalID string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE user_id = ? AND external_id = ?`, userID, externalID)
	return scanVideo(row)
}

func (r *SQLiteRepository) ListVideos(ctx context.Context, userID string) ([]*Video, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

func (r *SQLiteRepository) ListVideosNeedingEnrichment(ctx context.Context) ([]*Video, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+videoColumns+` FROM videos
		WHERE import_stage NOT IN ('complete', 'error')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

func (r *SQLiteRepository) DeleteVideo(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) UpdateVideoMetadata(ctx context.Context, id, title, channel, description string, duration float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE videos SET title = ?, channel = ?, description = ?, duration_seconds = ?, updated_at = ? WHERE id = ?
	`, title, channel, description, duration, formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) UpdateImportState(ctx context.Context, id string, stage Stage, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE videos SET import_stage = ?, import_progress = ?, updated_at = ? WHERE id = ?
	`, string(stage), progress, formatTime(time.Now()), id)
	return err
}

const enrichmentColumns = `id, video_id, status, caption_track, caption_language, caption_source, transcript_text, chapters_json, chapters_source, error_message, retry_count, progress_message, created_at, updated_at`

func (r *SQLiteRepository) GetEnrichment(ctx context.Context, videoID string) (*Enrichment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+enrichmentColumns+` FROM video_enrichments WHERE video_id = ?`, videoID)

	var e Enrichment
	var track, lang, source, transcript, chaptersJSON, chaptersSource, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&e.ID, &e.VideoID, &e.Status, &track, &lang, &source, &transcript, &chaptersJSON,
		&chaptersSource, &errMsg, &e.RetryCount, &e.ProgressMessage, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.CaptionTrack = track.String
	e.CaptionLanguage = lang.String
	e.CaptionSource = source.String
	e.TranscriptText = transcript.String
	e.ChaptersSource = chaptersSource.String
	e.ErrorMessage = errMsg.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	if e.Chapters, err = decodeChapters(chaptersJSON.String); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpsertEnrichment writes the whole record keyed by video id.
func (r *SQLiteRepository) UpsertEnrichment(ctx context.Context, e *Enrichment) error {
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

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO video_enrichments (`+enrichmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
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
	`, e.ID, e.VideoID, e.Status, nullString(e.CaptionTrack), nullString(e.CaptionLanguage), nullString(e.CaptionSource),
		nullString(e.TranscriptText), chaptersJSON, nullString(e.ChaptersSource), nullString(e.ErrorMessage),
		e.RetryCount, e.ProgressMessage, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	return err
}

func (r *SQLiteRepository) UpdateEnrichmentStatus(ctx context.Context, videoID, status, progressMessage string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE video_enrichments SET status = ?, progress_message = ?, updated_at = ? WHERE video_id = ?
	`, status, progressMessage, formatTime(time.Now()), videoID)
	return err
}

// ResetEnrichmentForRetry moves a record back to pending unless a run is
// processing it. It returns ErrConflict for a processing record and
// ErrNotFound when the video has no record.
func (r *SQLiteRepository) ResetEnrichmentForRetry(ctx context.Context, videoID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE video_enrichments
		SET status = 'pending', retry_count = retry_count + 1, error_message = NULL,
			progress_message = '', updated_at = ?
		WHERE video_id = ? AND status != 'processing'
	`, formatTime(time.Now()), videoID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var status string
	err = r.db.QueryRowContext(ctx, "SELECT status FROM video_enrichments WHERE video_id = ?", videoID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*Video, error) {
	var v Video
	var stage, createdAt, updatedAt string

	err := row.Scan(&v.ID, &v.UserID, &v.ExternalID, &v.Title, &v.Channel, &v.Description, &v.DurationSeconds,
		&v.ThumbnailURL, &stage, &v.ImportProgress, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v.ImportStage = Stage(stage)
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

func collectVideos(rows *sql.Rows) ([]*Video, error) {
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func encodeChapters(list []chapters.Chapter) (sql.NullString, error) {
	if list == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode chapters: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeChapters(raw string) ([]chapters.Chapter, error) {
	if raw == "" {
		return nil, nil
	}
	var list []chapters.Chapter
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode chapters: %w", err)
	}
	return list, nil
}

// timeLayout has a fixed-width fraction so stored values sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
