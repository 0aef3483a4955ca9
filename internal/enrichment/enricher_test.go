package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/captions"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/catalog"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/chapters"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/db"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/errclass"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/providers"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupStore(t *testing.T) *catalog.SQLiteRepository {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return catalog.NewRepository(database.Conn())
}

func createVideo(t *testing.T, store *catalog.SQLiteRepository, description string) *catalog.Video {
	t.Helper()

	svc := catalog.NewService(store, nil)
	video, _, err := svc.CreateVideo(context.Background(), "user-1", "abc123")
	require.NoError(t, err)
	require.NoError(t, store.UpdateVideoMetadata(context.Background(), video.ID, "Title", "Channel", description, 900))

	video, err = svc.GetVideo(context.Background(), video.ID)
	require.NoError(t, err)
	return video
}

type fakeProvider struct {
	name  string
	calls atomic.Int32
	fetch func(ctx context.Context) (*providers.CaptionResult, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(ctx context.Context, externalID string, duration float64) (*providers.CaptionResult, error) {
	f.calls.Add(1)
	if f.fetch == nil {
		return nil, nil
	}
	return f.fetch(ctx)
}

func nothing(name string) *fakeProvider { return &fakeProvider{name: name} }

func failing(name string, err error) *fakeProvider {
	return &fakeProvider{name: name, fetch: func(context.Context) (*providers.CaptionResult, error) { return nil, err }}
}

func autoCaptions() *fakeProvider {
	return &fakeProvider{name: "auto", fetch: func(context.Context) (*providers.CaptionResult, error) {
		cues := []captions.Cue{
			{Start: 0, End: 2, Text: "hello world"},
			{Start: 2, End: 4, Text: "hello world how are you"},
		}
		return &providers.CaptionResult{
			Track:      captions.Track{Cues: cues, Language: "en", Source: captions.SourceAuto},
			VTT:        captions.GenerateTrack(cues),
			Transcript: captions.ToPlainText(cues),
		}, nil
	}}
}

type fakePlatform struct {
	list []chapters.Chapter
	err  error
}

func (f *fakePlatform) Chapters(ctx context.Context, externalID string) ([]chapters.Chapter, error) {
	return f.list, f.err
}

const threeChapterDescription = `Thanks for watching!

0:00 Intro
5:00 - The main part
10:00 | Wrap up

Links below.`

type stageRecorder struct {
	mu     sync.Mutex
	stages []catalog.Stage
}

func (r *stageRecorder) record(ctx context.Context, stage catalog.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func TestRun_AutoCaptionsAndDescriptionChapters(t *testing.T) {
	store := setupStore(t)
	video := createVideo(t, store, threeChapterDescription)

	manual, stt := nothing("manual"), nothing("speech-to-text")
	chain := providers.NewChain(testLogger(), manual, autoCaptions(), stt)
	enricher := NewEnricher(store, chain, &fakePlatform{}, testLogger())

	stages := &stageRecorder{}
	rec, err := enricher.Run(context.Background(), video, stages.record)
	require.NoError(t, err)

	assert.Equal(t, catalog.StatusCompleted, rec.Status)
	assert.Equal(t, int32(0), stt.calls.Load())
	assert.Equal(t, []catalog.Stage{catalog.StageCaptions, catalog.StageChapters}, stages.stages)

	stored, err := store.GetEnrichment(context.Background(), video.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusCompleted, stored.Status)
	assert.Equal(t, "auto", stored.CaptionSource)
	assert.Equal(t, "en", stored.CaptionLanguage)
	assert.Equal(t, "hello world how are you", stored.TranscriptText)
	assert.Equal(t, MessageDone, stored.ProgressMessage)
	assert.Equal(t, "description", stored.ChaptersSource)
	require.Len(t, stored.Chapters, 3)
	assert.Equal(t, "The main part", stored.Chapters[1].Title)
	assert.Equal(t, []float64{300, 600, 900}, []float64{stored.Chapters[0].End, stored.Chapters[1].End, stored.Chapters[2].End})
}

func TestRun_PlatformChaptersPreferred(t *testing.T) {
	store := setupStore(t)
	video := createVideo(t, store, threeChapterDescription)

	platform := &fakePlatform{list: []chapters.Chapter{{Title: "Only", Start: 0}, {Title: "Second", Start: 450}}}
	enricher := NewEnricher(store, providers.NewChain(testLogger(), autoCaptions()), platform, testLogger())

	rec, err := enricher.Run(context.Background(), video, nil)
	require.NoError(t, err)
	assert.Equal(t, "platform", rec.ChaptersSource)
	require.Len(t, rec.Chapters, 2)
	assert.Equal(t, 450.0, rec.Chapters[0].End)
}

func TestRun_NothingAnywhereIsPartial(t *testing.T) {
	store := setupStore(t)
	video := createVideo(t, store, "No timestamps here. 3:00 is mentioned only once.")

	chain := providers.NewChain(testLogger(), nothing("manual"), nothing("auto"), nothing("speech-to-text"))
	rec, err := NewEnricher(store, chain, &fakePlatform{}, testLogger()).Run(context.Background(), video, nil)
	require.NoError(t, err)

	assert.Equal(t, catalog.StatusPartial, rec.Status)
	assert.Empty(t, rec.ErrorMessage)
	assert.Nil(t, rec.Chapters)
}

func TestRun_ChaptersOnlyIsPartial(t *testing.T) {
	store := setupStore(t)
	video := createVideo(t, store, threeChapterDescription)

	chain := providers.NewChain(testLogger(), nothing("manual"), nothing("auto"))
	rec, err := NewEnricher(store, chain, &fakePlatform{}, testLogger()).Run(context.Background(), video, nil)
	require.NoError(t, err)

	assert.Equal(t, catalog.StatusPartial, rec.Status)
	assert.Len(t, rec.Chapters, 3)
}

func TestRun_PermanentCaptionErrorFails(t *testing.T) {
	store := setupStore(t)
	video := createVideo(t, store, "")

	chain := providers.NewChain(testLogger(), failing("manual", errors.New("ERROR: [youtube] abc123: Private video. Sign in if you've been granted access")))
	rec, err := NewEnricher(store, chain, &fakePlatform{}, testLogger()).Run(context.Background(), video, nil)
	require.NoError(t, err)

	assert.Equal(t, catalog.StatusFailed, rec.Status)
	assert.Equal(t, "This video is private.", rec.ErrorMessage)

	stored, _ := store.GetEnrichment(context.Background(), video.ID)
	assert.Equal(t, catalog.StatusFailed, stored.Status)
	assert.NotContains(t, stored.ErrorMessage, "abc123")
}

func TestRun_RetryableErrorRevertsToPending(t *testing.T) {
	store := setupStore(t)
	video := createVideo(t, store, "")

	chain := providers.NewChain(testLogger(), failing("manual", errors.New("HTTP Error 429: Too Many Requests")), nothing("auto"))
	rec, err := NewEnricher(store, chain, &fakePlatform{}, testLogger()).Run(context.Background(), video, nil)

	var te *errclass.TemporaryError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, catalog.StatusPending, rec.Status)
	assert.Empty(t, rec.ErrorMessage)

	stored, _ := store.GetEnrichment(context.Background(), video.ID)
	assert.Equal(t, catalog.StatusPending, stored.Status)
	assert.Equal(t, MessageWaitingRetry, stored.ProgressMessage)
}

func TestRun_ChapterFailureDoesNotBlockCaptions(t *testing.T) {
	store := setupStore(t)
	video := createVideo(t, store, "")

	platform := &fakePlatform{err: errors.New("connection reset by peer")}
	rec, err := NewEnricher(store, providers.NewChain(testLogger(), autoCaptions()), platform, testLogger()).Run(context.Background(), video, nil)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusCompleted, rec.Status)
	assert.Nil(t, rec.Chapters)
}

func TestRun_ProgressMessagesPersisted(t *testing.T) {
	store := setupStore(t)
	video := createVideo(t, store, "")

	var seen []string
	stt := &fakeProvider{name: "speech-to-text", fetch: func(ctx context.Context) (*providers.CaptionResult, error) {
		rec, err := store.GetEnrichment(ctx, video.ID)
		if err == nil && rec != nil {
			seen = append(seen, rec.Status+":"+rec.ProgressMessage)
		}
		return nil, nil
	}}
	chain := providers.NewChain(testLogger(), stt)

	_, err := NewEnricher(store, chain, &fakePlatform{}, testLogger()).Run(context.Background(), video, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"processing:" + MessageFetchingCaptions}, seen)
}

func TestDecide(t *testing.T) {
	permanent := &errclass.PermanentError{Message: "This video could not be found.", Err: errors.New("Video unavailable")}
	temporary := &errclass.TemporaryError{Message: errclass.MessageTryLater, Err: errors.New("timeout")}

	tests := []struct {
		name       string
		captions   bool
		chapters   bool
		captionErr error
		chapterErr error
		wantStatus string
		wantErrNil bool
	}{
		{"captions win", true, false, permanent, nil, catalog.StatusCompleted, true},
		{"chapters only", false, true, nil, nil, catalog.StatusPartial, true},
		{"chapters despite permanent caption error", false, true, permanent, nil, catalog.StatusPartial, true},
		{"nothing no error", false, false, nil, nil, catalog.StatusPartial, true},
		{"nothing permanent", false, false, permanent, nil, catalog.StatusFailed, false},
		{"nothing temporary", false, false, temporary, nil, catalog.StatusPending, false},
		{"temporary chapter error", false, false, nil, temporary, catalog.StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := decide(tt.captions, tt.chapters, tt.captionErr, tt.chapterErr)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantErrNil, err == nil)
		})
	}
}
