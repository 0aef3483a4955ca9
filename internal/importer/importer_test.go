package importer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/captions"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/catalog"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/chapters"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/db"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/enrichment"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/errclass"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/jobs"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/media"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/providers"
)

type fakeScheduler struct {
	mu        sync.Mutex
	submitted []string
	inFlight  map[string]bool
	err       error
}

func (s *fakeScheduler) Submit(videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.submitted = append(s.submitted, videoID)
	return nil
}

func (s *fakeScheduler) Reserve(videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[videoID] {
		return jobs.ErrDuplicate
	}
	s.inFlight[videoID] = true
	return nil
}

func (s *fakeScheduler) SubmitReserved(videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		delete(s.inFlight, videoID)
		return s.err
	}
	s.submitted = append(s.submitted, videoID)
	return nil
}

func (s *fakeScheduler) Release(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, videoID)
}

type fakeMetadata struct {
	info *media.VideoInfo
	err  error
}

func (f *fakeMetadata) Info(ctx context.Context, externalID string) (*media.VideoInfo, error) {
	return f.info, f.err
}

func (f *fakeMetadata) Chapters(ctx context.Context, externalID string) ([]chapters.Chapter, error) {
	return nil, nil
}

type captionStub struct {
	result *providers.CaptionResult
	err    error
}

func (c *captionStub) Name() string { return "stub" }

func (c *captionStub) Fetch(ctx context.Context, externalID string, duration float64) (*providers.CaptionResult, error) {
	return c.result, c.err
}

// stageSink records every published (stage, progress) pair.
type stageSink struct {
	mu     sync.Mutex
	events []ProgressMessage
}

func (s *stageSink) Publish(ctx context.Context, channel string, msg ProgressMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, msg)
	return nil
}

type harness struct {
	importer  *Importer
	repo      *catalog.SQLiteRepository
	scheduler *fakeScheduler
	sink      *stageSink
}

func newHarness(t *testing.T, meta *fakeMetadata, provider providers.CaptionProvider) *harness {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	repo := catalog.NewRepository(database.Conn())
	sink := &stageSink{}
	scheduler := &fakeScheduler{inFlight: map[string]bool{}}
	chain := providers.NewChain(testLogger(), provider)

	imp := New(Config{
		Service:   catalog.NewService(repo, nil),
		Repo:      repo,
		Metadata:  meta,
		Enricher:  enrichment.NewEnricher(repo, chain, meta, testLogger()),
		Tracker:   NewTracker(repo, sink, testLogger()),
		Scheduler: scheduler,
		Logger:    testLogger(),
	})
	return &harness{importer: imp, repo: repo, scheduler: scheduler, sink: sink}
}

func videoInfo() *media.VideoInfo {
	return &media.VideoInfo{
		Title:       "A talk",
		Channel:     "Conf",
		Duration:    900,
		Description: "0:00 Intro\n5:00 Middle\n10:00 End",
	}
}

func captionResult() *providers.CaptionResult {
	cues := []captions.Cue{{Start: 0, End: 2, Text: "hello"}}
	return &providers.CaptionResult{
		Track:      captions.Track{Cues: cues, Language: "en", Source: captions.SourceAuto},
		VTT:        captions.GenerateTrack(cues),
		Transcript: "hello",
	}
}

func TestImport_CreatesAndSchedules(t *testing.T) {
	h := newHarness(t, &fakeMetadata{info: videoInfo()}, &captionStub{})

	video, err := h.importer.Import(context.Background(), "u1", "abc")
	require.NoError(t, err)

	assert.Equal(t, catalog.StageMetadata, video.ImportStage)
	assert.Equal(t, 25, video.ImportProgress)
	assert.Equal(t, "A talk", video.Title)
	assert.Equal(t, "https://i.ytimg.com/vi/abc/hqdefault.jpg", video.ThumbnailURL)
	assert.Equal(t, []string{video.ID}, h.scheduler.submitted)

	stored, err := h.repo.GetVideo(context.Background(), video.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StageMetadata, stored.ImportStage)
	assert.Equal(t, 900.0, stored.DurationSeconds)
}

func TestImport_MetadataFailureStillCreates(t *testing.T) {
	h := newHarness(t, &fakeMetadata{err: errors.New("i/o timeout")}, &captionStub{})

	video, err := h.importer.Import(context.Background(), "u1", "abc")
	require.NoError(t, err)
	assert.Equal(t, catalog.StageCreated, video.ImportStage)
	assert.Len(t, h.scheduler.submitted, 1)
}

func TestImport_DuplicateIsNotRescheduled(t *testing.T) {
	h := newHarness(t, &fakeMetadata{info: videoInfo()}, &captionStub{})

	first, err := h.importer.Import(context.Background(), "u1", "abc")
	require.NoError(t, err)
	second, err := h.importer.Import(context.Background(), "u1", "abc")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, h.scheduler.submitted, 1)
}

func TestProcess_StagesAreMonotonic(t *testing.T) {
	meta := &fakeMetadata{err: errors.New("i/o timeout")}
	h := newHarness(t, meta, &captionStub{result: captionResult()})
	ctx := context.Background()

	video, err := h.importer.Import(ctx, "u1", "abc")
	require.NoError(t, err)

	meta.err, meta.info = nil, videoInfo()
	require.NoError(t, h.importer.Process(ctx, video.ID))

	var stages []catalog.Stage
	prev := -1
	for _, ev := range h.sink.events {
		assert.GreaterOrEqual(t, ev.Progress, prev)
		prev = ev.Progress
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []catalog.Stage{
		catalog.StageCreated,
		catalog.StageMetadata,
		catalog.StageCaptions,
		catalog.StageChapters,
		catalog.StageComplete,
	}, stages)

	stored, _ := h.repo.GetVideo(ctx, video.ID)
	assert.Equal(t, catalog.StageComplete, stored.ImportStage)
	assert.Equal(t, 100, stored.ImportProgress)

	rec, _ := h.repo.GetEnrichment(ctx, video.ID)
	assert.Equal(t, catalog.StatusCompleted, rec.Status)
	assert.Len(t, rec.Chapters, 3)
}

func TestProcess_PermanentFailureSetsErrorStage(t *testing.T) {
	provider := &captionStub{err: errors.New("Video unavailable. This video has been removed by the uploader")}
	meta := &fakeMetadata{info: &media.VideoInfo{Title: "gone", Duration: 60}}
	h := newHarness(t, meta, provider)
	ctx := context.Background()

	video, err := h.importer.Import(ctx, "u1", "abc")
	require.NoError(t, err)
	require.NoError(t, h.importer.Process(ctx, video.ID))

	stored, _ := h.repo.GetVideo(ctx, video.ID)
	assert.Equal(t, catalog.StageError, stored.ImportStage)

	rec, _ := h.repo.GetEnrichment(ctx, video.ID)
	assert.Equal(t, catalog.StatusFailed, rec.Status)
	assert.Equal(t, "This video could not be found.", rec.ErrorMessage)
}

func TestProcess_TemporaryFailureIsReturned(t *testing.T) {
	h := newHarness(t, &fakeMetadata{info: videoInfo()}, &captionStub{err: errors.New("connection refused")})
	ctx := context.Background()

	video, err := h.importer.Import(ctx, "u1", "abc")
	require.NoError(t, err)

	err = h.importer.Process(ctx, video.ID)
	var te *errclass.TemporaryError
	require.ErrorAs(t, err, &te)

	stored, _ := h.repo.GetVideo(ctx, video.ID)
	assert.NotEqual(t, catalog.StageError, stored.ImportStage)
	assert.NotEqual(t, catalog.StageComplete, stored.ImportStage)
}

func TestProcess_PermanentMetadataFailure(t *testing.T) {
	h := newHarness(t, &fakeMetadata{err: errors.New("ERROR: Private video")}, &captionStub{})
	ctx := context.Background()

	video, err := h.importer.Import(ctx, "u1", "abc")
	require.NoError(t, err)
	require.NoError(t, h.importer.Process(ctx, video.ID))

	stored, _ := h.repo.GetVideo(ctx, video.ID)
	assert.Equal(t, catalog.StageError, stored.ImportStage)
	rec, _ := h.repo.GetEnrichment(ctx, video.ID)
	assert.Equal(t, "This video is private.", rec.ErrorMessage)
}

func TestProcess_DeletedVideo(t *testing.T) {
	h := newHarness(t, &fakeMetadata{}, &captionStub{})
	assert.NoError(t, h.importer.Process(context.Background(), "missing"))
}

func TestRetry(t *testing.T) {
	h := newHarness(t, &fakeMetadata{info: videoInfo()}, &captionStub{err: errors.New("Private video")})
	ctx := context.Background()

	video, _ := h.importer.Import(ctx, "u1", "abc")
	require.NoError(t, h.importer.Process(ctx, video.ID))

	h.scheduler.inFlight[video.ID] = true
	_, err := h.importer.Retry(ctx, video.ID)
	assert.ErrorIs(t, err, catalog.ErrConflict)

	h.scheduler.inFlight[video.ID] = false
	retried, err := h.importer.Retry(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StageMetadata, retried.ImportStage)
	assert.Len(t, h.scheduler.submitted, 2)

	rec, _ := h.repo.GetEnrichment(ctx, video.ID)
	assert.Equal(t, catalog.StatusPending, rec.Status)
	assert.Equal(t, 1, rec.RetryCount)
	assert.Empty(t, rec.ErrorMessage)

	_, err = h.importer.Retry(ctx, "missing")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.False(t, h.scheduler.inFlight["missing"], "failed retry releases its claim")
}

func TestRetry_ConcurrentCallsScheduleOnce(t *testing.T) {
	h := newHarness(t, &fakeMetadata{info: videoInfo()}, &captionStub{err: errors.New("Private video")})
	ctx := context.Background()

	video, _ := h.importer.Import(ctx, "u1", "abc")
	require.NoError(t, h.importer.Process(ctx, video.ID))

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.importer.Retry(ctx, video.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, catalog.ErrConflict)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, h.scheduler.submitted, 2)

	rec, _ := h.repo.GetEnrichment(ctx, video.ID)
	assert.Equal(t, 1, rec.RetryCount)
}

func TestRetry_QueueFullReleasesClaim(t *testing.T) {
	h := newHarness(t, &fakeMetadata{info: videoInfo()}, &captionStub{err: errors.New("Private video")})
	ctx := context.Background()

	video, _ := h.importer.Import(ctx, "u1", "abc")
	require.NoError(t, h.importer.Process(ctx, video.ID))

	h.scheduler.err = jobs.ErrQueueFull
	_, err := h.importer.Retry(ctx, video.ID)
	assert.ErrorIs(t, err, jobs.ErrQueueFull)
	assert.False(t, h.scheduler.inFlight[video.ID])
}

func TestExhausted(t *testing.T) {
	h := newHarness(t, &fakeMetadata{info: &media.VideoInfo{Title: "t", Duration: 60}}, &captionStub{err: errors.New("connection reset by peer")})
	ctx := context.Background()

	video, _ := h.importer.Import(ctx, "u1", "abc")
	require.Error(t, h.importer.Process(ctx, video.ID))

	h.importer.Exhausted(ctx, video.ID, context.DeadlineExceeded)

	stored, _ := h.repo.GetVideo(ctx, video.ID)
	assert.Equal(t, catalog.StageError, stored.ImportStage)
	rec, _ := h.repo.GetEnrichment(ctx, video.ID)
	assert.Equal(t, catalog.StatusFailed, rec.Status)
	assert.Equal(t, errclass.MessageTryLater, rec.ErrorMessage)
}

func TestFailed_SettlesStuckRecord(t *testing.T) {
	h := newHarness(t, &fakeMetadata{info: videoInfo()}, &captionStub{})
	ctx := context.Background()

	video, err := h.importer.Import(ctx, "u1", "abc")
	require.NoError(t, err)
	require.NoError(t, h.repo.UpsertEnrichment(ctx, &catalog.Enrichment{VideoID: video.ID, Status: catalog.StatusProcessing}))
	require.NoError(t, h.importer.tracker.Advance(ctx, video, catalog.StageCaptions))

	_, err = h.importer.Retry(ctx, video.ID)
	require.ErrorIs(t, err, catalog.ErrConflict)

	cause := errors.New("job panicked: runtime error: invalid memory address")
	h.importer.Failed(ctx, video.ID, cause)

	stored, _ := h.repo.GetVideo(ctx, video.ID)
	assert.Equal(t, catalog.StageError, stored.ImportStage)
	rec, _ := h.repo.GetEnrichment(ctx, video.ID)
	assert.Equal(t, catalog.StatusFailed, rec.Status)
	assert.Equal(t, errclass.Classify(cause).UserMessage, rec.ErrorMessage)

	_, err = h.importer.Retry(ctx, video.ID)
	require.NoError(t, err)
	rec, _ = h.repo.GetEnrichment(ctx, video.ID)
	assert.Equal(t, catalog.StatusPending, rec.Status)
}

func TestFailed_KeepsExtractedContent(t *testing.T) {
	h := newHarness(t, &fakeMetadata{info: videoInfo()}, &captionStub{})
	ctx := context.Background()

	video, _ := h.importer.Import(ctx, "u1", "abc")
	require.NoError(t, h.repo.UpsertEnrichment(ctx, &catalog.Enrichment{
		VideoID:      video.ID,
		Status:       catalog.StatusProcessing,
		CaptionTrack: "WEBVTT\n\n00:00:00.000 --> 00:00:02.000\nhello\n",
	}))

	h.importer.Failed(ctx, video.ID, errors.New("database is locked"))

	stored, _ := h.repo.GetVideo(ctx, video.ID)
	assert.Equal(t, catalog.StageComplete, stored.ImportStage)
	rec, _ := h.repo.GetEnrichment(ctx, video.ID)
	assert.Equal(t, catalog.StatusPartial, rec.Status)
}

func TestFailed_LeavesSettledVideoAlone(t *testing.T) {
	h := newHarness(t, &fakeMetadata{info: videoInfo()}, &captionStub{err: errors.New("Private video")})
	ctx := context.Background()

	video, _ := h.importer.Import(ctx, "u1", "abc")
	require.NoError(t, h.importer.Process(ctx, video.ID))
	before, _ := h.repo.GetEnrichment(ctx, video.ID)

	h.importer.Failed(ctx, video.ID, errors.New("something else"))

	after, _ := h.repo.GetEnrichment(ctx, video.ID)
	assert.Equal(t, before.ErrorMessage, after.ErrorMessage)
	assert.Equal(t, catalog.StatusFailed, after.Status)
}

func TestResume(t *testing.T) {
	h := newHarness(t, &fakeMetadata{info: videoInfo()}, &captionStub{result: captionResult()})
	ctx := context.Background()

	a, _ := h.importer.Import(ctx, "u1", "a")
	b, _ := h.importer.Import(ctx, "u1", "b")
	require.NoError(t, h.importer.Process(ctx, b.ID))

	h.scheduler.submitted = nil
	n, err := h.importer.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{a.ID}, h.scheduler.submitted)
}
