package media

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingSource struct {
	calls atomic.Int32
	info  *VideoInfo
	err   error
}

func (s *countingSource) Info(ctx context.Context, externalID string) (*VideoInfo, error) {
	s.calls.Add(1)
	return s.info, s.err
}

func TestInfoCache_ServesFreshEntries(t *testing.T) {
	src := &countingSource{info: &VideoInfo{ID: "abc", Title: "T"}}
	c := NewInfoCache(src, time.Minute, testLogger())

	for i := 0; i < 3; i++ {
		if _, err := c.Info(context.Background(), "abc"); err != nil {
			t.Fatalf("Info() error = %v", err)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("source calls = %d, want 1", got)
	}

	c.Invalidate("abc")
	c.Info(context.Background(), "abc")
	if got := src.calls.Load(); got != 2 {
		t.Errorf("source calls after invalidate = %d, want 2", got)
	}
}

func TestInfoCache_ExpiresEntries(t *testing.T) {
	src := &countingSource{info: &VideoInfo{ID: "abc"}}
	c := NewInfoCache(src, time.Minute, testLogger())

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Info(context.Background(), "abc")

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	c.Info(context.Background(), "abc")

	if got := src.calls.Load(); got != 2 {
		t.Errorf("source calls = %d, want 2", got)
	}
}

func TestInfoCache_DoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	c := NewInfoCache(src, time.Minute, testLogger())

	c.Info(context.Background(), "abc")
	c.Info(context.Background(), "abc")
	if got := src.calls.Load(); got != 2 {
		t.Errorf("source calls = %d, want 2", got)
	}
}

func TestInfoCache_Chapters(t *testing.T) {
	src := &countingSource{info: &VideoInfo{Chapters: []InfoChapter{{Title: "A", StartTime: 0, EndTime: 10}}}}
	c := NewInfoCache(src, time.Minute, testLogger())

	got, err := c.Chapters(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Chapters() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "A" || got[0].End != 10 {
		t.Errorf("chapters = %+v", got)
	}

	src.info = &VideoInfo{}
	c.Invalidate("abc")
	got, err = c.Chapters(context.Background(), "abc")
	if err != nil || got != nil {
		t.Errorf("Chapters() = %v, %v; want nil, nil", got, err)
	}
}
