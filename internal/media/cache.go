package media

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/chapters"
)

const defaultInfoTTL = 5 * time.Minute

// InfoSource fetches video metadata.
type InfoSource interface {
	Info(ctx context.Context, externalID string) (*VideoInfo, error)
}

// InfoCache memoizes metadata per video for a short TTL. One enrichment
// run asks for the same metadata several times (metadata stage, manual and
// auto captions, chapters); only the first call reaches yt-dlp.
type InfoCache struct {
	source InfoSource
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedInfo
}

type cachedInfo struct {
	info      *VideoInfo
	fetchedAt time.Time
}

func NewInfoCache(source InfoSource, ttl time.Duration, logger *slog.Logger) *InfoCache {
	if ttl <= 0 {
		ttl = defaultInfoTTL
	}
	return &InfoCache{
		source:  source,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]cachedInfo),
	}
}

// Info returns cached metadata if fresh, otherwise fetches it.
func (c *InfoCache) Info(ctx context.Context, externalID string) (*VideoInfo, error) {
	c.mu.RLock()
	entry, ok := c.entries[externalID]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.info, nil
	}

	info, err := c.source.Info(ctx, externalID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	now := c.now()
	for id, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, id)
		}
	}
	c.entries[externalID] = cachedInfo{info: info, fetchedAt: now}
	c.mu.Unlock()

	return info, nil
}

// Invalidate drops a cached entry so the next call re-fetches.
func (c *InfoCache) Invalidate(externalID string) {
	c.mu.Lock()
	delete(c.entries, externalID)
	c.mu.Unlock()
}

// Chapters returns the chapters the platform declares, or nil when none.
func (c *InfoCache) Chapters(ctx context.Context, externalID string) ([]chapters.Chapter, error) {
	info, err := c.Info(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if len(info.Chapters) == 0 {
		return nil, nil
	}

	out := make([]chapters.Chapter, len(info.Chapters))
	for i, ch := range info.Chapters {
		out[i] = chapters.Chapter{Title: ch.Title, Start: ch.StartTime, End: ch.EndTime}
	}
	return out, nil
}
