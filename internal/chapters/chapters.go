// Package chapters derives named time ranges for a video, either from the
// platform's own chapter list or from timestamp lines in its description.
package chapters

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/captions"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/errclass"
)

// Origin records which extractor produced a chapter list.
type Origin string

const (
	OriginPlatform    Origin = "platform"
	OriginDescription Origin = "description"
)

// Chapter is a named range in seconds. End is always derived from the next
// chapter's start or, for the last chapter, the media duration.
type Chapter struct {
	Title string  `json:"title"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// PlatformSource returns the chapters a platform declares for a video, or
// nil when it declares none.
type PlatformSource interface {
	Chapters(ctx context.Context, externalID string) ([]Chapter, error)
}

// FetchPlatformChapters asks src for chapters. A nil result means the
// platform has none and the caller should try the description. Failures
// are returned as retryable unless the classifier already considers them
// permanent.
func FetchPlatformChapters(ctx context.Context, src PlatformSource, externalID string, duration float64) ([]Chapter, error) {
	raw, err := src.Chapters(ctx, externalID)
	if err != nil {
		c := errclass.Classify(err)
		if !c.Retryable && c.Kind != errclass.KindUnknown {
			return nil, &errclass.PermanentError{Message: c.UserMessage, Err: err}
		}
		return nil, &errclass.TemporaryError{Message: errclass.MessageTryLater, Err: fmt.Errorf("fetch chapters: %w", err)}
	}
	if len(raw) == 0 {
		return nil, nil
	}

	starts := make([]entry, 0, len(raw))
	for _, ch := range raw {
		starts = append(starts, entry{start: ch.Start, title: ch.Title})
	}
	out := derive(starts, duration)
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// descriptionLineRe matches "0:00 Intro", "[1:02:03] - Part two", "(4:05) | Outro".
var descriptionLineRe = regexp.MustCompile(`^[\s\-*•>]*[\[(]?(\d{1,2}(?::\d{1,2})?:\d{2})[\])]?\s*(.*)$`)

// leadingSeparatorRe strips separators between the timestamp and the title.
var leadingSeparatorRe = regexp.MustCompile(`^[\s\-–—|:.]+`)

// ParseDescriptionChapters scans description lines for a leading timestamp
// followed by a title. Fewer than two usable lines yields nil.
func ParseDescriptionChapters(description string, duration float64) []Chapter {
	var found []entry
	for _, line := range strings.Split(strings.ReplaceAll(description, "\r\n", "\n"), "\n") {
		m := descriptionLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		start, ok := captions.ParseFreeTextTimestamp(m[1])
		if !ok {
			continue
		}
		title := strings.TrimSpace(leadingSeparatorRe.ReplaceAllString(m[2], ""))
		found = append(found, entry{start: start, title: title})
	}

	if len(found) < 2 {
		return nil
	}

	out := derive(found, duration)
	if len(out) < 2 {
		return nil
	}
	return out
}

type entry struct {
	start float64
	title string
}

// derive sorts entries, drops duplicate starts and starts beyond the
// duration, and fills in ends.
func derive(entries []entry, duration float64) []Chapter {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].start < entries[j].start })

	kept := make([]entry, 0, len(entries))
	for _, e := range entries {
		if e.start < 0 {
			continue
		}
		if duration > 0 && e.start >= duration {
			continue
		}
		if len(kept) > 0 && kept[len(kept)-1].start == e.start {
			continue
		}
		kept = append(kept, e)
	}

	out := make([]Chapter, len(kept))
	for i, e := range kept {
		title := e.title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		end := duration
		if i+1 < len(kept) {
			end = kept[i+1].start
		} else if duration <= 0 {
			end = e.start
		}
		out[i] = Chapter{Title: title, Start: e.start, End: end}
	}
	return out
}
