// Package export renders stored enrichment results as downloadable files.
package export

import (
	"errors"
	"fmt"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/captions"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/catalog"
)

type Format string

const (
	FormatVTT        Format = "vtt"
	FormatTranscript Format = "txt"
	FormatEDL        Format = "edl"
)

// ErrNoContent means the record has nothing to render in the format.
var ErrNoContent = errors.New("nothing to export")

// Download is a rendered file.
type Download struct {
	Filename    string
	ContentType string
	Body        string
}

// Render produces the file for one video's enrichment in format.
func Render(format Format, video *catalog.Video, rec *catalog.Enrichment) (*Download, error) {
	if rec == nil {
		return nil, ErrNoContent
	}

	switch format {
	case FormatVTT:
		if rec.CaptionTrack == "" {
			return nil, ErrNoContent
		}
		return &Download{
			Filename:    Filename(video.Title, video.ExternalID, "vtt"),
			ContentType: "text/vtt; charset=utf-8",
			Body:        rec.CaptionTrack,
		}, nil

	case FormatTranscript:
		text := rec.TranscriptText
		if text == "" && rec.CaptionTrack != "" {
			var err error
			if text, err = TranscriptText(rec.CaptionTrack, captions.Source(rec.CaptionSource)); err != nil {
				return nil, err
			}
		}
		if text == "" {
			return nil, ErrNoContent
		}
		return &Download{
			Filename:    Filename(video.Title, video.ExternalID, "txt"),
			ContentType: "text/plain; charset=utf-8",
			Body:        text + "\n",
		}, nil

	case FormatEDL:
		if len(rec.Chapters) == 0 {
			return nil, ErrNoContent
		}
		title := video.Title
		if title == "" {
			title = video.ExternalID
		}
		return &Download{
			Filename:    Filename(video.Title, video.ExternalID, "edl"),
			ContentType: "text/plain; charset=utf-8",
			Body:        GenerateChapterEDL(title, rec.Chapters, DefaultFrameRate),
		}, nil
	}

	return nil, fmt.Errorf("unknown export format %q", format)
}

// TranscriptText derives plain text from a stored caption track of the
// given source.
func TranscriptText(track string, source captions.Source) (string, error) {
	cues, err := captions.ParseTrack(track)
	if err != nil {
		return "", err
	}
	t := captions.Track{Cues: cues, Source: source}
	return t.PlainText(), nil
}
