package providers

import (
	"context"
	"fmt"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/captions"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/media"
)

// InfoSource returns platform metadata including caption listings.
type InfoSource interface {
	Info(ctx context.Context, externalID string) (*media.VideoInfo, error)
}

// TrackFetcher downloads a caption rendition.
type TrackFetcher interface {
	FetchCaptionTrack(ctx context.Context, url string) (string, error)
}

// PlatformProvider serves captions the platform already has, either
// uploaded by the creator (manual) or generated by the platform (auto).
type PlatformProvider struct {
	source    captions.Source
	info      InfoSource
	fetcher   TrackFetcher
	languages LanguagePreference
}

func NewManualProvider(info InfoSource, fetcher TrackFetcher, languages LanguagePreference) *PlatformProvider {
	return &PlatformProvider{source: captions.SourceManual, info: info, fetcher: fetcher, languages: languages}
}

func NewAutoProvider(info InfoSource, fetcher TrackFetcher, languages LanguagePreference) *PlatformProvider {
	return &PlatformProvider{source: captions.SourceAuto, info: info, fetcher: fetcher, languages: languages}
}

func (p *PlatformProvider) Name() string { return string(p.source) }

func (p *PlatformProvider) Fetch(ctx context.Context, externalID string, duration float64) (*CaptionResult, error) {
	info, err := p.info.Info(ctx, externalID)
	if err != nil {
		return nil, err
	}

	tracks := info.Subtitles
	if p.source == captions.SourceAuto {
		tracks = info.AutomaticCaptions
	}

	available := make([]string, 0, len(tracks))
	for lang, formats := range tracks {
		if lang == "live_chat" || vttURL(formats) == "" {
			continue
		}
		available = append(available, lang)
	}

	lang, ok := p.languages.Pick(available)
	if !ok {
		return nil, nil
	}

	reportProgress(ctx, fmt.Sprintf("Fetching %s captions (%s)", p.source, lang))

	raw, err := p.fetcher.FetchCaptionTrack(ctx, vttURL(tracks[lang]))
	if err != nil {
		return nil, err
	}

	cues, err := captions.ParseTrack(captions.Clean(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s captions: %w", p.source, err)
	}
	if len(cues) == 0 {
		return nil, nil
	}

	return newResult(cues, baseLang(lang), p.source), nil
}

func vttURL(formats []media.TrackFormat) string {
	for _, f := range formats {
		if f.Ext == "vtt" && f.URL != "" {
			return f.URL
		}
	}
	return ""
}
