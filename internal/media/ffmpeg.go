package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// FFmpeg probes and slices audio files.
type FFmpeg interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
	ExtractSegment(ctx context.Context, in, out string, start, duration float64, bitrateKbps int) error
}

// CLIFFmpeg shells out to ffmpeg and ffprobe.
type CLIFFmpeg struct {
	runner  CommandRunner
	ffmpeg  string
	ffprobe string
	logger  *slog.Logger
}

func NewFFmpeg(runner CommandRunner, ffmpegPath, ffprobePath string, logger *slog.Logger) *CLIFFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &CLIFFmpeg{runner: runner, ffmpeg: ffmpegPath, ffprobe: ffprobePath, logger: logger}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
		Size     string `json:"size"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
}

// Probe reads duration, codec and bitrate via ffprobe JSON output.
func (f *CLIFFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	res, err := f.runner.Run(ctx, f.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	return parseProbe(res.Stdout)
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	result := &ProbeResult{}
	result.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	result.Bitrate, _ = strconv.ParseInt(out.Format.BitRate, 10, 64)
	result.Size, _ = strconv.ParseInt(out.Format.Size, 10, 64)
	for _, s := range out.Streams {
		if s.CodecType == "audio" {
			result.Codec = s.CodecName
			result.SampleRate, _ = strconv.Atoi(s.SampleRate)
			break
		}
	}
	if result.Duration <= 0 {
		return nil, fmt.Errorf("ffprobe reported no duration")
	}
	return result, nil
}

// ExtractSegment re-encodes [start, start+duration) of in as mono MP3 at
// the given bitrate.
func (f *CLIFFmpeg) ExtractSegment(ctx context.Context, in, out string, start, duration float64, bitrateKbps int) error {
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("cannot create output dir: %w", err)
	}

	_, err := f.runner.Run(ctx, f.ffmpeg,
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-b:a", strconv.Itoa(bitrateKbps)+"k",
		out,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg segment %.0fs+%.0fs: %w", start, duration, err)
	}
	return nil
}

// Version returns the first line of `ffmpeg -version`.
func (f *CLIFFmpeg) Version(ctx context.Context) (string, error) {
	res, err := f.runner.Run(ctx, f.ffmpeg, "-version")
	if err != nil {
		return "", err
	}
	return firstLine(res.Stdout), nil
}
