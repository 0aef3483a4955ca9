package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	watchURLPrefix   = "https://www.youtube.com/watch?v="
	maxCaptionBytes  = 10 * 1024 * 1024
	defaultHTTPLimit = 60 * time.Second
)

// YtDlp wraps the yt-dlp CLI.
type YtDlp struct {
	runner     CommandRunner
	binary     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewYtDlp(runner CommandRunner, binary string, logger *slog.Logger) *YtDlp {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YtDlp{
		runner:     runner,
		binary:     binary,
		httpClient: &http.Client{Timeout: defaultHTTPLimit},
		logger:     logger,
	}
}

// SetHTTPClient replaces the client used to download caption tracks.
func (y *YtDlp) SetHTTPClient(c *http.Client) {
	y.httpClient = c
}

// Info fetches video metadata without downloading media.
func (y *YtDlp) Info(ctx context.Context, externalID string) (*VideoInfo, error) {
	res, err := y.runner.Run(ctx, y.binary,
		"--dump-single-json",
		"--skip-download",
		"--no-warnings",
		"--no-playlist",
		watchURLPrefix+externalID,
	)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp info %s: %w", externalID, err)
	}

	var info VideoInfo
	if err := json.Unmarshal(res.Stdout, &info); err != nil {
		return nil, fmt.Errorf("cannot parse yt-dlp JSON: %w", err)
	}
	return &info, nil
}

// DownloadAudio extracts the best audio stream into dir and returns the
// resulting file path.
func (y *YtDlp) DownloadAudio(ctx context.Context, externalID, dir string) (string, error) {
	template := filepath.Join(dir, "source.%(ext)s")
	_, err := y.runner.Run(ctx, y.binary,
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "m4a",
		"--no-playlist",
		"--no-warnings",
		"-o", template,
		watchURLPrefix+externalID,
	)
	if err != nil {
		return "", fmt.Errorf("yt-dlp audio %s: %w", externalID, err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "source.*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if info, statErr := os.Stat(m); statErr == nil && info.Size() > 0 {
			y.logger.Debug("audio downloaded", "external_id", externalID, "bytes", info.Size())
			return m, nil
		}
	}
	return "", fmt.Errorf("yt-dlp audio %s: no output file in %s", externalID, dir)
}

// FetchCaptionTrack downloads a caption rendition by URL.
func (y *YtDlp) FetchCaptionTrack(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("caption request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCaptionBytes))
	if err != nil {
		return "", fmt.Errorf("read caption body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	return string(body), nil
}

// Version returns the first line of `yt-dlp --version`.
func (y *YtDlp) Version(ctx context.Context) (string, error) {
	res, err := y.runner.Run(ctx, y.binary, "--version")
	if err != nil {
		return "", err
	}
	return firstLine(res.Stdout), nil
}

// HTTPError is a non-2xx response from a caption download.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("caption download failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatus() int { return e.StatusCode }

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
