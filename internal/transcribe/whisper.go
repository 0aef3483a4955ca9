package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/audio"
	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/logging"
)

// ErrPayloadTooLarge is returned before upload when audio exceeds the
// provider's limit.
var ErrPayloadTooLarge = errors.New("audio payload exceeds provider limit")

// StatusError is a non-2xx response from the speech-to-text endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transcription request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// IsRetryable returns true for throttling and server errors.
// Other client errors (4xx) are considered permanent.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// WhisperHTTP talks to an OpenAI-compatible /v1/audio/transcriptions endpoint.
type WhisperHTTP struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWhisperHTTP(baseURL, apiKey, model string, logger *slog.Logger) *WhisperHTTP {
	if model == "" {
		model = "whisper-1"
	}
	if apiKey != "" {
		logger.Info("speech-to-text provider configured", "base_url", baseURL, "model", model, "api_key", logging.SanitizeToken(apiKey))
	}
	return &WhisperHTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: logger,
	}
}

type verboseResponse struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Transcribe uploads audio as multipart form data and decodes the
// verbose_json response.
func (w *WhisperHTTP) Transcribe(ctx context.Context, audioData io.Reader, filename string) (*Transcription, error) {
	payload, err := io.ReadAll(io.LimitReader(audioData, audio.ProviderLimitBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(payload) > audio.ProviderLimitBytes {
		return nil, ErrPayloadTooLarge
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	fields := [][2]string{
		{"model", w.model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	url := w.baseURL + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	w.logger.Debug("uploading audio for transcription", "file", filename, "bytes", len(payload))

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(respBody)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	var out verboseResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}
	return &Transcription{Text: out.Text, Language: out.Language, Segments: out.Segments}, nil
}
