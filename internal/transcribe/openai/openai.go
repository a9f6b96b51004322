// Package openai provides the hosted primary transcription backend, speaking
// the OpenAI audio transcriptions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"meeting-transcript-service/internal/models"
	"meeting-transcript-service/internal/transcribe"
)

// BackendName identifies this adapter in results, events and metrics.
const BackendName = "openai"

// Config holds the provider settings.
type Config struct {
	APIKey  string
	BaseURL string // defaults to https://api.openai.com
	Model   string // defaults to whisper-1
}

// Backend implements transcribe.Backend against the OpenAI API.
type Backend struct {
	cfg    Config
	client *http.Client
}

// New creates the OpenAI backend. The per-attempt deadline arrives through
// the request context, so the HTTP client carries no timeout of its own.
func New(cfg Config) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	return &Backend{cfg: cfg, client: &http.Client{}}
}

// Name returns the adapter identifier.
func (b *Backend) Name() string {
	return BackendName
}

// verboseResponse is the response_format=verbose_json payload.
type verboseResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe posts one chunk as multipart form data and parses the timed
// segments from the verbose JSON response.
func (b *Backend) Transcribe(ctx context.Context, chunk models.AudioChunk) (*models.ChunkResult, error) {
	f, err := os.Open(chunk.Path)
	if err != nil {
		return nil, transcribe.NewError(BackendName, transcribe.ErrUnavailable, fmt.Errorf("open chunk: %w", err))
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", b.cfg.Model); err != nil {
		return nil, transcribe.NewError(BackendName, transcribe.ErrUnavailable, err)
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, transcribe.NewError(BackendName, transcribe.ErrUnavailable, err)
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(chunk.Path))
	if err != nil {
		return nil, transcribe.NewError(BackendName, transcribe.ErrUnavailable, err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, transcribe.NewError(BackendName, transcribe.ErrUnavailable, fmt.Errorf("copy chunk: %w", err))
	}
	if err := mw.Close(); err != nil {
		return nil, transcribe.NewError(BackendName, transcribe.ErrUnavailable, err)
	}

	url := strings.TrimSuffix(b.cfg.BaseURL, "/") + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, transcribe.NewError(BackendName, transcribe.ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, transcribe.NewError(BackendName, transcribe.KindForTransport(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := transcribe.KindForStatus(resp.StatusCode)
		return nil, transcribe.NewError(BackendName, kind,
			fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var parsed verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, transcribe.NewError(BackendName, transcribe.ErrUnavailable, fmt.Errorf("decode response: %w", err))
	}

	segments := make([]models.TranscriptSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, models.TranscriptSegment{
			StartSec: s.Start,
			EndSec:   s.End,
			Text:     strings.TrimSpace(s.Text),
		})
	}
	// Some models return only whole text; fall back to one segment spanning
	// the chunk so downstream timing stays well formed.
	if len(segments) == 0 && parsed.Text != "" {
		segments = append(segments, models.TranscriptSegment{
			StartSec: 0,
			EndSec:   chunk.DurationSec(),
			Text:     strings.TrimSpace(parsed.Text),
		})
	}

	return &models.ChunkResult{
		ChunkIndex:  chunk.Index,
		Text:        strings.TrimSpace(parsed.Text),
		Segments:    segments,
		BackendUsed: BackendName,
		Succeeded:   true,
	}, nil
}
