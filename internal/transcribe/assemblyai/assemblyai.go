// Package assemblyai provides the hosted secondary transcription backend.
// Unlike the OpenAI adapter it is asynchronous on the wire: upload the audio,
// create a transcript job, then poll until the job reaches a terminal state.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"meeting-transcript-service/internal/models"
	"meeting-transcript-service/internal/transcribe"
)

// BackendName identifies this adapter in results, events and metrics.
const BackendName = "assemblyai"

// Polling cadence: start at pollInitialInterval and grow by pollBackoffFactor
// per attempt, capped at pollMaxInterval. The overall budget is the caller's
// context deadline.
const (
	pollInitialInterval = 500 * time.Millisecond
	pollBackoffFactor   = 1.5
	pollMaxInterval     = 5 * time.Second
)

// Config holds the provider settings.
type Config struct {
	APIKey  string
	BaseURL string // defaults to https://api.assemblyai.com
}

// Backend implements transcribe.Backend against the AssemblyAI API.
type Backend struct {
	cfg    Config
	client *http.Client
}

// New creates the AssemblyAI backend.
func New(cfg Config) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.assemblyai.com"
	}
	return &Backend{cfg: cfg, client: &http.Client{}}
}

// Name returns the adapter identifier.
func (b *Backend) Name() string {
	return BackendName
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptResponse struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"` // queued | processing | completed | error
	Text       string  `json:"text"`
	Error      string  `json:"error"`
	AudioStart float64 `json:"audio_start_from"`
	Utterances []struct {
		StartMs float64 `json:"start"`
		EndMs   float64 `json:"end"`
		Text    string  `json:"text"`
		Speaker string  `json:"speaker"`
	} `json:"utterances"`
}

// Transcribe uploads the chunk, starts a transcript job with speaker labels
// enabled and polls it to completion.
func (b *Backend) Transcribe(ctx context.Context, chunk models.AudioChunk) (*models.ChunkResult, error) {
	uploadURL, err := b.upload(ctx, chunk.Path)
	if err != nil {
		return nil, err
	}

	jobID, err := b.createTranscript(ctx, uploadURL)
	if err != nil {
		return nil, err
	}

	final, err := b.poll(ctx, jobID)
	if err != nil {
		return nil, err
	}

	segments := make([]models.TranscriptSegment, 0, len(final.Utterances))
	for _, u := range final.Utterances {
		label := u.Speaker
		if label != "" && !strings.HasPrefix(label, "Speaker") {
			label = "Speaker " + label
		}
		segments = append(segments, models.TranscriptSegment{
			StartSec:     u.StartMs / 1000,
			EndSec:       u.EndMs / 1000,
			Text:         strings.TrimSpace(u.Text),
			SpeakerLabel: label,
		})
	}
	if len(segments) == 0 && final.Text != "" {
		segments = append(segments, models.TranscriptSegment{
			StartSec: 0,
			EndSec:   chunk.DurationSec(),
			Text:     strings.TrimSpace(final.Text),
		})
	}

	return &models.ChunkResult{
		ChunkIndex:  chunk.Index,
		Text:        strings.TrimSpace(final.Text),
		Segments:    segments,
		BackendUsed: BackendName,
		Succeeded:   true,
	}, nil
}

// upload posts the raw chunk bytes and returns the temporary upload URL.
func (b *Backend) upload(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", transcribe.NewError(BackendName, transcribe.ErrUnavailable, fmt.Errorf("read chunk: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url("/v2/upload"), bytes.NewReader(data))
	if err != nil {
		return "", transcribe.NewError(BackendName, transcribe.ErrUnavailable, err)
	}
	req.Header.Set("authorization", b.cfg.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var parsed uploadResponse
	if err := b.do(req, &parsed); err != nil {
		return "", err
	}
	if parsed.UploadURL == "" {
		return "", transcribe.NewError(BackendName, transcribe.ErrUnavailable, fmt.Errorf("upload returned no url"))
	}
	return parsed.UploadURL, nil
}

// createTranscript starts the transcription job.
func (b *Backend) createTranscript(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"audio_url":      audioURL,
		"speaker_labels": true,
	})
	if err != nil {
		return "", transcribe.NewError(BackendName, transcribe.ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url("/v2/transcript"), bytes.NewReader(payload))
	if err != nil {
		return "", transcribe.NewError(BackendName, transcribe.ErrUnavailable, err)
	}
	req.Header.Set("authorization", b.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	var parsed transcriptResponse
	if err := b.do(req, &parsed); err != nil {
		return "", err
	}
	if parsed.ID == "" {
		return "", transcribe.NewError(BackendName, transcribe.ErrUnavailable, fmt.Errorf("transcript job has no id"))
	}
	return parsed.ID, nil
}

// poll fetches the job until it completes or errors, backing off between
// attempts.
func (b *Backend) poll(ctx context.Context, jobID string) (*transcriptResponse, error) {
	interval := pollInitialInterval
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url("/v2/transcript/"+jobID), nil)
		if err != nil {
			return nil, transcribe.NewError(BackendName, transcribe.ErrUnavailable, err)
		}
		req.Header.Set("authorization", b.cfg.APIKey)

		var parsed transcriptResponse
		if err := b.do(req, &parsed); err != nil {
			return nil, err
		}

		switch parsed.Status {
		case "completed":
			return &parsed, nil
		case "error":
			return nil, transcribe.NewError(BackendName, transcribe.ErrUnavailable,
				fmt.Errorf("transcript job failed: %s", parsed.Error))
		}

		select {
		case <-ctx.Done():
			return nil, transcribe.NewError(BackendName, transcribe.KindForTransport(ctx.Err()), ctx.Err())
		case <-time.After(interval):
		}
		interval = time.Duration(float64(interval) * pollBackoffFactor)
		if interval > pollMaxInterval {
			interval = pollMaxInterval
		}
	}
}

// do executes the request and decodes a JSON response, classifying failures.
func (b *Backend) do(req *http.Request, out any) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return transcribe.NewError(BackendName, transcribe.KindForTransport(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := transcribe.KindForStatus(resp.StatusCode)
		return transcribe.NewError(BackendName, kind,
			fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transcribe.NewError(BackendName, transcribe.ErrUnavailable, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (b *Backend) url(path string) string {
	return strings.TrimSuffix(b.cfg.BaseURL, "/") + path
}
