package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"meeting-transcript-service/internal/models"
	"meeting-transcript-service/internal/transcribe"
)

func testChunk(t *testing.T) models.AudioChunk {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk-0001.wav")
	if err := os.WriteFile(path, []byte("fake wav bytes"), 0o644); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	return models.AudioChunk{Index: 1, StartOffsetSec: 30, EndOffsetSec: 60, Path: path}
}

func TestBackend_Transcribe_ParsesVerboseJSON(t *testing.T) {
	var gotAuth, gotFormat, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotFormat = r.FormValue("response_format")
		gotModel = r.FormValue("model")
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"text": "hello world again",
			"segments": []map[string]any{
				{"start": 0.0, "end": 2.5, "text": " hello world"},
				{"start": 2.5, "end": 5.0, "text": " again "},
			},
		})
	}))
	defer srv.Close()

	b := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
	res, err := b.Transcribe(context.Background(), testChunk(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotFormat != "verbose_json" {
		t.Errorf("expected verbose_json, got %q", gotFormat)
	}
	if gotModel != "whisper-1" {
		t.Errorf("expected default model whisper-1, got %q", gotModel)
	}
	if res.ChunkIndex != 1 {
		t.Errorf("expected chunk index 1, got %d", res.ChunkIndex)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	if res.Segments[0].Text != "hello world" {
		t.Errorf("expected trimmed segment text, got %q", res.Segments[0].Text)
	}
	if res.Segments[1].StartSec != 2.5 || res.Segments[1].EndSec != 5.0 {
		t.Errorf("unexpected segment timing [%v,%v]", res.Segments[1].StartSec, res.Segments[1].EndSec)
	}
	if !res.Succeeded || res.BackendUsed != BackendName {
		t.Errorf("unexpected result flags: succeeded=%v backend=%s", res.Succeeded, res.BackendUsed)
	}
}

func TestBackend_Transcribe_WholeTextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"text": "just the text"})
	}))
	defer srv.Close()

	b := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
	chunk := testChunk(t)
	res, err := b.Transcribe(context.Background(), chunk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Segments) != 1 {
		t.Fatalf("expected single fallback segment, got %d", len(res.Segments))
	}
	if res.Segments[0].StartSec != 0 || res.Segments[0].EndSec != chunk.DurationSec() {
		t.Errorf("fallback segment should span the chunk, got [%v,%v]",
			res.Segments[0].StartSec, res.Segments[0].EndSec)
	}
}

func TestBackend_Transcribe_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, transcribe.ErrAuth},
		{"forbidden", http.StatusForbidden, transcribe.ErrAuth},
		{"rate limited", http.StatusTooManyRequests, transcribe.ErrRateLimited},
		{"server error", http.StatusInternalServerError, transcribe.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			b := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
			_, err := b.Transcribe(context.Background(), testChunk(t))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBackend_Transcribe_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	b := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Transcribe(ctx, testChunk(t))
	if !errors.Is(err, transcribe.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestBackend_Transcribe_MissingChunkFile(t *testing.T) {
	b := New(Config{APIKey: "sk-test"})
	chunk := models.AudioChunk{Index: 0, EndOffsetSec: 5, Path: filepath.Join(t.TempDir(), "gone.wav")}

	_, err := b.Transcribe(context.Background(), chunk)
	if !errors.Is(err, transcribe.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
