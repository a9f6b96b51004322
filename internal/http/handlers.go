// Package http serves the transcription REST API and the per-run websocket
// event feed.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"meeting-transcript-service/internal/export"
	"meeting-transcript-service/internal/models"
	"meeting-transcript-service/internal/observability/metrics"
	"meeting-transcript-service/internal/pipeline"
	"meeting-transcript-service/internal/runs"
	"meeting-transcript-service/internal/store"
)

var validate = validator.New()

// Handlers serves the transcription API backed by the run manager.
type Handlers struct {
	manager        *runs.Manager
	hub            *Hub
	maxUploadBytes int64
	metrics        *metrics.Metrics
}

// NewHandlers creates the API handlers. maxUploadBytes caps multipart upload
// size; non-positive values fall back to 512 MiB.
func NewHandlers(manager *runs.Manager, hub *Hub, maxUploadBytes int64) *Handlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 512 << 20
	}
	return &Handlers{
		manager:        manager,
		hub:            hub,
		maxUploadBytes: maxUploadBytes,
		metrics:        metrics.DefaultMetrics,
	}
}

// uploadOptions mirrors the optional multipart fields, validated before they
// become run settings.
type uploadOptions struct {
	ChunkSeconds   float64       `validate:"gte=0"`
	OverlapSeconds float64       `validate:"gte=0"`
	MaxConcurrency int           `validate:"gte=0,lte=64"`
	ChunkTimeout   time.Duration `validate:"gte=0"`
}

// runDetail is the GET response for one run: the stored record plus live
// chunk statuses while the pipeline is executing.
type runDetail struct {
	models.RunRecord
	Chunks []pipeline.ChunkStatus `json:"chunks,omitempty"`
}

// CreateTranscription accepts a multipart audio upload and starts a run.
func (h *Handlers) CreateTranscription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.metrics.RecordUploadRejected("too_large")
			respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds the %d byte limit", h.maxUploadBytes))
			return
		}
		h.metrics.RecordUploadRejected("bad_multipart")
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.metrics.RecordUploadRejected("missing_file")
		respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	settings, err := parseSettings(r)
	if err != nil {
		h.metrics.RecordUploadRejected("bad_options")
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	size, err := io.Copy(tmp, file)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	h.metrics.RecordUpload(size)

	record, err := h.manager.Start(header.Filename, tmp.Name(), settings)
	if err != nil {
		os.Remove(tmp.Name())
		h.respondRunError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, record)
}

// ListTranscriptions returns all runs, newest first.
func (h *Handlers) ListTranscriptions(w http.ResponseWriter, r *http.Request) {
	records, err := h.manager.List()
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"runs":  records,
		"count": len(records),
	})
}

// GetTranscription returns one run's record, with live chunk statuses while
// it is executing.
func (h *Handlers) GetTranscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.manager.Get(id)
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, runDetail{
		RunRecord: *record,
		Chunks:    h.manager.ChunkStatuses(id),
	})
}

// GetTranscript returns the merged transcript for a completed run. With
// ?redact=true PII is masked at read time.
func (h *Handlers) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	transcript, err := h.manager.Transcript(id, boolQuery(r, "redact"))
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, transcript)
}

// ExportTranscript renders the transcript as txt, md or srt and serves it as
// a download.
func (h *Handlers) ExportTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.manager.Get(id)
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	transcript, err := h.manager.Transcript(id, boolQuery(r, "redact"))
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	body, err := export.Render(format, record, transcript)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render export")
		return
	}
	h.metrics.RecordExport(string(format))

	base := strings.TrimSuffix(record.Filename, filepath.Ext(record.Filename))
	if base == "" {
		base = record.ID
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+"."+format.Extension()))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, body); err != nil {
		log.Warn().Err(err).Str("runId", id).Msg("Failed to write export body")
	}
}

// CancelTranscription requests cancellation of a running run.
func (h *Handlers) CancelTranscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Cancel(id); err != nil {
		h.respondRunError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"id":    id,
		"state": "cancelling",
	})
}

// StreamEvents upgrades to a websocket and feeds the client this run's chunk
// progress and completion events.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.manager.Get(id); err != nil {
		h.respondRunError(w, err)
		return
	}
	h.hub.ServeRun(w, r, id)
}

func (h *Handlers) respondRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "run not found")
	case errors.Is(err, runs.ErrNoTranscript):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, runs.ErrNotRunning):
		respondError(w, http.StatusConflict, "run is not running")
	case errors.Is(err, runs.ErrUnknownBackend), errors.Is(err, runs.ErrInvalidSettings):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseSettings(r *http.Request) (runs.Settings, error) {
	var opts uploadOptions
	var err error
	if v := r.FormValue("chunk_seconds"); v != "" {
		if opts.ChunkSeconds, err = strconv.ParseFloat(v, 64); err != nil {
			return runs.Settings{}, fmt.Errorf("invalid chunk_seconds %q", v)
		}
	}
	if v := r.FormValue("overlap_seconds"); v != "" {
		if opts.OverlapSeconds, err = strconv.ParseFloat(v, 64); err != nil {
			return runs.Settings{}, fmt.Errorf("invalid overlap_seconds %q", v)
		}
	}
	if v := r.FormValue("max_concurrency"); v != "" {
		if opts.MaxConcurrency, err = strconv.Atoi(v); err != nil {
			return runs.Settings{}, fmt.Errorf("invalid max_concurrency %q", v)
		}
	}
	if v := r.FormValue("chunk_timeout"); v != "" {
		if opts.ChunkTimeout, err = time.ParseDuration(v); err != nil {
			return runs.Settings{}, fmt.Errorf("invalid chunk_timeout %q", v)
		}
	}
	if err := validate.Struct(opts); err != nil {
		return runs.Settings{}, fmt.Errorf("invalid upload options: %w", err)
	}

	settings := runs.Settings{
		ChunkSeconds:        opts.ChunkSeconds,
		OverlapSeconds:      opts.OverlapSeconds,
		MaxConcurrentChunks: opts.MaxConcurrency,
		PerChunkTimeout:     opts.ChunkTimeout,
	}
	if v := r.FormValue("redact_pii"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return runs.Settings{}, fmt.Errorf("invalid redact_pii %q", v)
		}
		settings.RedactPII = &b
	}
	if v := r.FormValue("backends"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				settings.Backends = append(settings.Backends, part)
			}
		}
	}
	return settings, nil
}

func boolQuery(r *http.Request, key string) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
