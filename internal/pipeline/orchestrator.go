package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"meeting-transcript-service/internal/audio"
	"meeting-transcript-service/internal/merge"
	"meeting-transcript-service/internal/models"
	"meeting-transcript-service/internal/observability/logging"
	"meeting-transcript-service/internal/observability/metrics"
	"meeting-transcript-service/internal/transcribe"
)

var (
	// ErrPipelineFailed reports that every chunk exhausted every backend.
	ErrPipelineFailed = errors.New("transcription pipeline failed")
	// ErrNoBackends reports an empty backend priority list.
	ErrNoBackends = errors.New("no transcription backends configured")
)

// Progress receives per-chunk state transitions as they happen. Callbacks
// fire from worker goroutines, possibly concurrently.
type Progress func(status ChunkStatus)

// Config controls one pipeline run.
type Config struct {
	ChunkSeconds        float64
	OverlapSeconds      float64
	MaxConcurrentChunks int
	PerChunkTimeout     time.Duration
	SimilarityThreshold float64
}

// Orchestrator drives one transcription run end to end: segment the audio,
// push every chunk through the backend priority chain under a bounded worker
// pool, then merge the per-chunk results into a single ordered transcript.
type Orchestrator struct {
	cfg        Config
	segmenter  *audio.Segmenter
	backends   []transcribe.Backend
	metrics    *metrics.Metrics
	onProgress Progress

	mu    sync.RWMutex
	table *StatusTable
}

// New creates an orchestrator. Backends are tried in the given order for
// every chunk.
func New(cfg Config, segmenter *audio.Segmenter, backends []transcribe.Backend) *Orchestrator {
	if cfg.MaxConcurrentChunks < 1 {
		cfg.MaxConcurrentChunks = 1
	}
	if cfg.PerChunkTimeout <= 0 {
		cfg.PerChunkTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		cfg:       cfg,
		segmenter: segmenter,
		backends:  backends,
		metrics:   metrics.DefaultMetrics,
	}
}

// SetProgress registers a callback invoked on every chunk state transition.
// Must be set before Run is called.
func (o *Orchestrator) SetProgress(fn Progress) {
	o.onProgress = fn
}

// Status returns a snapshot of every chunk's current status, ordered by
// index. Nil until Run has segmented the audio.
func (o *Orchestrator) Status() []ChunkStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.table == nil {
		return nil
	}
	return o.table.Snapshot()
}

// Run transcribes the WAV file at wavPath and returns the merged transcript.
// Chunks that fail on every backend are skipped by the merge; if all chunks
// fail, Run returns ErrPipelineFailed. A cancelled context aborts the run and
// discards any per-chunk results already produced.
func (o *Orchestrator) Run(ctx context.Context, wavPath string) (*models.MergedTranscript, error) {
	if len(o.backends) == 0 {
		return nil, ErrNoBackends
	}
	logger := logging.WithComponent("pipeline")

	chunks, cleanup, err := o.segmenter.Segment(ctx, wavPath, o.cfg.ChunkSeconds, o.cfg.OverlapSeconds)
	if err != nil {
		return nil, fmt.Errorf("segment audio: %w", err)
	}
	defer cleanup()

	o.metrics.RecordChunksPlanned(len(chunks))
	logger.Info().
		Int("chunks", len(chunks)).
		Int("workers", o.cfg.MaxConcurrentChunks).
		Msg("Starting transcription run")

	table := NewStatusTable(len(chunks))
	o.mu.Lock()
	o.table = table
	o.mu.Unlock()

	// One slot per chunk index; each worker writes only the slots of the
	// chunks it consumed, so no lock is needed around results.
	results := make([]models.ChunkResult, len(chunks))

	workers := o.cfg.MaxConcurrentChunks
	if workers > len(chunks) {
		workers = len(chunks)
	}

	jobs := make(chan models.AudioChunk)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range jobs {
				results[chunk.Index] = o.transcribeChunk(ctx, table, chunk)
			}
		}()
	}

feed:
	for _, chunk := range chunks {
		select {
		case jobs <- chunk:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	// Join barrier: the merge must not start until every chunk is terminal.
	wg.Wait()

	if err := ctx.Err(); err != nil {
		o.failPending(table, err)
		logger.Warn().Err(err).Msg("Transcription run aborted")
		return nil, err
	}

	failed := 0
	for _, r := range results {
		if !r.Succeeded {
			failed++
		}
	}
	if failed == len(results) {
		return nil, fmt.Errorf("%w: all %d chunks failed", ErrPipelineFailed, len(results))
	}

	spans := make([]models.ChunkSpan, len(chunks))
	for i, c := range chunks {
		spans[i] = c.Span()
	}

	inputSegments := 0
	for _, r := range results {
		if r.Succeeded {
			inputSegments += len(r.Segments)
		}
	}

	mergeStart := time.Now()
	merged, err := merge.Merge(spans, results, merge.Options{
		OverlapSec:          o.cfg.OverlapSeconds,
		SimilarityThreshold: o.cfg.SimilarityThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("merge chunk results: %w", err)
	}
	o.metrics.RecordMerge(len(merged.Segments), inputSegments-len(merged.Segments), time.Since(mergeStart).Seconds())

	logger.Info().
		Int("chunks", len(chunks)).
		Int("failedChunks", failed).
		Int("segments", len(merged.Segments)).
		Msg("Transcription run finished")
	return merged, nil
}

// transcribeChunk walks the backend priority order for one chunk. Every
// attempt gets its own deadline derived from the run context; the error
// taxonomy only matters for metrics and logs, fallback always moves to the
// next backend.
func (o *Orchestrator) transcribeChunk(ctx context.Context, table *StatusTable, chunk models.AudioChunk) models.ChunkResult {
	var (
		failures    []string
		lastErr     error
		lastBackend string
		attempts    int
	)

	for i, backend := range o.backends {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		attempts = i + 1
		lastBackend = backend.Name()
		o.setStatus(table, chunk.Index, StateInFlight, backend.Name(), attempts, nil)

		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.PerChunkTimeout)
		start := time.Now()
		result, err := backend.Transcribe(attemptCtx, chunk)
		cancel()
		latency := time.Since(start).Seconds()

		if err == nil && result == nil {
			err = fmt.Errorf("%s: backend returned no result", backend.Name())
		}
		if err == nil {
			o.metrics.RecordChunkAttempt(backend.Name(), "success", latency)
			o.setStatus(table, chunk.Index, StateSucceeded, backend.Name(), attempts, nil)
			return *result
		}

		o.metrics.RecordChunkAttempt(backend.Name(), outcomeFor(err), latency)
		lastErr = err
		failures = append(failures, err.Error())
		logger := logging.WithComponent("pipeline")
		logger.Warn().
			Int("chunkIndex", chunk.Index).
			Str("backend", backend.Name()).
			Int("attempt", attempts).
			Err(err).
			Msg("Chunk transcription attempt failed")

		if i < len(o.backends)-1 && ctx.Err() == nil {
			next := o.backends[i+1]
			o.metrics.RecordBackendFallback(next.Name())
			o.setStatus(table, chunk.Index, StateRetrying, next.Name(), attempts+1, err)
		}
	}

	o.metrics.RecordChunkFailed()
	o.setStatus(table, chunk.Index, StateFailed, lastBackend, attempts, lastErr)

	errText := strings.Join(failures, "; ")
	if errText == "" && lastErr != nil {
		errText = lastErr.Error()
	}
	return models.ChunkResult{
		ChunkIndex: chunk.Index,
		Succeeded:  false,
		Error:      errText,
	}
}

// setStatus records a transition and forwards the new snapshot to the
// progress callback.
func (o *Orchestrator) setStatus(table *StatusTable, index int, next ChunkState, backend string, attempt int, cause error) {
	status, err := table.Transition(index, next, backend, attempt, cause)
	if err != nil {
		logging.WithComponent("pipeline").Error().Err(err).Msg("Chunk status transition rejected")
		return
	}
	if o.onProgress != nil {
		o.onProgress(status)
	}
}

// failPending marks every non-terminal chunk FAILED after an aborted run so
// status snapshots never show in-flight chunks for a dead run.
func (o *Orchestrator) failPending(table *StatusTable, cause error) {
	for _, status := range table.Snapshot() {
		if !status.State.IsTerminal() {
			o.setStatus(table, status.Index, StateFailed, status.Backend, status.Attempt, cause)
		}
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, transcribe.ErrTimeout):
		return "timeout"
	case errors.Is(err, transcribe.ErrAuth):
		return "auth"
	case errors.Is(err, transcribe.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, transcribe.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
