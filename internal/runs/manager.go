// Package runs owns the transcription run lifecycle: it creates runs from
// uploads, executes the pipeline in the background, persists results and fans
// progress out to Kafka and live subscribers.
package runs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"meeting-transcript-service/internal/audio"
	"meeting-transcript-service/internal/config"
	"meeting-transcript-service/internal/events"
	"meeting-transcript-service/internal/media"
	"meeting-transcript-service/internal/models"
	"meeting-transcript-service/internal/observability/logging"
	"meeting-transcript-service/internal/observability/metrics"
	"meeting-transcript-service/internal/pipeline"
	"meeting-transcript-service/internal/redact"
	"meeting-transcript-service/internal/store"
	"meeting-transcript-service/internal/transcribe"
)

var (
	// ErrUnknownBackend reports a backend name with no registered adapter.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrInvalidSettings reports per-run overrides that cannot work.
	ErrInvalidSettings = errors.New("invalid run settings")
	// ErrNotRunning reports a cancel request for a run with no live pipeline.
	ErrNotRunning = errors.New("run is not running")
	// ErrNoTranscript reports a transcript request for a run that has not
	// completed successfully.
	ErrNoTranscript = errors.New("run has no transcript")
)

// Listener receives run events as they happen. Callbacks fire on pipeline
// goroutines and must not block.
type Listener interface {
	OnChunkProgress(event models.ChunkProgress)
	OnRunCompleted(event models.RunCompleted)
}

// Settings carries per-run overrides accepted at upload time. Zero fields
// fall back to the configured pipeline defaults.
type Settings struct {
	ChunkSeconds        float64
	OverlapSeconds      float64
	MaxConcurrentChunks int
	PerChunkTimeout     time.Duration
	RedactPII           *bool
	Backends            []string
}

// Deps are the collaborators a Manager needs.
type Deps struct {
	Defaults   config.PipelineConfig
	Store      *store.Store
	Publisher  *events.Publisher
	Segmenter  *audio.Segmenter
	Normalizer *media.Normalizer
	Redactor   *redact.Redactor
	Backends   map[string]transcribe.Backend
	Priority   []string
}

// Manager coordinates every run from upload to terminal state.
type Manager struct {
	defaults   config.PipelineConfig
	store      *store.Store
	publisher  *events.Publisher
	segmenter  *audio.Segmenter
	normalizer *media.Normalizer
	redactor   *redact.Redactor
	registry   map[string]transcribe.Backend
	priority   []string
	metrics    *metrics.Metrics

	mu        sync.Mutex
	active    map[string]*activeRun
	listeners []Listener
	wg        sync.WaitGroup
}

type activeRun struct {
	cancel context.CancelFunc
	orch   *pipeline.Orchestrator
}

// NewManager creates a run manager.
func NewManager(deps Deps) *Manager {
	return &Manager{
		defaults:   deps.Defaults,
		store:      deps.Store,
		publisher:  deps.Publisher,
		segmenter:  deps.Segmenter,
		normalizer: deps.Normalizer,
		redactor:   deps.Redactor,
		registry:   deps.Backends,
		priority:   deps.Priority,
		metrics:    metrics.DefaultMetrics,
		active:     make(map[string]*activeRun),
	}
}

// AddListener registers a live event subscriber. Register listeners during
// wiring, before the first run starts.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Start registers a run for the uploaded audio file and begins executing it
// in the background. On success the manager owns audioPath and removes it
// when the run finishes. The returned record is a snapshot.
func (m *Manager) Start(filename, audioPath string, settings Settings) (*models.RunRecord, error) {
	pcfg, backends, redactPII, err := m.resolve(settings)
	if err != nil {
		return nil, err
	}

	record := &models.RunRecord{
		ID:        uuid.NewString(),
		Filename:  filename,
		State:     models.RunStateQueued,
		RedactPII: redactPII,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.PutRun(record); err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	orch := pipeline.New(pcfg, m.segmenter, backends)

	m.mu.Lock()
	m.active[record.ID] = &activeRun{cancel: cancel, orch: orch}
	m.mu.Unlock()

	m.metrics.RecordRunStart()
	logging.WithRun(record.ID).Info().
		Str("filename", filename).
		Float64("chunkSeconds", pcfg.ChunkSeconds).
		Int("backends", len(backends)).
		Bool("redactPii", redactPII).
		Msg("Run accepted")

	m.wg.Add(1)
	go m.execute(ctx, record, orch, audioPath, redactPII)

	snapshot := *record
	return &snapshot, nil
}

// Get returns the stored record for one run.
func (m *Manager) Get(id string) (*models.RunRecord, error) {
	return m.store.GetRun(id)
}

// List returns all stored run records, newest first.
func (m *Manager) List() ([]models.RunRecord, error) {
	return m.store.ListRuns()
}

// ChunkStatuses returns live per-chunk statuses for a running run. Nil when
// the run has no live pipeline.
func (m *Manager) ChunkStatuses(id string) []pipeline.ChunkStatus {
	m.mu.Lock()
	run, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return run.orch.Status()
}

// Cancel stops a running run. Returns store.ErrNotFound for unknown runs and
// ErrNotRunning once the run is already terminal.
func (m *Manager) Cancel(id string) error {
	if _, err := m.store.GetRun(id); err != nil {
		return err
	}
	m.mu.Lock()
	run, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	run.cancel()
	return nil
}

// Transcript loads the stored transcript for a completed run. With
// redactRequested the transcript is redacted at read time regardless of the
// run's persist-time setting.
func (m *Manager) Transcript(id string, redactRequested bool) (*models.MergedTranscript, error) {
	transcript, err := m.store.GetTranscript(id)
	if errors.Is(err, store.ErrNotFound) {
		record, recErr := m.store.GetRun(id)
		if recErr != nil {
			return nil, recErr
		}
		return nil, fmt.Errorf("%w: run %s is %s", ErrNoTranscript, record.ID, record.State)
	}
	if err != nil {
		return nil, err
	}
	if redactRequested && m.redactor != nil {
		transcript = m.redactor.RedactTranscript(transcript)
	}
	return transcript, nil
}

// Shutdown cancels every active run and waits for their goroutines to flush
// state, or until ctx expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, run := range m.active {
		run.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve merges per-run settings over the configured defaults and resolves
// backend names against the registry.
func (m *Manager) resolve(settings Settings) (pipeline.Config, []transcribe.Backend, bool, error) {
	pcfg := pipeline.Config{
		ChunkSeconds:        m.defaults.ChunkSeconds,
		OverlapSeconds:      m.defaults.OverlapSeconds,
		MaxConcurrentChunks: m.defaults.MaxConcurrentChunks,
		PerChunkTimeout:     m.defaults.PerChunkTimeout,
		SimilarityThreshold: m.defaults.SimilarityThreshold,
	}
	if settings.ChunkSeconds > 0 {
		pcfg.ChunkSeconds = settings.ChunkSeconds
	}
	if settings.OverlapSeconds > 0 {
		pcfg.OverlapSeconds = settings.OverlapSeconds
	}
	if settings.MaxConcurrentChunks > 0 {
		pcfg.MaxConcurrentChunks = settings.MaxConcurrentChunks
	}
	if settings.PerChunkTimeout > 0 {
		pcfg.PerChunkTimeout = settings.PerChunkTimeout
	}
	if pcfg.ChunkSeconds <= 0 || pcfg.OverlapSeconds < 0 || pcfg.OverlapSeconds >= pcfg.ChunkSeconds {
		return pipeline.Config{}, nil, false, fmt.Errorf(
			"%w: chunk %.1fs with overlap %.1fs", ErrInvalidSettings, pcfg.ChunkSeconds, pcfg.OverlapSeconds)
	}

	names := settings.Backends
	if len(names) == 0 {
		names = m.priority
	}
	backends := make([]transcribe.Backend, 0, len(names))
	for _, name := range names {
		backend, ok := m.registry[name]
		if !ok {
			return pipeline.Config{}, nil, false, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
		}
		backends = append(backends, backend)
	}
	if len(backends) == 0 {
		return pipeline.Config{}, nil, false, fmt.Errorf("%w: no backends selected", ErrInvalidSettings)
	}

	redactPII := m.defaults.RedactPII
	if settings.RedactPII != nil {
		redactPII = *settings.RedactPII
	}
	return pcfg, backends, redactPII, nil
}

// execute drives one run to a terminal state. It owns the run record and the
// uploaded file for the duration.
func (m *Manager) execute(ctx context.Context, record *models.RunRecord, orch *pipeline.Orchestrator, audioPath string, redactPII bool) {
	logger := logging.WithRun(record.ID)
	start := time.Now()

	defer func() {
		m.mu.Lock()
		delete(m.active, record.ID)
		m.mu.Unlock()
		if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", audioPath).Msg("Failed to remove uploaded file")
		}
		m.wg.Done()
	}()

	record.State = models.RunStateRunning
	if err := m.store.PutRun(record); err != nil {
		logger.Error().Err(err).Msg("Failed to persist running state")
	}

	wavPath, err := m.normalizer.Normalize(ctx, audioPath)
	if err != nil {
		m.finish(ctx, record, start, nil, false, fmt.Errorf("normalize audio: %w", err))
		return
	}
	defer os.Remove(wavPath)

	info, err := audio.Probe(wavPath)
	if err != nil {
		m.finish(ctx, record, start, nil, false, fmt.Errorf("probe audio: %w", err))
		return
	}
	record.DurationSec = info.DurationSec

	orch.SetProgress(func(status pipeline.ChunkStatus) {
		m.emitProgress(record.ID, status)
	})

	merged, err := orch.Run(ctx, wavPath)
	m.finish(ctx, record, start, merged, redactPII, err)
}

// finish persists the terminal state, records run metrics and emits the
// completion event.
func (m *Manager) finish(ctx context.Context, record *models.RunRecord, start time.Time, merged *models.MergedTranscript, redactPII bool, runErr error) {
	logger := logging.WithRun(record.ID)

	if runErr == nil {
		if redactPII && m.redactor != nil {
			merged = m.redactor.RedactTranscript(merged)
		}
		if err := m.store.PutTranscript(record.ID, merged); err != nil {
			runErr = fmt.Errorf("persist transcript: %w", err)
		} else {
			record.State = models.RunStateCompleted
			record.ChunkCount = merged.ChunkCount
			record.FailedChunks = merged.FailedChunkIndices
		}
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) || ctx.Err() == context.Canceled {
			record.State = models.RunStateCancelled
		} else {
			record.State = models.RunStateFailed
		}
		record.Error = runErr.Error()
	}
	record.CompletedAt = time.Now().UTC()

	if err := m.store.PutRun(record); err != nil {
		logger.Error().Err(err).Msg("Failed to persist terminal state")
	}
	m.metrics.RecordRunEnd(record.State == models.RunStateCompleted, time.Since(start).Seconds())
	m.emitCompleted(record)

	logger.Info().
		Str("state", string(record.State)).
		Int("chunks", record.ChunkCount).
		Ints("failedChunks", record.FailedChunks).
		Dur("elapsed", time.Since(start)).
		Msg("Run finished")
}

// emitProgress forwards a chunk transition to Kafka and live listeners.
// Publishing uses a fresh context so a cancelled run still emits its final
// transitions.
func (m *Manager) emitProgress(runID string, status pipeline.ChunkStatus) {
	event := models.ChunkProgress{
		EventType:  models.EventChunkProgress,
		RunID:      runID,
		ChunkIndex: status.Index,
		Status:     status.State.String(),
		Backend:    status.Backend,
		Attempt:    status.Attempt,
		Error:      status.Error,
		Timestamp:  time.Now().UnixMilli(),
	}
	if m.publisher != nil {
		if err := m.publisher.PublishProgress(context.Background(), runID, event); err != nil {
			logging.WithRun(runID).Warn().Err(err).Msg("Failed to publish chunk progress")
		}
	}
	for _, l := range m.snapshotListeners() {
		l.OnChunkProgress(event)
	}
}

func (m *Manager) emitCompleted(record *models.RunRecord) {
	event := models.RunCompleted{
		EventType:    models.EventRunCompleted,
		RunID:        record.ID,
		State:        string(record.State),
		ChunkCount:   record.ChunkCount,
		FailedChunks: record.FailedChunks,
		DurationSec:  record.DurationSec,
		Error:        record.Error,
		Timestamp:    time.Now().UnixMilli(),
	}
	if m.publisher != nil {
		if err := m.publisher.PublishCompleted(context.Background(), record.ID, event); err != nil {
			logging.WithRun(record.ID).Warn().Err(err).Msg("Failed to publish run completion")
		}
	}
	for _, l := range m.snapshotListeners() {
		l.OnRunCompleted(event)
	}
}

func (m *Manager) snapshotListeners() []Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Listener, len(m.listeners))
	copy(out, m.listeners)
	return out
}
