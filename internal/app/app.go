// Package app wires configuration, storage, transcription backends and the
// HTTP servers into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"meeting-transcript-service/internal/audio"
	"meeting-transcript-service/internal/config"
	"meeting-transcript-service/internal/events"
	apihttp "meeting-transcript-service/internal/http"
	"meeting-transcript-service/internal/media"
	"meeting-transcript-service/internal/observability"
	"meeting-transcript-service/internal/observability/logging"
	"meeting-transcript-service/internal/redact"
	"meeting-transcript-service/internal/runs"
	"meeting-transcript-service/internal/store"
	"meeting-transcript-service/internal/transcribe"
	"meeting-transcript-service/internal/transcribe/assemblyai"
	"meeting-transcript-service/internal/transcribe/google"
	"meeting-transcript-service/internal/transcribe/local"
	"meeting-transcript-service/internal/transcribe/openai"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Cfg         *config.Configuration

	store     *store.Store
	publisher *events.Publisher
	manager   *runs.Manager
	hub       *apihttp.Hub
	apiServer *http.Server
	obsServer *observability.Server
	ready     atomic.Bool
}

// New constructs the application from the provided configuration. The
// context bounds backend client initialization only.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	publisher := events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicProgress:  cfg.Kafka.TopicProgress,
		TopicCompleted: cfg.Kafka.TopicCompleted,
		Principal:      cfg.Kafka.Principal,
	})

	registry, priority := BuildBackends(ctx, cfg.Backends)

	manager := runs.NewManager(runs.Deps{
		Defaults:   cfg.Pipeline,
		Store:      st,
		Publisher:  publisher,
		Segmenter:  audio.NewSegmenter(""),
		Normalizer: media.NewNormalizer(""),
		Redactor:   redact.New(),
		Backends:   registry,
		Priority:   priority,
	})

	hub := apihttp.NewHub()
	manager.AddListener(hub)

	handlers := apihttp.NewHandlers(manager, hub, cfg.Pipeline.MaxUploadBytes)

	a := &Application{
		Cfg:       cfg,
		store:     st,
		publisher: publisher,
		manager:   manager,
		hub:       hub,
		apiServer: &http.Server{
			Addr:              ":" + cfg.Service.HTTPPort,
			Handler:           apihttp.NewRouter(handlers),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
	a.obsServer = observability.NewServer(cfg.Observability.MetricsAddr, a.ready.Load)

	log.Info().
		Str("principal", cfg.Service.Principal).
		Strs("backends", priority).
		Str("dataDir", cfg.Storage.DataDir).
		Msg("Service application created")
	return a, nil
}

// BuildBackends assembles the backend registry from configured providers.
// Providers without credentials are skipped; the local backend is always
// registered so the pipeline keeps a fallback of last resort. The returned
// priority list holds the configured fallback order filtered to available
// backends.
func BuildBackends(ctx context.Context, cfg config.BackendsConfig) (map[string]transcribe.Backend, []string) {
	registry := make(map[string]transcribe.Backend)

	if cfg.OpenAI.APIKey != "" {
		registry["openai"] = openai.New(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		})
	}
	if cfg.AssemblyAI.APIKey != "" {
		registry["assemblyai"] = assemblyai.New(assemblyai.Config{
			APIKey:  cfg.AssemblyAI.APIKey,
			BaseURL: cfg.AssemblyAI.BaseURL,
		})
	}
	if cfg.Google.Enabled {
		gcfg := google.DefaultConfig()
		if cfg.Google.LanguageCode != "" {
			gcfg.LanguageCode = cfg.Google.LanguageCode
		}
		if cfg.Google.SampleRateHz > 0 {
			gcfg.SampleRateHz = int32(cfg.Google.SampleRateHz)
		}
		if cfg.Google.AudioEncoding != "" {
			gcfg.AudioEncoding = cfg.Google.AudioEncoding
		}
		backend, err := google.New(ctx, gcfg)
		if err != nil {
			log.Warn().Err(err).Msg("Google Speech backend unavailable, skipping")
		} else {
			registry["google"] = backend
		}
	}
	registry["local"] = local.New()

	priority := make([]string, 0, len(cfg.Priority))
	for _, name := range cfg.Priority {
		if _, ok := registry[name]; ok {
			priority = append(priority, name)
		} else {
			log.Warn().Str("backend", name).Msg("Configured backend not available, skipping")
		}
	}
	if len(priority) == 0 {
		priority = []string{"local"}
	}
	return registry, priority
}

// Start brings up the event hub, the observability server and the API
// server. Bind failures surface here; serve-loop errors are logged.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()

	go a.hub.Run()
	a.obsServer.Start()

	ln, err := net.Listen("tcp", a.apiServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.apiServer.Addr, err)
	}
	go func() {
		log.Info().Str("addr", a.apiServer.Addr).Msg("API server listening")
		if err := a.apiServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("API server error")
		}
	}()

	a.ready.Store(true)
	log.Info().Time("startupTime", a.StartupTime).Msg("Service started")
	return nil
}

// Shutdown stops accepting requests, cancels active runs and releases every
// resource. Bounded by ctx.
func (a *Application) Shutdown(ctx context.Context) {
	a.ready.Store(false)
	log.Info().Msg("Service shutting down")

	if err := a.apiServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("API server shutdown")
	}
	if err := a.manager.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Run manager shutdown")
	}
	a.hub.Close()
	if err := a.obsServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Observability server shutdown")
	}
	if err := a.publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("Kafka publisher close")
	}
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Store close")
	}
	log.Info().Msg("Shutdown complete")
}
