package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"meeting-transcript-service/internal/observability"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1/transcriptions", func(r chi.Router) {
		r.Post("/", h.CreateTranscription)
		r.Get("/", h.ListTranscriptions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetTranscription)
			r.Post("/cancel", h.CancelTranscription)
			r.Get("/transcript", h.GetTranscript)
			r.Get("/export", h.ExportTranscript)
			r.Get("/events", h.StreamEvents)
		})
	})

	return r
}
