// Package transcribe defines the contract shared by all transcription
// backend adapters and the error taxonomy the orchestrator uses to decide
// when to fall back to the next backend.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"meeting-transcript-service/internal/models"
)

// Backend transcribes a single audio chunk. Implementations return segments
// with chunk-local timestamps (0-based from chunk start) and must not mutate
// the chunk; offsetting into the full-recording timeline is the merger's job.
type Backend interface {
	// Name identifies the backend in results, events and metrics.
	Name() string

	// Transcribe sends one chunk and returns its transcript. Cancellation
	// and per-attempt deadlines arrive through ctx.
	Transcribe(ctx context.Context, chunk models.AudioChunk) (*models.ChunkResult, error)
}

// Failure kinds. The orchestrator matches these with errors.Is to decide
// whether to try the next backend in priority order.
var (
	// ErrTimeout marks an attempt that exceeded its deadline.
	ErrTimeout = errors.New("transcription attempt timed out")
	// ErrAuth marks rejected credentials. Never retried on the same backend.
	ErrAuth = errors.New("transcription backend rejected credentials")
	// ErrRateLimited marks a throttled attempt. Never retried on the same backend.
	ErrRateLimited = errors.New("transcription backend rate limited")
	// ErrUnavailable marks transport failures and server-side errors.
	ErrUnavailable = errors.New("transcription backend unavailable")
)

// BackendError wraps a provider failure with its classification kind.
type BackendError struct {
	Provider string
	Kind     error // one of the sentinel kinds above
	Err      error // underlying cause, may be nil
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
}

// Unwrap exposes both the kind and the cause so errors.Is works against the
// sentinel kinds and against wrapped transport errors.
func (e *BackendError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewError builds a classified backend error.
func NewError(provider string, kind, cause error) *BackendError {
	return &BackendError{Provider: provider, Kind: kind, Err: cause}
}

// KindForStatus maps an HTTP response status to a failure kind.
func KindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		return ErrUnavailable
	}
}

// KindForTransport maps a transport-level error (dial failure, deadline,
// cancelled context) to a failure kind.
func KindForTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUnavailable
}
