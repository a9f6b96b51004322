// Package pipeline coordinates segmentation, per-chunk transcription with
// backend fallback, and the final merge into one ordered transcript.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ChunkState is the lifecycle state of one chunk's transcription.
type ChunkState int

const (
	// StatePending - chunk is planned, no attempt started yet.
	StatePending ChunkState = iota
	// StateInFlight - an attempt against one backend is running.
	StateInFlight
	// StateRetrying - the previous backend failed, the next one is queued.
	StateRetrying
	// StateSucceeded - a backend produced a transcript. Terminal.
	StateSucceeded
	// StateFailed - every configured backend failed, or the run was
	// cancelled before the chunk could finish. Terminal.
	StateFailed
)

// String returns the string representation of the state.
func (s ChunkState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateInFlight:
		return "IN_FLIGHT"
	case StateRetrying:
		return "RETRYING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// MarshalJSON renders the state as its string form in API responses and events.
func (s ChunkState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// IsTerminal returns true if the state is terminal (SUCCEEDED or FAILED).
func (s ChunkState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// CanTransitionTo reports whether moving from s to next is a legal step.
//
// State transitions:
//
//	PENDING → IN_FLIGHT → {SUCCEEDED | RETRYING | FAILED}
//	RETRYING → IN_FLIGHT
//
// FAILED is additionally reachable from any non-terminal state so a
// cancelled run can fail chunks that never started an attempt.
func (s ChunkState) CanTransitionTo(next ChunkState) bool {
	switch s {
	case StatePending:
		return next == StateInFlight || next == StateFailed
	case StateInFlight:
		return next == StateSucceeded || next == StateRetrying || next == StateFailed
	case StateRetrying:
		return next == StateInFlight || next == StateFailed
	default:
		return false
	}
}

// ErrIllegalTransition reports a rejected chunk state transition.
var ErrIllegalTransition = errors.New("illegal chunk state transition")

// ChunkStatus is a snapshot of one chunk's progress.
type ChunkStatus struct {
	Index   int        `json:"index"`
	State   ChunkState `json:"state"`
	Backend string     `json:"backend,omitempty"`
	Attempt int        `json:"attempt,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// StatusTable tracks per-chunk transcription status for one run. The
// orchestrator guarantees exactly one writer per chunk index; reads may come
// from any goroutine and always see a consistent snapshot.
type StatusTable struct {
	mu    sync.RWMutex
	slots []ChunkStatus
}

// NewStatusTable creates a table with count chunks, all PENDING.
func NewStatusTable(count int) *StatusTable {
	t := &StatusTable{slots: make([]ChunkStatus, count)}
	for i := range t.slots {
		t.slots[i] = ChunkStatus{Index: i, State: StatePending}
	}
	return t
}

// Len returns the number of tracked chunks.
func (t *StatusTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots)
}

// Transition moves one chunk to the next state and returns the new snapshot.
// Illegal transitions are rejected with ErrIllegalTransition.
func (t *StatusTable) Transition(index int, next ChunkState, backend string, attempt int, cause error) (ChunkStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.slots) {
		return ChunkStatus{}, fmt.Errorf("chunk index %d out of range [0, %d)", index, len(t.slots))
	}
	current := t.slots[index]
	if !current.State.CanTransitionTo(next) {
		return ChunkStatus{}, fmt.Errorf("%w: chunk %d %s -> %s", ErrIllegalTransition, index, current.State, next)
	}
	status := ChunkStatus{Index: index, State: next, Backend: backend, Attempt: attempt}
	if cause != nil {
		status.Error = cause.Error()
	}
	t.slots[index] = status
	return status, nil
}

// Get returns one chunk's status.
func (t *StatusTable) Get(index int) (ChunkStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index < 0 || index >= len(t.slots) {
		return ChunkStatus{}, false
	}
	return t.slots[index], true
}

// Snapshot returns a copy of every chunk's status, ordered by index.
func (t *StatusTable) Snapshot() []ChunkStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ChunkStatus, len(t.slots))
	copy(out, t.slots)
	return out
}
