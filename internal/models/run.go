package models

import "time"

// RunState is the lifecycle state of a transcription run.
type RunState string

const (
	RunStateQueued    RunState = "queued"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

// IsTerminal returns true once the run can no longer change state.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed || s == RunStateCancelled
}

// RunRecord is the durable record of one pipeline run, keyed by run ID.
type RunRecord struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	State        RunState  `json:"state"`
	DurationSec  float64   `json:"durationSec"`
	ChunkCount   int       `json:"chunkCount"`
	FailedChunks []int     `json:"failedChunks,omitempty"`
	RedactPII    bool      `json:"redactPii"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	CompletedAt  time.Time `json:"completedAt,omitempty"`
}
