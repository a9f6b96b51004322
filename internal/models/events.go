package models

// Event types carried on the Kafka topics and the websocket feed.
const (
	EventChunkProgress = "transcription.chunk.progress"
	EventRunCompleted  = "transcription.run.completed"
)

// ChunkProgress is emitted on every per-chunk state transition.
type ChunkProgress struct {
	EventType  string `json:"eventType" validate:"required"`
	RunID      string `json:"runId" validate:"required"`
	ChunkIndex int    `json:"chunkIndex" validate:"gte=0"`
	Status     string `json:"status" validate:"required"`
	Backend    string `json:"backend,omitempty"`
	Attempt    int    `json:"attempt,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp" validate:"required"`
}

// RunCompleted is emitted once per run when it reaches a terminal state.
type RunCompleted struct {
	EventType    string  `json:"eventType" validate:"required"`
	RunID        string  `json:"runId" validate:"required"`
	State        string  `json:"state" validate:"required"`
	ChunkCount   int     `json:"chunkCount"`
	FailedChunks []int   `json:"failedChunks,omitempty"`
	DurationSec  float64 `json:"durationSec"`
	Error        string  `json:"error,omitempty"`
	Timestamp    int64   `json:"timestamp" validate:"required"`
}
