// Package models defines the data structures shared across the pipeline.
package models

// AudioChunk is one bounded-duration slice of the source audio, written to
// disk by the segmenter and read by exactly one transcription attempt.
// Chunks from one source cover [0, duration] contiguously in index order.
type AudioChunk struct {
	Index          int     `json:"index"`
	StartOffsetSec float64 `json:"startOffsetSec"`
	EndOffsetSec   float64 `json:"endOffsetSec"`
	Path           string  `json:"path"`
}

// DurationSec returns the chunk's duration in seconds.
func (c AudioChunk) DurationSec() float64 {
	return c.EndOffsetSec - c.StartOffsetSec
}

// Span returns the chunk's timing metadata without the file handle.
func (c AudioChunk) Span() ChunkSpan {
	return ChunkSpan{Index: c.Index, StartSec: c.StartOffsetSec, EndSec: c.EndOffsetSec}
}

// ChunkSpan is the timing metadata of a chunk, retained after the chunk
// bytes are released. The merger re-offsets local timestamps with it.
type ChunkSpan struct {
	Index    int     `json:"index"`
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

// TranscriptSegment is one timed span of speech. Inside a ChunkResult the
// timestamps are local (0-based from chunk start); inside a MergedTranscript
// they are global (offset from the start of the full recording).
type TranscriptSegment struct {
	StartSec     float64 `json:"startSec"`
	EndSec       float64 `json:"endSec"`
	Text         string  `json:"text"`
	SpeakerLabel string  `json:"speakerLabel,omitempty"`
}

// ChunkResult is the outcome of transcribing one chunk. Immutable once
// produced; owned by the orchestrator until merged.
type ChunkResult struct {
	ChunkIndex  int                 `json:"chunkIndex"`
	Text        string              `json:"text"`
	Segments    []TranscriptSegment `json:"segments"`
	BackendUsed string              `json:"backendUsed"`
	Succeeded   bool                `json:"succeeded"`
	Error       string              `json:"error,omitempty"`
}

// MergedTranscript is the pipeline's sole durable output: one ordered
// transcript reassembled from per-chunk results.
type MergedTranscript struct {
	Segments           []TranscriptSegment `json:"segments"`
	FullText           string              `json:"fullText"`
	Speakers           []string            `json:"speakers"`
	ChunkCount         int                 `json:"chunkCount"`
	FailedChunkIndices []int               `json:"failedChunkIndices"`
}
