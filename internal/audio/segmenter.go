// Package audio splits normalized WAV recordings into time-bounded chunks
// suitable for a transcription backend's payload and duration limits.
package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"meeting-transcript-service/internal/models"
	"meeting-transcript-service/internal/observability/logging"
)

// ErrInvalidInput marks an unreadable or empty audio source. Fatal, no retry.
var ErrInvalidInput = errors.New("invalid audio input")

// float comparisons tolerate ffmpeg duration rounding
const boundaryEpsilon = 1e-9

// Plan computes chunk boundaries for a recording of durationSec seconds.
// Chunks are chunkSec long; consecutive chunks share overlapSec seconds of
// audio when overlap is requested. The resulting spans cover [0, durationSec]
// contiguously: with no overlap each span starts where the previous one ends,
// with overlap each span starts overlapSec before it.
func Plan(durationSec, chunkSec, overlapSec float64) ([]models.ChunkSpan, error) {
	if durationSec <= 0 {
		return nil, fmt.Errorf("%w: non-positive duration %v", ErrInvalidInput, durationSec)
	}
	if chunkSec <= 0 {
		return nil, fmt.Errorf("%w: non-positive chunk length %v", ErrInvalidInput, chunkSec)
	}
	if overlapSec < 0 || (overlapSec > 0 && overlapSec >= chunkSec) {
		return nil, fmt.Errorf("%w: overlap %v must be in [0, chunk length)", ErrInvalidInput, overlapSec)
	}

	if durationSec <= chunkSec {
		return []models.ChunkSpan{{Index: 0, StartSec: 0, EndSec: durationSec}}, nil
	}

	step := chunkSec
	if overlapSec > 0 {
		step = chunkSec - overlapSec
	}

	var spans []models.ChunkSpan
	for i := 0; ; i++ {
		start := float64(i) * step
		if start >= durationSec-boundaryEpsilon {
			break
		}
		end := math.Min(start+chunkSec, durationSec)
		spans = append(spans, models.ChunkSpan{Index: i, StartSec: start, EndSec: end})
	}
	return spans, nil
}

// Segmenter slices WAV files into per-chunk WAV files under a scoped temp
// directory.
type Segmenter struct {
	tempRoot string
}

// NewSegmenter returns a Segmenter writing chunk files under tempRoot.
// An empty tempRoot uses the system temp directory.
func NewSegmenter(tempRoot string) *Segmenter {
	return &Segmenter{tempRoot: tempRoot}
}

// Segment splits the WAV file at srcPath into chunks of chunkSec seconds
// with overlapSec seconds of shared audio between consecutive chunks.
// The returned cleanup releases every chunk file; it is safe to call more
// than once. On error no temp artifacts are left behind.
func (s *Segmenter) Segment(ctx context.Context, srcPath string, chunkSec, overlapSec float64) ([]models.AudioChunk, func(), error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer f.Close()

	info, err := readWAVInfo(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if info.dataSize == 0 {
		return nil, nil, fmt.Errorf("%w: empty audio data", ErrInvalidInput)
	}

	spans, err := Plan(info.durationSec(), chunkSec, overlapSec)
	if err != nil {
		return nil, nil, err
	}

	dir, err := os.MkdirTemp(s.tempRoot, "chunks-")
	if err != nil {
		return nil, nil, fmt.Errorf("create chunk dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	totalSamples := info.dataSize / int64(info.blockAlign)
	chunks := make([]models.AudioChunk, 0, len(spans))
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			cleanup()
			return nil, nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("chunk-%04d.wav", span.Index))
		if err := s.writeChunk(f, info, span, totalSamples, path); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("write chunk %d: %w", span.Index, err)
		}
		chunks = append(chunks, models.AudioChunk{
			Index:          span.Index,
			StartOffsetSec: span.StartSec,
			EndOffsetSec:   span.EndSec,
			Path:           path,
		})
	}

	logger := logging.WithComponent("segmenter")
	logger.Debug().
		Str("source", srcPath).
		Int("chunks", len(chunks)).
		Float64("durationSec", info.durationSec()).
		Msg("Segmented audio")

	return chunks, cleanup, nil
}

// writeChunk copies one span's PCM out of the source file, block-aligned.
func (s *Segmenter) writeChunk(f *os.File, info wavInfo, span models.ChunkSpan, totalSamples int64, path string) error {
	startSample := int64(math.Round(span.StartSec * float64(info.sampleRate)))
	endSample := int64(math.Round(span.EndSec * float64(info.sampleRate)))
	if endSample > totalSamples {
		endSample = totalSamples
	}
	if startSample >= endSample {
		return fmt.Errorf("empty span [%v, %v]", span.StartSec, span.EndSec)
	}

	pcm := make([]byte, (endSample-startSample)*int64(info.blockAlign))
	if _, err := f.ReadAt(pcm, info.dataOffset+startSample*int64(info.blockAlign)); err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writePCMWAV(out, pcm, info.sampleRate, info.channels, info.bitsPerSample); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
