// Package media normalizes uploaded recordings into the PCM WAV format the
// segmenter and the transcription backends expect, by shelling out to ffmpeg.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"meeting-transcript-service/internal/observability/logging"
)

// Normalized audio parameters: 16 kHz mono signed 16-bit PCM.
const (
	targetSampleRate = "16000"
	targetChannels   = "1"
	targetCodec      = "pcm_s16le"
)

// Runner executes an external command and returns its combined output.
// Injectable so tests can run without ffmpeg installed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Normalizer converts arbitrary audio/video uploads to normalized WAV files.
type Normalizer struct {
	ffmpegPath string
	tempDir    string
	runner     Runner
}

// NewNormalizer creates a Normalizer writing output under tempDir. An empty
// tempDir uses the system temp directory.
func NewNormalizer(tempDir string) *Normalizer {
	return NewNormalizerWithRunner(tempDir, execRunner{})
}

// NewNormalizerWithRunner creates a Normalizer with a custom command runner.
func NewNormalizerWithRunner(tempDir string, runner Runner) *Normalizer {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Normalizer{ffmpegPath: "ffmpeg", tempDir: tempDir, runner: runner}
}

// Normalize transcodes the source into a 16 kHz mono PCM WAV file and returns
// its path. The caller owns the returned file and removes it when done.
func (n *Normalizer) Normalize(ctx context.Context, srcPath string) (string, error) {
	if _, err := os.Stat(srcPath); err != nil {
		return "", fmt.Errorf("source not readable: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	out := filepath.Join(n.tempDir, base+"_16k.wav")

	// ffmpeg -y -i input -ac 1 -ar 16000 -acodec pcm_s16le -f wav output
	args := []string{
		"-y", "-i", srcPath,
		"-ac", targetChannels,
		"-ar", targetSampleRate,
		"-acodec", targetCodec,
		"-f", "wav",
		out,
	}

	output, err := n.runner.Run(ctx, n.ffmpegPath, args...)
	if err != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg normalize: %w: %s", err, tail(output, 512))
	}

	logger := logging.WithComponent("media")
	logger.Debug().
		Str("source", srcPath).
		Str("normalized", out).
		Msg("Normalized audio")

	return out, nil
}

// tail returns the last max bytes of command output, for error context.
func tail(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
