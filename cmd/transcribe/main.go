// Command transcribe runs the chunked transcription pipeline against a local
// recording and writes the merged transcript to a file, without starting the
// service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"meeting-transcript-service/internal/app"
	"meeting-transcript-service/internal/audio"
	"meeting-transcript-service/internal/config"
	"meeting-transcript-service/internal/export"
	"meeting-transcript-service/internal/media"
	"meeting-transcript-service/internal/observability/logging"
	"meeting-transcript-service/internal/pipeline"
	"meeting-transcript-service/internal/redact"
	"meeting-transcript-service/internal/transcribe"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorRed    = "\033[31m"
)

func status(color, tag, msg string, a ...any) {
	fmt.Fprintf(os.Stderr, color+"["+tag+"] "+colorReset+msg+"\n", a...)
}

func info(msg string, a ...any) { status(colorBlue, "info", msg, a...) }
func warn(msg string, a ...any) { status(colorYellow, "warn", msg, a...) }
func ok(msg string, a ...any)   { status(colorGreen, "ok", msg, a...) }
func fail(msg string, a ...any) { status(colorRed, "error", msg, a...) }

func main() {
	cfg := config.Load()

	var (
		inPath       string
		outPath      string
		formatName   string
		backendNames string
		tmpDir       string
		chunkSec     float64
		overlapSec   float64
		concurrency  int
		chunkTimeout time.Duration
		redactPII    bool
		verbose      bool
	)

	flag.StringVar(&inPath, "input", "", "Input audio or video file path (-i)")
	flag.StringVar(&inPath, "i", "", "Input audio or video file path")
	flag.StringVar(&outPath, "out", "", "Output transcript file (-o, default derived from input)")
	flag.StringVar(&outPath, "o", "", "Output transcript file")
	flag.StringVar(&formatName, "format", "txt", "Output format: txt|md|srt")
	flag.StringVar(&backendNames, "backends", "", "Comma-separated backend fallback order (default from config)")
	flag.StringVar(&tmpDir, "tmpdir", "", "Temporary working directory (default system temp)")
	flag.Float64Var(&chunkSec, "chunk-seconds", cfg.Pipeline.ChunkSeconds, "Chunk duration in seconds")
	flag.Float64Var(&overlapSec, "overlap-seconds", cfg.Pipeline.OverlapSeconds, "Overlap between adjacent chunks in seconds")
	flag.IntVar(&concurrency, "concurrency", cfg.Pipeline.MaxConcurrentChunks, "Maximum chunks transcribed in parallel")
	flag.DurationVar(&chunkTimeout, "chunk-timeout", cfg.Pipeline.PerChunkTimeout, "Timeout per transcription attempt")
	flag.BoolVar(&redactPII, "redact", cfg.Pipeline.RedactPII, "Redact emails and phone numbers from the transcript")
	flag.BoolVar(&verbose, "v", false, "Verbose pipeline logging")
	flag.Parse()

	level := "warn"
	if verbose {
		level = "debug"
	}
	logging.Init(logging.Config{Level: level, Format: "console", TimeFormat: time.RFC3339})

	if inPath == "" {
		fail("missing --input/-i recording path")
		os.Exit(2)
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		fail("%v", err)
		os.Exit(2)
	}
	if outPath == "" {
		base := strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath))
		outPath = base + "." + format.Extension()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	registry, priority := app.BuildBackends(ctx, cfg.Backends)
	names := priority
	if backendNames != "" {
		names = nil
		for _, part := range strings.Split(backendNames, ",") {
			if part = strings.TrimSpace(part); part != "" {
				names = append(names, part)
			}
		}
	}
	backends := make([]transcribe.Backend, 0, len(names))
	for _, name := range names {
		backend, found := registry[name]
		if !found {
			fail("unknown backend: %s", name)
			os.Exit(2)
		}
		backends = append(backends, backend)
	}

	info("Normalizing audio via ffmpeg...")
	wavPath, err := media.NewNormalizer(tmpDir).Normalize(ctx, inPath)
	if err != nil {
		fail("audio normalization failed: %v", err)
		os.Exit(1)
	}
	defer os.Remove(wavPath)
	ok("Audio ready: %s", wavPath)

	orch := pipeline.New(pipeline.Config{
		ChunkSeconds:        chunkSec,
		OverlapSeconds:      overlapSec,
		MaxConcurrentChunks: concurrency,
		PerChunkTimeout:     chunkTimeout,
		SimilarityThreshold: cfg.Pipeline.SimilarityThreshold,
	}, audio.NewSegmenter(tmpDir), backends)

	info("Transcribing with backends %s...", strings.Join(names, ", "))
	merged, err := orch.Run(ctx, wavPath)
	if err != nil {
		fail("transcription failed: %v", err)
		os.Exit(1)
	}
	if n := len(merged.FailedChunkIndices); n > 0 {
		warn("%d of %d chunks failed: %v", n, merged.ChunkCount, merged.FailedChunkIndices)
	}
	ok("Transcription done: %d segments from %d chunks", len(merged.Segments), merged.ChunkCount)

	if redactPII {
		merged = redact.New().RedactTranscript(merged)
		info("Redacted emails and phone numbers")
	}

	body, err := export.Render(format, nil, merged)
	if err != nil {
		fail("rendering %s output: %v", format, err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, []byte(body), 0o644); err != nil {
		fail("writing output: %v", err)
		os.Exit(1)
	}
	ok("Wrote %s", outPath)
}
