// Package google provides a Google Cloud Speech-to-Text transcription backend.
package google

import (
	"context"
	"fmt"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"meeting-transcript-service/internal/models"
	"meeting-transcript-service/internal/transcribe"
)

// BackendName identifies this adapter in results, events and metrics.
const BackendName = "google"

// Config holds recognition settings.
type Config struct {
	LanguageCode  string
	SampleRateHz  int32
	AudioEncoding string
	MaxSpeakers   int32
}

// DefaultConfig returns settings matching the pipeline's normalized audio:
// 16 kHz mono LINEAR16 WAV.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  16000,
		AudioEncoding: "LINEAR16",
		MaxSpeakers:   6,
	}
}

// Backend implements transcribe.Backend using Google Cloud Speech-to-Text
// batch recognition.
type Backend struct {
	client *speech.Client
	cfg    Config
}

// New creates a new Google backend.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, transcribe.NewError(BackendName, mapStatusError(err), err)
	}
	return &Backend{client: c, cfg: cfg}, nil
}

// Name returns the adapter identifier.
func (b *Backend) Name() string {
	return BackendName
}

// Close releases the underlying gRPC connection.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Transcribe sends the chunk audio through batch recognition with word time
// offsets and speaker diarization enabled, and assembles chunk-relative
// segments from the word stream.
func (b *Backend) Transcribe(ctx context.Context, chunk models.AudioChunk) (*models.ChunkResult, error) {
	data, err := os.ReadFile(chunk.Path)
	if err != nil {
		return nil, transcribe.NewError(BackendName, transcribe.ErrUnavailable, fmt.Errorf("read chunk: %w", err))
	}

	resp, err := b.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(b.cfg.AudioEncoding),
			SampleRateHertz:            b.cfg.SampleRateHz,
			LanguageCode:               b.cfg.LanguageCode,
			EnableWordTimeOffsets:      true,
			EnableAutomaticPunctuation: true,
			DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
				EnableSpeakerDiarization: true,
				MaxSpeakerCount:          b.cfg.MaxSpeakers,
			},
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	})
	if err != nil {
		return nil, transcribe.NewError(BackendName, mapStatusError(err), err)
	}

	var (
		segments []models.TranscriptSegment
		parts    []string
	)
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		segments = append(segments, segmentFromAlternative(alt, chunk.DurationSec()))
	}
	if len(segments) == 0 {
		return nil, transcribe.NewError(BackendName, transcribe.ErrUnavailable,
			fmt.Errorf("recognition returned no results"))
	}

	return &models.ChunkResult{
		ChunkIndex:  chunk.Index,
		Text:        strings.Join(parts, " "),
		Segments:    segments,
		BackendUsed: BackendName,
		Succeeded:   true,
	}, nil
}

// segmentFromAlternative builds one chunk-relative segment from an
// alternative, using the first and last word offsets when present.
func segmentFromAlternative(alt *speechpb.SpeechRecognitionAlternative, chunkDuration float64) models.TranscriptSegment {
	seg := models.TranscriptSegment{
		StartSec: 0,
		EndSec:   chunkDuration,
		Text:     strings.TrimSpace(alt.Transcript),
	}
	if len(alt.Words) > 0 {
		first, last := alt.Words[0], alt.Words[len(alt.Words)-1]
		if first.StartTime != nil {
			seg.StartSec = first.StartTime.AsDuration().Seconds()
		}
		if last.EndTime != nil {
			seg.EndSec = last.EndTime.AsDuration().Seconds()
		}
		if tag := first.SpeakerTag; tag > 0 {
			seg.SpeakerLabel = fmt.Sprintf("Speaker %d", tag)
		}
	}
	return seg
}

// parseAudioEncoding converts a config string to the proto enum,
// falling back to LINEAR16.
func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// mapStatusError classifies a gRPC error into the shared failure kinds.
func mapStatusError(err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return transcribe.ErrAuth
	case codes.ResourceExhausted:
		return transcribe.ErrRateLimited
	case codes.DeadlineExceeded:
		return transcribe.ErrTimeout
	default:
		return transcribe.KindForTransport(err)
	}
}
