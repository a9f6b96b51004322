package google

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"meeting-transcript-service/internal/transcribe"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"UNKNOWN", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"invalid", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},        // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMapStatusError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad token"), transcribe.ErrAuth},
		{"permission denied", status.Error(codes.PermissionDenied, "no access"), transcribe.ErrAuth},
		{"resource exhausted", status.Error(codes.ResourceExhausted, "quota"), transcribe.ErrRateLimited},
		{"deadline exceeded", status.Error(codes.DeadlineExceeded, "too slow"), transcribe.ErrTimeout},
		{"unavailable", status.Error(codes.Unavailable, "down"), transcribe.ErrUnavailable},
		{"context deadline", context.DeadlineExceeded, transcribe.ErrTimeout},
		{"plain error", errors.New("boom"), transcribe.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapStatusError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("mapStatusError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSegmentFromAlternative_WordOffsets(t *testing.T) {
	alt := &speechpb.SpeechRecognitionAlternative{
		Transcript: " welcome everyone to standup ",
		Words: []*speechpb.WordInfo{
			{
				Word:       "welcome",
				StartTime:  durationpb.New(1200 * time.Millisecond),
				EndTime:    durationpb.New(1700 * time.Millisecond),
				SpeakerTag: 2,
			},
			{
				Word:      "standup",
				StartTime: durationpb.New(3 * time.Second),
				EndTime:   durationpb.New(3500 * time.Millisecond),
			},
		},
	}

	seg := segmentFromAlternative(alt, 30)
	if seg.StartSec != 1.2 {
		t.Errorf("StartSec = %v, want 1.2", seg.StartSec)
	}
	if seg.EndSec != 3.5 {
		t.Errorf("EndSec = %v, want 3.5", seg.EndSec)
	}
	if seg.Text != "welcome everyone to standup" {
		t.Errorf("Text = %q", seg.Text)
	}
	if seg.SpeakerLabel != "Speaker 2" {
		t.Errorf("SpeakerLabel = %q, want %q", seg.SpeakerLabel, "Speaker 2")
	}
}

func TestSegmentFromAlternative_NoWords(t *testing.T) {
	alt := &speechpb.SpeechRecognitionAlternative{Transcript: "just text"}

	seg := segmentFromAlternative(alt, 12.5)
	if seg.StartSec != 0 || seg.EndSec != 12.5 {
		t.Errorf("span = [%v, %v], want [0, 12.5]", seg.StartSec, seg.EndSec)
	}
	if seg.SpeakerLabel != "" {
		t.Errorf("SpeakerLabel = %q, want empty", seg.SpeakerLabel)
	}
}
