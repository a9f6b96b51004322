package export

import (
	"errors"
	"strings"
	"testing"
	"time"

	"meeting-transcript-service/internal/models"
)

func sampleTranscript() *models.MergedTranscript {
	return &models.MergedTranscript{
		Segments: []models.TranscriptSegment{
			{StartSec: 0, EndSec: 4.5, Text: "welcome everyone", SpeakerLabel: "spk_0"},
			{StartSec: 4.5, EndSec: 9.25, Text: "thanks for joining", SpeakerLabel: "spk_1"},
			{StartSec: 9.25, EndSec: 12, Text: "first item on the agenda"},
		},
		FullText:   "welcome everyone thanks for joining first item on the agenda",
		Speakers:   []string{"spk_0", "spk_1"},
		ChunkCount: 2,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		wantErr  bool
	}{
		{"", FormatText, false},
		{"txt", FormatText, false},
		{"text", FormatText, false},
		{"TXT", FormatText, false},
		{"md", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"srt", FormatSRT, false},
		{" srt ", FormatSRT, false},
		{"pdf", "", true},
		{"docx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownFormat) {
				t.Errorf("ParseFormat(%q): expected ErrUnknownFormat, got %v", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): unexpected error %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseFormat(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormat_ContentType(t *testing.T) {
	if got := FormatText.ContentType(); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("txt content type = %q", got)
	}
	if got := FormatMarkdown.ContentType(); !strings.HasPrefix(got, "text/markdown") {
		t.Errorf("md content type = %q", got)
	}
	if got := FormatSRT.ContentType(); got != "application/x-subrip" {
		t.Errorf("srt content type = %q", got)
	}
}

func TestText_SpeakerPrefixes(t *testing.T) {
	got := Text(sampleTranscript())
	expected := "spk_0: welcome everyone\nspk_1: thanks for joining\nfirst item on the agenda\n"
	if got != expected {
		t.Errorf("unexpected text rendering:\n%q\nexpected:\n%q", got, expected)
	}
}

func TestText_Empty(t *testing.T) {
	if got := Text(nil); got != "" {
		t.Errorf("expected empty output for nil transcript, got %q", got)
	}
	if got := Text(&models.MergedTranscript{}); got != "" {
		t.Errorf("expected empty output for empty transcript, got %q", got)
	}
}

func TestMarkdown_ContainsMetadataAndBody(t *testing.T) {
	record := &models.RunRecord{
		ID:          "run-42",
		Filename:    "standup.wav",
		DurationSec: 65,
		CreatedAt:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	got := Markdown(record, sampleTranscript())

	for _, want := range []string{
		"# standup.wav",
		"- Run: `run-42`",
		"- Recorded: 2025-06-01T10:00:00Z",
		"- Duration: 1m5s",
		"- Chunks: 2",
		"- Speakers: spk_0, spk_1",
		"\n---\n",
		"[00:00-00:04] spk_0: welcome everyone",
		"[00:09-00:12] first item on the agenda",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("markdown missing %q in:\n%s", want, got)
		}
	}
}

func TestMarkdown_NilRecordFallsBackToGenericTitle(t *testing.T) {
	got := Markdown(nil, sampleTranscript())
	if !strings.HasPrefix(got, "# Meeting Transcript\n") {
		t.Errorf("expected generic title, got:\n%s", got)
	}
}

func TestMarkdown_ReportsFailedChunks(t *testing.T) {
	transcript := sampleTranscript()
	transcript.FailedChunkIndices = []int{1}
	got := Markdown(nil, transcript)
	if !strings.Contains(got, "- Chunks: 2 (1 failed)") {
		t.Errorf("expected failed chunk note in:\n%s", got)
	}
}

func TestSRT_Rendering(t *testing.T) {
	got := SRT(sampleTranscript())
	expected := "1\n" +
		"00:00:00,000 --> 00:00:04,500\n" +
		"spk_0: welcome everyone\n" +
		"\n" +
		"2\n" +
		"00:00:04,500 --> 00:00:09,250\n" +
		"spk_1: thanks for joining\n" +
		"\n" +
		"3\n" +
		"00:00:09,250 --> 00:00:12,000\n" +
		"first item on the agenda\n" +
		"\n"
	if got != expected {
		t.Errorf("unexpected SRT rendering:\n%q\nexpected:\n%q", got, expected)
	}
}

func TestFormatSRTTimestamp(t *testing.T) {
	tests := []struct {
		sec      float64
		expected string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{59.999, "00:00:59,999"},
		{61, "00:01:01,000"},
		{3661.5, "01:01:01,500"},
		{-3, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := FormatSRTTimestamp(tt.sec); got != tt.expected {
			t.Errorf("FormatSRTTimestamp(%v) = %q, expected %q", tt.sec, got, tt.expected)
		}
	}
}

func TestRender_Dispatch(t *testing.T) {
	transcript := sampleTranscript()
	txt, err := Render(FormatText, nil, transcript)
	if err != nil || !strings.Contains(txt, "welcome everyone") {
		t.Errorf("text render: %q, %v", txt, err)
	}
	md, err := Render(FormatMarkdown, nil, transcript)
	if err != nil || !strings.HasPrefix(md, "# ") {
		t.Errorf("markdown render: %q, %v", md, err)
	}
	srt, err := Render(FormatSRT, nil, transcript)
	if err != nil || !strings.Contains(srt, "-->") {
		t.Errorf("srt render: %q, %v", srt, err)
	}
	if _, err := Render(Format("pdf"), nil, transcript); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}
