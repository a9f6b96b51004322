// Package export renders merged transcripts as plain text, Markdown or SRT
// subtitles for download and CLI output.
package export

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"meeting-transcript-service/internal/models"
)

// Format identifies an export rendering.
type Format string

const (
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
	FormatSRT      Format = "srt"
)

// ErrUnknownFormat reports an unsupported format value.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat maps a query or flag value to a Format. Empty selects txt.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "txt", "text":
		return FormatText, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "srt":
		return FormatSRT, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatSRT:
		return "application/x-subrip"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// Render dispatches to the renderer for f. The record may be nil; renderers
// then skip run metadata.
func Render(f Format, record *models.RunRecord, transcript *models.MergedTranscript) (string, error) {
	switch f {
	case FormatText:
		return Text(transcript), nil
	case FormatMarkdown:
		return Markdown(record, transcript), nil
	case FormatSRT:
		return SRT(transcript), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// Text renders one line per segment, prefixed with the speaker label when
// diarization produced one.
func Text(transcript *models.MergedTranscript) string {
	if transcript == nil || len(transcript.Segments) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range transcript.Segments {
		if seg.SpeakerLabel != "" {
			fmt.Fprintf(&b, "%s: %s\n", seg.SpeakerLabel, seg.Text)
			continue
		}
		b.WriteString(seg.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// Markdown renders a document with run metadata up top and one timestamped
// line per segment.
func Markdown(record *models.RunRecord, transcript *models.MergedTranscript) string {
	var b strings.Builder
	title := "Meeting Transcript"
	if record != nil && record.Filename != "" {
		title = record.Filename
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if record != nil {
		fmt.Fprintf(&b, "- Run: `%s`\n", record.ID)
		if !record.CreatedAt.IsZero() {
			fmt.Fprintf(&b, "- Recorded: %s\n", record.CreatedAt.UTC().Format(time.RFC3339))
		}
		if record.DurationSec > 0 {
			dur := time.Duration(record.DurationSec * float64(time.Second))
			fmt.Fprintf(&b, "- Duration: %s\n", dur.Truncate(time.Second))
		}
	}
	if transcript != nil {
		if transcript.ChunkCount > 0 {
			fmt.Fprintf(&b, "- Chunks: %d", transcript.ChunkCount)
			if n := len(transcript.FailedChunkIndices); n > 0 {
				fmt.Fprintf(&b, " (%d failed)", n)
			}
			b.WriteByte('\n')
		}
		if len(transcript.Speakers) > 0 {
			fmt.Fprintf(&b, "- Speakers: %s\n", strings.Join(transcript.Speakers, ", "))
		}
	}
	b.WriteString("\n---\n\n")

	if transcript != nil {
		for _, seg := range transcript.Segments {
			ts := fmt.Sprintf("[%s-%s] ", clock(seg.StartSec), clock(seg.EndSec))
			speaker := ""
			if seg.SpeakerLabel != "" {
				speaker = seg.SpeakerLabel + ": "
			}
			fmt.Fprintf(&b, "%s%s%s\n\n", ts, speaker, strings.TrimSpace(seg.Text))
		}
	}
	return b.String()
}

// SRT renders numbered subtitle entries with HH:MM:SS,mmm timestamps.
func SRT(transcript *models.MergedTranscript) string {
	if transcript == nil {
		return ""
	}
	var b strings.Builder
	for i, seg := range transcript.Segments {
		text := strings.TrimSpace(seg.Text)
		if seg.SpeakerLabel != "" {
			text = seg.SpeakerLabel + ": " + text
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatSRTTimestamp(seg.StartSec), FormatSRTTimestamp(seg.EndSec), text)
	}
	return b.String()
}

// FormatSRTTimestamp renders seconds as HH:MM:SS,mmm. Negative inputs clamp
// to zero.
func FormatSRTTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	totalMs := int64(math.Round(sec * 1000))
	ms := totalMs % 1000
	totalSec := totalMs / 1000
	h := totalSec / 3600
	m := (totalSec % 3600) / 60
	s := totalSec % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func clock(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	d := time.Duration(sec*1000) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
