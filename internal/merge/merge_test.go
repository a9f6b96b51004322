package merge

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"meeting-transcript-service/internal/models"
)

// threeSpans builds contiguous 30s spans: [0,30) [30,60) [60,90).
func threeSpans() []models.ChunkSpan {
	return []models.ChunkSpan{
		{Index: 0, StartSec: 0, EndSec: 30},
		{Index: 1, StartSec: 30, EndSec: 60},
		{Index: 2, StartSec: 60, EndSec: 90},
	}
}

func okResult(index int, segments ...models.TranscriptSegment) models.ChunkResult {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return models.ChunkResult{
		ChunkIndex:  index,
		Text:        strings.Join(parts, " "),
		Segments:    segments,
		BackendUsed: "test",
		Succeeded:   true,
	}
}

func TestMerge_GlobalOffsets(t *testing.T) {
	// A local [5,10] segment in chunk 1 (which starts at 30s) must land at
	// global [35,40].
	results := []models.ChunkResult{
		okResult(0, models.TranscriptSegment{StartSec: 0, EndSec: 4, Text: "intro"}),
		okResult(1, models.TranscriptSegment{StartSec: 5, EndSec: 10, Text: "status update"}),
		okResult(2, models.TranscriptSegment{StartSec: 1, EndSec: 3, Text: "wrap up"}),
	}

	merged, err := Merge(threeSpans(), results, Options{})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(merged.Segments) != 3 {
		t.Fatalf("len(Segments) = %d, want 3", len(merged.Segments))
	}
	mid := merged.Segments[1]
	if mid.StartSec != 35 || mid.EndSec != 40 {
		t.Errorf("chunk 1 segment global span = [%v, %v], want [35, 40]", mid.StartSec, mid.EndSec)
	}
	last := merged.Segments[2]
	if last.StartSec != 61 || last.EndSec != 63 {
		t.Errorf("chunk 2 segment global span = [%v, %v], want [61, 63]", last.StartSec, last.EndSec)
	}
	if merged.FullText != "intro status update wrap up" {
		t.Errorf("FullText = %q", merged.FullText)
	}
	if merged.ChunkCount != 3 {
		t.Errorf("ChunkCount = %d, want 3", merged.ChunkCount)
	}
}

func TestMerge_DeterministicUnderInputOrder(t *testing.T) {
	spans := threeSpans()
	results := []models.ChunkResult{
		okResult(0, models.TranscriptSegment{StartSec: 0, EndSec: 10, Text: "alpha", SpeakerLabel: "Speaker 1"}),
		okResult(1, models.TranscriptSegment{StartSec: 2, EndSec: 8, Text: "beta", SpeakerLabel: "Speaker 2"}),
		okResult(2, models.TranscriptSegment{StartSec: 4, EndSec: 9, Text: "gamma", SpeakerLabel: "Speaker 1"}),
	}

	want, err := Merge(spans, results, Options{})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		shuffled := make([]models.ChunkResult, len(results))
		copy(shuffled, results)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := Merge(spans, shuffled, Options{})
		if err != nil {
			t.Fatalf("Merge() trial %d error = %v", trial, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("trial %d: merge not deterministic under input order:\ngot  %+v\nwant %+v", trial, got, want)
		}
	}
}

func TestMerge_FailedChunkRecordedWithoutSegments(t *testing.T) {
	results := []models.ChunkResult{
		okResult(0, models.TranscriptSegment{StartSec: 0, EndSec: 5, Text: "before the gap"}),
		{ChunkIndex: 1, Succeeded: false, Error: "all backends exhausted"},
		okResult(2, models.TranscriptSegment{StartSec: 0, EndSec: 5, Text: "after the gap"}),
	}

	merged, err := Merge(threeSpans(), results, Options{})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if !reflect.DeepEqual(merged.FailedChunkIndices, []int{1}) {
		t.Errorf("FailedChunkIndices = %v, want [1]", merged.FailedChunkIndices)
	}
	if len(merged.Segments) != 2 {
		t.Fatalf("len(Segments) = %d, want 2", len(merged.Segments))
	}
	for _, seg := range merged.Segments {
		if seg.StartSec >= 30 && seg.StartSec < 60 {
			t.Errorf("segment %+v falls inside the failed chunk's span", seg)
		}
	}
	if strings.Contains(merged.FullText, "gap gap") {
		t.Errorf("FullText = %q contains placeholder text", merged.FullText)
	}
}

func TestMerge_AllChunksFailed(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 0, Succeeded: false, Error: "boom"},
		{ChunkIndex: 1, Succeeded: false, Error: "boom"},
		{ChunkIndex: 2, Succeeded: false, Error: "boom"},
	}

	merged, err := Merge(threeSpans(), results, Options{})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(merged.Segments) != 0 {
		t.Errorf("len(Segments) = %d, want 0", len(merged.Segments))
	}
	if merged.FullText != "" {
		t.Errorf("FullText = %q, want empty", merged.FullText)
	}
	if !reflect.DeepEqual(merged.FailedChunkIndices, []int{0, 1, 2}) {
		t.Errorf("FailedChunkIndices = %v, want [0 1 2]", merged.FailedChunkIndices)
	}
}

func TestMerge_OverlapDedup(t *testing.T) {
	// Chunks overlap by 2s: chunk 1 covers [28, 60). Its first segment
	// repeats the trailing phrase of chunk 0.
	spans := []models.ChunkSpan{
		{Index: 0, StartSec: 0, EndSec: 30},
		{Index: 1, StartSec: 28, EndSec: 60},
	}
	results := []models.ChunkResult{
		okResult(0,
			models.TranscriptSegment{StartSec: 0, EndSec: 20, Text: "we reviewed the roadmap"},
			models.TranscriptSegment{StartSec: 20, EndSec: 30, Text: "and agreed on the launch date"},
		),
		okResult(1,
			models.TranscriptSegment{StartSec: 0, EndSec: 1.8, Text: "Agreed on the launch date."},
			models.TranscriptSegment{StartSec: 2, EndSec: 10, Text: "next item is hiring"},
		),
	}

	merged, err := Merge(spans, results, Options{OverlapSec: 2})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got := strings.Count(merged.FullText, "launch date"); got != 1 {
		t.Errorf("FullText contains %q %d times, want 1: %q", "launch date", got, merged.FullText)
	}
	if len(merged.Segments) != 3 {
		t.Errorf("len(Segments) = %d, want 3 (duplicate dropped)", len(merged.Segments))
	}
}

func TestMerge_OverlapBelowThresholdKept(t *testing.T) {
	spans := []models.ChunkSpan{
		{Index: 0, StartSec: 0, EndSec: 30},
		{Index: 1, StartSec: 28, EndSec: 60},
	}
	results := []models.ChunkResult{
		okResult(0, models.TranscriptSegment{StartSec: 25, EndSec: 30, Text: "totally different closing words"}),
		okResult(1, models.TranscriptSegment{StartSec: 0, EndSec: 1.5, Text: "a brand new opening phrase"}),
	}

	merged, err := Merge(spans, results, Options{OverlapSec: 2})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(merged.Segments) != 2 {
		t.Errorf("len(Segments) = %d, want 2 (dissimilar segment kept)", len(merged.Segments))
	}
}

func TestMerge_NoOverlapNeverDedups(t *testing.T) {
	spans := []models.ChunkSpan{
		{Index: 0, StartSec: 0, EndSec: 30},
		{Index: 1, StartSec: 30, EndSec: 60},
	}
	results := []models.ChunkResult{
		okResult(0, models.TranscriptSegment{StartSec: 28, EndSec: 30, Text: "see you tomorrow"}),
		okResult(1, models.TranscriptSegment{StartSec: 0, EndSec: 2, Text: "see you tomorrow"}),
	}

	merged, err := Merge(spans, results, Options{OverlapSec: 0})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(merged.Segments) != 2 {
		t.Errorf("len(Segments) = %d, want 2 (dedup disabled)", len(merged.Segments))
	}
}

func TestMerge_SpeakersSortedSet(t *testing.T) {
	results := []models.ChunkResult{
		okResult(0,
			models.TranscriptSegment{StartSec: 0, EndSec: 5, Text: "one", SpeakerLabel: "Speaker B"},
			models.TranscriptSegment{StartSec: 5, EndSec: 10, Text: "two", SpeakerLabel: "Speaker A"},
		),
		okResult(1, models.TranscriptSegment{StartSec: 0, EndSec: 5, Text: "three", SpeakerLabel: "Speaker B"}),
		okResult(2, models.TranscriptSegment{StartSec: 0, EndSec: 5, Text: "four"}),
	}

	merged, err := Merge(threeSpans(), results, Options{})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if !reflect.DeepEqual(merged.Speakers, []string{"Speaker A", "Speaker B"}) {
		t.Errorf("Speakers = %v, want sorted unique set", merged.Speakers)
	}
}

func TestMerge_ResultWithoutSpanIsError(t *testing.T) {
	results := []models.ChunkResult{okResult(7, models.TranscriptSegment{Text: "orphan"})}

	if _, err := Merge(threeSpans(), results, Options{}); err == nil {
		t.Error("Merge() with unknown chunk index should fail")
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "agreed on the launch date", "agreed on the launch date", 1.0},
		{"punctuation and case ignored", "Agreed, on THE launch date!", "agreed on the launch date", 1.0},
		{"disjoint", "alpha beta", "gamma delta", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := similarity(normalizeTokens(tt.a), normalizeTokens(tt.b))
			if got != tt.want {
				t.Errorf("similarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLCSLength(t *testing.T) {
	a := []string{"the", "quick", "brown", "fox"}
	b := []string{"quick", "fox", "jumps"}
	if got := lcsLength(a, b); got != 2 {
		t.Errorf("lcsLength = %d, want 2", got)
	}
	if got := lcsLength(nil, b); got != 0 {
		t.Errorf("lcsLength(nil, b) = %d, want 0", got)
	}
}

func TestNormalizeTokens(t *testing.T) {
	got := normalizeTokens("  Hello, World! It's 10:30...  ")
	want := []string{"hello", "world", "its", "1030"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("normalizeTokens = %v, want %v", got, want)
	}
}
