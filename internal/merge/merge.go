// Package merge reassembles per-chunk transcription results into one ordered
// transcript. Merge is a pure function: the same spans and results always
// produce the same output, regardless of the order results arrived in.
package merge

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"meeting-transcript-service/internal/models"
)

// DefaultSimilarityThreshold is the token-LCS ratio above which a leading
// segment inside the overlap window is considered a duplicate of the
// previous chunk's tail.
const DefaultSimilarityThreshold = 0.80

// Options control overlap handling.
type Options struct {
	// OverlapSec is the chunk overlap the segmenter was configured with.
	// Zero disables dedup entirely.
	OverlapSec float64
	// SimilarityThreshold overrides DefaultSimilarityThreshold when > 0.
	SimilarityThreshold float64
}

func (o Options) threshold() float64 {
	if o.SimilarityThreshold > 0 {
		return o.SimilarityThreshold
	}
	return DefaultSimilarityThreshold
}

// Merge combines chunk results into a single transcript with global
// timestamps. Chunk index order is authoritative over arrival order. Failed
// chunks contribute nothing except their index in FailedChunkIndices.
func Merge(spans []models.ChunkSpan, results []models.ChunkResult, opts Options) (*models.MergedTranscript, error) {
	spanByIndex := make(map[int]models.ChunkSpan, len(spans))
	for _, s := range spans {
		spanByIndex[s.Index] = s
	}

	ordered := make([]models.ChunkResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ChunkIndex < ordered[j].ChunkIndex
	})

	var (
		segments []models.TranscriptSegment
		failed   []int
	)
	for _, result := range ordered {
		span, ok := spanByIndex[result.ChunkIndex]
		if !ok {
			return nil, fmt.Errorf("result for chunk %d has no matching span", result.ChunkIndex)
		}
		if !result.Succeeded {
			failed = append(failed, result.ChunkIndex)
			continue
		}

		for i, seg := range result.Segments {
			global := models.TranscriptSegment{
				StartSec:     span.StartSec + seg.StartSec,
				EndSec:       span.StartSec + seg.EndSec,
				Text:         strings.TrimSpace(seg.Text),
				SpeakerLabel: seg.SpeakerLabel,
			}
			if i == 0 && isOverlapDuplicate(segments, global, span, spanByIndex, opts) {
				continue
			}
			segments = append(segments, global)
		}
	}

	// Globalized segments are already chunk-ordered; a stable sort on start
	// time keeps chunk index and original order as tie-breakers.
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartSec < segments[j].StartSec
	})
	sort.Ints(failed)

	return &models.MergedTranscript{
		Segments:           segments,
		FullText:           joinTexts(segments),
		Speakers:           collectSpeakers(segments),
		ChunkCount:         len(spans),
		FailedChunkIndices: failed,
	}, nil
}

// isOverlapDuplicate reports whether a chunk's leading segment repeats the
// tail of the previous surviving segment. The segment must start inside the
// overlap window [span.Start, prevSpan.End) and its normalized tokens must
// match the previous segment's tail with similarity >= threshold.
func isOverlapDuplicate(surviving []models.TranscriptSegment, candidate models.TranscriptSegment, span models.ChunkSpan, spanByIndex map[int]models.ChunkSpan, opts Options) bool {
	if opts.OverlapSec <= 0 || len(surviving) == 0 {
		return false
	}
	prevSpan, ok := spanByIndex[span.Index-1]
	if !ok {
		return false
	}
	if candidate.StartSec < span.StartSec || candidate.StartSec >= prevSpan.EndSec {
		return false
	}

	candTokens := normalizeTokens(candidate.Text)
	if len(candTokens) == 0 {
		return false
	}
	prevTokens := normalizeTokens(surviving[len(surviving)-1].Text)
	if len(prevTokens) > len(candTokens) {
		prevTokens = prevTokens[len(prevTokens)-len(candTokens):]
	}
	return similarity(candTokens, prevTokens) >= opts.threshold()
}

// similarity is the token-LCS ratio 2*LCS/(len(a)+len(b)).
func similarity(a, b []string) float64 {
	if len(a)+len(b) == 0 {
		return 0
	}
	return 2 * float64(lcsLength(a, b)) / float64(len(a)+len(b))
}

// lcsLength computes the longest common subsequence length over tokens.
func lcsLength(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// normalizeTokens lowercases, strips punctuation and splits on whitespace.
func normalizeTokens(s string) []string {
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(s)) {
		token := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, field)
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func joinTexts(segments []models.TranscriptSegment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}

func collectSpeakers(segments []models.TranscriptSegment) []string {
	seen := make(map[string]struct{})
	var speakers []string
	for _, seg := range segments {
		if seg.SpeakerLabel == "" {
			continue
		}
		if _, ok := seen[seg.SpeakerLabel]; ok {
			continue
		}
		seen[seg.SpeakerLabel] = struct{}{}
		speakers = append(speakers, seg.SpeakerLabel)
	}
	sort.Strings(speakers)
	return speakers
}
