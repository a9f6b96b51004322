// Package redact removes personally identifiable information from transcript
// text. Detection is regex-based and conservative: emails and phone-like
// number groups.
package redact

import (
	"regexp"

	"meeting-transcript-service/internal/models"
)

// Rule pairs a PII pattern with its replacement token.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	// Permissive on purpose: catches international prefixes, area codes in
	// parentheses and common separators.
	phonePattern = regexp.MustCompile(`(?:\+?\d{1,3}[-.\s]?)?(?:\(?\d{2,4}\)?[-.\s]?)?\d{3,4}[-.\s]?\d{3,4}`)
)

// DefaultRules returns the standard email and phone rules. Email runs first
// so phone-like digit runs inside addresses never split an email match.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "email", Pattern: emailPattern, Replacement: "[REDACTED_EMAIL]"},
		{Name: "phone", Pattern: phonePattern, Replacement: "[REDACTED_PHONE]"},
	}
}

// Redactor applies its rules in order to transcript text.
type Redactor struct {
	rules []Rule
}

// New creates a Redactor. With no rules it uses DefaultRules.
func New(rules ...Rule) *Redactor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Redactor{rules: rules}
}

// Redact replaces every rule match in text with the rule's token.
func (r *Redactor) Redact(text string) string {
	for _, rule := range r.rules {
		text = rule.Pattern.ReplaceAllString(text, rule.Replacement)
	}
	return text
}

// RedactTranscript returns a copy of the transcript with all segment texts
// and the full text redacted. The input is not mutated.
func (r *Redactor) RedactTranscript(t *models.MergedTranscript) *models.MergedTranscript {
	if t == nil {
		return nil
	}
	out := &models.MergedTranscript{
		Segments:           make([]models.TranscriptSegment, len(t.Segments)),
		FullText:           r.Redact(t.FullText),
		Speakers:           append([]string(nil), t.Speakers...),
		ChunkCount:         t.ChunkCount,
		FailedChunkIndices: append([]int(nil), t.FailedChunkIndices...),
	}
	for i, seg := range t.Segments {
		seg.Text = r.Redact(seg.Text)
		out.Segments[i] = seg
	}
	return out
}
