// Package compress shrinks text toward a target token ratio through a fixed
// pipeline of lossy, deterministic stages. Compression is best-effort: when
// the pipeline cannot reach the target it returns the shortest text it
// produced and the caller re-estimates and deals with the residual overflow.
package compress

import (
	"regexp"
	"strings"

	"github.com/parley-ai/parley/internal/token"
)

// EstimateFunc measures text size in estimated tokens. The budget manager
// binds this to its model-specific estimator; standalone callers can use
// DefaultEstimate.
type EstimateFunc func(text string) int

// DefaultEstimate is the generic 4-chars-per-token approximation.
func DefaultEstimate(text string) int { return len(text) / 4 }

// Compress reduces text toward targetRatio (output tokens / input tokens,
// in (0,1]). Stages are applied in order and each is skipped once the target
// is met. Identical input and target always yield identical output.
func Compress(text string, targetRatio float64, estimate EstimateFunc) string {
	if text == "" || targetRatio >= 1.0 {
		return text
	}
	if estimate == nil {
		estimate = DefaultEstimate
	}
	if targetRatio <= 0 {
		targetRatio = 0.1
	}

	original := estimate(text)
	if original == 0 {
		return text
	}
	target := int(float64(original) * targetRatio)

	atTarget := func(s string) bool { return estimate(s) <= target }

	out := normalizeWhitespace(text)
	if atTarget(out) {
		return out
	}

	out = replaceVerbosePhrases(out)
	if atTarget(out) {
		return out
	}

	out = stripFillerWords(out)
	if atTarget(out) {
		return out
	}

	if token.IsCode(text) {
		out = stripCodeComments(out)
		if atTarget(out) {
			return out
		}
	}

	return reduceSentences(out)
}

// ── Stage 1: whitespace ──────────────────────────────────────────────────────

var (
	reBlankRuns = regexp.MustCompile(`\n\s*\n\s*\n+`)
	reSpaceRuns = regexp.MustCompile(`[ \t]+`)
)

func normalizeWhitespace(text string) string {
	out := reBlankRuns.ReplaceAllString(text, "\n\n")
	out = reSpaceRuns.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// ── Stage 2: verbose phrase table ────────────────────────────────────────────

// phraseTable maps verbose phrases to terser equivalents. A lookup table,
// not a rewrite: replacements must never be longer than what they replace.
var phraseTable = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\bin order to\b`), "to"},
	{regexp.MustCompile(`(?i)\bit seems like\b`), "seems"},
	{regexp.MustCompile(`(?i)\bas a result\b`), "thus"},
	{regexp.MustCompile(`(?i)\bfor example\b`), "e.g."},
	{regexp.MustCompile(`(?i)\bthat is to say\b`), "i.e."},
	{regexp.MustCompile(`(?i)\bin other words\b`), "i.e."},
	{regexp.MustCompile(`(?i)\bhowever\b`), "but"},
	{regexp.MustCompile(`(?i)\btherefore\b`), "so"},
	{regexp.MustCompile(`(?i)\bnevertheless\b`), "still"},
	{regexp.MustCompile(`(?i)\bfurthermore\b`), "also"},
	{regexp.MustCompile(`(?i)\badditionally\b`), "plus"},
	{regexp.MustCompile(`(?i)\bconsequently\b`), "so"},
	{regexp.MustCompile(`(?i)\bin my opinion\b`), "IMO"},
}

func replaceVerbosePhrases(text string) string {
	for _, p := range phraseTable {
		text = p.re.ReplaceAllString(text, p.repl)
	}
	return text
}

// ── Stage 3: filler words ────────────────────────────────────────────────────

var fillerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(um|uh|er|ah)\b\s*`),
	regexp.MustCompile(`(?i)\b(you know|basically|actually|literally)\b\s*`),
	regexp.MustCompile(`(?i)\b(kind of|sort of)\b\s*`),
	regexp.MustCompile(`(?i)\bI mean\b\s*`),
}

func stripFillerWords(text string) string {
	for _, re := range fillerPatterns {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(reSpaceRuns.ReplaceAllString(text, " "))
}

// ── Stage 4: code comments ───────────────────────────────────────────────────

var (
	reLineComment  = regexp.MustCompile(`(?m)^\s*//.*$|//[^\n"]*$`)
	reHashComment  = regexp.MustCompile(`(?m)^\s*#.*$`)
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reDocstring    = regexp.MustCompile(`(?s)""".*?"""|'''.*?'''`)
)

// stripCodeComments removes comments and docstring blocks while keeping
// statement structure intact. Only invoked for code-classified input.
func stripCodeComments(text string) string {
	out := reBlockComment.ReplaceAllString(text, "")
	out = reDocstring.ReplaceAllString(out, "")
	out = reLineComment.ReplaceAllString(out, "")
	out = reHashComment.ReplaceAllString(out, "")
	return reBlankRuns.ReplaceAllString(out, "\n\n")
}

// ── Stage 5: extractive sentence reduction ───────────────────────────────────

var (
	reSentenceEnd = regexp.MustCompile(`[.!?]+\s+`)
	reDigits      = regexp.MustCompile(`\d`)
	reProperNoun  = regexp.MustCompile(`\s[A-Z][a-z]+`)
)

// salienceKeywords mark sentences that must survive reduction.
var salienceKeywords = []string{
	"error", "issue", "problem", "solution", "result",
	"conclusion", "must", "never", "important",
}

// reduceSentences keeps the first and last sentence of each paragraph plus
// any sentence carrying a salience signal (digits, proper nouns, keywords),
// and drops the rest.
func reduceSentences(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	out := make([]string, 0, len(paragraphs))

	for _, para := range paragraphs {
		sentences := splitSentences(para)
		if len(sentences) <= 2 {
			out = append(out, para)
			continue
		}
		kept := make([]string, 0, len(sentences))
		for i, s := range sentences {
			if i == 0 || i == len(sentences)-1 || isSalient(s) {
				kept = append(kept, s)
			}
		}
		out = append(out, strings.Join(kept, " "))
	}
	return strings.Join(out, "\n\n")
}

func splitSentences(para string) []string {
	ends := reSentenceEnd.FindAllStringIndex(para, -1)
	if len(ends) == 0 {
		return []string{para}
	}
	var sentences []string
	start := 0
	for _, loc := range ends {
		sentences = append(sentences, strings.TrimSpace(para[start:loc[1]]))
		start = loc[1]
	}
	if rest := strings.TrimSpace(para[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func isSalient(sentence string) bool {
	if reDigits.MatchString(sentence) {
		return true
	}
	if reProperNoun.MatchString(sentence) {
		return true
	}
	lower := strings.ToLower(sentence)
	for _, kw := range salienceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
