package assembly

import (
	"strings"
	"time"
	"unicode"

	"github.com/kezsmith/clipforge/internal/segment"
)

// stopwords excluded from beat keyword sets.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "his": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"of": {}, "on": {}, "or": {}, "our": {}, "she": {}, "that": {},
	"the": {}, "their": {}, "them": {}, "they": {}, "this": {}, "to": {},
	"was": {}, "we": {}, "were": {}, "will": {}, "with": {}, "you": {},
}

// BeatsFromScript splits a script into sentence beats and spreads the
// measured narration duration across them proportionally to word count.
// Used when the synthesis provider returns no beat timing of its own.
func BeatsFromScript(script string, total time.Duration, extraKeywords []string) []segment.CaptionBeat {
	sentences := splitSentences(script)
	if len(sentences) == 0 {
		return nil
	}

	wordCounts := make([]int, len(sentences))
	totalWords := 0
	for i, s := range sentences {
		wordCounts[i] = len(strings.Fields(s))
		totalWords += wordCounts[i]
	}
	if totalWords == 0 {
		return nil
	}

	beats := make([]segment.CaptionBeat, 0, len(sentences))
	var cursor time.Duration
	for i, s := range sentences {
		share := time.Duration(float64(total) * float64(wordCounts[i]) / float64(totalWords))
		end := cursor + share
		if i == len(sentences)-1 {
			end = total // absorb rounding on the last beat
		}
		beats = append(beats, segment.CaptionBeat{
			Start:    cursor,
			End:      end,
			Text:     s,
			Keywords: extractKeywords(s, extraKeywords),
		})
		cursor = end
	}

	return beats
}

// splitSentences breaks text on sentence-ending punctuation.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}

	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()

	return sentences
}

// extractKeywords lowercases, strips punctuation and drops stopwords and
// short tokens.
func extractKeywords(text string, extra []string) []string {
	seen := make(map[string]struct{})
	var keywords []string

	add := func(word string) {
		word = strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		}))
		if len(word) < 3 {
			return
		}
		if _, stop := stopwords[word]; stop {
			return
		}
		if _, dup := seen[word]; dup {
			return
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}

	for _, w := range strings.Fields(text) {
		add(w)
	}
	for _, w := range extra {
		add(w)
	}

	return keywords
}
