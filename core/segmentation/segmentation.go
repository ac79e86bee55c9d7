// Package segmentation turns a completion into speakable chunks for the
// speech synthesizer.
package segmentation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxRunes is the length at which a sentence gets broken up further
// on comma boundaries.
const DefaultMaxRunes = 200

// Split segments text with [DefaultMaxRunes].
func Split(text string) []string {
	return Segmenter{}.Split(text)
}

type Segmenter struct {
	// MaxRunes is the exclusive upper bound for a sentence to be kept whole.
	// Zero means DefaultMaxRunes.
	MaxRunes int
}

// Split breaks text after '.', '?' or '!' followed by whitespace, keeping the
// terminator. Sentences that reach MaxRunes are split after commas followed by
// whitespace and greedily repacked. Empty chunks are dropped.
func (s Segmenter) Split(text string) []string {
	maxRunes := s.MaxRunes
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}

	segments := []string{}
	for _, sentence := range splitAfter(text, isSentenceTerminator) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if utf8.RuneCountInString(sentence) < maxRunes {
			segments = append(segments, sentence)
			continue
		}

		segments = append(segments, repack(splitAfter(sentence, isComma), maxRunes)...)
	}
	return segments
}

func repack(parts []string, maxRunes int) []string {
	packed := []string{}
	var current strings.Builder
	currentRunes := 0
	for _, part := range parts {
		partRunes := utf8.RuneCountInString(part)
		if currentRunes+partRunes < maxRunes {
			current.WriteString(part)
			current.WriteByte(' ')
			currentRunes += partRunes + 1
			continue
		}

		if current.Len() > 0 {
			packed = append(packed, strings.TrimSpace(current.String()))
		}
		current.Reset()
		current.WriteString(part)
		current.WriteByte(' ')
		currentRunes = partRunes + 1
	}
	if chunk := strings.TrimSpace(current.String()); chunk != "" {
		packed = append(packed, chunk)
	}
	return packed
}

// splitAfter cuts text after every rune matching isBoundary that is directly
// followed by whitespace. The whitespace run between pieces is discarded.
func splitAfter(text string, isBoundary func(rune) bool) []string {
	pieces := []string{}
	start := 0
	var prev rune
	for i, r := range text {
		if unicode.IsSpace(r) && isBoundary(prev) && i > start {
			pieces = append(pieces, text[start:i])
			start = i
		}
		if unicode.IsSpace(r) && start == i {
			start = i + utf8.RuneLen(r)
		}
		prev = r
	}
	return append(pieces, text[start:])
}

func isSentenceTerminator(r rune) bool { return r == '.' || r == '!' || r == '?' }
func isComma(r rune) bool              { return r == ',' }
