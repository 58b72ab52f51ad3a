// Package textsplit breaks long text into size-bounded chunks for
// speech-synthesis providers with per-call character limits.
package textsplit

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultLimit matches the synthesis provider's per-call character cap.
const DefaultLimit = 3000

// Split divides text into ordered chunks of at most limit characters,
// preferring sentence boundaries. A sentence longer than limit is hard-sliced
// into exact-limit pieces. Empty or whitespace-only input yields a single
// empty chunk; input within the limit is returned trimmed as one chunk.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return []string{""}
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		out []string
		cur string
	)
	curLen := 0

	for _, sentence := range splitSentences(text) {
		sentenceLen := utf8.RuneCountInString(sentence)

		joined := sentenceLen
		if curLen > 0 {
			joined += curLen + 1
		}
		if joined <= limit {
			if curLen == 0 {
				cur = sentence
			} else {
				cur = cur + " " + sentence
			}
			curLen = joined
			continue
		}

		if curLen > 0 {
			out = append(out, cur)
		}

		runes := []rune(sentence)
		for len(runes) > limit {
			out = append(out, string(runes[:limit]))
			runes = runes[limit:]
		}
		cur = string(runes)
		curLen = len(runes)
	}

	if curLen > 0 {
		out = append(out, cur)
	}
	return out
}

// splitSentences cuts text after `.`, `?` or `!` followed by whitespace. The
// trailing whitespace is consumed; chunks are rejoined with single spaces.
func splitSentences(text string) []string {
	runes := []rune(text)

	var sentences []string
	start := 0
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '.' && c != '?' && c != '!' {
			continue
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}

		sentences = append(sentences, string(runes[start:i+1]))
		next := i + 1
		for next < len(runes) && unicode.IsSpace(runes[next]) {
			next++
		}
		start = next
		i = next - 1
	}

	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}
