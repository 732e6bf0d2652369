package textmatch

import (
	"strings"
	"unicode"
)

const (
	// DefaultSnippetLen is the excerpt length used when rendering result cards.
	DefaultSnippetLen = 300

	// DefaultServerSnippetLen is the excerpt length the catalogue uses for
	// transcription matches.
	DefaultServerSnippetLen = 200

	// Ellipsis marks a truncated side of an excerpt.
	Ellipsis = "…"
)

// Snippet returns an excerpt of at most maxLen runes (plus ellipsis markers)
// centred on the first term, in term order, that occurs in text. When no term
// occurs the excerpt starts at the beginning of text.
func Snippet(text string, terms []string, maxLen int) string {
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if maxLen <= 0 || len(runes) <= maxLen {
		return text
	}
	offset, ok := firstTermOffset(runes, terms)
	if !ok {
		offset = 0
	}
	return window(runes, offset, maxLen)
}

// FindSnippet is like Snippet but reports false instead of falling back to the
// start of text when none of the terms occur.
func FindSnippet(text string, terms []string, maxLen int) (string, bool) {
	if text == "" {
		return "", false
	}
	runes := []rune(text)
	offset, ok := firstTermOffset(runes, terms)
	if !ok {
		return "", false
	}
	if maxLen <= 0 || len(runes) <= maxLen {
		return text, true
	}
	return window(runes, offset, maxLen), true
}

// firstTermOffset returns the rune offset of the earliest occurrence of the
// first term (in terms order) found anywhere in text.
func firstTermOffset(runes []rune, terms []string) (int, bool) {
	lower := lowerRunes(runes)
	for _, t := range terms {
		if t == "" {
			continue
		}
		if idx := indexRunes(lower, lowerRunes([]rune(t))); idx >= 0 {
			return idx, true
		}
	}
	return 0, false
}

func window(runes []rune, offset, maxLen int) string {
	start := offset - maxLen/2
	if start < 0 {
		start = 0
	}
	end := start + maxLen
	if end > len(runes) {
		end = len(runes)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(Ellipsis)
	}
	b.WriteString(string(runes[start:end]))
	if end < len(runes) {
		b.WriteString(Ellipsis)
	}
	return b.String()
}

// lowerRunes lowers rune by rune so offsets stay aligned with the original.
func lowerRunes(runes []rune) []rune {
	out := make([]rune, len(runes))
	for i, r := range runes {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
