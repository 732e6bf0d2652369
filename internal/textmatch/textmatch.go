// Package textmatch turns free-text queries into literal match terms and renders
// highlighted and excerpted views of untrusted text.
package textmatch

import (
	"regexp"
	"strings"
)

// Segment is one piece of a highlighted text. Concatenating the Text of every
// segment returned by Highlight reproduces the input exactly.
type Segment struct {
	Text  string `json:"text"`
	Match bool   `json:"match,omitempty"`
}

// Terms splits a raw query into match terms. Order and duplicates are kept.
func Terms(query string) []string {
	return strings.Fields(strings.TrimSpace(query))
}

// Pattern compiles the case-insensitive alternation of the quoted terms.
// It returns nil when there is nothing to match.
func Pattern(terms []string) *regexp.Regexp {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(t))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile("(?i)(?:" + strings.Join(quoted, "|") + ")")
}

// Highlight splits text into literal and matched segments. Matching is
// substring based, case-insensitive and global; overlapping terms resolve
// leftmost-first without rescanning consumed characters. Empty text or an
// empty term set yields text as a single literal segment.
func Highlight(text string, terms []string) []Segment {
	re := Pattern(terms)
	if text == "" || re == nil {
		return []Segment{{Text: text}}
	}

	var segments []Segment
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			segments = append(segments, Segment{Text: text[last:loc[0]]})
		}
		segments = append(segments, Segment{Text: text[loc[0]:loc[1]], Match: true})
		last = loc[1]
	}
	if last < len(text) {
		segments = append(segments, Segment{Text: text[last:]})
	}
	return segments
}

// Plain concatenates segment texts, dropping highlight information.
func Plain(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Render wraps matched segments in open/close markers.
func Render(segments []Segment, open, close string) string {
	var b strings.Builder
	for _, s := range segments {
		if s.Match {
			b.WriteString(open)
			b.WriteString(s.Text)
			b.WriteString(close)
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// Markdown highlights text with bold markers.
func Markdown(text string, terms []string) string {
	return Render(Highlight(text, terms), "**", "**")
}
