// Package transcript parses time-coded transcriptions into ordered lines.
package transcript

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// timecodePrefix matches "[HH:MM:SS]" at the start of a line.
var timecodePrefix = regexp.MustCompile(`^\[(\d{2}):(\d{2}):(\d{2})\](.*)$`)

// Line is one transcript entry. Seconds is nil for unanchored lines.
type Line struct {
	Seconds   *int   `json:"seconds,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Text      string `json:"text"`
}

// Anchored reports whether the line carries a playback position.
func (l Line) Anchored() bool {
	return l.Seconds != nil
}

// Parse splits a time-coded blob into lines in source order. Empty lines are
// dropped; lines without a valid prefix become unanchored entries holding the
// whole line.
func Parse(blob string) []Line {
	if blob == "" {
		return nil
	}

	var lines []Line
	for _, raw := range strings.Split(blob, "\n") {
		raw = strings.TrimSuffix(raw, "\r")
		if raw == "" {
			continue
		}
		lines = append(lines, parseLine(raw))
	}
	return lines
}

func parseLine(raw string) Line {
	m := timecodePrefix.FindStringSubmatch(raw)
	if m == nil {
		return Line{Text: raw}
	}
	// Two-digit groups always parse.
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	secs, _ := strconv.Atoi(m[3])

	seconds := hours*3600 + minutes*60 + secs
	return Line{
		Seconds:   &seconds,
		Timestamp: fmt.Sprintf("%d:%s:%s", hours, m[2], m[3]),
		Text:      strings.TrimPrefix(m[4], " "),
	}
}

// FormatTimestamp renders seconds as H:MM:SS with an unpadded hour.
func FormatTimestamp(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// ActiveIndex returns the greatest index whose anchored time is at or before
// position, or -1. Lines are scanned in full since source order is not
// guaranteed to be sorted by time.
func ActiveIndex(lines []Line, position float64) int {
	active := -1
	for i, l := range lines {
		if l.Seconds != nil && float64(*l.Seconds) <= position {
			active = i
		}
	}
	return active
}
