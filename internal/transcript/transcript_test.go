package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func secs(n int) *int { return &n }

func TestParseTimecodedLines(t *testing.T) {
	blob := "[00:00:05] Bom dia a todos.\n[00:01:15] Vamos começar.\n[01:02:03] Fim."
	lines := Parse(blob)
	require.Len(t, lines, 3)

	assert.Equal(t, 5, *lines[0].Seconds)
	assert.Equal(t, "0:00:05", lines[0].Timestamp)
	assert.Equal(t, "Bom dia a todos.", lines[0].Text)

	assert.Equal(t, 75, *lines[1].Seconds)
	assert.Equal(t, "0:01:15", lines[1].Timestamp)

	assert.Equal(t, 3723, *lines[2].Seconds)
	assert.Equal(t, "1:02:03", lines[2].Timestamp)
	assert.Equal(t, "Fim.", lines[2].Text)
}

func TestParseDropsEmptyLines(t *testing.T) {
	lines := Parse("\n[00:00:01] a\n\n\n[00:00:02] b\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].Text)
	assert.Equal(t, "b", lines[1].Text)
	assert.Nil(t, Parse(""))
}

func TestParseUnanchoredLines(t *testing.T) {
	lines := Parse("sem marcação\n[0:00:01] hora curta\n[00:00:1x] inválido\n[00:00:03]colado")
	require.Len(t, lines, 4)

	for i := 0; i < 3; i++ {
		assert.False(t, lines[i].Anchored(), "line %d", i)
		assert.Empty(t, lines[i].Timestamp)
	}
	assert.Equal(t, "sem marcação", lines[0].Text)
	assert.Equal(t, "[0:00:01] hora curta", lines[1].Text)
	assert.Equal(t, "[00:00:1x] inválido", lines[2].Text)

	assert.True(t, lines[3].Anchored())
	assert.Equal(t, "colado", lines[3].Text)
}

func TestParseTrimsSingleLeadingSpace(t *testing.T) {
	lines := Parse("[00:00:01]   recuado")
	require.Len(t, lines, 1)
	assert.Equal(t, "  recuado", lines[0].Text)
}

func TestParseKeepsSourceOrder(t *testing.T) {
	lines := Parse("[00:00:30] c\n[00:00:05] a\n[00:00:15] b")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{lines[0].Text, lines[1].Text, lines[2].Text})
}

func TestParseHandlesCRLF(t *testing.T) {
	lines := Parse("[00:00:01] um\r\n[00:00:02] dois\r\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "um", lines[0].Text)
	assert.Equal(t, "dois", lines[1].Text)
}

func TestActiveIndex(t *testing.T) {
	lines := []Line{{Seconds: secs(5)}, {Seconds: secs(15)}, {Seconds: secs(30)}}

	assert.Equal(t, -1, ActiveIndex(lines, 0))
	assert.Equal(t, 0, ActiveIndex(lines, 10))
	assert.Equal(t, 1, ActiveIndex(lines, 20))
	assert.Equal(t, 2, ActiveIndex(lines, 40))
	assert.Equal(t, 0, ActiveIndex(lines, 5))
}

func TestActiveIndexUnsortedUsesGreatestIndex(t *testing.T) {
	lines := []Line{{Seconds: secs(30)}, {Text: "nota"}, {Seconds: secs(5)}, {Seconds: secs(15)}}

	assert.Equal(t, -1, ActiveIndex(lines, 4))
	assert.Equal(t, 2, ActiveIndex(lines, 10))
	assert.Equal(t, 3, ActiveIndex(lines, 20))
	// Line 0 (30s) qualifies but index 3 is greater.
	assert.Equal(t, 3, ActiveIndex(lines, 35))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "0:00:00", FormatTimestamp(0))
	assert.Equal(t, "0:01:05", FormatTimestamp(65))
	assert.Equal(t, "12:00:01", FormatTimestamp(43201))
	assert.Equal(t, "0:00:00", FormatTimestamp(-3))
}
