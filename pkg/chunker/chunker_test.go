package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, size, overlap int) Chunker {
	t.Helper()
	c, err := New(ChunkOptions{ChunkSize: size, ChunkOverlap: overlap})
	require.NoError(t, err)
	return c
}

func TestNew_RejectsStallingOptions(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 11},
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(ChunkOptions{ChunkSize: tt.size, ChunkOverlap: tt.overlap})
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestChunk_Empty(t *testing.T) {
	chunks, err := mustNew(t, 10, 2).Chunk("")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_ShortTextIsSingleChunk(t *testing.T) {
	c := mustNew(t, 10, 3)

	for _, text := range []string{"a", "hello", "exactly10!"} {
		chunks, err := c.Chunk(text)
		require.NoError(t, err)
		require.Len(t, chunks, 1, "text %q", text)
		assert.Equal(t, text, chunks[0].Content)
		assert.Equal(t, 0, chunks[0].Index)
	}
}

func TestChunk_Windows(t *testing.T) {
	chunks, err := mustNew(t, 4, 1).Chunk("abcdefghij")
	require.NoError(t, err)

	got := make([]string, len(chunks))
	for i, ch := range chunks {
		got[i] = ch.Content
		assert.Equal(t, i, ch.Index)
	}
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, got)
}

func TestChunk_ShortFinalWindow(t *testing.T) {
	chunks, err := mustNew(t, 4, 1).Chunk("abcdefgh")
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, "gh", chunks[2].Content)
	assert.Equal(t, 6, chunks[2].Start)
	assert.Equal(t, 8, chunks[2].End)
}

func TestChunk_OverlapAndCoverage(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	size, overlap := 100, 20

	chunks, err := mustNew(t, size, overlap).Chunk(text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 0; i+1 < len(chunks); i++ {
		cur, next := []rune(chunks[i].Content), []rune(chunks[i+1].Content)
		assert.Len(t, cur, size)
		assert.Equal(t, string(cur[len(cur)-overlap:]), string(next[:overlap]), "chunk %d", i)
	}

	// Removing the designed overlap reassembles the original text.
	var sb strings.Builder
	sb.WriteString(chunks[0].Content)
	for _, ch := range chunks[1:] {
		sb.WriteString(string([]rune(ch.Content)[overlap:]))
	}
	assert.Equal(t, text, sb.String())
}

func TestChunk_CountsRunes(t *testing.T) {
	chunks, err := mustNew(t, 3, 1).Chunk("héllo")
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, "hél", chunks[0].Content)
	assert.Equal(t, "llo", chunks[1].Content)
}
