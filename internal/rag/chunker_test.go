package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	chunks, err := ChunkText("  hello world \n", 1000, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, utf8.RuneCountInString("  hello world \n"), chunks[0].End)
}

func TestChunkText_EmptyText(t *testing.T) {
	chunks, err := ChunkText("", 10, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "", chunks[0].Text)
}

func TestChunkText_CutsAtSentenceBoundary(t *testing.T) {
	text := "Sentence one. Sentence two. Sentence three."

	chunks, err := ChunkText(text, 15, 5)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "Sentence one.", chunks[0].Text)
	assert.Equal(t, 14, chunks[0].End)
}

func TestChunkText_BlankLineBoundary(t *testing.T) {
	text := "abcdefghij\n\nklmnopqrstuvwxyz"

	chunks, err := ChunkText(text, 12, 0)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", chunks[0].Text)
	assert.Equal(t, 12, chunks[0].End)
}

func TestChunkText_Invariants(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("这是一个测试句子。Another sentence here! And a question? ", 80))

	cases := []struct {
		size, overlap int
	}{
		{1000, 200},
		{100, 20},
		{37, 36},
		{10, 0},
		{1, 0},
	}

	for _, tc := range cases {
		chunks, err := ChunkText(text, tc.size, tc.overlap)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		prev := -1
		for _, ch := range chunks {
			assert.Greater(t, ch.Start, prev, "起点必须严格递增")
			assert.LessOrEqual(t, ch.End-ch.Start, tc.size)
			assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), tc.size)
			assert.NotEmpty(t, ch.Text)
			prev = ch.Start
		}
		assert.Equal(t, utf8.RuneCountInString(text), chunks[len(chunks)-1].End)
	}
}

func TestChunkText_OverlapCarriesContext(t *testing.T) {
	text := strings.Repeat("x", 250)

	chunks, err := ChunkText(text, 100, 20)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 80, chunks[1].Start)
	assert.Equal(t, 160, chunks[2].Start)
	assert.Equal(t, 250, chunks[2].End)
}

func TestChunkText_Validation(t *testing.T) {
	_, err := ChunkText("text", 0, 0)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = ChunkText("text", 10, 10)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = ChunkText("text", 10, -1)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestNewChunker_ClampsParameters(t *testing.T) {
	c := NewChunker(0, -5)
	assert.Equal(t, 1000, c.ChunkSize)
	assert.Equal(t, 0, c.ChunkOverlap)

	c = NewChunker(100, 150)
	assert.Equal(t, 10, c.ChunkOverlap)

	assert.Len(t, c.Chunk(strings.Repeat("a", 250)), 3)
}

func TestChunkText_SentenceExample(t *testing.T) {
	text := "Sentence one. Sentence two. Sentence three."

	chunks, err := ChunkText(text, 20, 5)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "Sentence one."))
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.End-ch.Start, 20)
	}
}
