package rag

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMeta = DocumentMeta{
	DocumentID:      "doc-1",
	DocumentName:    "syllabus.pdf",
	CourseCode:      "CS101",
	CRN:             "12345",
	AcademicYear:    2025,
	InstructorEmail: "prof@uni.edu",
}

func words(n int, word string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = word
	}
	return strings.Join(parts, " ")
}

func TestChunkSingleShortDocument(t *testing.T) {
	chunks := NewChunker(ChunkerConfig{}).Chunk("Introduction to Testing", testMeta)

	require.Len(t, chunks, 1)
	assert.Equal(t, "Introduction to Testing", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].Meta.Page)
	assert.Equal(t, "doc-1", chunks[0].Meta.DocumentID)
	assert.Equal(t, "CS101", chunks[0].Meta.CourseCode)
	assert.Equal(t, 2025, chunks[0].Meta.AcademicYear)
}

func TestChunkClampsText(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{})
	chunks := chunker.Chunk(words(1000, "abcdefghij"), testMeta)

	require.Len(t, chunks, 3)
	for _, c := range chunks[:2] {
		assert.Equal(t, 1400, utf8.RuneCountInString(c.Text))
		assert.True(t, strings.HasSuffix(c.Text, "..."))
	}
	assert.LessOrEqual(t, utf8.RuneCountInString(chunks[2].Text), 1400)
}

func TestChunkPagesAreNonDecreasing(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{WordsPerChunk: 100, WordsPerPage: 250})
	chunks := chunker.Chunk(words(2000, "word"), testMeta)

	require.Len(t, chunks, 20)
	pages := make([]int, 0, len(chunks))
	for i, c := range chunks {
		pages = append(pages, c.Meta.Page)
		if i > 0 {
			assert.GreaterOrEqual(t, c.Meta.Page, chunks[i-1].Meta.Page)
		}
	}
	assert.Equal(t, []int{1, 1, 1, 2, 2, 3, 3, 3, 4, 4}, pages[:10])
	assert.Equal(t, 8, chunker.EstimatePages(words(2000, "word")))
}

func TestChunkIsIdempotent(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{})
	text := words(900, "lecture") + " " + words(300, "notes")

	first, err := json.Marshal(chunker.Chunk(text, testMeta))
	require.NoError(t, err)
	second, err := json.Marshal(chunker.Chunk(text, testMeta))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestChunkEmptyText(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{})
	assert.Empty(t, chunker.Chunk("   \n\t ", testMeta))
	assert.Equal(t, 0, chunker.EstimatePages(""))
	assert.Equal(t, 1, chunker.EstimatePages("one"))
}
