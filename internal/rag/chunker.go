// Package rag holds the retrieval core: chunking and per-document indexes,
// lexical scoring, the LLM relevance gate and context assembly.
package rag

import (
	"strings"
	"unicode/utf8"

	"github.com/PixlGalaxy/EagleDocs/internal/models"
)

const ellipsis = "..."

// ChunkerConfig sizes chunks. Zero values take the defaults.
type ChunkerConfig struct {
	WordsPerChunk int
	WordsPerPage  int
	MaxChunkChars int
}

// DocumentMeta identifies the document being chunked and where its index lives.
type DocumentMeta struct {
	DocumentID      string
	DocumentName    string
	CourseCode      string
	CRN             string
	AcademicYear    int
	InstructorEmail string
}

// Chunker splits text into fixed-size, non-overlapping word windows.
type Chunker struct {
	cfg ChunkerConfig
}

// NewChunker applies defaults (400 words, 500 words per page, 1400 chars).
func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.WordsPerChunk <= 0 {
		cfg.WordsPerChunk = 400
	}
	if cfg.WordsPerPage <= 0 {
		cfg.WordsPerPage = 500
	}
	if cfg.MaxChunkChars <= len(ellipsis) {
		cfg.MaxChunkChars = 1400
	}
	return &Chunker{cfg: cfg}
}

// Chunk is deterministic: identical text and meta always yield identical chunks.
func (c *Chunker) Chunk(text string, meta DocumentMeta) []models.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	chunks := make([]models.Chunk, 0, (len(words)+c.cfg.WordsPerChunk-1)/c.cfg.WordsPerChunk)
	for start := 0; start < len(words); start += c.cfg.WordsPerChunk {
		end := start + c.cfg.WordsPerChunk
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, models.Chunk{
			Text: clamp(strings.Join(words[start:end], " "), c.cfg.MaxChunkChars),
			Meta: models.ChunkMeta{
				Page:         start/c.cfg.WordsPerPage + 1,
				DocumentID:   meta.DocumentID,
				DocumentName: meta.DocumentName,
				CourseCode:   meta.CourseCode,
				CRN:          meta.CRN,
				AcademicYear: meta.AcademicYear,
			},
		})
	}
	return chunks
}

// EstimatePages returns ceil(words / WordsPerPage), at least 1 for non-empty text.
func (c *Chunker) EstimatePages(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return (words + c.cfg.WordsPerPage - 1) / c.cfg.WordsPerPage
}

// clamp cuts s to at most max runes, marking the cut with an ellipsis.
func clamp(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-len(ellipsis)]) + ellipsis
}

// truncateRunes cuts s to at most max runes without a marker.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
