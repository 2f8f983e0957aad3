package rag

import (
	"sort"
	"strings"

	"github.com/PixlGalaxy/EagleDocs/internal/models"
)

// minKeywordLen drops short tokens, which stand in for a stopword list.
const minKeywordLen = 4

// ScoredChunk is a chunk with its lexical overlap score.
type ScoredChunk struct {
	Chunk models.Chunk
	Score int
}

// DocumentGroup holds one document's chunks in score order.
type DocumentGroup struct {
	DocumentID   string
	DocumentName string
	TopScore     int
	Chunks       []ScoredChunk
}

// Keywords lowercases the question, splits on anything outside [a-z0-9] and
// keeps distinct tokens of at least four characters in first-seen order.
func Keywords(question string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	seen := make(map[string]struct{}, len(tokens))
	keywords := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) < minKeywordLen {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

// Score ranks chunks by the number of distinct keywords they contain as substrings.
// Ties keep their input order.
func Score(chunks []models.Chunk, question string) []ScoredChunk {
	keywords := Keywords(question)
	scored := make([]ScoredChunk, len(chunks))
	for i, chunk := range chunks {
		text := strings.ToLower(chunk.Text)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		scored[i] = ScoredChunk{Chunk: chunk, Score: score}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// GroupByDocument buckets scored chunks per document. Groups appear in the order
// their best chunk appears, so a score-sorted input yields best-first groups.
func GroupByDocument(scored []ScoredChunk) []DocumentGroup {
	index := make(map[string]int)
	var groups []DocumentGroup
	for _, sc := range scored {
		id := sc.Chunk.Meta.DocumentID
		pos, ok := index[id]
		if !ok {
			pos = len(groups)
			index[id] = pos
			groups = append(groups, DocumentGroup{
				DocumentID:   id,
				DocumentName: sc.Chunk.Meta.DocumentName,
				TopScore:     sc.Score,
			})
		}
		groups[pos].Chunks = append(groups[pos].Chunks, sc)
		if sc.Score > groups[pos].TopScore {
			groups[pos].TopScore = sc.Score
		}
	}
	return groups
}
