package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PixlGalaxy/EagleDocs/internal/models"
)

func chunk(doc, text string) models.Chunk {
	return models.Chunk{Text: text, Meta: models.ChunkMeta{DocumentID: doc, DocumentName: doc + ".pdf", Page: 1}}
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"what", "midterm", "exam"}, Keywords("What's on the MIDTERM exam? exam, is it"))
	assert.Empty(t, Keywords("is it ok?"))
}

func TestScoreOrdersByDistinctKeywordOverlap(t *testing.T) {
	chunks := []models.Chunk{
		chunk("a", "Office hours are on Tuesday"),
		chunk("b", "The final EXAM is cumulative"),
		chunk("c", "Midterm exam covers chapters 1-4; the exam is closed book"),
	}

	scored := Score(chunks, "midterm exam")

	require.Len(t, scored, 3)
	assert.Equal(t, "c", scored[0].Chunk.Meta.DocumentID)
	assert.Equal(t, 2, scored[0].Score)
	assert.Equal(t, "b", scored[1].Chunk.Meta.DocumentID)
	assert.Equal(t, 1, scored[1].Score)
	assert.Equal(t, "a", scored[2].Chunk.Meta.DocumentID)
	assert.Equal(t, 0, scored[2].Score)
}

func TestScoreIsStableForTies(t *testing.T) {
	chunks := []models.Chunk{chunk("a", "first"), chunk("b", "second"), chunk("c", "third")}

	scored := Score(chunks, "unrelated question")

	assert.Equal(t, "a", scored[0].Chunk.Meta.DocumentID)
	assert.Equal(t, "b", scored[1].Chunk.Meta.DocumentID)
	assert.Equal(t, "c", scored[2].Chunk.Meta.DocumentID)
}

func TestGroupByDocument(t *testing.T) {
	scored := Score([]models.Chunk{
		chunk("a", "grading policy"),
		chunk("b", "midterm grading policy"),
		chunk("a", "midterm grading"),
	}, "midterm grading policy")

	groups := GroupByDocument(scored)

	require.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0].DocumentID)
	assert.Equal(t, 3, groups[0].TopScore)
	assert.Equal(t, "a", groups[1].DocumentID)
	assert.Equal(t, 2, groups[1].TopScore)
	require.Len(t, groups[1].Chunks, 2)
	assert.Equal(t, "grading policy", groups[1].Chunks[0].Chunk.Text)
}
