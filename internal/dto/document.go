package dto

import "github.com/PixlGalaxy/EagleDocs/internal/models"

// UploadDocumentRequest carries a base64-encoded PDF.
type UploadDocumentRequest struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	FileData string `json:"fileData" validate:"required"`
}

// UploadDocumentResponse reports the stored document and how many chunks were indexed.
type UploadDocumentResponse struct {
	Document   models.CourseDocument `json:"document"`
	ChunkCount int                   `json:"chunkCount"`
}

// ReindexResponse reports how many documents were queued.
type ReindexResponse struct {
	CourseID string `json:"courseId"`
	Queued   int    `json:"queued"`
}

// ContextPreviewResponse exposes the assembled context for a course and question.
type ContextPreviewResponse struct {
	CourseCode string          `json:"courseCode"`
	Question   string          `json:"question"`
	Context    string          `json:"context"`
	Sources    []models.Source `json:"sources"`
	Notes      []string        `json:"notes,omitempty"`
}
