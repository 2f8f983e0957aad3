package models

// ChunkMeta tags a chunk with its provenance.
type ChunkMeta struct {
	Page         int    `json:"page"`
	DocumentID   string `json:"documentId"`
	DocumentName string `json:"documentName"`
	CourseCode   string `json:"courseCode"`
	CRN          string `json:"crn"`
	AcademicYear int    `json:"academicYear"`
}

// Chunk is a fixed-size slice of a document's extracted text.
type Chunk struct {
	Text string    `json:"text"`
	Meta ChunkMeta `json:"meta"`
}
