package dto

import "github.com/PixlGalaxy/EagleDocs/internal/models"

// CreateChatRequest creates an empty chat.
type CreateChatRequest struct {
	Title string `json:"title" validate:"omitempty,max=1000"`
}

// ChatTurnRequest is one user message. CourseCode is a course code or CRN; when set
// the answer is grounded in that course's documents.
type ChatTurnRequest struct {
	Content    string `json:"content"`
	CourseCode string `json:"courseCode" validate:"omitempty,max=64"`
	Model      string `json:"model" validate:"omitempty,max=128"`
}

// ChatTurnResponse is returned by a blocking turn and carried by the stream's done event.
type ChatTurnResponse struct {
	UserMessage models.Message  `json:"userMessage"`
	AIMessage   models.Message  `json:"aiMessage"`
	Sources     []models.Source `json:"sources"`
	Model       string          `json:"model,omitempty"`
}

// ChatExport is a rendered transcript.
type ChatExport struct {
	FileName    string
	ContentType string
	Data        []byte
}
