package models

// PageRange is an inclusive page span.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Source is a citation for one document that contributed to a context block.
// It is returned to clients and never placed in a prompt.
type Source struct {
	DocumentID   string    `json:"documentId"`
	DocumentName string    `json:"documentName"`
	PageRange    PageRange `json:"pageRange"`
	CourseID     string    `json:"courseId"`
	FilePath     string    `json:"filePath"`
	DownloadURL  string    `json:"downloadUrl,omitempty"`
}

// RetrievalContext is the per-turn grounding material.
type RetrievalContext struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
	Notes   []string `json:"notes,omitempty"`
}

// Empty reports whether no context text was assembled.
func (r *RetrievalContext) Empty() bool {
	return r == nil || r.Text == ""
}
