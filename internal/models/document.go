package models

import "time"

// CourseDocument is an uploaded PDF together with its derived index metadata.
// TextContent, IndexPath and PageEstimate are filled in once, right after indexing.
type CourseDocument struct {
	ID            string    `db:"id" json:"id"`
	CourseID      string    `db:"course_id" json:"courseId"`
	FileName      string    `db:"file_name" json:"fileName"`
	OriginalName  string    `db:"original_name" json:"originalName"`
	MimeType      string    `db:"mime_type" json:"mimeType"`
	SizeBytes     int64     `db:"size_bytes" json:"sizeBytes"`
	StoragePath   string    `db:"storage_path" json:"-"`
	TextContent   *string   `db:"text_content" json:"textContent,omitempty"`
	IndexPath     *string   `db:"index_path" json:"-"`
	PageEstimate  *int      `db:"page_estimate" json:"pageEstimate,omitempty"`
	UploadedAt    time.Time `db:"uploaded_at" json:"uploadedAt"`
	CourseCode    string    `db:"course_code" json:"courseCode,omitempty"`
	CourseCRN     string    `db:"course_crn" json:"crn,omitempty"`
	AcademicYear  int       `db:"academic_year" json:"academicYear,omitempty"`
	InstructorKey string    `db:"instructor_email" json:"-"`
}

// DocumentIndexUpdate carries the values written after a document is indexed.
type DocumentIndexUpdate struct {
	DocumentID   string
	TextContent  string
	IndexPath    string
	PageEstimate int
}
