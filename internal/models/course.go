package models

import "time"

// Course is the subset of a course row the retrieval pipeline needs.
// InstructorEmail is joined from the owning user.
type Course struct {
	ID              string    `db:"id" json:"id"`
	Code            string    `db:"code" json:"code"`
	Name            string    `db:"name" json:"name"`
	AcademicYear    int       `db:"academic_year" json:"academicYear"`
	CRN             string    `db:"crn" json:"crn"`
	OwnerID         string    `db:"owner_id" json:"ownerId"`
	InstructorEmail string    `db:"instructor_email" json:"instructorEmail"`
	Archived        bool      `db:"archived" json:"archived"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}
