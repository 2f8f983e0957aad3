package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/PixlGalaxy/EagleDocs/internal/models"
)

const courseColumns = `c.id, c.code, c.name, c.academic_year, c.crn, c.owner_id,
       COALESCE(u.email, '') AS instructor_email, c.archived, c.created_at`

// CourseRepository reads courses. Course CRUD lives elsewhere.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindActiveBySelector matches a course code case-insensitively or a CRN exactly,
// skipping archived courses. Several sections may share a code.
func (r *CourseRepository) FindActiveBySelector(ctx context.Context, selector string) ([]models.Course, error) {
	const query = `SELECT ` + courseColumns + `
	FROM courses c LEFT JOIN users u ON u.id = c.owner_id
	WHERE (LOWER(c.code) = LOWER($1) OR c.crn = $1) AND c.archived = FALSE
	ORDER BY c.academic_year DESC, c.crn ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, selector); err != nil {
		return nil, fmt.Errorf("find courses by selector: %w", err)
	}
	return courses, nil
}

// GetByID returns one course, archived or not.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT ` + courseColumns + `
	FROM courses c LEFT JOIN users u ON u.id = c.owner_id
	WHERE c.id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}
