package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/PixlGalaxy/EagleDocs/internal/models"
)

const documentSelect = `SELECT d.id, d.course_id, d.file_name, d.original_name, d.mime_type, d.size_bytes,
       d.storage_path, d.text_content, d.index_path, d.page_estimate, d.uploaded_at,
       c.code AS course_code, c.crn AS course_crn, c.academic_year, COALESCE(u.email, '') AS instructor_email
	FROM course_documents d
	JOIN courses c ON c.id = d.course_id
	LEFT JOIN users u ON u.id = c.owner_id`

// IndexFunc derives the index of a freshly inserted document inside the upload transaction.
type IndexFunc func(ctx context.Context, doc *models.CourseDocument) (models.DocumentIndexUpdate, error)

// DocumentRepository persists course documents.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateIndexed inserts doc, runs index and stores its result in one transaction.
// If index fails the row is rolled back, so a document is never visible half-indexed.
func (r *DocumentRepository) CreateIndexed(ctx context.Context, doc *models.CourseDocument, index IndexFunc) (err error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin document transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO course_documents
	(id, course_id, file_name, original_name, mime_type, size_bytes, storage_path, uploaded_at)
	VALUES (:id, :course_id, :file_name, :original_name, :mime_type, :size_bytes, :storage_path, :uploaded_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, doc); err != nil {
		return fmt.Errorf("insert course document: %w", err)
	}

	update, err := index(ctx, doc)
	if err != nil {
		return err
	}
	update.DocumentID = doc.ID
	if err = applyIndexUpdate(ctx, tx, update); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit course document: %w", err)
	}
	doc.TextContent = &update.TextContent
	doc.IndexPath = &update.IndexPath
	doc.PageEstimate = &update.PageEstimate
	return nil
}

// UpdateIndex records a re-index outside of an upload.
func (r *DocumentRepository) UpdateIndex(ctx context.Context, update models.DocumentIndexUpdate) error {
	return applyIndexUpdate(ctx, r.db, update)
}

func applyIndexUpdate(ctx context.Context, exec sqlx.ExecerContext, update models.DocumentIndexUpdate) error {
	const query = `UPDATE course_documents SET text_content = $1, index_path = $2, page_estimate = $3 WHERE id = $4`
	res, err := exec.ExecContext(ctx, query, update.TextContent, nullable(update.IndexPath), update.PageEstimate, update.DocumentID)
	if err != nil {
		return fmt.Errorf("update document index: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update document index %s: no rows", update.DocumentID)
	}
	return nil
}

// GetByID returns one document with its course metadata.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.CourseDocument, error) {
	var doc models.CourseDocument
	if err := r.db.GetContext(ctx, &doc, documentSelect+` WHERE d.id = $1`, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByCourse returns a course's documents, newest first.
func (r *DocumentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseDocument, error) {
	var docs []models.CourseDocument
	if err := r.db.SelectContext(ctx, &docs, documentSelect+` WHERE d.course_id = $1 ORDER BY d.uploaded_at DESC`, courseID); err != nil {
		return nil, fmt.Errorf("list course documents: %w", err)
	}
	return docs, nil
}

// ListIndexedByCourseIDs returns documents that have a chunk index, oldest first.
func (r *DocumentRepository) ListIndexedByCourseIDs(ctx context.Context, courseIDs []string) ([]models.CourseDocument, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	var docs []models.CourseDocument
	query := documentSelect + ` WHERE d.course_id = ANY($1) AND d.index_path IS NOT NULL ORDER BY d.uploaded_at ASC`
	if err := r.db.SelectContext(ctx, &docs, query, pq.Array(courseIDs)); err != nil {
		return nil, fmt.Errorf("list indexed documents: %w", err)
	}
	return docs, nil
}

// Delete removes the document row.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM course_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete course document rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete course document %s: not found", id)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
