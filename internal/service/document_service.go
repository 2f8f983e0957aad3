package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/PixlGalaxy/EagleDocs/internal/dto"
	"github.com/PixlGalaxy/EagleDocs/internal/models"
	"github.com/PixlGalaxy/EagleDocs/internal/rag"
	"github.com/PixlGalaxy/EagleDocs/internal/repository"
	appErrors "github.com/PixlGalaxy/EagleDocs/pkg/errors"
	"github.com/PixlGalaxy/EagleDocs/pkg/jobs"
	"github.com/PixlGalaxy/EagleDocs/pkg/pdftext"
)

// ReindexJobType tags reindex jobs on the worker queue.
const ReindexJobType = "document.reindex"

var (
	unsafeFileName = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	dataURLPrefix  = regexp.MustCompile(`^data:[^;,]*;base64,`)

	errQueueFull = appErrors.New("QUEUE_FULL", http.StatusServiceUnavailable, "reindex queue is full, try again later")
)

type documentCourseStore interface {
	GetByID(ctx context.Context, id string) (*models.Course, error)
}

type documentStore interface {
	CreateIndexed(ctx context.Context, doc *models.CourseDocument, index repository.IndexFunc) error
	UpdateIndex(ctx context.Context, update models.DocumentIndexUpdate) error
	GetByID(ctx context.Context, id string) (*models.CourseDocument, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseDocument, error)
	Delete(ctx context.Context, id string) error
}

type rawFileStore interface {
	Save(filename string, data []byte) (string, error)
	Read(filename string) ([]byte, error)
	Delete(filename string) error
	Path(filename string) string
}

type documentIndexer interface {
	Index(ctx context.Context, text string, meta rag.DocumentMeta) (rag.IndexResult, error)
}

type indexRemover interface {
	Remove(rel string) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type previewInvalidator interface {
	InvalidateCourse(ctx context.Context, course *models.Course)
}

type downloadVerifier interface {
	Verify(documentID, rawExpires, signature string) error
}

// ExtractFunc pulls plain text out of a PDF.
type ExtractFunc func(data []byte) (string, pdftext.Stats)

// DocumentConfig bounds uploads.
type DocumentConfig struct {
	MaxBytes          int64
	TextSnapshotChars int
}

// DocumentService handles course document uploads, listing, deletion, reindexing and
// signed downloads.
type DocumentService struct {
	courses   documentCourseStore
	documents documentStore
	files     rawFileStore
	indexer   documentIndexer
	indexes   indexRemover
	extract   ExtractFunc
	queue     jobEnqueuer
	previews  previewInvalidator
	verifier  downloadVerifier
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       DocumentConfig
	now       func() time.Time
}

// NewDocumentService constructs a DocumentService. The reindex queue is attached
// separately with SetQueue because the queue's handler is the service itself.
func NewDocumentService(courses documentCourseStore, documents documentStore, files rawFileStore, indexer documentIndexer, indexes indexRemover, previews previewInvalidator, verifier downloadVerifier, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg DocumentConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20 << 20
	}
	if cfg.TextSnapshotChars <= 0 {
		cfg.TextSnapshotChars = 2000
	}
	return &DocumentService{
		courses:   courses,
		documents: documents,
		files:     files,
		indexer:   indexer,
		indexes:   indexes,
		extract:   pdftext.ExtractWithStats,
		previews:  previews,
		verifier:  verifier,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetQueue attaches the reindex queue.
func (s *DocumentService) SetQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Upload stores a base64 PDF, extracts and indexes its text and records the document.
// Any failure after the file is written removes the file and the index again.
func (s *DocumentService) Upload(ctx context.Context, actor *models.JWTClaims, courseID string, req dto.UploadDocumentRequest) (*dto.UploadDocumentResponse, error) {
	course, err := s.manageableCourse(ctx, actor, courseID)
	if err != nil {
		s.metrics.RecordUpload("rejected")
		return nil, err
	}
	data, err := s.decodeUpload(req)
	if err != nil {
		s.metrics.RecordUpload("rejected")
		return nil, err
	}

	meta := rag.DocumentMeta{
		DocumentName:    strings.TrimSpace(req.FileName),
		CourseCode:      course.Code,
		CRN:             course.CRN,
		AcademicYear:    course.AcademicYear,
		InstructorEmail: course.InstructorEmail,
	}
	rel := path.Join(rag.ScopedDir(meta), fmt.Sprintf("%d-%s", s.now().UnixMilli(), sanitizeFileName(meta.DocumentName)))
	if _, err := s.files.Save(rel, data); err != nil {
		s.metrics.RecordUpload("failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	text, stats := s.extract(data)
	if text == "" {
		s.removeFile(rel)
		s.metrics.RecordUpload("extraction_failed")
		s.logger.Warn("document extraction produced no text",
			zap.String("course_id", course.ID),
			zap.String("file", meta.DocumentName),
			zap.Int("segments", stats.Segments),
			zap.Int("inflate_failures", stats.InflateFailures),
		)
		return nil, appErrors.Clone(appErrors.ErrExtractionFailed, "")
	}

	doc := &models.CourseDocument{
		CourseID:     course.ID,
		FileName:     path.Base(rel),
		OriginalName: meta.DocumentName,
		MimeType:     "application/pdf",
		SizeBytes:    int64(len(data)),
		StoragePath:  rel,
	}
	var result rag.IndexResult
	err = s.documents.CreateIndexed(ctx, doc, func(ctx context.Context, d *models.CourseDocument) (models.DocumentIndexUpdate, error) {
		meta.DocumentID = d.ID
		var ierr error
		result, ierr = s.indexer.Index(ctx, text, meta)
		if ierr != nil {
			return models.DocumentIndexUpdate{}, ierr
		}
		return models.DocumentIndexUpdate{
			TextContent:  snapshot(text, s.cfg.TextSnapshotChars),
			IndexPath:    result.IndexPath,
			PageEstimate: result.PageEstimate,
		}, nil
	})
	if err != nil {
		s.removeFile(rel)
		if result.IndexPath != "" {
			_ = s.indexes.Remove(result.IndexPath)
		}
		s.metrics.RecordUpload("failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to index document")
	}

	s.invalidate(ctx, course)
	s.metrics.RecordUpload("ok")
	s.logger.Info("document uploaded",
		zap.String("course_id", course.ID),
		zap.String("document_id", doc.ID),
		zap.Int("chunks", result.ChunkCount),
		zap.Int("pages", result.PageEstimate),
		zap.Bool("printable_fallback", stats.UsedFallback),
	)
	return &dto.UploadDocumentResponse{Document: *doc, ChunkCount: result.ChunkCount}, nil
}

// List returns a course's documents, newest first.
func (s *DocumentService) List(ctx context.Context, courseID string) ([]models.CourseDocument, error) {
	if _, err := s.course(ctx, courseID); err != nil {
		return nil, err
	}
	docs, err := s.documents.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	if docs == nil {
		docs = []models.CourseDocument{}
	}
	return docs, nil
}

// Delete removes a document row together with its raw file and index.
func (s *DocumentService) Delete(ctx context.Context, actor *models.JWTClaims, courseID, documentID string) error {
	course, err := s.manageableCourse(ctx, actor, courseID)
	if err != nil {
		return err
	}
	doc, err := s.courseDocument(ctx, courseID, documentID)
	if err != nil {
		return err
	}
	if err := s.documents.Delete(ctx, doc.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}
	s.removeFile(doc.StoragePath)
	if doc.IndexPath != nil {
		if err := s.indexes.Remove(*doc.IndexPath); err != nil {
			s.logger.Warn("failed to remove document index", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	s.invalidate(ctx, course)
	return nil
}

// Reindex queues every document of the course for re-extraction.
func (s *DocumentService) Reindex(ctx context.Context, actor *models.JWTClaims, courseID string) (*dto.ReindexResponse, error) {
	if _, err := s.manageableCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "reindexing is not available")
	}
	docs, err := s.documents.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}

	queued := 0
	for _, d := range docs {
		err := s.queue.Enqueue(jobs.Job{ID: d.ID, Type: ReindexJobType, Payload: d.ID})
		if errors.Is(err, jobs.ErrQueueFull) {
			if queued == 0 {
				return nil, errQueueFull
			}
			s.logger.Warn("reindex queue filled up", zap.String("course_id", courseID), zap.Int("queued", queued), zap.Int("total", len(docs)))
			break
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue reindex")
		}
		queued++
	}
	return &dto.ReindexResponse{CourseID: courseID, Queued: queued}, nil
}

// HandleReindexJob is the jobs.Handler for ReindexJobType. It re-extracts the stored
// file, rewrites the index atomically and updates the row. When extraction yields no
// text the previous index and row are left untouched.
func (s *DocumentService) HandleReindexJob(ctx context.Context, job jobs.Job) error {
	documentID, ok := job.Payload.(string)
	if !ok || documentID == "" {
		return fmt.Errorf("reindex job %s: unexpected payload %T", job.ID, job.Payload)
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("reindex skipped, document gone", zap.String("document_id", documentID))
			return nil
		}
		return fmt.Errorf("load document %s: %w", documentID, err)
	}

	data, err := s.files.Read(doc.StoragePath)
	if err != nil {
		return fmt.Errorf("read document %s: %w", documentID, err)
	}
	text, stats := s.extract(data)
	if text == "" {
		s.logger.Warn("reindex extraction produced no text, keeping previous index",
			zap.String("document_id", documentID),
			zap.Int("segments", stats.Segments),
			zap.Int("inflate_failures", stats.InflateFailures),
		)
		return appErrors.Clone(appErrors.ErrExtractionFailed, "")
	}

	meta := rag.DocumentMeta{
		DocumentID:      doc.ID,
		DocumentName:    doc.OriginalName,
		CourseCode:      doc.CourseCode,
		CRN:             doc.CourseCRN,
		AcademicYear:    doc.AcademicYear,
		InstructorEmail: doc.InstructorKey,
	}
	result, err := s.indexer.Index(ctx, text, meta)
	if err != nil {
		return fmt.Errorf("index document %s: %w", documentID, err)
	}
	if doc.IndexPath != nil && *doc.IndexPath != "" && *doc.IndexPath != result.IndexPath {
		_ = s.indexes.Remove(*doc.IndexPath)
	}

	update := models.DocumentIndexUpdate{
		DocumentID:   doc.ID,
		TextContent:  snapshot(text, s.cfg.TextSnapshotChars),
		IndexPath:    result.IndexPath,
		PageEstimate: result.PageEstimate,
	}
	if err := s.documents.UpdateIndex(ctx, update); err != nil {
		return err
	}
	s.invalidate(ctx, &models.Course{ID: doc.CourseID, Code: doc.CourseCode, CRN: doc.CourseCRN})
	s.logger.Info("document reindexed", zap.String("document_id", doc.ID), zap.Int("chunks", result.ChunkCount))
	return nil
}

// ReindexResult is the jobs.ResultHook for the reindex queue.
func (s *DocumentService) ReindexResult(job jobs.Job, err error) {
	if err != nil {
		s.metrics.RecordReindex("failed")
		return
	}
	s.metrics.RecordReindex("ok")
}

// Download verifies a signed link and returns the document and the absolute path
// of its raw file.
func (s *DocumentService) Download(ctx context.Context, documentID, expires, signature string) (*models.CourseDocument, string, error) {
	if s.verifier == nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "downloads are disabled")
	}
	if err := s.verifier.Verify(documentID, expires, signature); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link")
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	full := s.files.Path(doc.StoragePath)
	if full == "" {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "document file not found")
	}
	return doc, full, nil
}

func (s *DocumentService) decodeUpload(req dto.UploadDocumentRequest) ([]byte, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "fileName and fileData are required")
	}
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(req.FileName)), ".pdf") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only PDF files are accepted")
	}

	encoded := dataURLPrefix.ReplaceAllString(strings.TrimSpace(req.FileData), "")
	if int64(base64.StdEncoding.DecodedLen(len(encoded))) > s.cfg.MaxBytes+2 {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxBytes))
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "fileData is not valid base64")
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxBytes))
	}
	return data, nil
}

func (s *DocumentService) course(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// manageableCourse loads the course and checks the actor is its instructor or an admin.
func (s *DocumentService) manageableCourse(ctx context.Context, actor *models.JWTClaims, courseID string) (*models.Course, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAdmin {
		return course, nil
	}
	if actor.Role != models.RoleInstructor || course.OwnerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course instructor can manage documents")
	}
	return course, nil
}

func (s *DocumentService) courseDocument(ctx context.Context, courseID, documentID string) (*models.CourseDocument, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.CourseID != courseID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	return doc, nil
}

func (s *DocumentService) invalidate(ctx context.Context, course *models.Course) {
	if s.previews != nil {
		s.previews.InvalidateCourse(ctx, course)
	}
}

func (s *DocumentService) removeFile(rel string) {
	if err := s.files.Delete(rel); err != nil {
		s.logger.Warn("failed to remove stored file", zap.String("path", rel), zap.Error(err))
	}
}

func sanitizeFileName(name string) string {
	cleaned := unsafeFileName.ReplaceAllString(path.Base(strings.ReplaceAll(name, "\\", "/")), "_")
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "document.pdf"
	}
	return cleaned
}

func snapshot(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max])
}
