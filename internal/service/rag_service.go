package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PixlGalaxy/EagleDocs/internal/models"
	"github.com/PixlGalaxy/EagleDocs/internal/rag"
	appErrors "github.com/PixlGalaxy/EagleDocs/pkg/errors"
)

const excerptChars = 400

type ragCourseStore interface {
	FindActiveBySelector(ctx context.Context, selector string) ([]models.Course, error)
}

type ragDocumentStore interface {
	ListIndexedByCourseIDs(ctx context.Context, courseIDs []string) ([]models.CourseDocument, error)
}

type chunkReader interface {
	ReadAll(ctx context.Context, paths []string) ([]models.Chunk, error)
}

type downloadLinker interface {
	URL(basePath, documentID string) (string, error)
}

// RAGConfig configures retrieval.
type RAGConfig struct {
	DownloadBasePath string
	PreviewCacheTTL  time.Duration
}

// RAGService turns a course selector and a question into a grounded context.
type RAGService struct {
	courses   ragCourseStore
	documents ragDocumentStore
	chunks    chunkReader
	gate      rag.Gate
	assembler *rag.Assembler
	links     downloadLinker
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       RAGConfig
}

// NewRAGService wires the retrieval pipeline. links, cache and metrics may be nil.
func NewRAGService(courses ragCourseStore, documents ragDocumentStore, chunks chunkReader, gate rag.Gate, assembler *rag.Assembler, links downloadLinker, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg RAGConfig) *RAGService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = rag.PassThrough{}
	}
	if assembler == nil {
		assembler = rag.NewAssembler(rag.AssemblerConfig{})
	}
	return &RAGService{
		courses:   courses,
		documents: documents,
		chunks:    chunks,
		gate:      gate,
		assembler: assembler,
		links:     links,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// BuildContext resolves the course selector, scores the course's indexed chunks against
// question, lets the relevance gate pick documents and assembles the context block.
// An unknown or archived course is ErrNotFound.
func (s *RAGService) BuildContext(ctx context.Context, selector, question string) (models.RetrievalContext, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRetrieval(time.Since(start)) }()

	selector = strings.TrimSpace(selector)
	if selector == "" {
		return models.RetrievalContext{}, appErrors.Clone(appErrors.ErrValidation, "course code is required")
	}

	courses, err := s.courses.FindActiveBySelector(ctx, selector)
	if err != nil {
		return models.RetrievalContext{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course")
	}
	if len(courses) == 0 {
		return models.RetrievalContext{}, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	courseIDs := make([]string, 0, len(courses))
	for _, c := range courses {
		courseIDs = append(courseIDs, c.ID)
	}
	docs, err := s.documents.ListIndexedByCourseIDs(ctx, courseIDs)
	if err != nil {
		return models.RetrievalContext{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course documents")
	}
	if len(docs) == 0 {
		return models.RetrievalContext{Notes: []string{"no indexed documents for course " + selector}}, nil
	}

	paths := make([]string, 0, len(docs))
	refs := make(map[string]rag.DocumentRef, len(docs))
	for _, d := range docs {
		if d.IndexPath == nil || *d.IndexPath == "" {
			continue
		}
		paths = append(paths, *d.IndexPath)
		refs[d.ID] = s.documentRef(d)
	}

	chunks, err := s.chunks.ReadAll(ctx, paths)
	if err != nil {
		return models.RetrievalContext{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read document indexes")
	}
	if len(chunks) == 0 {
		return models.RetrievalContext{Notes: []string{"course documents contain no indexed text"}}, nil
	}

	groups := rag.GroupByDocument(rag.Score(chunks, question))
	candidates := make([]rag.Candidate, 0, len(groups))
	for _, g := range groups {
		if len(g.Chunks) == 0 {
			continue
		}
		top := g.Chunks[0].Chunk
		name := g.DocumentName
		if ref, ok := refs[g.DocumentID]; ok && ref.DocumentName != "" {
			name = ref.DocumentName
		}
		candidates = append(candidates, rag.Candidate{
			DocumentID:   g.DocumentID,
			DocumentName: name,
			CourseCode:   top.Meta.CourseCode,
			CRN:          top.Meta.CRN,
			Excerpt:      excerpt(top.Text),
			TopScore:     g.TopScore,
		})
	}

	selection, err := s.gate.Select(ctx, question, candidates)
	if err != nil {
		return models.RetrievalContext{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "relevance gate failed")
	}

	result := s.assembler.Assemble(groups, selection, refs)
	s.logger.Debug("course context assembled",
		zap.String("selector", selector),
		zap.String("gate_policy", s.gate.Policy()),
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(selection.DocumentIDs)),
		zap.Int("sources", len(result.Sources)),
		zap.Int("context_chars", len([]rune(result.Text))),
	)
	return result, nil
}

// Preview runs BuildContext and caches the result per selector and question.
func (s *RAGService) Preview(ctx context.Context, selector, question string) (models.RetrievalContext, error) {
	selector = strings.TrimSpace(selector)
	question = strings.TrimSpace(question)
	if question == "" {
		question = "context preview"
	}
	key := previewKey(selector, question)

	var cached models.RetrievalContext
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	result, err := s.BuildContext(ctx, selector, question)
	if err != nil {
		return models.RetrievalContext{}, err
	}
	_ = s.cache.Set(ctx, key, result, s.cfg.PreviewCacheTTL)
	return result, nil
}

// InvalidateCourse drops cached previews for a course's code and CRN.
func (s *RAGService) InvalidateCourse(ctx context.Context, course *models.Course) {
	if course == nil {
		return
	}
	for _, selector := range []string{course.Code, course.CRN} {
		if selector == "" {
			continue
		}
		_ = s.cache.Invalidate(ctx, previewPattern(selector))
	}
}

func (s *RAGService) documentRef(d models.CourseDocument) rag.DocumentRef {
	ref := rag.DocumentRef{
		DocumentID:   d.ID,
		DocumentName: d.OriginalName,
		CourseID:     d.CourseID,
		FilePath:     d.StoragePath,
	}
	if s.links != nil {
		if url, err := s.links.URL(s.cfg.DownloadBasePath, d.ID); err == nil {
			ref.DownloadURL = url
		} else {
			s.logger.Debug("download link unavailable", zap.String("document_id", d.ID), zap.Error(err))
		}
	}
	return ref
}

func excerpt(text string) string {
	r := []rune(text)
	if len(r) <= excerptChars {
		return text
	}
	return string(r[:excerptChars]) + "..."
}
