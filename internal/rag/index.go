package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PixlGalaxy/EagleDocs/internal/models"
	"github.com/PixlGalaxy/EagleDocs/pkg/storage"
)

var (
	unsafeSegment  = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	unsafeFileSlug = regexp.MustCompile(`[^a-z0-9_-]`)
)

// ScopedDir is the academicYear/instructor/course-crn directory shared by raw
// uploads and chunk indexes.
func ScopedDir(meta DocumentMeta) string {
	year := "unknown-year"
	if meta.AcademicYear > 0 {
		year = strconv.Itoa(meta.AcademicYear)
	}
	return path.Join(
		year,
		segmentSlug(meta.InstructorEmail, "unknown-instructor"),
		segmentSlug(meta.CourseCode, "course")+"-"+segmentSlug(meta.CRN, "nocrn"),
	)
}

// IndexFileName is {courseCodeSlug}-{documentId}.json.
func IndexFileName(meta DocumentMeta) string {
	slug := unsafeFileSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(meta.CourseCode)), "-")
	if slug == "" {
		slug = "course"
	}
	return fmt.Sprintf("%s-%s.json", slug, segmentSlug(meta.DocumentID, "document"))
}

func segmentSlug(raw, fallback string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	return unsafeSegment.ReplaceAllString(trimmed, "-")
}

// IndexStore persists one JSON chunk index per document.
type IndexStore struct {
	files           *storage.LocalStorage
	readConcurrency int
	logger          *zap.Logger
}

// NewIndexStore wraps a storage root dedicated to indexes.
func NewIndexStore(files *storage.LocalStorage, readConcurrency int, logger *zap.Logger) *IndexStore {
	if readConcurrency <= 0 {
		readConcurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexStore{files: files, readConcurrency: readConcurrency, logger: logger}
}

// PathFor returns the index location of a document relative to the store root.
func (s *IndexStore) PathFor(meta DocumentMeta) string {
	return path.Join(ScopedDir(meta), IndexFileName(meta))
}

// Write replaces the index at rel atomically.
func (s *IndexStore) Write(rel string, chunks []models.Chunk) error {
	if chunks == nil {
		chunks = []models.Chunk{}
	}
	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if _, err := s.files.SaveAtomic(rel, data); err != nil {
		return fmt.Errorf("write index %s: %w", rel, err)
	}
	return nil
}

// Read loads one index.
func (s *IndexStore) Read(rel string) ([]models.Chunk, error) {
	data, err := s.files.Read(rel)
	if err != nil {
		return nil, err
	}
	var chunks []models.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", rel, err)
	}
	return chunks, nil
}

// ReadAll loads many indexes concurrently and concatenates them in input order.
// Unreadable indexes are logged and skipped.
func (s *IndexStore) ReadAll(ctx context.Context, rels []string) ([]models.Chunk, error) {
	results := make([][]models.Chunk, len(rels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.readConcurrency)
	for i, rel := range rels {
		i, rel := i, rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chunks, err := s.Read(rel)
			if err != nil {
				s.logger.Warn("skip unreadable index", zap.String("index_path", rel), zap.Error(err))
				return nil
			}
			results[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []models.Chunk
	for _, chunks := range results {
		all = append(all, chunks...)
	}
	return all, nil
}

// Remove deletes an index if present.
func (s *IndexStore) Remove(rel string) error {
	return s.files.Delete(rel)
}

// IndexResult describes a written index.
type IndexResult struct {
	IndexPath    string
	ChunkCount   int
	PageEstimate int
}

// Indexer chunks text and writes the document's index.
type Indexer struct {
	chunker *Chunker
	store   *IndexStore
}

// NewIndexer pairs a chunker with an index store.
func NewIndexer(chunker *Chunker, store *IndexStore) *Indexer {
	return &Indexer{chunker: chunker, store: store}
}

// Index writes the chunk index for text. Empty text writes nothing and returns a zero result.
func (i *Indexer) Index(ctx context.Context, text string, meta DocumentMeta) (IndexResult, error) {
	if err := ctx.Err(); err != nil {
		return IndexResult{}, err
	}
	chunks := i.chunker.Chunk(text, meta)
	if len(chunks) == 0 {
		return IndexResult{}, nil
	}
	rel := i.store.PathFor(meta)
	if err := i.store.Write(rel, chunks); err != nil {
		return IndexResult{}, err
	}
	return IndexResult{
		IndexPath:    rel,
		ChunkCount:   len(chunks),
		PageEstimate: i.chunker.EstimatePages(text),
	}, nil
}
