package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PixlGalaxy/EagleDocs/internal/models"
)

const blockSeparator = "\n\n---\n\n"

// AssemblerConfig bounds the context block.
type AssemblerConfig struct {
	TopKPerDocument int
	MaxChars        int
}

// DocumentRef carries the citation fields of a document.
type DocumentRef struct {
	DocumentID   string
	DocumentName string
	CourseID     string
	FilePath     string
	DownloadURL  string
}

// Assembler turns gated document groups into a bounded context text plus sources.
type Assembler struct {
	cfg AssemblerConfig
}

// NewAssembler applies defaults (top 3 chunks per document, 10000 chars).
func NewAssembler(cfg AssemblerConfig) *Assembler {
	if cfg.TopKPerDocument <= 0 {
		cfg.TopKPerDocument = 3
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 10000
	}
	return &Assembler{cfg: cfg}
}

// Assemble renders one block per selected document, in group order, as
// "Document: {name} (page N[-M])\n{chunks}". The joined text is cut at MaxChars
// and only documents whose block starts before the cut are cited.
func (a *Assembler) Assemble(groups []DocumentGroup, selection GateResult, refs map[string]DocumentRef) models.RetrievalContext {
	selected := make(map[string]struct{}, len(selection.DocumentIDs))
	for _, id := range selection.DocumentIDs {
		selected[id] = struct{}{}
	}

	var (
		b       strings.Builder
		sources []models.Source
		runes   int
	)
	for _, group := range groups {
		if _, ok := selected[group.DocumentID]; !ok || len(group.Chunks) == 0 {
			continue
		}
		if runes >= a.cfg.MaxChars {
			break
		}

		top := group.Chunks
		if len(top) > a.cfg.TopKPerDocument {
			top = top[:a.cfg.TopKPerDocument]
		}
		pages := models.PageRange{Start: top[0].Chunk.Meta.Page, End: top[0].Chunk.Meta.Page}
		texts := make([]string, 0, len(top))
		for _, sc := range top {
			if p := sc.Chunk.Meta.Page; p < pages.Start {
				pages.Start = p
			} else if p > pages.End {
				pages.End = p
			}
			texts = append(texts, sc.Chunk.Text)
		}

		ref, ok := refs[group.DocumentID]
		if !ok {
			ref = DocumentRef{DocumentID: group.DocumentID}
		}
		name := ref.DocumentName
		if name == "" {
			name = group.DocumentName
		}

		block := fmt.Sprintf("Document: %s (%s)\n%s", name, pageLabel(pages), strings.Join(texts, "\n\n"))
		if b.Len() > 0 {
			sep := utf8.RuneCountInString(blockSeparator)
			if runes+sep >= a.cfg.MaxChars {
				break
			}
			b.WriteString(blockSeparator)
			runes += sep
		}
		b.WriteString(block)
		runes += utf8.RuneCountInString(block)

		sources = append(sources, models.Source{
			DocumentID:   group.DocumentID,
			DocumentName: name,
			PageRange:    pages,
			CourseID:     ref.CourseID,
			FilePath:     ref.FilePath,
			DownloadURL:  ref.DownloadURL,
		})
	}

	return models.RetrievalContext{
		Text:    truncateRunes(b.String(), a.cfg.MaxChars),
		Sources: sources,
		Notes:   selection.ContextNotes,
	}
}

func pageLabel(r models.PageRange) string {
	if r.Start == r.End {
		return fmt.Sprintf("page %d", r.Start)
	}
	return fmt.Sprintf("page %d-%d", r.Start, r.End)
}
