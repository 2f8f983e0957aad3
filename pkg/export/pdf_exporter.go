package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets as a sequence of labelled entries, one per row.
// Rows are written with MultiCell so long values such as chat messages wrap.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title. The first two columns of each
// row form a bold heading and the remaining columns follow as body text.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.MultiCell(0, 8, tr(title), "", "C", false)
		pdf.Ln(4)
	}
	if len(data.Notes) > 0 {
		pdf.SetFont("Arial", "I", 9)
		for _, note := range data.Notes {
			pdf.MultiCell(0, 5, tr(note), "", "L", false)
		}
		pdf.Ln(3)
	}

	split := 2
	if len(data.Headers) < split {
		split = len(data.Headers)
	}
	for _, row := range data.Rows {
		heading := make([]string, 0, split)
		for _, header := range data.Headers[:split] {
			if v := row[header]; v != "" {
				heading = append(heading, v)
			}
		}
		pdf.SetFont("Arial", "B", 10)
		pdf.MultiCell(0, 6, tr(strings.Join(heading, "  ")), "", "L", false)

		pdf.SetFont("Arial", "", 10)
		for _, header := range data.Headers[split:] {
			if v := row[header]; v != "" {
				pdf.MultiCell(0, 5, tr(v), "", "L", false)
			}
		}
		pdf.Ln(3)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
