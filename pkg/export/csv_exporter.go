package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
)

// Dataset is a table of string cells keyed by header. Notes describe the table as a
// whole, for a transcript the chat title and course.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
	Notes   []string
}

// formulaLeaders start cells that spreadsheet applications evaluate. A leading hyphen
// is not included because transcripts use it for list items.
const formulaLeaders = "=+@\t\r"

// CSVExporter writes a Dataset as RFC 4180 CSV. Notes become leading "# " lines, which
// spreadsheet importers and pandas (comment="#") skip.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render encodes the dataset. Message text keeps its line breaks inside quoted cells.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, errors.New("csv requires at least one header")
	}

	var buf bytes.Buffer
	for _, note := range data.Notes {
		for _, line := range strings.Split(strings.ReplaceAll(note, "\r\n", "\n"), "\n") {
			buf.WriteString("# ")
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}

	w := csv.NewWriter(&buf)
	if err := w.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for n, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = neutralizeFormula(row[header])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", n+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func neutralizeFormula(cell string) string {
	if cell != "" && strings.IndexByte(formulaLeaders, cell[0]) >= 0 {
		return "'" + cell
	}
	return cell
}
