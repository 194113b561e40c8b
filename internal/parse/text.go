package parse

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// textProcessor wraps plain text in a fenced-free markdown body as-is.
type textProcessor struct{}

func (textProcessor) Name() string    { return "text_markdown" }
func (textProcessor) Version() string { return "1" }

func (textProcessor) Process(fileBytes []byte, mimeType string) (Output, error) {
	return Output{Markdown: string(fileBytes)}, nil
}

// markdownProcessor passes markdown through unchanged.
type markdownProcessor struct{}

func (markdownProcessor) Name() string    { return "markdown_markdown" }
func (markdownProcessor) Version() string { return "1" }

func (markdownProcessor) Process(fileBytes []byte, mimeType string) (Output, error) {
	return Output{Markdown: string(fileBytes)}, nil
}

// csvProcessor normalizes CSV content into rows. Ragged rows are accepted;
// the tabular consumer decides how to align them.
type csvProcessor struct{}

func (csvProcessor) Name() string    { return "csv_tabular" }
func (csvProcessor) Version() string { return "1" }

func (csvProcessor) Process(fileBytes []byte, mimeType string) (Output, error) {
	reader := csv.NewReader(bytes.NewReader(fileBytes))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return Output{}, fmt.Errorf("parse csv: %w", err)
	}
	for i, row := range rows {
		for j, cell := range row {
			rows[i][j] = strings.TrimSpace(cell)
		}
	}
	return Output{Rows: rows}, nil
}
