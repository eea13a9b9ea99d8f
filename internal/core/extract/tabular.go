package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/datasetu-labs/metaforge/internal/models"
)

// SampleRows is how many data rows accompany the headers in the
// harmonization prompt.
const SampleRows = 5

// TabularData is the parsed form of a CSV/XLSX upload.
type TabularData struct {
	Headers []string
	Rows    [][]string
}

// ReadTabular parses a CSV or XLSX file into headers plus data rows.
// The filename decides the parser; content is read from path.
func ReadTabular(path, filename string) (*TabularData, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls":
		return readXLSX(path)
	default:
		return readCSV(path)
	}
}

func readCSV(path string) (*TabularData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return fromRecords(records), nil
}

func readXLSX(path string) (*TabularData, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return fromRecords(records), nil
}

func fromRecords(records [][]string) *TabularData {
	if len(records) == 0 {
		return &TabularData{}
	}
	return &TabularData{Headers: records[0], Rows: records[1:]}
}

// Sample returns up to SampleRows data rows for prompting.
func (t *TabularData) Sample() [][]string {
	if len(t.Rows) <= SampleRows {
		return t.Rows
	}
	return t.Rows[:SampleRows]
}

// AsTable converts parsed tabular data into a TableRecord so the schema
// mapper and scorer treat spreadsheets and PDF tables uniformly.
func (t *TabularData) AsTable() models.TableRecord {
	grid := make([][]string, 0, len(t.Rows)+1)
	width := len(t.Headers)
	for _, row := range t.Rows {
		if len(row) > width {
			width = len(row)
		}
	}

	pad := func(row []string) []string {
		out := make([]string, width)
		copy(out, row)
		return out
	}

	grid = append(grid, pad(t.Headers))
	totalCells, emptyCells := 0, 0
	for _, row := range t.Rows {
		p := pad(row)
		for _, c := range p {
			totalCells++
			if strings.TrimSpace(c) == "" {
				emptyCells++
			}
		}
		grid = append(grid, p)
	}

	whitespace := 0.0
	if totalCells > 0 {
		whitespace = float64(emptyCells) / float64(totalCells)
	}

	return models.TableRecord{
		TableID:    0,
		Page:       1,
		Accuracy:   1.0,
		Whitespace: whitespace,
		Grid:       grid,
	}
}
