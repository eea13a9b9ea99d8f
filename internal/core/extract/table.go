package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/models"
)

// Runs of two or more spaces (or a tab) separate cells in text-layout tables.
var cellSeparator = regexp.MustCompile(`\t|\s{2,}`)

// Minimum consecutive columnar lines that count as a table.
const minTableRows = 3

// LayoutTableExtractor detects tables in the extracted text layout of a PDF:
// consecutive lines that split into the same multi-column shape form a grid.
// It is deliberately conservative; a page with no columnar runs yields no
// tables rather than a garbage grid.
type LayoutTableExtractor struct{}

func NewLayoutTableExtractor() *LayoutTableExtractor {
	return &LayoutTableExtractor{}
}

func (e *LayoutTableExtractor) Extract(ctx context.Context, path string) ([]models.TableRecord, error) {
	pageFiles, cleanup, err := splitPages(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var tables []models.TableRecord
	for i, pageFile := range pageFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := convertFile(pageFile, "application/pdf")
		if err != nil {
			continue
		}
		for _, rows := range columnarRuns(text) {
			tables = append(tables, buildTable(len(tables), i+1, rows))
		}
	}
	return tables, nil
}

// columnarRuns groups consecutive multi-column lines into candidate tables.
func columnarRuns(text string) [][][]string {
	var runs [][][]string
	var current [][]string

	flush := func() {
		if len(current) >= minTableRows {
			runs = append(runs, current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		cells := splitCells(line)
		if len(cells) >= 2 {
			current = append(current, cells)
		} else {
			flush()
		}
	}
	flush()
	return runs
}

func splitCells(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	var cells []string
	for _, c := range cellSeparator.Split(line, -1) {
		cells = append(cells, strings.TrimSpace(c))
	}
	return cells
}

// buildTable normalizes rows to a rectangular grid. Short rows are padded
// with empty cells; cells are never nil.
func buildTable(id, page int, rows [][]string) models.TableRecord {
	width := modalWidth(rows)

	aligned := 0
	totalCells := 0
	emptyCells := 0
	grid := make([][]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == width {
			aligned++
		}
		normalized := make([]string, width)
		for i := 0; i < width; i++ {
			if i < len(row) {
				normalized[i] = row[i]
			}
			if normalized[i] == "" {
				emptyCells++
			}
			totalCells++
		}
		grid = append(grid, normalized)
	}

	accuracy := 0.0
	if len(rows) > 0 {
		accuracy = float64(aligned) / float64(len(rows))
	}
	whitespace := 0.0
	if totalCells > 0 {
		whitespace = float64(emptyCells) / float64(totalCells)
	}

	return models.TableRecord{
		TableID:    id,
		Page:       page,
		Accuracy:   accuracy,
		Whitespace: whitespace,
		Grid:       grid,
	}
}

func modalWidth(rows [][]string) int {
	counts := make(map[int]int)
	for _, row := range rows {
		counts[len(row)]++
	}
	width, best := 0, 0
	for w, n := range counts {
		if n > best || (n == best && w > width) {
			width, best = w, n
		}
	}
	return width
}

var _ core.TableExtractor = (*LayoutTableExtractor)(nil)
