package pipeline

import (
	"math"
	"strings"

	"github.com/datasetu-labs/metaforge/internal/models"
)

// ScoreConfidence produces a composite extraction-quality estimate in
// [0.1, 1.0] for document runs. Sparse text and mostly-empty tables each
// lower the score; 0.0 is reserved for "no structured content at all".
func ScoreConfidence(pages []models.PageRecord, tables []models.TableRecord) float64 {
	if len(pages) == 0 && len(tables) == 0 {
		return 0.0
	}

	score := 1.0

	totalLen := 0
	for _, p := range pages {
		totalLen += len(p.Text)
	}
	if totalLen < 50 {
		score *= 0.5
	} else if totalLen < 200 {
		score *= 0.8
	}

	for _, t := range tables {
		if t.Whitespace > 0.8 {
			score *= 0.9
		}
	}

	return round2(math.Max(score, 0.1))
}

// ScoreTabular is the simple [0,1] variant for spreadsheet uploads, based on
// how completely the grid is filled.
func ScoreTabular(data [][]string) float64 {
	total, filled := 0, 0
	for _, row := range data {
		for _, cell := range row {
			total++
			if strings.TrimSpace(cell) != "" {
				filled++
			}
		}
	}
	if total == 0 {
		return 0.0
	}
	return round2(float64(filled) / float64(total))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
