package pipeline

import (
	"regexp"
	"strings"

	"github.com/datasetu-labs/metaforge/internal/models"
)

// canonicalTokens maps short header tokens to canonical vocabulary labels.
// Order matters: the first containment match wins, so more specific and
// higher-priority tokens come first (e.g. "dist" must beat "code" for a
// header like Dist_Code).
var canonicalTokens = []struct {
	token string
	label string
}{
	{"district", "spatial_district"},
	{"dist", "spatial_district"},
	{"village", "spatial_village"},
	{"block", "spatial_block"},
	{"state", "spatial_state"},
	{"year", "temporal_year"},
	{"month", "temporal_month"},
	{"date", "temporal_date"},
	{"expenditure", "financial_expenditure"},
	{"budget", "financial_budget"},
	{"amount", "financial_amount"},
	{"population", "demographic_population"},
	{"name", "entity_name"},
	{"code", "entity_code"},
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeLabel lowercases, trims, and collapses punctuation and
// underscores into single underscores: "Dist_Code " -> "dist_code".
func normalizeLabel(label string) string {
	norm := strings.ToLower(strings.TrimSpace(label))
	norm = nonAlnum.ReplaceAllString(norm, "_")
	return strings.Trim(norm, "_")
}

// MapColumn resolves one column label against the canonical vocabulary.
// Unmatched labels fall back to their normalized slug.
func MapColumn(label string) (canonical string, matched bool) {
	norm := normalizeLabel(label)
	for _, c := range canonicalTokens {
		if strings.Contains(norm, c.token) {
			return c.label, true
		}
	}
	return norm, false
}

// MapSchema maps every table's header row to canonical labels.
// Confidence is 0.5 + 0.5 * matched/total, or 0.5 with no columns at all.
func MapSchema(tables []models.TableRecord) *models.SemanticMapping {
	mappings := make(map[string]string)
	matched, total := 0, 0

	for _, t := range tables {
		if len(t.Grid) == 0 {
			continue
		}
		for _, col := range t.Grid[0] {
			if strings.TrimSpace(col) == "" {
				continue
			}
			canonical, ok := MapColumn(col)
			mappings[col] = canonical
			if ok {
				matched++
			}
			total++
		}
	}

	confidence := 0.5
	if total > 0 {
		confidence = 0.5 + 0.5*float64(matched)/float64(total)
	}

	return &models.SemanticMapping{
		ColumnMappings:     mappings,
		SemanticConfidence: confidence,
	}
}
