package pipeline

import (
	"regexp"
	"strings"

	"github.com/datasetu-labs/metaforge/internal/models"
)

// A line present on more than this share of pages is boilerplate.
const boilerplateThreshold = 0.6

var pageNumberPattern = regexp.MustCompile(`^Page \d+`)

// CleanPages strips boilerplate from extracted page text. For multi-page
// documents any line occurring on more than 60% of pages is dropped along
// with page-number lines. Single-page documents only get the page-number
// rule: with one page every line is "100% frequent" and frequency-based
// removal would destroy the content.
func CleanPages(pages []models.PageRecord) []models.PageRecord {
	if len(pages) == 0 {
		return nil
	}

	var pageFreq map[string]int
	if len(pages) > 1 {
		pageFreq = make(map[string]int)
		for _, p := range pages {
			seen := make(map[string]bool)
			for _, line := range strings.Split(p.Text, "\n") {
				line = strings.TrimSpace(line)
				if !seen[line] {
					seen[line] = true
					pageFreq[line]++
				}
			}
		}
	}

	limit := float64(len(pages)) * boilerplateThreshold
	cleaned := make([]models.PageRecord, 0, len(pages))
	for _, p := range pages {
		var kept []string
		for _, line := range strings.Split(p.Text, "\n") {
			line = strings.TrimSpace(line)
			if pageNumberPattern.MatchString(line) {
				continue
			}
			if pageFreq != nil && float64(pageFreq[line]) > limit {
				continue
			}
			kept = append(kept, line)
		}
		cleaned = append(cleaned, models.PageRecord{
			Page: p.Page,
			Text: strings.Join(kept, "\n"),
		})
	}
	return cleaned
}
