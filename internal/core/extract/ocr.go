package extract

import (
	"context"
	"log"
	"strings"

	"code.sajari.com/docconv"

	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/models"
)

// Pages whose cheap text-layer read yields more than this many characters
// skip the OCR pass entirely.
const hybridTextThreshold = 10

// HybridOCRExtractor recovers page text from scanned PDFs. Per page it first
// tries the instant text-layer read and only runs OCR on the page's embedded
// images when that read comes back empty.
type HybridOCRExtractor struct{}

func NewHybridOCRExtractor() *HybridOCRExtractor {
	return &HybridOCRExtractor{}
}

func (e *HybridOCRExtractor) Extract(ctx context.Context, path string) ([]models.PageRecord, error) {
	pageFiles, cleanup, err := splitPages(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var pages []models.PageRecord
	for i, pageFile := range pageFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := convertFile(pageFile, "application/pdf")
		if err == nil && len(strings.TrimSpace(text)) > hybridTextThreshold {
			pages = append(pages, models.PageRecord{Page: i + 1, Text: strings.TrimSpace(text)})
			continue
		}

		ocrText, err := e.ocrPage(pageFile)
		if err != nil {
			log.Printf("ocr: page %d failed: %v", i+1, err)
			ocrText = ""
		}
		pages = append(pages, models.PageRecord{Page: i + 1, Text: ocrText})
	}
	return pages, nil
}

// ocrPage extracts a page's embedded images and runs each through OCR.
func (e *HybridOCRExtractor) ocrPage(pageFile string) (string, error) {
	images, cleanup, err := extractImages(pageFile)
	if err != nil {
		return "", err
	}
	defer cleanup()

	var parts []string
	for _, img := range images {
		text, err := convertFile(img, docconv.MimeTypeByExtension(img))
		if err != nil {
			log.Printf("ocr: image %s failed: %v", img, err)
			continue
		}
		if t := strings.TrimSpace(text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

var _ core.OCRExtractor = (*HybridOCRExtractor)(nil)
