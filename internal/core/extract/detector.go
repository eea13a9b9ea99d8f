package extract

import (
	"context"
	"strings"

	"github.com/datasetu-labs/metaforge/internal/core"
)

const (
	DocTypeDigital = "digital"
	DocTypeScanned = "scanned"

	// Below this much text, a PDF with embedded images is assumed scanned.
	scannedTextThreshold = 200
)

// PDFTypeDetector classifies a PDF by comparing the size of its text layer
// against the presence of embedded images.
type PDFTypeDetector struct{}

func NewPDFTypeDetector() *PDFTypeDetector {
	return &PDFTypeDetector{}
}

func (d *PDFTypeDetector) Detect(ctx context.Context, path string) (string, error) {
	text, err := convertFile(path, "application/pdf")
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(text)) >= scannedTextThreshold {
		return DocTypeDigital, nil
	}

	images, cleanup, err := extractImages(path)
	if err != nil {
		return "", err
	}
	cleanup()

	if len(images) > 0 {
		return DocTypeScanned, nil
	}
	return DocTypeDigital, nil
}

var _ core.TypeDetector = (*PDFTypeDetector)(nil)
