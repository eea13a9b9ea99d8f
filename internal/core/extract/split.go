// Package extract implements the extraction capabilities consumed by the
// pipeline: type detection, per-page text, OCR and table grids.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func relaxedConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// splitPages optimizes the source PDF and splits it into single-page files
// inside a fresh scratch directory. The caller must invoke cleanup on every
// exit path. Page files follow pdfcpu's <base>_<n>.pdf naming.
func splitPages(path string) (pageFiles []string, cleanup func(), err error) {
	tempDir, err := os.MkdirTemp("", "metaforge-pages-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create scratch dir: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(tempDir) }

	optimized := filepath.Join(tempDir, "source.pdf")
	if err := api.OptimizeFile(path, optimized, relaxedConf()); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("optimize pdf: %w", err)
	}

	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("page count: %w", err)
	}

	if err := api.SplitFile(optimized, tempDir, 1, nil); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("split pdf: %w", err)
	}

	base := strings.TrimSuffix(optimized, filepath.Ext(optimized))
	for i := 1; i <= pageCount; i++ {
		pageFiles = append(pageFiles, fmt.Sprintf("%s_%d.pdf", base, i))
	}
	return pageFiles, cleanup, nil
}

// extractImages pulls embedded images of a PDF into a scratch directory and
// returns their paths. Used both for scan detection and for feeding OCR.
func extractImages(path string) (imageFiles []string, cleanup func(), err error) {
	tempDir, err := os.MkdirTemp("", "metaforge-images-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create scratch dir: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(tempDir) }

	if err := api.ExtractImagesFile(path, tempDir, nil, relaxedConf()); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("extract images: %w", err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("read scratch dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			imageFiles = append(imageFiles, filepath.Join(tempDir, e.Name()))
		}
	}
	return imageFiles, cleanup, nil
}
