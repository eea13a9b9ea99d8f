package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"code.sajari.com/docconv"
	"golang.org/x/sync/errgroup"

	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/models"
)

// DocconvTextExtractor reads the text layer of a digital PDF page by page.
// Pages are converted concurrently; order is restored by index.
type DocconvTextExtractor struct{}

func NewDocconvTextExtractor() *DocconvTextExtractor {
	return &DocconvTextExtractor{}
}

func (e *DocconvTextExtractor) Extract(ctx context.Context, path string) ([]models.PageRecord, error) {
	pageFiles, cleanup, err := splitPages(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	pages := make([]models.PageRecord, len(pageFiles))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, pageFile := range pageFiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := convertFile(pageFile, "application/pdf")
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			mu.Lock()
			pages[i] = models.PageRecord{Page: i + 1, Text: text}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// ExtractWhole converts the document in one pass without page splitting.
// It is the secondary strategy when per-page extraction yields nothing.
func (e *DocconvTextExtractor) ExtractWhole(ctx context.Context, path string) ([]models.PageRecord, error) {
	text, err := convertFile(path, "application/pdf")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []models.PageRecord{{Page: 1, Text: text}}, nil
}

func convertFile(path, mimeType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	res, err := docconv.Convert(f, mimeType, false)
	if err != nil {
		return "", fmt.Errorf("docconv: %w", err)
	}
	return res.Body, nil
}

// WholeFileExtractor adapts ExtractWhole to the TextExtractor interface so
// the pipeline can chain it as a fallback strategy.
type WholeFileExtractor struct {
	inner *DocconvTextExtractor
}

func NewWholeFileExtractor(inner *DocconvTextExtractor) *WholeFileExtractor {
	return &WholeFileExtractor{inner: inner}
}

func (e *WholeFileExtractor) Extract(ctx context.Context, path string) ([]models.PageRecord, error) {
	return e.inner.ExtractWhole(ctx, path)
}

// HasText reports whether any page carries non-blank text.
func HasText(pages []models.PageRecord) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

var (
	_ core.TextExtractor = (*DocconvTextExtractor)(nil)
	_ core.TextExtractor = (*WholeFileExtractor)(nil)
)
