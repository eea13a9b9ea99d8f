package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/core/extract"
	"github.com/datasetu-labs/metaforge/internal/models"
)

func pagesWithText(text string) []models.PageRecord {
	return []models.PageRecord{{Page: 1, Text: text}}
}

type fakeDetector struct {
	docType string
	err     error
}

func (f fakeDetector) Detect(ctx context.Context, path string) (string, error) {
	return f.docType, f.err
}

type fakeText struct {
	pages []models.PageRecord
	err   error
}

func (f fakeText) Extract(ctx context.Context, path string) ([]models.PageRecord, error) {
	return f.pages, f.err
}

type fakeTables struct {
	tables []models.TableRecord
	err    error
}

func (f fakeTables) Extract(ctx context.Context, path string) ([]models.TableRecord, error) {
	return f.tables, f.err
}

func successfulGen() *fakeGen {
	gen := newFakeGen("m1")
	gen.text["m1"] = validRecordJSON
	return gen
}

func testPipeline(det core.TypeDetector, text, secondary core.TextExtractor, ocr core.OCRExtractor, tables core.TableExtractor, gen *fakeGen) *Pipeline {
	return New(det, text, secondary, ocr, tables, newTestSynthesizer(gen, 1))
}

func TestRunDigitalHappyPath(t *testing.T) {
	longText := strings.Repeat("budget allocation by district ", 20)
	p := testPipeline(
		fakeDetector{docType: extract.DocTypeDigital},
		fakeText{pages: pagesWithText(longText)},
		fakeText{},
		fakeText{err: errors.New("ocr should not run")},
		fakeTables{tables: []models.TableRecord{{Grid: [][]string{{"Dist_Code"}, {"101"}}}}},
		successfulGen(),
	)

	result := p.Run(context.Background(), Source{Path: "x.pdf", Filename: "x.pdf", Kind: models.KindPDF})

	require.NotNil(t, result.Metadata)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "Health Survey 2023", result.Metadata.CatalogInfo.Title)
	assert.Equal(t, MethodDigital, result.Lineage.ExtractionMethod)
	assert.Equal(t, result.Confidence, result.Lineage.Confidence)
	assert.Len(t, result.Tables, 1)
	assert.Equal(t, "spatial_district", result.Semantic.ColumnMappings["Dist_Code"])
}

func TestRunFallsBackToSecondaryThenOCR(t *testing.T) {
	p := testPipeline(
		fakeDetector{docType: extract.DocTypeDigital},
		fakeText{pages: pagesWithText("   ")}, // blank text layer
		fakeText{},                            // secondary also empty
		fakeText{pages: pagesWithText("recovered by ocr " + strings.Repeat("x", 200))},
		fakeTables{},
		successfulGen(),
	)

	result := p.Run(context.Background(), Source{Path: "scan.pdf", Filename: "scan.pdf", Kind: models.KindPDF})

	require.NotNil(t, result.Metadata)
	assert.Empty(t, result.Metadata.Error)
	assert.Equal(t, MethodOCRFall, result.Lineage.ExtractionMethod)
}

func TestRunScannedUsesHybridOCR(t *testing.T) {
	p := testPipeline(
		fakeDetector{docType: extract.DocTypeScanned},
		fakeText{err: errors.New("text layer should not be read")},
		fakeText{},
		fakeText{pages: pagesWithText(strings.Repeat("scanned words ", 30))},
		fakeTables{},
		successfulGen(),
	)

	result := p.Run(context.Background(), Source{Path: "s.pdf", Filename: "s.pdf", Kind: models.KindPDF})

	require.NotNil(t, result.Metadata)
	assert.Equal(t, MethodOCRHybrid, result.Lineage.ExtractionMethod)
	assert.Empty(t, result.Errors)
}

func TestRunTableFailureIsIsolated(t *testing.T) {
	p := testPipeline(
		fakeDetector{docType: extract.DocTypeDigital},
		fakeText{pages: pagesWithText(strings.Repeat("narrative text ", 30))},
		fakeText{},
		fakeText{},
		fakeTables{err: errors.New("lattice detection crashed")},
		successfulGen(),
	)

	result := p.Run(context.Background(), Source{Path: "d.pdf", Filename: "d.pdf", Kind: models.KindPDF})

	require.NotNil(t, result.Metadata)
	assert.Empty(t, result.Metadata.Error)
	assert.Nil(t, result.Tables)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Table extraction")
}

func TestRunNoContentSkipsSynthesis(t *testing.T) {
	gen := successfulGen()
	p := testPipeline(
		fakeDetector{docType: extract.DocTypeDigital},
		fakeText{},
		fakeText{},
		fakeText{},
		fakeTables{},
		gen,
	)

	result := p.Run(context.Background(), Source{Path: "empty.pdf", Filename: "empty.pdf", Kind: models.KindPDF})

	require.NotNil(t, result.Metadata)
	assert.NotEmpty(t, result.Metadata.Error)
	assert.Equal(t, "Governance", result.Metadata.CatalogInfo.Sector)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Contains(t, result.Errors, noContentMsg)
	assert.Equal(t, 0, gen.callCount("m1"))
}

func TestRunDetectorFailureFallsBackToDigital(t *testing.T) {
	p := testPipeline(
		fakeDetector{err: errors.New("corrupt xref")},
		fakeText{pages: pagesWithText(strings.Repeat("content ", 40))},
		fakeText{},
		fakeText{},
		fakeTables{},
		successfulGen(),
	)

	result := p.Run(context.Background(), Source{Path: "d.pdf", Filename: "d.pdf", Kind: models.KindPDF})

	require.NotNil(t, result.Metadata)
	assert.Empty(t, result.Metadata.Error)
	assert.Equal(t, extract.DocTypeDigital, result.DocType)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Detection")
}

func TestRunSynthesisFailureYieldsErrorRecord(t *testing.T) {
	gen := newFakeGen("m1")
	gen.errs["m1"] = errors.New("hard failure")

	p := testPipeline(
		fakeDetector{docType: extract.DocTypeDigital},
		fakeText{pages: pagesWithText(strings.Repeat("content ", 40))},
		fakeText{},
		fakeText{},
		fakeTables{},
		gen,
	)

	result := p.Run(context.Background(), Source{Path: "d.pdf", Filename: "d.pdf", Kind: models.KindPDF})

	require.NotNil(t, result.Metadata)
	assert.NotEmpty(t, result.Metadata.Error)
	assert.Equal(t, "Processing Error", result.Metadata.CatalogInfo.Title)
	// Extraction still succeeded, so confidence reflects the text.
	assert.Equal(t, 1.0, result.Confidence)
}

func TestRunTabular(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spend.csv")
	csv := "Dist_Code,Amount\n101,2000\n102,\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	gen := newFakeGen("m1")
	gen.text["m1"] = `{
		"catalog_info": {"title": "District Spend", "sector": "Finance", "keywords": []},
		"provenance": {"source": "MoF"},
		"spatial_temporal": {"granularity": "District"},
		"technical_metadata": {
			"format": "CSV/Excel",
			"schema_details": [{"column": "Dist_Code", "standardized_header": "District_Code"}],
			"machine_readable": true
		}
	}`

	p := testPipeline(fakeDetector{}, fakeText{}, fakeText{}, fakeText{}, fakeTables{}, gen)

	result := p.Run(context.Background(), Source{Path: path, Filename: "spend.csv", Kind: models.KindTabular})

	require.NotNil(t, result.Metadata)
	assert.Equal(t, "District Spend", result.Metadata.CatalogInfo.Title)
	assert.Equal(t, MethodTabular, result.Lineage.ExtractionMethod)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, "spatial_district", result.Semantic.ColumnMappings["Dist_Code"])
	// 5 of 6 cells filled.
	assert.Equal(t, 0.83, result.Confidence)
	require.Len(t, result.Metadata.TechnicalMetadata.SchemaDetails, 1)
}

func TestRunTabularUnparseable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	p := testPipeline(fakeDetector{}, fakeText{}, fakeText{}, fakeText{}, fakeTables{}, successfulGen())

	result := p.Run(context.Background(), Source{Path: path, Filename: "broken.xlsx", Kind: models.KindTabular})

	require.NotNil(t, result.Metadata)
	assert.NotEmpty(t, result.Metadata.Error)
	assert.Equal(t, 0.0, result.Confidence)
	assert.NotEmpty(t, result.Errors)
}
