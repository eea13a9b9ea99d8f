// Package pipeline runs the multi-stage extraction and synthesis flow that
// turns an uploaded document into a MetadataRecord. Every stage is fault
// isolated: a failing stage records an error string and the run continues
// with the best available partial data.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/core/extract"
	"github.com/datasetu-labs/metaforge/internal/models"
)

const noContentMsg = "No text could be extracted from the document (empty or unsupported)."

// Extraction method labels recorded in lineage.
const (
	MethodDigital   = "Digital Extraction"
	MethodOCRFall   = "OCR (fallback)"
	MethodOCRHybrid = "OCR (hybrid)"
	MethodTabular   = "Tabular Ingestion"
)

// Source is one locally materialized document to process.
type Source struct {
	Path     string
	Filename string
	Kind     string // models.KindPDF | models.KindTabular
}

// Pipeline composes the extraction capabilities and the synthesizer.
// All dependencies are injected; the pipeline holds no hidden shared state
// and is safe for concurrent runs on distinct sources.
type Pipeline struct {
	detector      core.TypeDetector
	text          core.TextExtractor
	secondaryText core.TextExtractor
	ocr           core.OCRExtractor
	tables        core.TableExtractor
	synth         *Synthesizer
}

func New(detector core.TypeDetector, text, secondaryText core.TextExtractor, ocr core.OCRExtractor, tables core.TableExtractor, synth *Synthesizer) *Pipeline {
	return &Pipeline{
		detector:      detector,
		text:          text,
		secondaryText: secondaryText,
		ocr:           ocr,
		tables:        tables,
		synth:         synth,
	}
}

// Run executes the full pipeline for one source. It always returns a
// complete result: stage failures accumulate in result.Errors and synthesis
// failures substitute an error-shaped record.
func (p *Pipeline) Run(ctx context.Context, src Source) *models.PipelineResult {
	if src.Kind == models.KindTabular {
		return p.runTabular(ctx, src)
	}
	return p.runDocument(ctx, src)
}

func (p *Pipeline) runDocument(ctx context.Context, src Source) *models.PipelineResult {
	var errs []string

	// 1. Detect type. Detector failure falls back to digital.
	docType, err := p.detector.Detect(ctx, src.Path)
	if err != nil {
		errs = append(errs, fmt.Sprintf("Detection: %v", err))
		docType = extract.DocTypeDigital
	}

	// 2. Table extraction runs independently; its failure never blocks the
	// text path.
	var (
		tables   []models.TableRecord
		tableErr error
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		tables, tableErr = p.tables.Extract(ctx, src.Path)
	}()

	// 2. Text extraction, branching on detected type.
	var pages []models.PageRecord
	method := MethodDigital
	if docType == extract.DocTypeDigital {
		pages, err = p.text.Extract(ctx, src.Path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Text extraction: %v", err))
		}
		if !extract.HasText(pages) && p.secondaryText != nil {
			log.Printf("pipeline: primary extraction empty for %s, trying secondary strategy", src.Filename)
			if fallback, err := p.secondaryText.Extract(ctx, src.Path); err != nil {
				errs = append(errs, fmt.Sprintf("Secondary text extraction: %v", err))
			} else if extract.HasText(fallback) {
				pages = fallback
			}
		}
		if !extract.HasText(pages) {
			log.Printf("pipeline: digital extraction empty for %s, attempting OCR fallback", src.Filename)
			if ocrPages, err := p.ocr.Extract(ctx, src.Path); err != nil {
				errs = append(errs, fmt.Sprintf("OCR fallback: %v", err))
			} else if len(ocrPages) > 0 {
				pages = ocrPages
				method = MethodOCRFall
			}
		}
	} else {
		method = MethodOCRHybrid
		pages, err = p.ocr.Extract(ctx, src.Path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("OCR: %v", err))
		}
	}

	wg.Wait()
	if tableErr != nil {
		errs = append(errs, fmt.Sprintf("Table extraction: %v", tableErr))
		tables = nil
	}

	if len(pages) == 0 {
		errs = append(errs, noContentMsg)
	}

	// 3. Clean, map, score.
	cleaned := CleanPages(pages)
	semantic := MapSchema(tables)
	confidence := ScoreConfidence(cleaned, tables)

	// 4. Synthesis. An empty prompt is never sent to the generation
	// capability; the run completes with an error-shaped record instead.
	var metadata *models.MetadataRecord
	if !extract.HasText(cleaned) {
		metadata = models.ErrorRecord("PDF", noContentMsg)
	} else {
		metadata, err = p.synth.FromPages(ctx, cleaned)
		if err != nil {
			metadata = models.ErrorRecord("PDF", err.Error())
			errs = append(errs, err.Error())
		}
	}

	return &models.PipelineResult{
		DocType:    docType,
		Pages:      cleaned,
		Tables:     tables,
		Semantic:   semantic,
		Confidence: confidence,
		Metadata:   metadata,
		Lineage:    stampLineage(src.Filename, confidence, method),
		Errors:     errs,
	}
}

func (p *Pipeline) runTabular(ctx context.Context, src Source) *models.PipelineResult {
	var errs []string

	data, err := extract.ReadTabular(src.Path, src.Filename)
	if err != nil {
		errs = append(errs, fmt.Sprintf("Tabular parsing: %v", err))
		return &models.PipelineResult{
			DocType:    models.KindTabular,
			Confidence: 0.0,
			Metadata:   models.ErrorRecord("CSV/Excel", err.Error()),
			Lineage:    stampLineage(src.Filename, 0.0, MethodTabular),
			Errors:     errs,
		}
	}

	table := data.AsTable()
	tables := []models.TableRecord{table}
	semantic := MapSchema(tables)
	confidence := ScoreTabular(table.Grid)

	var metadata *models.MetadataRecord
	if len(data.Headers) == 0 {
		errs = append(errs, noContentMsg)
		metadata = models.ErrorRecord("CSV/Excel", noContentMsg)
	} else {
		metadata, err = p.synth.FromTabular(ctx, src.Filename, data.Headers, data.Sample())
		if err != nil {
			metadata = models.ErrorRecord("CSV/Excel", err.Error())
			errs = append(errs, err.Error())
		}
	}

	return &models.PipelineResult{
		DocType:    models.KindTabular,
		Tables:     tables,
		Semantic:   semantic,
		Confidence: confidence,
		Metadata:   metadata,
		Lineage:    stampLineage(src.Filename, confidence, MethodTabular),
		Errors:     errs,
	}
}

// stampLineage records provenance once per run.
func stampLineage(source string, confidence float64, method string) models.Lineage {
	return models.Lineage{
		Source:           source,
		ProcessedAt:      time.Now().UTC(),
		Confidence:       confidence,
		ExtractionMethod: method,
	}
}
