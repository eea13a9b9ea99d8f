package core

import (
	"context"
	"io"

	"github.com/datasetu-labs/metaforge/internal/models"
)

// JobStore is the durable map from content digest to job record.
// Get returns (nil, nil) when the digest is unknown.
type JobStore interface {
	Save(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, digest string) (*models.Job, error)
}

// BlobStore abstracts binary storage so the dispatcher can run against local
// disk or S3 interchangeably.
type BlobStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) (locator string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// GenerationClient wraps an external text-generation endpoint.
// Generate errors carry a GenError so callers can branch on failure class.
type GenerationClient interface {
	ListCandidates(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, modelID, prompt string) (string, error)
}

// Task identifies one scheduled pipeline run.
type Task struct {
	Digest   string `json:"digest"`
	Filename string `json:"filename"`
	Kind     string `json:"kind"`
}

// ProcessFunc runs the pipeline for a task and writes the terminal job state.
type ProcessFunc func(ctx context.Context, task Task)

// Scheduler decouples "schedule a pipeline run" from how it executes:
// synchronously inline, on an in-process worker pool, or via an external
// queue. All implementations share the same fire-and-eventually-write-
// terminal-state contract.
type Scheduler interface {
	Schedule(ctx context.Context, task Task) error
}

// TypeDetector classifies a PDF as "digital" (extractable text layer) or
// "scanned" (image only).
type TypeDetector interface {
	Detect(ctx context.Context, path string) (string, error)
}

// TextExtractor pulls per-page text from a digital document.
type TextExtractor interface {
	Extract(ctx context.Context, path string) ([]models.PageRecord, error)
}

// OCRExtractor recovers per-page text from scanned documents.
type OCRExtractor interface {
	Extract(ctx context.Context, path string) ([]models.PageRecord, error)
}

// TableExtractor detects tabular grids in a document.
type TableExtractor interface {
	Extract(ctx context.Context, path string) ([]models.TableRecord, error)
}
