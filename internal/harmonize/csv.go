// Package harmonize regenerates a cleaned, header-standardized CSV for a
// successfully processed tabular job.
package harmonize

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/core/extract"
	"github.com/datasetu-labs/metaforge/internal/models"
)

// Harmonizer rebuilds a dataset from its stored blob, renaming columns
// according to the schema details synthesized for the job.
type Harmonizer struct {
	blobs      core.BlobStore
	scratchDir string
}

func New(blobs core.BlobStore, scratchDir string) *Harmonizer {
	return &Harmonizer{blobs: blobs, scratchDir: scratchDir}
}

// CSV fetches the original upload for a job, applies the standardized
// headers from its metadata record, and returns the regenerated CSV along
// with a download filename.
func (h *Harmonizer) CSV(ctx context.Context, job *models.Job) ([]byte, string, error) {
	if job.Kind != models.KindTabular {
		return nil, "", fmt.Errorf("job %s is not tabular", job.Digest)
	}
	if job.Status != models.StatusSuccess || job.Result == nil {
		return nil, "", fmt.Errorf("job %s has no harmonized schema yet", job.Digest)
	}

	data, err := h.blobs.Get(ctx, job.Digest)
	if err != nil {
		return nil, "", fmt.Errorf("fetch blob %s: %w", job.Digest, err)
	}

	path, cleanup, err := h.scratch(job.OriginalFilename, data)
	if err != nil {
		return nil, "", err
	}
	defer cleanup()

	parsed, err := extract.ReadTabular(path, job.OriginalFilename)
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", job.OriginalFilename, err)
	}

	headers := renameHeaders(parsed.Headers, job.Result.TechnicalMetadata.SchemaDetails)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, "", fmt.Errorf("write header row: %w", err)
	}
	for _, row := range parsed.Rows {
		if err := w.Write(padRow(row, len(headers))); err != nil {
			return nil, "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", fmt.Errorf("flush csv: %w", err)
	}

	return buf.Bytes(), downloadName(job.OriginalFilename), nil
}

func (h *Harmonizer) scratch(filename string, data []byte) (string, func(), error) {
	if err := os.MkdirAll(h.scratchDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}
	path := filepath.Join(h.scratchDir, uuid.New().String()+filepath.Ext(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", nil, fmt.Errorf("write scratch file: %w", err)
	}
	return path, func() { os.Remove(path) }, nil
}

// renameHeaders swaps each original column name for its standardized header
// when the synthesized schema covers it. Unmapped columns keep their
// original name so no data is dropped.
func renameHeaders(headers []string, details []models.SchemaDetail) []string {
	byColumn := make(map[string]string, len(details))
	for _, d := range details {
		if d.Column != "" && d.StandardizedHeader != "" {
			byColumn[strings.ToLower(strings.TrimSpace(d.Column))] = d.StandardizedHeader
		}
	}
	out := make([]string, len(headers))
	for i, hdr := range headers {
		if std, ok := byColumn[strings.ToLower(strings.TrimSpace(hdr))]; ok {
			out[i] = std
		} else {
			out[i] = hdr
		}
	}
	return out
}

// padRow fills short rows out to the header width. Rows wider than the
// header keep their extra cells so no values are lost.
func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// downloadName derives a safe attachment filename from the original upload.
func downloadName(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = unsafeNameChars.ReplaceAllString(base, "_")
	if base == "" || base == "_" {
		base = "dataset"
	}
	return "harmonized_" + base + ".csv"
}
