package models

import (
	"time"
)

// Job statuses. A job is created as "processing" and receives exactly one
// terminal write per pipeline run (last write wins on re-dispatch).
const (
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusError      = "error"
)

// Document kinds accepted by the dispatcher.
const (
	KindPDF     = "pdf"
	KindTabular = "tabular"
)

// Job is the durable record for one unique upload, keyed by content digest.
// Filename is metadata only; identical bytes under different names share a job.
type Job struct {
	Digest           string          `db:"digest" json:"digest"`
	OriginalFilename string          `db:"original_filename" json:"original_filename"`
	Kind             string          `db:"kind" json:"kind"`
	Status           string          `db:"status" json:"status"` // processing | success | error
	Result           *MetadataRecord `db:"result" json:"result,omitempty"`
	ErrorMessage     string          `db:"error_message" json:"error_message,omitempty"`
	Confidence       float64         `db:"confidence" json:"confidence,omitempty"`
	Lineage          *Lineage        `db:"lineage" json:"lineage,omitempty"`
	ProcessingErrors []string        `db:"processing_errors" json:"processing_errors,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// PageRecord is one page of extracted text. Page numbers are 1-based.
type PageRecord struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// TableRecord is one detected table as a row-major grid.
// Cells are never nil; missing values normalize to "".
type TableRecord struct {
	TableID    int        `json:"table_id"`
	Page       int        `json:"page"`
	Accuracy   float64    `json:"accuracy"`   // [0,1]
	Whitespace float64    `json:"whitespace"` // [0,1] share of empty cells
	Grid       [][]string `json:"data"`
}

// SemanticMapping maps original column labels to canonical vocabulary labels.
type SemanticMapping struct {
	ColumnMappings     map[string]string `json:"column_mappings"`
	SemanticConfidence float64           `json:"semantic_confidence"`
}

// Lineage records provenance of one pipeline run. Stamped once, never mutated.
type Lineage struct {
	Source           string    `json:"source"`
	ProcessedAt      time.Time `json:"processed_at"`
	Confidence       float64   `json:"confidence"`
	ExtractionMethod string    `json:"extraction_method"`
}

// CatalogInfo is the discovery-facing group of a MetadataRecord.
type CatalogInfo struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Sector      string   `json:"sector"`
	Keywords    []string `json:"keywords"`
}

type Provenance struct {
	Source       string `json:"source"`
	Jurisdiction string `json:"jurisdiction"`
	DataOwner    string `json:"data_owner"`
}

type SpatialTemporal struct {
	TemporalRange   string `json:"temporal_range"`
	SpatialCoverage string `json:"spatial_coverage"`
	Granularity     string `json:"granularity"`
}

// SchemaDetail describes one harmonized column of a tabular dataset.
// The CSV regeneration endpoint renames columns using these entries, so the
// field names here are a stable external contract.
type SchemaDetail struct {
	Column             string `json:"column"`
	StandardizedHeader string `json:"standardized_header"`
	Type               string `json:"type,omitempty"`
	Description        string `json:"description,omitempty"`
}

type TechnicalMetadata struct {
	Format           string         `json:"format"`
	SchemaDetails    []SchemaDetail `json:"schema_details,omitempty"`
	AIReadinessLevel float64        `json:"ai_readiness_level"`
	MachineReadable  bool           `json:"machine_readable"`
}

// MetadataRecord is the externally visible output of the pipeline.
// All four groups are always present, even for error-shaped records.
type MetadataRecord struct {
	CatalogInfo       CatalogInfo       `json:"catalog_info"`
	Provenance        Provenance        `json:"provenance"`
	SpatialTemporal   SpatialTemporal   `json:"spatial_temporal"`
	TechnicalMetadata TechnicalMetadata `json:"technical_metadata"`
	Error             string            `json:"error,omitempty"`
	Summary           string            `json:"summary,omitempty"`
}

// ErrorRecord builds a well-formed MetadataRecord describing a failed run so
// downstream consumers never see a malformed record.
func ErrorRecord(format, msg string) *MetadataRecord {
	return &MetadataRecord{
		CatalogInfo: CatalogInfo{
			Title:       "Processing Error",
			Description: msg,
			Sector:      "Governance",
			Keywords:    []string{},
		},
		Provenance:      Provenance{},
		SpatialTemporal: SpatialTemporal{},
		TechnicalMetadata: TechnicalMetadata{
			Format:           format,
			AIReadinessLevel: 0,
			MachineReadable:  false,
		},
		Error:   msg,
		Summary: msg,
	}
}

// PipelineResult is the full output of one pipeline run. The dispatcher
// persists the metadata, confidence and lineage onto the Job.
type PipelineResult struct {
	DocType    string           `json:"doc_type"`
	Pages      []PageRecord     `json:"pages,omitempty"`
	Tables     []TableRecord    `json:"tables,omitempty"`
	Semantic   *SemanticMapping `json:"semantic,omitempty"`
	Confidence float64          `json:"confidence"`
	Metadata   *MetadataRecord  `json:"metadata"`
	Lineage    Lineage          `json:"lineage"`
	Errors     []string         `json:"_errors,omitempty"`
}
