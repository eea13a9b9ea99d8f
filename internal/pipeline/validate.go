package pipeline

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/datasetu-labs/metaforge/internal/models"
)

// Sectors is the closed vocabulary catalog_info.sector must come from.
var Sectors = []string{
	"Agriculture", "Education", "Healthcare", "Finance", "Energy", "Transport",
	"Urban Development", "Rural Development", "Law & Justice", "Science & Tech",
	"Environment", "Governance",
}

const recordSchema = `{
	"type": "object",
	"required": ["catalog_info", "provenance", "spatial_temporal", "technical_metadata"],
	"properties": {
		"catalog_info": {
			"type": "object",
			"required": ["title", "sector"],
			"properties": {
				"title": {"type": "string"},
				"description": {"type": "string"},
				"sector": {"type": "string"},
				"keywords": {"type": "array", "items": {"type": "string"}}
			}
		},
		"provenance": {
			"type": "object",
			"properties": {
				"source": {"type": "string"},
				"jurisdiction": {"type": "string"},
				"data_owner": {"type": "string"}
			}
		},
		"spatial_temporal": {
			"type": "object",
			"properties": {
				"temporal_range": {"type": "string"},
				"spatial_coverage": {"type": "string"},
				"granularity": {"type": "string"}
			}
		},
		"technical_metadata": {
			"type": "object",
			"properties": {
				"format": {"type": "string"},
				"ai_readiness_level": {"type": "number"},
				"machine_readable": {"type": "boolean"}
			}
		}
	}
}`

var compiledRecordSchema = jsonschema.MustCompileString("metadata_record.json", recordSchema)

// ValidateRecord checks a record against the MetadataRecord contract shape.
func ValidateRecord(record *models.MetadataRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	if err := compiledRecordSchema.Validate(v); err != nil {
		return fmt.Errorf("record does not match schema: %w", err)
	}
	return nil
}

// NormalizeRecord repairs fixable contract violations in a freshly parsed
// record: an out-of-vocabulary sector falls back to Governance and nil
// keywords become an empty list. Anything else is logged, not rejected.
func NormalizeRecord(record *models.MetadataRecord) {
	if !validSector(record.CatalogInfo.Sector) {
		log.Printf("synthesizer: sector %q not in vocabulary, defaulting to Governance", record.CatalogInfo.Sector)
		record.CatalogInfo.Sector = "Governance"
	}
	if record.CatalogInfo.Keywords == nil {
		record.CatalogInfo.Keywords = []string{}
	}
	if err := ValidateRecord(record); err != nil {
		log.Printf("synthesizer: record shape warning: %v", err)
	}
}

func validSector(sector string) bool {
	for _, s := range Sectors {
		if strings.EqualFold(s, sector) {
			return true
		}
	}
	return false
}
