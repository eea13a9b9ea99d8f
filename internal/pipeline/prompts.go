package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datasetu-labs/metaforge/internal/models"
)

// Prompts follow the IDMO metadata-architect framing. The sector list is a
// closed vocabulary; anything outside it is normalized to Governance after
// parsing.

const sectorList = "[Agriculture, Education, Healthcare, Finance, Energy, Transport, Urban Development, Rural Development, Law & Justice, Science & Tech, Environment, Governance]"

// Documents longer than this get truncated before prompting.
const maxPromptChars = 100000

const documentPromptTemplate = `Act as a Senior Data Architect for the **India Data Management Office (IDMO)**.
Analyze the following text extracted from an Indian Government document and generate a high-precision JSON metadata object.

DOCUMENT TEXT (Truncated):
%s

---
STANDARDIZATION RULES:
1. **Sector**: MUST be one of: %s. If unsure, use "Governance".
2. **Ministry/Department**: Expand abbreviations (e.g., "MoHFW" -> "Ministry of Health and Family Welfare").
3. **Geography**: Detect specific Indian States, Districts, or "National".
4. **Granularity**: Choose from [National, State, District, Sub-District, Village].

OUTPUT JSON STRUCTURE (IDMO Compliant):
{
    "catalog_info": {
        "title": "Formal, descriptive title (e.g., 'Annual Health Survey 2023 - Bihar')",
        "description": "Professional summary including the purpose and scope of the data.",
        "sector": "One of the standard sectors listed above",
        "keywords": ["tag1", "tag2", "tag3"]
    },
    "provenance": {
        "source": "Full Name of Ministry or Department",
        "jurisdiction": "Specific State/District or 'India'",
        "data_owner": "Name of the entity/agency (e.g., 'NITI Aayog', 'NHM')"
    },
    "spatial_temporal": {
        "temporal_range": "YYYY-MM-DD to YYYY-MM-DD (or 'YYYY-YYYY')",
        "spatial_coverage": "Specific Region Name",
        "granularity": "National/State/District"
    },
    "technical_metadata": {
        "format": "PDF",
        "ai_readiness_level": 0.6,
        "machine_readable": false
    }
}

INSTRUCTIONS:
- Output ONLY valid JSON.
- If data is missing, infer reasonable defaults based on context.`

const tabularPromptTemplate = `Act as a Senior Data Architect for the **India Data Management Office (IDMO)**.
Standardize the following raw metadata from a structured dataset (CSV/Excel) into a strictly compliant JSON object.

RAW INPUT:
- Filename: %s
- Headers: %s
- Data Preview (First 5 rows):
%s

---
STANDARDIZATION RULES:
1. **Sector**: MUST be one of: %s.
2. **Ministry**: Infer the Central or State Ministry responsible for this data.
3. **Granularity**: Analyse columns. If 'Dist_Code' exists -> Granularity is 'District'. If 'State_Code' -> 'State'.
4. **Dates**: Normalize date ranges to ISO format (YYYY-MM-DD).
5. **Headers**: You MUST map every original column to a standardized, clean snake_case name.

OUTPUT JSON STRUCTURE (IDMO Compliant):
{
    "catalog_info": {
        "title": "Formal Descriptive Title",
        "description": "Concise summary of the dataset's contents and utility.",
        "sector": "Standard Sector from list",
        "keywords": ["tag1", "tag2", "tag3"]
    },
    "provenance": {
        "source": "Ministry/Department Name",
        "jurisdiction": "State/District or 'India'",
        "data_owner": "Agency Name"
    },
    "spatial_temporal": {
        "temporal_range": "YYYY-YYYY",
        "spatial_coverage": "Region Name",
        "granularity": "National/State/District/Village"
    },
    "technical_metadata": {
        "format": "CSV/Excel",
        "schema_details": [{ "column": "original_col_name", "standardized_header": "Standardized_Name", "type": "String/Int/Float", "description": "What this column represents" }],
        "ai_readiness_level": 0.9,
        "machine_readable": true
    }
}

INSTRUCTIONS:
- Map EVERY original column to a "standardized_header" (Snake Case, Descriptive).
- Example: "Dist_nm" -> "District_Name", "pop_2011" -> "Population_Census_2011".
- Output ONLY valid JSON.`

const collectionPromptTemplate = `Act as a Senior Data Architect for the **India Data Management Office (IDMO)**.
You are provided with a list of metadata records extracted from related Indian Government documents.

YOUR TASK:
Synthesize these into a SINGLE Master Metadata Record that represents the *entire collection*.

RULES FOR SYNTHESIS:
1. **Title**: If parts are "Annual Report Part 1" & "Part 2", Master Title is "Annual Report 2024".
2. **Sector**: Must be one of: %s.
3. **Spatial**: Find the broadest coverage. If one is "Mumbai" and another "Pune", coverage is "Maharashtra".
4. **Temporal**: Create a range from the Earliest Start Date to the Latest End Date.
5. **Ministry**: Ensure the Ministry name is standardized and expanded.

INPUT METADATA LIST:
%s

OUTPUT JSON STRUCTURE (IDMO Compliant):
{
    "catalog_info": {
        "title": "Consolidated Master Title",
        "description": "Comprehensive summary of the entire collection.",
        "sector": "Standard Sector",
        "keywords": ["merged", "unique", "tags"]
    },
    "provenance": {
        "source": "Ministry/Department",
        "jurisdiction": "Broadest Jurisdiction",
        "data_owner": "Primary Agency"
    },
    "spatial_temporal": {
        "temporal_range": "YYYY-MM-DD to YYYY-MM-DD",
        "spatial_coverage": "Combined Region",
        "granularity": "State/National"
    },
    "technical_metadata": {
        "format": "Consolidated",
        "ai_readiness_level": 0.85,
        "machine_readable": true
    }
}

Return ONLY the raw JSON.`

func documentPrompt(pages []models.PageRecord) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Text)
	}
	fullText := strings.Join(parts, " ")
	if len(fullText) > maxPromptChars {
		fullText = fullText[:maxPromptChars] + "...(truncated)"
	}
	return fmt.Sprintf(documentPromptTemplate, fullText, sectorList)
}

func tabularPrompt(filename string, headers []string, sample [][]string) string {
	var preview strings.Builder
	for _, row := range sample {
		preview.WriteString(strings.Join(row, ", "))
		preview.WriteString("\n")
	}
	return fmt.Sprintf(tabularPromptTemplate,
		filename, strings.Join(headers, ", "), preview.String(), sectorList)
}

func collectionPrompt(records []models.MetadataRecord) (string, error) {
	input, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata list: %w", err)
	}
	return fmt.Sprintf(collectionPromptTemplate, sectorList, string(input)), nil
}
