package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/models"
)

// Synthesizer drives the generation capability with a preference-ordered
// candidate list. Per candidate it retries rate-limit/overload failures with
// exponential backoff plus jitter; invalid-input failures abandon the
// candidate immediately. The first candidate whose response parses as JSON
// wins. It never panics or leaks raw transport errors past this boundary.
type Synthesizer struct {
	gen        core.GenerationClient
	maxRetries int
	baseDelay  time.Duration
}

func NewSynthesizer(gen core.GenerationClient, maxRetries int) *Synthesizer {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Synthesizer{
		gen:        gen,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
	}
}

// FromPages synthesizes a MetadataRecord from cleaned document text.
func (s *Synthesizer) FromPages(ctx context.Context, pages []models.PageRecord) (*models.MetadataRecord, error) {
	return s.generate(ctx, documentPrompt(pages))
}

// FromTabular synthesizes a MetadataRecord (including schema_details) from
// spreadsheet headers and a sample of rows.
func (s *Synthesizer) FromTabular(ctx context.Context, filename string, headers []string, sample [][]string) (*models.MetadataRecord, error) {
	return s.generate(ctx, tabularPrompt(filename, headers, sample))
}

// Consolidate merges a list of related records into one master record.
func (s *Synthesizer) Consolidate(ctx context.Context, records []models.MetadataRecord) (*models.MetadataRecord, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no metadata provided for synthesis")
	}
	prompt, err := collectionPrompt(records)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, prompt)
}

func (s *Synthesizer) generate(ctx context.Context, prompt string) (*models.MetadataRecord, error) {
	candidates, err := s.gen.ListCandidates(ctx)
	if err != nil || len(candidates) == 0 {
		return nil, &core.GenerationExhausted{Details: fmt.Sprintf("no candidate models: %v", err)}
	}

	var lastErr error
	for _, modelID := range candidates {
		raw, err := s.generateWithRetry(ctx, modelID, prompt)
		if err != nil {
			log.Printf("synthesizer: model %s failed: %v", modelID, err)
			lastErr = err
			continue
		}
		if raw == "" {
			lastErr = fmt.Errorf("model %s returned no text (blocked or empty)", modelID)
			continue
		}

		body, err := ExtractJSONBlock(raw)
		if err != nil {
			lastErr = fmt.Errorf("model %s: %w", modelID, err)
			continue
		}

		var record models.MetadataRecord
		if err := json.Unmarshal([]byte(body), &record); err != nil {
			lastErr = fmt.Errorf("model %s: parse response: %w", modelID, err)
			continue
		}

		NormalizeRecord(&record)
		return &record, nil
	}

	return nil, &core.GenerationExhausted{Details: fmt.Sprintf("last error: %v", lastErr)}
}

// generateWithRetry retries one candidate with exponential backoff for
// rate-limit and overload failures. Invalid-input failures abort
// immediately; retries exhausted means the candidate is abandoned.
func (s *Synthesizer) generateWithRetry(ctx context.Context, modelID, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		raw, err := s.gen.Generate(ctx, modelID, prompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		switch core.GenKindOf(err) {
		case core.GenRateLimited, core.GenOverloaded:
			wait := s.baseDelay<<attempt + time.Duration(rand.Int63n(int64(s.baseDelay)+1))
			log.Printf("synthesizer: %s on %s, retrying in %v (attempt %d/%d)",
				core.GenKindOf(err), modelID, wait.Round(time.Millisecond), attempt+1, s.maxRetries)
			if err := sleepCtx(ctx, wait); err != nil {
				return "", err
			}
		case core.GenInvalidInput:
			return "", fmt.Errorf("model incompatible: %w", err)
		default:
			if attempt == s.maxRetries-1 {
				return "", err
			}
			if err := sleepCtx(ctx, 2*s.baseDelay); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

// sleepCtx waits without spinning and aborts when the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
