package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasetu-labs/metaforge/internal/core"
)

const validRecordJSON = `{
	"catalog_info": {"title": "Health Survey 2023", "description": "d", "sector": "Healthcare", "keywords": ["health"]},
	"provenance": {"source": "MoHFW", "jurisdiction": "India", "data_owner": "NHM"},
	"spatial_temporal": {"temporal_range": "2023-2024", "spatial_coverage": "National", "granularity": "State"},
	"technical_metadata": {"format": "PDF", "ai_readiness_level": 0.6, "machine_readable": false}
}`

// fakeGen scripts per-model responses. A model with err set always fails
// with that error; otherwise it returns its text.
type fakeGen struct {
	mu         sync.Mutex
	candidates []string
	listErr    error
	text       map[string]string
	errs       map[string]error
	calls      map[string]int
}

func newFakeGen(candidates ...string) *fakeGen {
	return &fakeGen{
		candidates: candidates,
		text:       map[string]string{},
		errs:       map[string]error{},
		calls:      map[string]int{},
	}
}

func (f *fakeGen) ListCandidates(ctx context.Context) ([]string, error) {
	return f.candidates, f.listErr
}

func (f *fakeGen) Generate(ctx context.Context, modelID, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[modelID]++
	if err := f.errs[modelID]; err != nil {
		return "", err
	}
	return f.text[modelID], nil
}

func (f *fakeGen) callCount(modelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[modelID]
}

func newTestSynthesizer(gen core.GenerationClient, maxRetries int) *Synthesizer {
	s := NewSynthesizer(gen, maxRetries)
	s.baseDelay = 0 // no real sleeping in tests
	return s
}

func TestSynthesizerFallsThroughCandidates(t *testing.T) {
	gen := newFakeGen("m1", "m2", "m3")
	gen.errs["m1"] = &core.GenError{Kind: core.GenRateLimited, Model: "m1", Err: errors.New("429")}
	gen.errs["m2"] = &core.GenError{Kind: core.GenOverloaded, Model: "m2", Err: errors.New("503")}
	gen.text["m3"] = "```json\n" + validRecordJSON + "\n```"

	s := newTestSynthesizer(gen, 3)
	record, err := s.FromPages(context.Background(), pagesWithText("enough text to prompt on"))

	require.NoError(t, err)
	assert.Equal(t, "Health Survey 2023", record.CatalogInfo.Title)
	assert.Equal(t, "Healthcare", record.CatalogInfo.Sector)
	// Retryable failures burn the full retry budget before moving on.
	assert.Equal(t, 3, gen.callCount("m1"))
	assert.Equal(t, 3, gen.callCount("m2"))
	assert.Equal(t, 1, gen.callCount("m3"))
}

func TestSynthesizerInvalidInputSkipsCandidateImmediately(t *testing.T) {
	gen := newFakeGen("vision-model", "text-model")
	gen.errs["vision-model"] = &core.GenError{Kind: core.GenInvalidInput, Model: "vision-model", Err: errors.New("400 INVALID_ARGUMENT")}
	gen.text["text-model"] = validRecordJSON

	s := newTestSynthesizer(gen, 5)
	record, err := s.FromPages(context.Background(), pagesWithText("doc text"))

	require.NoError(t, err)
	assert.Equal(t, "Health Survey 2023", record.CatalogInfo.Title)
	assert.Equal(t, 1, gen.callCount("vision-model"))
}

func TestSynthesizerAllCandidatesFail(t *testing.T) {
	gen := newFakeGen("m1", "m2")
	gen.errs["m1"] = &core.GenError{Kind: core.GenRateLimited, Err: errors.New("429")}
	gen.errs["m2"] = fmt.Errorf("boom")

	s := newTestSynthesizer(gen, 2)
	_, err := s.FromPages(context.Background(), pagesWithText("doc text"))

	var exhausted *core.GenerationExhausted
	require.ErrorAs(t, err, &exhausted)
}

func TestSynthesizerNoCandidates(t *testing.T) {
	gen := newFakeGen()
	gen.listErr = errors.New("listing unavailable")

	s := newTestSynthesizer(gen, 2)
	_, err := s.FromPages(context.Background(), pagesWithText("doc text"))

	var exhausted *core.GenerationExhausted
	require.ErrorAs(t, err, &exhausted)
}

func TestSynthesizerUnparseableResponseMovesOn(t *testing.T) {
	gen := newFakeGen("chatty", "good")
	gen.text["chatty"] = "I am sorry, I cannot help with that."
	gen.text["good"] = validRecordJSON

	s := newTestSynthesizer(gen, 1)
	record, err := s.FromPages(context.Background(), pagesWithText("doc text"))

	require.NoError(t, err)
	assert.Equal(t, "Health Survey 2023", record.CatalogInfo.Title)
}

func TestSynthesizerNormalizesBadSector(t *testing.T) {
	gen := newFakeGen("m1")
	gen.text["m1"] = `{"catalog_info": {"title": "T", "sector": "Wizardry"}, "provenance": {}, "spatial_temporal": {}, "technical_metadata": {"format": "PDF"}}`

	s := newTestSynthesizer(gen, 1)
	record, err := s.FromPages(context.Background(), pagesWithText("doc text"))

	require.NoError(t, err)
	assert.Equal(t, "Governance", record.CatalogInfo.Sector)
}

func TestConsolidateRequiresRecords(t *testing.T) {
	s := newTestSynthesizer(newFakeGen("m1"), 1)
	_, err := s.Consolidate(context.Background(), nil)
	assert.Error(t, err)
}
