package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/dispatch"
	"github.com/datasetu-labs/metaforge/internal/harmonize"
	"github.com/datasetu-labs/metaforge/internal/models"
	"github.com/datasetu-labs/metaforge/internal/pipeline"
)

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func (s *memJobStore) Save(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *job
	s.jobs[job.Digest] = &c
	return nil
}

func (s *memJobStore) Get(ctx context.Context, digest string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[digest]
	if !ok {
		return nil, nil
	}
	c := *job
	return &c, nil
}

type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (s *memBlobStore) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return "mem://" + key, nil
}

func (s *memBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return data, nil
}

func (s *memBlobStore) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, core.ErrNotFound
}
func (s *memBlobStore) Delete(ctx context.Context, key string) error { return nil }
func (s *memBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

// fixedRunner returns a canned successful result for any source.
type fixedRunner struct{}

func (fixedRunner) Run(ctx context.Context, src pipeline.Source) *models.PipelineResult {
	record := &models.MetadataRecord{
		CatalogInfo: models.CatalogInfo{Title: "Processed " + src.Filename, Sector: "Finance", Keywords: []string{}},
		TechnicalMetadata: models.TechnicalMetadata{
			Format: "CSV/Excel",
			SchemaDetails: []models.SchemaDetail{
				{Column: "Dist_nm", StandardizedHeader: "District_Name"},
			},
		},
	}
	return &models.PipelineResult{Confidence: 0.9, Metadata: record}
}

// cannedGen answers every generation request with one fixed record.
type cannedGen struct{ body string }

func (g cannedGen) ListCandidates(ctx context.Context) ([]string, error) {
	return []string{"m1"}, nil
}

func (g cannedGen) Generate(ctx context.Context, modelID, prompt string) (string, error) {
	return g.body, nil
}

func newTestRouter(t *testing.T) (*chi.Mux, *memJobStore) {
	t.Helper()
	jobs := &memJobStore{jobs: map[string]*models.Job{}}
	blobs := &memBlobStore{blobs: map[string][]byte{}}

	d := dispatch.New(jobs, blobs, fixedRunner{}, t.TempDir())
	d.SetScheduler(dispatch.NewInlineScheduler(d.Process))

	synth := pipeline.NewSynthesizer(cannedGen{body: `{
		"catalog_info": {"title": "Master Record", "sector": "Finance", "keywords": []},
		"provenance": {}, "spatial_temporal": {},
		"technical_metadata": {"format": "Consolidated"}
	}`}, 1)

	h := NewJobHandler(d, harmonize.New(blobs, t.TempDir()), synth)

	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	r.Route("/api", func(api chi.Router) {
		api.Post("/jobs", h.Upload)
		api.Get("/jobs/{digest}", h.Status)
		api.Get("/jobs/{digest}/harmonized", h.DownloadHarmonized)
		api.Post("/synthesize", h.Synthesize)
	})
	return r, jobs
}

func multipartUpload(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadAndStatus(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartUpload(t, "census.csv", []byte("Dist_nm,pop\nPatna,1\n")))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.NotEmpty(t, job.Digest)

	statusRec := httptest.NewRecorder()
	r.ServeHTTP(statusRec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.Digest, nil))
	require.Equal(t, http.StatusOK, statusRec.Code)

	var final models.Job
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &final))
	assert.Equal(t, models.StatusSuccess, final.Status)
	assert.Equal(t, "Processed census.csv", final.Result.CatalogInfo.Title)
}

func TestUploadDuplicateReturnsCachedJob(t *testing.T) {
	r, _ := newTestRouter(t)
	content := []byte("Dist_nm,pop\nPatna,1\n")

	first := httptest.NewRecorder()
	r.ServeHTTP(first, multipartUpload(t, "a.csv", content))
	require.Equal(t, http.StatusAccepted, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, multipartUpload(t, "b.csv", content))
	// Cache hit on a finished job answers 200, not 202.
	assert.Equal(t, http.StatusOK, second.Code)
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartUpload(t, "malware.exe", []byte("MZ")))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartUpload(t, "empty.pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusUnknownDigest(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/ffff", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadHarmonized(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartUpload(t, "census.csv", []byte("Dist_nm,pop\nPatna,1\n")))
	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))

	dl := httptest.NewRecorder()
	r.ServeHTTP(dl, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.Digest+"/harmonized", nil))

	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "text/csv", dl.Header().Get("Content-Type"))
	assert.Contains(t, dl.Header().Get("Content-Disposition"), "harmonized_census.csv")
	assert.True(t, strings.HasPrefix(dl.Body.String(), "District_Name,pop\n"))
}

func TestSynthesizeConsolidatesJobs(t *testing.T) {
	r, _ := newTestRouter(t)

	var digests []string
	for _, name := range []string{"p1.csv", "p2.csv"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, multipartUpload(t, name, []byte("h\n"+name+"\n")))
		var job models.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		digests = append(digests, job.Digest)
	}

	body, err := json.Marshal(map[string][]string{"digests": digests})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/synthesize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var master models.MetadataRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &master))
	assert.Equal(t, "Master Record", master.CatalogInfo.Title)
}

func TestSynthesizeAcceptsInlineRecords(t *testing.T) {
	r, _ := newTestRouter(t)

	body := `{"records": [
		{"catalog_info": {"title": "Part 1", "sector": "Finance"}},
		{"catalog_info": {"title": "Part 2", "sector": "Finance"}}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/synthesize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var master models.MetadataRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &master))
	assert.Equal(t, "Master Record", master.CatalogInfo.Title)
}

func TestSynthesizeRequiresDigests(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/synthesize", strings.NewReader(`{"digests": []}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
