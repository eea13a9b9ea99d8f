package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/dispatch"
	"github.com/datasetu-labs/metaforge/internal/harmonize"
	"github.com/datasetu-labs/metaforge/internal/models"
	"github.com/datasetu-labs/metaforge/internal/pipeline"
)

const maxUploadBytes = 52 << 20 // 52 MB

type JobHandler struct {
	dispatcher  *dispatch.Dispatcher
	harmonizer  *harmonize.Harmonizer
	synthesizer *pipeline.Synthesizer
}

func NewJobHandler(d *dispatch.Dispatcher, h *harmonize.Harmonizer, s *pipeline.Synthesizer) *JobHandler {
	return &JobHandler{dispatcher: d, harmonizer: h, synthesizer: s}
}

// Upload accepts a multipart document, registers it for processing, and
// returns the job record. Re-uploading identical bytes returns the existing
// job without reprocessing.
func (h *JobHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		http.Error(w, fmt.Sprintf("read upload: %v", err), http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty file", http.StatusBadRequest)
		return
	}
	if len(data) > maxUploadBytes {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	filename := filepath.Base(header.Filename)
	kind := strings.ToLower(r.FormValue("kind"))
	switch kind {
	case models.KindPDF, models.KindTabular:
	case "":
		kind, err = kindForFilename(filename)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
			return
		}
	default:
		http.Error(w, fmt.Sprintf("unknown kind %q (want pdf or tabular)", kind), http.StatusBadRequest)
		return
	}

	submitCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	job, err := h.dispatcher.Submit(submitCtx, data, filename, kind)
	if err != nil {
		log.Printf("handlers: submit %s: %v", filename, err)
		http.Error(w, fmt.Sprintf("submit failed: %v", err), http.StatusInternalServerError)
		return
	}

	status := http.StatusAccepted
	if job.Status == models.StatusSuccess {
		status = http.StatusOK
	}
	writeJSON(w, status, job)
}

// Status returns the job for a digest.
func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	dgst := chi.URLParam(r, "digest")

	job, err := h.dispatcher.Poll(r.Context(), dgst)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// DownloadHarmonized regenerates the harmonized CSV for a tabular job.
func (h *JobHandler) DownloadHarmonized(w http.ResponseWriter, r *http.Request) {
	dgst := chi.URLParam(r, "digest")

	job, err := h.dispatcher.Poll(r.Context(), dgst)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, name, err := h.harmonizer.CSV(r.Context(), job)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

// Synthesize consolidates metadata from multiple completed jobs, given by
// digest or as inline records, into one master record for the collection.
func (h *JobHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Digests []string                `json:"digests"`
		Records []models.MetadataRecord `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Digests) == 0 && len(req.Records) == 0 {
		http.Error(w, "digests or records is required", http.StatusBadRequest)
		return
	}

	records := req.Records
	for _, dgst := range req.Digests {
		job, err := h.dispatcher.Poll(r.Context(), dgst)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				http.Error(w, fmt.Sprintf("job %s not found", dgst), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if job.Status != models.StatusSuccess || job.Result == nil {
			http.Error(w, fmt.Sprintf("job %s is not successfully processed", dgst), http.StatusConflict)
			return
		}
		records = append(records, *job.Result)
	}

	master, err := h.synthesizer.Consolidate(r.Context(), records)
	if err != nil {
		log.Printf("handlers: consolidate %d records: %v", len(records), err)
		http.Error(w, fmt.Sprintf("synthesis failed: %v", err), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, master)
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func kindForFilename(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return models.KindPDF, nil
	case ".csv", ".xlsx", ".xls":
		return models.KindTabular, nil
	default:
		return "", fmt.Errorf("unsupported file type %q (want .pdf, .csv, .xlsx)", filepath.Ext(filename))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
