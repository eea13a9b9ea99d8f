// Package dispatch owns the job lifecycle: content addressing, idempotent
// submission, scheduling, and the terminal state write after a pipeline run.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/core/digest"
	"github.com/datasetu-labs/metaforge/internal/models"
	"github.com/datasetu-labs/metaforge/internal/pipeline"
)

// Runner is the pipeline surface the dispatcher depends on.
type Runner interface {
	Run(ctx context.Context, src pipeline.Source) *models.PipelineResult
}

// Dispatcher coordinates stores, scheduler and pipeline. Submission is
// idempotent on the content digest: identical bytes map to one job no matter
// how often or under what name they arrive.
type Dispatcher struct {
	jobs       core.JobStore
	blobs      core.BlobStore
	runner     Runner
	sched      core.Scheduler
	scratchDir string
}

func New(jobs core.JobStore, blobs core.BlobStore, runner Runner, scratchDir string) *Dispatcher {
	return &Dispatcher{
		jobs:       jobs,
		blobs:      blobs,
		runner:     runner,
		scratchDir: scratchDir,
	}
}

// SetScheduler wires the scheduler after construction. Schedulers invoke
// Dispatcher.Process, so the two reference each other and one side has to be
// attached late.
func (d *Dispatcher) SetScheduler(s core.Scheduler) {
	d.sched = s
}

// Submit registers document bytes for processing and returns the job record.
//
// Cache semantics by prior status:
//   - success: returned as-is, nothing is scheduled.
//   - processing: assumed to be a zombie from a dead worker; the run is
//     re-dispatched. A live duplicate run is harmless because terminal
//     writes are last-write-wins.
//   - error: re-dispatched as a fresh run.
func (d *Dispatcher) Submit(ctx context.Context, data []byte, filename, kind string) (*models.Job, error) {
	dgst := digest.FromBytes(data)

	job, err := d.jobs.Get(ctx, dgst)
	if err != nil {
		return nil, fmt.Errorf("look up job %s: %w", dgst, err)
	}

	task := core.Task{Digest: dgst, Filename: filename, Kind: kind}

	if job != nil {
		switch job.Status {
		case models.StatusSuccess:
			log.Printf("dispatch: cache hit for %s (%s)", dgst, filename)
			return job, nil
		case models.StatusProcessing:
			log.Printf("dispatch: job %s still marked processing, re-dispatching", dgst)
		case models.StatusError:
			log.Printf("dispatch: job %s previously failed, re-dispatching", dgst)
			job.Status = models.StatusProcessing
			job.ErrorMessage = ""
			job.UpdatedAt = time.Now().UTC()
			if err := d.jobs.Save(ctx, job); err != nil {
				return nil, fmt.Errorf("reset job %s: %w", dgst, err)
			}
		}
		if err := d.sched.Schedule(ctx, task); err != nil {
			return nil, fmt.Errorf("schedule job %s: %w", dgst, err)
		}
		return job, nil
	}

	if _, err := d.blobs.Save(ctx, dgst, data, contentTypeFor(kind)); err != nil {
		return nil, fmt.Errorf("store blob %s: %w", dgst, err)
	}

	now := time.Now().UTC()
	job = &models.Job{
		Digest:           dgst,
		OriginalFilename: filename,
		Kind:             kind,
		Status:           models.StatusProcessing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := d.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("create job %s: %w", dgst, err)
	}

	if err := d.sched.Schedule(ctx, task); err != nil {
		return nil, fmt.Errorf("schedule job %s: %w", dgst, err)
	}
	return job, nil
}

// Poll returns the job for a digest, or core.ErrNotFound.
func (d *Dispatcher) Poll(ctx context.Context, dgst string) (*models.Job, error) {
	job, err := d.jobs.Get(ctx, dgst)
	if err != nil {
		return nil, fmt.Errorf("look up job %s: %w", dgst, err)
	}
	if job == nil {
		return nil, core.ErrNotFound
	}
	return job, nil
}

// Process runs the pipeline for one task and writes exactly one terminal
// state. Nothing escapes: infrastructure failures and panics both land as an
// error-status job, never a job stuck in processing.
func (d *Dispatcher) Process(ctx context.Context, task core.Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: panic while processing %s: %v", task.Digest, r)
			d.writeError(ctx, task, fmt.Sprintf("internal error: %v", r))
		}
	}()

	data, err := d.blobs.Get(ctx, task.Digest)
	if err != nil {
		d.writeError(ctx, task, fmt.Sprintf("fetch blob: %v", err))
		return
	}

	scratch, cleanup, err := d.materialize(task, data)
	if err != nil {
		d.writeError(ctx, task, fmt.Sprintf("materialize scratch file: %v", err))
		return
	}
	defer cleanup()

	result := d.runner.Run(ctx, pipeline.Source{
		Path:     scratch,
		Filename: task.Filename,
		Kind:     task.Kind,
	})
	d.writeResult(ctx, task, result)
}

// materialize writes the blob to a per-run scratch file so concurrent runs
// never collide on disk. The extension is preserved for format sniffing.
func (d *Dispatcher) materialize(task core.Task, data []byte) (string, func(), error) {
	if err := os.MkdirAll(d.scratchDir, 0o755); err != nil {
		return "", nil, err
	}
	name := uuid.New().String() + filepath.Ext(task.Filename)
	path := filepath.Join(d.scratchDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("dispatch: remove scratch %s: %v", path, err)
		}
	}
	return path, cleanup, nil
}

func (d *Dispatcher) writeResult(ctx context.Context, task core.Task, result *models.PipelineResult) {
	job := &models.Job{
		Digest:           task.Digest,
		OriginalFilename: task.Filename,
		Kind:             task.Kind,
		Status:           models.StatusSuccess,
		Result:           result.Metadata,
		Confidence:       result.Confidence,
		Lineage:          &result.Lineage,
		ProcessingErrors: result.Errors,
		UpdatedAt:        time.Now().UTC(),
	}
	if existing, err := d.jobs.Get(ctx, task.Digest); err == nil && existing != nil {
		job.CreatedAt = existing.CreatedAt
	} else {
		job.CreatedAt = job.UpdatedAt
	}
	if err := d.jobs.Save(ctx, job); err != nil {
		log.Printf("dispatch: write terminal state for %s: %v", task.Digest, err)
	}
}

func (d *Dispatcher) writeError(ctx context.Context, task core.Task, msg string) {
	job := &models.Job{
		Digest:           task.Digest,
		OriginalFilename: task.Filename,
		Kind:             task.Kind,
		Status:           models.StatusError,
		ErrorMessage:     msg,
		UpdatedAt:        time.Now().UTC(),
	}
	if existing, err := d.jobs.Get(ctx, task.Digest); err == nil && existing != nil {
		job.CreatedAt = existing.CreatedAt
	} else {
		job.CreatedAt = job.UpdatedAt
	}
	if err := d.jobs.Save(ctx, job); err != nil {
		log.Printf("dispatch: write error state for %s: %v", task.Digest, err)
	}
}

func contentTypeFor(kind string) string {
	if kind == models.KindPDF {
		return "application/pdf"
	}
	return "application/octet-stream"
}
