// Package app assembles the configured backends into a running service.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/datasetu-labs/metaforge/internal/config"
	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/core/blobstore"
	"github.com/datasetu-labs/metaforge/internal/core/extract"
	"github.com/datasetu-labs/metaforge/internal/core/jobstore"
	"github.com/datasetu-labs/metaforge/internal/core/llm"
	"github.com/datasetu-labs/metaforge/internal/dispatch"
	"github.com/datasetu-labs/metaforge/internal/harmonize"
	"github.com/datasetu-labs/metaforge/internal/pipeline"
)

// App owns the wired components and their shutdown order.
type App struct {
	Jobs       core.JobStore
	Blobs      core.BlobStore
	Gen        *llm.GeminiClient
	Dispatcher *dispatch.Dispatcher
	Server     *Server

	closers []func() error
	stop    func()
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{}

	jobs, err := newJobStore(appCtx, cfg, a)
	if err != nil {
		return nil, err
	}
	log.Printf("Job store ready (%s backend).", cfg.JobStoreBackend)

	blobs, err := newBlobStore(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Blob store ready (%s backend).", cfg.StorageBackend)

	gen, err := llm.NewGeminiClient(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the generation client: %w", err)
	}
	a.closers = append(a.closers, gen.Close)

	synth := pipeline.NewSynthesizer(gen, cfg.GenMaxRetries)
	text := extract.NewDocconvTextExtractor()
	pipe := pipeline.New(
		extract.NewPDFTypeDetector(),
		text,
		extract.NewWholeFileExtractor(text),
		extract.NewHybridOCRExtractor(),
		extract.NewLayoutTableExtractor(),
		synth,
	)

	dispatcher := dispatch.New(jobs, blobs, pipe, cfg.ScratchDir)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	sched, err := newScheduler(workerCtx, cfg, dispatcher.Process)
	if err != nil {
		stopWorkers()
		return nil, err
	}
	dispatcher.SetScheduler(sched)
	log.Printf("Scheduler ready (%s mode).", cfg.DispatchMode)

	harmonizer := harmonize.New(blobs, cfg.ScratchDir)

	a.Jobs = jobs
	a.Blobs = blobs
	a.Gen = gen
	a.Dispatcher = dispatcher
	a.Server = NewServer(cfg, dispatcher, harmonizer, synth)
	a.stop = stopWorkers
	return a, nil
}

func newJobStore(ctx context.Context, cfg *config.Config, a *App) (core.JobStore, error) {
	switch cfg.JobStoreBackend {
	case "postgres":
		store, err := jobstore.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres job store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "json", "":
		store, err := jobstore.NewJSONFileStore(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("init json job store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown JOBSTORE_BACKEND %q", cfg.JobStoreBackend)
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config) (core.BlobStore, error) {
	switch cfg.StorageBackend {
	case "s3":
		store, err := blobstore.NewS3Store(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("init s3 blob store: %w", err)
		}
		return store, nil
	case "local", "":
		store, err := blobstore.NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}

func newScheduler(ctx context.Context, cfg *config.Config, process core.ProcessFunc) (core.Scheduler, error) {
	switch cfg.DispatchMode {
	case "inline":
		return dispatch.NewInlineScheduler(process), nil
	case "pool", "":
		pool := dispatch.NewPoolScheduler(process)
		pool.Start(ctx, cfg.WorkerCount)
		return pool, nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		queue := dispatch.NewRedisScheduler(rdb, process)
		queue.Start(ctx, cfg.WorkerCount)
		return queue, nil
	default:
		return nil, fmt.Errorf("unknown DISPATCH_MODE %q", cfg.DispatchMode)
	}
}

func (a *App) Close() {
	if a.stop != nil {
		a.stop()
	}
	for _, close := range a.closers {
		if err := close(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}
