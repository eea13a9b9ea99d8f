package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/models"
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	digest     TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps job records in a single JSONB-backed table. The whole
// Job is stored as one document; digest is the only key anything queries by.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := db.ExecContext(pingCtx, jobsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap jobs table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, job *models.Job) error {
	if job == nil || job.Digest == "" {
		return fmt.Errorf("jobstore: job with empty digest")
	}
	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	const q = `
		INSERT INTO jobs (digest, record, created_at, updated_at)
		VALUES ($1, $2, COALESCE($3, now()), now())
		ON CONFLICT (digest) DO UPDATE SET record = EXCLUDED.record, updated_at = now()
	`
	_, err = s.db.ExecContext(ctx, q, job.Digest, record, job.CreatedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, digest string) (*models.Job, error) {
	const q = `SELECT record FROM jobs WHERE digest = $1`
	var record []byte
	err := s.db.QueryRowContext(ctx, q, digest).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job models.Job
	if err := json.Unmarshal(record, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", digest, err)
	}
	return &job, nil
}

var _ core.JobStore = (*PostgresStore)(nil)
