package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/datasetu-labs/metaforge/internal/core"
	"github.com/datasetu-labs/metaforge/internal/models"
)

// JSONFileStore persists one <digest>.json file per job under a cache
// directory. Writes go through a temp file plus rename so a crashed writer
// never leaves a half-written record.
type JSONFileStore struct {
	dir string
}

func NewJSONFileStore(dir string) (*JSONFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &JSONFileStore{dir: dir}, nil
}

func (s *JSONFileStore) path(digest string) string {
	return filepath.Join(s.dir, filepath.Base(digest)+".json")
}

func (s *JSONFileStore) Save(ctx context.Context, job *models.Job) error {
	if job == nil || job.Digest == "" {
		return fmt.Errorf("jobstore: job with empty digest")
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	path := s.path(job.Digest)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write job: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename job: %w", err)
	}
	return nil
}

func (s *JSONFileStore) Get(ctx context.Context, digest string) (*models.Job, error) {
	data, err := os.ReadFile(s.path(digest))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", digest, err)
	}
	return &job, nil
}

var _ core.JobStore = (*JSONFileStore)(nil)
