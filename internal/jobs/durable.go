package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/feichai0017/pdf-extractor/internal/models"
)

// ErrJobNotFound is returned when a job exists neither in memory nor in
// the durable store.
var ErrJobNotFound = errors.New("job not found")

// DurableStore persists terminal jobs so results survive a restart.
// Implementations: FileStore (local JSON files) and RedisStore.
type DurableStore interface {
	Save(view models.JobView) error
	Load(jobID string) (*models.JobView, error)
	List() ([]models.JobSummary, error)
}

// FileStore writes one JSON file per terminal job under a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(jobID string) string {
	return filepath.Join(s.dir, jobID+".json")
}

func (s *FileStore) Save(view models.JobView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", view.JobID, err)
	}
	if err := os.WriteFile(s.path(view.JobID), data, 0o644); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", view.JobID, err)
	}
	return nil
}

func (s *FileStore) Load(jobID string) (*models.JobView, error) {
	data, err := os.ReadFile(s.path(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to read persisted job %s: %w", jobID, err)
	}
	var view models.JobView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("failed to decode persisted job %s: %w", jobID, err)
	}
	return &view, nil
}

func (s *FileStore) List() ([]models.JobSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list job store dir: %w", err)
	}

	var summaries []models.JobSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		jobID := strings.TrimSuffix(entry.Name(), ".json")
		view, err := s.Load(jobID)
		if err != nil {
			// Corrupt entries are skipped, not fatal.
			continue
		}
		summaries = append(summaries, models.JobSummary{
			JobID:     view.JobID,
			Status:    view.Status,
			CreatedAt: view.CreatedAt,
			UpdatedAt: view.UpdatedAt,
			Filename:  view.Filename,
		})
	}
	return summaries, nil
}
