// Package jobs tracks asynchronous extraction jobs: an in-memory table
// for live state, an optional durable store for terminal state, and a
// bounded worker pool that runs the orchestrator.
package jobs

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

// inMemoryTTL bounds the in-memory table: terminal entries older than
// this are evicted (durable copies remain retrievable).
const inMemoryTTL = time.Hour

type jobEntry struct {
	status    models.JobStatus
	result    *models.ExtractionResult
	err       string
	createdAt time.Time
	updatedAt time.Time
	filename  string
}

// Store owns the job table. All mutations go through the store; workers
// never hold job state themselves.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]*jobEntry
	durable DurableStore
	logger  logger.Logger

	// now is swapped in tests to drive eviction.
	now func() time.Time
}

// NewStore builds a store. durable may be nil for memory-only operation.
func NewStore(durable DurableStore, log logger.Logger) *Store {
	return &Store{
		jobs:    make(map[string]*jobEntry),
		durable: durable,
		logger:  log,
		now:     time.Now,
	}
}

// CreateJob allocates a fresh pending entry and returns its id.
func (s *Store) CreateJob() string {
	jobID := strings.ReplaceAll(uuid.New().String(), "-", "")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	now := s.now()
	s.jobs[jobID] = &jobEntry{
		status:    models.JobPending,
		createdAt: now,
		updatedAt: now,
	}
	return jobID
}

// SetFilename associates the original upload name with a job.
func (s *Store) SetFilename(jobID, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.jobs[jobID]; ok {
		entry.filename = filename
	}
}

// SetProcessing moves a pending job to processing.
func (s *Store) SetProcessing(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entryLocked(jobID)
	if entry.status.Terminal() {
		return
	}
	entry.status = models.JobProcessing
	entry.updatedAt = s.now()
}

// SetCompleted moves a job to completed and persists it.
func (s *Store) SetCompleted(jobID string, result *models.ExtractionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entryLocked(jobID)
	if entry.status.Terminal() {
		return
	}
	entry.status = models.JobCompleted
	entry.result = result
	entry.updatedAt = s.now()
	s.persistLocked(jobID, entry)
}

// SetFailed moves a job to failed and persists it.
func (s *Store) SetFailed(jobID, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entryLocked(jobID)
	if entry.status.Terminal() {
		return
	}
	entry.status = models.JobFailed
	entry.err = errMsg
	entry.updatedAt = s.now()
	s.persistLocked(jobID, entry)
}

// GetJob reads in-memory first, then falls back to the durable store.
// A non-terminal memory entry still defers to a terminal durable copy,
// which covers shared-store deployments where another process finished
// the job.
func (s *Store) GetJob(jobID string) (*models.JobView, error) {
	s.mu.Lock()
	entry, ok := s.jobs[jobID]
	var memView *models.JobView
	if ok {
		view := entryToView(jobID, entry)
		memView = &view
	}
	s.mu.Unlock()

	if memView != nil && memView.Status.Terminal() {
		return memView, nil
	}
	if s.durable != nil {
		if view, err := s.durable.Load(jobID); err == nil {
			return view, nil
		}
	}
	if memView != nil {
		return memView, nil
	}
	return nil, ErrJobNotFound
}

// entryLocked returns the job entry, materializing one when the job was
// created by another process sharing the durable store.
func (s *Store) entryLocked(jobID string) *jobEntry {
	if entry, ok := s.jobs[jobID]; ok {
		return entry
	}
	now := s.now()
	entry := &jobEntry{
		status:    models.JobPending,
		createdAt: now,
		updatedAt: now,
	}
	s.jobs[jobID] = entry
	return entry
}

// ListJobs merges memory and durable summaries, de-duplicated by id,
// newest first. An empty filter returns everything.
func (s *Store) ListJobs(statusFilter models.JobStatus) []models.JobSummary {
	var summaries []models.JobSummary
	seen := make(map[string]bool)

	s.mu.Lock()
	for jobID, entry := range s.jobs {
		if statusFilter != "" && entry.status != statusFilter {
			continue
		}
		summaries = append(summaries, models.JobSummary{
			JobID:     jobID,
			Status:    entry.status,
			CreatedAt: entry.createdAt,
			UpdatedAt: entry.updatedAt,
			Filename:  entry.filename,
		})
		seen[jobID] = true
	}
	s.mu.Unlock()

	if s.durable != nil {
		persisted, err := s.durable.List()
		if err != nil {
			s.logger.Warn("failed to list persisted jobs", logger.Error(err))
		}
		for _, summary := range persisted {
			if seen[summary.JobID] {
				continue
			}
			if statusFilter != "" && summary.Status != statusFilter {
				continue
			}
			summaries = append(summaries, summary)
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries
}

// Len returns the number of in-memory entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Store) persistLocked(jobID string, entry *jobEntry) {
	if s.durable == nil {
		return
	}
	if err := s.durable.Save(entryToView(jobID, entry)); err != nil {
		s.logger.Warn("failed to persist job",
			logger.String("jobId", jobID),
			logger.Error(err),
		)
	}
}

func (s *Store) evictLocked() {
	now := s.now()
	for jobID, entry := range s.jobs {
		if entry.status.Terminal() && now.Sub(entry.updatedAt) > inMemoryTTL {
			delete(s.jobs, jobID)
		}
	}
}

func entryToView(jobID string, entry *jobEntry) models.JobView {
	return models.JobView{
		JobID:     jobID,
		Status:    entry.status,
		Result:    entry.result,
		Error:     entry.err,
		CreatedAt: entry.createdAt,
		UpdatedAt: entry.updatedAt,
		Filename:  entry.filename,
	}
}
