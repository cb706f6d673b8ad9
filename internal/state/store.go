// Package state persists job records across restarts. One mutex guards the
// in-memory map and the JSON file behind it; reads hand out copies so callers
// can never mutate shared state.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/forgeworks/appforge/internal/models"
)

const storeFile = "jobs.json"

// ErrNotFound is returned when a job id is unknown to the store.
var ErrNotFound = fmt.Errorf("job not found")

// Store is the authoritative job record holder. All mutation goes through
// Put/Update so every change is persisted before the lock is released.
type Store struct {
	mu          sync.RWMutex
	path        string
	log         *slog.Logger
	jobs        map[string]*models.BuildJob
	historySize int
}

type storeFileFormat struct {
	SchemaVersion int                         `json:"schema_version"`
	Jobs          map[string]*models.BuildJob `json:"jobs"`
}

// NewStore loads (or initializes) the job store under dataDir. A corrupt
// store file is an error, not a silent reset.
func NewStore(dataDir string, historySize int, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		path:        filepath.Join(dataDir, storeFile),
		log:         log.With(slog.String("component", "state")),
		jobs:        make(map[string]*models.BuildJob),
		historySize: historySize,
	}

	data, err := os.ReadFile(s.path) // #nosec G304 - path built from config
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job store: %w", err)
	}
	var ff storeFileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse job store %s: %w", s.path, err)
	}
	if ff.Jobs != nil {
		s.jobs = ff.Jobs
	}
	s.log.Info("job store loaded", slog.Int("jobs", len(s.jobs)))
	return s, nil
}

// Put inserts or overwrites a job record.
func (s *Store) Put(job *models.BuildJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	s.trimLocked()
	return s.persistLocked()
}

// Get returns a copy of the job record.
func (s *Store) Get(id string) (*models.BuildJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneJob(job), nil
}

// Update applies fn to the stored record under the lock and persists the
// result. fn sees the live record, not a copy.
func (s *Store) Update(id string, fn func(*models.BuildJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(job)
	s.trimLocked()
	return s.persistLocked()
}

// List returns copies of all jobs, newest submission first. A zero status
// matches every job.
func (s *Store) List(status models.JobStatus) []*models.BuildJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.BuildJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Active returns jobs that are queued or running, used on startup to detect
// work interrupted by a crash.
func (s *Store) Active() []*models.BuildJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.BuildJob
	for _, job := range s.jobs {
		if !job.Status.Terminal() {
			out = append(out, cloneJob(job))
		}
	}
	return out
}

// trimLocked drops the oldest terminal jobs beyond the history budget.
// Non-terminal jobs are never evicted.
func (s *Store) trimLocked() {
	if s.historySize <= 0 {
		return
	}
	var terminal []*models.BuildJob
	for _, job := range s.jobs {
		if job.Status.Terminal() {
			terminal = append(terminal, job)
		}
	}
	excess := len(terminal) - s.historySize
	if excess <= 0 {
		return
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].CreatedAt.Before(terminal[j].CreatedAt)
	})
	for _, job := range terminal[:excess] {
		delete(s.jobs, job.ID)
	}
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(storeFileFormat{SchemaVersion: 1, Jobs: s.jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write job store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace job store: %w", err)
	}
	return nil
}

// cloneJob deep-copies via JSON. Job records are small; correctness beats
// a hand-rolled field copy that silently misses new fields.
func cloneJob(job *models.BuildJob) *models.BuildJob {
	data, err := json.Marshal(job)
	if err != nil {
		c := *job
		return &c
	}
	var out models.BuildJob
	if err := json.Unmarshal(data, &out); err != nil {
		c := *job
		return &c
	}
	return &out
}
