// Package workspace manages job-exclusive working directories. A workspace
// is created for exactly one build job, mutated in place by the pipeline
// stages, and destroyed on every exit path.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Prefix names workspace directories so the janitor can identify orphans.
const Prefix = "appforge-"

// Manager creates and destroys per-job workspace directories under a root.
type Manager struct {
	root string
}

// NewManager creates a workspace manager rooted at baseDir.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{root: baseDir}
}

// Root returns the workspace root directory.
func (m *Manager) Root() string { return m.root }

// Create materializes an empty workspace directory for a job. The directory
// is exclusively owned by the worker processing that job.
func (m *Manager) Create(jobID string) (string, error) {
	dir := filepath.Join(m.root, Prefix+jobID)
	// A leftover from a previous attempt is stale; start clean.
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear stale workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create workspace directory: %w", err)
	}
	slog.Debug("Created workspace", "path", dir, "job_id", jobID)
	return dir, nil
}

// Destroy recursively removes a workspace. Called on success, failure, and
// cancellation alike; no workspace outlives its job.
func (m *Manager) Destroy(path string) error {
	if path == "" {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to destroy workspace: %w", err)
	}
	slog.Debug("Destroyed workspace", "path", path)
	return nil
}

// CreateSubdir creates a subdirectory within a workspace.
func (m *Manager) CreateSubdir(wsPath, name string) (string, error) {
	if wsPath == "" {
		return "", fmt.Errorf("workspace not created")
	}
	subdir := filepath.Join(wsPath, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}
	return subdir, nil
}
