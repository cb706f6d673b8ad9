// Package storage persists build artifacts and hands back stable references.
// The local filesystem implementation is the default; the interface exists so
// a bucket-backed store can slot in without touching the pipeline.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/models"
)

// ArtifactStore moves a finished artifact out of the workspace before the
// workspace is destroyed.
type ArtifactStore interface {
	Store(ctx context.Context, jobID, localPath string) (models.StoredArtifact, error)
}

// LocalStore copies artifacts under a per-job directory and derives the ETag
// from the content hash while copying.
type LocalStore struct {
	cfg config.StorageConfig
	log *slog.Logger
}

func NewLocalStore(cfg config.StorageConfig, log *slog.Logger) *LocalStore {
	return &LocalStore{cfg: cfg, log: log.With(slog.String("component", "storage"))}
}

func (s *LocalStore) Store(ctx context.Context, jobID, localPath string) (models.StoredArtifact, error) {
	var art models.StoredArtifact
	attempts := s.cfg.StoreRetries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return art, err
		}
		art, lastErr = s.storeOnce(jobID, localPath)
		if lastErr == nil {
			return art, nil
		}
		s.log.Warn("artifact store attempt failed",
			slog.String("job_id", jobID),
			slog.Int("attempt", i+1),
			slog.String("error", lastErr.Error()))
	}
	return art, lastErr
}

func (s *LocalStore) storeOnce(jobID, localPath string) (models.StoredArtifact, error) {
	var art models.StoredArtifact
	name := filepath.Base(localPath)

	in, err := os.Open(localPath) // #nosec G304 - workspace-internal
	if err != nil {
		return art, fmt.Errorf("%w: open artifact %s: %v", models.ErrStorage, localPath, err)
	}
	defer in.Close()

	destDir := filepath.Join(s.cfg.BaseDir, jobID)
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return art, fmt.Errorf("%w: create %s: %v", models.ErrStorage, destDir, err)
	}
	dest := filepath.Join(destDir, name)

	// Write to a temp name and rename so a partially copied artifact is
	// never visible under its final path.
	tmp, err := os.CreateTemp(destDir, "."+name+".*")
	if err != nil {
		return art, fmt.Errorf("%w: create temp: %v", models.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())

	h := xxhash.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), in)
	if err != nil {
		tmp.Close()
		return art, fmt.Errorf("%w: copy artifact: %v", models.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return art, fmt.Errorf("%w: close temp: %v", models.ErrStorage, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return art, fmt.Errorf("%w: finalize artifact: %v", models.ErrStorage, err)
	}

	art = models.StoredArtifact{
		Name: name,
		URL:  s.urlFor(jobID, name),
		ETag: fmt.Sprintf("%016x", h.Sum64()),
		Size: n,
	}
	s.log.Info("artifact stored",
		slog.String("job_id", jobID),
		slog.String("name", name),
		slog.Int64("size", n),
		slog.String("etag", art.ETag))
	return art, nil
}

func (s *LocalStore) urlFor(jobID, name string) string {
	base := strings.TrimSuffix(s.cfg.BaseURL, "/")
	if base == "" {
		return filepath.Join(s.cfg.BaseDir, jobID, name)
	}
	return base + "/" + jobID + "/" + name
}
