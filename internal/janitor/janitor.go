// Package janitor sweeps workspaces orphaned by crashes. A live job's
// workspace is never older than the workspace TTL, so age is the whole
// eviction policy.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/workspace"
)

// Janitor periodically removes stale build workspaces.
type Janitor struct {
	scheduler gocron.Scheduler
	interval  time.Duration
	ttl       time.Duration
	root      string
	log       *slog.Logger
}

func New(cfg config.JanitorConfig, workspaceRoot string, log *slog.Logger) (*Janitor, error) {
	interval, err := time.ParseDuration(cfg.Interval)
	if err != nil || interval <= 0 {
		interval = 10 * time.Minute
	}
	ttl, err := time.ParseDuration(cfg.WorkspaceTTL)
	if err != nil || ttl <= 0 {
		ttl = 2 * time.Hour
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Janitor{
		scheduler: s,
		interval:  interval,
		ttl:       ttl,
		root:      workspaceRoot,
		log:       log.With(slog.String("component", "janitor")),
	}, nil
}

// Start registers the sweep job and begins the scheduler.
func (j *Janitor) Start(ctx context.Context) error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(j.sweep),
		gocron.WithName("workspace-sweep"),
	)
	if err != nil {
		return fmt.Errorf("schedule workspace sweep: %w", err)
	}
	j.scheduler.Start()
	j.log.Info("janitor started",
		slog.Duration("interval", j.interval),
		slog.Duration("ttl", j.ttl))
	return nil
}

// Stop shuts the scheduler down.
func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}

// sweep removes build workspaces older than the TTL. Only directories
// carrying the workspace prefix are touched; anything else under the root
// is left alone.
func (j *Janitor) sweep() {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if !os.IsNotExist(err) {
			j.log.Warn("workspace root unreadable", slog.String("root", j.root), slog.String("error", err.Error()))
		}
		return
	}

	cutoff := time.Now().Add(-j.ttl)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workspace.Prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			j.log.Warn("stale workspace removal failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		removed++
		j.log.Info("stale workspace removed",
			slog.String("path", path),
			slog.Time("mod_time", info.ModTime()))
	}
	if removed > 0 {
		j.log.Info("workspace sweep finished", slog.Int("removed", removed))
	}
}
