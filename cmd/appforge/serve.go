package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/forgeworks/appforge/internal/assets"
	"github.com/forgeworks/appforge/internal/codegen"
	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/events"
	"github.com/forgeworks/appforge/internal/eventstore"
	"github.com/forgeworks/appforge/internal/executor"
	"github.com/forgeworks/appforge/internal/injection"
	"github.com/forgeworks/appforge/internal/janitor"
	"github.com/forgeworks/appforge/internal/metrics"
	"github.com/forgeworks/appforge/internal/models"
	"github.com/forgeworks/appforge/internal/notifier"
	"github.com/forgeworks/appforge/internal/orchestrator"
	"github.com/forgeworks/appforge/internal/queue"
	"github.com/forgeworks/appforge/internal/server"
	"github.com/forgeworks/appforge/internal/state"
	"github.com/forgeworks/appforge/internal/storage"
	"github.com/forgeworks/appforge/internal/template"
	"github.com/forgeworks/appforge/internal/workspace"
)

// runServe wires the full service and blocks until SIGINT/SIGTERM.
func runServe(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := state.NewStore(cfg.DataDir, cfg.Queue.HistorySize, logger)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}

	es, err := eventstore.NewSQLiteStore(filepath.Join(cfg.DataDir, "events.db"))
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer es.Close()

	broker := events.NewBroker()
	defer broker.Close()

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var registry *prom.Registry
	if cfg.Metrics.Enabled {
		registry = prom.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		recorder = metrics.NewPrometheusRecorder(registry)
	}

	pipeline := assets.NewPipeline(cfg.Assets, logger)
	orch, err := buildOrchestrator(cfg, pipeline, store, broker, es, recorder, logger)
	if err != nil {
		return err
	}

	// Any job left non-terminal by a crash is failed on startup; its
	// workspace is the janitor's problem.
	for _, job := range store.Active() {
		logger.Warn("failing job interrupted by restart", slog.String("job_id", job.ID))
		_ = store.Update(job.ID, func(j *models.BuildJob) {
			now := time.Now().UTC()
			j.Status = models.StatusFailed
			j.LastError = "interrupted by service restart"
			j.ErrorKind = models.KindSystem
			j.CompletedAt = &now
		})
	}

	q := queue.New(cfg.Queue, orch, store, queue.Opts{
		Broker:   broker,
		Events:   es,
		Recorder: recorder,
	}, logger)
	q.Start(ctx)

	if cfg.Notifier.Enabled {
		n, err := notifier.New(cfg.Notifier, broker, logger)
		if err != nil {
			return fmt.Errorf("start notifier: %w", err)
		}
		n.Start(ctx)
		defer n.Stop()
	}

	if cfg.Janitor.Enabled {
		j, err := janitor.New(cfg.Janitor, cfg.Template.WorkspaceRoot, logger)
		if err != nil {
			return fmt.Errorf("start janitor: %w", err)
		}
		if err := j.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = j.Stop() }()
	}

	srv := server.New(cfg.Server, q, store, broker, es, registry, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	watcherDone := watchConfig(ctx, CLI.Config, q, pipeline, logger)

	logger.Info("appforge service started",
		slog.Int("workers", cfg.Queue.Workers),
		slog.String("addr", cfg.Server.Addr))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	q.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", slog.String("error", err.Error()))
	}
	<-watcherDone
	return nil
}

func buildOrchestrator(cfg *config.Config, pipeline *assets.Pipeline, store *state.Store, broker *events.Broker, es eventstore.Store, recorder metrics.Recorder, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	gen, err := codegen.NewGenerator(logger)
	if err != nil {
		return nil, fmt.Errorf("init code generator: %w", err)
	}
	return orchestrator.New(*cfg, orchestrator.Deps{
		Workspaces: workspace.NewManager(cfg.Template.WorkspaceRoot),
		Template:   template.NewMaterializer(cfg.Template, logger),
		Assets:     pipeline,
		Injector:   injection.NewEngine(logger),
		Generator:  gen,
		Executor:   executor.NewSubprocess(cfg.Executor, logger),
		Artifacts:  storage.NewLocalStore(cfg.Storage, logger),
		Broker:     broker,
		Events:     es,
		Recorder:   recorder,
		State:      store,
	}, logger), nil
}

// watchConfig hot-reloads the settings that are read per use: tier
// priorities for new submissions and the asset pipeline thresholds. Worker
// count, listen address and the other wiring-time settings still need a
// restart, which the log line says.
func watchConfig(ctx context.Context, path string, q *queue.BuildQueue, pipeline *assets.Pipeline, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watcher unavailable", slog.String("error", err.Error()))
		close(done)
		return done
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("config watch failed", slog.String("path", path), slog.String("error", err.Error()))
		watcher.Close()
		close(done)
		return done
	}

	abs, _ := filepath.Abs(path)
	go func() {
		defer close(done)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				evAbs, _ := filepath.Abs(ev.Name)
				if evAbs != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				next, err := config.Load(path)
				if err != nil {
					logger.Warn("config reload failed, keeping current settings",
						slog.String("path", path), slog.String("error", err.Error()))
					continue
				}
				q.SetTierPriorities(next.Queue.TierPriorities)
				pipeline.UpdateConfig(next.Assets)
				logger.Info("configuration reloaded; tier priorities and asset thresholds applied, other changes need a restart",
					slog.String("path", path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", slog.String("error", err.Error()))
			}
		}
	}()
	return done
}
