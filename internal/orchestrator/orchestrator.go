// Package orchestrator drives one build job through the fixed stage
// pipeline: template, assets, injection, code generation, external build,
// packaging. It owns the workspace lifetime; every exit path, success or
// not, leaves no workspace behind.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeworks/appforge/internal/assets"
	"github.com/forgeworks/appforge/internal/codegen"
	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/events"
	"github.com/forgeworks/appforge/internal/eventstore"
	"github.com/forgeworks/appforge/internal/executor"
	"github.com/forgeworks/appforge/internal/injection"
	"github.com/forgeworks/appforge/internal/metrics"
	"github.com/forgeworks/appforge/internal/models"
	"github.com/forgeworks/appforge/internal/state"
	"github.com/forgeworks/appforge/internal/storage"
	"github.com/forgeworks/appforge/internal/template"
	"github.com/forgeworks/appforge/internal/workspace"
)

// Deps bundles the collaborators an Orchestrator needs. All fields are
// required except Recorder and Events, which default to no-ops.
type Deps struct {
	Workspaces *workspace.Manager
	Template   *template.Materializer
	Assets     *assets.Pipeline
	Injector   *injection.Engine
	Generator  *codegen.Generator
	Executor   executor.Executor
	Artifacts  storage.ArtifactStore
	Broker     *events.Broker
	Events     eventstore.Store
	Recorder   metrics.Recorder
	State      *state.Store
}

// Orchestrator executes jobs one at a time per worker. It is safe for
// concurrent use: all per-job state lives in the BuildState threaded through
// the stage functions.
type Orchestrator struct {
	cfg config.Config
	log *slog.Logger
	d   Deps
}

func New(cfg config.Config, d Deps, log *slog.Logger) *Orchestrator {
	if d.Recorder == nil {
		d.Recorder = metrics.NoopRecorder{}
	}
	if d.Events == nil {
		d.Events = eventstore.NoopStore{}
	}
	return &Orchestrator{cfg: cfg, log: log.With(slog.String("component", "orchestrator")), d: d}
}

// Run executes the full pipeline for job. The returned error, when non-nil,
// is a *models.StageError the queue inspects for retryability. Run mutates
// job in place (stage, progress, artifacts, report).
func (o *Orchestrator) Run(ctx context.Context, job *models.BuildJob) error {
	start := time.Now()
	log := o.log.With(slog.String("job_id", job.ID), slog.String("partner_id", job.PartnerID))

	ws, err := o.d.Workspaces.Create(job.ID)
	if err != nil {
		return models.NewFatalStageError(models.StageTemplate,
			fmt.Errorf("%w: create workspace: %v", models.ErrSystem, err))
	}
	defer func() {
		if derr := o.d.Workspaces.Destroy(ws); derr != nil {
			log.Warn("workspace cleanup failed", slog.String("path", ws), slog.String("error", derr.Error()))
		}
	}()

	bs := &models.BuildState{
		Job:           job,
		WorkspacePath: ws,
		Report:        models.NewBuildReport(job),
	}

	defs := []models.StageDef{
		{Name: models.StageTemplate, Fn: o.stageTemplate},
		{Name: models.StageAssets, Fn: o.stageAssets},
		{Name: models.StageInjection, Fn: o.stageInjection},
		{Name: models.StageCodeGen, Fn: o.stageCodeGen},
		{Name: models.StageBuild, Fn: o.stageBuild},
		{Name: models.StagePackaging, Fn: o.stagePackaging},
	}

	if err := o.runStages(ctx, bs, defs); err != nil {
		o.d.Recorder.ObserveBuildDuration(time.Since(start))
		return err
	}

	job.Artifacts = bs.Artifacts
	job.Report = bs.Report
	o.progress(ctx, bs, models.StagePackaging, 100, "build completed")
	o.d.Recorder.ObserveBuildDuration(time.Since(start))
	log.Info("build completed",
		slog.Int("artifacts", len(bs.Artifacts)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// runStages executes stages in order, recording timing and stopping on the
// first fatal error.
func (o *Orchestrator) runStages(ctx context.Context, bs *models.BuildState, defs []models.StageDef) error {
	for _, st := range defs {
		select {
		case <-ctx.Done():
			se := models.NewCanceledStageError(st.Name, ctx.Err())
			o.recordStageEnd(bs, st.Name, 0, se)
			return se
		default:
		}

		window := models.StageWindows[st.Name]
		o.progress(ctx, bs, st.Name, window.Start, "stage started")
		_ = eventstore.Record(ctx, o.d.Events, bs.Job.ID, eventstore.TypeStageStarted,
			string(st.Name), eventstore.StagePayload{Percent: window.Start}, nil)

		t0 := time.Now()
		err := st.Fn(ctx, bs)
		dur := time.Since(t0)

		bs.Report.StageDurations[st.Name] = dur
		o.d.Recorder.ObserveStageDuration(string(st.Name), dur)

		se := classify(st.Name, err)
		o.recordStageEnd(bs, st.Name, dur, se)

		if se != nil {
			if se.Kind == models.StageErrorWarning {
				o.log.Warn("stage completed with warning",
					slog.String("job_id", bs.Job.ID),
					slog.String("stage", string(st.Name)),
					slog.String("error", se.Err.Error()))
				o.progress(ctx, bs, st.Name, window.End, "stage completed with warning")
				continue
			}
			return se
		}
		o.progress(ctx, bs, st.Name, window.End, "stage completed")
	}
	return nil
}

func (o *Orchestrator) recordStageEnd(bs *models.BuildState, stage models.StageName, dur time.Duration, se *models.StageError) {
	payload := eventstore.StagePayload{DurationMs: dur.Milliseconds()}
	result := metrics.ResultSuccess
	if se != nil {
		payload.Error = se.Error()
		switch se.Kind {
		case models.StageErrorCanceled:
			result = metrics.ResultCanceled
		case models.StageErrorWarning:
			result = metrics.ResultWarning
		default:
			result = metrics.ResultFatal
		}
	}
	o.d.Recorder.IncStageResult(string(stage), result)
	_ = eventstore.Record(context.Background(), o.d.Events, bs.Job.ID, eventstore.TypeStageCompleted, string(stage), payload, nil)
}

// progress advances the job's reported percent. Percent never decreases,
// even if a caller hands in a stale window value.
func (o *Orchestrator) progress(ctx context.Context, bs *models.BuildState, stage models.StageName, percent int, message string) {
	job := bs.Job
	if percent < job.ProgressPercent {
		percent = job.ProgressPercent
	}
	job.CurrentStage = stage
	job.ProgressPercent = percent

	if o.d.State != nil {
		if err := o.d.State.Update(job.ID, func(j *models.BuildJob) {
			j.CurrentStage = stage
			j.ProgressPercent = percent
		}); err != nil && !errors.Is(err, state.ErrNotFound) {
			o.log.Warn("progress persist failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
	}

	if o.d.Broker != nil {
		ev := models.ProgressEvent{
			JobID:     job.ID,
			Status:    models.StatusActive,
			Stage:     stage,
			Percent:   percent,
			Message:   message,
			Timestamp: time.Now().UTC(),
		}
		if err := o.d.Broker.Publish(ctx, ev); err != nil && ctx.Err() == nil {
			o.log.Warn("progress publish failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
	}
}

// classify normalizes a stage function's error into a StageError. Context
// cancellation wins over whatever the stage wrapped it in.
func classify(stage models.StageName, err error) *models.StageError {
	if err == nil {
		return nil
	}
	var se *models.StageError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewCanceledStageError(stage, err)
	}
	return models.NewFatalStageError(stage, err)
}
