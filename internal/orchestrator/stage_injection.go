package orchestrator

import (
	"context"

	"github.com/forgeworks/appforge/internal/injection"
	"github.com/forgeworks/appforge/internal/models"
)

// stageInjection derives the injection plan from the asset pipeline output
// and applies it to the workspace.
func (o *Orchestrator) stageInjection(ctx context.Context, bs *models.BuildState) error {
	bs.Plan = injection.BuildPlan(bs.Job, bs.Pipeline)
	return o.d.Injector.Apply(ctx, bs.WorkspacePath, bs.Plan)
}
