package orchestrator

import (
	"context"

	"github.com/forgeworks/appforge/internal/models"
)

// stageCodeGen renders the partner-specific sources.
func (o *Orchestrator) stageCodeGen(ctx context.Context, bs *models.BuildState) error {
	_, err := o.d.Generator.Generate(ctx, bs.WorkspacePath, bs.Job.Config)
	return err
}
