package orchestrator

import (
	"context"

	"github.com/forgeworks/appforge/internal/models"
)

// stageTemplate materializes the base app template into the workspace and
// resolves its placeholders from the partner configuration.
func (o *Orchestrator) stageTemplate(ctx context.Context, bs *models.BuildState) error {
	return o.d.Template.Materialize(ctx, bs.WorkspacePath, bs.Job.Config)
}
