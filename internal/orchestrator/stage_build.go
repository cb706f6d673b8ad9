package orchestrator

import (
	"context"

	"github.com/forgeworks/appforge/internal/models"
)

// stageBuild hands the prepared workspace to the external toolchain.
func (o *Orchestrator) stageBuild(ctx context.Context, bs *models.BuildState) error {
	res, err := o.d.Executor.Execute(ctx, bs.WorkspacePath, bs.Job.BuildKind)
	bs.ExecResult = res
	return err
}
