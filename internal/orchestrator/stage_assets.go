package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forgeworks/appforge/internal/models"
)

// stageAssets runs the asset pipeline into the workspace resource tree.
// Warnings ride along in the result; only hard errors abort the job.
func (o *Orchestrator) stageAssets(ctx context.Context, bs *models.BuildState) error {
	resDir := filepath.Join(bs.WorkspacePath, "app", "src", "main", "res")
	pr := o.d.Assets.Process(ctx, resDir, bs.Job.Config, bs.Job.Assets)
	bs.Pipeline = pr
	bs.Report.Summarize(pr)
	o.d.Recorder.ObserveAssetQuality(pr.QualityScore)

	if err := ctx.Err(); err != nil {
		return err
	}
	if !pr.Success {
		return fmt.Errorf("%w: %s", models.ErrAsset, strings.Join(pr.Errors, "; "))
	}
	return nil
}
