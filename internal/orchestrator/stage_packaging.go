package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgeworks/appforge/internal/models"
)

const reportFileName = "build-report.json"

// stagePackaging moves every artifact into durable storage and writes the
// build report alongside them. Storage failures here are transient: the
// artifacts still exist in the workspace until the job finishes.
func (o *Orchestrator) stagePackaging(ctx context.Context, bs *models.BuildState) error {
	if bs.ExecResult == nil || len(bs.ExecResult.ArtifactPaths) == 0 {
		return fmt.Errorf("%w: packaging reached with no artifacts", models.ErrSystem)
	}

	for _, path := range bs.ExecResult.ArtifactPaths {
		art, err := o.d.Artifacts.Store(ctx, bs.Job.ID, path)
		if err != nil {
			return err
		}
		bs.Artifacts = append(bs.Artifacts, art)
		bs.Report.Artifacts = append(bs.Report.Artifacts, art.Name)
	}

	reportPath := filepath.Join(bs.WorkspacePath, reportFileName)
	data, err := json.MarshalIndent(bs.Report, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode build report: %v", models.ErrSystem, err)
	}
	if err := os.WriteFile(reportPath, data, 0o640); err != nil {
		return fmt.Errorf("%w: write build report: %v", models.ErrStorage, err)
	}
	art, err := o.d.Artifacts.Store(ctx, bs.Job.ID, reportPath)
	if err != nil {
		return err
	}
	bs.Artifacts = append(bs.Artifacts, art)
	return nil
}
