package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/models"
)

// runBuild executes a single job synchronously, without queue or HTTP
// surface. Useful for partner onboarding and local template debugging.
func runBuild(cfg *config.Config, logger *slog.Logger) error {
	pcfg, err := config.LoadPartnerConfig(CLI.Build.File)
	if err != nil {
		return err
	}
	vr := config.ValidateSubmission(CLI.Build.Partner, pcfg)
	for _, warning := range vr.Warnings {
		logger.Warn("configuration warning", slog.String("warning", warning))
	}
	if !vr.Valid() {
		return vr.Err()
	}

	orch, err := buildOrchestrator(cfg, nil, nil, nil, nil, nil, logger)
	if err != nil {
		return err
	}

	job := &models.BuildJob{
		ID:        uuid.NewString(),
		PartnerID: CLI.Build.Partner,
		Tier:      models.Tier(CLI.Build.Tier),
		BuildKind: models.BuildKind(CLI.Build.Kind),
		Config:    pcfg,
		Status:    models.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	job.AttemptCount = 1

	logger.Info("starting one-shot build",
		slog.String("job_id", job.ID),
		slog.String("partner_id", job.PartnerID),
		slog.String("app", pcfg.AppName))

	start := time.Now()
	if err := orch.Run(context.Background(), job); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	fmt.Fprintf(os.Stdout, "build completed in %s\n", time.Since(start).Round(time.Millisecond))
	for _, art := range job.Artifacts {
		fmt.Fprintf(os.Stdout, "  %s  %s (%d bytes)\n", art.ETag, art.URL, art.Size)
	}
	return nil
}
