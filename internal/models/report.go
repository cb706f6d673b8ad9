package models

import "time"

// BuildReport is the machine-readable summary packaged alongside the
// artifacts of a successful job.
type BuildReport struct {
	SchemaVersion int       `json:"schema_version"`
	JobID         string    `json:"job_id"`
	PartnerID     string    `json:"partner_id"`
	AppName       string    `json:"app_name"`
	PackageName   string    `json:"package_name"`
	Version       string    `json:"version"`
	BuildKind     BuildKind `json:"build_kind"`
	Timestamp     time.Time `json:"timestamp"`

	StageDurations map[StageName]time.Duration `json:"stage_durations"`
	Artifacts      []string                    `json:"artifacts"`

	AssetPipeline *PipelineSummary `json:"asset_pipeline,omitempty"`
}

// PipelineSummary condenses the asset pipeline outcome for the report.
type PipelineSummary struct {
	AssetsProcessed  int     `json:"assets_processed"`
	QualityScore     float64 `json:"quality_score"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	Warnings         int     `json:"warnings"`
	Errors           int     `json:"errors"`
}

// NewBuildReport constructs a report seeded from a job.
func NewBuildReport(job *BuildJob) *BuildReport {
	return &BuildReport{
		SchemaVersion:  1,
		JobID:          job.ID,
		PartnerID:      job.PartnerID,
		AppName:        job.Config.AppName,
		PackageName:    job.Config.PackageName,
		Version:        job.Config.Version,
		BuildKind:      job.BuildKind,
		Timestamp:      time.Now().UTC(),
		StageDurations: make(map[StageName]time.Duration),
	}
}

// Summarize fills the asset pipeline section from a PipelineResult.
func (r *BuildReport) Summarize(pr *PipelineResult) {
	if pr == nil {
		return
	}
	r.AssetPipeline = &PipelineSummary{
		AssetsProcessed:  len(pr.ProcessedAssets),
		QualityScore:     pr.QualityScore,
		ProcessingTimeMs: pr.ProcessingTimeMs,
		Warnings:         len(pr.Warnings),
		Errors:           len(pr.Errors),
	}
}
