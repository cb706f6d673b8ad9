package models

// ExecResult is the outcome of the external Build Executor collaborator.
type ExecResult struct {
	ExitCode      int
	ArtifactPaths []string
	RawOutput     string
}

// BuildState is the mutable per-job state threaded through pipeline stages.
// It is owned by the single worker processing the job and never shared.
type BuildState struct {
	Job           *BuildJob
	WorkspacePath string

	Pipeline   *PipelineResult
	Plan       *InjectionPlan
	ExecResult *ExecResult

	Report    *BuildReport
	Artifacts []StoredArtifact
}
