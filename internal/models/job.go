package models

import (
	"time"
)

// BuildKind selects the artifact flavor produced by the external executor.
type BuildKind string

const (
	BuildDebug   BuildKind = "debug"
	BuildRelease BuildKind = "release"
)

// Tier is the partner subscription level used to compute queue priority.
type Tier string

const (
	TierBasic      Tier = "basic"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// JobStatus represents the current status of a build job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusActive    JobStatus = "active"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// BuildJob is the unit of queueable work: one request to turn a partner
// configuration into a packaged application artifact.
type BuildJob struct {
	ID        string        `json:"id"`
	PartnerID string        `json:"partner_id"`
	Tier      Tier          `json:"tier"`
	Config    PartnerConfig `json:"config"`
	Assets    []Asset       `json:"assets,omitempty"`
	BuildKind BuildKind     `json:"build_kind"`

	Priority int       `json:"priority"`
	Status   JobStatus `json:"status"`

	CurrentStage    StageName `json:"current_stage,omitempty"`
	ProgressPercent int       `json:"progress_percent"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	AttemptCount int       `json:"attempt_count"`
	LastError    string    `json:"last_error,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`

	// Populated after a successful packaging stage.
	Artifacts []StoredArtifact `json:"artifacts,omitempty"`
	Report    *BuildReport     `json:"report,omitempty"`
}

// StoredArtifact records an artifact handed to durable storage.
type StoredArtifact struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	ETag string `json:"etag"`
	Size int64  `json:"size"`
}

// ProgressEvent is published to subscribers of a job channel as the pipeline
// advances. Events for one job are delivered in stage order with
// monotonically non-decreasing percent.
type ProgressEvent struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Stage     StageName `json:"stage,omitempty"`
	Percent   int       `json:"progress_percent"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// QueueStats is the read-only snapshot exposed by the queue.
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}
