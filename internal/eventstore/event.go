package eventstore

import "time"

// Event type names written by the orchestrator and queue.
const (
	TypeJobSubmitted   = "JobSubmitted"
	TypeJobStarted     = "JobStarted"
	TypeStageStarted   = "StageStarted"
	TypeStageCompleted = "StageCompleted"
	TypeJobRetried     = "JobRetried"
	TypeJobCompleted   = "JobCompleted"
	TypeJobFailed      = "JobFailed"
	TypeJobCancelled   = "JobCancelled"
)

// Event represents one record in the job lifecycle log.
type Event interface {
	// ID returns the unique identifier for this event.
	ID() int64
	// JobID returns the job identifier this event belongs to.
	JobID() string
	// Type returns the event type name.
	Type() string
	// Stage returns the pipeline stage the event belongs to, or "".
	Stage() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
	// Payload returns the event data as bytes.
	Payload() []byte
	// Metadata returns optional event metadata.
	Metadata() map[string]string
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID        int64
	EventJobID     string
	EventType      string
	EventStage     string
	EventTimestamp time.Time
	EventPayload   []byte
	EventMetadata  map[string]string
}

func (e *BaseEvent) ID() int64                   { return e.EventID }
func (e *BaseEvent) JobID() string               { return e.EventJobID }
func (e *BaseEvent) Type() string                { return e.EventType }
func (e *BaseEvent) Stage() string               { return e.EventStage }
func (e *BaseEvent) Timestamp() time.Time        { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte             { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }
