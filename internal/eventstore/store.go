// Package eventstore is the durable, append-only log of job lifecycle
// events. It answers "what happened to this job" after the fact; live
// progress delivery belongs to the events broker.
package eventstore

import (
	"context"
	"time"
)

// Store defines the interface for persisting and retrieving events.
type Store interface {
	// Append adds a new event to the log. Stage is empty for events that
	// are not tied to one pipeline stage.
	Append(ctx context.Context, jobID, eventType, stage string, payload []byte, metadata map[string]string) error

	// GetByJobID retrieves all events for one job, oldest first.
	GetByJobID(ctx context.Context, jobID string) ([]Event, error)

	// GetByStage retrieves all events one job emitted in a given stage,
	// oldest first.
	GetByStage(ctx context.Context, jobID, stage string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}
