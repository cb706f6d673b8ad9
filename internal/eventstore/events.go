package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Record marshals payload and appends it under the given type and stage.
// Callers pass small typed structs so payloads stay queryable; the stage
// rides as its own column, not inside the payload.
func Record(ctx context.Context, s Store, jobID, eventType, stage string, payload any, metadata map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return s.Append(ctx, jobID, eventType, stage, data, metadata)
}

// StagePayload is the payload for stage lifecycle events.
type StagePayload struct {
	Percent    int    `json:"percent,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// OutcomePayload is the payload for terminal job events.
type OutcomePayload struct {
	Status       string `json:"status"`
	ErrorKind    string `json:"error_kind,omitempty"`
	Error        string `json:"error,omitempty"`
	AttemptCount int    `json:"attempt_count"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
}

// SubmitPayload is the payload for JobSubmitted events.
type SubmitPayload struct {
	PartnerID string `json:"partner_id"`
	Tier      string `json:"tier"`
	BuildKind string `json:"build_kind"`
	Priority  int    `json:"priority"`
}

// RetryPayload is the payload for JobRetried events.
type RetryPayload struct {
	AttemptCount int    `json:"attempt_count"`
	DelayMs      int64  `json:"delay_ms"`
	Error        string `json:"error"`
}
