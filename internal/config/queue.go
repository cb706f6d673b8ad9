package config

import (
	"strings"

	"github.com/forgeworks/appforge/internal/models"
)

// QueueConfig holds job queue tuning knobs: worker pool size, tier
// priorities, and the retry/backoff policy applied to transient failures.
type QueueConfig struct {
	Workers           int              `yaml:"workers,omitempty"`
	MaxSize           int              `yaml:"max_size,omitempty"`
	HistorySize       int              `yaml:"history_size,omitempty"`
	MaxAttempts       int              `yaml:"max_attempts,omitempty"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff,omitempty"`
	RetryInitialDelay string           `yaml:"retry_initial_delay,omitempty"`
	RetryMaxDelay     string           `yaml:"retry_max_delay,omitempty"`

	// TierPriorities maps subscription tiers to numeric priorities; higher
	// values dequeue first. Exposed as configuration rather than constants.
	TierPriorities map[string]int `yaml:"tier_priorities,omitempty"`
}

func (q *QueueConfig) applyDefaults() {
	if q.Workers <= 0 {
		q.Workers = 3
	}
	if q.MaxSize <= 0 {
		q.MaxSize = 100
	}
	if q.HistorySize <= 0 {
		q.HistorySize = 50
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = 3
	}
	if q.RetryBackoff == "" {
		q.RetryBackoff = RetryBackoffExponential
	}
	if q.RetryInitialDelay == "" {
		q.RetryInitialDelay = "1s"
	}
	if q.RetryMaxDelay == "" {
		q.RetryMaxDelay = "30s"
	}
	if q.TierPriorities == nil {
		q.TierPriorities = map[string]int{
			string(models.TierEnterprise): 100,
			string(models.TierPremium):    50,
			string(models.TierBasic):      10,
		}
	}
}

// PriorityFor resolves the queue priority for a tier. Unknown tiers fall
// back to the basic priority.
func (q *QueueConfig) PriorityFor(tier models.Tier) int {
	if p, ok := q.TierPriorities[string(tier)]; ok {
		return p
	}
	return q.TierPriorities[string(models.TierBasic)]
}

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// NormalizeRetryBackoff converts arbitrary user input (case-insensitive)
// into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RetryBackoffFixed):
		return RetryBackoffFixed
	case string(RetryBackoffLinear):
		return RetryBackoffLinear
	case string(RetryBackoffExponential):
		return RetryBackoffExponential
	default:
		return ""
	}
}
