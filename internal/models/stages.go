package models

import (
	"context"
	"fmt"
)

// StageName is a strongly-typed identifier for a pipeline stage.
type StageName string

// Canonical stage names, executed strictly in this order.
const (
	StageTemplate  StageName = "template-processing"
	StageAssets    StageName = "asset-processing"
	StageInjection StageName = "asset-injection"
	StageCodeGen   StageName = "code-generation"
	StageBuild     StageName = "external-build"
	StagePackaging StageName = "packaging"
)

// Stages lists the pipeline order. There is no skipping or re-ordering.
var Stages = []StageName{
	StageTemplate,
	StageAssets,
	StageInjection,
	StageCodeGen,
	StageBuild,
	StagePackaging,
}

// PercentWindow is the progress range a stage reports within. Windows are
// monotonically increasing across the pipeline and reach 100 only on success.
type PercentWindow struct {
	Start int
	End   int
}

// StageWindows maps each stage to its progress window.
var StageWindows = map[StageName]PercentWindow{
	StageTemplate:  {0, 20},
	StageAssets:    {20, 45},
	StageInjection: {45, 60},
	StageCodeGen:   {60, 70},
	StageBuild:     {70, 90},
	StagePackaging: {90, 100},
}

// StageErrorKind classifies the outcome of a stage.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // job must abort
	StageErrorWarning  StageErrorKind = "warning"  // record and continue
	StageErrorCanceled StageErrorKind = "canceled" // context cancellation
)

// StageError is a structured error carrying stage, classification, and the
// underlying cause. The queue inspects it to decide retryability.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying. Only executor
// failures and storage failures qualify; validation and injection errors
// never do.
func (e *StageError) Transient() bool {
	if e == nil || e.Kind == StageErrorCanceled {
		return false
	}
	switch KindOf(e.Err) {
	case KindExecutor, KindStorage:
		return true
	}
	return false
}

// NewFatalStageError creates a fatal stage error.
func NewFatalStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}

func NewWarnStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}

func NewCanceledStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// StageFn executes one stage against the shared build state.
type StageFn func(ctx context.Context, bs *BuildState) error

// StageDef pairs a stage name with its executing function.
type StageDef struct {
	Name StageName
	Fn   StageFn
}
