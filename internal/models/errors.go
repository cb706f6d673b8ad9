package models

import "errors"

// ErrorKind is the structured classification attached to a terminal job
// error. The queue decides retry vs. terminal failed based on it.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation" // rejected synchronously, never queued
	KindAsset      ErrorKind = "asset"      // asset decode/resize failure
	KindInjection  ErrorKind = "injection"  // required placeholder/anchor missing
	KindExecutor   ErrorKind = "executor"   // external build non-zero exit or crash
	KindStorage    ErrorKind = "storage"    // artifact upload failed after retries
	KindSystem     ErrorKind = "system"     // disk full, workspace creation failure
	KindNone       ErrorKind = ""
)

// Sentinel domain errors. Always wrapped with contextual information at the
// call site; classification happens via errors.Is.
var (
	ErrValidation = errors.New("appforge: validation error")
	ErrAsset      = errors.New("appforge: asset error")
	ErrInjection  = errors.New("appforge: injection error")
	ErrExecutor   = errors.New("appforge: executor error")
	ErrStorage    = errors.New("appforge: storage error")
	ErrSystem     = errors.New("appforge: system error")
)

// KindOf classifies an error chain into an ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAsset):
		return KindAsset
	case errors.Is(err, ErrInjection):
		return KindInjection
	case errors.Is(err, ErrExecutor):
		return KindExecutor
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindSystem
	}
}

// Retryable reports whether an error kind counts toward the retry budget.
func (k ErrorKind) Retryable() bool {
	return k == KindExecutor || k == KindStorage
}
