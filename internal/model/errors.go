package model

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
)

// Kind is the stable failure taxonomy surfaced to callers. Every pipeline
// failure maps to exactly one kind.
type Kind string

const (
	// KindValidation marks malformed or out-of-range input. Not retryable.
	KindValidation Kind = "validation"
	// KindDataUnavailable marks an AOI/date window with no qualifying
	// imagery. Retrying with the same parameters yields the same result.
	KindDataUnavailable Kind = "data_unavailable"
	// KindTimeout marks an external fetch that exceeded the caller's bound.
	KindTimeout Kind = "timeout"
	// KindInternal marks a violated processing invariant. Always fatal.
	KindInternal Kind = "internal"
)

// PipelineError carries a failure kind through the error chain so the
// orchestrator and service layer can translate it without string matching.
type PipelineError struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return e.Stage + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewError wraps err with a failure kind.
func NewError(kind Kind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}

// Validationf creates a validation-kind error.
func Validationf(format string, args ...any) *PipelineError {
	return &PipelineError{Kind: KindValidation, Err: eris.Errorf(format, args...)}
}

// Unavailablef creates a data-unavailable-kind error.
func Unavailablef(format string, args ...any) *PipelineError {
	return &PipelineError{Kind: KindDataUnavailable, Err: eris.Errorf(format, args...)}
}

// Timeoutf creates a timeout-kind error.
func Timeoutf(format string, args ...any) *PipelineError {
	return &PipelineError{Kind: KindTimeout, Err: eris.Errorf(format, args...)}
}

// Internalf creates an internal-kind error.
func Internalf(format string, args ...any) *PipelineError {
	return &PipelineError{Kind: KindInternal, Err: eris.Errorf(format, args...)}
}

// KindOf extracts the failure kind from an error chain. Context
// cancellation and deadline errors map to KindTimeout; anything without an
// explicit kind is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindInternal
}
