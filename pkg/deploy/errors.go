package deploy

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed inputs before any generation runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GenerationError is a fatal failure producing or writing an artifact.
// It always aborts the transition before any running service is touched.
type GenerationError struct {
	Artifact string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Artifact, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// AmbiguousStateError is returned when host inspection does not cleanly
// match any known layout. The orchestrator never guesses; the operator must
// confirm the state explicitly.
type AmbiguousStateError struct {
	Reason string
}

func (e *AmbiguousStateError) Error() string {
	return fmt.Sprintf("deployment state is ambiguous: %s (re-run with an explicit state override)", e.Reason)
}

// ErrRestartFailed wraps a failure while applying a new topology to running
// services. The orchestrator rolls the stack back to stopped and surfaces
// this as fatal rather than leaving a half-applied topology.
var ErrRestartFailed = errors.New("service restart failed")
