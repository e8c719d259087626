package deploy

import (
	"errors"
	"fmt"

	"stellar-token-lab/internal/domain"
)

// Coordinator errors.
var (
	// ErrSessionTerminal is returned when resuming or abandoning a
	// session that is already initialized or failed.
	ErrSessionTerminal = errors.New("session is in a terminal state")

	// ErrPendingUnresolved is returned by Abandon when a submission is
	// still in flight and its outcome could not be determined.
	ErrPendingUnresolved = errors.New("pending submission outcome unresolved")

	// ErrRequestMismatch is returned by Resume when the supplied request
	// does not match the session being resumed.
	ErrRequestMismatch = errors.New("request does not match session")

	// ErrIndeterminate means a submission's outcome could not be
	// determined within the step budget. The session keeps the pending
	// transaction hash so a later Resume can settle it.
	ErrIndeterminate = errors.New("submission outcome indeterminate")
)

// StepError reports which pipeline step failed and why. Callers match
// the cause with errors.Is / errors.As through Unwrap.
type StepError struct {
	Step domain.Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step domain.Step, err error) *StepError {
	return &StepError{Step: step, Err: err}
}
