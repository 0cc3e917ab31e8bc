package engine

import (
	"context"
	"errors"
	"fmt"
	"net"

	"polyedge/internal/ledger"
	"polyedge/internal/risk"
)

// ValidationError marks a malformed input; never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// TransientIOError marks a failure worth retrying with backoff.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient io during %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// DuplicateOperation marks an idempotent retry of completed work; the
// caller treats it as success.
type DuplicateOperation struct {
	Key string
}

func (e *DuplicateOperation) Error() string {
	return fmt.Sprintf("duplicate operation: %s", e.Key)
}

// StateConflict marks a lost race on a state transition.
type StateConflict struct {
	Entity string
	Err    error
}

func (e *StateConflict) Error() string {
	return fmt.Sprintf("state conflict on %s: %v", e.Entity, e.Err)
}

func (e *StateConflict) Unwrap() error { return e.Err }

// Retryable reports whether the error class permits a retry.
func Retryable(err error) bool {
	var tio *TransientIOError
	if errors.As(err, &tio) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// classify maps collaborator errors into the engine's error classes.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := risk.AsRejection(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ledger.ErrDuplicateFill):
		return &DuplicateOperation{Key: op}
	case errors.Is(err, ledger.ErrStateConflict):
		return &StateConflict{Entity: op, Err: err}
	case Retryable(err):
		return &TransientIOError{Op: op, Err: err}
	}
	return err
}
