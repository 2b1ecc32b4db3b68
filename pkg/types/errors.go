package types

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or missing relation data. The affected
// feature degrades to its Absent behaviour.
type ValidationError struct {
	Relation RelationKind
	Reason   Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("relation %s invalid: %s", e.Relation, e.Reason)
}

// TransientError reports a failure talking to an external dependency.
// The pass completes with a waiting status and the next pass retries.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ApplyError reports a failed local file or process operation.
// RolledBack is true when the previous configuration was restored.
type ApplyError struct {
	Step       string
	RolledBack bool
	Err        error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply step %s failed: %v", e.Step, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// InvariantViolation reports an internally detected contradiction.
// The pass is aborted and AppliedState is left untouched.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Invariant, e.Detail)
}

// ErrNotLeader is returned when a leader-only write is attempted without
// a confirmed leadership signal
var ErrNotLeader = errors.New("unit is not the leader")

// NewTransient wraps err as a TransientError
func NewTransient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// StatusFor maps an error to the unit status it should surface
func StatusFor(err error) UnitStatus {
	if err == nil {
		return UnitStatus{Level: StatusActive}
	}

	var (
		transient *TransientError
		apply     *ApplyError
		invariant *InvariantViolation
		invalid   *ValidationError
	)
	switch {
	case errors.As(err, &invariant):
		return UnitStatus{Level: StatusBlocked, Message: err.Error()}
	case errors.As(err, &apply):
		return UnitStatus{Level: StatusDegraded, Message: err.Error()}
	case errors.As(err, &transient):
		return UnitStatus{Level: StatusWaiting, Message: err.Error()}
	case errors.As(err, &invalid):
		return UnitStatus{Level: StatusActive, Message: err.Error()}
	default:
		return UnitStatus{Level: StatusDegraded, Message: err.Error()}
	}
}
