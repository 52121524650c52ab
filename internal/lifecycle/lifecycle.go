// Package lifecycle holds the session state machine and the billing
// eligibility predicate.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle stage of a session.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

var (
	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("lifecycle: unknown session status")
	// ErrInvalidTransition indicates a move the state machine does not allow.
	ErrInvalidTransition = errors.New("lifecycle: transition not allowed")
	// ErrTerminal indicates the session is COMPLETED or CANCELLED.
	ErrTerminal = errors.New("lifecycle: session is in a terminal state")
)

// ParseStatus accepts any letter case.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
	}
	return status, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// rank orders the active states; forward moves only increase it.
func (s Status) rank() int {
	switch s {
	case StatusScheduled:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	}
	return -1
}

// Transition validates moving a session from one status to another.
//
// Active states only move forward (SCHEDULED -> IN_PROGRESS -> COMPLETED,
// skipping IN_PROGRESS is allowed), CANCELLED is reachable from either
// non-terminal state, and terminal states never change.
func Transition(from, to Status) error {
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if from.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	if from == to {
		return nil
	}
	if to == StatusCancelled {
		return nil
	}
	if to.rank() > from.rank() {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// CanConfirm reports whether the confirmation flag may change in status s.
func CanConfirm(s Status) bool {
	return s.Valid() && s != StatusCancelled
}

// Editable reports whether times or children may still change. COMPLETED
// sessions remain editable but callers should record the edit.
func Editable(s Status) bool {
	return s.Valid() && s != StatusCancelled
}

// Billable is the eligibility predicate for attaching a session to a payment.
func Billable(s Status, confirmed bool, paymentID *string) bool {
	return s == StatusCompleted && confirmed && paymentID == nil
}

// Ineligibility explains why a session fails Billable; empty when billable.
func Ineligibility(s Status, confirmed bool, paymentID *string) string {
	switch {
	case paymentID != nil:
		return "already paid"
	case s != StatusCompleted:
		return fmt.Sprintf("status is %s, not %s", s, StatusCompleted)
	case !confirmed:
		return "session is not confirmed"
	}
	return ""
}
