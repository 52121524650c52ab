package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/childcare-backoffice/internal/wallclock"
)

var (
	// ErrUnauthorized is returned when the caller presents no valid credentials.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a record with the same identity is already stored.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidTransition is returned when a session status change breaks the lifecycle order.
	ErrInvalidTransition = errors.New("application: invalid session transition")
	// ErrRuleInUse is returned when deleting a rule would orphan future sessions.
	ErrRuleInUse = errors.New("application: rule still has future sessions")
	// ErrSessionLocked is returned when a paid or cancelled session is modified.
	ErrSessionLocked = errors.New("application: session is locked")
	// ErrConcurrentUpdate is returned when another writer changed the record first.
	ErrConcurrentUpdate = errors.New("application: concurrent update")
	// ErrTimezoneOffsetMissing is returned when a write arrives without the owner's offset.
	ErrTimezoneOffsetMissing = fmt.Errorf("application: timezone offset missing: %w", wallclock.ErrOffsetMissing)
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message for a field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// NotBillableError names a selected session that fails the billing predicate.
type NotBillableError struct {
	SessionID string
	Reason    string
}

func (e *NotBillableError) Error() string {
	return fmt.Sprintf("session %s is not billable: %s", e.SessionID, e.Reason)
}

// AlreadyPaidError names a session that already belongs to a payment.
type AlreadyPaidError struct {
	SessionID string
	PaymentID string
}

func (e *AlreadyPaidError) Error() string {
	if e.PaymentID == "" {
		return fmt.Sprintf("session %s is already paid", e.SessionID)
	}
	return fmt.Sprintf("session %s is already paid by payment %s", e.SessionID, e.PaymentID)
}
