package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects the write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a CHECK or NOT NULL constraint rejects the write.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrStaleWrite is returned when a compare-and-set update loses to a concurrent writer.
	ErrStaleWrite = errors.New("persistence: stale write")
	// ErrReferenced is returned when a delete would orphan dependent records.
	ErrReferenced = errors.New("persistence: record is still referenced")
	// ErrSessionLocked is returned when a paid or cancelled session is modified.
	ErrSessionLocked = errors.New("persistence: session is locked")
	// ErrAlreadyStamped is the StampError cause for sessions carrying a payment.
	ErrAlreadyStamped = errors.New("persistence: session already belongs to a payment")
	// ErrNotEligible is the StampError cause for sessions not COMPLETED and confirmed.
	ErrNotEligible = errors.New("persistence: session is not eligible for payment")
)

// StampError identifies the session that stopped a payment write.
type StampError struct {
	SessionID string
	// PaymentID is the payment already holding the session, when known.
	PaymentID string
	Err       error
}

func (e *StampError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("stamp session %s: %v", e.SessionID, e.Err)
}

func (e *StampError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
