package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/childcare-backoffice/internal/persistence"
)

// PaymentRepository is the ledger storage. RecordPayment must stamp every
// session atomically and fail when any of them is already stamped.
type PaymentRepository interface {
	RecordPayment(ctx context.Context, payment Payment) error
	GetPayment(ctx context.Context, id string) (Payment, error)
	ListPayments(ctx context.Context, familyID string) ([]Payment, error)
	CancelPayment(ctx context.Context, id string, now time.Time) (Payment, error)
}

// PaymentService records payments against billable sessions.
type PaymentService struct {
	payments    PaymentRepository
	billing     *BillingService
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewPaymentService wires dependencies for the ledger.
func NewPaymentService(payments PaymentRepository, billingService *BillingService, idGenerator func() string, now func() time.Time) *PaymentService {
	return NewPaymentServiceWithLogger(payments, billingService, idGenerator, now, nil)
}

// NewPaymentServiceWithLogger wires dependencies and a base logger.
func NewPaymentServiceWithLogger(payments PaymentRepository, billingService *BillingService, idGenerator func() string, now func() time.Time, logger *slog.Logger) *PaymentService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &PaymentService{
		payments:    payments,
		billing:     billingService,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// PreviewPayment prices the selection exactly as RecordPayment would.
func (s *PaymentService) PreviewPayment(ctx context.Context, params RecordPaymentParams) (PaymentQuote, error) {
	if s == nil {
		return PaymentQuote{}, fmt.Errorf("PaymentService is nil")
	}
	params = normalizePaymentParams(params)
	if vErr := validatePaymentParams(params); vErr.HasErrors() {
		return PaymentQuote{}, vErr
	}
	return s.billing.QuotePayment(ctx, params.FamilyID, params.SessionIDs, params.Tips)
}

// RecordPayment validates that every selected session is COMPLETED,
// confirmed, unpaid and owned by the family, then stores a PAID payment
// whose amount is the sum of the session amounts plus tips. Either every
// session is stamped with the payment or none is. A session that changed
// after it was priced fails the write with ErrConcurrentUpdate.
func (s *PaymentService) RecordPayment(ctx context.Context, params RecordPaymentParams) (Payment, error) {
	if s == nil {
		return Payment{}, fmt.Errorf("PaymentService is nil")
	}
	params = normalizePaymentParams(params)
	logger := serviceLogger(ctx, s.logger, "PaymentService", "RecordPayment",
		"family_id", params.FamilyID, "session_count", len(params.SessionIDs))

	if vErr := validatePaymentParams(params); vErr.HasErrors() {
		logger.WarnContext(ctx, "payment validation failed", "error_kind", ErrorKind(vErr))
		return Payment{}, vErr
	}

	quote, err := s.billing.QuotePayment(ctx, params.FamilyID, params.SessionIDs, params.Tips)
	if err != nil {
		logger.WarnContext(ctx, "payment selection refused", "error", err, "error_kind", ErrorKind(err))
		return Payment{}, err
	}

	versions := make([]int64, 0, len(quote.Sessions))
	for _, amount := range quote.Sessions {
		versions = append(versions, amount.Version)
	}

	now := s.now()
	paidAt := now
	payment := Payment{
		ID:              s.idGenerator(),
		FamilyID:        params.FamilyID,
		Amount:          quote.Total,
		Tips:            params.Tips.Round(2),
		Method:          params.Method,
		Status:          PaymentStatusPaid,
		Notes:           params.Notes,
		SessionIDs:      append([]string(nil), params.SessionIDs...),
		SessionVersions: versions,
		PaidAt:          &paidAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.payments.RecordPayment(ctx, payment); err != nil {
		mapped := mapPaymentError(err)
		logger.WarnContext(ctx, "payment write refused", "error", err, "error_kind", ErrorKind(mapped))
		return Payment{}, mapped
	}

	logger.InfoContext(ctx, "payment recorded",
		"payment_id", payment.ID,
		"amount", payment.Amount.StringFixed(2),
		"tips", payment.Tips.StringFixed(2),
	)
	return payment, nil
}

// GetPayment returns a stored payment.
func (s *PaymentService) GetPayment(ctx context.Context, id string) (Payment, error) {
	payment, err := s.payments.GetPayment(ctx, id)
	if err != nil {
		return Payment{}, mapRepoError(err)
	}
	return payment, nil
}

// ListPayments returns the family's payments, newest first.
func (s *PaymentService) ListPayments(ctx context.Context, familyID string) ([]Payment, error) {
	payments, err := s.payments.ListPayments(ctx, familyID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return payments, nil
}

// CancelPayment voids a payment and releases its sessions so they become
// billable again. Cancelling twice is a no-op.
func (s *PaymentService) CancelPayment(ctx context.Context, id string) (Payment, error) {
	if s == nil {
		return Payment{}, fmt.Errorf("PaymentService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "PaymentService", "CancelPayment", "payment_id", id)

	payment, err := s.payments.CancelPayment(ctx, id, s.now())
	if err != nil {
		mapped := mapRepoError(err)
		logger.WarnContext(ctx, "payment cancel failed", "error", err, "error_kind", ErrorKind(mapped))
		return Payment{}, mapped
	}

	logger.InfoContext(ctx, "payment cancelled", "released_sessions", len(payment.SessionIDs))
	return payment, nil
}

// mapPaymentError turns a failed stamp into the caller-facing session error.
func mapPaymentError(err error) error {
	var stamp *persistence.StampError
	if !errors.As(err, &stamp) {
		return mapRepoError(err)
	}
	switch {
	case errors.Is(stamp.Err, persistence.ErrAlreadyStamped):
		return &AlreadyPaidError{SessionID: stamp.SessionID, PaymentID: stamp.PaymentID}
	case errors.Is(stamp.Err, persistence.ErrStaleWrite):
		return fmt.Errorf("session %s changed after it was priced: %w", stamp.SessionID, ErrConcurrentUpdate)
	case errors.Is(stamp.Err, persistence.ErrNotFound):
		return &NotBillableError{SessionID: stamp.SessionID, Reason: "session not found for family"}
	default:
		return &NotBillableError{SessionID: stamp.SessionID, Reason: "session is no longer billable"}
	}
}

func normalizePaymentParams(params RecordPaymentParams) RecordPaymentParams {
	params.FamilyID = strings.TrimSpace(params.FamilyID)
	params.Method = strings.ToUpper(strings.TrimSpace(params.Method))
	params.Notes = strings.TrimSpace(params.Notes)
	ids := make([]string, 0, len(params.SessionIDs))
	for _, id := range params.SessionIDs {
		ids = append(ids, strings.TrimSpace(id))
	}
	params.SessionIDs = ids
	return params
}

func validatePaymentParams(params RecordPaymentParams) *ValidationError {
	vErr := &ValidationError{}
	validateStruct(params, vErr)
	if params.Tips.IsNegative() {
		vErr.add("tips", "must not be negative")
	}
	if !params.Tips.Equal(params.Tips.Round(2)) {
		vErr.add("tips", "must have at most two decimal places")
	}
	return vErr
}
