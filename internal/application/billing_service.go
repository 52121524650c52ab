package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/example/childcare-backoffice/internal/billing"
	"github.com/example/childcare-backoffice/internal/lifecycle"
)

// SessionReader exposes session lookups used for pricing.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessionsByIDs(ctx context.Context, ids []string) ([]Session, error)
}

// ExpenseReader returns expenses grouped by session ID.
type ExpenseReader interface {
	ListExpensesForSessions(ctx context.Context, sessionIDs []string) (map[string][]Expense, error)
}

// BillingService prices sessions and payment selections.
type BillingService struct {
	sessions  SessionReader
	services  ServiceCatalog
	expenses  ExpenseReader
	formatter *billing.Formatter
	logger    *slog.Logger
}

// NewBillingService wires dependencies for pricing.
func NewBillingService(sessions SessionReader, services ServiceCatalog, expenses ExpenseReader, formatter *billing.Formatter) *BillingService {
	return NewBillingServiceWithLogger(sessions, services, expenses, formatter, nil)
}

// NewBillingServiceWithLogger wires dependencies and a base logger.
func NewBillingServiceWithLogger(sessions SessionReader, services ServiceCatalog, expenses ExpenseReader, formatter *billing.Formatter, logger *slog.Logger) *BillingService {
	return &BillingService{
		sessions:  sessions,
		services:  services,
		expenses:  expenses,
		formatter: formatter,
		logger:    defaultLogger(logger),
	}
}

// ComputeSessionAmount prices a single session regardless of its status.
func (s *BillingService) ComputeSessionAmount(ctx context.Context, sessionID string) (SessionAmount, error) {
	if s == nil {
		return SessionAmount{}, fmt.Errorf("BillingService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "BillingService", "ComputeSessionAmount", "session_id", sessionID)

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		mapped := mapRepoError(err)
		logger.WarnContext(ctx, "session lookup failed", "error_kind", ErrorKind(mapped))
		return SessionAmount{}, mapped
	}

	amounts, err := s.price(ctx, []Session{session})
	if err != nil {
		logger.ErrorContext(ctx, "pricing failed", "error", err)
		return SessionAmount{}, err
	}
	return amounts[0], nil
}

// QuotePayment prices a selection of the family's billable sessions plus
// tips without recording anything.
func (s *BillingService) QuotePayment(ctx context.Context, familyID string, sessionIDs []string, tips decimal.Decimal) (PaymentQuote, error) {
	if s == nil {
		return PaymentQuote{}, fmt.Errorf("BillingService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "BillingService", "QuotePayment", "family_id", familyID, "session_count", len(sessionIDs))

	vErr := &ValidationError{}
	if familyID == "" {
		vErr.add("family_id", "is required")
	}
	if len(sessionIDs) == 0 {
		vErr.add("session_ids", "must be at least 1")
	} else if len(uniqueStrings(sessionIDs)) != len(sessionIDs) {
		vErr.add("session_ids", "must not contain duplicates")
	}
	if tips.IsNegative() {
		vErr.add("tips", "must not be negative")
	}
	if vErr.HasErrors() {
		return PaymentQuote{}, vErr
	}

	selected, err := s.selectBillable(ctx, familyID, sessionIDs)
	if err != nil {
		logger.WarnContext(ctx, "selection not billable", "error", err, "error_kind", ErrorKind(err))
		return PaymentQuote{}, err
	}

	amounts, err := s.price(ctx, selected)
	if err != nil {
		logger.ErrorContext(ctx, "pricing failed", "error", err)
		return PaymentQuote{}, err
	}

	subtotal := decimal.Zero
	totals := make([]decimal.Decimal, 0, len(amounts))
	for _, amount := range amounts {
		subtotal = subtotal.Add(amount.Breakdown.Total)
		totals = append(totals, amount.Breakdown.Total)
	}
	total, err := billing.PaymentTotal(totals, tips)
	if err != nil {
		return PaymentQuote{}, err
	}

	return PaymentQuote{
		FamilyID: familyID,
		Sessions: amounts,
		Subtotal: subtotal,
		Tips:     tips,
		Total:    total,
		Display:  s.formatter.Format(total),
	}, nil
}

// selectBillable loads sessionIDs in order and rejects the first one that
// does not belong to the family or fails the billing predicate.
func (s *BillingService) selectBillable(ctx context.Context, familyID string, sessionIDs []string) ([]Session, error) {
	found, err := s.sessions.ListSessionsByIDs(ctx, sessionIDs)
	if err != nil {
		return nil, mapRepoError(err)
	}
	byID := make(map[string]Session, len(found))
	for _, session := range found {
		byID[session.ID] = session
	}

	selected := make([]Session, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		session, ok := byID[id]
		if !ok || session.FamilyID != familyID {
			return nil, &NotBillableError{SessionID: id, Reason: "session not found for family"}
		}
		if session.PaymentID != nil {
			return nil, &AlreadyPaidError{SessionID: id, PaymentID: *session.PaymentID}
		}
		if reason := lifecycle.Ineligibility(session.Status, session.Confirmed, session.PaymentID); reason != "" {
			return nil, &NotBillableError{SessionID: id, Reason: reason}
		}
		selected = append(selected, session)
	}
	return selected, nil
}

// price computes the amount of every session, in order.
func (s *BillingService) price(ctx context.Context, sessions []Session) ([]SessionAmount, error) {
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}

	expenses := map[string][]Expense{}
	if s.expenses != nil && len(ids) > 0 {
		loaded, err := s.expenses.ListExpensesForSessions(ctx, ids)
		if err != nil {
			return nil, mapRepoError(err)
		}
		expenses = loaded
	}

	services := make(map[string]Service)
	amounts := make([]SessionAmount, 0, len(sessions))
	for _, session := range sessions {
		service, ok := services[session.ServiceID]
		if !ok {
			loaded, err := s.services.GetService(ctx, session.ServiceID)
			if err != nil {
				return nil, mapRepoError(err)
			}
			service = loaded
			services[session.ServiceID] = service
		}

		charges := make([]decimal.Decimal, 0, len(expenses[session.ID]))
		for _, expense := range expenses[session.ID] {
			charges = append(charges, expense.Amount)
		}

		breakdown, err := billing.Calculate(billing.SessionCharge{
			Start:      session.Start,
			End:        session.End,
			HourlyRate: session.HourlyRate,
			Mode:       service.PricingMode,
			ChildCount: len(session.ChildIDs),
			Expenses:   charges,
		})
		if err != nil {
			if errors.Is(err, billing.ErrInvalidDuration) || errors.Is(err, billing.ErrNegativeAmount) {
				return nil, &NotBillableError{SessionID: session.ID, Reason: err.Error()}
			}
			return nil, fmt.Errorf("price session %s: %w", session.ID, err)
		}

		amounts = append(amounts, SessionAmount{
			SessionID: session.ID,
			Version:   session.Version,
			Breakdown: breakdown,
			Currency:  s.formatter.Currency(),
			Display:   s.formatter.Format(breakdown.Total),
		})
	}
	return amounts, nil
}
