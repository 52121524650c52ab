package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ExpenseRepository captures the persistence interactions needed for expenses.
type ExpenseRepository interface {
	CreateExpense(ctx context.Context, expense Expense) error
}

// ExpenseService attaches ad-hoc charges to sessions.
type ExpenseService struct {
	expenses    ExpenseRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewExpenseService wires dependencies for expense operations.
func NewExpenseService(expenses ExpenseRepository, idGenerator func() string, now func() time.Time) *ExpenseService {
	return NewExpenseServiceWithLogger(expenses, idGenerator, now, nil)
}

// NewExpenseServiceWithLogger wires dependencies and a base logger.
func NewExpenseServiceWithLogger(expenses ExpenseRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ExpenseService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ExpenseService{
		expenses:    expenses,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// AddExpense stores a positive charge on a session that is neither paid nor cancelled.
func (s *ExpenseService) AddExpense(ctx context.Context, input ExpenseInput) (Expense, error) {
	if s == nil {
		return Expense{}, fmt.Errorf("ExpenseService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "ExpenseService", "AddExpense", "session_id", input.SessionID)

	input.SessionID = strings.TrimSpace(input.SessionID)
	input.Description = strings.TrimSpace(input.Description)

	vErr := &ValidationError{}
	validateStruct(input, vErr)
	if !input.Amount.IsPositive() {
		vErr.add("amount", "must be greater than zero")
	} else if !input.Amount.Equal(input.Amount.Round(2)) {
		vErr.add("amount", "must have at most two decimal places")
	}
	if vErr.HasErrors() {
		logger.WarnContext(ctx, "expense validation failed", "error_kind", ErrorKind(vErr))
		return Expense{}, vErr
	}

	expense := Expense{
		ID:          s.idGenerator(),
		SessionID:   input.SessionID,
		Description: input.Description,
		Amount:      input.Amount,
		CreatedAt:   s.now(),
	}
	if err := s.expenses.CreateExpense(ctx, expense); err != nil {
		mapped := mapRepoError(err)
		logger.WarnContext(ctx, "expense write refused", "error", err, "error_kind", ErrorKind(mapped))
		return Expense{}, mapped
	}

	logger.InfoContext(ctx, "expense added", "expense_id", expense.ID, "amount", expense.Amount.StringFixed(2))
	return expense, nil
}
