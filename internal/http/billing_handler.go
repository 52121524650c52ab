package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

type amountService interface {
	ComputeSessionAmount(ctx context.Context, sessionID string) (application.SessionAmount, error)
}

type expenseService interface {
	AddExpense(ctx context.Context, input application.ExpenseInput) (application.Expense, error)
}

// BillingHandler serves session pricing and expense entry.
type BillingHandler struct {
	amounts   amountService
	expenses  expenseService
	responder responder
}

func NewBillingHandler(amounts amountService, expenses expenseService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{amounts: amounts, expenses: expenses, responder: newResponder(logger)}
}

// Amount handles GET /sessions/{id}/amount.
func (h *BillingHandler) Amount(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.amounts == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := resourceID(r)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	amount, err := h.amounts.ComputeSessionAmount(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionAmountDTO(amount))
}

// AddExpense handles POST /sessions/{id}/expenses.
func (h *BillingHandler) AddExpense(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.expenses == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := resourceID(r)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}
	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	expense, err := h.expenses.AddExpense(r.Context(), application.ExpenseInput{
		SessionID:   id,
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, expenseResponse{Expense: expenseDTO{
		ID:          expense.ID,
		SessionID:   expense.SessionID,
		Description: expense.Description,
		Amount:      expense.Amount,
		CreatedAt:   wallclock.Format(expense.CreatedAt, offset),
	}})
}

type expenseRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type expenseResponse struct {
	Expense expenseDTO `json:"expense"`
}

type expenseDTO struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   string          `json:"created_at"`
}

type sessionAmountDTO struct {
	SessionID  string          `json:"session_id"`
	Hours      decimal.Decimal `json:"hours"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Multiplier int             `json:"multiplier"`
	Base       decimal.Decimal `json:"base"`
	Expenses   decimal.Decimal `json:"expenses"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	Display    string          `json:"display"`
}

func toSessionAmountDTO(amount application.SessionAmount) sessionAmountDTO {
	return sessionAmountDTO{
		SessionID:  amount.SessionID,
		Hours:      amount.Breakdown.Hours,
		HourlyRate: amount.Breakdown.HourlyRate,
		Multiplier: amount.Breakdown.Multiplier,
		Base:       amount.Breakdown.Base,
		Expenses:   amount.Breakdown.Expenses,
		Total:      amount.Breakdown.Total,
		Currency:   amount.Currency,
		Display:    amount.Display,
	}
}

func toSessionAmountDTOs(amounts []application.SessionAmount) []sessionAmountDTO {
	out := make([]sessionAmountDTO, 0, len(amounts))
	for _, amount := range amounts {
		out = append(out, toSessionAmountDTO(amount))
	}
	return out
}
