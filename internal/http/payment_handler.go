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

type paymentService interface {
	PreviewPayment(ctx context.Context, params application.RecordPaymentParams) (application.PaymentQuote, error)
	RecordPayment(ctx context.Context, params application.RecordPaymentParams) (application.Payment, error)
	GetPayment(ctx context.Context, id string) (application.Payment, error)
	ListPayments(ctx context.Context, familyID string) ([]application.Payment, error)
	CancelPayment(ctx context.Context, id string) (application.Payment, error)
}

type PaymentHandler struct {
	service   paymentService
	responder responder
	logger    *slog.Logger
}

func NewPaymentHandler(service paymentService, logger *slog.Logger) *PaymentHandler {
	logger = defaultLogger(logger)
	return &PaymentHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *PaymentHandler) Record(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	payment, err := h.service.RecordPayment(r.Context(), req.toParams())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "PaymentHandler", "Record", "payment_id", payment.ID).
		InfoContext(r.Context(), "payment recorded", "sessions", len(payment.SessionIDs))
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, paymentResponse{Payment: toPaymentDTO(payment, offset)})
}

// Preview handles POST /payments/preview and prices the selection without
// writing anything.
func (h *PaymentHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	quote, err := h.service.PreviewPayment(r.Context(), req.toParams())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, quoteDTO{
		FamilyID: quote.FamilyID,
		Sessions: toSessionAmountDTOs(quote.Sessions),
		Subtotal: quote.Subtotal,
		Tips:     quote.Tips,
		Total:    quote.Total,
		Display:  quote.Display,
	})
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := resourceID(r)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPaymentID)
		return
	}
	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	payment, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, paymentResponse{Payment: toPaymentDTO(payment, offset)})
}

// List handles GET /payments?family_id=.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	familyID := strings.TrimSpace(r.URL.Query().Get("family_id"))
	if familyID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidFamilyID)
		return
	}
	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	payments, err := h.service.ListPayments(r.Context(), familyID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]paymentDTO, 0, len(payments))
	for _, payment := range payments {
		out = append(out, toPaymentDTO(payment, offset))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listPaymentsResponse{Payments: out})
}

// Cancel handles POST /payments/{id}/cancel.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := resourceID(r)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPaymentID)
		return
	}
	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	payment, err := h.service.CancelPayment(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, paymentResponse{Payment: toPaymentDTO(payment, offset)})
}

type paymentRequest struct {
	FamilyID   string          `json:"family_id"`
	SessionIDs []string        `json:"session_ids"`
	Tips       decimal.Decimal `json:"tips"`
	Method     string          `json:"method"`
	Notes      string          `json:"notes"`
}

func (r paymentRequest) toParams() application.RecordPaymentParams {
	return application.RecordPaymentParams{
		FamilyID:   r.FamilyID,
		SessionIDs: append([]string(nil), r.SessionIDs...),
		Tips:       r.Tips,
		Method:     r.Method,
		Notes:      r.Notes,
	}
}

type paymentResponse struct {
	Payment paymentDTO `json:"payment"`
}

type listPaymentsResponse struct {
	Payments []paymentDTO `json:"payments"`
}

type paymentDTO struct {
	ID         string          `json:"id"`
	FamilyID   string          `json:"family_id"`
	Amount     decimal.Decimal `json:"amount"`
	Tips       decimal.Decimal `json:"tips"`
	Method     string          `json:"method"`
	Status     string          `json:"status"`
	Notes      string          `json:"notes,omitempty"`
	SessionIDs []string        `json:"session_ids"`
	PaidAt     *string         `json:"paid_at,omitempty"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

func toPaymentDTO(payment application.Payment, offset wallclock.Offset) paymentDTO {
	return paymentDTO{
		ID:         payment.ID,
		FamilyID:   payment.FamilyID,
		Amount:     payment.Amount,
		Tips:       payment.Tips,
		Method:     payment.Method,
		Status:     string(payment.Status),
		Notes:      payment.Notes,
		SessionIDs: append([]string{}, payment.SessionIDs...),
		PaidAt:     formatOptionalTime(payment.PaidAt, offset),
		CreatedAt:  wallclock.Format(payment.CreatedAt, offset),
		UpdatedAt:  wallclock.Format(payment.UpdatedAt, offset),
	}
}

type quoteDTO struct {
	FamilyID string             `json:"family_id"`
	Sessions []sessionAmountDTO `json:"sessions"`
	Subtotal decimal.Decimal    `json:"subtotal"`
	Tips     decimal.Decimal    `json:"tips"`
	Total    decimal.Decimal    `json:"total"`
	Display  string             `json:"display"`
}
