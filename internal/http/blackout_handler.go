package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

type blackoutService interface {
	CreateBlackout(ctx context.Context, params application.CreateBlackoutParams) (application.Blackout, error)
	ListBlackouts(ctx context.Context, from, to *time.Time) ([]application.Blackout, error)
	DeleteBlackout(ctx context.Context, id string) error
}

type BlackoutHandler struct {
	service   blackoutService
	responder responder
}

func NewBlackoutHandler(service blackoutService, logger *slog.Logger) *BlackoutHandler {
	return &BlackoutHandler{service: service, responder: newResponder(logger)}
}

func (h *BlackoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	var req blackoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	b, err := h.service.CreateBlackout(r.Context(), application.CreateBlackoutParams{
		Input:  req.toInput(),
		Offset: offset,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, blackoutResponse{Blackout: toBlackoutDTO(b, offset)})
}

// List handles GET /blackouts?from=&to= with RFC 3339 instants or dates.
func (h *BlackoutHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	from, okFrom := parseInstant(query.Get("from"), offset)
	to, okTo := parseInstant(query.Get("to"), offset)
	if !okFrom || !okTo {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	blackouts, err := h.service.ListBlackouts(r.Context(), from, to)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]blackoutDTO, 0, len(blackouts))
	for _, b := range blackouts {
		out = append(out, toBlackoutDTO(b, offset))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBlackoutsResponse{Blackouts: out})
}

func (h *BlackoutHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := resourceID(r)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBlackoutID)
		return
	}

	if err := h.service.DeleteBlackout(r.Context(), id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type blackoutRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

func (r blackoutRequest) toInput() application.BlackoutInput {
	return application.BlackoutInput{
		StartDate: strings.TrimSpace(r.StartDate),
		EndDate:   strings.TrimSpace(r.EndDate),
		StartTime: strings.TrimSpace(r.StartTime),
		EndTime:   strings.TrimSpace(r.EndTime),
		Reason:    strings.TrimSpace(r.Reason),
	}
}

type blackoutResponse struct {
	Blackout blackoutDTO `json:"blackout"`
}

type listBlackoutsResponse struct {
	Blackouts []blackoutDTO `json:"blackouts"`
}

type blackoutDTO struct {
	ID        string `json:"id"`
	StartsAt  string `json:"starts_at"`
	EndsAt    string `json:"ends_at"`
	AllDay    bool   `json:"all_day"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toBlackoutDTO(b application.Blackout, offset wallclock.Offset) blackoutDTO {
	return blackoutDTO{
		ID:        b.ID,
		StartsAt:  wallclock.Format(b.StartsAt, offset),
		EndsAt:    wallclock.Format(b.EndsAt, offset),
		AllDay:    b.AllDay,
		Reason:    b.Reason,
		CreatedAt: wallclock.Format(b.CreatedAt, offset),
	}
}
