package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

type scheduleService interface {
	ExpandSchedule(ctx context.Context, params application.ExpandScheduleParams) (application.ExpansionResult, error)
}

// ScheduleHandler materializes rules into sessions.
type ScheduleHandler struct {
	service   scheduleService
	responder responder
}

func NewScheduleHandler(service scheduleService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: service, responder: newResponder(logger)}
}

// Expand handles POST /rules/{id}/expand. The range is a pair of civil dates
// interpreted in the rule's own offset, so the header only affects rendering.
func (h *ScheduleHandler) Expand(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ruleID := resourceID(r)
	if ruleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRuleID)
		return
	}
	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	var req expandRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	params, vErrs := req.toParams(ruleID)
	if len(vErrs) > 0 {
		h.responder.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   statusMessage(http.StatusUnprocessableEntity),
			Errors:    vErrs,
		})
		return
	}

	result, err := h.service.ExpandSchedule(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toExpansionResponse(result, offset))
}

type expandRequest struct {
	RangeStart string `json:"range_start"`
	RangeEnd   string `json:"range_end"`
}

func (r expandRequest) toParams(ruleID string) (application.ExpandScheduleParams, map[string]string) {
	errs := map[string]string{}
	params := application.ExpandScheduleParams{RuleID: ruleID}

	start, err := wallclock.ParseDate(strings.TrimSpace(r.RangeStart))
	if err != nil {
		errs["range_start"] = "must be a date formatted YYYY-MM-DD"
	}
	end, err := wallclock.ParseDate(strings.TrimSpace(r.RangeEnd))
	if err != nil {
		errs["range_end"] = "must be a date formatted YYYY-MM-DD"
	}
	params.RangeStart = start
	params.RangeEnd = end
	return params, errs
}

type expansionResponse struct {
	Created []sessionDTO           `json:"created"`
	Skipped []skippedOccurrenceDTO `json:"skipped"`
}

type skippedOccurrenceDTO struct {
	Date              string `json:"date"`
	Start             string `json:"start"`
	End               string `json:"end"`
	Reason            string `json:"reason"`
	BlackoutID        string `json:"blackout_id,omitempty"`
	ExistingSessionID string `json:"existing_session_id,omitempty"`
}

func toExpansionResponse(result application.ExpansionResult, offset wallclock.Offset) expansionResponse {
	resp := expansionResponse{
		Created: toSessionDTOs(result.Created, offset),
		Skipped: make([]skippedOccurrenceDTO, 0, len(result.Skipped)),
	}
	for _, skip := range result.Skipped {
		resp.Skipped = append(resp.Skipped, skippedOccurrenceDTO{
			Date:              skip.Date.String(),
			Start:             wallclock.Format(skip.Start, offset),
			End:               wallclock.Format(skip.End, offset),
			Reason:            string(skip.Reason),
			BlackoutID:        skip.BlackoutID,
			ExistingSessionID: skip.ExistingSessionID,
		})
	}
	return resp
}
