package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

type ruleService interface {
	CreateOrUpdateRule(ctx context.Context, params application.SaveRuleParams) (application.Rule, error)
	GetRule(ctx context.Context, id string) (application.Rule, error)
	DeleteRule(ctx context.Context, id string, cascade bool) (int, error)
}

type RuleHandler struct {
	service   ruleService
	responder responder
	logger    *slog.Logger
}

func NewRuleHandler(service ruleService, logger *slog.Logger) *RuleHandler {
	logger = defaultLogger(logger)
	return &RuleHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "", http.StatusCreated)
}

func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRuleID)
		return
	}
	h.save(w, r, id, http.StatusOK)
}

func (h *RuleHandler) save(w http.ResponseWriter, r *http.Request, ruleID string, status int) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	rule, err := h.service.CreateOrUpdateRule(r.Context(), application.SaveRuleParams{
		RuleID: ruleID,
		Input:  req.toInput(),
		Offset: offset,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, status, ruleResponse{Rule: toRuleDTO(rule, offset)})
}

func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := resourceID(r)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRuleID)
		return
	}
	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	rule, err := h.service.GetRule(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, ruleResponse{Rule: toRuleDTO(rule, offset)})
}

// Delete honours ?cascade=true, which cancels the rule's future sessions
// instead of refusing.
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := resourceID(r)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRuleID)
		return
	}

	cascade := false
	if raw := strings.TrimSpace(r.URL.Query().Get("cascade")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCascade)
			return
		}
		cascade = parsed
	}

	cancelled, err := h.service.DeleteRule(r.Context(), id, cascade)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "RuleHandler", "Delete", "rule_id", id).
		InfoContext(r.Context(), "rule removed", "cancelled_sessions", cancelled)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, deleteRuleResponse{RuleID: id, CancelledSessions: cancelled})
}

type ruleRequest struct {
	FamilyID   string           `json:"family_id"`
	ServiceID  string           `json:"service_id"`
	Kind       string           `json:"kind"`
	Weekdays   []time.Weekday   `json:"weekdays"`
	StartTime  string           `json:"start_time"`
	EndTime    string           `json:"end_time"`
	StartDate  string           `json:"start_date"`
	EndDate    string           `json:"end_date"`
	ChildIDs   []string         `json:"child_ids"`
	HourlyRate *decimal.Decimal `json:"hourly_rate"`
	Notes      string           `json:"notes"`
}

func (r ruleRequest) toInput() application.RuleInput {
	return application.RuleInput{
		FamilyID:   strings.TrimSpace(r.FamilyID),
		ServiceID:  strings.TrimSpace(r.ServiceID),
		Kind:       r.Kind,
		Weekdays:   append([]time.Weekday(nil), r.Weekdays...),
		StartTime:  strings.TrimSpace(r.StartTime),
		EndTime:    strings.TrimSpace(r.EndTime),
		StartDate:  strings.TrimSpace(r.StartDate),
		EndDate:    strings.TrimSpace(r.EndDate),
		ChildIDs:   append([]string(nil), r.ChildIDs...),
		HourlyRate: r.HourlyRate,
		Notes:      r.Notes,
	}
}

type ruleResponse struct {
	Rule ruleDTO `json:"rule"`
}

type deleteRuleResponse struct {
	RuleID            string `json:"rule_id"`
	CancelledSessions int    `json:"cancelled_sessions"`
}

// ruleDTO reports the wall-clock fields exactly as captured together with
// the offset they were captured in.
type ruleDTO struct {
	ID         string           `json:"id"`
	FamilyID   string           `json:"family_id"`
	ServiceID  string           `json:"service_id"`
	Kind       string           `json:"kind"`
	Weekdays   []time.Weekday   `json:"weekdays,omitempty"`
	StartTime  string           `json:"start_time"`
	EndTime    string           `json:"end_time"`
	StartDate  string           `json:"start_date"`
	EndDate    *string          `json:"end_date,omitempty"`
	Offset     string           `json:"offset"`
	ChildIDs   []string         `json:"child_ids"`
	HourlyRate *decimal.Decimal `json:"hourly_rate,omitempty"`
	Notes      string           `json:"notes,omitempty"`
	CreatedAt  string           `json:"created_at"`
	UpdatedAt  string           `json:"updated_at"`
}

func toRuleDTO(rule application.Rule, offset wallclock.Offset) ruleDTO {
	dto := ruleDTO{
		ID:         rule.ID,
		FamilyID:   rule.FamilyID,
		ServiceID:  rule.ServiceID,
		StartTime:  rule.Window.Start.String(),
		EndTime:    rule.Window.End.String(),
		StartDate:  rule.Validity.StartDate.String(),
		Offset:     rule.Offset.String(),
		ChildIDs:   append([]string{}, rule.ChildIDs...),
		HourlyRate: rule.HourlyRate,
		Notes:      rule.Notes,
		CreatedAt:  wallclock.Format(rule.CreatedAt, offset),
		UpdatedAt:  wallclock.Format(rule.UpdatedAt, offset),
	}
	if rule.Pattern != nil {
		dto.Kind = string(rule.Pattern.Kind())
		dto.Weekdays = rule.Pattern.Weekdays().Days()
	}
	if rule.Validity.EndDate != nil {
		end := rule.Validity.EndDate.String()
		dto.EndDate = &end
	}
	return dto
}
