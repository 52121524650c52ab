package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/lifecycle"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

type sessionService interface {
	CreateSession(ctx context.Context, params application.CreateSessionParams) (application.Session, error)
	GetSession(ctx context.Context, id string) (application.Session, error)
	ListSessions(ctx context.Context, filter application.SessionFilter) ([]application.Session, error)
	ListBillableSessions(ctx context.Context, familyID string) ([]application.Session, error)
	TransitionSession(ctx context.Context, params application.TransitionSessionParams) (application.Session, error)
	EditSession(ctx context.Context, params application.EditSessionParams) (application.Session, error)
}

type SessionHandler struct {
	service   sessionService
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	logger = defaultLogger(logger)
	return &SessionHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	session, err := h.service.CreateSession(r.Context(), application.CreateSessionParams{
		Input:  req.toInput(),
		Offset: offset,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, sessionResponse{Session: toSessionDTO(session, offset)})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
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

	session, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session, offset)})
}

// List handles GET /sessions?family_id=&rule_id=&status=A,B&from=&to=&confirmed=&unpaid=.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	filter, ok := buildSessionFilter(r.URL.Query(), offset)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSessionsResponse{Sessions: toSessionDTOs(sessions, offset)})
}

// Billable handles GET /families/{id}/billable-sessions.
func (h *SessionHandler) Billable(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	familyID := resourceID(r)
	if familyID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidFamilyID)
		return
	}
	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	sessions, err := h.service.ListBillableSessions(r.Context(), familyID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSessionsResponse{Sessions: toSessionDTOs(sessions, offset)})
}

func (h *SessionHandler) Edit(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
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

	var req editSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	session, err := h.service.EditSession(r.Context(), req.toParams(id, offset))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session, offset)})
}

// Transition handles POST /sessions/{id}/transition with a status, a
// confirmation flag, or both.
func (h *SessionHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
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

	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	session, err := h.service.TransitionSession(r.Context(), req.toParams(id))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "SessionHandler", "Transition", "session_id", id).
		DebugContext(r.Context(), "session state", "status", string(session.Status), "confirmed", session.Confirmed)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session, offset)})
}

func buildSessionFilter(values url.Values, offset wallclock.Offset) (application.SessionFilter, bool) {
	filter := application.SessionFilter{
		FamilyID: strings.TrimSpace(values.Get("family_id")),
		RuleID:   strings.TrimSpace(values.Get("rule_id")),
	}

	for _, raw := range parseCSV(values.Get("status")) {
		status, err := lifecycle.ParseStatus(raw)
		if err != nil {
			return application.SessionFilter{}, false
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	var ok bool
	if filter.From, ok = parseInstant(values.Get("from"), offset); !ok {
		return application.SessionFilter{}, false
	}
	if filter.To, ok = parseInstant(values.Get("to"), offset); !ok {
		return application.SessionFilter{}, false
	}
	if filter.Confirmed, ok = queryBool(values, "confirmed"); !ok {
		return application.SessionFilter{}, false
	}
	unpaid, ok := queryBool(values, "unpaid")
	if !ok {
		return application.SessionFilter{}, false
	}
	filter.Unpaid = unpaid != nil && *unpaid

	return filter, true
}

type sessionRequest struct {
	FamilyID   string           `json:"family_id"`
	ServiceID  string           `json:"service_id"`
	Date       string           `json:"date"`
	StartTime  string           `json:"start_time"`
	EndTime    string           `json:"end_time"`
	ChildIDs   []string         `json:"child_ids"`
	HourlyRate *decimal.Decimal `json:"hourly_rate"`
	Notes      string           `json:"notes"`
}

func (r sessionRequest) toInput() application.SessionInput {
	return application.SessionInput{
		FamilyID:   strings.TrimSpace(r.FamilyID),
		ServiceID:  strings.TrimSpace(r.ServiceID),
		Date:       strings.TrimSpace(r.Date),
		StartTime:  strings.TrimSpace(r.StartTime),
		EndTime:    strings.TrimSpace(r.EndTime),
		ChildIDs:   append([]string(nil), r.ChildIDs...),
		HourlyRate: r.HourlyRate,
		Notes:      r.Notes,
	}
}

type editSessionRequest struct {
	Date       string           `json:"date"`
	StartTime  string           `json:"start_time"`
	EndTime    string           `json:"end_time"`
	ChildIDs   []string         `json:"child_ids"`
	HourlyRate *decimal.Decimal `json:"hourly_rate"`
	Notes      string           `json:"notes"`
}

func (r editSessionRequest) toParams(id string, offset wallclock.Offset) application.EditSessionParams {
	return application.EditSessionParams{
		SessionID:  id,
		Date:       strings.TrimSpace(r.Date),
		StartTime:  strings.TrimSpace(r.StartTime),
		EndTime:    strings.TrimSpace(r.EndTime),
		ChildIDs:   append([]string(nil), r.ChildIDs...),
		HourlyRate: r.HourlyRate,
		Notes:      r.Notes,
		Offset:     offset,
	}
}

type transitionRequest struct {
	Status    *string `json:"status"`
	Confirmed *bool   `json:"confirmed"`
}

func (r transitionRequest) toParams(id string) application.TransitionSessionParams {
	params := application.TransitionSessionParams{SessionID: id, Confirmed: r.Confirmed}
	if r.Status != nil {
		status := lifecycle.Status(strings.ToUpper(strings.TrimSpace(*r.Status)))
		params.Status = &status
	}
	return params
}

type sessionResponse struct {
	Session sessionDTO `json:"session"`
}

type listSessionsResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

type sessionDTO struct {
	ID           string          `json:"id"`
	FamilyID     string          `json:"family_id"`
	ServiceID    string          `json:"service_id"`
	SourceRuleID *string         `json:"source_rule_id,omitempty"`
	Start        string          `json:"start"`
	End          string          `json:"end"`
	Status       string          `json:"status"`
	Confirmed    bool            `json:"confirmed"`
	Billable     bool            `json:"billable"`
	HourlyRate   decimal.Decimal `json:"hourly_rate"`
	ChildIDs     []string        `json:"child_ids"`
	PaymentID    *string         `json:"payment_id,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	Version      int64           `json:"version"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

func toSessionDTO(session application.Session, offset wallclock.Offset) sessionDTO {
	return sessionDTO{
		ID:           session.ID,
		FamilyID:     session.FamilyID,
		ServiceID:    session.ServiceID,
		SourceRuleID: session.SourceRuleID,
		Start:        wallclock.Format(session.Start, offset),
		End:          wallclock.Format(session.End, offset),
		Status:       string(session.Status),
		Confirmed:    session.Confirmed,
		Billable:     session.Billable(),
		HourlyRate:   session.HourlyRate,
		ChildIDs:     append([]string{}, session.ChildIDs...),
		PaymentID:    session.PaymentID,
		Notes:        session.Notes,
		Version:      session.Version,
		CreatedAt:    wallclock.Format(session.CreatedAt, offset),
		UpdatedAt:    wallclock.Format(session.UpdatedAt, offset),
	}
}

func toSessionDTOs(sessions []application.Session, offset wallclock.Offset) []sessionDTO {
	out := make([]sessionDTO, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionDTO(session, offset))
	}
	return out
}
