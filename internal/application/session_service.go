package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/childcare-backoffice/internal/lifecycle"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

// SessionFilter narrows session listings. Zero fields do not filter.
type SessionFilter struct {
	FamilyID  string
	RuleID    string
	Statuses  []lifecycle.Status
	From      *time.Time
	To        *time.Time
	Confirmed *bool
	Unpaid    bool
}

// SessionRepository captures the persistence interactions needed for sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
}

// SessionService drives the session lifecycle and manual edits.
type SessionService struct {
	sessions    SessionRepository
	services    ServiceCatalog
	children    ChildDirectory
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSessionService wires dependencies for session operations.
func NewSessionService(sessions SessionRepository, services ServiceCatalog, children ChildDirectory, idGenerator func() string, now func() time.Time) *SessionService {
	return NewSessionServiceWithLogger(sessions, services, children, idGenerator, now, nil)
}

// NewSessionServiceWithLogger wires dependencies and a base logger.
func NewSessionServiceWithLogger(sessions SessionRepository, services ServiceCatalog, children ChildDirectory, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SessionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		sessions:    sessions,
		services:    services,
		children:    children,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateSession stores a one-off session entered outside any rule.
func (s *SessionService) CreateSession(ctx context.Context, params CreateSessionParams) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("SessionService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "SessionService", "CreateSession", "family_id", params.Input.FamilyID)

	if !params.Offset.Valid() {
		logger.WarnContext(ctx, "session write without timezone offset")
		return Session{}, ErrTimezoneOffsetMissing
	}

	input := params.Input
	input.FamilyID = strings.TrimSpace(input.FamilyID)
	input.ServiceID = strings.TrimSpace(input.ServiceID)
	input.ChildIDs = sortStrings(uniqueStrings(input.ChildIDs))
	input.Notes = strings.TrimSpace(input.Notes)

	vErr := &ValidationError{}
	validateStruct(input, vErr)
	start, end, _ := resolveWindow(vErr, input.Date, input.StartTime, input.EndTime, params.Offset)
	if input.HourlyRate != nil && input.HourlyRate.IsNegative() {
		vErr.add("hourly_rate", "must not be negative")
	}
	if vErr.HasErrors() {
		logger.WarnContext(ctx, "session validation failed", "error_kind", ErrorKind(vErr))
		return Session{}, vErr
	}

	service, err := s.checkReferences(ctx, input.FamilyID, input.ServiceID, input.ChildIDs)
	if err != nil {
		logger.WarnContext(ctx, "session references invalid", "error_kind", ErrorKind(err))
		return Session{}, err
	}

	rate := service.DefaultHourlyRate
	if input.HourlyRate != nil {
		rate = *input.HourlyRate
	}

	now := s.now()
	session := Session{
		ID:         s.idGenerator(),
		FamilyID:   input.FamilyID,
		ServiceID:  input.ServiceID,
		Start:      start,
		End:        end,
		Status:     lifecycle.StatusScheduled,
		HourlyRate: rate,
		ChildIDs:   input.ChildIDs,
		Notes:      input.Notes,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.sessions.CreateSession(ctx, session); err != nil {
		mapped := mapRepoError(err)
		logger.ErrorContext(ctx, "failed to store session", "error", err, "error_kind", ErrorKind(mapped))
		return Session{}, mapped
	}

	logger.InfoContext(ctx, "session created", "session_id", session.ID)
	return session, nil
}

// GetSession returns a stored session.
func (s *SessionService) GetSession(ctx context.Context, id string) (Session, error) {
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return Session{}, mapRepoError(err)
	}
	return session, nil
}

// ListSessions returns sessions matching filter ordered by start.
func (s *SessionService) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error) {
	sessions, err := s.sessions.ListSessions(ctx, filter)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return sessions, nil
}

// ListBillableSessions returns the family's COMPLETED, confirmed, unpaid sessions.
func (s *SessionService) ListBillableSessions(ctx context.Context, familyID string) ([]Session, error) {
	if strings.TrimSpace(familyID) == "" {
		vErr := &ValidationError{}
		vErr.add("family_id", "is required")
		return nil, vErr
	}
	confirmed := true
	return s.ListSessions(ctx, SessionFilter{
		FamilyID:  familyID,
		Statuses:  []lifecycle.Status{lifecycle.StatusCompleted},
		Confirmed: &confirmed,
		Unpaid:    true,
	})
}

// TransitionSession moves a session through its lifecycle and toggles the
// confirmation flag. Requesting the current status is not a transition, so
// a confirmation change alone is accepted on a COMPLETED session.
func (s *SessionService) TransitionSession(ctx context.Context, params TransitionSessionParams) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("SessionService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "SessionService", "TransitionSession", "session_id", params.SessionID)

	if params.Status == nil && params.Confirmed == nil {
		vErr := &ValidationError{}
		vErr.add("status", "status or confirmed is required")
		return Session{}, vErr
	}

	session, err := s.sessions.GetSession(ctx, params.SessionID)
	if err != nil {
		mapped := mapRepoError(err)
		logger.WarnContext(ctx, "session lookup failed", "error_kind", ErrorKind(mapped))
		return Session{}, mapped
	}

	updated := session
	if params.Status != nil && *params.Status != session.Status {
		if err := lifecycle.Transition(session.Status, *params.Status); err != nil {
			if errors.Is(err, lifecycle.ErrInvalidStatus) {
				vErr := &ValidationError{}
				vErr.add("status", "must be one of SCHEDULED, IN_PROGRESS, COMPLETED, CANCELLED")
				return Session{}, vErr
			}
			logger.WarnContext(ctx, "transition refused", "from", string(session.Status), "to", string(*params.Status))
			return Session{}, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		updated.Status = *params.Status
	}

	if params.Confirmed != nil && *params.Confirmed != session.Confirmed {
		if session.PaymentID != nil || !lifecycle.CanConfirm(updated.Status) {
			logger.WarnContext(ctx, "confirmation change refused", "status", string(updated.Status), "paid", session.PaymentID != nil)
			return Session{}, ErrSessionLocked
		}
		updated.Confirmed = *params.Confirmed
	}

	if updated.Status == session.Status && updated.Confirmed == session.Confirmed {
		return session, nil
	}

	updated.UpdatedAt = s.now()
	saved, err := s.sessions.UpdateSession(ctx, updated)
	if err != nil {
		mapped := mapRepoError(err)
		logger.WarnContext(ctx, "failed to update session", "error", err, "error_kind", ErrorKind(mapped))
		return Session{}, mapped
	}

	logger.InfoContext(ctx, "session transitioned",
		"from", string(session.Status),
		"to", string(saved.Status),
		"confirmed", saved.Confirmed,
	)
	return saved, nil
}

// EditSession replaces the date, times, children, rate, and notes of a
// session. Paid and cancelled sessions are locked.
func (s *SessionService) EditSession(ctx context.Context, params EditSessionParams) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("SessionService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "SessionService", "EditSession", "session_id", params.SessionID)

	if !params.Offset.Valid() {
		logger.WarnContext(ctx, "session write without timezone offset")
		return Session{}, ErrTimezoneOffsetMissing
	}

	session, err := s.sessions.GetSession(ctx, params.SessionID)
	if err != nil {
		mapped := mapRepoError(err)
		logger.WarnContext(ctx, "session lookup failed", "error_kind", ErrorKind(mapped))
		return Session{}, mapped
	}
	if session.PaymentID != nil || !lifecycle.Editable(session.Status) {
		logger.WarnContext(ctx, "edit refused on locked session", "status", string(session.Status))
		return Session{}, ErrSessionLocked
	}

	vErr := &ValidationError{}
	start, end, _ := resolveWindow(vErr, params.Date, params.StartTime, params.EndTime, params.Offset)
	if params.HourlyRate != nil && params.HourlyRate.IsNegative() {
		vErr.add("hourly_rate", "must not be negative")
	}
	notes := strings.TrimSpace(params.Notes)
	if len([]rune(notes)) > 2000 {
		vErr.add("notes", "must be at most 2000")
	}
	if vErr.HasErrors() {
		logger.WarnContext(ctx, "session validation failed", "error_kind", ErrorKind(vErr))
		return Session{}, vErr
	}

	childIDs := sortStrings(uniqueStrings(params.ChildIDs))
	if _, err := s.checkReferences(ctx, session.FamilyID, session.ServiceID, childIDs); err != nil {
		logger.WarnContext(ctx, "session references invalid", "error_kind", ErrorKind(err))
		return Session{}, err
	}

	if session.Status == lifecycle.StatusCompleted {
		logger.WarnContext(ctx, "editing a completed session")
	}

	updated := session
	updated.Start = start
	updated.End = end
	updated.ChildIDs = childIDs
	updated.Notes = notes
	if params.HourlyRate != nil {
		updated.HourlyRate = *params.HourlyRate
	}
	updated.UpdatedAt = s.now()

	saved, err := s.sessions.UpdateSession(ctx, updated)
	if err != nil {
		mapped := mapRepoError(err)
		logger.WarnContext(ctx, "failed to update session", "error", err, "error_kind", ErrorKind(mapped))
		return Session{}, mapped
	}

	logger.InfoContext(ctx, "session edited")
	return saved, nil
}

// checkReferences resolves the service and verifies the children belong to
// the family and satisfy the service's headcount requirement.
func (s *SessionService) checkReferences(ctx context.Context, familyID, serviceID string, childIDs []string) (Service, error) {
	vErr := &ValidationError{}

	var service Service
	if s.services != nil {
		found, err := s.services.GetService(ctx, serviceID)
		switch {
		case err == nil:
			service = found
		case errors.Is(mapRepoError(err), ErrNotFound):
			vErr.add("service_id", "service does not exist")
		default:
			return Service{}, err
		}
	}

	if service.RequiresChildren && len(childIDs) == 0 {
		vErr.add("child_ids", "service requires at least one child")
	}

	if s.children != nil && len(childIDs) > 0 {
		missing, err := s.children.MissingChildIDs(ctx, familyID, childIDs)
		if err != nil {
			return Service{}, err
		}
		if len(missing) > 0 {
			vErr.add("child_ids", "children not in family: "+strings.Join(missing, ", "))
		}
	}

	if vErr.HasErrors() {
		return Service{}, vErr
	}
	return service, nil
}

// resolveWindow converts a same-day local window into UTC instants.
func resolveWindow(vErr *ValidationError, date, startTime, endTime string, offset wallclock.Offset) (time.Time, time.Time, bool) {
	d, dateOK := parseDateField(vErr, "date", date)
	if !dateOK && strings.TrimSpace(date) == "" {
		vErr.add("date", "is required")
	}
	startClock, startOK := parseClockField(vErr, "start_time", startTime)
	if !startOK && strings.TrimSpace(startTime) == "" {
		vErr.add("start_time", "is required")
	}
	endClock, endOK := parseClockField(vErr, "end_time", endTime)
	if !endOK && strings.TrimSpace(endTime) == "" {
		vErr.add("end_time", "is required")
	}
	if !dateOK || !startOK || !endOK {
		return time.Time{}, time.Time{}, false
	}
	if !startClock.Before(endClock) {
		vErr.add("end_time", "must be after start_time")
		return time.Time{}, time.Time{}, false
	}

	start, err := wallclock.ToAbsolute(d, startClock, offset)
	if err != nil {
		vErr.add("start_time", err.Error())
		return time.Time{}, time.Time{}, false
	}
	end, err := wallclock.ToAbsolute(d, endClock, offset)
	if err != nil {
		vErr.add("end_time", err.Error())
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
