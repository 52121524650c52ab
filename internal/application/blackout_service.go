package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/childcare-backoffice/internal/blackout"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

// BlackoutRepository captures the persistence interactions needed for blackouts.
type BlackoutRepository interface {
	CreateBlackout(ctx context.Context, b Blackout) error
	ListBlackouts(ctx context.Context, from, to *time.Time) ([]Blackout, error)
	DeleteBlackout(ctx context.Context, id string) error
}

// CreateBlackoutParams wraps the blackout form and the caller's offset.
type CreateBlackoutParams struct {
	Input  BlackoutInput
	Offset wallclock.Offset
}

// BlackoutService manages unavailable periods.
type BlackoutService struct {
	blackouts   BlackoutRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBlackoutService wires dependencies for blackout operations.
func NewBlackoutService(blackouts BlackoutRepository, idGenerator func() string, now func() time.Time) *BlackoutService {
	return NewBlackoutServiceWithLogger(blackouts, idGenerator, now, nil)
}

// NewBlackoutServiceWithLogger wires dependencies and a base logger.
func NewBlackoutServiceWithLogger(blackouts BlackoutRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BlackoutService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BlackoutService{
		blackouts:   blackouts,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateBlackout resolves the local span with the caller's offset and stores
// it as a half-open UTC window.
func (s *BlackoutService) CreateBlackout(ctx context.Context, params CreateBlackoutParams) (Blackout, error) {
	if s == nil {
		return Blackout{}, fmt.Errorf("BlackoutService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "BlackoutService", "CreateBlackout")

	if !params.Offset.Valid() {
		logger.WarnContext(ctx, "blackout write without timezone offset")
		return Blackout{}, ErrTimezoneOffsetMissing
	}

	input := params.Input
	input.Reason = strings.TrimSpace(input.Reason)

	vErr := &ValidationError{}
	validateStruct(input, vErr)
	span := blackout.LocalSpan{}
	var ok bool
	if span.StartDate, ok = parseDateField(vErr, "start_date", input.StartDate); !ok {
		vErr.add("start_date", "is required")
	}
	if span.EndDate, ok = parseDateField(vErr, "end_date", input.EndDate); !ok {
		vErr.add("end_date", "is required")
	}
	if c, ok := parseClockField(vErr, "start_time", input.StartTime); ok {
		span.StartTime = &c
	}
	if c, ok := parseClockField(vErr, "end_time", input.EndTime); ok {
		span.EndTime = &c
	}
	if vErr.HasErrors() {
		logger.WarnContext(ctx, "blackout validation failed", "error_kind", ErrorKind(vErr))
		return Blackout{}, vErr
	}

	start, end, err := blackout.Resolve(span, params.Offset)
	if err != nil {
		if errors.Is(err, blackout.ErrInvalidPeriod) {
			vErr.add("end_date", "blackout must end after it starts")
			return Blackout{}, vErr
		}
		return Blackout{}, err
	}

	b := Blackout{
		ID:        s.idGenerator(),
		StartsAt:  start,
		EndsAt:    end,
		AllDay:    span.AllDay(),
		Reason:    input.Reason,
		CreatedAt: s.now(),
	}
	if err := s.blackouts.CreateBlackout(ctx, b); err != nil {
		mapped := mapRepoError(err)
		logger.ErrorContext(ctx, "failed to store blackout", "error", err, "error_kind", ErrorKind(mapped))
		return Blackout{}, mapped
	}

	logger.InfoContext(ctx, "blackout created", "blackout_id", b.ID, "all_day", b.AllDay)
	return b, nil
}

// ListBlackouts returns blackouts intersecting [from, to). Nil bounds are open.
func (s *BlackoutService) ListBlackouts(ctx context.Context, from, to *time.Time) ([]Blackout, error) {
	if from != nil && to != nil && !to.After(*from) {
		vErr := &ValidationError{}
		vErr.add("to", "must be after from")
		return nil, vErr
	}
	blackouts, err := s.blackouts.ListBlackouts(ctx, from, to)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return blackouts, nil
}

// DeleteBlackout removes a blackout. Sessions already skipped stay skipped.
func (s *BlackoutService) DeleteBlackout(ctx context.Context, id string) error {
	logger := serviceLogger(ctx, s.logger, "BlackoutService", "DeleteBlackout", "blackout_id", id)
	if err := s.blackouts.DeleteBlackout(ctx, id); err != nil {
		mapped := mapRepoError(err)
		logger.WarnContext(ctx, "blackout delete failed", "error_kind", ErrorKind(mapped))
		return mapped
	}
	logger.InfoContext(ctx, "blackout deleted")
	return nil
}
