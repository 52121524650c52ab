package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/childcare-backoffice/internal/recurrence"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

// RuleRepository captures the persistence interactions needed for rules.
type RuleRepository interface {
	UpsertRule(ctx context.Context, rule Rule) error
	GetRule(ctx context.Context, id string) (Rule, error)
	DeleteRule(ctx context.Context, id string, now time.Time, cascade bool) (int, error)
}

// ServiceCatalog exposes service lookups.
type ServiceCatalog interface {
	GetService(ctx context.Context, id string) (Service, error)
}

// ChildDirectory exposes child membership checks.
type ChildDirectory interface {
	MissingChildIDs(ctx context.Context, familyID string, ids []string) ([]string, error)
}

// RuleService validates and stores recurrence rules.
type RuleService struct {
	rules       RuleRepository
	services    ServiceCatalog
	children    ChildDirectory
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRuleService wires dependencies for rule operations.
func NewRuleService(rules RuleRepository, services ServiceCatalog, children ChildDirectory, idGenerator func() string, now func() time.Time) *RuleService {
	return NewRuleServiceWithLogger(rules, services, children, idGenerator, now, nil)
}

// NewRuleServiceWithLogger wires dependencies and a base logger.
func NewRuleServiceWithLogger(rules RuleRepository, services ServiceCatalog, children ChildDirectory, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RuleService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RuleService{
		rules:       rules,
		services:    services,
		children:    children,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateOrUpdateRule validates the rule and stores it with the caller's
// offset. An empty RuleID creates a new rule.
func (s *RuleService) CreateOrUpdateRule(ctx context.Context, params SaveRuleParams) (Rule, error) {
	if s == nil {
		return Rule{}, fmt.Errorf("RuleService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "RuleService", "CreateOrUpdateRule", "rule_id", params.RuleID)

	if !params.Offset.Valid() {
		logger.WarnContext(ctx, "rule write without timezone offset")
		return Rule{}, ErrTimezoneOffsetMissing
	}

	input := normalizeRuleInput(params.Input)
	rule, vErr := buildRule(input, params.Offset)
	if vErr.HasErrors() {
		logger.WarnContext(ctx, "rule validation failed", "error_kind", ErrorKind(vErr))
		return Rule{}, vErr
	}

	if err := s.ensureReferences(ctx, rule); err != nil {
		logger.WarnContext(ctx, "rule references invalid", "error_kind", ErrorKind(err))
		return Rule{}, err
	}

	now := s.now()
	if params.RuleID == "" {
		rule.ID = s.idGenerator()
		rule.CreatedAt = now
	} else {
		existing, err := s.rules.GetRule(ctx, params.RuleID)
		if err != nil {
			mapped := mapRepoError(err)
			logger.WarnContext(ctx, "rule lookup failed", "error_kind", ErrorKind(mapped))
			return Rule{}, mapped
		}
		if existing.FamilyID != rule.FamilyID {
			vErr := &ValidationError{}
			vErr.add("family_id", "cannot be changed")
			return Rule{}, vErr
		}
		rule.ID = existing.ID
		rule.CreatedAt = existing.CreatedAt
	}
	rule.UpdatedAt = now

	if err := s.rules.UpsertRule(ctx, rule); err != nil {
		mapped := mapRepoError(err)
		logger.ErrorContext(ctx, "failed to store rule", "error", err, "error_kind", ErrorKind(mapped))
		return Rule{}, mapped
	}

	logger.InfoContext(ctx, "rule stored", "rule_id", rule.ID, "kind", string(rule.Pattern.Kind()), "offset", rule.Offset.String())
	return rule, nil
}

// GetRule returns a stored rule.
func (s *RuleService) GetRule(ctx context.Context, id string) (Rule, error) {
	rule, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return Rule{}, mapRepoError(err)
	}
	return rule, nil
}

// DeleteRule removes a rule. Future unpaid SCHEDULED sessions generated by
// the rule block the delete with ErrRuleInUse unless cascade is set, in
// which case they are cancelled. It returns the number cancelled.
func (s *RuleService) DeleteRule(ctx context.Context, id string, cascade bool) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("RuleService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "RuleService", "DeleteRule", "rule_id", id, "cascade", cascade)

	cancelled, err := s.rules.DeleteRule(ctx, id, s.now(), cascade)
	if err != nil {
		mapped := mapRepoError(err)
		logger.WarnContext(ctx, "rule delete refused", "error", err, "error_kind", ErrorKind(mapped))
		return 0, mapped
	}

	logger.InfoContext(ctx, "rule deleted", "cancelled_sessions", cancelled)
	return cancelled, nil
}

func (s *RuleService) ensureReferences(ctx context.Context, rule Rule) error {
	vErr := &ValidationError{}

	if s.services != nil {
		if _, err := s.services.GetService(ctx, rule.ServiceID); err != nil {
			if !errors.Is(mapRepoError(err), ErrNotFound) {
				return err
			}
			vErr.add("service_id", "service does not exist")
		}
	}

	if s.children != nil && len(rule.ChildIDs) > 0 {
		missing, err := s.children.MissingChildIDs(ctx, rule.FamilyID, rule.ChildIDs)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			vErr.add("child_ids", "children not in family: "+strings.Join(missing, ", "))
		}
	}

	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func normalizeRuleInput(input RuleInput) RuleInput {
	input.FamilyID = strings.TrimSpace(input.FamilyID)
	input.ServiceID = strings.TrimSpace(input.ServiceID)
	input.Kind = strings.ToUpper(strings.TrimSpace(input.Kind))
	input.ChildIDs = sortStrings(uniqueStrings(input.ChildIDs))
	input.Notes = strings.TrimSpace(input.Notes)
	return input
}

// buildRule parses the input into a Rule and collects every field problem.
func buildRule(input RuleInput, offset wallclock.Offset) (Rule, *ValidationError) {
	vErr := &ValidationError{}
	validateStruct(input, vErr)

	start, startOK := parseClockField(vErr, "start_time", input.StartTime)
	end, endOK := parseClockField(vErr, "end_time", input.EndTime)
	startDate, startDateOK := parseDateField(vErr, "start_date", input.StartDate)

	var endDate *wallclock.Date
	if d, ok := parseDateField(vErr, "end_date", input.EndDate); ok {
		endDate = &d
	}

	if input.HourlyRate != nil && input.HourlyRate.IsNegative() {
		vErr.add("hourly_rate", "must not be negative")
	}

	var pattern recurrence.Pattern
	if _, kindErr := vErr.FieldErrors["kind"]; !kindErr {
		p, err := recurrence.NewPattern(recurrence.Kind(input.Kind), recurrence.WeekdaysOf(input.Weekdays...))
		if err != nil {
			vErr.add("kind", "is invalid")
		} else {
			pattern = p
		}
	}

	rule := Rule{
		FamilyID:   input.FamilyID,
		ServiceID:  input.ServiceID,
		Pattern:    pattern,
		Window:     recurrence.TimeWindow{Start: start, End: end},
		Validity:   recurrence.Validity{StartDate: startDate, EndDate: endDate},
		Offset:     offset,
		ChildIDs:   input.ChildIDs,
		HourlyRate: input.HourlyRate,
		Notes:      input.Notes,
	}

	if pattern != nil && startOK && endOK && startDateOK {
		switch err := recurrence.Validate(rule.Recurrence()); {
		case errors.Is(err, recurrence.ErrInvalidWindow):
			vErr.add("end_time", "must be after start_time")
		case errors.Is(err, recurrence.ErrInvalidValidity):
			vErr.add("end_date", "must not be before start_date")
		case errors.Is(err, recurrence.ErrNoWeekdays):
			vErr.add("weekdays", "at least one weekday is required")
		case err != nil:
			vErr.add("rule", err.Error())
		}
	}

	return rule, vErr
}
