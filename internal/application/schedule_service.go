package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/childcare-backoffice/internal/blackout"
	"github.com/example/childcare-backoffice/internal/lifecycle"
	"github.com/example/childcare-backoffice/internal/recurrence"
)

// maxExpansionDays bounds a single expansion request.
const maxExpansionDays = 366

// RuleReader exposes rule lookups.
type RuleReader interface {
	GetRule(ctx context.Context, id string) (Rule, error)
}

// GeneratedSessionWriter persists an expansion batch atomically. A candidate
// whose rule occurrence already has a session, even one since moved by an
// edit, is not inserted; the stored sessions come back in existing, in
// candidate order.
type GeneratedSessionWriter interface {
	InsertGeneratedSessions(ctx context.Context, sessions []Session) (created []Session, existing []Session, err error)
}

// BlackoutLister returns blackouts intersecting [from, to).
type BlackoutLister interface {
	ListBlackouts(ctx context.Context, from, to *time.Time) ([]Blackout, error)
}

// ScheduleService materializes recurrence rules into sessions.
type ScheduleService struct {
	rules       RuleReader
	services    ServiceCatalog
	sessions    GeneratedSessionWriter
	blackouts   BlackoutLister
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewScheduleService wires dependencies for schedule expansion.
func NewScheduleService(rules RuleReader, services ServiceCatalog, sessions GeneratedSessionWriter, blackouts BlackoutLister, idGenerator func() string, now func() time.Time) *ScheduleService {
	return NewScheduleServiceWithLogger(rules, services, sessions, blackouts, idGenerator, now, nil)
}

// NewScheduleServiceWithLogger wires dependencies and a base logger.
func NewScheduleServiceWithLogger(rules RuleReader, services ServiceCatalog, sessions GeneratedSessionWriter, blackouts BlackoutLister, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ScheduleService{
		rules:       rules,
		services:    services,
		sessions:    sessions,
		blackouts:   blackouts,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// ExpandSchedule creates a SCHEDULED, unconfirmed session for every
// occurrence of the rule between RangeStart and RangeEnd (inclusive civil
// dates on the rule's calendar). Occurrences overlapping a blackout or an
// already generated session are reported as skipped. Running the same
// expansion twice creates nothing the second time.
func (s *ScheduleService) ExpandSchedule(ctx context.Context, params ExpandScheduleParams) (ExpansionResult, error) {
	if s == nil {
		return ExpansionResult{}, fmt.Errorf("ScheduleService is nil")
	}
	if s.rules == nil || s.services == nil || s.sessions == nil {
		return ExpansionResult{}, fmt.Errorf("schedule repositories not configured")
	}
	logger := serviceLogger(ctx, s.logger, "ScheduleService", "ExpandSchedule",
		"rule_id", params.RuleID, "range_start", params.RangeStart.String(), "range_end", params.RangeEnd.String())

	if vErr := validateExpansionRange(params); vErr.HasErrors() {
		logger.WarnContext(ctx, "expansion range invalid", "error_kind", ErrorKind(vErr))
		return ExpansionResult{}, vErr
	}

	rule, err := s.rules.GetRule(ctx, params.RuleID)
	if err != nil {
		mapped := mapRepoError(err)
		logger.WarnContext(ctx, "rule lookup failed", "error_kind", ErrorKind(mapped))
		return ExpansionResult{}, mapped
	}

	service, err := s.services.GetService(ctx, rule.ServiceID)
	if err != nil {
		mapped := mapRepoError(err)
		logger.ErrorContext(ctx, "service lookup failed", "error", err, "error_kind", ErrorKind(mapped))
		return ExpansionResult{}, mapped
	}
	if service.RequiresChildren && len(rule.ChildIDs) == 0 {
		vErr := &ValidationError{}
		vErr.add("child_ids", "service requires at least one child")
		logger.WarnContext(ctx, "rule has no children for a per-child service", "service_id", service.ID)
		return ExpansionResult{}, vErr
	}

	occurrences, err := recurrence.Expand(rule.Recurrence(), params.RangeStart, params.RangeEnd)
	if err != nil {
		logger.ErrorContext(ctx, "rule expansion failed", "error", err)
		return ExpansionResult{}, fmt.Errorf("expand rule %s: %w", rule.ID, err)
	}
	if len(occurrences) == 0 {
		logger.InfoContext(ctx, "expansion produced no occurrences")
		return ExpansionResult{Created: []Session{}, Skipped: []SkippedOccurrence{}}, nil
	}

	index, err := s.blackoutIndex(ctx, occurrences)
	if err != nil {
		logger.ErrorContext(ctx, "blackout lookup failed", "error", err)
		return ExpansionResult{}, err
	}

	rate := service.DefaultHourlyRate
	if rule.HourlyRate != nil {
		rate = *rule.HourlyRate
	}

	now := s.now()
	result := ExpansionResult{Created: []Session{}, Skipped: []SkippedOccurrence{}}
	candidates := make([]Session, 0, len(occurrences))
	byStart := make(map[int64]recurrence.Occurrence, len(occurrences))

	for _, occurrence := range occurrences {
		if period, blocked := index.Find(occurrence.Start, occurrence.End); blocked {
			result.Skipped = append(result.Skipped, SkippedOccurrence{
				Date:       occurrence.Date,
				Start:      occurrence.Start,
				End:        occurrence.End,
				Reason:     SkipReasonBlackedOut,
				BlackoutID: period.ID,
			})
			continue
		}

		ruleID := rule.ID
		byStart[occurrence.Start.Unix()] = occurrence
		candidates = append(candidates, Session{
			ID:           s.idGenerator(),
			FamilyID:     rule.FamilyID,
			ServiceID:    rule.ServiceID,
			SourceRuleID: &ruleID,
			Start:        occurrence.Start,
			End:          occurrence.End,
			Status:       lifecycle.StatusScheduled,
			Confirmed:    false,
			HourlyRate:   rate,
			ChildIDs:     append([]string(nil), rule.ChildIDs...),
			Notes:        rule.Notes,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if len(candidates) > 0 {
		created, existing, err := s.sessions.InsertGeneratedSessions(ctx, candidates)
		if err != nil {
			mapped := mapRepoError(err)
			logger.ErrorContext(ctx, "failed to store generated sessions", "error", err, "error_kind", ErrorKind(mapped))
			return ExpansionResult{}, mapped
		}
		result.Created = append(result.Created, created...)
		createdIDs := make(map[string]struct{}, len(created))
		for _, session := range created {
			createdIDs[session.ID] = struct{}{}
		}
		next := 0
		for _, candidate := range candidates {
			if _, ok := createdIDs[candidate.ID]; ok || next >= len(existing) {
				continue
			}
			occurrence := byStart[candidate.Start.Unix()]
			result.Skipped = append(result.Skipped, SkippedOccurrence{
				Date:              occurrence.Date,
				Start:             occurrence.Start,
				End:               occurrence.End,
				Reason:            SkipReasonAlreadyExists,
				ExistingSessionID: existing[next].ID,
			})
			next++
		}
	}

	sort.SliceStable(result.Skipped, func(i, j int) bool {
		return result.Skipped[i].Start.Before(result.Skipped[j].Start)
	})

	logger.InfoContext(ctx, "expansion completed",
		"occurrences", len(occurrences),
		"created", len(result.Created),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

func (s *ScheduleService) blackoutIndex(ctx context.Context, occurrences []recurrence.Occurrence) (*blackout.Index, error) {
	if s.blackouts == nil {
		return blackout.NewIndex(nil), nil
	}
	from := occurrences[0].Start
	to := occurrences[len(occurrences)-1].End
	stored, err := s.blackouts.ListBlackouts(ctx, &from, &to)
	if err != nil {
		return nil, fmt.Errorf("list blackouts: %w", err)
	}
	periods := make([]blackout.Period, 0, len(stored))
	for _, b := range stored {
		periods = append(periods, b.period())
	}
	return blackout.NewIndex(periods), nil
}

func validateExpansionRange(params ExpandScheduleParams) *ValidationError {
	vErr := &ValidationError{}
	if params.RuleID == "" {
		vErr.add("rule_id", "is required")
	}
	if params.RangeStart.IsZero() {
		vErr.add("range_start", "is required")
	}
	if params.RangeEnd.IsZero() {
		vErr.add("range_end", "is required")
	}
	if vErr.HasErrors() {
		return vErr
	}
	if params.RangeEnd.Before(params.RangeStart) {
		vErr.add("range_end", "must not be before range_start")
	} else if params.RangeEnd.DaysSince(params.RangeStart) >= maxExpansionDays {
		vErr.add("range_end", fmt.Sprintf("range must span fewer than %d days", maxExpansionDays))
	}
	return vErr
}
