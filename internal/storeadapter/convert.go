package storeadapter

import (
	"fmt"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/billing"
	"github.com/example/childcare-backoffice/internal/lifecycle"
	"github.com/example/childcare-backoffice/internal/persistence"
	"github.com/example/childcare-backoffice/internal/recurrence"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

func toApplicationService(model persistence.Service) (application.Service, error) {
	mode, err := billing.ParsePricingMode(model.PricingMode)
	if err != nil {
		return application.Service{}, fmt.Errorf("service %s: %w", model.ID, err)
	}
	return application.Service{
		ID:                model.ID,
		Name:              model.Name,
		PricingMode:       mode,
		RequiresChildren:  model.RequiresChildren,
		DefaultHourlyRate: model.DefaultHourlyRate,
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	}, nil
}

func toApplicationFamily(model persistence.Family, children []persistence.Child) application.Family {
	family := application.Family{
		ID:        model.ID,
		Name:      model.Name,
		Children:  make([]application.Child, 0, len(children)),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
	for _, child := range children {
		family.Children = append(family.Children, application.Child{
			ID:        child.ID,
			FamilyID:  child.FamilyID,
			Name:      child.Name,
			CreatedAt: child.CreatedAt,
		})
	}
	return family
}

func toPersistenceRule(rule application.Rule) persistence.RecurrenceRule {
	model := persistence.RecurrenceRule{
		ID:                 rule.ID,
		FamilyID:           rule.FamilyID,
		ServiceID:          rule.ServiceID,
		StartTime:          rule.Window.Start,
		EndTime:            rule.Window.End,
		StartsOn:           rule.Validity.StartDate,
		EndsOn:             cloneDate(rule.Validity.EndDate),
		OffsetMinutes:      rule.Offset.Minutes(),
		ChildIDs:           append([]string(nil), rule.ChildIDs...),
		HourlyRateOverride: rule.HourlyRate,
		Notes:              rule.Notes,
		CreatedAt:          rule.CreatedAt,
		UpdatedAt:          rule.UpdatedAt,
	}
	if rule.Pattern != nil {
		model.Kind = string(rule.Pattern.Kind())
		model.Weekdays = uint8(rule.Pattern.Weekdays())
	}
	return model
}

func toApplicationRule(model persistence.RecurrenceRule) (application.Rule, error) {
	pattern, err := recurrence.NewPattern(recurrence.Kind(model.Kind), recurrence.WeekdaySet(model.Weekdays))
	if err != nil {
		return application.Rule{}, fmt.Errorf("rule %s: %w", model.ID, err)
	}
	offset, err := wallclock.OffsetMinutes(model.OffsetMinutes)
	if err != nil {
		return application.Rule{}, fmt.Errorf("rule %s: %w", model.ID, err)
	}
	return application.Rule{
		ID:         model.ID,
		FamilyID:   model.FamilyID,
		ServiceID:  model.ServiceID,
		Pattern:    pattern,
		Window:     recurrence.TimeWindow{Start: model.StartTime, End: model.EndTime},
		Validity:   recurrence.Validity{StartDate: model.StartsOn, EndDate: cloneDate(model.EndsOn)},
		Offset:     offset,
		ChildIDs:   append([]string(nil), model.ChildIDs...),
		HourlyRate: model.HourlyRateOverride,
		Notes:      model.Notes,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}, nil
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:             session.ID,
		FamilyID:       session.FamilyID,
		ServiceID:      session.ServiceID,
		SourceRuleID:   cloneString(session.SourceRuleID),
		ScheduledStart: session.Start,
		ScheduledEnd:   session.End,
		Status:         string(session.Status),
		IsConfirmed:    session.Confirmed,
		HourlyRate:     session.HourlyRate,
		ChildIDs:       append([]string(nil), session.ChildIDs...),
		PaymentID:      cloneString(session.PaymentID),
		Notes:          session.Notes,
		Version:        session.Version,
		CreatedAt:      session.CreatedAt,
		UpdatedAt:      session.UpdatedAt,
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:           model.ID,
		FamilyID:     model.FamilyID,
		ServiceID:    model.ServiceID,
		SourceRuleID: cloneString(model.SourceRuleID),
		Start:        model.ScheduledStart,
		End:          model.ScheduledEnd,
		Status:       lifecycle.Status(model.Status),
		Confirmed:    model.IsConfirmed,
		HourlyRate:   model.HourlyRate,
		ChildIDs:     append([]string(nil), model.ChildIDs...),
		PaymentID:    cloneString(model.PaymentID),
		Notes:        model.Notes,
		Version:      model.Version,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

func toApplicationSessions(models []persistence.Session) []application.Session {
	if len(models) == 0 {
		return nil
	}
	sessions := make([]application.Session, 0, len(models))
	for _, model := range models {
		sessions = append(sessions, toApplicationSession(model))
	}
	return sessions
}

func toPersistenceSessionFilter(filter application.SessionFilter) persistence.SessionFilter {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses = append(statuses, string(status))
	}
	return persistence.SessionFilter{
		FamilyID:     filter.FamilyID,
		SourceRuleID: filter.RuleID,
		Statuses:     statuses,
		StartsAfter:  filter.From,
		StartsBefore: filter.To,
		Confirmed:    filter.Confirmed,
		Unpaid:       filter.Unpaid,
	}
}

func toApplicationBlackout(model persistence.Blackout) application.Blackout {
	return application.Blackout{
		ID:        model.ID,
		StartsAt:  model.StartsAt,
		EndsAt:    model.EndsAt,
		AllDay:    model.AllDay,
		Reason:    model.Reason,
		CreatedAt: model.CreatedAt,
	}
}

func toPersistenceBlackout(b application.Blackout) persistence.Blackout {
	return persistence.Blackout{
		ID:        b.ID,
		StartsAt:  b.StartsAt,
		EndsAt:    b.EndsAt,
		AllDay:    b.AllDay,
		Reason:    b.Reason,
		CreatedAt: b.CreatedAt,
	}
}

func toApplicationExpense(model persistence.Expense) application.Expense {
	return application.Expense{
		ID:          model.ID,
		SessionID:   model.SessionID,
		Description: model.Description,
		Amount:      model.Amount,
		CreatedAt:   model.CreatedAt,
	}
}

func toPersistencePayment(payment application.Payment) persistence.Payment {
	return persistence.Payment{
		ID:              payment.ID,
		FamilyID:        payment.FamilyID,
		Amount:          payment.Amount,
		Tips:            payment.Tips,
		Method:          payment.Method,
		Status:          string(payment.Status),
		Notes:           payment.Notes,
		SessionIDs:      append([]string(nil), payment.SessionIDs...),
		SessionVersions: append([]int64(nil), payment.SessionVersions...),
		PaidAt:          payment.PaidAt,
		CreatedAt:       payment.CreatedAt,
		UpdatedAt:       payment.UpdatedAt,
	}
}

func toApplicationPayment(model persistence.Payment) application.Payment {
	return application.Payment{
		ID:         model.ID,
		FamilyID:   model.FamilyID,
		Amount:     model.Amount,
		Tips:       model.Tips,
		Method:     model.Method,
		Status:     application.PaymentStatus(model.Status),
		Notes:      model.Notes,
		SessionIDs: append([]string(nil), model.SessionIDs...),
		PaidAt:     model.PaidAt,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneDate(value *wallclock.Date) *wallclock.Date {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
