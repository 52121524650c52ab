package application

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/example/childcare-backoffice/internal/lifecycle"
	"github.com/example/childcare-backoffice/internal/persistence"
)

// memoryStore is an in-process stand-in for the SQLite store that keeps the
// same contracts: one session per rule occurrence, version CAS, and atomic
// stamping.
type memoryStore struct {
	mu        sync.Mutex
	families  map[string]Family
	rules     map[string]Rule
	services  map[string]Service
	children  map[string]string
	sessions  map[string]Session
	blackouts []Blackout
	expenses  map[string][]Expense
	payments  map[string]Payment
	// occurrences maps a rule ID and generated start to the session holding it.
	occurrences map[string]string

	ruleErr   error
	insertErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		families: map[string]Family{},
		rules:    map[string]Rule{},
		services: map[string]Service{},
		children: map[string]string{},
		sessions: map[string]Session{},
		expenses: map[string][]Expense{},
		payments: map[string]Payment{},

		occurrences: map[string]string{},
	}
}

func occurrenceKey(ruleID string, start time.Time) string {
	return ruleID + "@" + strconv.FormatInt(start.Unix(), 10)
}

func cloneSession(s Session) Session {
	s.ChildIDs = append([]string(nil), s.ChildIDs...)
	if s.PaymentID != nil {
		id := *s.PaymentID
		s.PaymentID = &id
	}
	if s.SourceRuleID != nil {
		id := *s.SourceRuleID
		s.SourceRuleID = &id
	}
	return s
}

func (m *memoryStore) addChild(familyID, childID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children[childID] = familyID
}

func (m *memoryStore) addService(service Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service.ID] = service
}

func (m *memoryStore) putSession(session Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.Version == 0 {
		session.Version = 1
	}
	m.sessions[session.ID] = cloneSession(session)
}

func (m *memoryStore) UpsertRule(ctx context.Context, rule Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ruleErr != nil {
		return m.ruleErr
	}
	m.rules[rule.ID] = rule
	return nil
}

func (m *memoryStore) GetRule(ctx context.Context, id string) (Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return Rule{}, persistence.ErrNotFound
	}
	return rule, nil
}

func (m *memoryStore) DeleteRule(ctx context.Context, id string, now time.Time, cascade bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return 0, persistence.ErrNotFound
	}
	var future []string
	for sid, s := range m.sessions {
		if s.SourceRuleID != nil && *s.SourceRuleID == id && s.Status == lifecycle.StatusScheduled &&
			s.PaymentID == nil && !s.Start.Before(now) {
			future = append(future, sid)
		}
	}
	if len(future) > 0 && !cascade {
		return 0, persistence.ErrReferenced
	}
	for _, sid := range future {
		s := m.sessions[sid]
		s.Status = lifecycle.StatusCancelled
		s.Version++
		m.sessions[sid] = s
	}
	for sid, s := range m.sessions {
		if s.SourceRuleID != nil && *s.SourceRuleID == id {
			s.SourceRuleID = nil
			m.sessions[sid] = s
		}
	}
	delete(m.rules, id)
	return len(future), nil
}

func (m *memoryStore) GetService(ctx context.Context, id string) (Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	service, ok := m.services[id]
	if !ok {
		return Service{}, persistence.ErrNotFound
	}
	return service, nil
}

func (m *memoryStore) UpsertService(ctx context.Context, service Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service.ID] = service
	return nil
}

func (m *memoryStore) ListServices(ctx context.Context) ([]Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Service, 0, len(m.services))
	for _, service := range m.services {
		out = append(out, service)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) CreateFamily(ctx context.Context, family Family) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.families[family.ID]; ok {
		return persistence.ErrDuplicate
	}
	family.Children = nil
	m.families[family.ID] = family
	return nil
}

func (m *memoryStore) GetFamily(ctx context.Context, id string) (Family, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	family, ok := m.families[id]
	if !ok {
		return Family{}, persistence.ErrNotFound
	}
	family.Children = append([]Child{}, family.Children...)
	return family, nil
}

func (m *memoryStore) CreateChild(ctx context.Context, child Child) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	family, ok := m.families[child.FamilyID]
	if !ok {
		return persistence.ErrForeignKeyViolation
	}
	family.Children = append(family.Children, child)
	m.families[child.FamilyID] = family
	m.children[child.ID] = child.FamilyID
	return nil
}

func (m *memoryStore) ListRulesForFamily(ctx context.Context, familyID string) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Rule
	for _, rule := range m.rules {
		if rule.FamilyID == familyID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) MissingChildIDs(ctx context.Context, familyID string, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing []string
	for _, id := range ids {
		if m.children[id] != familyID {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (m *memoryStore) InsertGeneratedSessions(ctx context.Context, sessions []Session) ([]Session, []Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return nil, nil, m.insertErr
	}
	var created, existing []Session
	for _, candidate := range sessions {
		key := occurrenceKey(*candidate.SourceRuleID, candidate.Start)
		if id, ok := m.occurrences[key]; ok {
			if s, held := m.sessions[id]; held && s.SourceRuleID != nil && *s.SourceRuleID == *candidate.SourceRuleID {
				existing = append(existing, cloneSession(s))
				continue
			}
		}
		candidate.Version = 1
		m.sessions[candidate.ID] = cloneSession(candidate)
		m.occurrences[key] = candidate.ID
		created = append(created, cloneSession(candidate))
	}
	return created, existing, nil
}

func (m *memoryStore) CreateSession(ctx context.Context, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return persistence.ErrDuplicate
	}
	session.Version = 1
	m.sessions[session.ID] = cloneSession(session)
	return nil
}

func (m *memoryStore) GetSession(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *memoryStore) UpdateSession(ctx context.Context, session Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[session.ID]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	if stored.Version != session.Version {
		return Session{}, persistence.ErrStaleWrite
	}
	session.PaymentID = stored.PaymentID
	session.Version = stored.Version + 1
	m.sessions[session.ID] = cloneSession(session)
	return cloneSession(session), nil
}

func (m *memoryStore) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if filter.FamilyID != "" && s.FamilyID != filter.FamilyID {
			continue
		}
		if filter.RuleID != "" && (s.SourceRuleID == nil || *s.SourceRuleID != filter.RuleID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, s.Status) {
			continue
		}
		if filter.Confirmed != nil && s.Confirmed != *filter.Confirmed {
			continue
		}
		if filter.Unpaid && s.PaymentID != nil {
			continue
		}
		if filter.From != nil && s.Start.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !s.Start.Before(*filter.To) {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func containsStatus(statuses []lifecycle.Status, target lifecycle.Status) bool {
	for _, s := range statuses {
		if s == target {
			return true
		}
	}
	return false
}

func (m *memoryStore) ListSessionsByIDs(ctx context.Context, ids []string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok {
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

func (m *memoryStore) CreateBlackout(ctx context.Context, b Blackout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blackouts = append(m.blackouts, b)
	return nil
}

func (m *memoryStore) ListBlackouts(ctx context.Context, from, to *time.Time) ([]Blackout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Blackout
	for _, b := range m.blackouts {
		if from != nil && !b.EndsAt.After(*from) {
			continue
		}
		if to != nil && !b.StartsAt.Before(*to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *memoryStore) DeleteBlackout(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.blackouts {
		if b.ID == id {
			m.blackouts = append(m.blackouts[:i], m.blackouts[i+1:]...)
			return nil
		}
	}
	return persistence.ErrNotFound
}

func (m *memoryStore) CreateExpense(ctx context.Context, expense Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[expense.SessionID]
	if !ok {
		return persistence.ErrNotFound
	}
	if s.PaymentID != nil || s.Status == lifecycle.StatusCancelled {
		return persistence.ErrSessionLocked
	}
	m.expenses[expense.SessionID] = append(m.expenses[expense.SessionID], expense)
	s.Version++
	m.sessions[s.ID] = s
	return nil
}

func (m *memoryStore) ListExpensesForSessions(ctx context.Context, ids []string) (map[string][]Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]Expense, len(ids))
	for _, id := range ids {
		if expenses, ok := m.expenses[id]; ok {
			out[id] = append([]Expense(nil), expenses...)
		}
	}
	return out, nil
}

func (m *memoryStore) RecordPayment(ctx context.Context, payment Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range payment.SessionIDs {
		s, ok := m.sessions[id]
		if !ok {
			return &persistence.StampError{SessionID: id, Err: persistence.ErrNotFound}
		}
		if s.PaymentID != nil {
			return &persistence.StampError{SessionID: id, PaymentID: *s.PaymentID, Err: persistence.ErrAlreadyStamped}
		}
		if s.FamilyID != payment.FamilyID || !s.Billable() {
			return &persistence.StampError{SessionID: id, Err: persistence.ErrNotEligible}
		}
		if payment.SessionVersions != nil && payment.SessionVersions[i] != s.Version {
			return &persistence.StampError{SessionID: id, Err: persistence.ErrStaleWrite}
		}
	}
	for _, id := range payment.SessionIDs {
		s := m.sessions[id]
		paymentID := payment.ID
		s.PaymentID = &paymentID
		s.Version++
		m.sessions[id] = s
	}
	m.payments[payment.ID] = payment
	return nil
}

func (m *memoryStore) GetPayment(ctx context.Context, id string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return Payment{}, persistence.ErrNotFound
	}
	return p, nil
}

func (m *memoryStore) ListPayments(ctx context.Context, familyID string) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for _, p := range m.payments {
		if p.FamilyID == familyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) CancelPayment(ctx context.Context, id string, now time.Time) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return Payment{}, persistence.ErrNotFound
	}
	if p.Status == PaymentStatusCancelled {
		return p, nil
	}
	p.Status = PaymentStatusCancelled
	p.UpdatedAt = now
	m.payments[id] = p
	for sid, s := range m.sessions {
		if s.PaymentID != nil && *s.PaymentID == id {
			s.PaymentID = nil
			s.Version++
			m.sessions[sid] = s
		}
	}
	return p, nil
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
