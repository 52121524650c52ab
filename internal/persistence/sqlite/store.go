package sqlite

import (
	"context"
	"fmt"

	"github.com/example/childcare-backoffice/internal/persistence"
)

// Store bundles every repository over one connection pool.
type Store struct {
	Pool        *ConnectionPool
	Families    *FamilyRepository
	Services    *ServiceRepository
	Recurrences *RecurrenceRepository
	Sessions    *SessionRepository
	Blackouts   *BlackoutRepository
	Expenses    *ExpenseRepository
	Payments    *PaymentRepository
}

var (
	_ persistence.FamilyRepository     = (*FamilyRepository)(nil)
	_ persistence.ServiceRepository    = (*ServiceRepository)(nil)
	_ persistence.RecurrenceRepository = (*RecurrenceRepository)(nil)
	_ persistence.SessionRepository    = (*SessionRepository)(nil)
	_ persistence.BlackoutRepository   = (*BlackoutRepository)(nil)
	_ persistence.ExpenseRepository    = (*ExpenseRepository)(nil)
	_ persistence.PaymentRepository    = (*PaymentRepository)(nil)
)

// NewStore wires repositories onto an open pool.
func NewStore(pool *ConnectionPool) *Store {
	return &Store{
		Pool:        pool,
		Families:    NewFamilyRepository(pool),
		Services:    NewServiceRepository(pool),
		Recurrences: NewRecurrenceRepository(pool),
		Sessions:    NewSessionRepository(pool),
		Blackouts:   NewBlackoutRepository(pool),
		Expenses:    NewExpenseRepository(pool),
		Payments:    NewPaymentRepository(pool),
	}
}

// OpenStore opens the database at config.Path and applies migrations.
func OpenStore(ctx context.Context, config Config) (*Store, error) {
	pool, err := Open(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewStore(pool), nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if s == nil || s.Pool == nil {
		return nil
	}
	return s.Pool.Close()
}
