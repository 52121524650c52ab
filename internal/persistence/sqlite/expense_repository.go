package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/childcare-backoffice/internal/persistence"
)

// ExpenseRepository implements persistence.ExpenseRepository using SQLite
type ExpenseRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewExpenseRepository creates a new SQLite expense repository
func NewExpenseRepository(pool *ConnectionPool) *ExpenseRepository {
	return &ExpenseRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateExpense attaches an expense to a session that is neither paid nor cancelled.
func (r *ExpenseRepository) CreateExpense(ctx context.Context, expense persistence.Expense) error {
	if expense.ID == "" || expense.SessionID == "" || strings.TrimSpace(expense.Description) == "" {
		return persistence.ErrConstraintViolation
	}
	if expense.Amount.IsNegative() {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var status string
		var paymentID sql.NullString
		err := r.helper.QueryRowTx(ctx, tx, "SELECT status, payment_id FROM sessions WHERE id = ?", expense.SessionID).Scan(&status, &paymentID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if paymentID.Valid || status == "CANCELLED" {
			return persistence.ErrSessionLocked
		}

		_, err = r.helper.ExecTx(ctx, tx,
			"INSERT INTO expenses (id, session_id, description, amount, created_at) VALUES (?, ?, ?, ?, ?)",
			expense.ID,
			expense.SessionID,
			strings.TrimSpace(expense.Description),
			formatMoney(expense.Amount),
			formatTime(expense.CreatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		// Bump the session version so concurrent edits notice the new charge.
		_, err = r.helper.ExecTx(ctx, tx, "UPDATE sessions SET version = version + 1, updated_at = ? WHERE id = ?",
			formatTime(expense.CreatedAt), expense.SessionID)
		return r.mapper.MapError(err)
	})
}

// ListExpensesForSessions groups expenses by session ID
func (r *ExpenseRepository) ListExpensesForSessions(ctx context.Context, sessionIDs []string) (map[string][]persistence.Expense, error) {
	ids := dedupe(sessionIDs)
	expenses := make(map[string][]persistence.Expense, len(ids))
	if len(ids) == 0 {
		return expenses, nil
	}

	rows, err := r.helper.Query(ctx, `
		SELECT id, session_id, description, amount, created_at
		FROM expenses
		WHERE session_id IN (`+placeholders(len(ids))+`)
		ORDER BY created_at ASC, id ASC
	`, stringArgs(ids)...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var e persistence.Expense
		var createdAt string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Description, &e.Amount, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		expenses[e.SessionID] = append(expenses[e.SessionID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return expenses, nil
}
