package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/childcare-backoffice/internal/persistence"
)

// PaymentRepository implements persistence.PaymentRepository using SQLite
type PaymentRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewPaymentRepository creates a new SQLite payment ledger repository
func NewPaymentRepository(pool *ConnectionPool) *PaymentRepository {
	return &PaymentRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const paymentColumns = "id, family_id, amount, tips, method, status, notes, paid_at, created_at, updated_at"

// RecordPayment inserts the payment and stamps its sessions in one
// transaction. Each stamp is a compare-and-set on payment_id, so two
// concurrent payments naming the same session cannot both commit. When
// SessionVersions is set each stamp also requires the priced version.
func (r *PaymentRepository) RecordPayment(ctx context.Context, payment persistence.Payment) error {
	if payment.ID == "" || payment.FamilyID == "" || len(payment.SessionIDs) == 0 {
		return persistence.ErrConstraintViolation
	}
	pinned := payment.SessionVersions != nil
	if pinned && len(payment.SessionVersions) != len(payment.SessionIDs) {
		return persistence.ErrConstraintViolation
	}
	if payment.Amount.IsNegative() || payment.Tips.IsNegative() {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := r.helper.ExecTx(ctx, tx, `
			INSERT INTO payments (`+paymentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			payment.ID,
			payment.FamilyID,
			formatMoney(payment.Amount),
			formatMoney(payment.Tips),
			payment.Method,
			payment.Status,
			payment.Notes,
			nullTime(payment.PaidAt),
			formatTime(payment.CreatedAt),
			formatTime(payment.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		for position, sessionID := range payment.SessionIDs {
			query := `
				UPDATE sessions
				SET payment_id = ?, version = version + 1, updated_at = ?
				WHERE id = ? AND family_id = ? AND payment_id IS NULL
					AND status = 'COMPLETED' AND is_confirmed = 1`
			args := []any{payment.ID, formatTime(payment.UpdatedAt), sessionID, payment.FamilyID}
			if pinned {
				query += " AND version = ?"
				args = append(args, payment.SessionVersions[position])
			}

			result, err := r.helper.ExecTx(ctx, tx, query, args...)
			if err != nil {
				return r.mapper.MapError(err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if affected == 0 {
				return r.diagnoseStamp(ctx, tx, sessionID, payment.FamilyID)
			}

			_, err = r.helper.ExecTx(ctx, tx,
				"INSERT INTO payment_sessions (payment_id, session_id, position) VALUES (?, ?, ?)",
				payment.ID, sessionID, position)
			if err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// diagnoseStamp explains why a stamp update matched no row.
func (r *PaymentRepository) diagnoseStamp(ctx context.Context, tx *sql.Tx, sessionID, familyID string) error {
	var (
		owner     string
		paymentID sql.NullString
		status    string
		confirmed int
	)
	err := r.helper.QueryRowTx(ctx, tx,
		"SELECT family_id, payment_id, status, is_confirmed FROM sessions WHERE id = ?", sessionID).
		Scan(&owner, &paymentID, &status, &confirmed)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != familyID) {
		return &persistence.StampError{SessionID: sessionID, Err: persistence.ErrNotFound}
	}
	if err != nil {
		return r.mapper.MapError(err)
	}
	if paymentID.Valid {
		return &persistence.StampError{SessionID: sessionID, PaymentID: paymentID.String, Err: persistence.ErrAlreadyStamped}
	}
	if status != "COMPLETED" || confirmed == 0 {
		return &persistence.StampError{SessionID: sessionID, Err: persistence.ErrNotEligible}
	}
	return &persistence.StampError{SessionID: sessionID, Err: persistence.ErrStaleWrite}
}

// GetPayment retrieves a payment and the sessions it covered
func (r *PaymentRepository) GetPayment(ctx context.Context, id string) (persistence.Payment, error) {
	return r.getPayment(ctx, r.pool.db, id)
}

func (r *PaymentRepository) getPayment(ctx context.Context, q interface {
	queryer
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id string) (persistence.Payment, error) {
	payment, err := scanPayment(q.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id))
	if err != nil {
		return persistence.Payment{}, r.mapper.MapError(err)
	}
	if payment.SessionIDs, err = r.sessionIDs(ctx, q, payment.ID); err != nil {
		return persistence.Payment{}, err
	}
	return payment, nil
}

// ListPayments lists a family's payments, newest first
func (r *PaymentRepository) ListPayments(ctx context.Context, familyID string) ([]persistence.Payment, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE family_id = ?
		ORDER BY created_at DESC, id DESC
	`, familyID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}

	var payments []persistence.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			rows.Close()
			return nil, r.mapper.MapError(err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, r.mapper.MapError(err)
	}
	rows.Close()

	for i := range payments {
		if payments[i].SessionIDs, err = r.sessionIDs(ctx, r.pool.db, payments[i].ID); err != nil {
			return nil, err
		}
	}
	return payments, nil
}

// CancelPayment marks a payment CANCELLED and clears the stamp on every
// session it still holds. Cancelling a cancelled payment is a no-op.
func (r *PaymentRepository) CancelPayment(ctx context.Context, id string, now time.Time) (persistence.Payment, error) {
	var cancelled persistence.Payment
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		current, err := r.getPayment(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status == "CANCELLED" {
			cancelled = current
			return nil
		}

		if _, err := r.helper.ExecTx(ctx, tx,
			"UPDATE payments SET status = 'CANCELLED', updated_at = ? WHERE id = ?",
			formatTime(now), id,
		); err != nil {
			return r.mapper.MapError(err)
		}
		if _, err := r.helper.ExecTx(ctx, tx,
			"UPDATE sessions SET payment_id = NULL, version = version + 1, updated_at = ? WHERE payment_id = ?",
			formatTime(now), id,
		); err != nil {
			return r.mapper.MapError(err)
		}

		cancelled, err = r.getPayment(ctx, tx, id)
		return err
	})
	if err != nil {
		return persistence.Payment{}, err
	}
	return cancelled, nil
}

func (r *PaymentRepository) sessionIDs(ctx context.Context, q queryer, paymentID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT session_id FROM payment_sessions WHERE payment_id = ? ORDER BY position ASC", paymentID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, r.mapper.MapError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return ids, nil
}

func scanPayment(row rowScanner) (persistence.Payment, error) {
	var payment persistence.Payment
	var paidAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&payment.ID,
		&payment.FamilyID,
		&payment.Amount,
		&payment.Tips,
		&payment.Method,
		&payment.Status,
		&payment.Notes,
		&paidAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Payment{}, err
	}

	if payment.PaidAt, err = parseNullTime("paid_at", paidAt); err != nil {
		return persistence.Payment{}, err
	}
	if payment.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Payment{}, err
	}
	if payment.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Payment{}, err
	}
	return payment, nil
}
