package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/childcare-backoffice/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite
type SessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const sessionColumns = `id, family_id, service_id, source_rule_id, scheduled_start, scheduled_end,
	status, is_confirmed, hourly_rate, payment_id, notes, version, created_at, updated_at`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// InsertGeneratedSessions inserts sessions produced by a rule expansion.
// Each row records its scheduled start as occurrence_start, and the unique
// (source_rule_id, occurrence_start) index arbitrates duplicates, so a
// session keeps its slot after an edit moves it. A conflicting row is left
// untouched and the stored row is reported back in existing, in input
// order. The whole batch commits or rolls back together.
func (r *SessionRepository) InsertGeneratedSessions(ctx context.Context, sessions []persistence.Session) ([]persistence.Session, []persistence.Session, error) {
	var created, existing []persistence.Session

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		created, existing = nil, nil
		for _, session := range sessions {
			if session.SourceRuleID == nil {
				return fmt.Errorf("%w: generated session %s has no source rule", persistence.ErrConstraintViolation, session.ID)
			}
			if err := validateSession(session); err != nil {
				return err
			}

			occurrence := formatTime(session.ScheduledStart)
			result, err := r.helper.ExecTx(ctx, tx, `
				INSERT INTO sessions (`+sessionColumns+`, occurrence_start)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
				ON CONFLICT(source_rule_id, occurrence_start) DO NOTHING
			`, append(sessionArgs(session), occurrence)...)
			if err != nil {
				return r.mapper.MapError(err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}

			if affected == 0 {
				row := r.helper.QueryRowTx(ctx, tx,
					"SELECT "+sessionColumns+" FROM sessions WHERE source_rule_id = ? AND occurrence_start = ?",
					*session.SourceRuleID, occurrence)
				stored, err := scanSession(row)
				if err != nil {
					return r.mapper.MapError(err)
				}
				if stored.ChildIDs, err = listChildIDs(ctx, tx, "session_children", "session_id", stored.ID); err != nil {
					return r.mapper.MapError(err)
				}
				existing = append(existing, stored)
				continue
			}

			if err := replaceChildIDs(ctx, tx, "session_children", "session_id", session.ID, session.ChildIDs); err != nil {
				return r.mapper.MapError(err)
			}
			session.Version = 1
			session.ChildIDs = dedupe(session.ChildIDs)
			created = append(created, session)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, existing, nil
}

// CreateSession inserts a manually scheduled session. A session naming a
// source rule claims that rule's occurrence slot like a generated one.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}

	var occurrence any
	if session.SourceRuleID != nil {
		occurrence = formatTime(session.ScheduledStart)
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := r.helper.ExecTx(ctx, tx, `
			INSERT INTO sessions (`+sessionColumns+`, occurrence_start)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		`, append(sessionArgs(session), occurrence)...)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := replaceChildIDs(ctx, tx, "session_children", "session_id", session.ID, session.ChildIDs); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
}

// GetSession retrieves a session by ID
func (r *SessionRepository) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	return r.getSession(ctx, r.pool.db, id)
}

func (r *SessionRepository) getSession(ctx context.Context, q interface {
	queryer
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id string) (persistence.Session, error) {
	row := q.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	session, err := scanSession(row)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	if session.ChildIDs, err = listChildIDs(ctx, q, "session_children", "session_id", session.ID); err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// UpdateSession writes the mutable fields of a session guarded by its
// version. The ledger owns payment_id, so it is never written here.
func (r *SessionRepository) UpdateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if err := validateSession(session); err != nil {
		return persistence.Session{}, err
	}

	var updated persistence.Session
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(ctx, tx, `
			UPDATE sessions
			SET scheduled_start = ?, scheduled_end = ?, status = ?, is_confirmed = ?,
				hourly_rate = ?, notes = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`,
			formatTime(session.ScheduledStart),
			formatTime(session.ScheduledEnd),
			session.Status,
			boolInt(session.IsConfirmed),
			formatMoney(session.HourlyRate),
			session.Notes,
			formatTime(session.UpdatedAt),
			session.ID,
			session.Version,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			var exists int
			err := r.helper.QueryRowTx(ctx, tx, "SELECT 1 FROM sessions WHERE id = ?", session.ID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			if err != nil {
				return r.mapper.MapError(err)
			}
			return persistence.ErrStaleWrite
		}

		if err := replaceChildIDs(ctx, tx, "session_children", "session_id", session.ID, session.ChildIDs); err != nil {
			return r.mapper.MapError(err)
		}

		updated, err = r.getSession(ctx, tx, session.ID)
		return err
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return updated, nil
}

// ListSessions returns sessions matching filter ordered by scheduled start
func (r *SessionRepository) ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.Session, error) {
	var clauses []string
	var args []any

	if filter.FamilyID != "" {
		clauses = append(clauses, "family_id = ?")
		args = append(args, filter.FamilyID)
	}
	if filter.SourceRuleID != "" {
		clauses = append(clauses, "source_rule_id = ?")
		args = append(args, filter.SourceRuleID)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(filter.Statuses))+")")
		args = append(args, stringArgs(filter.Statuses)...)
	}
	if filter.StartsAfter != nil {
		clauses = append(clauses, "scheduled_start >= ?")
		args = append(args, formatTime(*filter.StartsAfter))
	}
	if filter.StartsBefore != nil {
		clauses = append(clauses, "scheduled_start < ?")
		args = append(args, formatTime(*filter.StartsBefore))
	}
	if filter.Confirmed != nil {
		clauses = append(clauses, "is_confirmed = ?")
		args = append(args, boolInt(*filter.Confirmed))
	}
	if filter.Unpaid {
		clauses = append(clauses, "payment_id IS NULL")
	}

	query := "SELECT " + sessionColumns + " FROM sessions"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY scheduled_start ASC, id ASC"

	return r.listSessions(ctx, query, args...)
}

// ListSessionsByIDs returns the sessions that exist among ids ordered by scheduled start
func (r *SessionRepository) ListSessionsByIDs(ctx context.Context, ids []string) ([]persistence.Session, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query := "SELECT " + sessionColumns + " FROM sessions WHERE id IN (" + placeholders(len(ids)) + ") ORDER BY scheduled_start ASC, id ASC"
	return r.listSessions(ctx, query, stringArgs(ids)...)
}

func (r *SessionRepository) listSessions(ctx context.Context, query string, args ...any) ([]persistence.Session, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}

	var sessions []persistence.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, r.mapper.MapError(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, r.mapper.MapError(err)
	}
	rows.Close()

	if len(sessions) == 0 {
		return sessions, nil
	}

	children, err := r.childrenBySession(ctx, sessions)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].ChildIDs = children[sessions[i].ID]
	}
	return sessions, nil
}

func (r *SessionRepository) childrenBySession(ctx context.Context, sessions []persistence.Session) (map[string][]string, error) {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}

	rows, err := r.helper.Query(ctx,
		"SELECT session_id, child_id FROM session_children WHERE session_id IN ("+placeholders(len(ids))+") ORDER BY session_id, child_id",
		stringArgs(ids)...,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	children := make(map[string][]string, len(ids))
	for rows.Next() {
		var sessionID, childID string
		if err := rows.Scan(&sessionID, &childID); err != nil {
			return nil, r.mapper.MapError(err)
		}
		children[sessionID] = append(children[sessionID], childID)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return children, nil
}

func validateSession(session persistence.Session) error {
	if session.ID == "" || session.FamilyID == "" || session.ServiceID == "" {
		return persistence.ErrConstraintViolation
	}
	if !session.ScheduledStart.Before(session.ScheduledEnd) {
		return persistence.ErrConstraintViolation
	}
	if session.HourlyRate.IsNegative() {
		return persistence.ErrConstraintViolation
	}
	return nil
}

// sessionArgs lists insert arguments in sessionColumns order, without version.
func sessionArgs(session persistence.Session) []any {
	return []any{
		session.ID,
		session.FamilyID,
		session.ServiceID,
		nullString(session.SourceRuleID),
		formatTime(session.ScheduledStart),
		formatTime(session.ScheduledEnd),
		session.Status,
		boolInt(session.IsConfirmed),
		formatMoney(session.HourlyRate),
		nullString(session.PaymentID),
		session.Notes,
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	}
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var session persistence.Session
	var sourceRuleID, paymentID sql.NullString
	var start, end, createdAt, updatedAt string
	var confirmed int

	err := row.Scan(
		&session.ID,
		&session.FamilyID,
		&session.ServiceID,
		&sourceRuleID,
		&start,
		&end,
		&session.Status,
		&confirmed,
		&session.HourlyRate,
		&paymentID,
		&session.Notes,
		&session.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Session{}, err
	}

	session.SourceRuleID = stringPtr(sourceRuleID)
	session.PaymentID = stringPtr(paymentID)
	session.IsConfirmed = confirmed != 0
	if session.ScheduledStart, err = parseTime("scheduled_start", start); err != nil {
		return persistence.Session{}, err
	}
	if session.ScheduledEnd, err = parseTime("scheduled_end", end); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}
