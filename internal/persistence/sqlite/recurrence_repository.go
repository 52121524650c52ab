package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/childcare-backoffice/internal/persistence"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

// RecurrenceRepository implements persistence.RecurrenceRepository using SQLite
type RecurrenceRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewRecurrenceRepository creates a new SQLite recurrence repository
func NewRecurrenceRepository(pool *ConnectionPool) *RecurrenceRepository {
	return &RecurrenceRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const recurrenceColumns = `id, family_id, service_id, kind, weekdays, start_time, end_time,
	starts_on, ends_on, offset_minutes, hourly_rate_override, notes, created_at, updated_at`

// UpsertRecurrence creates or updates a recurrence rule together with its child assignments
func (r *RecurrenceRepository) UpsertRecurrence(ctx context.Context, rule persistence.RecurrenceRule) error {
	if rule.ID == "" || rule.FamilyID == "" || rule.ServiceID == "" {
		return persistence.ErrConstraintViolation
	}
	if err := r.validateRecurrence(rule); err != nil {
		return err
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := r.helper.ExecTx(ctx, tx, `
			INSERT INTO recurrences (`+recurrenceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				family_id = excluded.family_id,
				service_id = excluded.service_id,
				kind = excluded.kind,
				weekdays = excluded.weekdays,
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				starts_on = excluded.starts_on,
				ends_on = excluded.ends_on,
				offset_minutes = excluded.offset_minutes,
				hourly_rate_override = excluded.hourly_rate_override,
				notes = excluded.notes,
				updated_at = excluded.updated_at
		`,
			rule.ID,
			rule.FamilyID,
			rule.ServiceID,
			rule.Kind,
			int64(rule.Weekdays),
			rule.StartTime.String(),
			rule.EndTime.String(),
			rule.StartsOn.String(),
			nullDate(rule.EndsOn),
			rule.OffsetMinutes,
			nullDecimal(rule.HourlyRateOverride),
			rule.Notes,
			formatTime(rule.CreatedAt),
			formatTime(rule.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		if err := replaceChildIDs(ctx, tx, "recurrence_children", "recurrence_id", rule.ID, rule.ChildIDs); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
}

// GetRecurrence retrieves a recurrence rule by ID
func (r *RecurrenceRepository) GetRecurrence(ctx context.Context, id string) (persistence.RecurrenceRule, error) {
	row := r.helper.QueryRow(ctx, "SELECT "+recurrenceColumns+" FROM recurrences WHERE id = ?", id)
	rule, err := scanRecurrence(row)
	if err != nil {
		return persistence.RecurrenceRule{}, r.mapper.MapError(err)
	}

	if rule.ChildIDs, err = listChildIDs(ctx, r.pool.db, "recurrence_children", "recurrence_id", rule.ID); err != nil {
		return persistence.RecurrenceRule{}, r.mapper.MapError(err)
	}
	return rule, nil
}

// ListRecurrencesForFamily lists a family's rules ordered by creation time
func (r *RecurrenceRepository) ListRecurrencesForFamily(ctx context.Context, familyID string) ([]persistence.RecurrenceRule, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT `+recurrenceColumns+`
		FROM recurrences
		WHERE family_id = ?
		ORDER BY created_at ASC, id ASC
	`, familyID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}

	var rules []persistence.RecurrenceRule
	for rows.Next() {
		rule, err := scanRecurrence(rows)
		if err != nil {
			rows.Close()
			return nil, r.mapper.MapError(err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, r.mapper.MapError(err)
	}
	rows.Close()

	for i := range rules {
		if rules[i].ChildIDs, err = listChildIDs(ctx, r.pool.db, "recurrence_children", "recurrence_id", rules[i].ID); err != nil {
			return nil, r.mapper.MapError(err)
		}
	}
	return rules, nil
}

// DeleteRecurrence deletes a rule. Past and paid sessions survive with their
// source reference cleared; future unpaid SCHEDULED sessions either block the
// delete or are cancelled when cascade is set. It returns the number of
// sessions cancelled.
func (r *RecurrenceRepository) DeleteRecurrence(ctx context.Context, id string, now time.Time, cascade bool) (int, error) {
	if id == "" {
		return 0, persistence.ErrNotFound
	}

	var cancelled int
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := r.helper.QueryRowTx(ctx, tx, "SELECT 1 FROM recurrences WHERE id = ?", id).Scan(&exists); err != nil {
			return r.mapper.MapError(err)
		}

		var pending int
		err := r.helper.QueryRowTx(ctx, tx, `
			SELECT COUNT(*) FROM sessions
			WHERE source_rule_id = ? AND status = 'SCHEDULED' AND payment_id IS NULL AND scheduled_start >= ?
		`, id, formatTime(now)).Scan(&pending)
		if err != nil {
			return r.mapper.MapError(err)
		}

		if pending > 0 {
			if !cascade {
				return fmt.Errorf("%w: %d future sessions", persistence.ErrReferenced, pending)
			}
			result, err := r.helper.ExecTx(ctx, tx, `
				UPDATE sessions
				SET status = 'CANCELLED', version = version + 1, updated_at = ?
				WHERE source_rule_id = ? AND status = 'SCHEDULED' AND payment_id IS NULL AND scheduled_start >= ?
			`, formatTime(now), id, formatTime(now))
			if err != nil {
				return r.mapper.MapError(err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			cancelled = int(affected)
		}

		if _, err := r.helper.ExecTx(ctx, tx, "DELETE FROM recurrences WHERE id = ?", id); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cancelled, nil
}

// validateRecurrence checks the constraints the schema cannot express cheaply
func (r *RecurrenceRepository) validateRecurrence(rule persistence.RecurrenceRule) error {
	if !rule.StartTime.Valid() || !rule.EndTime.Valid() || !rule.StartTime.Before(rule.EndTime) {
		return persistence.ErrConstraintViolation
	}
	if rule.StartsOn.IsZero() {
		return persistence.ErrConstraintViolation
	}
	if rule.EndsOn != nil && rule.EndsOn.Before(rule.StartsOn) {
		return persistence.ErrConstraintViolation
	}
	if rule.HourlyRateOverride != nil && rule.HourlyRateOverride.IsNegative() {
		return persistence.ErrConstraintViolation
	}
	return nil
}

func scanRecurrence(row rowScanner) (persistence.RecurrenceRule, error) {
	var rule persistence.RecurrenceRule
	var weekdays int64
	var startTime, endTime, startsOn, createdAt, updatedAt string
	var endsOn sql.NullString
	var override decimal.NullDecimal

	err := row.Scan(
		&rule.ID,
		&rule.FamilyID,
		&rule.ServiceID,
		&rule.Kind,
		&weekdays,
		&startTime,
		&endTime,
		&startsOn,
		&endsOn,
		&rule.OffsetMinutes,
		&override,
		&rule.Notes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.RecurrenceRule{}, err
	}

	rule.Weekdays = uint8(weekdays)
	rule.HourlyRateOverride = decimalPtr(override)
	if rule.StartTime, err = wallclock.ParseClock(startTime); err != nil {
		return persistence.RecurrenceRule{}, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if rule.EndTime, err = wallclock.ParseClock(endTime); err != nil {
		return persistence.RecurrenceRule{}, fmt.Errorf("failed to parse end_time: %w", err)
	}
	if rule.StartsOn, err = wallclock.ParseDate(startsOn); err != nil {
		return persistence.RecurrenceRule{}, fmt.Errorf("failed to parse starts_on: %w", err)
	}
	if rule.EndsOn, err = parseNullDate("ends_on", endsOn); err != nil {
		return persistence.RecurrenceRule{}, err
	}
	if rule.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.RecurrenceRule{}, err
	}
	if rule.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.RecurrenceRule{}, err
	}
	return rule, nil
}
