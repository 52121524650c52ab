package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/childcare-backoffice/internal/persistence"
)

// BlackoutRepository implements persistence.BlackoutRepository using SQLite
type BlackoutRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewBlackoutRepository creates a new SQLite blackout repository
func NewBlackoutRepository(pool *ConnectionPool) *BlackoutRepository {
	return &BlackoutRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateBlackout stores a resolved blackout interval
func (r *BlackoutRepository) CreateBlackout(ctx context.Context, blackout persistence.Blackout) error {
	if blackout.ID == "" || !blackout.StartsAt.Before(blackout.EndsAt) {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx,
		"INSERT INTO blackouts (id, starts_at, ends_at, all_day, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		blackout.ID,
		formatTime(blackout.StartsAt),
		formatTime(blackout.EndsAt),
		boolInt(blackout.AllDay),
		blackout.Reason,
		formatTime(blackout.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// ListBlackouts returns periods intersecting the filter window ordered by start
func (r *BlackoutRepository) ListBlackouts(ctx context.Context, filter persistence.BlackoutFilter) ([]persistence.Blackout, error) {
	var clauses []string
	var args []any

	// Half-open overlap: a period ending exactly at From does not intersect.
	if filter.From != nil {
		clauses = append(clauses, "ends_at > ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "starts_at < ?")
		args = append(args, formatTime(*filter.To))
	}

	query := "SELECT id, starts_at, ends_at, all_day, reason, created_at FROM blackouts"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY starts_at ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var blackouts []persistence.Blackout
	for rows.Next() {
		var b persistence.Blackout
		var startsAt, endsAt, createdAt string
		var allDay int
		if err := rows.Scan(&b.ID, &startsAt, &endsAt, &allDay, &b.Reason, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		b.AllDay = allDay != 0
		if b.StartsAt, err = parseTime("starts_at", startsAt); err != nil {
			return nil, err
		}
		if b.EndsAt, err = parseTime("ends_at", endsAt); err != nil {
			return nil, err
		}
		if b.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		blackouts = append(blackouts, b)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return blackouts, nil
}

// DeleteBlackout removes a blackout period
func (r *BlackoutRepository) DeleteBlackout(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, "DELETE FROM blackouts WHERE id = ?", id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
