package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/childcare-backoffice/internal/persistence"
)

// FamilyRepository implements persistence.FamilyRepository using SQLite
type FamilyRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewFamilyRepository creates a new SQLite family repository
func NewFamilyRepository(pool *ConnectionPool) *FamilyRepository {
	return &FamilyRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateFamily inserts a new family
func (r *FamilyRepository) CreateFamily(ctx context.Context, family persistence.Family) error {
	if family.ID == "" || strings.TrimSpace(family.Name) == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx,
		"INSERT INTO families (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		family.ID,
		strings.TrimSpace(family.Name),
		formatTime(family.CreatedAt),
		formatTime(family.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetFamily retrieves a family by ID
func (r *FamilyRepository) GetFamily(ctx context.Context, id string) (persistence.Family, error) {
	var family persistence.Family
	var createdAt, updatedAt string

	err := r.helper.QueryRow(ctx,
		"SELECT id, name, created_at, updated_at FROM families WHERE id = ?", id,
	).Scan(&family.ID, &family.Name, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Family{}, r.mapper.MapError(err)
	}

	if family.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Family{}, err
	}
	if family.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Family{}, err
	}
	return family, nil
}

// CreateChild inserts a child under an existing family
func (r *FamilyRepository) CreateChild(ctx context.Context, child persistence.Child) error {
	if child.ID == "" || child.FamilyID == "" || strings.TrimSpace(child.Name) == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx,
		"INSERT INTO children (id, family_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		child.ID,
		child.FamilyID,
		strings.TrimSpace(child.Name),
		formatTime(child.CreatedAt),
		formatTime(child.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// ListChildren lists a family's children ordered by name
func (r *FamilyRepository) ListChildren(ctx context.Context, familyID string) ([]persistence.Child, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, family_id, name, created_at, updated_at
		FROM children
		WHERE family_id = ?
		ORDER BY name ASC, id ASC
	`, familyID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var children []persistence.Child
	for rows.Next() {
		var child persistence.Child
		var createdAt, updatedAt string
		if err := rows.Scan(&child.ID, &child.FamilyID, &child.Name, &createdAt, &updatedAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if child.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		if child.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return children, nil
}

// MissingChildIDs returns the IDs that do not name a child of familyID, in
// input order. Children of another family count as missing.
func (r *FamilyRepository) MissingChildIDs(ctx context.Context, familyID string, ids []string) ([]string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	args := append([]any{familyID}, stringArgs(ids)...)
	rows, err := r.helper.Query(ctx,
		"SELECT id FROM children WHERE family_id = ? AND id IN ("+placeholders(len(ids))+")",
		args...,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, r.mapper.MapError(err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// listChildIDs reads a link table keyed by ownerColumn.
func listChildIDs(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, table, ownerColumn, ownerID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT child_id FROM "+table+" WHERE "+ownerColumn+" = ? ORDER BY child_id", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// replaceChildIDs rewrites the link rows for ownerID inside tx.
func replaceChildIDs(ctx context.Context, tx *sql.Tx, table, ownerColumn, ownerID string, childIDs []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+ownerColumn+" = ?", ownerID); err != nil {
		return err
	}
	for _, childID := range dedupe(childIDs) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" ("+ownerColumn+", child_id) VALUES (?, ?)", ownerID, childID,
		); err != nil {
			return err
		}
	}
	return nil
}
