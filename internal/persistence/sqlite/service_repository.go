package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/childcare-backoffice/internal/persistence"
)

// ServiceRepository implements persistence.ServiceRepository using SQLite
type ServiceRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewServiceRepository creates a new SQLite service catalog repository
func NewServiceRepository(pool *ConnectionPool) *ServiceRepository {
	return &ServiceRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const serviceColumns = "id, name, pricing_mode, requires_children, default_hourly_rate, created_at, updated_at"

// UpsertService creates or replaces a catalog entry, keeping the original created_at
func (r *ServiceRepository) UpsertService(ctx context.Context, service persistence.Service) error {
	if service.ID == "" || strings.TrimSpace(service.Name) == "" {
		return persistence.ErrConstraintViolation
	}
	if service.DefaultHourlyRate.IsNegative() {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO services (`+serviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			pricing_mode = excluded.pricing_mode,
			requires_children = excluded.requires_children,
			default_hourly_rate = excluded.default_hourly_rate,
			updated_at = excluded.updated_at
	`,
		service.ID,
		strings.TrimSpace(service.Name),
		service.PricingMode,
		boolInt(service.RequiresChildren),
		formatMoney(service.DefaultHourlyRate),
		formatTime(service.CreatedAt),
		formatTime(service.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetService retrieves a service by ID
func (r *ServiceRepository) GetService(ctx context.Context, id string) (persistence.Service, error) {
	row := r.helper.QueryRow(ctx, "SELECT "+serviceColumns+" FROM services WHERE id = ?", id)
	service, err := scanService(row)
	if err != nil {
		return persistence.Service{}, r.mapper.MapError(err)
	}
	return service, nil
}

// ListServices returns the catalog ordered by name
func (r *ServiceRepository) ListServices(ctx context.Context) ([]persistence.Service, error) {
	rows, err := r.helper.Query(ctx, "SELECT "+serviceColumns+" FROM services ORDER BY name ASC, id ASC")
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var services []persistence.Service
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		services = append(services, service)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return services, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (persistence.Service, error) {
	var service persistence.Service
	var requiresChildren int
	var createdAt, updatedAt string

	err := row.Scan(
		&service.ID,
		&service.Name,
		&service.PricingMode,
		&requiresChildren,
		&service.DefaultHourlyRate,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Service{}, err
	}

	service.RequiresChildren = requiresChildren != 0
	if service.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Service{}, err
	}
	if service.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Service{}, err
	}
	return service, nil
}

var _ rowScanner = (*sql.Row)(nil)
