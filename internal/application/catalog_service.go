package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/childcare-backoffice/internal/billing"
)

// FamilyRepository captures the persistence interactions needed for households.
type FamilyRepository interface {
	CreateFamily(ctx context.Context, family Family) error
	GetFamily(ctx context.Context, id string) (Family, error)
	CreateChild(ctx context.Context, child Child) error
}

// ServiceRepository captures the persistence interactions needed for the service catalog.
type ServiceRepository interface {
	ServiceCatalog
	UpsertService(ctx context.Context, service Service) error
	ListServices(ctx context.Context) ([]Service, error)
}

// RuleLister lists the rules of a family.
type RuleLister interface {
	ListRulesForFamily(ctx context.Context, familyID string) ([]Rule, error)
}

// CatalogService manages families, children, and priced services.
type CatalogService struct {
	families    FamilyRepository
	services    ServiceRepository
	rules       RuleLister
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCatalogService wires dependencies for catalog operations.
func NewCatalogService(families FamilyRepository, services ServiceRepository, rules RuleLister, idGenerator func() string, now func() time.Time) *CatalogService {
	return NewCatalogServiceWithLogger(families, services, rules, idGenerator, now, nil)
}

// NewCatalogServiceWithLogger wires dependencies and a base logger.
func NewCatalogServiceWithLogger(families FamilyRepository, services ServiceRepository, rules RuleLister, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CatalogService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CatalogService{
		families:    families,
		services:    services,
		rules:       rules,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateFamily stores a household without children.
func (s *CatalogService) CreateFamily(ctx context.Context, input FamilyInput) (Family, error) {
	if s == nil {
		return Family{}, fmt.Errorf("CatalogService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "CatalogService", "CreateFamily")

	input.Name = strings.TrimSpace(input.Name)
	vErr := &ValidationError{}
	validateStruct(input, vErr)
	if vErr.HasErrors() {
		logger.WarnContext(ctx, "family validation failed", "error_kind", ErrorKind(vErr))
		return Family{}, vErr
	}

	now := s.now()
	family := Family{
		ID:        s.idGenerator(),
		Name:      input.Name,
		Children:  []Child{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.families.CreateFamily(ctx, family); err != nil {
		mapped := mapRepoError(err)
		logger.ErrorContext(ctx, "failed to store family", "error", err, "error_kind", ErrorKind(mapped))
		return Family{}, mapped
	}

	logger.InfoContext(ctx, "family created", "family_id", family.ID)
	return family, nil
}

// GetFamily returns a household with its children.
func (s *CatalogService) GetFamily(ctx context.Context, id string) (Family, error) {
	family, err := s.families.GetFamily(ctx, id)
	if err != nil {
		return Family{}, mapRepoError(err)
	}
	return family, nil
}

// AddChild attaches a child to an existing family.
func (s *CatalogService) AddChild(ctx context.Context, input ChildInput) (Child, error) {
	if s == nil {
		return Child{}, fmt.Errorf("CatalogService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "CatalogService", "AddChild", "family_id", input.FamilyID)

	input.FamilyID = strings.TrimSpace(input.FamilyID)
	input.Name = strings.TrimSpace(input.Name)
	vErr := &ValidationError{}
	validateStruct(input, vErr)
	if vErr.HasErrors() {
		return Child{}, vErr
	}

	if _, err := s.families.GetFamily(ctx, input.FamilyID); err != nil {
		mapped := mapRepoError(err)
		logger.WarnContext(ctx, "family lookup failed", "error_kind", ErrorKind(mapped))
		return Child{}, mapped
	}

	child := Child{
		ID:        s.idGenerator(),
		FamilyID:  input.FamilyID,
		Name:      input.Name,
		CreatedAt: s.now(),
	}
	if err := s.families.CreateChild(ctx, child); err != nil {
		mapped := mapRepoError(err)
		logger.ErrorContext(ctx, "failed to store child", "error", err, "error_kind", ErrorKind(mapped))
		return Child{}, mapped
	}

	logger.InfoContext(ctx, "child added", "child_id", child.ID)
	return child, nil
}

// SaveService creates a catalog entry when id is empty, otherwise replaces it.
func (s *CatalogService) SaveService(ctx context.Context, id string, input ServiceInput) (Service, error) {
	if s == nil {
		return Service{}, fmt.Errorf("CatalogService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "CatalogService", "SaveService", "service_id", id)

	input.Name = strings.TrimSpace(input.Name)
	input.PricingMode = strings.ToUpper(strings.TrimSpace(input.PricingMode))
	vErr := &ValidationError{}
	validateStruct(input, vErr)
	if input.DefaultHourlyRate.IsNegative() {
		vErr.add("default_hourly_rate", "must not be negative")
	} else if !input.DefaultHourlyRate.Equal(input.DefaultHourlyRate.Round(2)) {
		vErr.add("default_hourly_rate", "must have at most two decimal places")
	}
	if vErr.HasErrors() {
		logger.WarnContext(ctx, "service validation failed", "error_kind", ErrorKind(vErr))
		return Service{}, vErr
	}

	mode, err := billing.ParsePricingMode(input.PricingMode)
	if err != nil {
		vErr.add("pricing_mode", "must be one of HOURLY, PER_CHILD")
		return Service{}, vErr
	}

	now := s.now()
	service := Service{
		ID:                id,
		Name:              input.Name,
		PricingMode:       mode,
		RequiresChildren:  input.RequiresChildren,
		DefaultHourlyRate: input.DefaultHourlyRate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if id == "" {
		service.ID = s.idGenerator()
	} else {
		existing, err := s.services.GetService(ctx, id)
		if err != nil {
			mapped := mapRepoError(err)
			logger.WarnContext(ctx, "service lookup failed", "error_kind", ErrorKind(mapped))
			return Service{}, mapped
		}
		service.CreatedAt = existing.CreatedAt
	}

	if err := s.services.UpsertService(ctx, service); err != nil {
		mapped := mapRepoError(err)
		logger.ErrorContext(ctx, "failed to store service", "error", err, "error_kind", ErrorKind(mapped))
		return Service{}, mapped
	}

	logger.InfoContext(ctx, "service stored", "service_id", service.ID, "pricing_mode", string(service.PricingMode))
	return service, nil
}

// ListServices returns the whole catalog.
func (s *CatalogService) ListServices(ctx context.Context) ([]Service, error) {
	services, err := s.services.ListServices(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return services, nil
}

// ListFamilyRules returns the recurrence rules of an existing family.
func (s *CatalogService) ListFamilyRules(ctx context.Context, familyID string) ([]Rule, error) {
	if _, err := s.families.GetFamily(ctx, familyID); err != nil {
		return nil, mapRepoError(err)
	}
	rules, err := s.rules.ListRulesForFamily(ctx, familyID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return rules, nil
}
