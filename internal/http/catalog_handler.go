package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

type catalogService interface {
	CreateFamily(ctx context.Context, input application.FamilyInput) (application.Family, error)
	GetFamily(ctx context.Context, id string) (application.Family, error)
	AddChild(ctx context.Context, input application.ChildInput) (application.Child, error)
	SaveService(ctx context.Context, id string, input application.ServiceInput) (application.Service, error)
	ListServices(ctx context.Context) ([]application.Service, error)
	ListFamilyRules(ctx context.Context, familyID string) ([]application.Rule, error)
}

// CatalogHandler serves families, their children, and the service catalog.
type CatalogHandler struct {
	service   catalogService
	responder responder
	logger    *slog.Logger
}

func NewCatalogHandler(service catalogService, logger *slog.Logger) *CatalogHandler {
	logger = defaultLogger(logger)
	return &CatalogHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *CatalogHandler) CreateFamily(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	family, err := h.service.CreateFamily(r.Context(), application.FamilyInput{Name: req.Name})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, familyResponse{Family: toFamilyDTO(family, offset)})
}

func (h *CatalogHandler) GetFamily(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := resourceID(r)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidFamilyID)
		return
	}
	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	family, err := h.service.GetFamily(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, familyResponse{Family: toFamilyDTO(family, offset)})
}

func (h *CatalogHandler) AddChild(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := resourceID(r)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidFamilyID)
		return
	}
	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	child, err := h.service.AddChild(r.Context(), application.ChildInput{FamilyID: id, Name: req.Name})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, childResponse{Child: toChildDTO(child, offset)})
}

// ListFamilyRules reports every rule of the family, active or not.
func (h *CatalogHandler) ListFamilyRules(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := resourceID(r)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidFamilyID)
		return
	}
	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}

	rules, err := h.service.ListFamilyRules(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	dtos := make([]ruleDTO, 0, len(rules))
	for _, rule := range rules {
		dtos = append(dtos, toRuleDTO(rule, offset))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRulesResponse{Rules: dtos})
}

func (h *CatalogHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	h.saveService(w, r, "", http.StatusCreated)
}

func (h *CatalogHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidServiceID)
		return
	}
	h.saveService(w, r, id, http.StatusOK)
}

func (h *CatalogHandler) saveService(w http.ResponseWriter, r *http.Request, id string, status int) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}
	var req serviceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	service, err := h.service.SaveService(r.Context(), id, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "CatalogHandler", "SaveService", "service_id", service.ID).
		DebugContext(r.Context(), "service saved")
	h.responder.writeJSON(r.Context(), w, status, serviceResponse{Service: toServiceDTO(service, offset)})
}

func (h *CatalogHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	offset, ok := h.responder.readOffset(r.Context(), w, r)
	if !ok {
		return
	}
	services, err := h.service.ListServices(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	dtos := make([]serviceDTO, 0, len(services))
	for _, service := range services {
		dtos = append(dtos, toServiceDTO(service, offset))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listServicesResponse{Services: dtos})
}

type nameRequest struct {
	Name string `json:"name"`
}

type serviceRequest struct {
	Name              string           `json:"name"`
	PricingMode       string           `json:"pricing_mode"`
	RequiresChildren  bool             `json:"requires_children"`
	DefaultHourlyRate *decimal.Decimal `json:"default_hourly_rate"`
}

func (r serviceRequest) toInput() application.ServiceInput {
	input := application.ServiceInput{
		Name:             r.Name,
		PricingMode:      strings.TrimSpace(r.PricingMode),
		RequiresChildren: r.RequiresChildren,
	}
	if r.DefaultHourlyRate != nil {
		input.DefaultHourlyRate = *r.DefaultHourlyRate
	}
	return input
}

type familyResponse struct {
	Family familyDTO `json:"family"`
}

type childResponse struct {
	Child childDTO `json:"child"`
}

type listRulesResponse struct {
	Rules []ruleDTO `json:"rules"`
}

type serviceResponse struct {
	Service serviceDTO `json:"service"`
}

type listServicesResponse struct {
	Services []serviceDTO `json:"services"`
}

type familyDTO struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Children  []childDTO `json:"children"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
}

type childDTO struct {
	ID        string `json:"id"`
	FamilyID  string `json:"family_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type serviceDTO struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	PricingMode       string          `json:"pricing_mode"`
	RequiresChildren  bool            `json:"requires_children"`
	DefaultHourlyRate decimal.Decimal `json:"default_hourly_rate"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
}

func toFamilyDTO(family application.Family, offset wallclock.Offset) familyDTO {
	children := make([]childDTO, 0, len(family.Children))
	for _, child := range family.Children {
		children = append(children, toChildDTO(child, offset))
	}
	return familyDTO{
		ID:        family.ID,
		Name:      family.Name,
		Children:  children,
		CreatedAt: wallclock.Format(family.CreatedAt, offset),
		UpdatedAt: wallclock.Format(family.UpdatedAt, offset),
	}
}

func toChildDTO(child application.Child, offset wallclock.Offset) childDTO {
	return childDTO{
		ID:        child.ID,
		FamilyID:  child.FamilyID,
		Name:      child.Name,
		CreatedAt: wallclock.Format(child.CreatedAt, offset),
	}
}

func toServiceDTO(service application.Service, offset wallclock.Offset) serviceDTO {
	return serviceDTO{
		ID:                service.ID,
		Name:              service.Name,
		PricingMode:       string(service.PricingMode),
		RequiresChildren:  service.RequiresChildren,
		DefaultHourlyRate: service.DefaultHourlyRate.Round(2),
		CreatedAt:         wallclock.Format(service.CreatedAt, offset),
		UpdatedAt:         wallclock.Format(service.UpdatedAt, offset),
	}
}
