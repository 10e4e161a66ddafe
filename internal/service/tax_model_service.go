package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gestoria/internal/model"
	"gestoria/internal/repository"
)

type CreateTaxModelRequest struct {
	Code                 string   `json:"code" binding:"required,max=10"`
	Name                 string   `json:"name" binding:"required,max=255"`
	Description          string   `json:"description"`
	AllowedPeriodicities []string `json:"allowed_periodicities" binding:"required,min=1,dive,oneof=MENSUAL TRIMESTRAL ANUAL ESPECIAL_FRACCIONADO"`
	AllowedClientTypes   []string `json:"allowed_client_types" binding:"required,min=1,dive,oneof=AUTONOMO EMPRESA PARTICULAR"`
}

type UpdateTaxModelRequest struct {
	Name                 string   `json:"name" binding:"omitempty,max=255"`
	Description          *string  `json:"description"`
	AllowedPeriodicities []string `json:"allowed_periodicities" binding:"omitempty,dive,oneof=MENSUAL TRIMESTRAL ANUAL ESPECIAL_FRACCIONADO"`
	AllowedClientTypes   []string `json:"allowed_client_types" binding:"omitempty,dive,oneof=AUTONOMO EMPRESA PARTICULAR"`
	IsActive             *bool    `json:"is_active"`
}

type TaxModelResponse struct {
	ID                   string   `json:"id"`
	Code                 string   `json:"code"`
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	AllowedPeriodicities []string `json:"allowed_periodicities"`
	AllowedClientTypes   []string `json:"allowed_client_types"`
	IsActive             bool     `json:"is_active"`
	CreatedAt            string   `json:"created_at"`
}

type TaxModelService interface {
	CreateTaxModel(ctx context.Context, req CreateTaxModelRequest, userID string) (*TaxModelResponse, error)
	GetTaxModel(ctx context.Context, code string) (*TaxModelResponse, error)
	ListTaxModels(ctx context.Context, activeOnly bool) ([]TaxModelResponse, error)
	UpdateTaxModel(ctx context.Context, code string, req UpdateTaxModelRequest) (*TaxModelResponse, error)
	DeleteTaxModel(ctx context.Context, code string) error
}

type taxModelService struct {
	repo        repository.TaxModelRepository
	assignments repository.AssignmentRepository
	audit       repository.AuditRepository
}

func NewTaxModelService(repo repository.TaxModelRepository, assignments repository.AssignmentRepository, audit repository.AuditRepository) TaxModelService {
	return &taxModelService{repo: repo, assignments: assignments, audit: audit}
}

func (s *taxModelService) CreateTaxModel(ctx context.Context, req CreateTaxModelRequest, userID string) (*TaxModelResponse, error) {
	code := strings.TrimSpace(req.Code)
	if _, err := s.repo.FindByCode(ctx, code); err == nil {
		return nil, conflictf("tax model %s already exists", code)
	} else if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check tax model: %w", err)
	}

	m := model.TaxModel{
		Code:                 code,
		Name:                 strings.TrimSpace(req.Name),
		Description:          req.Description,
		AllowedPeriodicities: joinDistinct(req.AllowedPeriodicities),
		AllowedClientTypes:   joinDistinct(req.AllowedClientTypes),
		IsActive:             true,
	}
	if err := s.repo.Create(ctx, &m); err != nil {
		return nil, fmt.Errorf("failed to create tax model: %w", err)
	}
	writeAuditLog(ctx, s.audit, userID, model.ActionCreateTaxModel, m.ID.String(), m.Code, req)

	resp := toTaxModelResponse(m)
	return &resp, nil
}

func (s *taxModelService) GetTaxModel(ctx context.Context, code string) (*TaxModelResponse, error) {
	m, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, lookupErr(err, "tax model")
	}
	resp := toTaxModelResponse(*m)
	return &resp, nil
}

func (s *taxModelService) ListTaxModels(ctx context.Context, activeOnly bool) ([]TaxModelResponse, error) {
	models, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tax models: %w", err)
	}
	res := make([]TaxModelResponse, 0, len(models))
	for _, m := range models {
		res = append(res, toTaxModelResponse(m))
	}
	return res, nil
}

func (s *taxModelService) UpdateTaxModel(ctx context.Context, code string, req UpdateTaxModelRequest) (*TaxModelResponse, error) {
	m, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, lookupErr(err, "tax model")
	}
	if req.Name != "" {
		m.Name = strings.TrimSpace(req.Name)
	}
	if req.Description != nil {
		m.Description = *req.Description
	}
	if len(req.AllowedPeriodicities) > 0 {
		m.AllowedPeriodicities = joinDistinct(req.AllowedPeriodicities)
	}
	if len(req.AllowedClientTypes) > 0 {
		m.AllowedClientTypes = joinDistinct(req.AllowedClientTypes)
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to update tax model: %w", err)
	}
	resp := toTaxModelResponse(*m)
	return &resp, nil
}

// DeleteTaxModel refuses models that still have active assignments.
func (s *taxModelService) DeleteTaxModel(ctx context.Context, code string) error {
	if _, err := s.repo.FindByCode(ctx, code); err != nil {
		return lookupErr(err, "tax model")
	}
	active, err := s.assignments.ListActiveByModel(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to check assignments: %w", err)
	}
	if len(active) > 0 {
		return conflictf("tax model %s has %d active assignments", code, len(active))
	}
	if err := s.repo.Delete(ctx, code); err != nil {
		return fmt.Errorf("failed to delete tax model: %w", err)
	}
	return nil
}

func joinDistinct(values []string) string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return strings.Join(out, ",")
}

func toTaxModelResponse(m model.TaxModel) TaxModelResponse {
	resp := TaxModelResponse{
		ID:                   m.ID.String(),
		Code:                 m.Code,
		Name:                 m.Name,
		Description:          m.Description,
		AllowedPeriodicities: m.Periodicities(),
		AllowedClientTypes:   m.ClientTypes(),
		IsActive:             m.IsActive,
		CreatedAt:            m.CreatedAt.Format(time.RFC3339),
	}
	if resp.AllowedPeriodicities == nil {
		resp.AllowedPeriodicities = []string{}
	}
	if resp.AllowedClientTypes == nil {
		resp.AllowedClientTypes = []string{}
	}
	return resp
}
