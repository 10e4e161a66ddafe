package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gestoria/internal/budget"
	"gestoria/internal/cache"
	"gestoria/internal/model"
	"gestoria/internal/repository"

	"github.com/shopspring/decimal"
)

// PricingConfigTTL is how long a pricing config stays cached.
const PricingConfigTTL = 5 * time.Minute

type BracketDTO struct {
	Min   decimal.Decimal  `json:"min"`
	Max   *decimal.Decimal `json:"max"`
	Value decimal.Decimal  `json:"value"`
	Label string           `json:"label" binding:"max=100"`
}

type ModelPriceDTO struct {
	Code     string          `json:"code" binding:"required,max=10"`
	Name     string          `json:"name" binding:"required,max=255"`
	Price    decimal.Decimal `json:"price"`
	IsActive *bool           `json:"is_active"`
}

type ServicePriceDTO struct {
	Code     string          `json:"code" binding:"required,max=50"`
	Name     string          `json:"name" binding:"required,max=255"`
	Price    decimal.Decimal `json:"price"`
	Kind     string          `json:"kind" binding:"required,oneof=MENSUAL PUNTUAL"`
	IsActive *bool           `json:"is_active"`
}

// PricingConfigDTO is both the body of PUT /budget-config/:type and its
// response, so a client can edit what it fetched.
type PricingConfigDTO struct {
	BudgetType      string            `json:"budget_type"`
	Name            string            `json:"name" binding:"max=100"`
	MonthlyPct      decimal.Decimal   `json:"monthly_pct"`
	EDNPct          decimal.Decimal   `json:"edn_pct"`
	ModulesPct      decimal.Decimal   `json:"modules_pct"`
	MonthlyMinimum  decimal.Decimal   `json:"monthly_minimum"`
	InvoiceBrackets []BracketDTO      `json:"invoice_brackets" binding:"required,min=1,dive"`
	PayrollBrackets []BracketDTO      `json:"payroll_brackets" binding:"dive"`
	RevenueBrackets []BracketDTO      `json:"revenue_brackets" binding:"required,min=1,dive"`
	Models          []ModelPriceDTO   `json:"models" binding:"dive"`
	Services        []ServicePriceDTO `json:"services" binding:"dive"`
	UpdatedAt       string            `json:"updated_at,omitempty"`
}

type BudgetConfigService interface {
	GetConfig(ctx context.Context, budgetType string) (*PricingConfigDTO, error)
	UpdateConfig(ctx context.Context, budgetType string, req PricingConfigDTO, userID string) (*PricingConfigDTO, error)
	// CalculatorConfig returns the active config as calculator input.
	CalculatorConfig(ctx context.Context, budgetType string) (budget.Config, error)
}

type budgetConfigService struct {
	repo      repository.PricingRepository
	audit     repository.AuditRepository
	txManager repository.TransactionManager
	cache     cache.Cache
}

func NewBudgetConfigService(repo repository.PricingRepository, audit repository.AuditRepository, txManager repository.TransactionManager, c cache.Cache) BudgetConfigService {
	return &budgetConfigService{repo: repo, audit: audit, txManager: txManager, cache: c}
}

func pricingCacheKey(budgetType string) string {
	return "budget-config:" + budgetType
}

func normalizeBudgetType(t string) (string, error) {
	t = strings.ToUpper(strings.TrimSpace(t))
	if t != model.BudgetTypeAutonomo && t != model.BudgetTypeEmpresa {
		return "", invalidf("budget type must be AUTONOMO or EMPRESA")
	}
	return t, nil
}

func (s *budgetConfigService) GetConfig(ctx context.Context, budgetType string) (*PricingConfigDTO, error) {
	t, err := normalizeBudgetType(budgetType)
	if err != nil {
		return nil, err
	}

	var dto PricingConfigDTO
	if s.cache != nil {
		// A broken cache falls back to the database.
		if hit, err := cache.GetJSON(ctx, s.cache, pricingCacheKey(t), &dto); err == nil && hit {
			return &dto, nil
		}
	}

	cfg, err := s.repo.FindActive(ctx, t)
	if err != nil {
		return nil, lookupErr(err, "pricing config")
	}
	dto = toPricingConfigDTO(*cfg)
	if s.cache != nil {
		_ = cache.SetJSON(ctx, s.cache, pricingCacheKey(t), dto, PricingConfigTTL)
	}
	return &dto, nil
}

func (s *budgetConfigService) UpdateConfig(ctx context.Context, budgetType string, req PricingConfigDTO, userID string) (*PricingConfigDTO, error) {
	t, err := normalizeBudgetType(budgetType)
	if err != nil {
		return nil, err
	}
	if err := validatePricing(req); err != nil {
		return nil, err
	}

	var saved model.BudgetPricingConfig
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindActive(txCtx, t)
		if err != nil && !repository.IsNotFound(err) {
			return fmt.Errorf("failed to fetch pricing config: %w", err)
		}
		cfg := fromPricingConfigDTO(req)
		cfg.BudgetType = t
		cfg.IsActive = true
		if existing != nil {
			cfg.ID = existing.ID
			cfg.CreatedAt = existing.CreatedAt
			if cfg.Name == "" {
				cfg.Name = existing.Name
			}
		}
		if cfg.Name == "" {
			cfg.Name = "Tarifa " + strings.ToLower(t)
		}
		if err := s.repo.Replace(txCtx, &cfg); err != nil {
			return fmt.Errorf("failed to save pricing config: %w", err)
		}
		saved = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, pricingCacheKey(t))
	}
	writeAuditLog(ctx, s.audit, userID, model.ActionUpdatePricing, saved.ID.String(), t, map[string]interface{}{
		"invoice_brackets": len(req.InvoiceBrackets),
		"models":           len(req.Models),
		"services":         len(req.Services),
	})

	dto := toPricingConfigDTO(saved)
	return &dto, nil
}

func (s *budgetConfigService) CalculatorConfig(ctx context.Context, budgetType string) (budget.Config, error) {
	dto, err := s.GetConfig(ctx, budgetType)
	if err != nil {
		return budget.Config{}, err
	}
	return calculatorConfig(*dto), nil
}

func validatePricing(req PricingConfigDTO) error {
	check := func(kind string, brackets []BracketDTO) error {
		for i, b := range brackets {
			if b.Min.IsNegative() || b.Value.IsNegative() {
				return invalidf("%s bracket %d has negative values", kind, i+1)
			}
			if b.Max != nil && b.Max.LessThan(b.Min) {
				return invalidf("%s bracket %d has max below min", kind, i+1)
			}
		}
		return nil
	}
	if err := check("invoice", req.InvoiceBrackets); err != nil {
		return err
	}
	if err := check("payroll", req.PayrollBrackets); err != nil {
		return err
	}
	if err := check("revenue", req.RevenueBrackets); err != nil {
		return err
	}
	if req.MonthlyMinimum.IsNegative() {
		return invalidf("monthly minimum must not be negative")
	}
	seen := map[string]bool{}
	for _, m := range req.Models {
		if m.Price.IsNegative() {
			return invalidf("model %s has a negative price", m.Code)
		}
		if seen["m:"+m.Code] {
			return invalidf("model %s is listed twice", m.Code)
		}
		seen["m:"+m.Code] = true
	}
	for _, sv := range req.Services {
		if sv.Price.IsNegative() {
			return invalidf("service %s has a negative price", sv.Code)
		}
		if seen["s:"+sv.Code] {
			return invalidf("service %s is listed twice", sv.Code)
		}
		seen["s:"+sv.Code] = true
	}
	return nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// calculatorConfig keeps only active model and service prices.
func calculatorConfig(dto PricingConfigDTO) budget.Config {
	brackets := func(in []BracketDTO) []budget.Bracket {
		out := make([]budget.Bracket, 0, len(in))
		for _, b := range in {
			out = append(out, budget.Bracket{Min: b.Min, Max: b.Max, Value: b.Value, Label: b.Label})
		}
		return out
	}

	cfg := budget.Config{
		MonthlyPct:      dto.MonthlyPct,
		EDNPct:          dto.EDNPct,
		ModulesPct:      dto.ModulesPct,
		MonthlyMinimum:  dto.MonthlyMinimum,
		InvoiceBrackets: brackets(dto.InvoiceBrackets),
		PayrollBrackets: brackets(dto.PayrollBrackets),
		RevenueBrackets: brackets(dto.RevenueBrackets),
	}
	for _, m := range dto.Models {
		if boolOr(m.IsActive, true) {
			cfg.Models = append(cfg.Models, budget.Priced{Code: m.Code, Name: m.Name, Price: m.Price})
		}
	}
	for _, sv := range dto.Services {
		if boolOr(sv.IsActive, true) {
			cfg.Services = append(cfg.Services, budget.Priced{Code: sv.Code, Name: sv.Name, Price: sv.Price, Kind: sv.Kind})
		}
	}
	return cfg
}

func toPricingConfigDTO(c model.BudgetPricingConfig) PricingConfigDTO {
	brackets := func(kind string) []BracketDTO {
		out := []BracketDTO{}
		for _, b := range c.BracketsOf(kind) {
			out = append(out, BracketDTO{Min: b.Min, Max: b.Max, Value: b.Value, Label: b.Label})
		}
		return out
	}

	dto := PricingConfigDTO{
		BudgetType:      c.BudgetType,
		Name:            c.Name,
		MonthlyPct:      c.MonthlyPct,
		EDNPct:          c.EDNPct,
		ModulesPct:      c.ModulesPct,
		MonthlyMinimum:  c.MonthlyMinimum,
		InvoiceBrackets: brackets(model.BracketInvoices),
		PayrollBrackets: brackets(model.BracketPayroll),
		RevenueBrackets: brackets(model.BracketRevenue),
		Models:          []ModelPriceDTO{},
		Services:        []ServicePriceDTO{},
		UpdatedAt:       c.UpdatedAt.Format(time.RFC3339),
	}
	for _, m := range c.ModelPrices {
		active := m.IsActive
		dto.Models = append(dto.Models, ModelPriceDTO{Code: m.Code, Name: m.Name, Price: m.Price, IsActive: &active})
	}
	for _, sv := range c.ServicePrices {
		active := sv.IsActive
		dto.Services = append(dto.Services, ServicePriceDTO{Code: sv.Code, Name: sv.Name, Price: sv.Price, Kind: sv.Kind, IsActive: &active})
	}
	return dto
}

func fromPricingConfigDTO(dto PricingConfigDTO) model.BudgetPricingConfig {
	cfg := model.BudgetPricingConfig{
		Name:           strings.TrimSpace(dto.Name),
		MonthlyPct:     dto.MonthlyPct,
		EDNPct:         dto.EDNPct,
		ModulesPct:     dto.ModulesPct,
		MonthlyMinimum: dto.MonthlyMinimum,
	}
	add := func(kind string, in []BracketDTO) {
		for i, b := range in {
			cfg.Brackets = append(cfg.Brackets, model.PricingBracket{
				Kind:     kind,
				Position: i + 1,
				Min:      b.Min,
				Max:      b.Max,
				Value:    b.Value,
				Label:    b.Label,
			})
		}
	}
	add(model.BracketInvoices, dto.InvoiceBrackets)
	add(model.BracketPayroll, dto.PayrollBrackets)
	add(model.BracketRevenue, dto.RevenueBrackets)

	for _, m := range dto.Models {
		cfg.ModelPrices = append(cfg.ModelPrices, model.PricingModelPrice{
			Code: strings.TrimSpace(m.Code), Name: m.Name, Price: m.Price, IsActive: boolOr(m.IsActive, true),
		})
	}
	for _, sv := range dto.Services {
		cfg.ServicePrices = append(cfg.ServicePrices, model.PricingServicePrice{
			Code: strings.TrimSpace(sv.Code), Name: sv.Name, Price: sv.Price, Kind: sv.Kind, IsActive: boolOr(sv.IsActive, true),
		})
	}
	return cfg
}
