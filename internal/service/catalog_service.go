package service

import (
	"context"
	"fmt"
	"strings"

	"gestoria/internal/budget"
	"gestoria/internal/model"
	"gestoria/internal/repository"

	"github.com/shopspring/decimal"
)

type CatalogItemRequest struct {
	Key       string           `json:"key" binding:"required,max=100"`
	Title     string           `json:"title" binding:"required,max=255"`
	Unit      string           `json:"unit" binding:"max=50"`
	BasePrice decimal.Decimal  `json:"base_price"`
	VATPct    *decimal.Decimal `json:"vat_pct"` // defaults to 21
	IsActive  *bool            `json:"is_active"`
}

type CatalogItemResponse struct {
	ID           string `json:"id"`
	Key          string `json:"key"`
	Title        string `json:"title"`
	Unit         string `json:"unit"`
	BasePrice    string `json:"base_price"`
	VATPct       string `json:"vat_pct"`
	PriceWithVAT string `json:"price_with_vat"`
	IsActive     bool   `json:"is_active"`
}

type CatalogService interface {
	ListItems(ctx context.Context, activeOnly bool) ([]CatalogItemResponse, error)
	GetItem(ctx context.Context, id string) (*CatalogItemResponse, error)
	CreateItem(ctx context.Context, req CatalogItemRequest) (*CatalogItemResponse, error)
	UpdateItem(ctx context.Context, id string, req CatalogItemRequest) (*CatalogItemResponse, error)
	DeleteItem(ctx context.Context, id string) error
}

type catalogService struct {
	repo repository.CatalogRepository
}

func NewCatalogService(repo repository.CatalogRepository) CatalogService {
	return &catalogService{repo: repo}
}

func (s *catalogService) ListItems(ctx context.Context, activeOnly bool) ([]CatalogItemResponse, error) {
	items, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price catalog: %w", err)
	}
	res := make([]CatalogItemResponse, 0, len(items))
	for _, it := range items {
		res = append(res, toCatalogItemResponse(it))
	}
	return res, nil
}

func (s *catalogService) GetItem(ctx context.Context, id string) (*CatalogItemResponse, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toCatalogItemResponse(*item)
	return &resp, nil
}

func (s *catalogService) find(ctx context.Context, id string) (*model.PriceCatalogItem, error) {
	itemID, err := parseID(id, "catalog item")
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		return nil, lookupErr(err, "catalog item")
	}
	return item, nil
}

func (s *catalogService) CreateItem(ctx context.Context, req CatalogItemRequest) (*CatalogItemResponse, error) {
	item := model.PriceCatalogItem{IsActive: true, VATPct: budget.VATRate}
	if err := s.apply(ctx, &item, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, &item); err != nil {
		return nil, fmt.Errorf("failed to create catalog item: %w", err)
	}
	resp := toCatalogItemResponse(item)
	return &resp, nil
}

func (s *catalogService) UpdateItem(ctx context.Context, id string, req CatalogItemRequest) (*CatalogItemResponse, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, item, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update catalog item: %w", err)
	}
	resp := toCatalogItemResponse(*item)
	return &resp, nil
}

func (s *catalogService) apply(ctx context.Context, item *model.PriceCatalogItem, req CatalogItemRequest) error {
	key := strings.ToLower(strings.TrimSpace(req.Key))
	if req.BasePrice.IsNegative() {
		return invalidf("base_price must not be negative")
	}
	if req.VATPct != nil && (req.VATPct.IsNegative() || req.VATPct.GreaterThan(decimal.NewFromInt(100))) {
		return invalidf("vat_pct must be between 0 and 100")
	}
	if key != item.Key {
		existing, err := s.repo.FindByKey(ctx, key)
		if err == nil && existing.ID != item.ID {
			return conflictf("catalog key %s already exists", key)
		}
		if err != nil && !repository.IsNotFound(err) {
			return fmt.Errorf("failed to check catalog key: %w", err)
		}
	}

	item.Key = key
	item.Title = strings.TrimSpace(req.Title)
	item.Unit = req.Unit
	item.BasePrice = req.BasePrice.Round(2)
	if req.VATPct != nil {
		item.VATPct = *req.VATPct
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	return nil
}

func (s *catalogService) DeleteItem(ctx context.Context, id string) error {
	item, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to delete catalog item: %w", err)
	}
	return nil
}

// PriceWithVAT is base * (1 + vat/100), rounded to cents.
func PriceWithVAT(base, vatPct decimal.Decimal) decimal.Decimal {
	return base.Add(base.Mul(vatPct).Div(decimal.NewFromInt(100))).Round(2)
}

func toCatalogItemResponse(it model.PriceCatalogItem) CatalogItemResponse {
	return CatalogItemResponse{
		ID:           it.ID.String(),
		Key:          it.Key,
		Title:        it.Title,
		Unit:         it.Unit,
		BasePrice:    it.BasePrice.StringFixed(2),
		VATPct:       it.VATPct.StringFixed(2),
		PriceWithVAT: PriceWithVAT(it.BasePrice, it.VATPct).StringFixed(2),
		IsActive:     it.IsActive,
	}
}
