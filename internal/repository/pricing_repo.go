package repository

import (
	"context"

	"gestoria/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PricingRepository interface {
	// FindActive loads the active config of a budget type with all its tables.
	FindActive(ctx context.Context, budgetType string) (*model.BudgetPricingConfig, error)
	// Replace overwrites the scalar fields of cfg and swaps its child tables.
	Replace(ctx context.Context, cfg *model.BudgetPricingConfig) error
}

type pricingRepository struct {
	db *gorm.DB
}

func NewPricingRepository(db *gorm.DB) PricingRepository {
	return &pricingRepository{db: db}
}

func (r *pricingRepository) FindActive(ctx context.Context, budgetType string) (*model.BudgetPricingConfig, error) {
	var cfg model.BudgetPricingConfig
	err := GetDB(ctx, r.db).
		Preload("Brackets", func(db *gorm.DB) *gorm.DB { return db.Order("kind ASC, position ASC") }).
		Preload("ModelPrices", func(db *gorm.DB) *gorm.DB { return db.Order("code ASC") }).
		Preload("ServicePrices", func(db *gorm.DB) *gorm.DB { return db.Order("code ASC") }).
		Where("budget_type = ? AND is_active = ?", budgetType, true).
		Order("updated_at DESC").
		First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *pricingRepository) Replace(ctx context.Context, cfg *model.BudgetPricingConfig) error {
	db := GetDB(ctx, r.db)
	if err := db.Omit("Brackets", "ModelPrices", "ServicePrices").Save(cfg).Error; err != nil {
		return err
	}

	for _, child := range []interface{}{&model.PricingBracket{}, &model.PricingModelPrice{}, &model.PricingServicePrice{}} {
		if err := db.Where("config_id = ?", cfg.ID).Delete(child).Error; err != nil {
			return err
		}
	}

	for i := range cfg.Brackets {
		cfg.Brackets[i].ID = uuid.Nil
		cfg.Brackets[i].ConfigID = cfg.ID
	}
	for i := range cfg.ModelPrices {
		cfg.ModelPrices[i].ID = uuid.Nil
		cfg.ModelPrices[i].ConfigID = cfg.ID
	}
	for i := range cfg.ServicePrices {
		cfg.ServicePrices[i].ID = uuid.Nil
		cfg.ServicePrices[i].ConfigID = cfg.ID
	}

	if len(cfg.Brackets) > 0 {
		if err := db.Create(&cfg.Brackets).Error; err != nil {
			return err
		}
	}
	if len(cfg.ModelPrices) > 0 {
		if err := db.Create(&cfg.ModelPrices).Error; err != nil {
			return err
		}
	}
	if len(cfg.ServicePrices) > 0 {
		if err := db.Create(&cfg.ServicePrices).Error; err != nil {
			return err
		}
	}
	return nil
}
