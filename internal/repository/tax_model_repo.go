package repository

import (
	"context"

	"gestoria/internal/model"

	"gorm.io/gorm"
)

type TaxModelRepository interface {
	Create(ctx context.Context, m *model.TaxModel) error
	Update(ctx context.Context, m *model.TaxModel) error
	Delete(ctx context.Context, code string) error
	FindByCode(ctx context.Context, code string) (*model.TaxModel, error)
	List(ctx context.Context, activeOnly bool) ([]model.TaxModel, error)
}

type taxModelRepository struct {
	db *gorm.DB
}

func NewTaxModelRepository(db *gorm.DB) TaxModelRepository {
	return &taxModelRepository{db: db}
}

func (r *taxModelRepository) Create(ctx context.Context, m *model.TaxModel) error {
	return GetDB(ctx, r.db).Create(m).Error
}

func (r *taxModelRepository) Update(ctx context.Context, m *model.TaxModel) error {
	return GetDB(ctx, r.db).Save(m).Error
}

func (r *taxModelRepository) Delete(ctx context.Context, code string) error {
	return GetDB(ctx, r.db).Where("code = ?", code).Delete(&model.TaxModel{}).Error
}

func (r *taxModelRepository) FindByCode(ctx context.Context, code string) (*model.TaxModel, error) {
	var m model.TaxModel
	if err := GetDB(ctx, r.db).First(&m, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *taxModelRepository) List(ctx context.Context, activeOnly bool) ([]model.TaxModel, error) {
	var models []model.TaxModel
	query := GetDB(ctx, r.db).Order("code ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}
