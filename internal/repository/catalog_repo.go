package repository

import (
	"context"

	"gestoria/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CatalogRepository interface {
	Create(ctx context.Context, item *model.PriceCatalogItem) error
	Update(ctx context.Context, item *model.PriceCatalogItem) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PriceCatalogItem, error)
	FindByKey(ctx context.Context, key string) (*model.PriceCatalogItem, error)
	List(ctx context.Context, activeOnly bool) ([]model.PriceCatalogItem, error)
}

type catalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) Create(ctx context.Context, item *model.PriceCatalogItem) error {
	return GetDB(ctx, r.db).Create(item).Error
}

func (r *catalogRepository) Update(ctx context.Context, item *model.PriceCatalogItem) error {
	return GetDB(ctx, r.db).Save(item).Error
}

func (r *catalogRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.PriceCatalogItem{}).Error
}

func (r *catalogRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PriceCatalogItem, error) {
	var item model.PriceCatalogItem
	if err := GetDB(ctx, r.db).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *catalogRepository) FindByKey(ctx context.Context, key string) (*model.PriceCatalogItem, error) {
	var item model.PriceCatalogItem
	if err := GetDB(ctx, r.db).First(&item, "item_key = ?", key).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *catalogRepository) List(ctx context.Context, activeOnly bool) ([]model.PriceCatalogItem, error) {
	var items []model.PriceCatalogItem
	query := GetDB(ctx, r.db).Order("title ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Find(&items).Error
	return items, err
}
