package repository

import (
	"context"

	"gestoria/internal/model"
	"gestoria/pkg/textfold"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClientFilter narrows List. Search matches the business name and tax id
// ignoring case and accents.
type ClientFilter struct {
	Search string
	Type   string
	Active *bool
}

type ClientRepository interface {
	Create(ctx context.Context, client *model.Client) error
	Update(ctx context.Context, client *model.Client) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error)
	FindByTaxID(ctx context.Context, taxID string) (*model.Client, error)
	List(ctx context.Context, filter ClientFilter, page, limit int) ([]model.Client, int64, error)
}

type clientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) Create(ctx context.Context, client *model.Client) error {
	return GetDB(ctx, r.db).Omit("Assignments").Create(client).Error
}

func (r *clientRepository) Update(ctx context.Context, client *model.Client) error {
	return GetDB(ctx, r.db).Omit("Assignments").Save(client).Error
}

func (r *clientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Client{}).Error
}

func (r *clientRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	var client model.Client
	err := GetDB(ctx, r.db).
		Preload("Assignments", func(db *gorm.DB) *gorm.DB { return db.Order("tax_model_code ASC") }).
		First(&client, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *clientRepository) FindByTaxID(ctx context.Context, taxID string) (*model.Client, error) {
	var client model.Client
	if err := GetDB(ctx, r.db).First(&client, "tax_id = ?", taxID).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *clientRepository) List(ctx context.Context, filter ClientFilter, page, limit int) ([]model.Client, int64, error) {
	var clients []model.Client
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Client{})
	if filter.Search != "" {
		query = query.Where("search_key LIKE ?", "%"+textfold.Fold(filter.Search)+"%")
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Active != nil {
		query = query.Where("is_active = ?", *filter.Active)
	}
	query = query.Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("business_name ASC").Offset(offset(page, limit)).Limit(limit).Find(&clients).Error; err != nil {
		return nil, 0, err
	}
	return clients, total, nil
}
