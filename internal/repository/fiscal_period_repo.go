package repository

import (
	"context"

	"gestoria/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FiscalPeriodRepository interface {
	Create(ctx context.Context, p *model.FiscalPeriod) error
	Update(ctx context.Context, p *model.FiscalPeriod) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.FiscalPeriod, error)
	List(ctx context.Context, year int, status string) ([]model.FiscalPeriod, error)
	// ListForRefresh returns every period ordered by year desc, then start asc.
	ListForRefresh(ctx context.Context) ([]model.FiscalPeriod, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type fiscalPeriodRepository struct {
	db *gorm.DB
}

func NewFiscalPeriodRepository(db *gorm.DB) FiscalPeriodRepository {
	return &fiscalPeriodRepository{db: db}
}

func (r *fiscalPeriodRepository) Create(ctx context.Context, p *model.FiscalPeriod) error {
	return GetDB(ctx, r.db).Create(p).Error
}

func (r *fiscalPeriodRepository) Update(ctx context.Context, p *model.FiscalPeriod) error {
	return GetDB(ctx, r.db).Save(p).Error
}

func (r *fiscalPeriodRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.FiscalPeriod{}).Error
}

func (r *fiscalPeriodRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.FiscalPeriod, error) {
	var p model.FiscalPeriod
	if err := GetDB(ctx, r.db).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *fiscalPeriodRepository) List(ctx context.Context, year int, status string) ([]model.FiscalPeriod, error) {
	var periods []model.FiscalPeriod
	query := GetDB(ctx, r.db)
	if year > 0 {
		query = query.Where("year = ?", year)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("year DESC, starts_at ASC, label ASC").Find(&periods).Error
	return periods, err
}

func (r *fiscalPeriodRepository) ListForRefresh(ctx context.Context) ([]model.FiscalPeriod, error) {
	return r.List(ctx, 0, "")
}

func (r *fiscalPeriodRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.FiscalPeriod{}).Where("id = ?", id).Update("status", status).Error
}
