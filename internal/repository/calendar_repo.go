package repository

import (
	"context"

	"gestoria/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CalendarFilter narrows List. Zero values are ignored.
type CalendarFilter struct {
	Year      int
	ModelCode string
	Status    string
}

type CalendarRepository interface {
	Create(ctx context.Context, e *model.TaxCalendarEntry) error
	Update(ctx context.Context, e *model.TaxCalendarEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.TaxCalendarEntry, error)
	List(ctx context.Context, filter CalendarFilter) ([]model.TaxCalendarEntry, error)
	// ListOpen returns active ABIERTO entries, optionally restricted to a year and model.
	ListOpen(ctx context.Context, year int, modelCode string) ([]model.TaxCalendarEntry, error)
	ListActive(ctx context.Context) ([]model.TaxCalendarEntry, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type calendarRepository struct {
	db *gorm.DB
}

func NewCalendarRepository(db *gorm.DB) CalendarRepository {
	return &calendarRepository{db: db}
}

func (r *calendarRepository) Create(ctx context.Context, e *model.TaxCalendarEntry) error {
	return GetDB(ctx, r.db).Create(e).Error
}

func (r *calendarRepository) Update(ctx context.Context, e *model.TaxCalendarEntry) error {
	return GetDB(ctx, r.db).Save(e).Error
}

func (r *calendarRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.TaxCalendarEntry{}).Error
}

func (r *calendarRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.TaxCalendarEntry, error) {
	var e model.TaxCalendarEntry
	if err := GetDB(ctx, r.db).First(&e, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *calendarRepository) List(ctx context.Context, filter CalendarFilter) ([]model.TaxCalendarEntry, error) {
	var entries []model.TaxCalendarEntry
	query := GetDB(ctx, r.db)
	if filter.Year > 0 {
		query = query.Where("year = ?", filter.Year)
	}
	if filter.ModelCode != "" {
		query = query.Where("model_code = ?", filter.ModelCode)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	err := query.Order("start_date ASC, model_code ASC").Find(&entries).Error
	return entries, err
}

func (r *calendarRepository) ListOpen(ctx context.Context, year int, modelCode string) ([]model.TaxCalendarEntry, error) {
	var entries []model.TaxCalendarEntry
	query := GetDB(ctx, r.db).Where("status = ? AND is_active = ?", model.CalendarStatusAbierto, true)
	if year > 0 {
		query = query.Where("year = ?", year)
	}
	if modelCode != "" {
		query = query.Where("model_code = ?", modelCode)
	}
	err := query.Order("end_date ASC, model_code ASC").Find(&entries).Error
	return entries, err
}

func (r *calendarRepository) ListActive(ctx context.Context) ([]model.TaxCalendarEntry, error) {
	var entries []model.TaxCalendarEntry
	err := GetDB(ctx, r.db).Where("is_active = ?", true).Order("year DESC, start_date ASC").Find(&entries).Error
	return entries, err
}

func (r *calendarRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.TaxCalendarEntry{}).Where("id = ?", id).Update("status", status).Error
}
