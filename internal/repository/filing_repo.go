package repository

import (
	"context"
	"time"

	"gestoria/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FilingFilter narrows List. Zero values are ignored.
type FilingFilter struct {
	ClientID  *uuid.UUID
	Year      int
	Status    string
	ModelCode string
}

// FilingStats counts filings per status.
type FilingStats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
	Overdue    int64 `json:"overdue"`
}

type FilingRepository interface {
	// CreateIfAbsent inserts f unless a filing for the same client and
	// calendar entry exists. It reports whether a row was created.
	CreateIfAbsent(ctx context.Context, f *model.ClientTaxFiling) (bool, error)
	Update(ctx context.Context, f *model.ClientTaxFiling) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ClientTaxFiling, error)
	List(ctx context.Context, filter FilingFilter, page, limit int) ([]model.ClientTaxFiling, int64, error)
	// MarkOverdue flips PENDING filings due before today to OVERDUE.
	MarkOverdue(ctx context.Context, today time.Time) (int64, error)
	Stats(ctx context.Context, clientID *uuid.UUID) (FilingStats, error)
}

type filingRepository struct {
	db *gorm.DB
}

func NewFilingRepository(db *gorm.DB) FilingRepository {
	return &filingRepository{db: db}
}

func (r *filingRepository) CreateIfAbsent(ctx context.Context, f *model.ClientTaxFiling) (bool, error) {
	db := GetDB(ctx, r.db)
	var n int64
	if err := db.Model(&model.ClientTaxFiling{}).
		Where("client_id = ? AND calendar_entry_id = ?", f.ClientID, f.CalendarEntryID).
		Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if err := db.Omit("Client", "CalendarEntry").Create(f).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *filingRepository) Update(ctx context.Context, f *model.ClientTaxFiling) error {
	return GetDB(ctx, r.db).Omit("Client", "CalendarEntry").Save(f).Error
}

func (r *filingRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ClientTaxFiling, error) {
	var f model.ClientTaxFiling
	if err := GetDB(ctx, r.db).Preload("Client").Preload("CalendarEntry").First(&f, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *filingRepository) List(ctx context.Context, filter FilingFilter, page, limit int) ([]model.ClientTaxFiling, int64, error) {
	var filings []model.ClientTaxFiling
	var total int64

	query := GetDB(ctx, r.db).Model(&model.ClientTaxFiling{})
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Year > 0 {
		query = query.Where("year = ?", filter.Year)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ModelCode != "" {
		query = query.Where("tax_model_code = ?", filter.ModelCode)
	}
	query = query.Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Preload("Client").
		Order("due_date ASC, tax_model_code ASC").
		Offset(offset(page, limit)).Limit(limit).
		Find(&filings).Error
	if err != nil {
		return nil, 0, err
	}
	return filings, total, nil
}

func (r *filingRepository) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.ClientTaxFiling{}).
		Where("status = ? AND due_date < ?", model.FilingStatusPending, today).
		Update("status", model.FilingStatusOverdue)
	return res.RowsAffected, res.Error
}

func (r *filingRepository) Stats(ctx context.Context, clientID *uuid.UUID) (FilingStats, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row

	query := GetDB(ctx, r.db).Model(&model.ClientTaxFiling{}).Select("status, COUNT(*) AS count").Group("status")
	if clientID != nil {
		query = query.Where("client_id = ?", *clientID)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return FilingStats{}, err
	}

	var stats FilingStats
	for _, rw := range rows {
		stats.Total += rw.Count
		switch rw.Status {
		case model.FilingStatusPending:
			stats.Pending = rw.Count
		case model.FilingStatusInProgress:
			stats.InProgress = rw.Count
		case model.FilingStatusCompleted:
			stats.Completed = rw.Count
		case model.FilingStatusOverdue:
			stats.Overdue = rw.Count
		}
	}
	return stats, nil
}
