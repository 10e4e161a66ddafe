package repository

import (
	"context"
	"fmt"
	"time"

	"gestoria/internal/model"

	"gorm.io/gorm"
)

type StatisticsRepository interface {
	ActiveClientsByType(ctx context.Context) ([]model.TypeCount, error)
	// FilingsByStatus counts filings whose due date falls in [start, end].
	FilingsByStatus(ctx context.Context, start, end time.Time) ([]model.StatusCount, error)
	// BudgetsByStatus groups budgets created in [start, end].
	BudgetsByStatus(ctx context.Context, start, end time.Time) ([]model.BudgetStatusTotal, error)
	UpcomingDeadlines(ctx context.Context, from, to time.Time, limit int) ([]model.Deadline, error)
	TopClients(ctx context.Context, limit int) ([]model.ClientRanking, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

func (r *statisticsRepository) ActiveClientsByType(ctx context.Context) ([]model.TypeCount, error) {
	var counts []model.TypeCount
	if err := r.db.WithContext(ctx).Model(&model.Client{}).
		Select("type, COUNT(*) as count").
		Where("is_active = ?", true).
		Group("type").
		Order("type").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count clients: %w", err)
	}
	return counts, nil
}

func (r *statisticsRepository) FilingsByStatus(ctx context.Context, start, end time.Time) ([]model.StatusCount, error) {
	var counts []model.StatusCount
	if err := r.db.WithContext(ctx).Model(&model.ClientTaxFiling{}).
		Select("status, COUNT(*) as count").
		Where("due_date >= ? AND due_date <= ?", start, end).
		Group("status").
		Order("status").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count filings: %w", err)
	}
	return counts, nil
}

func (r *statisticsRepository) BudgetsByStatus(ctx context.Context, start, end time.Time) ([]model.BudgetStatusTotal, error) {
	var totals []model.BudgetStatusTotal
	if err := r.db.WithContext(ctx).Model(&model.Budget{}).
		Select("status, COUNT(*) as count, COALESCE(SUM(total), 0) as total").
		Where("created_at >= ? AND created_at <= ?", start, end).
		Group("status").
		Order("status").
		Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("failed to total budgets: %w", err)
	}
	return totals, nil
}

func (r *statisticsRepository) UpcomingDeadlines(ctx context.Context, from, to time.Time, limit int) ([]model.Deadline, error) {
	var deadlines []model.Deadline
	if err := r.db.WithContext(ctx).Table("client_tax_filings").
		Select("client_tax_filings.id as filing_id, clients.id as client_id, clients.business_name as client_name, "+
			"client_tax_filings.tax_model_code, client_tax_filings.period, client_tax_filings.year, "+
			"client_tax_filings.due_date, client_tax_filings.status").
		Joins("JOIN clients ON clients.id = client_tax_filings.client_id AND clients.deleted_at IS NULL").
		Where("client_tax_filings.status IN ? AND client_tax_filings.due_date >= ? AND client_tax_filings.due_date <= ?",
			[]string{model.FilingStatusPending, model.FilingStatusInProgress}, from, to).
		Order("client_tax_filings.due_date ASC, clients.business_name ASC").
		Limit(limit).
		Scan(&deadlines).Error; err != nil {
		return nil, fmt.Errorf("failed to query upcoming deadlines: %w", err)
	}
	return deadlines, nil
}

func (r *statisticsRepository) TopClients(ctx context.Context, limit int) ([]model.ClientRanking, error) {
	var rankings []model.ClientRanking
	if err := r.db.WithContext(ctx).Table("client_tax_filings").
		Select("clients.id as client_id, clients.business_name as client_name, COUNT(*) as open_filings, "+
			"SUM(CASE WHEN client_tax_filings.status = ? THEN 1 ELSE 0 END) as overdue", model.FilingStatusOverdue).
		Joins("JOIN clients ON clients.id = client_tax_filings.client_id AND clients.deleted_at IS NULL").
		Where("client_tax_filings.status IN ?", []string{model.FilingStatusPending, model.FilingStatusOverdue}).
		Group("clients.id, clients.business_name").
		Order("open_filings DESC, clients.business_name ASC").
		Limit(limit).
		Scan(&rankings).Error; err != nil {
		return nil, fmt.Errorf("failed to rank clients: %w", err)
	}
	return rankings, nil
}
