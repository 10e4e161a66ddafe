package service

import (
	"context"
	"time"

	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/pkg/dateutil"

	"github.com/shopspring/decimal"
)

const (
	deadlineWindowDays = 30
	dashboardListLimit = 5
)

type StatisticsService interface {
	GetDashboard(ctx context.Context, startDate, endDate time.Time) (*model.DashboardStats, error)
}

type statisticsService struct {
	repo repository.StatisticsRepository
	now  func() time.Time
}

func NewStatisticsService(repo repository.StatisticsRepository) StatisticsService {
	return &statisticsService{repo: repo, now: time.Now}
}

// GetDashboard aggregates figures for [startDate, endDate]. Deadlines always
// look 30 days ahead of today regardless of the range.
func (s *statisticsService) GetDashboard(ctx context.Context, startDate, endDate time.Time) (*model.DashboardStats, error) {
	if endDate.Before(startDate) {
		return nil, invalidf("end_date must not be before start_date")
	}
	stats := &model.DashboardStats{TimeRangeStartDate: startDate, TimeRangeEndDate: endDate, AcceptedValue: decimal.Zero}

	var err error
	if stats.Clients, err = s.repo.ActiveClientsByType(ctx); err != nil {
		return nil, err
	}
	for _, c := range stats.Clients {
		stats.ActiveClients += c.Count
	}

	if stats.Filings, err = s.repo.FilingsByStatus(ctx, startDate, endDate); err != nil {
		return nil, err
	}

	if stats.Budgets, err = s.repo.BudgetsByStatus(ctx, startDate, endDate); err != nil {
		return nil, err
	}
	for _, b := range stats.Budgets {
		if b.Status == model.BudgetStatusAccepted {
			stats.AcceptedValue = b.Total
		}
	}

	today := dateutil.TruncateDay(s.now())
	stats.UpcomingDeadlines, err = s.repo.UpcomingDeadlines(ctx, today, today.AddDate(0, 0, deadlineWindowDays), dashboardListLimit)
	if err != nil {
		return nil, err
	}
	for i := range stats.UpcomingDeadlines {
		stats.UpcomingDeadlines[i].DaysLeft = dateutil.DaysUntil(today, stats.UpcomingDeadlines[i].DueDate)
	}

	if stats.TopClients, err = s.repo.TopClients(ctx, dashboardListLimit); err != nil {
		return nil, err
	}
	return stats, nil
}
