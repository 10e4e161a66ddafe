package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/internal/tax"
	"gestoria/internal/websocket"
	"gestoria/pkg/dateutil"
	"gestoria/pkg/logger"

	"github.com/google/uuid"
)

// FiscalPeriodStore is what the status updater needs from storage.
type FiscalPeriodStore interface {
	// ListForRefresh returns every period ordered by year desc, then start asc.
	ListForRefresh(ctx context.Context) ([]model.FiscalPeriod, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// CalendarStore is what the updater needs to refresh calendar entries.
type CalendarStore interface {
	ListActive(ctx context.Context) ([]model.TaxCalendarEntry, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// RefreshResult counts period transitions. CalendarUpdated counts calendar
// entries whose status changed in the same run.
type RefreshResult struct {
	OpenedCount     int `json:"opened_count"`
	ClosedCount     int `json:"closed_count"`
	UnchangedCount  int `json:"unchanged_count"`
	CalendarUpdated int `json:"calendar_updated"`
}

// PeriodStatusUpdater recomputes fiscal period and calendar statuses from
// their dates. The first storage error aborts the run; updates already
// written are kept.
type PeriodStatusUpdater struct {
	periods  FiscalPeriodStore
	calendar CalendarStore
	log      *logger.Logger
}

// NewPeriodStatusUpdater builds an updater. calendar may be nil to refresh
// fiscal periods only.
func NewPeriodStatusUpdater(periods FiscalPeriodStore, calendar CalendarStore, log *logger.Logger) *PeriodStatusUpdater {
	if log == nil {
		log = logger.Nop()
	}
	return &PeriodStatusUpdater{periods: periods, calendar: calendar, log: log}
}

// Run applies tax.NextPeriodStatus to every period at now and persists changes.
func (u *PeriodStatusUpdater) Run(ctx context.Context, now time.Time) (RefreshResult, error) {
	var result RefreshResult

	periods, err := u.periods.ListForRefresh(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list fiscal periods: %w", err)
	}

	for _, p := range periods {
		next := tax.NextPeriodStatus(p.Status, p.StartsAt, p.EndsAt, now)
		if next == p.Status {
			result.UnchangedCount++
			continue
		}
		if err := u.periods.UpdateStatus(ctx, p.ID, next); err != nil {
			return result, fmt.Errorf("failed to update period %d/%s: %w", p.Year, p.Label, err)
		}
		u.log.Info().Int("year", p.Year).Str("label", p.Label).
			Str("from", p.Status).Str("to", next).Msg("fiscal period status changed")

		switch next {
		case model.PeriodStatusOpen:
			result.OpenedCount++
		case model.PeriodStatusClosed:
			result.ClosedCount++
		}
	}

	if u.calendar != nil {
		n, err := u.RefreshCalendar(ctx, now)
		result.CalendarUpdated = n
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// RefreshCalendar sets every active calendar entry to tax.CalendarStatusAt.
func (u *PeriodStatusUpdater) RefreshCalendar(ctx context.Context, now time.Time) (int, error) {
	entries, err := u.calendar.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list calendar entries: %w", err)
	}
	updated := 0
	for _, e := range entries {
		next := tax.CalendarStatusAt(e.StartDate, e.EndDate, now)
		if next == e.Status {
			continue
		}
		if err := u.calendar.UpdateStatus(ctx, e.ID, next); err != nil {
			return updated, fmt.Errorf("failed to update calendar %s %s/%d: %w", e.ModelCode, e.Period, e.Year, err)
		}
		updated++
	}
	return updated, nil
}

// --- Fiscal period CRUD ---

type FiscalPeriodRequest struct {
	Year     int    `json:"year" binding:"required,min=2000,max=2100"`
	Label    string `json:"label" binding:"required,max=20"`
	Kind     string `json:"kind" binding:"required,oneof=MONTH QUARTER YEAR SPECIAL"`
	StartsAt string `json:"starts_at" binding:"required"`
	EndsAt   string `json:"ends_at" binding:"required"`
}

type FiscalPeriodListQuery struct {
	Year   int    `form:"year" binding:"omitempty,min=2000,max=2100"`
	Status string `form:"status" binding:"omitempty,oneof=PENDING OPEN CLOSED"`
}

type FiscalPeriodResponse struct {
	ID       string `json:"id"`
	Year     int    `json:"year"`
	Label    string `json:"label"`
	Kind     string `json:"kind"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
	Status   string `json:"status"`
}

type FiscalPeriodService interface {
	ListPeriods(ctx context.Context, q FiscalPeriodListQuery) ([]FiscalPeriodResponse, error)
	GetPeriod(ctx context.Context, id string) (*FiscalPeriodResponse, error)
	CreatePeriod(ctx context.Context, req FiscalPeriodRequest) (*FiscalPeriodResponse, error)
	UpdatePeriod(ctx context.Context, id string, req FiscalPeriodRequest) (*FiscalPeriodResponse, error)
	DeletePeriod(ctx context.Context, id string) error
	RefreshStatus(ctx context.Context) (RefreshResult, error)
}

type fiscalPeriodService struct {
	repo     repository.FiscalPeriodRepository
	updater  *PeriodStatusUpdater
	notifier Notifier
	now      func() time.Time
}

func NewFiscalPeriodService(repo repository.FiscalPeriodRepository, updater *PeriodStatusUpdater, notifier Notifier) FiscalPeriodService {
	return &fiscalPeriodService{repo: repo, updater: updater, notifier: notifierOrNop(notifier), now: time.Now}
}

func (s *fiscalPeriodService) ListPeriods(ctx context.Context, q FiscalPeriodListQuery) ([]FiscalPeriodResponse, error) {
	periods, err := s.repo.List(ctx, q.Year, q.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fiscal periods: %w", err)
	}
	res := make([]FiscalPeriodResponse, 0, len(periods))
	for _, p := range periods {
		res = append(res, toFiscalPeriodResponse(p))
	}
	return res, nil
}

func (s *fiscalPeriodService) GetPeriod(ctx context.Context, id string) (*FiscalPeriodResponse, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toFiscalPeriodResponse(*p)
	return &resp, nil
}

func (s *fiscalPeriodService) find(ctx context.Context, id string) (*model.FiscalPeriod, error) {
	periodID, err := parseID(id, "fiscal period")
	if err != nil {
		return nil, err
	}
	p, err := s.repo.FindByID(ctx, periodID)
	if err != nil {
		return nil, lookupErr(err, "fiscal period")
	}
	return p, nil
}

func (s *fiscalPeriodService) CreatePeriod(ctx context.Context, req FiscalPeriodRequest) (*FiscalPeriodResponse, error) {
	start, end, err := parseWindow(req.StartsAt, req.EndsAt)
	if err != nil {
		return nil, err
	}
	label := strings.TrimSpace(req.Label)
	existing, err := s.repo.List(ctx, req.Year, "")
	if err != nil {
		return nil, fmt.Errorf("failed to check fiscal periods: %w", err)
	}
	for _, p := range existing {
		if p.Label == label {
			return nil, conflictf("fiscal period %s/%d already exists", label, req.Year)
		}
	}

	p := model.FiscalPeriod{
		Year:     req.Year,
		Label:    label,
		Kind:     req.Kind,
		StartsAt: start,
		EndsAt:   end,
		Status:   tax.NextPeriodStatus(model.PeriodStatusPending, start, end, s.now()),
	}
	if err := s.repo.Create(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to create fiscal period: %w", err)
	}
	resp := toFiscalPeriodResponse(p)
	return &resp, nil
}

func (s *fiscalPeriodService) UpdatePeriod(ctx context.Context, id string, req FiscalPeriodRequest) (*FiscalPeriodResponse, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	start, end, err := parseWindow(req.StartsAt, req.EndsAt)
	if err != nil {
		return nil, err
	}
	p.Year = req.Year
	p.Label = strings.TrimSpace(req.Label)
	p.Kind = req.Kind
	p.StartsAt = start
	p.EndsAt = end
	p.Status = tax.NextPeriodStatus(p.Status, start, end, s.now())
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update fiscal period: %w", err)
	}
	resp := toFiscalPeriodResponse(*p)
	return &resp, nil
}

func (s *fiscalPeriodService) DeletePeriod(ctx context.Context, id string) error {
	p, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, p.ID); err != nil {
		return fmt.Errorf("failed to delete fiscal period: %w", err)
	}
	return nil
}

func (s *fiscalPeriodService) RefreshStatus(ctx context.Context) (RefreshResult, error) {
	result, err := s.updater.Run(ctx, s.now())
	if err != nil {
		return result, err
	}
	msg := fmt.Sprintf("Periodos actualizados: %d abiertos, %d cerrados, %d sin cambios",
		result.OpenedCount, result.ClosedCount, result.UnchangedCount)
	s.notifier.SystemLog(websocket.SystemLog{Type: websocket.LogUpdate, Level: websocket.LevelSuccess, Message: msg})
	return result, nil
}

func parseWindow(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, ok := dateutil.ParseDate(startRaw)
	if !ok {
		return time.Time{}, time.Time{}, invalidf("start date must be YYYY-MM-DD or DD/MM/YYYY")
	}
	end, ok := dateutil.ParseDate(endRaw)
	if !ok {
		return time.Time{}, time.Time{}, invalidf("end date must be YYYY-MM-DD or DD/MM/YYYY")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, invalidf("end date is before start date")
	}
	return start, end, nil
}

func toFiscalPeriodResponse(p model.FiscalPeriod) FiscalPeriodResponse {
	return FiscalPeriodResponse{
		ID:       p.ID.String(),
		Year:     p.Year,
		Label:    p.Label,
		Kind:     p.Kind,
		StartsAt: p.StartsAt.Format("2006-01-02"),
		EndsAt:   p.EndsAt.Format("2006-01-02"),
		Status:   p.Status,
	}
}
