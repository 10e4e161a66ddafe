package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/internal/tax"
	"gestoria/pkg/dateutil"
)

type CalendarEntryRequest struct {
	ModelCode string `json:"model_code" binding:"required,max=10"`
	Period    string `json:"period" binding:"required,max=20"`
	Year      int    `json:"year" binding:"required,min=2000,max=2100"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
	IsActive  *bool  `json:"is_active"`
}

type CalendarStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PENDIENTE ABIERTO CERRADO"`
}

type CalendarListQuery struct {
	Year      int    `form:"year" binding:"omitempty,min=2000,max=2100"`
	ModelCode string `form:"model_code"`
	Status    string `form:"status" binding:"omitempty,oneof=PENDIENTE ABIERTO CERRADO"`
}

type CalendarEntryResponse struct {
	ID          string `json:"id"`
	ModelCode   string `json:"model_code"`
	ModelName   string `json:"model_name"`
	Period      string `json:"period"`
	Year        int    `json:"year"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Status      string `json:"status"`
	IsActive    bool   `json:"is_active"`
	DaysToStart int    `json:"daysToStart"`
	DaysToEnd   int    `json:"daysToEnd"`
}

type TaxCalendarService interface {
	ListEntries(ctx context.Context, q CalendarListQuery) ([]CalendarEntryResponse, error)
	ListOpen(ctx context.Context) ([]CalendarEntryResponse, error)
	GetEntry(ctx context.Context, id string) (*CalendarEntryResponse, error)
	CreateEntry(ctx context.Context, req CalendarEntryRequest, userID string) (*CalendarEntryResponse, error)
	UpdateEntry(ctx context.Context, id string, req CalendarEntryRequest, userID string) (*CalendarEntryResponse, error)
	UpdateStatus(ctx context.Context, id string, status string, userID string) (*CalendarEntryResponse, error)
	DeleteEntry(ctx context.Context, id string, userID string) error
}

type taxCalendarService struct {
	repo  repository.CalendarRepository
	audit repository.AuditRepository
	now   func() time.Time
}

func NewTaxCalendarService(repo repository.CalendarRepository, audit repository.AuditRepository) TaxCalendarService {
	return &taxCalendarService{repo: repo, audit: audit, now: time.Now}
}

func (s *taxCalendarService) ListEntries(ctx context.Context, q CalendarListQuery) ([]CalendarEntryResponse, error) {
	entries, err := s.repo.List(ctx, repository.CalendarFilter{Year: q.Year, ModelCode: q.ModelCode, Status: q.Status})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar: %w", err)
	}
	return s.toResponses(entries), nil
}

func (s *taxCalendarService) ListOpen(ctx context.Context) ([]CalendarEntryResponse, error) {
	entries, err := s.repo.ListOpen(ctx, 0, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open calendar entries: %w", err)
	}
	return s.toResponses(entries), nil
}

func (s *taxCalendarService) GetEntry(ctx context.Context, id string) (*CalendarEntryResponse, error) {
	e, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toCalendarEntryResponse(*e, s.now())
	return &resp, nil
}

func (s *taxCalendarService) find(ctx context.Context, id string) (*model.TaxCalendarEntry, error) {
	entryID, err := parseID(id, "calendar entry")
	if err != nil {
		return nil, err
	}
	e, err := s.repo.FindByID(ctx, entryID)
	if err != nil {
		return nil, lookupErr(err, "calendar entry")
	}
	return e, nil
}

func (s *taxCalendarService) CreateEntry(ctx context.Context, req CalendarEntryRequest, userID string) (*CalendarEntryResponse, error) {
	e := model.TaxCalendarEntry{IsActive: true}
	if err := s.apply(ctx, &e, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, &e); err != nil {
		return nil, fmt.Errorf("failed to create calendar entry: %w", err)
	}
	writeAuditLog(ctx, s.audit, userID, model.ActionUpdateCalendar, e.ID.String(), e.ModelCode+" "+e.Period, req)
	resp := toCalendarEntryResponse(e, s.now())
	return &resp, nil
}

func (s *taxCalendarService) UpdateEntry(ctx context.Context, id string, req CalendarEntryRequest, userID string) (*CalendarEntryResponse, error) {
	e, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, e, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to update calendar entry: %w", err)
	}
	writeAuditLog(ctx, s.audit, userID, model.ActionUpdateCalendar, e.ID.String(), e.ModelCode+" "+e.Period, req)
	resp := toCalendarEntryResponse(*e, s.now())
	return &resp, nil
}

// apply validates req, rejects a duplicate (model, period, year) and sets the
// status from the dates.
func (s *taxCalendarService) apply(ctx context.Context, e *model.TaxCalendarEntry, req CalendarEntryRequest) error {
	code := strings.TrimSpace(req.ModelCode)
	if _, ok := tax.Rules[code]; !ok {
		return invalidf("unknown tax model %s", code)
	}
	start, end, err := parseWindow(req.StartDate, req.EndDate)
	if err != nil {
		return err
	}
	period := strings.TrimSpace(req.Period)

	existing, err := s.repo.List(ctx, repository.CalendarFilter{Year: req.Year, ModelCode: code})
	if err != nil {
		return fmt.Errorf("failed to check calendar: %w", err)
	}
	for _, other := range existing {
		if other.Period == period && other.ID != e.ID {
			return conflictf("calendar entry %s %s/%d already exists", code, period, req.Year)
		}
	}

	e.ModelCode = code
	e.Period = period
	e.Year = req.Year
	e.StartDate = start
	e.EndDate = end
	e.Status = tax.CalendarStatusAt(start, end, s.now())
	if req.IsActive != nil {
		e.IsActive = *req.IsActive
	}
	return nil
}

// UpdateStatus overrides the computed status until the next refresh.
func (s *taxCalendarService) UpdateStatus(ctx context.Context, id string, status string, userID string) (*CalendarEntryResponse, error) {
	e, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, e.ID, status); err != nil {
		return nil, fmt.Errorf("failed to update calendar status: %w", err)
	}
	writeAuditLog(ctx, s.audit, userID, model.ActionUpdateCalendar, e.ID.String(), e.ModelCode+" "+e.Period,
		map[string]string{"from": e.Status, "to": status})
	e.Status = status
	resp := toCalendarEntryResponse(*e, s.now())
	return &resp, nil
}

func (s *taxCalendarService) DeleteEntry(ctx context.Context, id string, userID string) error {
	e, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, e.ID); err != nil {
		return fmt.Errorf("failed to delete calendar entry: %w", err)
	}
	writeAuditLog(ctx, s.audit, userID, model.ActionUpdateCalendar, e.ID.String(), e.ModelCode+" "+e.Period, map[string]string{"deleted_id": id})
	return nil
}

func (s *taxCalendarService) toResponses(entries []model.TaxCalendarEntry) []CalendarEntryResponse {
	now := s.now()
	res := make([]CalendarEntryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, toCalendarEntryResponse(e, now))
	}
	return res
}

func toCalendarEntryResponse(e model.TaxCalendarEntry, now time.Time) CalendarEntryResponse {
	today := dateutil.TruncateDay(now)
	return CalendarEntryResponse{
		ID:          e.ID.String(),
		ModelCode:   e.ModelCode,
		ModelName:   tax.ModelNames[e.ModelCode],
		Period:      e.Period,
		Year:        e.Year,
		StartDate:   e.StartDate.Format("2006-01-02"),
		EndDate:     e.EndDate.Format("2006-01-02"),
		Status:      e.Status,
		IsActive:    e.IsActive,
		DaysToStart: dateutil.DaysUntil(today, dateutil.TruncateDay(e.StartDate)),
		DaysToEnd:   dateutil.DaysUntil(today, dateutil.TruncateDay(e.EndDate)),
	}
}
