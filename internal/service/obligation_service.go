package service

import (
	"context"
	"fmt"
	"time"

	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/internal/tax"
	"gestoria/internal/websocket"
	"gestoria/pkg/dateutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type FilingListQuery struct {
	ClientID  string `form:"client_id" binding:"omitempty,uuid"`
	Year      int    `form:"year" binding:"omitempty,min=2000,max=2100"`
	Status    string `form:"status" binding:"omitempty,oneof=PENDING IN_PROGRESS COMPLETED OVERDUE"`
	ModelCode string `form:"model_code"`
}

type UpdateFilingRequest struct {
	Status string  `json:"status" binding:"omitempty,oneof=PENDING IN_PROGRESS"`
	Amount *string `json:"amount"`
	Notes  *string `json:"notes"`
}

type CompleteFilingRequest struct {
	Amount string `json:"amount"`
	Notes  string `json:"notes"`
}

type FilingResponse struct {
	ID              string  `json:"id"`
	ClientID        string  `json:"client_id"`
	ClientName      string  `json:"client_name,omitempty"`
	CalendarEntryID string  `json:"calendar_entry_id"`
	TaxModelCode    string  `json:"tax_model_code"`
	TaxModelName    string  `json:"tax_model_name"`
	Period          string  `json:"period"`
	Year            int     `json:"year"`
	DueDate         string  `json:"due_date"`
	DaysToDue       int     `json:"days_to_due"`
	Status          string  `json:"status"`
	Amount          *string `json:"amount"`
	CompletedAt     *string `json:"completed_at"`
	CompletedBy     *string `json:"completed_by"`
	Notes           string  `json:"notes"`
}

// --- Interface ---

type ObligationService interface {
	// DueReport lists which active assignments have an open period in year.
	DueReport(ctx context.Context, year int) (*tax.FilterReport, error)
	GenerateAuto(ctx context.Context) (GenerationResult, error)
	GenerateForPeriod(ctx context.Context, calendarID string) (GenerationResult, error)
	GenerateForClient(ctx context.Context, clientID string) (GenerationResult, error)
	ListFilings(ctx context.Context, q FilingListQuery, page, limit int) ([]FilingResponse, int64, error)
	GetFiling(ctx context.Context, id string) (*FilingResponse, error)
	UpdateFiling(ctx context.Context, id string, req UpdateFilingRequest) (*FilingResponse, error)
	CompleteFiling(ctx context.Context, id string, req CompleteFilingRequest, userID string) (*FilingResponse, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context, clientID string) (*repository.FilingStats, error)
}

type obligationService struct {
	filings     repository.FilingRepository
	assignments repository.AssignmentRepository
	clients     repository.ClientRepository
	calendar    repository.CalendarRepository
	audit       repository.AuditRepository
	generator   *filingGenerator
	notifier    Notifier
	now         func() time.Time
}

func NewObligationService(
	filings repository.FilingRepository,
	assignments repository.AssignmentRepository,
	clients repository.ClientRepository,
	calendar repository.CalendarRepository,
	audit repository.AuditRepository,
	notifier Notifier,
) ObligationService {
	return &obligationService{
		filings:     filings,
		assignments: assignments,
		clients:     clients,
		calendar:    calendar,
		audit:       audit,
		generator:   &filingGenerator{filings: filings},
		notifier:    notifierOrNop(notifier),
		now:         time.Now,
	}
}

// --- Implementation ---

func (s *obligationService) DueReport(ctx context.Context, year int) (*tax.FilterReport, error) {
	if year <= 0 {
		year = s.now().Year()
	}
	assignments, err := s.assignments.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assignments: %w", err)
	}
	entries, err := s.calendar.ListOpen(ctx, year, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open calendar entries: %w", err)
	}

	report := tax.FilterDue(assignmentViews(assignments), calendarViews(entries), year)
	return &report, nil
}

func assignmentViews(list []model.ClientTaxAssignment) []tax.Assignment {
	out := make([]tax.Assignment, 0, len(list))
	for _, a := range list {
		name := ""
		if a.Client != nil {
			name = a.Client.BusinessName
		}
		out = append(out, tax.Assignment{
			ClientID:    a.ClientID.String(),
			ClientName:  name,
			ModelCode:   a.TaxModelCode,
			Periodicity: a.Periodicity,
			Active:      a.EffectiveActive(),
		})
	}
	return out
}

func calendarViews(list []model.TaxCalendarEntry) []tax.CalendarEntry {
	out := make([]tax.CalendarEntry, 0, len(list))
	for _, e := range list {
		out = append(out, tax.CalendarEntry{ID: e.ID.String(), ModelCode: e.ModelCode, Period: e.Period, Year: e.Year, Status: e.Status})
	}
	return out
}

func (s *obligationService) GenerateAuto(ctx context.Context) (GenerationResult, error) {
	assignments, err := s.assignments.ListActive(ctx)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to fetch assignments: %w", err)
	}
	entries, err := s.calendar.ListOpen(ctx, 0, "")
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to fetch open calendar entries: %w", err)
	}
	result, err := s.generator.generate(ctx, assignments, entries)
	if err != nil {
		return result, err
	}
	s.notifyGenerated(result, "")
	return result, nil
}

func (s *obligationService) GenerateForPeriod(ctx context.Context, calendarID string) (GenerationResult, error) {
	id, err := parseID(calendarID, "calendar entry")
	if err != nil {
		return GenerationResult{}, err
	}
	entry, err := s.calendar.FindByID(ctx, id)
	if err != nil {
		return GenerationResult{}, lookupErr(err, "calendar entry")
	}
	if !entry.IsActive || entry.Status != model.CalendarStatusAbierto {
		return GenerationResult{}, invalidf("calendar entry %s %s/%d is not open", entry.ModelCode, entry.Period, entry.Year)
	}

	assignments, err := s.assignments.ListActiveByModel(ctx, entry.ModelCode)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to fetch assignments: %w", err)
	}
	result, err := s.generator.generate(ctx, assignments, []model.TaxCalendarEntry{*entry})
	if err != nil {
		return result, err
	}
	s.notifyGenerated(result, fmt.Sprintf("modelo %s %s/%d", entry.ModelCode, entry.Period, entry.Year))
	return result, nil
}

func (s *obligationService) GenerateForClient(ctx context.Context, clientID string) (GenerationResult, error) {
	id, err := parseID(clientID, "client")
	if err != nil {
		return GenerationResult{}, err
	}
	client, err := s.clients.FindByID(ctx, id)
	if err != nil {
		return GenerationResult{}, lookupErr(err, "client")
	}
	if !client.IsActive {
		return GenerationResult{}, invalidf("client %s is not active", client.BusinessName)
	}

	assignments, err := s.assignments.ListByClient(ctx, client.ID)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to fetch assignments: %w", err)
	}
	for i := range assignments {
		assignments[i].Client = client
	}
	entries, err := s.calendar.ListOpen(ctx, 0, "")
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to fetch open calendar entries: %w", err)
	}
	result, err := s.generator.generate(ctx, assignments, entries)
	if err != nil {
		return result, err
	}
	s.notifyGenerated(result, client.BusinessName)
	return result, nil
}

func (s *obligationService) notifyGenerated(result GenerationResult, scope string) {
	if result.Created == 0 {
		return
	}
	msg := fmt.Sprintf("%d obligaciones generadas", result.Created)
	if scope != "" {
		msg += " para " + scope
	}
	s.notifier.Notify(websocket.Notification{
		Type:    websocket.NotifyTax,
		Action:  websocket.ActionCreated,
		Title:   "Obligaciones fiscales",
		Message: msg,
		Data:    result,
	})
}

func (s *obligationService) ListFilings(ctx context.Context, q FilingListQuery, page, limit int) ([]FilingResponse, int64, error) {
	filter := repository.FilingFilter{Year: q.Year, Status: q.Status, ModelCode: q.ModelCode}
	if q.ClientID != "" {
		id, err := parseID(q.ClientID, "client")
		if err != nil {
			return nil, 0, err
		}
		filter.ClientID = &id
	}
	filings, total, err := s.filings.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch filings: %w", err)
	}
	now := s.now()
	res := make([]FilingResponse, 0, len(filings))
	for _, f := range filings {
		res = append(res, toFilingResponse(f, now))
	}
	return res, total, nil
}

func (s *obligationService) GetFiling(ctx context.Context, id string) (*FilingResponse, error) {
	f, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toFilingResponse(*f, s.now())
	return &resp, nil
}

func (s *obligationService) find(ctx context.Context, id string) (*model.ClientTaxFiling, error) {
	filingID, err := parseID(id, "filing")
	if err != nil {
		return nil, err
	}
	f, err := s.filings.FindByID(ctx, filingID)
	if err != nil {
		return nil, lookupErr(err, "filing")
	}
	return f, nil
}

func (s *obligationService) UpdateFiling(ctx context.Context, id string, req UpdateFilingRequest) (*FilingResponse, error) {
	f, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Status == model.FilingStatusCompleted && req.Status != "" {
		return nil, conflictf("filing is already completed")
	}
	if req.Status != "" {
		f.Status = req.Status
	}
	if req.Amount != nil {
		amount, err := parseAmount(*req.Amount)
		if err != nil {
			return nil, err
		}
		f.Amount = amount
	}
	if req.Notes != nil {
		f.Notes = *req.Notes
	}
	if err := s.filings.Update(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to update filing: %w", err)
	}
	resp := toFilingResponse(*f, s.now())
	return &resp, nil
}

func (s *obligationService) CompleteFiling(ctx context.Context, id string, req CompleteFilingRequest, userID string) (*FilingResponse, error) {
	f, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Status == model.FilingStatusCompleted {
		return nil, conflictf("filing is already completed")
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	now := s.now()
	f.Status = model.FilingStatusCompleted
	f.CompletedAt = &now
	if amount != nil {
		f.Amount = amount
	}
	if req.Notes != "" {
		f.Notes = req.Notes
	}
	if uid, err := uuid.Parse(userID); err == nil {
		f.CompletedBy = &uid
	}
	if err := s.filings.Update(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to complete filing: %w", err)
	}

	name := f.TaxModelCode + " " + f.Period
	if f.Client != nil {
		name = f.Client.BusinessName + " - " + name
	}
	writeAuditLog(ctx, s.audit, userID, model.ActionCompleteFiling, f.ID.String(), name, req)
	s.notifier.Notify(websocket.Notification{
		Type:    websocket.NotifyTax,
		Action:  websocket.ActionUpdated,
		Title:   "Obligación presentada",
		Message: name,
		Data:    map[string]string{"id": f.ID.String()},
	})

	resp := toFilingResponse(*f, now)
	return &resp, nil
}

// MarkOverdue flips every PENDING filing due before today to OVERDUE.
func (s *obligationService) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.filings.MarkOverdue(ctx, dateutil.TruncateDay(now))
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue filings: %w", err)
	}
	if n > 0 {
		s.notifier.Notify(websocket.Notification{
			Type:    websocket.NotifyTax,
			Action:  websocket.ActionReminder,
			Title:   "Obligaciones vencidas",
			Message: fmt.Sprintf("%d obligaciones han vencido", n),
			Data:    map[string]int64{"overdue": n},
		})
	}
	return n, nil
}

func (s *obligationService) Stats(ctx context.Context, clientID string) (*repository.FilingStats, error) {
	var filter *uuid.UUID
	if clientID != "" {
		id, err := parseID(clientID, "client")
		if err != nil {
			return nil, err
		}
		filter = &id
	}
	stats, err := s.filings.Stats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch filing stats: %w", err)
	}
	return &stats, nil
}

// --- Helpers ---

func parseAmount(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, invalidf("amount must be a decimal number")
	}
	d = d.Round(2)
	return &d, nil
}

func toFilingResponse(f model.ClientTaxFiling, now time.Time) FilingResponse {
	resp := FilingResponse{
		ID:              f.ID.String(),
		ClientID:        f.ClientID.String(),
		CalendarEntryID: f.CalendarEntryID.String(),
		TaxModelCode:    f.TaxModelCode,
		TaxModelName:    tax.ModelNames[f.TaxModelCode],
		Period:          f.Period,
		Year:            f.Year,
		DueDate:         f.DueDate.Format("2006-01-02"),
		DaysToDue:       dateutil.DaysUntil(dateutil.TruncateDay(now), dateutil.TruncateDay(f.DueDate)),
		Status:          f.Status,
		Notes:           f.Notes,
	}
	if f.Client != nil {
		resp.ClientName = f.Client.BusinessName
	}
	if f.Amount != nil {
		a := f.Amount.StringFixed(2)
		resp.Amount = &a
	}
	if f.CompletedAt != nil {
		c := f.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &c
	}
	if f.CompletedBy != nil {
		c := f.CompletedBy.String()
		resp.CompletedBy = &c
	}
	return resp
}
