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
)

// --- DTOs ---

type CreateAssignmentRequest struct {
	ClientID     string `json:"client_id" binding:"required,uuid"`
	TaxModelCode string `json:"tax_model_code" binding:"required,max=10"`
	Periodicity  string `json:"periodicity" binding:"required,oneof=MENSUAL TRIMESTRAL ANUAL ESPECIAL_FRACCIONADO"`
	StartDate    string `json:"start_date"` // YYYY-MM-DD or DD/MM/YYYY, defaults to today
	Notes        string `json:"notes"`
}

type UpdateAssignmentRequest struct {
	Periodicity string  `json:"periodicity" binding:"omitempty,oneof=MENSUAL TRIMESTRAL ANUAL ESPECIAL_FRACCIONADO"`
	StartDate   string  `json:"start_date"`
	Notes       *string `json:"notes"`
}

type AssignmentResponse struct {
	ID               string  `json:"id"`
	ClientID         string  `json:"client_id"`
	ClientName       string  `json:"client_name,omitempty"`
	TaxModelCode     string  `json:"tax_model_code"`
	TaxModelName     string  `json:"tax_model_name"`
	Periodicity      string  `json:"periodicity"`
	StartDate        string  `json:"start_date"`
	EndDate          *string `json:"end_date"`
	IsActive         bool    `json:"is_active"`
	Notes            string  `json:"notes"`
	GeneratedFilings int     `json:"generated_filings,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

// --- Interface ---

type ClientTaxService interface {
	CreateAssignment(ctx context.Context, req CreateAssignmentRequest, userID string) (*AssignmentResponse, error)
	GetAssignment(ctx context.Context, id string) (*AssignmentResponse, error)
	ListByClient(ctx context.Context, clientID string) ([]AssignmentResponse, error)
	UpdateAssignment(ctx context.Context, id string, req UpdateAssignmentRequest, userID string) (*AssignmentResponse, error)
	ToggleAssignment(ctx context.Context, id string, userID string) (*AssignmentResponse, error)
	DeleteAssignment(ctx context.Context, id string, userID string) error
}

type clientTaxService struct {
	repo      repository.AssignmentRepository
	clients   repository.ClientRepository
	models    repository.TaxModelRepository
	calendar  repository.CalendarRepository
	audit     repository.AuditRepository
	generator *filingGenerator
	notifier  Notifier
	now       func() time.Time
}

func NewClientTaxService(
	repo repository.AssignmentRepository,
	clients repository.ClientRepository,
	models repository.TaxModelRepository,
	calendar repository.CalendarRepository,
	filings repository.FilingRepository,
	audit repository.AuditRepository,
	notifier Notifier,
) ClientTaxService {
	return &clientTaxService{
		repo:      repo,
		clients:   clients,
		models:    models,
		calendar:  calendar,
		audit:     audit,
		generator: &filingGenerator{filings: filings},
		notifier:  notifierOrNop(notifier),
		now:       time.Now,
	}
}

// --- Implementation ---

func (s *clientTaxService) CreateAssignment(ctx context.Context, req CreateAssignmentRequest, userID string) (*AssignmentResponse, error) {
	clientID, err := parseID(req.ClientID, "client")
	if err != nil {
		return nil, err
	}
	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		return nil, lookupErr(err, "client")
	}
	if !client.IsActive {
		return nil, invalidf("client %s is not active", client.BusinessName)
	}

	code := strings.TrimSpace(req.TaxModelCode)
	if err := s.checkModel(ctx, client.Type, code, req.Periodicity); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindActive(ctx, client.ID, code); err == nil {
		return nil, conflictf("client already has an active assignment for model %s", code)
	} else if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check assignment: %w", err)
	}

	start := dateutil.TruncateDay(s.now())
	if req.StartDate != "" {
		parsed, ok := dateutil.ParseDate(req.StartDate)
		if !ok {
			return nil, invalidf("start_date must be YYYY-MM-DD or DD/MM/YYYY")
		}
		start = parsed
	}

	a := model.ClientTaxAssignment{
		ClientID:     client.ID,
		TaxModelCode: code,
		Periodicity:  req.Periodicity,
		StartDate:    start,
		IsActive:     true,
		Notes:        req.Notes,
	}
	if err := s.repo.Create(ctx, &a); err != nil {
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}
	a.Client = client

	generated, err := s.generateFor(ctx, a)
	if err != nil {
		return nil, err
	}

	writeAuditLog(ctx, s.audit, userID, model.ActionAssignTaxModel, a.ID.String(), client.BusinessName, req)
	s.notifier.Notify(websocket.Notification{
		Type:    websocket.NotifyTax,
		Action:  websocket.ActionAssigned,
		Title:   "Modelo asignado",
		Message: fmt.Sprintf("Modelo %s asignado a %s", code, client.BusinessName),
		Data:    map[string]interface{}{"assignment_id": a.ID.String(), "generated": generated},
	})

	resp := toAssignmentResponse(a)
	resp.GeneratedFilings = generated
	return &resp, nil
}

// checkModel validates the model row and the client-type/periodicity rules.
func (s *clientTaxService) checkModel(ctx context.Context, clientType, code, periodicity string) error {
	m, err := s.models.FindByCode(ctx, code)
	if err != nil {
		return lookupErr(err, "tax model")
	}
	if !m.IsActive {
		return invalidf("tax model %s is not active", code)
	}
	if err := tax.ValidateAssignment(clientType, code, periodicity); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (s *clientTaxService) generateFor(ctx context.Context, a model.ClientTaxAssignment) (int, error) {
	entries, err := s.calendar.ListOpen(ctx, 0, a.TaxModelCode)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch open calendar entries: %w", err)
	}
	result, err := s.generator.generate(ctx, []model.ClientTaxAssignment{a}, entries)
	if err != nil {
		return 0, err
	}
	return result.Created, nil
}

func (s *clientTaxService) GetAssignment(ctx context.Context, id string) (*AssignmentResponse, error) {
	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toAssignmentResponse(*a)
	return &resp, nil
}

func (s *clientTaxService) find(ctx context.Context, id string) (*model.ClientTaxAssignment, error) {
	assignmentID, err := parseID(id, "assignment")
	if err != nil {
		return nil, err
	}
	a, err := s.repo.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, lookupErr(err, "assignment")
	}
	return a, nil
}

func (s *clientTaxService) ListByClient(ctx context.Context, clientID string) ([]AssignmentResponse, error) {
	id, err := parseID(clientID, "client")
	if err != nil {
		return nil, err
	}
	if _, err := s.clients.FindByID(ctx, id); err != nil {
		return nil, lookupErr(err, "client")
	}
	list, err := s.repo.ListByClient(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assignments: %w", err)
	}
	res := make([]AssignmentResponse, 0, len(list))
	for _, a := range list {
		res = append(res, toAssignmentResponse(a))
	}
	return res, nil
}

func (s *clientTaxService) UpdateAssignment(ctx context.Context, id string, req UpdateAssignmentRequest, userID string) (*AssignmentResponse, error) {
	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := false
	if req.Periodicity != "" && req.Periodicity != a.Periodicity {
		clientType := ""
		if a.Client != nil {
			clientType = a.Client.Type
		}
		if err := s.checkModel(ctx, clientType, a.TaxModelCode, req.Periodicity); err != nil {
			return nil, err
		}
		a.Periodicity = req.Periodicity
		changed = true
	}
	if req.StartDate != "" {
		parsed, ok := dateutil.ParseDate(req.StartDate)
		if !ok {
			return nil, invalidf("start_date must be YYYY-MM-DD or DD/MM/YYYY")
		}
		a.StartDate = parsed
		changed = true
	}
	if req.Notes != nil {
		a.Notes = *req.Notes
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to update assignment: %w", err)
	}

	generated := 0
	if changed && a.EffectiveActive() {
		if generated, err = s.generateFor(ctx, *a); err != nil {
			return nil, err
		}
	}

	writeAuditLog(ctx, s.audit, userID, model.ActionUpdateAssignment, a.ID.String(), a.TaxModelCode, req)
	resp := toAssignmentResponse(*a)
	resp.GeneratedFilings = generated
	return &resp, nil
}

// ToggleAssignment deactivates an active assignment, closing it today, or
// reactivates an inactive one and generates its pending filings.
func (s *clientTaxService) ToggleAssignment(ctx context.Context, id string, userID string) (*AssignmentResponse, error) {
	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	generated := 0
	if a.EffectiveActive() {
		end := dateutil.TruncateDay(s.now())
		a.IsActive = false
		a.EndDate = &end
		if err := s.repo.Update(ctx, a); err != nil {
			return nil, fmt.Errorf("failed to deactivate assignment: %w", err)
		}
	} else {
		other, err := s.repo.FindActive(ctx, a.ClientID, a.TaxModelCode)
		if err == nil && other.ID != a.ID {
			return nil, conflictf("client already has an active assignment for model %s", a.TaxModelCode)
		}
		if err != nil && !repository.IsNotFound(err) {
			return nil, fmt.Errorf("failed to check assignment: %w", err)
		}
		a.IsActive = true
		a.EndDate = nil
		if err := s.repo.Update(ctx, a); err != nil {
			return nil, fmt.Errorf("failed to reactivate assignment: %w", err)
		}
		if generated, err = s.generateFor(ctx, *a); err != nil {
			return nil, err
		}
	}

	writeAuditLog(ctx, s.audit, userID, model.ActionToggleAssignment, a.ID.String(), a.TaxModelCode, map[string]bool{"is_active": a.IsActive})
	resp := toAssignmentResponse(*a)
	resp.GeneratedFilings = generated
	return &resp, nil
}

// DeleteAssignment closes the assignment. Rows are kept for filing history.
func (s *clientTaxService) DeleteAssignment(ctx context.Context, id string, userID string) error {
	a, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !a.EffectiveActive() {
		return nil
	}
	end := dateutil.TruncateDay(s.now())
	a.IsActive = false
	a.EndDate = &end
	if err := s.repo.Update(ctx, a); err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	writeAuditLog(ctx, s.audit, userID, model.ActionDeleteAssignment, a.ID.String(), a.TaxModelCode, map[string]string{"deleted_id": id})
	return nil
}

// assignForBudget assigns a model to a freshly converted client at its first
// allowed periodicity. Models not allowed for the client type are skipped.
func assignForBudget(ctx context.Context, repo repository.AssignmentRepository, client *model.Client, code string, start time.Time) (bool, error) {
	periodicity, ok := tax.DefaultPeriodicity(code)
	if !ok {
		return false, nil
	}
	if tax.ValidateAssignment(client.Type, code, periodicity) != nil {
		return false, nil
	}
	a := model.ClientTaxAssignment{
		ClientID:     client.ID,
		TaxModelCode: code,
		Periodicity:  periodicity,
		StartDate:    dateutil.TruncateDay(start),
		IsActive:     true,
		Notes:        "Asignado desde presupuesto",
	}
	if err := repo.Create(ctx, &a); err != nil {
		return false, fmt.Errorf("failed to assign model %s: %w", code, err)
	}
	return true, nil
}

// --- Helpers ---

func toAssignmentResponse(a model.ClientTaxAssignment) AssignmentResponse {
	resp := AssignmentResponse{
		ID:           a.ID.String(),
		ClientID:     a.ClientID.String(),
		TaxModelCode: a.TaxModelCode,
		TaxModelName: tax.ModelNames[a.TaxModelCode],
		Periodicity:  a.Periodicity,
		StartDate:    a.StartDate.Format("2006-01-02"),
		IsActive:     a.EffectiveActive(),
		Notes:        a.Notes,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	}
	if a.Client != nil {
		resp.ClientName = a.Client.BusinessName
	}
	if a.EndDate != nil {
		end := a.EndDate.Format("2006-01-02")
		resp.EndDate = &end
	}
	return resp
}
