package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gestoria/internal/budget"
	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

// BudgetInput holds the calculation inputs shared by calculate, create and update.
type BudgetInput struct {
	Type          string          `json:"type" binding:"required,oneof=AUTONOMO EMPRESA"`
	InvoiceCount  int             `json:"invoice_count"`
	PayrollCount  int             `json:"payroll_count"`
	AnnualRevenue decimal.Decimal `json:"annual_revenue"`
	Periodicity   string          `json:"periodicity" binding:"required"`
	TaxRegime     string          `json:"tax_regime" binding:"required"`
	LabourService bool            `json:"labour_service"`
	TaxModels     []string        `json:"tax_models"`
	Services      []string        `json:"services"`
	DiscountType  string          `json:"discount_type" binding:"omitempty,oneof=PORCENTAJE FIJO"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

type BudgetRequest struct {
	BudgetInput
	ProspectName string `json:"prospect_name" binding:"required,max=255"`
	TaxID        string `json:"tax_id"`
	Email        string `json:"email" binding:"omitempty,email"`
	Phone        string `json:"phone" binding:"omitempty,max=30"`
	Address      string `json:"address"`
}

type RejectBudgetRequest struct {
	Reason string `json:"reason"`
}

type BudgetListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=BORRADOR ENVIADO ACEPTADO RECHAZADO"`
	Type   string `form:"type" binding:"omitempty,oneof=AUTONOMO EMPRESA"`
	Year   int    `form:"year" binding:"omitempty,min=2000,max=2100"`
	Search string `form:"search"`
}

type BudgetItemResponse struct {
	Position  int    `json:"position"`
	Concept   string `json:"concept"`
	Category  string `json:"category"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	VATPct    string `json:"vat_pct"`
	Subtotal  string `json:"subtotal"`
	Total     string `json:"total"`
	Recurring bool   `json:"recurring"`
}

type BudgetResponse struct {
	ID            string               `json:"id"`
	Number        string               `json:"number"`
	Year          int                  `json:"year"`
	Type          string               `json:"type"`
	ProspectName  string               `json:"prospect_name"`
	TaxID         string               `json:"tax_id"`
	Email         string               `json:"email"`
	Phone         string               `json:"phone"`
	Address       string               `json:"address"`
	InvoiceCount  int                  `json:"invoice_count"`
	PayrollCount  int                  `json:"payroll_count"`
	AnnualRevenue string               `json:"annual_revenue"`
	Periodicity   string               `json:"periodicity"`
	TaxRegime     string               `json:"tax_regime"`
	LabourService bool                 `json:"labour_service"`
	TaxModels     []string             `json:"tax_models"`
	Services      []string             `json:"services"`
	DiscountType  string               `json:"discount_type"`
	DiscountValue string               `json:"discount_value"`
	Subtotal      string               `json:"subtotal"`
	VATTotal      string               `json:"vat_total"`
	Total         string               `json:"total"`
	Status        string               `json:"status"`
	SentAt        *string              `json:"sent_at"`
	AcceptedAt    *string              `json:"accepted_at"`
	RejectedAt    *string              `json:"rejected_at"`
	RejectReason  string               `json:"reject_reason"`
	ClientID      *string              `json:"client_id"`
	Items         []BudgetItemResponse `json:"items,omitempty"`
	CreatedAt     string               `json:"created_at"`
}

type BudgetStatsResponse struct {
	repository.BudgetStats
	ConversionRate float64 `json:"conversion_rate"`
}

type ConvertBudgetResponse struct {
	Budget         BudgetResponse `json:"budget"`
	Client         ClientResponse `json:"client"`
	AssignedModels []string       `json:"assigned_models"`
	SkippedModels  []string       `json:"skipped_models"`
}

// BudgetRenderer turns a budget into a PDF document.
type BudgetRenderer interface {
	Render(b model.Budget) ([]byte, error)
}

// --- Interface ---

type BudgetService interface {
	Calculate(ctx context.Context, in BudgetInput) (*budget.Result, error)
	CreateBudget(ctx context.Context, req BudgetRequest, userID string) (*BudgetResponse, error)
	GetBudget(ctx context.Context, id string) (*BudgetResponse, error)
	ListBudgets(ctx context.Context, q BudgetListQuery, page, limit int) ([]BudgetResponse, int64, error)
	UpdateBudget(ctx context.Context, id string, req BudgetRequest, userID string) (*BudgetResponse, error)
	Recalculate(ctx context.Context, id string, userID string) (*BudgetResponse, error)
	DeleteBudget(ctx context.Context, id string, userID string) error
	Send(ctx context.Context, id string, userID string) (*BudgetResponse, error)
	Accept(ctx context.Context, id string, userID string) (*BudgetResponse, error)
	Reject(ctx context.Context, id string, reason string, userID string) (*BudgetResponse, error)
	Convert(ctx context.Context, id string, userID string) (*ConvertBudgetResponse, error)
	Stats(ctx context.Context, year int) (*BudgetStatsResponse, error)
	PDF(ctx context.Context, id string) ([]byte, string, error)
}

type budgetService struct {
	repo        repository.BudgetRepository
	clients     repository.ClientRepository
	assignments repository.AssignmentRepository
	audit       repository.AuditRepository
	txManager   repository.TransactionManager
	pricing     BudgetConfigService
	renderer    BudgetRenderer
	notifier    Notifier
	now         func() time.Time
}

func NewBudgetService(
	repo repository.BudgetRepository,
	clients repository.ClientRepository,
	assignments repository.AssignmentRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
	pricing BudgetConfigService,
	renderer BudgetRenderer,
	notifier Notifier,
) BudgetService {
	return &budgetService{
		repo:        repo,
		clients:     clients,
		assignments: assignments,
		audit:       audit,
		txManager:   txManager,
		pricing:     pricing,
		renderer:    renderer,
		notifier:    notifierOrNop(notifier),
		now:         time.Now,
	}
}

// --- Implementation ---

func (s *budgetService) Calculate(ctx context.Context, in BudgetInput) (*budget.Result, error) {
	result, err := s.calculate(ctx, in)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *budgetService) calculate(ctx context.Context, in BudgetInput) (budget.Result, error) {
	cfg, err := s.pricing.CalculatorConfig(ctx, in.Type)
	if err != nil {
		return budget.Result{}, err
	}
	result, err := budget.Calculate(cfg, calculatorInput(in))
	if err != nil {
		var verr *budget.ValidationError
		if errors.As(err, &verr) {
			return budget.Result{}, fmt.Errorf("%w: %s", ErrInvalidInput, verr.Error())
		}
		return budget.Result{}, fmt.Errorf("failed to calculate budget: %w", err)
	}
	return result, nil
}

func calculatorInput(in BudgetInput) budget.Input {
	out := budget.Input{
		InvoiceCount:  in.InvoiceCount,
		PayrollCount:  in.PayrollCount,
		AnnualRevenue: in.AnnualRevenue,
		Periodicity:   in.Periodicity,
		TaxRegime:     in.TaxRegime,
		LabourService: in.LabourService,
		TaxModels:     in.TaxModels,
		Services:      in.Services,
	}
	if in.DiscountType != "" {
		out.Discount = &budget.Discount{Type: in.DiscountType, Value: in.DiscountValue}
	}
	return out
}

const budgetNumberAttempts = 3

func (s *budgetService) CreateBudget(ctx context.Context, req BudgetRequest, userID string) (*BudgetResponse, error) {
	result, err := s.calculate(ctx, req.BudgetInput)
	if err != nil {
		return nil, err
	}

	now := s.now()
	b := model.Budget{Year: now.Year(), Status: model.BudgetStatusDraft}
	applyBudgetRequest(&b, req)
	applyResult(&b, result)
	if uid, err := uuid.Parse(userID); err == nil {
		b.CreatedBy = &uid
	}

	// A concurrent create may take the same number; retry with a fresh one.
	for attempt := 1; ; attempt++ {
		err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			number, err := s.repo.NextNumber(txCtx, b.Year)
			if err != nil {
				return fmt.Errorf("failed to number budget: %w", err)
			}
			b.Number = number
			if err := s.repo.Create(txCtx, &b); err != nil {
				return fmt.Errorf("failed to create budget: %w", err)
			}
			return nil
		})
		if err == nil {
			break
		}
		if !repository.IsDuplicateKey(err) {
			return nil, err
		}
		if attempt == budgetNumberAttempts {
			return nil, conflictf("could not allocate a budget number for %d", b.Year)
		}
		b.ID = uuid.Nil
		for i := range b.Items {
			b.Items[i].ID = uuid.Nil
			b.Items[i].BudgetID = uuid.Nil
		}
	}

	writeAuditLog(ctx, s.audit, userID, model.ActionCreateBudget, b.ID.String(), b.Number, map[string]string{"prospect": b.ProspectName, "total": b.Total.StringFixed(2)})
	s.notify(websocket.ActionCreated, "Nuevo presupuesto", b)

	resp := toBudgetResponse(b)
	return &resp, nil
}

func (s *budgetService) GetBudget(ctx context.Context, id string) (*BudgetResponse, error) {
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toBudgetResponse(*b)
	return &resp, nil
}

func (s *budgetService) find(ctx context.Context, id string) (*model.Budget, error) {
	budgetID, err := parseID(id, "budget")
	if err != nil {
		return nil, err
	}
	b, err := s.repo.FindByID(ctx, budgetID)
	if err != nil {
		return nil, lookupErr(err, "budget")
	}
	return b, nil
}

func (s *budgetService) ListBudgets(ctx context.Context, q BudgetListQuery, page, limit int) ([]BudgetResponse, int64, error) {
	budgets, total, err := s.repo.List(ctx, repository.BudgetFilter{Status: q.Status, Type: q.Type, Year: q.Year, Search: q.Search}, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch budgets: %w", err)
	}
	res := make([]BudgetResponse, 0, len(budgets))
	for _, b := range budgets {
		res = append(res, toBudgetResponse(b))
	}
	return res, total, nil
}

// UpdateBudget replaces the inputs of a draft or sent budget and reprices it.
func (s *budgetService) UpdateBudget(ctx context.Context, id string, req BudgetRequest, userID string) (*BudgetResponse, error) {
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireEditable(b); err != nil {
		return nil, err
	}
	result, err := s.calculate(ctx, req.BudgetInput)
	if err != nil {
		return nil, err
	}
	applyBudgetRequest(b, req)
	if err := s.store(ctx, b, result); err != nil {
		return nil, err
	}

	writeAuditLog(ctx, s.audit, userID, model.ActionUpdateBudget, b.ID.String(), b.Number, req)
	s.notify(websocket.ActionUpdated, "Presupuesto actualizado", *b)
	resp := toBudgetResponse(*b)
	return &resp, nil
}

// Recalculate reprices the stored inputs against the current pricing config.
func (s *budgetService) Recalculate(ctx context.Context, id string, userID string) (*BudgetResponse, error) {
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireEditable(b); err != nil {
		return nil, err
	}
	result, err := s.calculate(ctx, inputFromBudget(*b))
	if err != nil {
		return nil, err
	}
	if err := s.store(ctx, b, result); err != nil {
		return nil, err
	}

	writeAuditLog(ctx, s.audit, userID, model.ActionUpdateBudget, b.ID.String(), b.Number, map[string]string{"recalculated_total": b.Total.StringFixed(2)})
	s.notify(websocket.ActionUpdated, "Presupuesto recalculado", *b)
	resp := toBudgetResponse(*b)
	return &resp, nil
}

func (s *budgetService) store(ctx context.Context, b *model.Budget, result budget.Result) error {
	applyResult(b, result)
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Update(txCtx, b); err != nil {
			return fmt.Errorf("failed to update budget: %w", err)
		}
		if err := s.repo.ReplaceItems(txCtx, b.ID, b.Items); err != nil {
			return fmt.Errorf("failed to replace budget items: %w", err)
		}
		return nil
	})
}

func requireEditable(b *model.Budget) error {
	if b.Status != model.BudgetStatusDraft && b.Status != model.BudgetStatusSent {
		return conflictf("budget %s is %s and can no longer be changed", b.Number, b.Status)
	}
	return nil
}

func (s *budgetService) DeleteBudget(ctx context.Context, id string, userID string) error {
	b, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if b.ClientID != nil {
		return conflictf("budget %s was converted to a client and cannot be deleted", b.Number)
	}
	if err := s.repo.Delete(ctx, b.ID); err != nil {
		return fmt.Errorf("failed to delete budget: %w", err)
	}
	writeAuditLog(ctx, s.audit, userID, model.ActionDeleteBudget, b.ID.String(), b.Number, map[string]string{"deleted_id": id})
	s.notify(websocket.ActionDeleted, "Presupuesto eliminado", *b)
	return nil
}

func (s *budgetService) Send(ctx context.Context, id string, userID string) (*BudgetResponse, error) {
	return s.transition(ctx, id, userID, model.ActionSendBudget, func(b *model.Budget, now time.Time) error {
		if b.Status != model.BudgetStatusDraft {
			return conflictf("only draft budgets can be sent, budget %s is %s", b.Number, b.Status)
		}
		b.Status = model.BudgetStatusSent
		b.SentAt = &now
		return nil
	}, "Presupuesto enviado")
}

func (s *budgetService) Accept(ctx context.Context, id string, userID string) (*BudgetResponse, error) {
	return s.transition(ctx, id, userID, model.ActionAcceptBudget, func(b *model.Budget, now time.Time) error {
		if err := requireEditable(b); err != nil {
			return err
		}
		b.Status = model.BudgetStatusAccepted
		b.AcceptedAt = &now
		return nil
	}, "Presupuesto aceptado")
}

func (s *budgetService) Reject(ctx context.Context, id string, reason string, userID string) (*BudgetResponse, error) {
	return s.transition(ctx, id, userID, model.ActionRejectBudget, func(b *model.Budget, now time.Time) error {
		if err := requireEditable(b); err != nil {
			return err
		}
		b.Status = model.BudgetStatusRejected
		b.RejectedAt = &now
		b.RejectReason = strings.TrimSpace(reason)
		return nil
	}, "Presupuesto rechazado")
}

func (s *budgetService) transition(ctx context.Context, id, userID, action string, apply func(*model.Budget, time.Time) error, title string) (*BudgetResponse, error) {
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	from := b.Status
	if err := apply(b, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to update budget status: %w", err)
	}

	writeAuditLog(ctx, s.audit, userID, action, b.ID.String(), b.Number, map[string]string{"from": from, "to": b.Status})
	s.notify(websocket.ActionUpdated, title, *b)
	resp := toBudgetResponse(*b)
	return &resp, nil
}

// Convert creates a client from an accepted budget and assigns its tax models.
func (s *budgetService) Convert(ctx context.Context, id string, userID string) (*ConvertBudgetResponse, error) {
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BudgetStatusAccepted {
		return nil, conflictf("only accepted budgets can be converted, budget %s is %s", b.Number, b.Status)
	}
	if b.ClientID != nil {
		return nil, conflictf("budget %s was already converted", b.Number)
	}
	taxID := NormalizeTaxID(b.TaxID)
	if !validTaxID(taxID) {
		return nil, invalidf("budget %s needs a valid NIF/CIF before conversion", b.Number)
	}
	if _, err := s.clients.FindByTaxID(ctx, taxID); err == nil {
		return nil, conflictf("a client with tax id %s already exists", taxID)
	} else if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check tax id: %w", err)
	}

	client := model.Client{
		BusinessName:   b.ProspectName,
		TaxID:          taxID,
		Type:           b.Type,
		Email:          strings.ToLower(strings.TrimSpace(b.Email)),
		Phone:          b.Phone,
		Address:        b.Address,
		IsActive:       true,
		OriginBudgetID: &b.ID,
	}
	resp := ConvertBudgetResponse{AssignedModels: []string{}, SkippedModels: []string{}}
	now := s.now()

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.clients.Create(txCtx, &client); err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		for _, code := range b.ModelCodes() {
			assigned, err := assignForBudget(txCtx, s.assignments, &client, code, now)
			if err != nil {
				return err
			}
			if assigned {
				resp.AssignedModels = append(resp.AssignedModels, code)
			} else {
				resp.SkippedModels = append(resp.SkippedModels, code)
			}
		}
		b.ClientID = &client.ID
		if err := s.repo.Update(txCtx, b); err != nil {
			return fmt.Errorf("failed to link budget to client: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	writeAuditLog(ctx, s.audit, userID, model.ActionConvertBudget, b.ID.String(), b.Number, map[string]interface{}{
		"client_id": client.ID.String(),
		"assigned":  resp.AssignedModels,
	})
	s.notifier.Notify(websocket.Notification{
		Type:    websocket.NotifyGeneral,
		Action:  websocket.ActionCreated,
		Title:   "Presupuesto convertido",
		Message: fmt.Sprintf("%s es ahora cliente (%s)", client.BusinessName, b.Number),
		Data:    map[string]string{"budget_id": b.ID.String(), "client_id": client.ID.String()},
	})

	resp.Budget = toBudgetResponse(*b)
	resp.Client = toClientResponse(client)
	return &resp, nil
}

func (s *budgetService) Stats(ctx context.Context, year int) (*BudgetStatsResponse, error) {
	stats, err := s.repo.Stats(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch budget stats: %w", err)
	}
	resp := BudgetStatsResponse{BudgetStats: stats}
	if stats.Total > 0 {
		rate := float64(stats.Accepted) / float64(stats.Total) * 100
		resp.ConversionRate = math.Round(rate*100) / 100
	}
	return &resp, nil
}

// PDF renders the budget and returns the document with its file name.
func (s *budgetService) PDF(ctx context.Context, id string) ([]byte, string, error) {
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if s.renderer == nil {
		return nil, "", errors.New("pdf renderer not configured")
	}
	doc, err := s.renderer.Render(*b)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render budget pdf: %w", err)
	}
	return doc, b.Number + ".pdf", nil
}

func (s *budgetService) notify(action, title string, b model.Budget) {
	s.notifier.Notify(websocket.Notification{
		Type:    websocket.NotifyGeneral,
		Action:  action,
		Title:   title,
		Message: fmt.Sprintf("%s - %s (%s €)", b.Number, b.ProspectName, b.Total.StringFixed(2)),
		Data:    map[string]string{"id": b.ID.String(), "status": b.Status},
	})
}

// --- Helpers ---

func applyBudgetRequest(b *model.Budget, req BudgetRequest) {
	b.Type = req.Type
	b.ProspectName = strings.TrimSpace(req.ProspectName)
	b.TaxID = NormalizeTaxID(req.TaxID)
	b.Email = strings.TrimSpace(req.Email)
	b.Phone = req.Phone
	b.Address = req.Address
	b.InvoiceCount = req.InvoiceCount
	b.PayrollCount = req.PayrollCount
	b.AnnualRevenue = req.AnnualRevenue
	b.Periodicity = strings.ToUpper(strings.TrimSpace(req.Periodicity))
	b.TaxRegime = strings.ToUpper(strings.TrimSpace(req.TaxRegime))
	b.LabourService = req.LabourService
	b.TaxModels = strings.Join(req.TaxModels, ",")
	b.Services = strings.Join(req.Services, ",")
	b.DiscountType = req.DiscountType
	b.DiscountValue = req.DiscountValue
	if req.DiscountType == "" {
		b.DiscountValue = decimal.Zero
	}
}

func applyResult(b *model.Budget, result budget.Result) {
	b.Subtotal = result.Subtotal
	b.VATTotal = result.VATTotal
	b.Total = result.Total
	b.Items = make([]model.BudgetItem, 0, len(result.Items))
	for _, it := range result.Items {
		b.Items = append(b.Items, model.BudgetItem{
			BudgetID:  b.ID,
			Position:  it.Position,
			Concept:   it.Concept,
			Category:  it.Category,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			VATPct:    it.VATPct,
			Subtotal:  it.Subtotal,
			Total:     it.Total,
			Recurring: it.Recurring,
		})
	}
}

func inputFromBudget(b model.Budget) BudgetInput {
	return BudgetInput{
		Type:          b.Type,
		InvoiceCount:  b.InvoiceCount,
		PayrollCount:  b.PayrollCount,
		AnnualRevenue: b.AnnualRevenue,
		Periodicity:   b.Periodicity,
		TaxRegime:     b.TaxRegime,
		LabourService: b.LabourService,
		TaxModels:     b.ModelCodes(),
		Services:      b.ServiceCodes(),
		DiscountType:  b.DiscountType,
		DiscountValue: b.DiscountValue,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toBudgetResponse(b model.Budget) BudgetResponse {
	resp := BudgetResponse{
		ID:            b.ID.String(),
		Number:        b.Number,
		Year:          b.Year,
		Type:          b.Type,
		ProspectName:  b.ProspectName,
		TaxID:         b.TaxID,
		Email:         b.Email,
		Phone:         b.Phone,
		Address:       b.Address,
		InvoiceCount:  b.InvoiceCount,
		PayrollCount:  b.PayrollCount,
		AnnualRevenue: b.AnnualRevenue.StringFixed(2),
		Periodicity:   b.Periodicity,
		TaxRegime:     b.TaxRegime,
		LabourService: b.LabourService,
		TaxModels:     b.ModelCodes(),
		Services:      b.ServiceCodes(),
		DiscountType:  b.DiscountType,
		DiscountValue: b.DiscountValue.StringFixed(2),
		Subtotal:      b.Subtotal.StringFixed(2),
		VATTotal:      b.VATTotal.StringFixed(2),
		Total:         b.Total.StringFixed(2),
		Status:        b.Status,
		SentAt:        formatTime(b.SentAt),
		AcceptedAt:    formatTime(b.AcceptedAt),
		RejectedAt:    formatTime(b.RejectedAt),
		RejectReason:  b.RejectReason,
		CreatedAt:     b.CreatedAt.Format(time.RFC3339),
	}
	if resp.TaxModels == nil {
		resp.TaxModels = []string{}
	}
	if resp.Services == nil {
		resp.Services = []string{}
	}
	if b.ClientID != nil {
		c := b.ClientID.String()
		resp.ClientID = &c
	}
	for _, it := range b.Items {
		resp.Items = append(resp.Items, BudgetItemResponse{
			Position:  it.Position,
			Concept:   it.Concept,
			Category:  it.Category,
			Quantity:  it.Quantity.StringFixed(2),
			UnitPrice: it.UnitPrice.StringFixed(2),
			VATPct:    it.VATPct.StringFixed(2),
			Subtotal:  it.Subtotal.StringFixed(2),
			Total:     it.Total.StringFixed(2),
			Recurring: it.Recurring,
		})
	}
	return resp
}
