package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/internal/templating"
)

type DocumentTemplateRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Type        string `json:"type" binding:"required,oneof=CONTRATO CARTA RECIBO OTRO"`
	Description string `json:"description"`
	Body        string `json:"body" binding:"required"`
	IsActive    *bool  `json:"is_active"`
}

type NotificationTemplateRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Type     string `json:"type" binding:"required,max=20"`
	Subject  string `json:"subject" binding:"required,max=255"`
	Body     string `json:"body" binding:"required"`
	IsActive *bool  `json:"is_active"`
}

// RenderRequest supplies placeholder values. When client_id or budget_id is
// given their fields are added; explicit variables win.
type RenderRequest struct {
	Variables map[string]interface{} `json:"variables"`
	ClientID  string                 `json:"client_id" binding:"omitempty,uuid"`
	BudgetID  string                 `json:"budget_id" binding:"omitempty,uuid"`
}

type TemplateResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Body        string   `json:"body"`
	IsActive    bool     `json:"is_active"`
	Variables   []string `json:"variables"`
	UpdatedAt   string   `json:"updated_at"`
}

type RenderResponse struct {
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
}

type TemplateService interface {
	ListTemplates(ctx context.Context, templateType string) ([]TemplateResponse, error)
	GetTemplate(ctx context.Context, id string) (*TemplateResponse, error)
	CreateTemplate(ctx context.Context, req DocumentTemplateRequest) (*TemplateResponse, error)
	UpdateTemplate(ctx context.Context, id string, req DocumentTemplateRequest) (*TemplateResponse, error)
	DeleteTemplate(ctx context.Context, id string) error
	RenderTemplate(ctx context.Context, id string, req RenderRequest) (*RenderResponse, error)
	TemplateVariables(ctx context.Context, id string) ([]string, error)

	ListNotificationTemplates(ctx context.Context, templateType string) ([]TemplateResponse, error)
	GetNotificationTemplate(ctx context.Context, id string) (*TemplateResponse, error)
	CreateNotificationTemplate(ctx context.Context, req NotificationTemplateRequest) (*TemplateResponse, error)
	UpdateNotificationTemplate(ctx context.Context, id string, req NotificationTemplateRequest) (*TemplateResponse, error)
	DeleteNotificationTemplate(ctx context.Context, id string) error
	RenderNotificationTemplate(ctx context.Context, id string, req RenderRequest) (*RenderResponse, error)
}

type templateService struct {
	repo    repository.TemplateRepository
	clients repository.ClientRepository
	budgets repository.BudgetRepository
	engine  *templating.Engine
	now     func() time.Time
}

func NewTemplateService(repo repository.TemplateRepository, clients repository.ClientRepository, budgets repository.BudgetRepository, engine *templating.Engine) TemplateService {
	if engine == nil {
		engine = templating.NewEngine()
	}
	return &templateService{repo: repo, clients: clients, budgets: budgets, engine: engine, now: time.Now}
}

// --- Document templates ---

func (s *templateService) ListTemplates(ctx context.Context, templateType string) ([]TemplateResponse, error) {
	list, err := s.repo.List(ctx, templateType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch templates: %w", err)
	}
	res := make([]TemplateResponse, 0, len(list))
	for _, t := range list {
		res = append(res, toDocumentTemplateResponse(t))
	}
	return res, nil
}

func (s *templateService) GetTemplate(ctx context.Context, id string) (*TemplateResponse, error) {
	t, err := s.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toDocumentTemplateResponse(*t)
	return &resp, nil
}

func (s *templateService) findDocument(ctx context.Context, id string) (*model.DocumentTemplate, error) {
	templateID, err := parseID(id, "template")
	if err != nil {
		return nil, err
	}
	t, err := s.repo.FindByID(ctx, templateID)
	if err != nil {
		return nil, lookupErr(err, "template")
	}
	return t, nil
}

func (s *templateService) CreateTemplate(ctx context.Context, req DocumentTemplateRequest) (*TemplateResponse, error) {
	t := model.DocumentTemplate{
		Name:        strings.TrimSpace(req.Name),
		Type:        req.Type,
		Description: req.Description,
		Body:        req.Body,
		IsActive:    boolOr(req.IsActive, true),
	}
	if err := s.repo.Create(ctx, &t); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	resp := toDocumentTemplateResponse(t)
	return &resp, nil
}

func (s *templateService) UpdateTemplate(ctx context.Context, id string, req DocumentTemplateRequest) (*TemplateResponse, error) {
	t, err := s.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Name = strings.TrimSpace(req.Name)
	t.Type = req.Type
	t.Description = req.Description
	t.Body = req.Body
	t.IsActive = boolOr(req.IsActive, t.IsActive)
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}
	resp := toDocumentTemplateResponse(*t)
	return &resp, nil
}

func (s *templateService) DeleteTemplate(ctx context.Context, id string) error {
	t, err := s.findDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, t.ID); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

func (s *templateService) RenderTemplate(ctx context.Context, id string, req RenderRequest) (*RenderResponse, error) {
	t, err := s.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	vars, err := s.variables(ctx, req)
	if err != nil {
		return nil, err
	}
	return &RenderResponse{Content: s.engine.Render(t.Body, vars)}, nil
}

func (s *templateService) TemplateVariables(ctx context.Context, id string) ([]string, error) {
	t, err := s.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return templating.Variables(t.Body), nil
}

// --- Notification templates ---

func (s *templateService) ListNotificationTemplates(ctx context.Context, templateType string) ([]TemplateResponse, error) {
	list, err := s.repo.ListNotifications(ctx, templateType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notification templates: %w", err)
	}
	res := make([]TemplateResponse, 0, len(list))
	for _, t := range list {
		res = append(res, toNotificationTemplateResponse(t))
	}
	return res, nil
}

func (s *templateService) GetNotificationTemplate(ctx context.Context, id string) (*TemplateResponse, error) {
	t, err := s.findNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toNotificationTemplateResponse(*t)
	return &resp, nil
}

func (s *templateService) findNotification(ctx context.Context, id string) (*model.NotificationTemplate, error) {
	templateID, err := parseID(id, "notification template")
	if err != nil {
		return nil, err
	}
	t, err := s.repo.FindNotificationByID(ctx, templateID)
	if err != nil {
		return nil, lookupErr(err, "notification template")
	}
	return t, nil
}

func (s *templateService) CreateNotificationTemplate(ctx context.Context, req NotificationTemplateRequest) (*TemplateResponse, error) {
	if err := s.ensureNotificationNameFree(ctx, req.Name, ""); err != nil {
		return nil, err
	}
	t := model.NotificationTemplate{
		Name:     strings.TrimSpace(req.Name),
		Type:     req.Type,
		Subject:  req.Subject,
		Body:     req.Body,
		IsActive: boolOr(req.IsActive, true),
	}
	if err := s.repo.CreateNotification(ctx, &t); err != nil {
		return nil, fmt.Errorf("failed to create notification template: %w", err)
	}
	resp := toNotificationTemplateResponse(t)
	return &resp, nil
}

func (s *templateService) ensureNotificationNameFree(ctx context.Context, name, selfID string) error {
	list, err := s.repo.ListNotifications(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to check notification templates: %w", err)
	}
	name = strings.TrimSpace(name)
	for _, t := range list {
		if strings.EqualFold(t.Name, name) && t.ID.String() != selfID {
			return conflictf("notification template %q already exists", name)
		}
	}
	return nil
}

func (s *templateService) UpdateNotificationTemplate(ctx context.Context, id string, req NotificationTemplateRequest) (*TemplateResponse, error) {
	t, err := s.findNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotificationNameFree(ctx, req.Name, t.ID.String()); err != nil {
		return nil, err
	}
	t.Name = strings.TrimSpace(req.Name)
	t.Type = req.Type
	t.Subject = req.Subject
	t.Body = req.Body
	t.IsActive = boolOr(req.IsActive, t.IsActive)
	if err := s.repo.UpdateNotification(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update notification template: %w", err)
	}
	resp := toNotificationTemplateResponse(*t)
	return &resp, nil
}

func (s *templateService) DeleteNotificationTemplate(ctx context.Context, id string) error {
	t, err := s.findNotification(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteNotification(ctx, t.ID); err != nil {
		return fmt.Errorf("failed to delete notification template: %w", err)
	}
	return nil
}

func (s *templateService) RenderNotificationTemplate(ctx context.Context, id string, req RenderRequest) (*RenderResponse, error) {
	t, err := s.findNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	vars, err := s.variables(ctx, req)
	if err != nil {
		return nil, err
	}
	return &RenderResponse{
		Subject: s.engine.Render(t.Subject, vars),
		Content: s.engine.Render(t.Body, vars),
	}, nil
}

// variables builds the render environment. Entity fields come first so the
// caller can override any of them.
func (s *templateService) variables(ctx context.Context, req RenderRequest) (map[string]interface{}, error) {
	now := s.now()
	vars := map[string]interface{}{
		"fecha": now,
		"año":   now.Year(),
	}

	if req.ClientID != "" {
		id, err := parseID(req.ClientID, "client")
		if err != nil {
			return nil, err
		}
		c, err := s.clients.FindByID(ctx, id)
		if err != nil {
			return nil, lookupErr(err, "client")
		}
		vars["razon_social"] = c.BusinessName
		vars["cliente"] = c.BusinessName
		vars["nif"] = c.TaxID
		vars["email"] = c.Email
		vars["telefono"] = c.Phone
		vars["direccion"] = c.Address
		vars["tipo_cliente"] = c.Type
	}

	if req.BudgetID != "" {
		id, err := parseID(req.BudgetID, "budget")
		if err != nil {
			return nil, err
		}
		b, err := s.budgets.FindByID(ctx, id)
		if err != nil {
			return nil, lookupErr(err, "budget")
		}
		vars["codigo"] = b.Number
		vars["nombre_contacto"] = b.ProspectName
		vars["subtotal"] = b.Subtotal
		vars["iva"] = b.VATTotal
		vars["total"] = b.Total
		vars["fecha_presupuesto"] = b.CreatedAt
		if _, ok := vars["nif"]; !ok {
			vars["nif"] = b.TaxID
		}
	}

	for k, v := range req.Variables {
		vars[k] = v
	}
	return vars, nil
}

// --- Helpers ---

func toDocumentTemplateResponse(t model.DocumentTemplate) TemplateResponse {
	return TemplateResponse{
		ID:          t.ID.String(),
		Name:        t.Name,
		Type:        t.Type,
		Description: t.Description,
		Body:        t.Body,
		IsActive:    t.IsActive,
		Variables:   nonNil(templating.Variables(t.Body)),
		UpdatedAt:   t.UpdatedAt.Format(time.RFC3339),
	}
}

func toNotificationTemplateResponse(t model.NotificationTemplate) TemplateResponse {
	return TemplateResponse{
		ID:        t.ID.String(),
		Name:      t.Name,
		Type:      t.Type,
		Subject:   t.Subject,
		Body:      t.Body,
		IsActive:  t.IsActive,
		Variables: nonNil(templating.Variables(t.Subject + "\n" + t.Body)),
		UpdatedAt: t.UpdatedAt.Format(time.RFC3339),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
