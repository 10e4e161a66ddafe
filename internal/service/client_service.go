package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/internal/websocket"

	"github.com/google/uuid"
)

// --- DTOs ---

type CreateClientRequest struct {
	BusinessName string `json:"business_name" binding:"required,max=255"`
	TaxID        string `json:"tax_id" binding:"required"`
	Type         string `json:"type" binding:"required,oneof=AUTONOMO EMPRESA PARTICULAR"`
	Email        string `json:"email" binding:"omitempty,email"`
	Phone        string `json:"phone" binding:"omitempty,max=30"`
	Address      string `json:"address"`
}

type UpdateClientRequest struct {
	BusinessName string `json:"business_name" binding:"omitempty,max=255"`
	TaxID        string `json:"tax_id"`
	Type         string `json:"type" binding:"omitempty,oneof=AUTONOMO EMPRESA PARTICULAR"`
	Email        string `json:"email" binding:"omitempty,email"`
	Phone        string `json:"phone" binding:"omitempty,max=30"`
	Address      string `json:"address"`
	IsActive     *bool  `json:"is_active"`
}

type ClientListQuery struct {
	Search string `form:"search"`
	Type   string `form:"type" binding:"omitempty,oneof=AUTONOMO EMPRESA PARTICULAR"`
	Active *bool  `form:"active"`
}

type ClientResponse struct {
	ID             string               `json:"id"`
	BusinessName   string               `json:"business_name"`
	TaxID          string               `json:"tax_id"`
	Type           string               `json:"type"`
	Email          string               `json:"email"`
	Phone          string               `json:"phone"`
	Address        string               `json:"address"`
	IsActive       bool                 `json:"is_active"`
	OriginBudgetID *string              `json:"origin_budget_id"`
	Assignments    []AssignmentResponse `json:"assignments,omitempty"`
	CreatedAt      string               `json:"created_at"`
	UpdatedAt      string               `json:"updated_at"`
}

// --- Interface ---

type ClientService interface {
	CreateClient(ctx context.Context, req CreateClientRequest, userID string) (*ClientResponse, error)
	GetClient(ctx context.Context, id string) (*ClientResponse, error)
	ListClients(ctx context.Context, q ClientListQuery, page, limit int) ([]ClientResponse, int64, error)
	UpdateClient(ctx context.Context, id string, req UpdateClientRequest, userID string) (*ClientResponse, error)
	DeleteClient(ctx context.Context, id string, userID string) error
}

type clientService struct {
	repo        repository.ClientRepository
	assignments repository.AssignmentRepository
	audit       repository.AuditRepository
	txManager   repository.TransactionManager
	notifier    Notifier
	now         func() time.Time
}

func NewClientService(
	repo repository.ClientRepository,
	assignments repository.AssignmentRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
	notifier Notifier,
) ClientService {
	return &clientService{
		repo:        repo,
		assignments: assignments,
		audit:       audit,
		txManager:   txManager,
		notifier:    notifierOrNop(notifier),
		now:         time.Now,
	}
}

var taxIDRe = regexp.MustCompile(`^[A-Z0-9]{9}$`)

// NormalizeTaxID upper-cases a NIF/CIF/NIE and drops spaces, dots and dashes.
func NormalizeTaxID(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(s)))
}

func validTaxID(s string) bool {
	return taxIDRe.MatchString(s)
}

// --- Implementation ---

func (s *clientService) CreateClient(ctx context.Context, req CreateClientRequest, userID string) (*ClientResponse, error) {
	taxID := NormalizeTaxID(req.TaxID)
	if !validTaxID(taxID) {
		return nil, invalidf("tax_id must be a 9 character NIF/CIF/NIE")
	}
	if err := s.ensureTaxIDFree(ctx, taxID, uuid.Nil); err != nil {
		return nil, err
	}

	client := model.Client{
		BusinessName: strings.TrimSpace(req.BusinessName),
		TaxID:        taxID,
		Type:         req.Type,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        req.Phone,
		Address:      req.Address,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, &client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	writeAuditLog(ctx, s.audit, userID, model.ActionCreateClient, client.ID.String(), client.BusinessName, req)
	s.notifier.Notify(websocket.Notification{
		Type:    websocket.NotifyClient,
		Action:  websocket.ActionCreated,
		Title:   "Nuevo cliente",
		Message: client.BusinessName + " se ha dado de alta",
		Data:    map[string]string{"id": client.ID.String()},
	})

	resp := toClientResponse(client)
	return &resp, nil
}

func (s *clientService) ensureTaxIDFree(ctx context.Context, taxID string, self uuid.UUID) error {
	existing, err := s.repo.FindByTaxID(ctx, taxID)
	if err == nil && existing.ID != self {
		return conflictf("a client with tax id %s already exists", taxID)
	}
	if err != nil && !repository.IsNotFound(err) {
		return fmt.Errorf("failed to check tax id: %w", err)
	}
	return nil
}

func (s *clientService) GetClient(ctx context.Context, id string) (*ClientResponse, error) {
	clientID, err := parseID(id, "client")
	if err != nil {
		return nil, err
	}
	client, err := s.repo.FindByID(ctx, clientID)
	if err != nil {
		return nil, lookupErr(err, "client")
	}
	resp := toClientResponse(*client)
	return &resp, nil
}

func (s *clientService) ListClients(ctx context.Context, q ClientListQuery, page, limit int) ([]ClientResponse, int64, error) {
	clients, total, err := s.repo.List(ctx, repository.ClientFilter{Search: q.Search, Type: q.Type, Active: q.Active}, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch clients: %w", err)
	}
	res := make([]ClientResponse, 0, len(clients))
	for _, c := range clients {
		res = append(res, toClientResponse(c))
	}
	return res, total, nil
}

func (s *clientService) UpdateClient(ctx context.Context, id string, req UpdateClientRequest, userID string) (*ClientResponse, error) {
	clientID, err := parseID(id, "client")
	if err != nil {
		return nil, err
	}
	client, err := s.repo.FindByID(ctx, clientID)
	if err != nil {
		return nil, lookupErr(err, "client")
	}

	if req.TaxID != "" {
		taxID := NormalizeTaxID(req.TaxID)
		if !validTaxID(taxID) {
			return nil, invalidf("tax_id must be a 9 character NIF/CIF/NIE")
		}
		if taxID != client.TaxID {
			if err := s.ensureTaxIDFree(ctx, taxID, client.ID); err != nil {
				return nil, err
			}
			client.TaxID = taxID
		}
	}
	if req.BusinessName != "" {
		client.BusinessName = strings.TrimSpace(req.BusinessName)
	}
	if req.Type != "" {
		client.Type = req.Type
	}
	if req.Email != "" {
		client.Email = strings.ToLower(strings.TrimSpace(req.Email))
	}
	if req.Phone != "" {
		client.Phone = req.Phone
	}
	if req.Address != "" {
		client.Address = req.Address
	}
	if req.IsActive != nil {
		client.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}

	writeAuditLog(ctx, s.audit, userID, model.ActionUpdateClient, client.ID.String(), client.BusinessName, req)
	resp := toClientResponse(*client)
	return &resp, nil
}

// DeleteClient soft-deletes the client and closes its active assignments.
func (s *clientService) DeleteClient(ctx context.Context, id string, userID string) error {
	clientID, err := parseID(id, "client")
	if err != nil {
		return err
	}
	client, err := s.repo.FindByID(ctx, clientID)
	if err != nil {
		return lookupErr(err, "client")
	}

	now := s.now()
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		for i := range client.Assignments {
			a := client.Assignments[i]
			if !a.EffectiveActive() {
				continue
			}
			a.IsActive = false
			a.EndDate = &now
			if err := s.assignments.Update(txCtx, &a); err != nil {
				return fmt.Errorf("failed to close assignment: %w", err)
			}
		}
		if err := s.repo.Delete(txCtx, client.ID); err != nil {
			return fmt.Errorf("failed to delete client: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	writeAuditLog(ctx, s.audit, userID, model.ActionDeleteClient, client.ID.String(), client.BusinessName, map[string]string{"deleted_id": id})
	return nil
}

// --- Helpers ---

func toClientResponse(c model.Client) ClientResponse {
	resp := ClientResponse{
		ID:           c.ID.String(),
		BusinessName: c.BusinessName,
		TaxID:        c.TaxID,
		Type:         c.Type,
		Email:        c.Email,
		Phone:        c.Phone,
		Address:      c.Address,
		IsActive:     c.IsActive,
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    c.UpdatedAt.Format(time.RFC3339),
	}
	if c.OriginBudgetID != nil {
		s := c.OriginBudgetID.String()
		resp.OriginBudgetID = &s
	}
	for _, a := range c.Assignments {
		resp.Assignments = append(resp.Assignments, toAssignmentResponse(a))
	}
	return resp
}
