package service

import (
	"context"
	"fmt"
	"time"

	"gestoria/internal/repository"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

// AuditLogQuery is bound from the query string. Dates are YYYY-MM-DD.
type AuditLogQuery struct {
	Action   string `form:"action"`
	UserID   string `form:"user_id" binding:"omitempty,uuid"`
	EntityID string `form:"entity_id"`
	From     string `form:"from"`
	To       string `form:"to"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, q AuditLogQuery, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs returns one page of audit entries, newest first, with the acting user preloaded.
func (s *auditService) GetAuditLogs(ctx context.Context, q AuditLogQuery, page, limit int) ([]AuditLogResponse, int64, error) {
	filter := repository.AuditFilter{Action: q.Action, UserID: q.UserID, EntityID: q.EntityID}
	if q.From != "" {
		t, err := time.Parse("2006-01-02", q.From)
		if err != nil {
			return nil, 0, invalidf("invalid from date (expected YYYY-MM-DD)")
		}
		filter.From = &t
	}
	if q.To != "" {
		t, err := time.Parse("2006-01-02", q.To)
		if err != nil {
			return nil, 0, invalidf("invalid to date (expected YYYY-MM-DD)")
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}

	logs, total, err := s.repo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		})
	}

	return res, total, nil
}
