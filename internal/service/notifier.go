package service

import (
	"context"
	"encoding/json"

	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/internal/websocket"

	"github.com/google/uuid"
)

// Notifier pushes live events to connected clients. *websocket.Hub implements it.
type Notifier interface {
	Notify(n websocket.Notification)
	SystemLog(l websocket.SystemLog)
}

// NopNotifier drops every event. Used by the CLI and tests.
type NopNotifier struct{}

func (NopNotifier) Notify(websocket.Notification) {}
func (NopNotifier) SystemLog(websocket.SystemLog) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return NopNotifier{}
	}
	return n
}

// writeAuditLog records an action. Failures are ignored so auditing never
// breaks the operation itself.
func writeAuditLog(ctx context.Context, repo repository.AuditRepository, userID, action, entityID, entityName string, details interface{}) {
	if repo == nil {
		return
	}
	detailsJSON, _ := json.Marshal(details)

	entry := model.AuditLog{
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(detailsJSON),
	}
	if userID != "" {
		if parsed, err := uuid.Parse(userID); err == nil {
			entry.UserID = &parsed
		}
	}
	_ = repo.Log(ctx, &entry)
}
