package websocket

import "time"

// Event names sent over the socket.
const (
	EventNotification     = "notification"
	EventSystemLog        = "system:log"
	EventUserConnected    = "user:connected"
	EventUserDisconnected = "user:disconnected"
)

// Notification types and actions.
const (
	NotifyTask    = "task"
	NotifyTax     = "tax"
	NotifyManual  = "manual"
	NotifyClient  = "client"
	NotifyUser    = "user"
	NotifyGeneral = "general"

	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionReminder = "reminder"
	ActionAssigned = "assigned"
)

// System log types and levels.
const (
	LogUpdate    = "update"
	LogRestore   = "restore"
	LogBackup    = "backup"
	LogMigration = "migration"

	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Envelope is the JSON frame written to clients.
type Envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Notification is delivered to everyone, to one user (UserID) or to one role (Role).
type Notification struct {
	Type      string      `json:"type"`
	Action    string      `json:"action"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	UserID    string      `json:"userId,omitempty"`
	Role      string      `json:"role,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SystemLog reports progress of long running maintenance tasks.
type SystemLog struct {
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Progress  *int      `json:"progress,omitempty"` // 0-100
	Timestamp time.Time `json:"timestamp"`
}

type presence struct {
	UserID         string `json:"userId"`
	ConnectedUsers int    `json:"connectedUsers"`
}
