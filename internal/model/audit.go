package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionLogin  = "LOGIN"
	ActionLogout = "LOGOUT"

	ActionCreateUser   = "CREATE_USER"
	ActionUpdateUser   = "UPDATE_USER"
	ActionDeleteUser   = "DELETE_USER"
	ActionCreateClient = "CREATE_CLIENT"
	ActionUpdateClient = "UPDATE_CLIENT"
	ActionDeleteClient = "DELETE_CLIENT"

	ActionCreateTaxModel   = "CREATE_TAX_MODEL"
	ActionAssignTaxModel   = "ASSIGN_TAX_MODEL"
	ActionUpdateAssignment = "UPDATE_TAX_ASSIGNMENT"
	ActionToggleAssignment = "TOGGLE_TAX_ASSIGNMENT"
	ActionDeleteAssignment = "DELETE_TAX_ASSIGNMENT"
	ActionCompleteFiling   = "COMPLETE_TAX_FILING"
	ActionUpdateCalendar   = "UPDATE_TAX_CALENDAR"

	ActionCreateBudget  = "CREATE_BUDGET"
	ActionUpdateBudget  = "UPDATE_BUDGET"
	ActionDeleteBudget  = "DELETE_BUDGET"
	ActionSendBudget    = "SEND_BUDGET"
	ActionAcceptBudget  = "ACCEPT_BUDGET"
	ActionRejectBudget  = "REJECT_BUDGET"
	ActionConvertBudget = "CONVERT_BUDGET"
	ActionUpdatePricing = "UPDATE_BUDGET_PRICING"
)

// AuditLog tracks who did what and when
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:char(36);index" json:"user_id"` // nil for jobs
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:text" json:"details"` // JSON payload
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
