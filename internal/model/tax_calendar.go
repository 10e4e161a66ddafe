package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tax calendar statuses
const (
	CalendarStatusPendiente = "PENDIENTE"
	CalendarStatusAbierto   = "ABIERTO"
	CalendarStatusCerrado   = "CERRADO"
)

// Filing statuses
const (
	FilingStatusPending    = "PENDING"
	FilingStatusInProgress = "IN_PROGRESS"
	FilingStatusCompleted  = "COMPLETED"
	FilingStatusOverdue    = "OVERDUE"
)

// TaxCalendarEntry is the filing window of one model for one period label.
type TaxCalendarEntry struct {
	Base
	ModelCode string    `gorm:"type:varchar(10);not null;index:idx_calendar_model_period_year,unique" json:"model_code"`
	Period    string    `gorm:"type:varchar(20);not null;index:idx_calendar_model_period_year,unique" json:"period"`
	Year      int       `gorm:"not null;index:idx_calendar_model_period_year,unique;index" json:"year"`
	StartDate time.Time `gorm:"type:date;not null" json:"start_date"`
	EndDate   time.Time `gorm:"type:date;not null" json:"end_date"`
	Status    string    `gorm:"type:varchar(12);not null;default:PENDIENTE;index" json:"status"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
}

// ClientTaxFiling is a materialised obligation ("tax card") for one client,
// model and calendar window.
type ClientTaxFiling struct {
	Base
	ClientID        uuid.UUID         `gorm:"type:char(36);not null;index:idx_filing_client_calendar,unique" json:"client_id"`
	Client          *Client           `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	CalendarEntryID uuid.UUID         `gorm:"type:char(36);not null;index:idx_filing_client_calendar,unique" json:"calendar_entry_id"`
	CalendarEntry   *TaxCalendarEntry `gorm:"foreignKey:CalendarEntryID" json:"calendar_entry,omitempty"`
	TaxModelCode    string            `gorm:"type:varchar(10);not null;index" json:"tax_model_code"`
	Period          string            `gorm:"type:varchar(20);not null" json:"period"`
	Year            int               `gorm:"not null;index" json:"year"`
	DueDate         time.Time         `gorm:"type:date;not null;index" json:"due_date"`
	Status          string            `gorm:"type:varchar(12);not null;default:PENDING;index" json:"status"`
	Amount          *decimal.Decimal  `gorm:"type:decimal(12,2)" json:"amount"`
	CompletedAt     *time.Time        `json:"completed_at"`
	CompletedBy     *uuid.UUID        `gorm:"type:char(36)" json:"completed_by"`
	Notes           string            `gorm:"type:text" json:"notes"`
}
