package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Budget types
const (
	BudgetTypeAutonomo = "AUTONOMO"
	BudgetTypeEmpresa  = "EMPRESA"
)

// Budget statuses
const (
	BudgetStatusDraft    = "BORRADOR"
	BudgetStatusSent     = "ENVIADO"
	BudgetStatusAccepted = "ACEPTADO"
	BudgetStatusRejected = "RECHAZADO"
)

// Budget is a priced proposal. Calculation inputs are stored so it can be recalculated.
type Budget struct {
	Base
	Number        string          `gorm:"type:varchar(20);uniqueIndex;not null" json:"number"` // PRE-YYYY-NNN
	Year          int             `gorm:"not null;index" json:"year"`
	Type          string          `gorm:"type:varchar(20);not null;index" json:"type"`
	ProspectName  string          `gorm:"type:varchar(255);not null" json:"prospect_name"`
	TaxID         string          `gorm:"type:varchar(20);index" json:"tax_id"`
	Email         string          `gorm:"type:varchar(255)" json:"email"`
	Phone         string          `gorm:"type:varchar(30)" json:"phone"`
	Address       string          `gorm:"type:text" json:"address"`
	InvoiceCount  int             `gorm:"not null" json:"invoice_count"`
	PayrollCount  int             `gorm:"not null" json:"payroll_count"`
	AnnualRevenue decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"annual_revenue"`
	Periodicity   string          `gorm:"type:varchar(20);not null" json:"periodicity"`
	TaxRegime     string          `gorm:"type:varchar(20);not null" json:"tax_regime"`
	LabourService bool            `gorm:"default:false" json:"labour_service"`
	TaxModels     string          `gorm:"type:varchar(255)" json:"-"` // comma separated codes
	Services      string          `gorm:"type:varchar(500)" json:"-"` // comma separated codes
	DiscountType  string          `gorm:"type:varchar(20)" json:"discount_type"`
	DiscountValue decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount_value"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	VATTotal      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"vat_total"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Status        string          `gorm:"type:varchar(20);not null;default:BORRADOR;index" json:"status"`
	SentAt        *time.Time      `json:"sent_at"`
	AcceptedAt    *time.Time      `json:"accepted_at"`
	RejectedAt    *time.Time      `json:"rejected_at"`
	RejectReason  string          `gorm:"type:text" json:"reject_reason"`
	ClientID      *uuid.UUID      `gorm:"type:char(36);index" json:"client_id"`
	CreatedBy     *uuid.UUID      `gorm:"type:char(36)" json:"created_by"`
	Items         []BudgetItem    `gorm:"foreignKey:BudgetID;constraint:OnDelete:CASCADE" json:"items"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

// ModelCodes splits TaxModels.
func (b Budget) ModelCodes() []string { return splitCSV(b.TaxModels) }

// ServiceCodes splits Services.
func (b Budget) ServiceCodes() []string { return splitCSV(b.Services) }

// BudgetItem is one line of the price breakdown
type BudgetItem struct {
	Base
	BudgetID  uuid.UUID       `gorm:"type:char(36);not null;index" json:"budget_id"`
	Position  int             `gorm:"not null" json:"position"`
	Concept   string          `gorm:"type:varchar(255);not null" json:"concept"`
	Category  string          `gorm:"type:varchar(50);not null" json:"category"`
	Quantity  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	VATPct    decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"vat_pct"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	Total     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Recurring bool            `gorm:"default:false" json:"recurring"`
}
