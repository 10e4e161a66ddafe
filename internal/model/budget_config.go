package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Add-on service kinds
const (
	ServiceKindMonthly = "MENSUAL"
	ServiceKindOneOff  = "PUNTUAL"
)

// Bracket kinds
const (
	BracketInvoices = "INVOICES"
	BracketPayroll  = "PAYROLL"
	BracketRevenue  = "REVENUE"
)

// BudgetPricingConfig holds the tiered price tables for one budget type.
// Only one config per type is active.
type BudgetPricingConfig struct {
	Base
	BudgetType     string                `gorm:"type:varchar(20);not null;index" json:"budget_type"`
	Name           string                `gorm:"type:varchar(100);not null" json:"name"`
	IsActive       bool                  `gorm:"not null;index" json:"is_active"`
	MonthlyPct     decimal.Decimal       `gorm:"type:decimal(6,2);not null" json:"monthly_pct"`
	EDNPct         decimal.Decimal       `gorm:"type:decimal(6,2);not null" json:"edn_pct"`
	ModulesPct     decimal.Decimal       `gorm:"type:decimal(6,2);not null" json:"modules_pct"`
	MonthlyMinimum decimal.Decimal       `gorm:"type:decimal(10,2);not null" json:"monthly_minimum"`
	Brackets       []PricingBracket      `gorm:"foreignKey:ConfigID;constraint:OnDelete:CASCADE" json:"brackets"`
	ModelPrices    []PricingModelPrice   `gorm:"foreignKey:ConfigID;constraint:OnDelete:CASCADE" json:"model_prices"`
	ServicePrices  []PricingServicePrice `gorm:"foreignKey:ConfigID;constraint:OnDelete:CASCADE" json:"service_prices"`
}

// BracketsOf returns the brackets of one kind, in stored order.
func (c BudgetPricingConfig) BracketsOf(kind string) []PricingBracket {
	var out []PricingBracket
	for _, b := range c.Brackets {
		if b.Kind == kind {
			out = append(out, b)
		}
	}
	return out
}

// PricingBracket is a [Min, Max] range. Value is a price for invoice and payroll
// brackets and a multiplier for revenue brackets. Max nil means open ended.
type PricingBracket struct {
	Base
	ConfigID uuid.UUID        `gorm:"type:char(36);not null;index" json:"config_id"`
	Kind     string           `gorm:"type:varchar(10);not null;index" json:"kind"`
	Position int              `gorm:"not null" json:"position"`
	Min      decimal.Decimal  `gorm:"type:decimal(14,2);not null" json:"min"`
	Max      *decimal.Decimal `gorm:"type:decimal(14,2)" json:"max"`
	Value    decimal.Decimal  `gorm:"type:decimal(10,4);not null" json:"value"`
	Label    string           `gorm:"type:varchar(100)" json:"label"`
}

type PricingModelPrice struct {
	Base
	ConfigID uuid.UUID       `gorm:"type:char(36);not null;index" json:"config_id"`
	Code     string          `gorm:"type:varchar(10);not null" json:"code"`
	Name     string          `gorm:"type:varchar(255);not null" json:"name"`
	Price    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	IsActive bool            `gorm:"not null" json:"is_active"`
}

type PricingServicePrice struct {
	Base
	ConfigID uuid.UUID       `gorm:"type:char(36);not null;index" json:"config_id"`
	Code     string          `gorm:"type:varchar(50);not null" json:"code"`
	Name     string          `gorm:"type:varchar(255);not null" json:"name"`
	Price    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Kind     string          `gorm:"type:varchar(10);not null" json:"kind"` // MENSUAL or PUNTUAL
	IsActive bool            `gorm:"not null" json:"is_active"`
}
