package model

import (
	"gestoria/pkg/textfold"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client types
const (
	ClientTypeAutonomo   = "AUTONOMO"
	ClientTypeEmpresa    = "EMPRESA"
	ClientTypeParticular = "PARTICULAR"
)

// Client is a customer of the advisory firm
type Client struct {
	Base
	BusinessName   string                `gorm:"type:varchar(255);not null;index" json:"business_name"`
	TaxID          string                `gorm:"type:varchar(20);uniqueIndex;not null" json:"tax_id"` // NIF/CIF
	Type           string                `gorm:"type:varchar(20);not null;index" json:"type"`
	Email          string                `gorm:"type:varchar(255)" json:"email"`
	Phone          string                `gorm:"type:varchar(30)" json:"phone"`
	Address        string                `gorm:"type:text" json:"address"`
	IsActive       bool                  `gorm:"not null;index" json:"is_active"`
	OriginBudgetID *uuid.UUID            `gorm:"type:char(36)" json:"origin_budget_id"`
	SearchKey      string                `gorm:"type:varchar(320);index" json:"-"` // folded name + tax id
	Assignments    []ClientTaxAssignment `gorm:"foreignKey:ClientID" json:"assignments,omitempty"`
	DeletedAt      gorm.DeletedAt        `gorm:"index" json:"-"`
}

// BeforeSave refreshes SearchKey so searches ignore case and accents.
func (c *Client) BeforeSave(tx *gorm.DB) error {
	c.SearchKey = textfold.Fold(c.BusinessName + " " + c.TaxID)
	return nil
}
