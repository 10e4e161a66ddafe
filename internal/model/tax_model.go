package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Filing periodicities
const (
	PeriodicityMensual     = "MENSUAL"
	PeriodicityTrimestral  = "TRIMESTRAL"
	PeriodicityAnual       = "ANUAL"
	PeriodicityFraccionado = "ESPECIAL_FRACCIONADO"
)

// TaxModel is a government filing form, e.g. "303" or "349"
type TaxModel struct {
	Base
	Code                 string `gorm:"type:varchar(10);uniqueIndex;not null" json:"code"`
	Name                 string `gorm:"type:varchar(255);not null" json:"name"`
	Description          string `gorm:"type:text" json:"description"`
	AllowedPeriodicities string `gorm:"type:varchar(255)" json:"-"` // comma separated
	AllowedClientTypes   string `gorm:"type:varchar(255)" json:"-"` // comma separated
	IsActive             bool   `gorm:"not null" json:"is_active"`
}

// Periodicities splits AllowedPeriodicities.
func (m TaxModel) Periodicities() []string { return splitCSV(m.AllowedPeriodicities) }

// ClientTypes splits AllowedClientTypes.
func (m TaxModel) ClientTypes() []string { return splitCSV(m.AllowedClientTypes) }

// ClientTaxAssignment links a client to a tax model with a filing periodicity.
// Assignments are deactivated, never hard deleted, once filings exist.
type ClientTaxAssignment struct {
	Base
	ClientID     uuid.UUID  `gorm:"type:char(36);not null;index:idx_assignment_client_model" json:"client_id"`
	Client       *Client    `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	TaxModelCode string     `gorm:"type:varchar(10);not null;index:idx_assignment_client_model" json:"tax_model_code"`
	Periodicity  string     `gorm:"type:varchar(30);not null" json:"periodicity"`
	StartDate    time.Time  `gorm:"type:date;not null" json:"start_date"`
	EndDate      *time.Time `gorm:"type:date" json:"end_date"`
	IsActive     bool       `gorm:"not null;index" json:"is_active"`
	Notes        string     `gorm:"type:text" json:"notes"`
}

// EffectiveActive is false once an end date is set, whatever the flag says.
func (a ClientTaxAssignment) EffectiveActive() bool {
	return a.EndDate == nil && a.IsActive
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
