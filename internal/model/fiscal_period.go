package model

import "time"

// Fiscal period kinds
const (
	PeriodKindMonth   = "MONTH"
	PeriodKindQuarter = "QUARTER"
	PeriodKindYear    = "YEAR"
	PeriodKindSpecial = "SPECIAL"
)

// Fiscal period statuses
const (
	PeriodStatusPending = "PENDING"
	PeriodStatusOpen    = "OPEN"
	PeriodStatusClosed  = "CLOSED"
)

// FiscalPeriod is a calendar interval with a filing-window status. Status is a
// cached projection of the dates, refreshed by the period status job.
type FiscalPeriod struct {
	Base
	Year     int       `gorm:"not null;index:idx_fiscal_period_year_label,unique" json:"year"`
	Label    string    `gorm:"type:varchar(20);not null;index:idx_fiscal_period_year_label,unique" json:"label"`
	Kind     string    `gorm:"type:varchar(10);not null" json:"kind"`
	StartsAt time.Time `gorm:"type:date;not null" json:"starts_at"`
	EndsAt   time.Time `gorm:"type:date;not null" json:"ends_at"`
	Status   string    `gorm:"type:varchar(10);not null;default:PENDING;index" json:"status"`
}
