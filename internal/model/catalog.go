package model

import "github.com/shopspring/decimal"

// PriceCatalogItem is a standalone priced service offered outside budgets
type PriceCatalogItem struct {
	Base
	Key       string          `gorm:"column:item_key;type:varchar(100);uniqueIndex;not null" json:"key"`
	Title     string          `gorm:"type:varchar(255);not null" json:"title"`
	Unit      string          `gorm:"type:varchar(50)" json:"unit"`
	BasePrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"base_price"`
	VATPct    decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"vat_pct"`
	IsActive  bool            `gorm:"not null" json:"is_active"`
}
