package model

// Document template types
const (
	TemplateTypeContract = "CONTRATO"
	TemplateTypeLetter   = "CARTA"
	TemplateTypeReceipt  = "RECIBO"
	TemplateTypeOther    = "OTRO"
)

// DocumentTemplate is an HTML body with {{ placeholder }} variables
type DocumentTemplate struct {
	Base
	Name        string `gorm:"type:varchar(255);not null" json:"name"`
	Type        string `gorm:"type:varchar(20);not null;index" json:"type"`
	Description string `gorm:"type:text" json:"description"`
	Body        string `gorm:"type:longtext;not null" json:"body"`
	IsActive    bool   `gorm:"not null" json:"is_active"`
}

// NotificationTemplate is a reusable subject/body pair for client notifications
type NotificationTemplate struct {
	Base
	Name     string `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Type     string `gorm:"type:varchar(20);not null;index" json:"type"` // notification event type
	Subject  string `gorm:"type:varchar(255);not null" json:"subject"`
	Body     string `gorm:"type:text;not null" json:"body"`
	IsActive bool   `gorm:"not null" json:"is_active"`
}
