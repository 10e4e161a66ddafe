package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleAdmin   = "admin"
	RoleAdvisor = "asesor"
	RoleStaff   = "administrativo"
)

// Role represents a user role with associated permissions
type Role struct {
	Base
	Name        string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	IsSystem    bool         `gorm:"default:false" json:"is_system"` // built-in roles cannot be deleted
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
}

// Permission is a single capability code, e.g. "clients.read"
type Permission struct {
	ID    uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	Code  string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"code"`
	Name  string    `gorm:"type:varchar(255);not null" json:"name"`
	Group string    `gorm:"column:perm_group;type:varchar(50);not null;index" json:"group"`
}

func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
