package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a back-office account. Exactly one user is the owner, created from env on first start.
type User struct {
	Base
	Username    string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Email       string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password    string         `gorm:"type:varchar(255);not null" json:"-"`
	Role        string         `gorm:"type:varchar(50);not null;index" json:"role"` // role name
	IsOwner     bool           `gorm:"default:false" json:"is_owner"`
	IsActive    bool           `gorm:"not null" json:"is_active"`
	LastLoginAt *time.Time     `json:"last_login_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// RefreshToken stores long-lived tokens allowing users to request new access tokens
type RefreshToken struct {
	Base
	UserID    uuid.UUID `gorm:"type:char(36);not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Token     string    `gorm:"type:varchar(512);uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
}
