// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// UserStatus is the account lifecycle state.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusWithdrawn UserStatus = "WITHDRAWN"
)

// User represents an account. Username is the identity key used by likes and usage tracking.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Username    string         `gorm:"uniqueIndex;size:30;not null" json:"username"`
	Email       string         `gorm:"uniqueIndex;not null" json:"email,omitempty"`
	Password    string         `gorm:"not null" json:"-"`
	Bio         string         `gorm:"type:text" json:"bio"`
	Avatar      string         `json:"avatar"`
	IsAdmin     bool           `gorm:"default:false" json:"is_admin"`
	Status      UserStatus     `gorm:"type:varchar(16);default:'ACTIVE';not null" json:"status"`
	WithdrawnAt *time.Time     `json:"withdrawn_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsActive reports whether the user still resolves as an identity.
func (u *User) IsActive() bool {
	return u != nil && u.Status != UserStatusWithdrawn
}

// Public strips private fields for profile views of other users.
func (u User) Public() User {
	u.Email = ""
	return u
}
