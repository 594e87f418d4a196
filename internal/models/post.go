package models

import (
	"time"

	"gorm.io/gorm"
)

// Post is a newsfeed item. LikeCount is maintained by the like toggle only.
type Post struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	Username      string         `gorm:"->;-:migration" json:"username"`
	Content       string         `gorm:"type:text;not null" json:"content"`
	LikeCount     int64          `gorm:"not null;default:0" json:"like_count"`
	LikeCreatedAt *time.Time     `json:"like_created_at,omitempty"`
	LikeUpdatedAt *time.Time     `json:"like_updated_at,omitempty"`
	CommentsCount int64          `gorm:"->;-:migration" json:"comments_count"`
	Liked         bool           `gorm:"->;-:migration" json:"liked"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
