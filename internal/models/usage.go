package models

import "time"

// ApiUseTime accumulates the handler time, in milliseconds, spent serving one user.
type ApiUseTime struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	TotalTime int64     `gorm:"not null;default:0" json:"total_time_ms"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name used by the usage upsert.
func (ApiUseTime) TableName() string {
	return "api_use_times"
}

// UsageEntry is one leaderboard row.
type UsageEntry struct {
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
	TotalTime int64  `json:"total_time_ms"`
}
