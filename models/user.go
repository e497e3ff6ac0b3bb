package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a community member. Passwords are stored as bcrypt hashes only.
//
// PointsBalance is owned by the daily rewards engine and is intentionally
// nullable: legacy rows may carry NULL, which the engine normalizes to zero
// at increment time rather than at every call site.
type User struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Username      string         `gorm:"size:64;not null" json:"username"`
	Email         string         `gorm:"size:255" json:"email"`
	PasswordHash  string         `gorm:"size:255" json:"-"`
	Provider      string         `gorm:"size:32" json:"provider"`
	ProviderID    string         `gorm:"size:255" json:"provider_id"`
	RegisterIP    string         `gorm:"size:45" json:"register_ip"`
	AvatarURL     string         `gorm:"size:512" json:"avatar_url"`
	CoverURL      string         `gorm:"size:512" json:"cover_url"`
	Bio           string         `gorm:"size:255" json:"bio"`
	PointsBalance *int64         `gorm:"column:points_balance" json:"points_balance"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	Comments      []Comment      `json:"-"`
	Posts         []Post         `json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// Points returns the balance with NULL treated as zero.
func (u *User) Points() int64 {
	if u.PointsBalance == nil {
		return 0
	}
	return *u.PointsBalance
}
