package models

import "time"

// PushSubscription stores a browser web-push subscription for one device.
// Endpoints are globally unique; re-registering an endpoint under another
// account reassigns it (handles re-login on a shared device).
type PushSubscription struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	Endpoint   string    `gorm:"size:1024;uniqueIndex:idx_push_endpoint,length:512;not null" json:"endpoint"`
	P256dh     string    `gorm:"size:255;not null" json:"-"`
	Auth       string    `gorm:"size:255;not null" json:"-"`
	Platform   string    `gorm:"size:32" json:"platform"`
	DeviceID   string    `gorm:"size:128" json:"device_id"`
	AppVersion string    `gorm:"size:32" json:"app_version"`
	Disabled   bool      `gorm:"default:false;index" json:"disabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
