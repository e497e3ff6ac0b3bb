package models

import "time"

// ContactMessage records a contact-us submission; the SMTP relay to the
// support inbox is best-effort, the row is always kept.
type ContactMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	Subject   string    `gorm:"size:255" json:"subject"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Relayed   bool      `gorm:"default:false" json:"relayed"`
	CreatedAt time.Time `json:"created_at"`
}
