package models

import "time"

// Notification types delivered to users.
const (
	NotificationComment = "COMMENT"
	NotificationFollow  = "FOLLOW"
	NotificationReward  = "REWARD"
)

// Notification is a persisted event addressed to a single user. Delivery to
// websocket and web-push transports is best-effort; the row is the source of
// truth.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	SenderID  uint      `gorm:"index" json:"sender_id"`
	Type      string    `gorm:"size:16;not null" json:"type"`
	Message   string    `gorm:"size:512;not null" json:"message"`
	PostID    *uint     `json:"post_id,omitempty"`
	IsRead    bool      `gorm:"default:false;index" json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
	Sender    User      `gorm:"foreignKey:SenderID" json:"sender"`
}
