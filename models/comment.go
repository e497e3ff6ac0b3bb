package models

import "time"

// Comment represents a reply to a post or an article. Exactly one of
// PostID / ArticleID is set.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    *uint     `gorm:"index" json:"post_id,omitempty"`
	ArticleID *uint     `gorm:"index" json:"article_id,omitempty"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
}
