package models

import "time"

// Follow links a follower to the user they follow.
// The composite unique index makes follow/unfollow toggles idempotent.
type Follow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID uint      `gorm:"index:idx_follow_pair,unique;not null" json:"follower_id"`
	FollowedID uint      `gorm:"index:idx_follow_pair,unique;index;not null" json:"followed_id"`
	CreatedAt  time.Time `json:"created_at"`
}
