package models

import "time"

// RewardState tracks a user's daily-reward streak. One row per user,
// created lazily on first status check or claim.
//
// StreakDay is the day number the user will be credited for on their NEXT
// successful claim; it only moves via a successful claim, never via a
// status read. LastCycleKey is empty until the first claim.
type RewardState struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	StreakDay    int        `gorm:"not null;default:1" json:"streak_day"`
	LastClaimAt  *time.Time `json:"last_claim_at"`
	LastCycleKey string     `gorm:"size:10" json:"last_cycle_key"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RewardClaim is one row of the append-only claim ledger. The unique
// (user_id, cycle_key) index is the idempotency guarantee: at most one
// successful claim per user per cycle, even under concurrent requests.
type RewardClaim struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_reward_claim_cycle,unique;not null" json:"user_id"`
	CycleKey  string    `gorm:"index:idx_reward_claim_cycle,unique;size:10;not null" json:"cycle_key"`
	DayNumber int       `gorm:"not null" json:"day_number"`
	Points    int       `gorm:"not null" json:"points"`
	ClaimedAt time.Time `gorm:"index;not null" json:"claimed_at"`
	CreatedAt time.Time `json:"created_at"`
}
