package models

import "time"

// Currencies tracked by the burn statistics module.
const (
	CurrencyLUNC = "LUNC"
	CurrencySHIB = "SHIB"
)

// BurnArchive is the per-currency aggregate record; one row per currency.
type BurnArchive struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Currency  string    `gorm:"size:16;uniqueIndex;not null" json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BurnRecord stores the burned amount for one currency on one date.
// Dates are normalized to UTC midnight; one record per currency per day.
type BurnRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ArchiveID      uint      `gorm:"index;not null" json:"archive_id"`
	Currency       string    `gorm:"index:idx_burn_currency_date,unique;size:16;not null" json:"currency"`
	Date           time.Time `gorm:"index:idx_burn_currency_date,unique;not null" json:"date"`
	TransactionRef string    `gorm:"size:255" json:"transaction_ref"`
	BurnCount      int64     `gorm:"not null" json:"burn_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
