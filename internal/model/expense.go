package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a validated, categorized expense record. Once persisted it is
// owned by the storage layer; the extraction pipeline never updates or
// deletes one after creation.
type Expense struct {
	Date         time.Time
	CreatedAt    time.Time
	Merchant     string
	Description  string
	EmailID      string // dedup key: provider message identifier
	CategoryName string // populated on reads via join; empty if uncategorized
	Amount       decimal.Decimal
	ID           int64
	UserID       int64
	CategoryID   *int64
}
