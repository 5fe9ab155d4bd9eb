package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candidate is an unvalidated, partially-populated extraction result.
// Absent fields are nil/empty; extractors never use sentinels.
type Candidate struct {
	Amount      *decimal.Decimal
	Date        *time.Time
	Merchant    string
	Description string
}

// Empty reports whether the candidate carries neither an amount nor a
// merchant. Empty candidates are discarded by the pipeline.
func (c Candidate) Empty() bool {
	return c.Amount == nil && c.Merchant == ""
}
