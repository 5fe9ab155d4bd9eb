package extract

import (
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/model"
)

// maxAmount is the upper sanity bound on a single extracted expense.
var maxAmount = decimal.NewFromInt(50000)

// Validate accepts or rejects an extracted candidate. Empty candidates map to
// ErrExtractionEmpty; out-of-bounds candidates to ErrValidationRejected.
func Validate(candidate model.Candidate) error {
	if candidate.Empty() {
		return common.ErrExtractionEmpty
	}

	if candidate.Amount == nil {
		return fmt.Errorf("%w: missing amount", common.ErrValidationRejected)
	}
	if !candidate.Amount.GreaterThan(decimal.Zero) {
		return fmt.Errorf("%w: amount %s is not positive", common.ErrValidationRejected, candidate.Amount)
	}
	if candidate.Amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: amount %s exceeds %s", common.ErrValidationRejected, candidate.Amount, maxAmount)
	}

	if candidate.Merchant == "" {
		return fmt.Errorf("%w: missing merchant", common.ErrValidationRejected)
	}
	if utf8.RuneCountInString(candidate.Merchant) < 2 {
		return fmt.Errorf("%w: merchant %q too short", common.ErrValidationRejected, candidate.Merchant)
	}

	return nil
}
