package extract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/model"
)

func amountPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestValidate(t *testing.T) {
	tests := []struct {
		wantErr   error
		candidate model.Candidate
		name      string
	}{
		{
			name:      "valid candidate",
			candidate: model.Candidate{Amount: amountPtr("45.00"), Merchant: "Acme"},
		},
		{
			name:      "boundary amount accepted",
			candidate: model.Candidate{Amount: amountPtr("50000"), Merchant: "Acme"},
		},
		{
			name:      "empty candidate",
			candidate: model.Candidate{},
			wantErr:   common.ErrExtractionEmpty,
		},
		{
			name:      "missing amount",
			candidate: model.Candidate{Merchant: "Acme"},
			wantErr:   common.ErrValidationRejected,
		},
		{
			name:      "zero amount",
			candidate: model.Candidate{Amount: amountPtr("0"), Merchant: "Acme"},
			wantErr:   common.ErrValidationRejected,
		},
		{
			name:      "amount above bound",
			candidate: model.Candidate{Amount: amountPtr("50000.01"), Merchant: "Acme"},
			wantErr:   common.ErrValidationRejected,
		},
		{
			name:      "missing merchant",
			candidate: model.Candidate{Amount: amountPtr("10.00")},
			wantErr:   common.ErrValidationRejected,
		},
		{
			name:      "merchant too short",
			candidate: model.Candidate{Amount: amountPtr("10.00"), Merchant: "A"},
			wantErr:   common.ErrValidationRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.candidate)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
