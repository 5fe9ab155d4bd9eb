package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/model"
	"github.com/fennwick/ledgermail/internal/testutil"
)

func TestRecommendRequiresSpendingHistory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	recommender := NewBudgetRecommender(db.Storage, NewForecaster(db.Storage))

	_, err := recommender.Recommend(context.Background(), db.User.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRecommendCoversGuidelineCategories(t *testing.T) {
	db := testutil.SetupTestDB(t)

	cat, err := db.Storage.CreateCategory(context.Background(), db.User.ID, "Groceries")
	require.NoError(t, err)

	// Too few expenses for the forecaster, so the recommender falls back to
	// the historical monthly average.
	for i := 0; i < 4; i++ {
		require.NoError(t, db.Storage.CreateExpense(context.Background(), &model.Expense{
			UserID:     db.User.ID,
			Date:       time.Now().AddDate(0, 0, -7*i),
			Amount:     decimal.NewFromInt(100),
			Merchant:   "Corner Market",
			CategoryID: &cat.ID,
		}))
	}

	recommender := NewBudgetRecommender(db.Storage, NewForecaster(db.Storage))
	report, err := recommender.Recommend(context.Background(), db.User.ID)
	require.NoError(t, err)

	require.Len(t, report.Recommendations, len(generalGuidelines))
	assert.Greater(t, report.PredictedMonthlyExpense, 0.0)

	byCategory := make(map[string]float64)
	for _, rec := range report.Recommendations {
		byCategory[rec.Category] = rec.RecommendedBudget
		assert.Equal(t, "Based on general budgeting guidelines", rec.Reason)
	}

	// Housing gets the 30% line of the predicted monthly total
	assert.InDelta(t, report.PredictedMonthlyExpense*0.30, byCategory["Housing"], 0.01)

	// The user's whole recent spend is in Groceries
	for _, rec := range report.Recommendations {
		if rec.Category == "Groceries" {
			assert.InDelta(t, 100.0, rec.CurrentPercent, 0.01)
		}
	}
}
