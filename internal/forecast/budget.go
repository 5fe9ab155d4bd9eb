package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/service"
)

// guideline is one line of the general budgeting allocation table.
type guideline struct {
	category string
	percent  float64
}

// generalGuidelines is the fallback allocation when no peer data exists.
var generalGuidelines = []guideline{
	{"Housing", 30},
	{"Transportation", 15},
	{"Food & Dining", 15},
	{"Groceries", 10},
	{"Bills & Utilities", 10},
	{"Healthcare", 5},
	{"Entertainment", 5},
	{"Shopping", 5},
	{"Savings", 10},
	{"Other", 5},
}

const analysisMonths = 3

// BudgetRecommender produces per-category budget suggestions from spending
// history and the forecaster's monthly prediction.
type BudgetRecommender struct {
	storage    service.Storage
	forecaster *Forecaster
	now        func() time.Time
}

// NewBudgetRecommender creates a recommender.
func NewBudgetRecommender(storage service.Storage, forecaster *Forecaster) *BudgetRecommender {
	return &BudgetRecommender{
		storage:    storage,
		forecaster: forecaster,
		now:        time.Now,
	}
}

// Recommend builds the budget report for a user. Returns ErrNotFound when the
// user has no recent spending to analyze.
func (r *BudgetRecommender) Recommend(ctx context.Context, userID int64) (*service.BudgetReport, error) {
	end := r.now()
	start := end.AddDate(0, 0, -30*analysisMonths)

	expenses, err := r.storage.GetExpenses(ctx, userID, service.ExpenseFilter{
		StartDate: &start,
		EndDate:   &end,
	})
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return nil, fmt.Errorf("%w: no spending history for user %d", common.ErrNotFound, userID)
	}

	// Current share of spending per category
	byCategory := make(map[string]float64)
	total := 0.0
	for _, e := range expenses {
		amount, _ := e.Amount.Float64()
		name := e.CategoryName
		if name == "" {
			name = "Uncategorized"
		}
		byCategory[name] += amount
		total += amount
	}

	currentPercent := make(map[string]float64, len(byCategory))
	for name, amount := range byCategory {
		currentPercent[name] = round2(amount / total * 100)
	}

	predicted, err := r.predictedMonthlyTotal(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &service.BudgetReport{PredictedMonthlyExpense: round2(predicted)}
	for _, g := range generalGuidelines {
		report.Recommendations = append(report.Recommendations, service.BudgetRecommendation{
			Category:           g.category,
			CurrentPercent:     currentPercent[g.category],
			RecommendedPercent: g.percent,
			RecommendedBudget:  round2(predicted * g.percent / 100),
			Reason:             "Based on general budgeting guidelines",
		})
	}

	return report, nil
}

// predictedMonthlyTotal sums the 30-day forecast, falling back to the mean of
// historical monthly totals when the forecaster lacks data.
func (r *BudgetRecommender) predictedMonthlyTotal(ctx context.Context, userID int64) (float64, error) {
	points, err := r.forecaster.Predict(ctx, userID, DefaultHorizon)
	if err == nil {
		total := 0.0
		for _, p := range points {
			total += p.Amount
		}
		return total, nil
	}

	expenses, err := r.storage.GetExpenses(ctx, userID, service.ExpenseFilter{})
	if err != nil {
		return 0, err
	}

	monthly := make(map[string]float64)
	for _, e := range expenses {
		amount, _ := e.Amount.Float64()
		monthly[e.Date.Format("2006-01")] += amount
	}

	totals := make([]float64, 0, len(monthly))
	for _, t := range monthly {
		totals = append(totals, t)
	}
	if len(totals) == 0 {
		return 0, nil
	}

	mean, err := stats.Mean(totals)
	if err != nil {
		return 0, fmt.Errorf("failed to average monthly totals: %w", err)
	}

	return mean, nil
}
