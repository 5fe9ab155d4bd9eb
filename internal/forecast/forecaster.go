// Package forecast predicts future spending from expense history and derives
// budget recommendations.
package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/model"
	"github.com/fennwick/ledgermail/internal/service"
)

const (
	// minSamples is the smallest expense count worth fitting a model on.
	minSamples = 30
	// minCategorySamples applies to category-scoped forecasts.
	minCategorySamples = 15
	// DefaultHorizon is the forecast length in days.
	DefaultHorizon = 30
)

// confidenceZ is the z-score for the 95% prediction interval.
const confidenceZ = 1.96

// Forecaster fits a linear trend with multiplicative weekday factors over
// daily spending totals. Models are fit per request; fitting is cheap at the
// data volumes a single user produces.
type Forecaster struct {
	storage service.Storage
	now     func() time.Time
}

// NewForecaster creates a forecaster backed by the given storage.
func NewForecaster(storage service.Storage) *Forecaster {
	return &Forecaster{storage: storage, now: time.Now}
}

// Predict forecasts total daily spending for the user over the horizon.
// Returns ErrModelUnavailable when history is too thin to fit.
func (f *Forecaster) Predict(ctx context.Context, userID int64, periods int) ([]service.ForecastPoint, error) {
	expenses, err := f.storage.GetExpenses(ctx, userID, service.ExpenseFilter{})
	if err != nil {
		return nil, err
	}
	if len(expenses) < minSamples {
		return nil, fmt.Errorf("%w: %d expenses, need %d", common.ErrModelUnavailable, len(expenses), minSamples)
	}

	return f.fitAndPredict(expenses, "", periods)
}

// PredictCategory forecasts spending within one category.
func (f *Forecaster) PredictCategory(ctx context.Context, userID int64, category string, periods int) ([]service.ForecastPoint, error) {
	expenses, err := f.storage.GetExpenses(ctx, userID, service.ExpenseFilter{})
	if err != nil {
		return nil, err
	}

	var scoped []model.Expense
	for _, e := range expenses {
		if e.CategoryName == category {
			scoped = append(scoped, e)
		}
	}
	if len(scoped) < minCategorySamples {
		return nil, fmt.Errorf("%w: %d expenses in %q, need %d",
			common.ErrModelUnavailable, len(scoped), category, minCategorySamples)
	}

	return f.fitAndPredict(scoped, category, periods)
}

// dailyPoint is one observed day of spending.
type dailyPoint struct {
	day   time.Time
	total float64
}

func (f *Forecaster) fitAndPredict(expenses []model.Expense, category string, periods int) ([]service.ForecastPoint, error) {
	if periods <= 0 {
		periods = DefaultHorizon
	}

	daily := aggregateDaily(expenses)
	if len(daily) < 2 {
		return nil, fmt.Errorf("%w: not enough distinct days", common.ErrModelUnavailable)
	}

	origin := daily[0].day
	xs := make([]float64, len(daily))
	ys := make([]float64, len(daily))
	for i, p := range daily {
		xs[i] = dayIndex(origin, p.day)
		ys[i] = p.total
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	factors := weekdayFactors(daily, alpha, beta, origin)

	// Residual spread around the seasonal trend gives the interval width.
	residuals := make([]float64, len(daily))
	for i, p := range daily {
		fitted := (alpha + beta*xs[i]) * factors[p.day.Weekday()]
		residuals[i] = p.total - fitted
	}
	spread := stat.StdDev(residuals, nil)
	if math.IsNaN(spread) {
		spread = 0
	}

	last := daily[len(daily)-1].day
	points := make([]service.ForecastPoint, 0, periods)
	for i := 1; i <= periods; i++ {
		day := last.AddDate(0, 0, i)
		trend := alpha + beta*dayIndex(origin, day)
		predicted := trend * factors[day.Weekday()]

		points = append(points, service.ForecastPoint{
			Date:     day,
			Category: category,
			Amount:   round2(math.Max(0, predicted)),
			Lower:    round2(math.Max(0, predicted-confidenceZ*spread)),
			Upper:    round2(math.Max(0, predicted+confidenceZ*spread)),
		})
	}

	return points, nil
}

// aggregateDaily sums expenses per calendar day, sorted ascending.
func aggregateDaily(expenses []model.Expense) []dailyPoint {
	totals := make(map[time.Time]float64)
	for _, e := range expenses {
		day := e.Date.UTC().Truncate(24 * time.Hour)
		amount, _ := e.Amount.Float64()
		totals[day] += amount
	}

	daily := make([]dailyPoint, 0, len(totals))
	for day, total := range totals {
		daily = append(daily, dailyPoint{day: day, total: total})
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].day.Before(daily[j].day) })

	return daily
}

// weekdayFactors computes the multiplicative weekly seasonality: observed
// mean per weekday relative to the trend. Weekdays with no observations get a
// neutral factor.
func weekdayFactors(daily []dailyPoint, alpha, beta float64, origin time.Time) [7]float64 {
	var sums, counts [7]float64
	for _, p := range daily {
		trend := alpha + beta*dayIndex(origin, p.day)
		if trend <= 0 {
			continue
		}
		w := p.day.Weekday()
		sums[w] += p.total / trend
		counts[w]++
	}

	var factors [7]float64
	for w := range factors {
		if counts[w] > 0 {
			factors[w] = sums[w] / counts[w]
		} else {
			factors[w] = 1
		}
	}

	return factors
}

func dayIndex(origin, day time.Time) float64 {
	return day.Sub(origin).Hours() / 24
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
