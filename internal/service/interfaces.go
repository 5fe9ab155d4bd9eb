// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fennwick/ledgermail/internal/model"
)

// ExpenseFilter defines filtering options for expense queries.
type ExpenseFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	CategoryID *int64
	Limit      int
	Offset     int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// User operations
	UpsertUser(ctx context.Context, email, refreshToken string) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUsers(ctx context.Context) ([]model.User, error)

	// Expense operations
	CreateExpense(ctx context.Context, expense *model.Expense) error
	GetExpenseByEmailID(ctx context.Context, emailID string) (*model.Expense, error)
	GetExpenseByID(ctx context.Context, id int64) (*model.Expense, error)
	GetExpenses(ctx context.Context, userID int64, filter ExpenseFilter) ([]model.Expense, error)
	UpdateExpense(ctx context.Context, expense *model.Expense) error
	DeleteExpense(ctx context.Context, id int64) error

	// Category operations
	GetCategories(ctx context.Context, userID int64) ([]model.Category, error)
	GetCategoryByName(ctx context.Context, userID int64, name string) (*model.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*model.Category, error)
	CreateCategory(ctx context.Context, userID int64, name string) (*model.Category, error)
	UpdateCategory(ctx context.Context, id int64, name string) error
	DeleteCategory(ctx context.Context, id int64) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// MailClient defines the contract for the mail provider.
type MailClient interface {
	// ListMessages returns provider message identifiers matching the query,
	// newest first, restricted to messages sent after since.
	ListMessages(ctx context.Context, query string, since time.Time) ([]string, error)
	// GetMessage fetches a single message envelope with its full payload tree.
	GetMessage(ctx context.Context, messageID string) (*model.EmailMessage, error)
}

// ProcessStatus is the terminal state of one pipeline run.
type ProcessStatus string

const (
	// StatusPersisted means an expense row was committed for the message.
	StatusPersisted ProcessStatus = "persisted"
	// StatusSkipped means the run ended without persisting anything.
	StatusSkipped ProcessStatus = "skipped"
)

// Skip reasons reported in ProcessResult.Reason.
const (
	SkipDuplicate        = "duplicate"
	SkipNoValidCandidate = "no-valid-candidate"
)

// ProcessResult is the outcome of Engine.ProcessMessage.
type ProcessResult struct {
	Status    ProcessStatus
	Reason    string // set when Status == StatusSkipped
	ExpenseID int64  // set when Status == StatusPersisted
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// MerchantTotal is one merchant's aggregate spending.
type MerchantTotal struct {
	Merchant string
	Amount   decimal.Decimal
}

// DashboardSummary aggregates the current month's spending for a user.
type DashboardSummary struct {
	SpendingByCategory map[string]decimal.Decimal
	TopMerchants       []MerchantTotal
	TotalSpending      decimal.Decimal
}

// ForecastPoint is one day of predicted spending.
type ForecastPoint struct {
	Date     time.Time
	Category string
	Amount   float64
	Lower    float64
	Upper    float64
}

// BudgetRecommendation is a per-category budget suggestion.
type BudgetRecommendation struct {
	Category           string
	Reason             string
	CurrentPercent     float64
	RecommendedPercent float64
	RecommendedBudget  float64
}

// BudgetReport is the full recommendation payload for a user.
type BudgetReport struct {
	Recommendations         []BudgetRecommendation
	PredictedMonthlyExpense float64
}
