package model

import "time"

// DefaultCategories are seeded for every newly registered user.
var DefaultCategories = []string{"Food", "Shopping", "Transportation", "Entertainment", "Bills", "Other"}

// Category represents a user-scoped expense category.
type Category struct {
	CreatedAt time.Time
	Name      string
	ID        int64
	UserID    int64
}

// AssignmentSource records which tier of the categorizer produced an
// assignment. The source drives user-facing "reason" text in budget
// recommendations.
type AssignmentSource string

const (
	// SourceMerchantRule means a merchant keyword table entry matched.
	SourceMerchantRule AssignmentSource = "merchant-rule"
	// SourceSeasonalRule means a seasonal or travel keyword heuristic matched.
	SourceSeasonalRule AssignmentSource = "seasonal-rule"
	// SourceTrainedClassifier means the per-user trained model predicted.
	SourceTrainedClassifier AssignmentSource = "trained-classifier"
	// SourceZeroShot means the zero-shot classifier fallback ranked it.
	SourceZeroShot AssignmentSource = "zero-shot-fallback"
	// SourceDefault means the uncategorized/other floor applied.
	SourceDefault AssignmentSource = "default-uncategorized"
)

// CategoryAssignment pairs a resolved category with the tier that chose it.
// The zero value means "no assignment": the expense persists uncategorized.
type CategoryAssignment struct {
	CategoryName string
	Source       AssignmentSource
	CategoryID   int64
}

// Assigned reports whether a category was actually resolved.
func (a CategoryAssignment) Assigned() bool {
	return a.CategoryID != 0
}
