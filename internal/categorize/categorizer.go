// Package categorize assigns categories to validated expenses through a
// fixed chain of rule, model, and fallback tiers.
package categorize

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fennwick/ledgermail/internal/inference"
	"github.com/fennwick/ledgermail/internal/model"
)

// CategoryStore is the slice of storage the categorizer needs.
type CategoryStore interface {
	GetCategoryByName(ctx context.Context, userID int64, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, userID int64, name string) (*model.Category, error)
}

// Categorizer resolves a category assignment for an expense. Tiers run in
// strict priority order; a later tier never overrides an earlier match.
type Categorizer struct {
	store    CategoryStore
	trained  *TrainedClassifier
	inferrer inference.Client
	now      func() time.Time
}

// NewCategorizer creates a categorizer. The inference client may be nil, in
// which case the zero-shot tier is skipped.
func NewCategorizer(store CategoryStore, trained *TrainedClassifier, inferrer inference.Client) *Categorizer {
	return &Categorizer{
		store:    store,
		trained:  trained,
		inferrer: inferrer,
		now:      time.Now,
	}
}

// Categorize returns a category assignment for the expense. A zero-value
// assignment means no category applied and the expense stays unlinked; that
// is a valid outcome, not an error. Errors are reserved for storage failures.
func (c *Categorizer) Categorize(ctx context.Context, userID int64, merchant, description string) (model.CategoryAssignment, error) {
	merchantLower := strings.ToLower(merchant)
	descriptionLower := strings.ToLower(description)

	// Tier 1: merchant keyword rules
	for _, rule := range merchantRules {
		if containsAny(merchantLower, rule.merchants) {
			return c.resolveOrCreate(ctx, userID, rule.category, model.SourceMerchantRule)
		}
	}

	// Tier 2: holiday season routing, only to a category the user already has
	month := c.now().Month()
	if (month == time.November || month == time.December) && containsAny(descriptionLower, seasonalKeywords) {
		for _, name := range []string{"Holiday", "Christmas"} {
			assignment, ok, err := c.resolveExisting(ctx, userID, name, model.SourceSeasonalRule)
			if err != nil {
				return model.CategoryAssignment{}, err
			}
			if ok {
				return assignment, nil
			}
		}
	}

	// Tier 3: travel keywords, same existing-category constraint
	if containsAny(descriptionLower, travelKeywords) {
		assignment, ok, err := c.resolveExisting(ctx, userID, "Travel", model.SourceSeasonalRule)
		if err != nil {
			return model.CategoryAssignment{}, err
		}
		if ok {
			return assignment, nil
		}
	}

	// Tier 4: per-user trained classifier
	if c.trained != nil {
		if predicted, err := c.trained.Predict(userID, merchant, description); err == nil && predicted != "" {
			return c.resolveOrCreate(ctx, userID, predicted, model.SourceTrainedClassifier)
		} else if err != nil {
			slog.Debug("trained classifier unavailable", "user_id", userID, "error", err)
		}
	}

	// Tier 5: zero-shot fallback against the fixed label set
	if c.inferrer != nil {
		result, err := c.inferrer.ZeroShot(ctx, expenseText(merchant, description), zeroShotLabels)
		if err == nil && result.Label != "" {
			return c.resolveOrCreate(ctx, userID, result.Label, model.SourceZeroShot)
		}
		if err != nil {
			slog.Warn("zero-shot classification failed", "user_id", userID, "error", err)
		}
	}

	// Tier 6: default floor, never creates a category
	for _, name := range []string{"Uncategorized", "Other"} {
		assignment, ok, err := c.resolveExisting(ctx, userID, name, model.SourceDefault)
		if err != nil {
			return model.CategoryAssignment{}, err
		}
		if ok {
			return assignment, nil
		}
	}

	return model.CategoryAssignment{}, nil
}

// resolveOrCreate links to the named category, creating it for the user when
// absent. Creation is idempotent under concurrent pipeline runs.
func (c *Categorizer) resolveOrCreate(ctx context.Context, userID int64, name string, source model.AssignmentSource) (model.CategoryAssignment, error) {
	cat, err := c.store.CreateCategory(ctx, userID, name)
	if err != nil {
		return model.CategoryAssignment{}, err
	}

	return model.CategoryAssignment{
		CategoryID:   cat.ID,
		CategoryName: cat.Name,
		Source:       source,
	}, nil
}

// resolveExisting links to the named category only if the user already has it.
func (c *Categorizer) resolveExisting(ctx context.Context, userID int64, name string, source model.AssignmentSource) (model.CategoryAssignment, bool, error) {
	cat, err := c.store.GetCategoryByName(ctx, userID, name)
	if err != nil {
		return model.CategoryAssignment{}, false, err
	}
	if cat == nil {
		return model.CategoryAssignment{}, false, nil
	}

	return model.CategoryAssignment{
		CategoryID:   cat.ID,
		CategoryName: cat.Name,
		Source:       source,
	}, true, nil
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
