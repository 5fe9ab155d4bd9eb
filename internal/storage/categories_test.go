package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/fennwick/ledgermail/internal/common"
)

func TestCreateCategoryResolvesExisting(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	user := createTestUser(t, store, "alice@example.com")

	first, err := store.CreateCategory(ctx, user.ID, "Groceries")
	if err != nil {
		t.Fatalf("Failed to create category: %v", err)
	}

	// Same name, different case resolves to the same row
	second, err := store.CreateCategory(ctx, user.ID, "groceries")
	if err != nil {
		t.Fatalf("Failed to resolve existing category: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Expected existing category %d, got %d", first.ID, second.ID)
	}
	if second.Name != "Groceries" {
		t.Errorf("Expected original casing preserved, got %q", second.Name)
	}

	categories, err := store.GetCategories(ctx, user.ID)
	if err != nil {
		t.Fatalf("Failed to list categories: %v", err)
	}
	if len(categories) != 1 {
		t.Errorf("Expected 1 category, got %d", len(categories))
	}
}

func TestCategoriesAreUserScoped(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	alice := createTestUser(t, store, "alice@example.com")
	bob := createTestUser(t, store, "bob@example.com")

	if _, err := store.CreateCategory(ctx, alice.ID, "Groceries"); err != nil {
		t.Fatalf("Failed to create category: %v", err)
	}

	got, err := store.GetCategoryByName(ctx, bob.ID, "Groceries")
	if err != nil {
		t.Fatalf("Failed to query category: %v", err)
	}
	if got != nil {
		t.Errorf("Expected no category for other user, got %+v", got)
	}

	// Both users can own the same name
	if _, err := store.CreateCategory(ctx, bob.ID, "Groceries"); err != nil {
		t.Fatalf("Failed to create category for second user: %v", err)
	}
}

func TestUpdateCategory(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	user := createTestUser(t, store, "alice@example.com")

	cat, err := store.CreateCategory(ctx, user.ID, "Groceries")
	if err != nil {
		t.Fatalf("Failed to create category: %v", err)
	}

	if err := store.UpdateCategory(ctx, cat.ID, "Food Shopping"); err != nil {
		t.Fatalf("Failed to rename category: %v", err)
	}

	renamed, err := store.GetCategoryByID(ctx, cat.ID)
	if err != nil {
		t.Fatalf("Failed to read category: %v", err)
	}
	if renamed.Name != "Food Shopping" {
		t.Errorf("Expected renamed category, got %q", renamed.Name)
	}

	if err := store.UpdateCategory(ctx, 9999, "Nope"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing category, got %v", err)
	}
}

func TestUpdateCategoryRejectsDuplicateName(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	user := createTestUser(t, store, "alice@example.com")

	if _, err := store.CreateCategory(ctx, user.ID, "Groceries"); err != nil {
		t.Fatalf("Failed to create category: %v", err)
	}
	other, err := store.CreateCategory(ctx, user.ID, "Entertainment")
	if err != nil {
		t.Fatalf("Failed to create category: %v", err)
	}

	err = store.UpdateCategory(ctx, other.ID, "groceries")
	if !errors.Is(err, common.ErrDuplicateEntry) {
		t.Errorf("Expected ErrDuplicateEntry, got %v", err)
	}
}

func TestDeleteCategoryReassignsExpenses(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	user := createTestUser(t, store, "alice@example.com")

	cat, err := store.CreateCategory(ctx, user.ID, "Groceries")
	if err != nil {
		t.Fatalf("Failed to create category: %v", err)
	}

	expense := testExpense(user.ID, "msg-1", "25.00")
	expense.CategoryID = &cat.ID
	if err := store.CreateExpense(ctx, expense); err != nil {
		t.Fatalf("Failed to create expense: %v", err)
	}

	if err := store.DeleteCategory(ctx, cat.ID); err != nil {
		t.Fatalf("Failed to delete category: %v", err)
	}

	// The expense moved to an on-demand Uncategorized category
	moved, err := store.GetExpenseByID(ctx, expense.ID)
	if err != nil {
		t.Fatalf("Failed to read expense: %v", err)
	}
	if moved.CategoryName != "Uncategorized" {
		t.Errorf("Expected expense reassigned to Uncategorized, got %q", moved.CategoryName)
	}

	if _, err := store.GetCategoryByID(ctx, cat.ID); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected deleted category to be gone, got %v", err)
	}
}

func TestDeleteUncategorizedLeavesExpensesBare(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	user := createTestUser(t, store, "alice@example.com")

	cat, err := store.CreateCategory(ctx, user.ID, "Uncategorized")
	if err != nil {
		t.Fatalf("Failed to create category: %v", err)
	}

	expense := testExpense(user.ID, "msg-1", "25.00")
	expense.CategoryID = &cat.ID
	if err := store.CreateExpense(ctx, expense); err != nil {
		t.Fatalf("Failed to create expense: %v", err)
	}

	if err := store.DeleteCategory(ctx, cat.ID); err != nil {
		t.Fatalf("Failed to delete category: %v", err)
	}

	bare, err := store.GetExpenseByID(ctx, expense.ID)
	if err != nil {
		t.Fatalf("Failed to read expense: %v", err)
	}
	if bare.CategoryID != nil {
		t.Errorf("Expected expense with no category, got %d", *bare.CategoryID)
	}
}
