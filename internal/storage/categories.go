package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/model"
)

// GetCategories returns all categories for a user, ordered by name.
func (s *SQLiteStorage) GetCategories(ctx context.Context, userID int64) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, created_at
		FROM categories
		WHERE user_id = ?
		ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		if err := rows.Scan(&cat.ID, &cat.UserID, &cat.Name, &cat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// GetCategoryByName returns a user's category by name, matching
// case-insensitively. Returns nil when no category matches.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, userID int64, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	var cat model.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, created_at
		FROM categories
		WHERE user_id = ? AND name = ? COLLATE NOCASE`, userID, name).Scan(
		&cat.ID, &cat.UserID, &cat.Name, &cat.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}

	return &cat, nil
}

// GetCategoryByID returns a category by its ID.
func (s *SQLiteStorage) GetCategoryByID(ctx context.Context, id int64) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var cat model.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, created_at
		FROM categories
		WHERE id = ?`, id).Scan(&cat.ID, &cat.UserID, &cat.Name, &cat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: category %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}

	return &cat, nil
}

// CreateCategory creates a category for a user if no category with the same
// name (case-insensitive) exists, and returns the existing or new category.
// Concurrent callers racing on the same name both receive the same row:
// the UNIQUE(user_id, name COLLATE NOCASE) constraint makes the loser of the
// insert race re-read the winner's row.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, userID int64, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	if existing, err := s.GetCategoryByName(ctx, userID, name); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (user_id, name)
		VALUES (?, ?)`, userID, name)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the create race; the row exists now
			return s.GetCategoryByName(ctx, userID, name)
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category ID: %w", err)
	}

	slog.Info("created new category", "user_id", userID, "name", name, "id", id)
	return s.GetCategoryByID(ctx, id)
}

// UpdateCategory renames a category.
func (s *SQLiteStorage) UpdateCategory(ctx context.Context, id int64, name string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(name, "name"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE categories SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return mapConstraintErr(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: category %d", common.ErrNotFound, id)
	}

	return nil
}

// DeleteCategory removes a category, reassigning its expenses to the user's
// Uncategorized category (created on demand). Deleting the Uncategorized
// category itself leaves its expenses with no category.
func (s *SQLiteStorage) DeleteCategory(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	cat, err := s.GetCategoryByID(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var fallbackID any
	if !strings.EqualFold(cat.Name, "Uncategorized") {
		var existing int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM categories
			WHERE user_id = ? AND name = 'Uncategorized' COLLATE NOCASE`, cat.UserID).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			result, insertErr := tx.ExecContext(ctx, `
				INSERT INTO categories (user_id, name) VALUES (?, 'Uncategorized')`, cat.UserID)
			if insertErr != nil {
				return fmt.Errorf("failed to create fallback category: %w", insertErr)
			}
			existing, insertErr = result.LastInsertId()
			if insertErr != nil {
				return fmt.Errorf("failed to read fallback category ID: %w", insertErr)
			}
			fallbackID = existing
		case err != nil:
			return fmt.Errorf("failed to find fallback category: %w", err)
		default:
			fallbackID = existing
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE expenses SET category_id = ? WHERE category_id = ?`, fallbackID, id); err != nil {
		return fmt.Errorf("failed to reassign expenses: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit category delete: %w", err)
	}

	slog.Info("deleted category", "id", id, "name", cat.Name)
	return nil
}
