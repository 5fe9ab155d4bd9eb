package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/model"
	"github.com/fennwick/ledgermail/internal/service"
)

const expenseColumns = `e.id, e.user_id, e.date, e.amount, e.merchant,
	COALESCE(e.description, ''), e.category_id, COALESCE(e.email_id, ''),
	e.created_at, COALESCE(c.name, '')`

// CreateExpense persists a new expense. The row insert is atomic: the
// category linkage is a column on the row, so expense and linkage commit
// together or not at all. A duplicate email_id surfaces as ErrDuplicateEntry.
func (s *SQLiteStorage) CreateExpense(ctx context.Context, expense *model.Expense) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateExpense(expense); err != nil {
		return err
	}

	var emailID any
	if expense.EmailID != "" {
		emailID = expense.EmailID
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (user_id, date, amount, merchant, description, category_id, email_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		expense.UserID, expense.Date, expense.Amount.String(), expense.Merchant,
		expense.Description, expense.CategoryID, emailID)
	if err != nil {
		return mapConstraintErr(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get expense ID: %w", err)
	}
	expense.ID = id

	return nil
}

// GetExpenseByEmailID returns the expense created from the given provider
// message, or nil when the message has not been processed.
func (s *SQLiteStorage) GetExpenseByEmailID(ctx context.Context, emailID string) (*model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(emailID, "emailID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses e
		LEFT JOIN categories c ON c.id = e.category_id
		WHERE e.email_id = ?`, emailID)

	expense, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query expense by email ID: %w", err)
	}

	return expense, nil
}

// GetExpenseByID returns an expense by its ID.
func (s *SQLiteStorage) GetExpenseByID(ctx context.Context, id int64) (*model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses e
		LEFT JOIN categories c ON c.id = e.category_id
		WHERE e.id = ?`, id)

	expense, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: expense %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query expense: %w", err)
	}

	return expense, nil
}

// GetExpenses returns a user's expenses, newest first, honoring the filter.
func (s *SQLiteStorage) GetExpenses(ctx context.Context, userID int64, filter service.ExpenseFilter) ([]model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT ` + expenseColumns + `
		FROM expenses e
		LEFT JOIN categories c ON c.id = e.category_id
		WHERE e.user_id = ?`)
	args := []any{userID}

	if filter.CategoryID != nil {
		sb.WriteString(` AND e.category_id = ?`)
		args = append(args, *filter.CategoryID)
	}
	if filter.StartDate != nil {
		sb.WriteString(` AND e.date >= ?`)
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		sb.WriteString(` AND e.date <= ?`)
		args = append(args, *filter.EndDate)
	}

	sb.WriteString(` ORDER BY e.date DESC, e.id DESC`)

	if filter.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			sb.WriteString(` OFFSET ?`)
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []model.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, *expense)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expenses: %w", err)
	}

	return expenses, nil
}

// UpdateExpense updates an existing expense's mutable fields.
func (s *SQLiteStorage) UpdateExpense(ctx context.Context, expense *model.Expense) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateExpense(expense); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET date = ?, amount = ?, merchant = ?, description = ?, category_id = ?
		WHERE id = ?`,
		expense.Date, expense.Amount.String(), expense.Merchant,
		expense.Description, expense.CategoryID, expense.ID)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: expense %d", common.ErrNotFound, expense.ID)
	}

	return nil
}

// DeleteExpense removes an expense.
func (s *SQLiteStorage) DeleteExpense(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: expense %d", common.ErrNotFound, id)
	}

	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (*model.Expense, error) {
	var expense model.Expense
	var amount string
	var categoryID sql.NullInt64

	if err := row.Scan(&expense.ID, &expense.UserID, &expense.Date, &amount,
		&expense.Merchant, &expense.Description, &categoryID, &expense.EmailID,
		&expense.CreatedAt, &expense.CategoryName); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("stored amount %q is not a decimal: %w", amount, err)
	}
	expense.Amount = parsed

	if categoryID.Valid {
		expense.CategoryID = &categoryID.Int64
	}

	return &expense, nil
}
