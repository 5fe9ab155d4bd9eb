package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/model"
)

// UpsertUser creates a user or refreshes the stored token for an existing one.
func (s *SQLiteStorage) UpsertUser(ctx context.Context, email, refreshToken string) (*model.User, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(email, "email"); err != nil {
		return nil, err
	}
	if err := validateString(refreshToken, "refreshToken"); err != nil {
		return nil, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, refresh_token)
		VALUES (?, ?)
		ON CONFLICT(email) DO UPDATE SET refresh_token = excluded.refresh_token`,
		email, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	var user model.User
	err = s.db.QueryRowContext(ctx, `
		SELECT id, email, refresh_token, created_at
		FROM users
		WHERE email = ?`, email).Scan(&user.ID, &user.Email, &user.RefreshToken, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read upserted user: %w", err)
	}

	return &user, nil
}

// GetUser returns a user by ID.
func (s *SQLiteStorage) GetUser(ctx context.Context, id int64) (*model.User, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var user model.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, refresh_token, created_at
		FROM users
		WHERE id = ?`, id).Scan(&user.ID, &user.Email, &user.RefreshToken, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// GetUsers returns all registered users.
func (s *SQLiteStorage) GetUsers(ctx context.Context) ([]model.User, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, refresh_token, created_at
		FROM users
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var user model.User
		if err := rows.Scan(&user.ID, &user.Email, &user.RefreshToken, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}
