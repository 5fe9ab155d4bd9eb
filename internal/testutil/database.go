// Package testutil provides test database helpers with proper isolation and
// cleanup.
package testutil

import (
	"context"
	"testing"

	"github.com/fennwick/ledgermail/internal/model"
	"github.com/fennwick/ledgermail/internal/service"
	"github.com/fennwick/ledgermail/internal/storage"
)

// TestDB is an in-memory database seeded with a test user.
type TestDB struct {
	Storage service.Storage
	User    *model.User
	t       *testing.T
}

// SetupTestDB creates a migrated in-memory database with one registered user
// and the named categories. Cleanup is automatic.
func SetupTestDB(t *testing.T, categoryNames ...string) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	user, err := store.UpsertUser(ctx, "test@example.com", "test-refresh-token")
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	for _, name := range categoryNames {
		if _, err := store.CreateCategory(ctx, user.ID, name); err != nil {
			t.Fatalf("failed to seed category %q: %v", name, err)
		}
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, User: user, t: t}
}

// CreateUser registers an additional user.
func (db *TestDB) CreateUser(email string) *model.User {
	db.t.Helper()

	user, err := db.Storage.UpsertUser(context.Background(), email, "refresh-token")
	if err != nil {
		db.t.Fatalf("failed to create user %q: %v", email, err)
	}
	return user
}
