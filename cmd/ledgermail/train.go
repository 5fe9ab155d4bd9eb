package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/model"
	"github.com/fennwick/ledgermail/internal/service"
)

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train per-user categorization models",
		Long: `Fit a categorization model from each user's labeled expense history
and persist the model artifact. Users with too few labeled expenses are
skipped.`,
		RunE: runTrain,
	}

	cmd.Flags().Int64("user", 0, "train only this user ID (default: all users)")

	return cmd
}

func runTrain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	trained, err := initTrainedClassifier()
	if err != nil {
		return err
	}

	var users []model.User
	if userID, _ := cmd.Flags().GetInt64("user"); userID > 0 {
		user, err := store.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load user %d: %w", userID, err)
		}
		users = []model.User{*user}
	} else {
		users, err = store.GetUsers(ctx)
		if err != nil {
			return err
		}
	}

	var fitted, skipped int
	for i := range users {
		user := &users[i]

		expenses, err := store.GetExpenses(ctx, user.ID, service.ExpenseFilter{})
		if err != nil {
			return fmt.Errorf("failed to load expenses for user %d: %w", user.ID, err)
		}

		err = trained.Train(user.ID, expenses)
		switch {
		case errors.Is(err, common.ErrModelUnavailable):
			slog.Info("not enough labeled expenses, skipping",
				"user_id", user.ID, "error", err)
			skipped++
		case err != nil:
			return fmt.Errorf("training failed for user %d: %w", user.ID, err)
		default:
			slog.Info("model trained", "user_id", user.ID, "expenses", len(expenses))
			fitted++
		}
	}

	slog.Info("training complete", "fitted", fitted, "skipped", skipped)
	return nil
}
