package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Pull purchase emails and persist expenses",
		Long: `Sweep every registered user's mailbox for purchase receipts,
extract expenses, categorize them, and store the results. Already
processed messages are skipped.`,
		RunE: runFetch,
	}

	cmd.Flags().Int("days", 7, "how many days back to search")

	return cmd
}

func runFetch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	inferrer := initInference()
	if inferrer != nil {
		defer func() { _ = inferrer.Close() }()
	}

	eng, err := buildEngine(store, inferrer)
	if err != nil {
		return err
	}

	days, _ := cmd.Flags().GetInt("days")
	since := time.Now().AddDate(0, 0, -days)

	slog.Info("starting mail sweep", "since", since.Format("2006-01-02"))

	summary, err := eng.FetchAndProcess(ctx, since)
	if err != nil {
		return err
	}

	slog.Info("sweep complete",
		"users", summary.Users,
		"messages", summary.Messages,
		"persisted", summary.Persisted,
		"skipped", summary.Skipped,
		"failed", summary.Failed)

	return nil
}
