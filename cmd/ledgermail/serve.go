package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fennwick/ledgermail/internal/config"
	"github.com/fennwick/ledgermail/internal/engine"
	"github.com/fennwick/ledgermail/internal/forecast"
	"github.com/fennwick/ledgermail/internal/notify"
	"github.com/fennwick/ledgermail/internal/scheduler"
	"github.com/fennwick/ledgermail/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web API and background mail sweep",
		Long: `Start the HTTP API with the WebSocket event stream and, unless
disabled, a background sweep that pulls new purchase emails on a cron
cadence.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	cmd.Flags().Bool("no-sweep", false, "disable the background mail sweep")
	cmd.Flags().String("sweep-schedule", "", "cron expression for the mail sweep (default */30 * * * *)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	hub := notify.NewHub()
	defer hub.Close()

	eng, err := buildEngine(store, inferrer, engine.WithNotifier(hub))
	if err != nil {
		return err
	}

	forecaster := forecast.NewForecaster(store)
	recommender := forecast.NewBudgetRecommender(store, forecaster)

	noSweep, _ := cmd.Flags().GetBool("no-sweep")
	if !noSweep {
		spec, _ := cmd.Flags().GetString("sweep-schedule")
		if spec == "" {
			spec = config.SweepSchedule()
		}

		sched, err := scheduler.New(eng, spec)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = config.ServerAddr()
	}

	srv := server.New(addr, store, eng, forecaster, recommender, hub)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
