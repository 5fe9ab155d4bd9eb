// Package scheduler runs the mail sweep on a cron cadence.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/fennwick/ledgermail/internal/engine"
)

// DefaultSchedule sweeps every 30 minutes.
const DefaultSchedule = "*/30 * * * *"

// lookback pads the sweep window so messages delivered between runs are
// never missed; dedup makes the overlap harmless.
const lookback = 2 * time.Hour

// Scheduler triggers periodic FetchAndProcess sweeps.
type Scheduler struct {
	engine   *engine.Engine
	cron     *cron.Cron
	schedule cron.Schedule
	spec     string
}

// New builds a scheduler for the given cron expression. Standard five-field
// expressions are accepted.
func New(eng *engine.Engine, spec string) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	return &Scheduler{
		engine:   eng,
		cron:     cron.New(),
		schedule: schedule,
		spec:     spec,
	}, nil
}

// Start begins the sweep cadence. The context bounds each sweep run.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.runSweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	slog.Info("sweep scheduler started",
		"schedule", s.spec,
		"next_run", s.schedule.Next(time.Now()).Format(time.RFC3339))
	return nil
}

// Stop halts the cadence and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("sweep scheduler stopped")
}

func (s *Scheduler) runSweep(ctx context.Context) {
	runID := uuid.NewString()
	since := time.Now().Add(-lookback)

	slog.Info("starting scheduled sweep", "run_id", runID, "since", since.Format(time.RFC3339))

	summary, err := s.engine.FetchAndProcess(ctx, since)
	if err != nil {
		slog.Error("scheduled sweep failed", "run_id", runID, "error", err)
		return
	}

	slog.Info("scheduled sweep finished",
		"run_id", runID,
		"users", summary.Users,
		"messages", summary.Messages,
		"persisted", summary.Persisted,
		"skipped", summary.Skipped,
		"failed", summary.Failed)
}
