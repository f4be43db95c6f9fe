package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/weavebit/loom/pkg/models"
)

// ScheduleRunner drives schedule triggers from a single in-process cron. One
// entry per enabled schedule trigger; a tick fires the trigger through the
// manager funnel like any other source.
type ScheduleRunner struct {
	manager *Manager
	logger  *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// NewScheduleRunner creates a schedule runner on top of the trigger manager.
func NewScheduleRunner(manager *Manager, logger *slog.Logger) *ScheduleRunner {
	return &ScheduleRunner{
		manager: manager,
		logger:  logger.With("module", "schedule_runner"),
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads every enabled schedule trigger and begins ticking. Overlapping
// runs of the same trigger are skipped rather than stacked.
func (r *ScheduleRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return nil
	}

	r.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	triggers, err := r.manager.persistence.TriggerRepository().All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load triggers: %w", err)
	}

	for _, trigger := range triggers {
		if trigger.Type != models.TriggerTypeSchedule || !trigger.Enabled {
			continue
		}

		if err := r.add(trigger); err != nil {
			r.logger.ErrorContext(ctx, "Failed to schedule trigger",
				"trigger_id", trigger.ID, "error", err)
		}
	}

	r.cron.Start()
	r.logger.InfoContext(ctx, "Schedule runner started", "triggers", len(r.entries))

	return nil
}

// Add schedules one more trigger on a running cron.
func (r *ScheduleRunner) Add(trigger *models.Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron == nil {
		return fmt.Errorf("schedule runner is not started")
	}

	return r.add(trigger)
}

func (r *ScheduleRunner) add(trigger *models.Trigger) error {
	triggerID := trigger.ID

	entryID, err := r.cron.AddFunc(trigger.CronExpr(), func() {
		if _, err := r.manager.Fire(context.Background(), triggerID, nil); err != nil {
			r.logger.Error("Scheduled trigger failed", "trigger_id", triggerID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron entry for trigger %s: %w", triggerID, err)
	}

	r.entries[triggerID] = entryID

	return nil
}

// Remove unschedules a trigger.
func (r *ScheduleRunner) Remove(triggerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entryID, ok := r.entries[triggerID]; ok {
		r.cron.Remove(entryID)
		delete(r.entries, triggerID)
	}
}

// Stop halts the cron and waits for running jobs to finish.
func (r *ScheduleRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron == nil {
		return
	}

	<-r.cron.Stop().Done()
	r.cron = nil
	r.entries = make(map[string]cron.EntryID)
	r.logger.Info("Schedule runner stopped")
}
