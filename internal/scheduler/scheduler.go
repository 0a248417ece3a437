package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/NiruddeshJatra/Bhara/internal/cleanup"
	"github.com/NiruddeshJatra/Bhara/internal/config"
	"github.com/NiruddeshJatra/Bhara/internal/snapshot"
)

const dailyJobTimeout = 2 * time.Hour

// Scheduler runs the daily snapshot and cleanup jobs
type Scheduler struct {
	cron      *cron.Cron
	snapshot  *snapshot.Service
	cleanup   *cleanup.Service
	config    *config.Config
	isRunning bool
}

// NewScheduler creates a new scheduler
func NewScheduler(snap *snapshot.Service, clean *cleanup.Service, cfg *config.Config) *Scheduler {
	loc := time.Local
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			log.Printf("[Scheduler] Unknown timezone %q, using local time", cfg.Timezone)
		}
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		snapshot: snap,
		cleanup:  clean,
		config:   cfg,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	if !s.config.Scheduler.DailyRunEnabled {
		log.Println("[Scheduler] Daily run is disabled in configuration")
		return nil
	}

	cronSpec := parseDailyRunTime(s.config.Scheduler.DailyRunTime)

	_, err := s.cron.AddFunc(cronSpec, func() {
		log.Println("[Scheduler] Starting daily job...")
		ctx, cancel := context.WithTimeout(context.Background(), dailyJobTimeout)
		defer cancel()

		if err := s.runDaily(ctx); err != nil {
			log.Printf("[Scheduler] Daily job failed: %v", err)
		} else {
			log.Println("[Scheduler] Daily job completed successfully")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("[Scheduler] Started with daily run at %s (cron: %s)", s.config.Scheduler.DailyRunTime, cronSpec)

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	if s.isRunning {
		s.cron.Stop()
		s.isRunning = false
		log.Println("[Scheduler] Stopped")
	}
}

// runDaily snapshots every product, then removes expired data
func (s *Scheduler) runDaily(ctx context.Context) error {
	if _, err := s.snapshot.SnapshotAll(ctx); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	cfg := cleanup.DefaultCleanupConfig()
	cfg.RetentionDays = s.config.Cleanup.RetentionDays
	cfg.MaxDeletionCount = s.config.Cleanup.MaxDeletionCount
	cfg.DryRun = s.config.Cleanup.DryRun
	cfg.CodeTTL = s.config.Auth.CodeExpiry()

	if _, err := s.cleanup.PhysicallyDelete(ctx, cfg); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	if _, err := s.cleanup.PurgeExpired(ctx, cfg.CodeTTL); err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	return nil
}

// RunNow immediately executes the daily job (for manual trigger)
func (s *Scheduler) RunNow(ctx context.Context) error {
	log.Println("[Scheduler] Manual trigger - starting daily job...")
	return s.runDaily(ctx)
}

// parseDailyRunTime converts HH:MM format to a cron expression
// Example: "02:00" -> "0 2 * * *" (run at 2:00 AM every day)
func parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	log.Printf("[Scheduler] Failed to parse time '%s', using default 02:00", timeStr)
	return "0 2 * * *"
}
