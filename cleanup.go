package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CleanupResult tracks what one expiry sweep did.
type CleanupResult struct {
	Expired      int
	FilesRemoved int
	Errors       []string
}

// CleanupExpiredExports purges the physical files of completed export
// jobs past their expiry and clears their file references. Job status
// stays 'completed'; the artifact simply becomes unavailable.
func CleanupExpiredExports(db *sql.DB, now time.Time) (CleanupResult, error) {
	jobs, err := GetExpiredExportJobs(db, now)
	if err != nil {
		return CleanupResult{}, &PersistenceError{Op: "load expired export jobs", Err: err}
	}

	var result CleanupResult
	result.Expired = len(jobs)
	for _, job := range jobs {
		if job.FilePath != "" {
			if err := os.Remove(job.FilePath); err != nil && !os.IsNotExist(err) {
				result.Errors = append(result.Errors, fmt.Sprintf("job %d: %v", job.ID, err))
				continue
			}
			result.FilesRemoved++
		}
		if err := ClearExportJobArtifact(db, job.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("job %d: %v", job.ID, err))
		}
	}

	if result.Expired > 0 {
		log.Printf("cleanup expired=%d removed=%d errors=%d", result.Expired, result.FilesRemoved, len(result.Errors))
	}
	return result, nil
}

// StartCleanupScheduler runs the expiry sweep on the configured cron
// schedule (5-field: minute hour day-of-month month day-of-week).
func StartCleanupScheduler(cfg Config, db *sql.DB, tasks *TaskManager) {
	schedule := strings.TrimSpace(cfg.CleanupSchedule)
	if schedule == "" {
		log.Println("Export cleanup disabled (cleanup_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid cleanup_schedule '%s': %v — cleanup disabled", schedule, err)
		return
	}

	log.Printf("Export cleanup scheduled (cron: %s), retention %s", schedule, cfg.RetentionWindow())

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next cleanup at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			result, sweepErr := CleanupExpiredExports(db, time.Now())
			if sweepErr != nil {
				log.Printf("Cleanup error: %v", sweepErr)
				continue
			}
			if len(result.Errors) > 0 {
				log.Printf("Cleanup warnings:\n%s", strings.Join(result.Errors, "\n"))
			}
			if tasks != nil {
				tasks.CleanupFinished(cfg.RetentionWindow())
			}
		}
	}()
}
