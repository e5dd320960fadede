package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// ExportManager owns the export-job lifecycle. It mirrors the session
// lifecycle and adds artifact expiry: a completed job's file is only
// downloadable until expires_at.
type ExportManager struct {
	cfg      Config
	db       *sql.DB
	renderer Renderer
	locks    *lockTable

	// now is swappable in tests.
	now func() time.Time
}

func NewExportManager(cfg Config, db *sql.DB, renderer Renderer) *ExportManager {
	return &ExportManager{
		cfg:      cfg,
		db:       db,
		renderer: renderer,
		locks:    newLockTable(),
		now:      time.Now,
	}
}

// StartExport moves a pending export job into processing.
func (m *ExportManager) StartExport(jobID int64) error {
	unlock := m.locks.lock(jobID)
	defer unlock()

	job, err := GetExportJobByID(m.db, jobID)
	if err != nil {
		return &PersistenceError{Op: "load export job", Err: err}
	}
	if !canTransition(job.Status, StatusProcessing) {
		return &StateError{Entity: "export job", ID: jobID, From: job.Status, To: StatusProcessing}
	}
	if err := UpdateExportJobStatus(m.db, jobID, StatusProcessing); err != nil {
		return &PersistenceError{Op: "update export job status", Err: err}
	}
	log.Printf("export job %d status=processing", jobID)
	return nil
}

// CompleteExport records the rendered file, stamps the expiry from the
// configured retention window, and marks the job completed.
func (m *ExportManager) CompleteExport(jobID int64, filePath string) error {
	unlock := m.locks.lock(jobID)
	defer unlock()

	job, err := GetExportJobByID(m.db, jobID)
	if err != nil {
		return &PersistenceError{Op: "load export job", Err: err}
	}
	if !canTransition(job.Status, StatusCompleted) {
		return &StateError{Entity: "export job", ID: jobID, From: job.Status, To: StatusCompleted}
	}
	if filePath == "" {
		return fmt.Errorf("completed export job %d requires a file reference", jobID)
	}

	expiresAt := m.now().Add(m.cfg.RetentionWindow())
	downloadURL := fmt.Sprintf("/exports/download/%d", jobID)
	if err := UpdateExportJobSuccess(m.db, jobID, filePath, downloadURL, expiresAt); err != nil {
		return &PersistenceError{Op: "update export job success", Err: err}
	}
	log.Printf("export job %d status=completed file=%s expires=%s", jobID, filePath, expiresAt.Format(time.RFC3339))
	return nil
}

// FailExport records the failure message and marks the job failed.
func (m *ExportManager) FailExport(jobID int64, message string) error {
	unlock := m.locks.lock(jobID)
	defer unlock()

	job, err := GetExportJobByID(m.db, jobID)
	if err != nil {
		return &PersistenceError{Op: "load export job", Err: err}
	}
	if !canTransition(job.Status, StatusFailed) {
		return &StateError{Entity: "export job", ID: jobID, From: job.Status, To: StatusFailed}
	}
	if message == "" {
		message = "export failed"
	}
	if err := UpdateExportJobFailure(m.db, jobID, message); err != nil {
		return &PersistenceError{Op: "update export job failure", Err: err}
	}
	log.Printf("export job %d status=failed error=%q", jobID, message)
	return nil
}

// ArtifactAvailable decides, from expires_at alone, whether a job's
// artifact can still be downloaded. The status stays completed after
// expiry; only availability flips.
func (m *ExportManager) ArtifactAvailable(job ExportJob, now time.Time) bool {
	if job.Status != StatusCompleted {
		return false
	}
	if job.FilePath == "" || job.ExpiresAt.IsZero() {
		return false
	}
	return now.Before(job.ExpiresAt)
}

// ProcessExport runs one export job end to end: load the session and its
// slides, render, complete. Renderer failures end in a failed terminal
// state carrying the classified message.
func (m *ExportManager) ProcessExport(ctx context.Context, jobID int64) error {
	if err := m.StartExport(jobID); err != nil {
		return err
	}

	job, err := GetExportJobByID(m.db, jobID)
	if err != nil {
		perr := &PersistenceError{Op: "load export job", Err: err}
		if ferr := m.FailExport(jobID, "export job could not be loaded"); ferr != nil {
			return ferr
		}
		return perr
	}

	session, err := GetLectureSessionByID(m.db, job.SessionID)
	if err != nil {
		if ferr := m.FailExport(jobID, fmt.Sprintf("session %d not found", job.SessionID)); ferr != nil {
			return ferr
		}
		return &PersistenceError{Op: "load session", Err: err}
	}

	slides, err := GetSlidesBySession(m.db, job.SessionID)
	if err != nil {
		if ferr := m.FailExport(jobID, "slides could not be loaded"); ferr != nil {
			return ferr
		}
		return &PersistenceError{Op: "load slides", Err: err}
	}
	if len(slides) == 0 {
		message := fmt.Sprintf("no slides found for session %d", job.SessionID)
		if ferr := m.FailExport(jobID, message); ferr != nil {
			return ferr
		}
		return fmt.Errorf("%s", message)
	}

	filePath, err := m.renderer.Render(ctx, session, slides, job.Format)
	if err != nil {
		rerr := &RenderError{Format: job.Format, Err: err}
		if ferr := m.FailExport(jobID, rerr.Error()); ferr != nil {
			return ferr
		}
		return rerr
	}

	return m.CompleteExport(jobID, filePath)
}
