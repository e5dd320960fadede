package main

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS lecture_sessions (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		title          TEXT DEFAULT '',
		audio_path     TEXT DEFAULT '',
		transcript     TEXT DEFAULT '',
		language       TEXT DEFAULT '',
		audio_duration INTEGER DEFAULT 0,
		status         TEXT NOT NULL DEFAULT 'pending',
		error_message  TEXT DEFAULT '',
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON lecture_sessions(status);

	CREATE TABLE IF NOT EXISTS slides (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id      INTEGER NOT NULL,
		slide_number    INTEGER NOT NULL,
		title           TEXT NOT NULL,
		content         TEXT NOT NULL,
		confidence_data TEXT DEFAULT '',
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_slides_session ON slides(session_id);

	CREATE TABLE IF NOT EXISTS export_jobs (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id    INTEGER NOT NULL,
		format        TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'pending',
		file_path     TEXT DEFAULT '',
		download_url  TEXT DEFAULT '',
		error_message TEXT DEFAULT '',
		expires_at    DATETIME,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_export_jobs_session ON export_jobs(session_id);
	CREATE INDEX IF NOT EXISTS idx_export_jobs_expires ON export_jobs(expires_at);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// --- Lecture sessions ---

func InsertLectureSession(db *sql.DB, session LectureSession) (int64, error) {
	status := session.Status
	if status == "" {
		status = StatusPending
	}
	res, err := db.Exec(
		`INSERT INTO lecture_sessions (title, audio_path, status) VALUES (?, ?, ?)`,
		session.Title, session.AudioPath, string(status),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func GetLectureSessionByID(db *sql.DB, id int64) (LectureSession, error) {
	var s LectureSession
	err := db.QueryRow(
		`SELECT id, title, audio_path, transcript, language, audio_duration, status, error_message, created_at, updated_at
		 FROM lecture_sessions WHERE id = ?`,
		id,
	).Scan(
		&s.ID, &s.Title, &s.AudioPath, &s.Transcript, &s.Language,
		&s.AudioDuration, &s.Status, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

func UpdateSessionStatus(db *sql.DB, id int64, status ProcessingStatus) error {
	_, err := db.Exec(
		`UPDATE lecture_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	return err
}

func UpdateSessionFailure(db *sql.DB, id int64, errorMessage string) error {
	_, err := db.Exec(
		`UPDATE lecture_sessions SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(StatusFailed), errorMessage, time.Now().UTC(), id,
	)
	return err
}

func UpdateSessionTranscript(db *sql.DB, id int64, transcript, language string, durationSeconds int) error {
	_, err := db.Exec(
		`UPDATE lecture_sessions SET transcript = ?, language = ?, audio_duration = ?, updated_at = ? WHERE id = ?`,
		transcript, language, durationSeconds, time.Now().UTC(), id,
	)
	return err
}

// --- Slides ---

// ReplaceSlides deletes any existing slides for the session and inserts the
// new set in one transaction, so a reprocessed session never keeps stale
// slides next to fresh ones.
func ReplaceSlides(db *sql.DB, sessionID int64, slides []Slide) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM slides WHERE session_id = ?`, sessionID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO slides (session_id, slide_number, title, content, confidence_data)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, slide := range slides {
		if _, err := stmt.Exec(sessionID, slide.SlideNumber, slide.Title, slide.Content, slide.ConfidenceData); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func GetSlidesBySession(db *sql.DB, sessionID int64) ([]Slide, error) {
	rows, err := db.Query(
		`SELECT id, session_id, slide_number, title, content, confidence_data, created_at
		 FROM slides WHERE session_id = ? ORDER BY slide_number`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slides []Slide
	for rows.Next() {
		var s Slide
		if err := rows.Scan(&s.ID, &s.SessionID, &s.SlideNumber, &s.Title, &s.Content, &s.ConfidenceData, &s.CreatedAt); err != nil {
			return nil, err
		}
		slides = append(slides, s)
	}
	return slides, rows.Err()
}

// --- Export jobs ---

func InsertExportJob(db *sql.DB, job ExportJob) (int64, error) {
	status := job.Status
	if status == "" {
		status = StatusPending
	}
	res, err := db.Exec(
		`INSERT INTO export_jobs (session_id, format, status) VALUES (?, ?, ?)`,
		job.SessionID, job.Format, string(status),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func GetExportJobByID(db *sql.DB, id int64) (ExportJob, error) {
	var j ExportJob
	var expiresAt sql.NullTime
	err := db.QueryRow(
		`SELECT id, session_id, format, status, file_path, download_url, error_message, expires_at, created_at, updated_at
		 FROM export_jobs WHERE id = ?`,
		id,
	).Scan(
		&j.ID, &j.SessionID, &j.Format, &j.Status, &j.FilePath,
		&j.DownloadURL, &j.ErrorMessage, &expiresAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if expiresAt.Valid {
		j.ExpiresAt = expiresAt.Time
	}
	return j, err
}

func UpdateExportJobStatus(db *sql.DB, id int64, status ProcessingStatus) error {
	_, err := db.Exec(
		`UPDATE export_jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	return err
}

func UpdateExportJobSuccess(db *sql.DB, id int64, filePath, downloadURL string, expiresAt time.Time) error {
	_, err := db.Exec(
		`UPDATE export_jobs SET status = ?, file_path = ?, download_url = ?, expires_at = ?, updated_at = ? WHERE id = ?`,
		string(StatusCompleted), filePath, downloadURL, expiresAt.UTC(), time.Now().UTC(), id,
	)
	return err
}

func UpdateExportJobFailure(db *sql.DB, id int64, errorMessage string) error {
	_, err := db.Exec(
		`UPDATE export_jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(StatusFailed), errorMessage, time.Now().UTC(), id,
	)
	return err
}

// GetExpiredExportJobs returns completed jobs whose artifact expired
// before now and whose file has not been purged yet.
func GetExpiredExportJobs(db *sql.DB, now time.Time) ([]ExportJob, error) {
	rows, err := db.Query(
		`SELECT id, session_id, format, status, file_path, download_url, error_message, expires_at, created_at, updated_at
		 FROM export_jobs
		 WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ? AND file_path <> ''`,
		string(StatusCompleted), now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ExportJob
	for rows.Next() {
		var j ExportJob
		var expiresAt sql.NullTime
		if err := rows.Scan(
			&j.ID, &j.SessionID, &j.Format, &j.Status, &j.FilePath,
			&j.DownloadURL, &j.ErrorMessage, &expiresAt, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if expiresAt.Valid {
			j.ExpiresAt = expiresAt.Time
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ClearExportJobArtifact nulls out the file reference after the physical
// file is purged. Status intentionally stays 'completed'.
func ClearExportJobArtifact(db *sql.DB, id int64) error {
	_, err := db.Exec(
		`UPDATE export_jobs SET file_path = '', download_url = '', updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return err
}
