package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
)

func main() {
	cfg := LoadConfig()

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	os.MkdirAll(cfg.ExportOutputDir, 0755)

	pipeline := NewProcessingPipeline(cfg, db)
	exports := NewExportManager(cfg, db, NewDeckWriter(cfg.ExportOutputDir))
	tasks := NewTaskManager(cfg.TaskWorkers)

	StartCleanupScheduler(cfg, db, tasks)

	audioFiles := os.Args[1:]
	if len(audioFiles) == 0 {
		log.Fatalf("usage: lecturecast <audio file> [audio file...]")
	}

	log.Println("Starting LectureCast...")
	var sessionIDs []int64
	for _, path := range audioFiles {
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		sessionID, err := InsertLectureSession(db, LectureSession{Title: title, AudioPath: path})
		if err != nil {
			log.Fatalf("Failed to create session for %s: %v", path, err)
		}
		sessionIDs = append(sessionIDs, sessionID)

		audioPath := path
		taskID := tasks.Submit(func(ctx context.Context) error {
			return pipeline.ProcessLecture(ctx, sessionID, audioPath)
		})
		log.Printf("session %d submitted file=%s task=%s", sessionID, path, taskID)
	}
	tasks.Shutdown()

	exportTasks := NewTaskManager(cfg.ExportWorkers)
	for _, sessionID := range sessionIDs {
		session, err := GetLectureSessionByID(db, sessionID)
		if err != nil {
			log.Printf("session %d load failed: %v", sessionID, err)
			continue
		}
		if session.Status != StatusCompleted {
			log.Printf("session %d finished status=%s error=%q", sessionID, session.Status, session.ErrorMessage)
			continue
		}

		jobID, err := InsertExportJob(db, ExportJob{SessionID: sessionID, Format: "md"})
		if err != nil {
			log.Printf("session %d export job creation failed: %v", sessionID, err)
			continue
		}
		exportTasks.Submit(func(ctx context.Context) error {
			return exports.ProcessExport(ctx, jobID)
		})
	}
	exportTasks.Shutdown()

	for _, sessionID := range sessionIDs {
		session, err := GetLectureSessionByID(db, sessionID)
		if err != nil {
			continue
		}
		log.Printf("session %d done status=%s transcript_chars=%d", sessionID, session.Status, len(session.Transcript))
	}
}
