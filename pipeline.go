package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

// ProcessingPipeline owns the pending -> processing -> completed|failed
// lifecycle of lecture sessions and orchestrates one full run:
// validation, transcription, slide generation, persistence.
type ProcessingPipeline struct {
	cfg           Config
	db            *sql.DB
	transcription *TranscriptionService
	locks         *lockTable

	// generateSlides is swappable in tests; nil means GenerateSlides.
	generateSlides func(ctx context.Context, cfg Config, transcript string) (SlideGenerationResult, error)
}

func NewProcessingPipeline(cfg Config, db *sql.DB) *ProcessingPipeline {
	return &ProcessingPipeline{
		cfg:           cfg,
		db:            db,
		transcription: NewTranscriptionService(cfg),
		locks:         newLockTable(),
	}
}

// StartProcessing moves a pending session into processing. A session that
// is anywhere else in its lifecycle is rejected with StateError, which is
// what stops two concurrent starts from double-invoking the engine.
func (p *ProcessingPipeline) StartProcessing(sessionID int64) error {
	unlock := p.locks.lock(sessionID)
	defer unlock()

	session, err := GetLectureSessionByID(p.db, sessionID)
	if err != nil {
		return &PersistenceError{Op: "load session", Err: err}
	}
	if !canTransition(session.Status, StatusProcessing) {
		return &StateError{Entity: "session", ID: sessionID, From: session.Status, To: StatusProcessing}
	}
	if err := UpdateSessionStatus(p.db, sessionID, StatusProcessing); err != nil {
		return &PersistenceError{Op: "update session status", Err: err}
	}
	log.Printf("session %d status=processing", sessionID)
	return nil
}

// CompleteProcessing writes the transcription result and generated
// slides to the session and marks it completed.
func (p *ProcessingPipeline) CompleteProcessing(sessionID int64, result TranscriptionResult, slides []SlideContent) error {
	unlock := p.locks.lock(sessionID)
	defer unlock()

	session, err := GetLectureSessionByID(p.db, sessionID)
	if err != nil {
		return &PersistenceError{Op: "load session", Err: err}
	}
	if !canTransition(session.Status, StatusCompleted) {
		return &StateError{Entity: "session", ID: sessionID, From: session.Status, To: StatusCompleted}
	}

	if err := UpdateSessionTranscript(p.db, sessionID, result.Text, result.Language, int(result.Duration)); err != nil {
		return &PersistenceError{Op: "update session transcript", Err: err}
	}

	records := make([]Slide, 0, len(slides))
	for i, slide := range slides {
		content, err := json.Marshal(slide.Content)
		if err != nil {
			return fmt.Errorf("encoding slide content: %w", err)
		}
		records = append(records, Slide{
			SessionID:      sessionID,
			SlideNumber:    i + 1,
			Title:          slide.Title,
			Content:        string(content),
			ConfidenceData: slideConfidencePayload(slide, i+1, result.LowConfidenceWords),
		})
	}
	if err := ReplaceSlides(p.db, sessionID, records); err != nil {
		return &PersistenceError{Op: "save slides", Err: err}
	}

	if err := UpdateSessionStatus(p.db, sessionID, StatusCompleted); err != nil {
		return &PersistenceError{Op: "update session status", Err: err}
	}
	log.Printf("session %d status=completed slides=%d low_confidence=%d", sessionID, len(records), len(result.LowConfidenceWords))
	return nil
}

// FailProcessing records the failure message and marks the session
// failed. The message is the classified, human-readable kind; nothing
// internal leaks through the status read path.
func (p *ProcessingPipeline) FailProcessing(sessionID int64, message string) error {
	unlock := p.locks.lock(sessionID)
	defer unlock()

	session, err := GetLectureSessionByID(p.db, sessionID)
	if err != nil {
		return &PersistenceError{Op: "load session", Err: err}
	}
	if !canTransition(session.Status, StatusFailed) {
		return &StateError{Entity: "session", ID: sessionID, From: session.Status, To: StatusFailed}
	}
	if message == "" {
		message = "processing failed"
	}
	if err := UpdateSessionFailure(p.db, sessionID, message); err != nil {
		return &PersistenceError{Op: "update session failure", Err: err}
	}
	log.Printf("session %d status=failed error=%q", sessionID, message)
	return nil
}

// ProcessLecture runs the complete pipeline for one session. Collaborator
// failures (validation, engine, LLM) end in a failed terminal state and
// are also returned so the dispatching task records them; they are never
// left as unhandled faults.
func (p *ProcessingPipeline) ProcessLecture(ctx context.Context, sessionID int64, audioPath string) error {
	if err := p.StartProcessing(sessionID); err != nil {
		return err
	}
	defer p.cleanupAudioFile(audioPath)

	if !ValidateAudioFile(audioPath) {
		verr := &ValidationError{Path: audioPath, Reason: "missing, empty, or unsupported audio file"}
		if err := p.FailProcessing(sessionID, verr.Error()); err != nil {
			return err
		}
		return verr
	}

	result, err := p.transcription.TranscribeAudio(ctx, audioPath)
	if err != nil {
		if ferr := p.FailProcessing(sessionID, err.Error()); ferr != nil {
			return ferr
		}
		return err
	}

	generate := p.generateSlides
	if generate == nil {
		generate = GenerateSlides
	}
	generated, err := generate(ctx, p.cfg, result.Text)
	if err != nil {
		message := fmt.Sprintf("slide generation failed: %v", err)
		if ferr := p.FailProcessing(sessionID, message); ferr != nil {
			return ferr
		}
		return err
	}

	return p.CompleteProcessing(sessionID, result, generated.Slides)
}

func (p *ProcessingPipeline) cleanupAudioFile(audioPath string) {
	if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
		log.Printf("cleanup audio file %s failed: %v", audioPath, err)
	}
}

// slideConfidencePayload serializes the subset of the session's
// low-confidence words that actually appear on this slide, sorted for
// deterministic storage.
func slideConfidencePayload(slide SlideContent, slideNumber int, lowConfidence map[string]bool) string {
	var text strings.Builder
	text.WriteString(strings.ToLower(slide.Title))
	for _, line := range slide.Content {
		text.WriteString(" ")
		text.WriteString(strings.ToLower(line))
	}
	slideText := text.String()

	subset := make([]string, 0)
	for word := range lowConfidence {
		if strings.Contains(slideText, strings.ToLower(word)) {
			subset = append(subset, word)
		}
	}
	sort.Strings(subset)

	payload, _ := json.Marshal(map[string]any{
		"slide_number":         slideNumber,
		"low_confidence_words": subset,
	})
	return string(payload)
}
