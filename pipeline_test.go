package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func newTestPipeline(t *testing.T, db *sql.DB, engine SpeechEngine) *ProcessingPipeline {
	t.Helper()
	cfg := Config{ConfidenceThreshold: 0.7, MaxSlides: 20}
	p := NewProcessingPipeline(cfg, db)
	p.transcription = newFakeTranscriptionService(cfg, engine)
	p.generateSlides = func(_ context.Context, _ Config, transcript string) (SlideGenerationResult, error) {
		return SlideGenerationResult{Slides: []SlideContent{
			{Title: "Overview", Content: []string{"Hello world", "test."}},
		}}, nil
	}
	return p
}

func mustInsertSession(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	id, err := InsertLectureSession(db, LectureSession{Title: "L1"})
	if err != nil {
		t.Fatalf("InsertLectureSession failed: %v", err)
	}
	return id
}

func TestProcessingLifecycleLegalPath(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db, &fakeEngine{})
	sessionID := mustInsertSession(t, db)

	if err := p.StartProcessing(sessionID); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}

	result := AggregateSegments(twoSegmentFixture(), "en", 3.2, 0.7)
	slides := []SlideContent{{Title: "Overview", Content: []string{"Hello world", "test."}}}
	if err := p.CompleteProcessing(sessionID, result, slides); err != nil {
		t.Fatalf("CompleteProcessing failed: %v", err)
	}

	session, _ := GetLectureSessionByID(db, sessionID)
	if session.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", session.Status)
	}
	if session.Transcript != "Hello world  test." {
		t.Fatalf("unexpected transcript: %q", session.Transcript)
	}
	if session.Language != "en" || session.AudioDuration != 3 {
		t.Fatalf("unexpected metadata: %+v", session)
	}

	stored, err := GetSlidesBySession(db, sessionID)
	if err != nil {
		t.Fatalf("GetSlidesBySession failed: %v", err)
	}
	if len(stored) != 1 || stored[0].SlideNumber != 1 {
		t.Fatalf("unexpected slides: %+v", stored)
	}

	var payload struct {
		SlideNumber        int      `json:"slide_number"`
		LowConfidenceWords []string `json:"low_confidence_words"`
	}
	if err := json.Unmarshal([]byte(stored[0].ConfidenceData), &payload); err != nil {
		t.Fatalf("confidence payload not valid JSON: %v", err)
	}
	if payload.SlideNumber != 1 {
		t.Fatalf("unexpected slide number in payload: %d", payload.SlideNumber)
	}
	if len(payload.LowConfidenceWords) != 1 || payload.LowConfidenceWords[0] != "world" {
		t.Fatalf("expected low-confidence subset [world], got %v", payload.LowConfidenceWords)
	}
}

func TestStartProcessingRejectsNonPending(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db, &fakeEngine{})
	sessionID := mustInsertSession(t, db)

	if err := p.StartProcessing(sessionID); err != nil {
		t.Fatalf("first StartProcessing failed: %v", err)
	}

	err := p.StartProcessing(sessionID)
	var serr *StateError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StateError, got %v", err)
	}
	if serr.From != StatusProcessing || serr.To != StatusProcessing {
		t.Fatalf("unexpected StateError: %+v", serr)
	}

	session, _ := GetLectureSessionByID(db, sessionID)
	if session.Status != StatusProcessing {
		t.Fatalf("state must be unchanged after rejected transition, got %s", session.Status)
	}
}

func TestTerminalStatesRejectAllTransitions(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db, &fakeEngine{})

	result := TranscriptionResult{Text: "t", LowConfidenceWords: map[string]bool{}}

	// Completed session.
	completedID := mustInsertSession(t, db)
	if err := p.StartProcessing(completedID); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	if err := p.CompleteProcessing(completedID, result, nil); err != nil {
		t.Fatalf("CompleteProcessing failed: %v", err)
	}

	// Failed session.
	failedID := mustInsertSession(t, db)
	if err := p.StartProcessing(failedID); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	if err := p.FailProcessing(failedID, "engine down"); err != nil {
		t.Fatalf("FailProcessing failed: %v", err)
	}

	var serr *StateError
	for _, id := range []int64{completedID, failedID} {
		if err := p.StartProcessing(id); !errors.As(err, &serr) {
			t.Fatalf("session %d: expected StateError from start, got %v", id, err)
		}
		if err := p.CompleteProcessing(id, result, nil); !errors.As(err, &serr) {
			t.Fatalf("session %d: expected StateError from complete, got %v", id, err)
		}
		if err := p.FailProcessing(id, "again"); !errors.As(err, &serr) {
			t.Fatalf("session %d: expected StateError from fail, got %v", id, err)
		}
	}

	// A duplicate completion callback must not overwrite the terminal state.
	session, _ := GetLectureSessionByID(db, failedID)
	if session.Status != StatusFailed || session.ErrorMessage != "engine down" {
		t.Fatalf("terminal state mutated: %+v", session)
	}
}

func TestFailProcessingRequiresNonEmptyMessage(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db, &fakeEngine{})
	sessionID := mustInsertSession(t, db)

	if err := p.StartProcessing(sessionID); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	if err := p.FailProcessing(sessionID, ""); err != nil {
		t.Fatalf("FailProcessing failed: %v", err)
	}

	session, _ := GetLectureSessionByID(db, sessionID)
	if session.ErrorMessage == "" {
		t.Fatal("failed session must carry a non-empty error message")
	}
}

func TestConcurrentStartExactlyOneWins(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db, &fakeEngine{})
	sessionID := mustInsertSession(t, db)

	const callers = 8
	var wg sync.WaitGroup
	var succeeded, rejected int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.StartProcessing(sessionID)
			if err == nil {
				atomic.AddInt32(&succeeded, 1)
				return
			}
			var serr *StateError
			if errors.As(err, &serr) {
				atomic.AddInt32(&rejected, 1)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one start to succeed, got %d", succeeded)
	}
	if rejected != callers-1 {
		t.Fatalf("expected %d StateErrors, got %d", callers-1, rejected)
	}
}

func TestProcessLectureInvalidAudioNeverInvokesEngine(t *testing.T) {
	db := newTestDB(t)
	engine := &fakeEngine{}
	p := newTestPipeline(t, db, engine)
	sessionID := mustInsertSession(t, db)

	missing := filepath.Join(t.TempDir(), "gone.mp3")
	err := p.ProcessLecture(context.Background(), sessionID, missing)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if atomic.LoadInt32(&engine.calls) != 0 {
		t.Fatal("engine must never be invoked for invalid audio")
	}

	session, _ := GetLectureSessionByID(db, sessionID)
	if session.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", session.Status)
	}
	if !strings.Contains(session.ErrorMessage, missing) {
		t.Fatalf("failure message must reference the file path, got %q", session.ErrorMessage)
	}
}

func TestProcessLectureEngineFailureEndsInFailedState(t *testing.T) {
	db := newTestDB(t)
	engine := &fakeEngine{err: errors.New("inference backend gone")}
	p := newTestPipeline(t, db, engine)
	sessionID := mustInsertSession(t, db)

	path := writeAudioFixture(t, "lecture.mp3", []byte("audio"))
	err := p.ProcessLecture(context.Background(), sessionID, path)

	var terr *TranscriptionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}

	session, _ := GetLectureSessionByID(db, sessionID)
	if session.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", session.Status)
	}
	if session.ErrorMessage == "" {
		t.Fatal("failed session must carry an error message")
	}
}

func TestProcessLectureSuccessEndToEnd(t *testing.T) {
	db := newTestDB(t)
	engine := &fakeEngine{raw: RawTranscription{
		Language: "en",
		Duration: 3.2,
		Segments: twoSegmentFixture(),
	}}
	p := newTestPipeline(t, db, engine)
	sessionID := mustInsertSession(t, db)

	path := writeAudioFixture(t, "lecture.mp3", []byte("audio"))
	if err := p.ProcessLecture(context.Background(), sessionID, path); err != nil {
		t.Fatalf("ProcessLecture failed: %v", err)
	}

	session, _ := GetLectureSessionByID(db, sessionID)
	if session.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", session.Status)
	}
	if session.Transcript != "Hello world  test." {
		t.Fatalf("unexpected transcript: %q", session.Transcript)
	}

	slides, _ := GetSlidesBySession(db, sessionID)
	if len(slides) != 1 {
		t.Fatalf("expected 1 slide, got %d", len(slides))
	}

	// The audio file is cleaned up after the terminal state.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected audio file removed, stat err=%v", err)
	}
}

func TestProcessLectureSlideGenerationFailure(t *testing.T) {
	db := newTestDB(t)
	engine := &fakeEngine{raw: RawTranscription{Language: "en", Duration: 3.2, Segments: twoSegmentFixture()}}
	p := newTestPipeline(t, db, engine)
	p.generateSlides = func(context.Context, Config, string) (SlideGenerationResult, error) {
		return SlideGenerationResult{}, errors.New("llm unavailable")
	}
	sessionID := mustInsertSession(t, db)

	path := writeAudioFixture(t, "lecture.mp3", []byte("audio"))
	if err := p.ProcessLecture(context.Background(), sessionID, path); err == nil {
		t.Fatal("expected error from slide generation")
	}

	session, _ := GetLectureSessionByID(db, sessionID)
	if session.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", session.Status)
	}
	if !strings.Contains(session.ErrorMessage, "slide generation failed") {
		t.Fatalf("unexpected message: %q", session.ErrorMessage)
	}
}

func TestSlideConfidencePayloadSubset(t *testing.T) {
	slide := SlideContent{
		Title:   "Neural Networks",
		Content: []string{"Backpropagation updates weights", "Gradient descent converges"},
	}
	low := map[string]bool{
		"Backpropagation": true,
		"quantum":         true,
		"gradient":        true,
	}

	var payload struct {
		SlideNumber        int      `json:"slide_number"`
		LowConfidenceWords []string `json:"low_confidence_words"`
	}
	if err := json.Unmarshal([]byte(slideConfidencePayload(slide, 3, low)), &payload); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if payload.SlideNumber != 3 {
		t.Fatalf("unexpected slide number: %d", payload.SlideNumber)
	}
	if len(payload.LowConfidenceWords) != 2 {
		t.Fatalf("expected 2 matched words, got %v", payload.LowConfidenceWords)
	}
	if payload.LowConfidenceWords[0] != "Backpropagation" || payload.LowConfidenceWords[1] != "gradient" {
		t.Fatalf("expected sorted subset [Backpropagation gradient], got %v", payload.LowConfidenceWords)
	}
}
