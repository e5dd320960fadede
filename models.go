package main

import (
	"sort"
	"time"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// canTransition encodes the forward-only lifecycle shared by lecture
// sessions and export jobs: pending -> processing -> completed|failed,
// with completed and failed terminal.
func canTransition(from, to ProcessingStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

type LectureSession struct {
	ID            int64
	Title         string
	AudioPath     string
	Transcript    string
	Language      string
	AudioDuration int    // seconds
	Status        ProcessingStatus
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Slide struct {
	ID             int64
	SessionID      int64
	SlideNumber    int
	Title          string
	Content        string // JSON array of bullet points
	ConfidenceData string // JSON: slide_number + low-confidence words on this slide
	CreatedAt      time.Time
}

type ExportJob struct {
	ID           int64
	SessionID    int64
	Format       string // "pdf", "pptx", or "md"
	Status       ProcessingStatus
	FilePath     string
	DownloadURL  string
	ErrorMessage string
	ExpiresAt    time.Time // zero until the job completes
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WordConfidence is one recognized word token with its timestamps and the
// engine's recognition probability in [0,1]. Tokens keep whatever
// leading/trailing whitespace the engine emitted.
type WordConfidence struct {
	Word        string
	Start       float64
	End         float64
	Probability float64
}

// TranscriptionSegment is a contiguous span of transcribed audio.
// AvgLogProb is the engine's segment-level log-probability and lives on a
// different scale than per-word Probability; it is diagnostic only and
// never feeds the low-confidence word decision.
type TranscriptionSegment struct {
	Start      float64
	End        float64
	Text       string
	AvgLogProb float64
	Words      []WordConfidence
}

type TranscriptionResult struct {
	Text               string
	Segments           []TranscriptionSegment
	Language           string
	Duration           float64
	LowConfidenceWords map[string]bool
}

// SortedLowConfidenceWords returns the low-confidence set as a sorted
// slice. The set itself has no order; sort before serializing so stored
// payloads are deterministic.
func (r TranscriptionResult) SortedLowConfidenceWords() []string {
	words := make([]string, 0, len(r.LowConfidenceWords))
	for w := range r.LowConfidenceWords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}
