package main

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
)

// TranscriptionService turns an audio file into a TranscriptionResult.
// The engine is constructed on first use and shared across sequential
// calls for the life of the process.
type TranscriptionService struct {
	cfg Config

	engineOnce sync.Once
	engine     SpeechEngine

	// newEngine exists so tests can plant a fake; nil means WhisperClient.
	newEngine func(cfg Config) SpeechEngine
}

func NewTranscriptionService(cfg Config) *TranscriptionService {
	return &TranscriptionService{cfg: cfg}
}

func (s *TranscriptionService) getEngine() SpeechEngine {
	s.engineOnce.Do(func() {
		if s.newEngine != nil {
			s.engine = s.newEngine(s.cfg)
			return
		}
		log.Printf("engine init url=%s model=%s compute=%s", s.cfg.EngineURL, s.cfg.EngineModelSize, s.cfg.EngineComputeType)
		s.engine = NewWhisperClient(s.cfg.EngineURL)
	})
	return s.engine
}

// TranscribeAudio runs the engine on one audio file and aggregates the
// raw output. It returns either a complete TranscriptionResult or an
// error, never a partial result.
func (s *TranscriptionService) TranscribeAudio(ctx context.Context, audioPath string) (TranscriptionResult, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return TranscriptionResult{}, &ValidationError{Path: audioPath, Reason: "file not found"}
	}

	log.Printf("transcription start file=%s", audioPath)
	raw, err := s.getEngine().Transcribe(ctx, audioPath, DefaultTranscribeOptions(s.cfg))
	if err != nil {
		return TranscriptionResult{}, &TranscriptionError{Path: audioPath, Err: err}
	}

	result := AggregateSegments(raw.Segments, raw.Language, raw.Duration, s.cfg.ConfidenceThreshold)
	log.Printf("transcription done file=%s duration=%.2fs language=%s low_confidence=%d",
		audioPath, result.Duration, result.Language, len(result.LowConfidenceWords))
	return result, nil
}

// AggregateSegments builds the final structured result from the engine's
// raw segment stream. Segments are processed in emission order, which is
// chronological.
//
// Per-word tokens keep the engine's own spacing when reconstructing
// segment text, but are whitespace-stripped before entering the
// low-confidence set. Consumers depend on both behaviors.
func AggregateSegments(segments []RawSegment, language string, duration float64, confidenceThreshold float64) TranscriptionResult {
	processed := make([]TranscriptionSegment, 0, len(segments))
	fullTextParts := make([]string, 0, len(segments))
	lowConfidence := make(map[string]bool)

	for _, seg := range segments {
		var words []WordConfidence
		var textBuilder strings.Builder

		for _, w := range seg.Words {
			probability := 1.0
			if w.Probability != nil {
				probability = *w.Probability
			}
			words = append(words, WordConfidence{
				Word:        w.Word,
				Start:       w.Start,
				End:         w.End,
				Probability: probability,
			})
			textBuilder.WriteString(w.Word)

			if probability < confidenceThreshold {
				if stripped := strings.TrimSpace(w.Word); stripped != "" {
					lowConfidence[stripped] = true
				}
			}
		}

		// Degenerate case: no word-level data, fall back to the
		// segment's own text verbatim.
		segmentText := textBuilder.String()
		if len(words) == 0 {
			segmentText = seg.Text
		}
		fullTextParts = append(fullTextParts, segmentText)

		processed = append(processed, TranscriptionSegment{
			Start:      seg.Start,
			End:        seg.End,
			Text:       segmentText,
			AvgLogProb: seg.AvgLogProb,
			Words:      words,
		})
	}

	return TranscriptionResult{
		Text:               strings.Join(fullTextParts, " "),
		Segments:           processed,
		Language:           language,
		Duration:           duration,
		LowConfidenceWords: lowConfidence,
	}
}
