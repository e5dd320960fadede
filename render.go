package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Renderer turns a session's slides into a downloadable file and returns
// its path. PDF and PPTX renderers are external implementations of this
// interface; the built-in DeckWriter covers the "md" format.
type Renderer interface {
	Render(ctx context.Context, session LectureSession, slides []Slide, format string) (string, error)
}

// DeckWriter writes a markdown slide deck to the export output
// directory.
type DeckWriter struct {
	OutputDir string
}

func NewDeckWriter(outputDir string) *DeckWriter {
	return &DeckWriter{OutputDir: outputDir}
}

func (w *DeckWriter) Render(_ context.Context, session LectureSession, slides []Slide, format string) (string, error) {
	if format != "md" {
		return "", fmt.Errorf("unsupported export format: %s", format)
	}
	if err := os.MkdirAll(w.OutputDir, 0755); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("lecture_slides_%d_%s.md", session.ID, uuid.NewString()[:8])
	path := filepath.Join(w.OutputDir, filename)
	return path, os.WriteFile(path, []byte(buildDeck(session, slides)), 0644)
}

func buildDeck(session LectureSession, slides []Slide) string {
	title := session.Title
	if title == "" {
		title = "Lecture Slides"
	}

	var out strings.Builder
	out.WriteString("# " + title + "\n\n")
	out.WriteString("Generated on: " + time.Now().Format("January 2, 2006") + "\n")

	for _, slide := range slides {
		out.WriteString(fmt.Sprintf("\n## Slide %d: %s\n\n", slide.SlideNumber, slide.Title))
		for _, point := range slideBullets(slide.Content) {
			out.WriteString("- " + point + "\n")
		}
	}
	return out.String()
}

// slideBullets decodes the stored JSON bullet list, falling back to the
// raw content when it is not JSON.
func slideBullets(content string) []string {
	var points []string
	if err := json.Unmarshal([]byte(content), &points); err != nil {
		return []string{content}
	}
	return points
}
