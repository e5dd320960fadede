package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// minTranscriptChars guards against generating slides from transcripts
// too short to carry any structure.
const minTranscriptChars = 50

type SlideContent struct {
	Title   string   `json:"title"`
	Content []string `json:"content"`
}

type slideResponse struct {
	Slides []SlideContent `json:"slides"`
}

type SlideGenerationResult struct {
	Slides []SlideContent
	Usage  LLMUsage
}

type LLMUsage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// ValidateTranscript reports whether a transcript is substantial enough
// for slide generation.
func ValidateTranscript(transcript string) bool {
	if len(strings.TrimSpace(transcript)) < minTranscriptChars {
		return false
	}
	return len(strings.Fields(transcript)) >= 10
}

// GenerateSlides turns a lecture transcript into structured slide
// content via the LLM.
func GenerateSlides(ctx context.Context, cfg Config, transcript string) (SlideGenerationResult, error) {
	if !ValidateTranscript(transcript) {
		return SlideGenerationResult{}, fmt.Errorf("transcript too short to generate meaningful slides")
	}

	model := cfg.LLMModel
	if model == "" {
		model = defaultAnthropicModel
	}

	systemPrompt, userPrompt := buildSlidePrompts(transcript, cfg.MaxSlides)
	log.Printf("llm slide-generate model=%s transcript_chars=%d max_slides=%d", model, len(transcript), cfg.MaxSlides)

	responseText, usage, err := callAnthropic(ctx, cfg.AnthropicAPIKey, model, systemPrompt, userPrompt)
	if err != nil {
		return SlideGenerationResult{Usage: usage}, err
	}

	slides, err := parseSlideResponse(responseText)
	if err != nil {
		return SlideGenerationResult{Usage: usage}, err
	}
	if len(slides) == 0 {
		return SlideGenerationResult{Usage: usage}, fmt.Errorf("no valid slides generated from transcript")
	}

	log.Printf("llm slide-generate done slides=%d tokens_in=%d tokens_out=%d", len(slides), usage.InputTokens, usage.OutputTokens)
	return SlideGenerationResult{Slides: slides, Usage: usage}, nil
}

func buildSlidePrompts(transcript string, maxSlides int) (string, string) {
	systemPrompt := `You are an expert educational content creator. You convert lecture transcripts into structured slide presentations and respond with valid JSON only.`

	userPrompt := fmt.Sprintf(`Convert the following lecture transcript into a slide presentation.

INSTRUCTIONS:
1. Create %d slides maximum
2. Each slide needs a clear, descriptive title
3. Each slide contains 3-5 bullet points capturing the key concepts
4. Focus on the main ideas, examples, and important details
5. Maintain logical flow and organization
6. Use clear, concise language suitable for students
7. Return ONLY valid JSON in the exact format below

TRANSCRIPT:
%s

REQUIRED JSON FORMAT:
{"slides": [{"title": "Slide title", "content": ["First point", "Second point"]}]}`,
		maxSlides, transcript)

	return systemPrompt, userPrompt
}

func parseSlideResponse(responseText string) ([]SlideContent, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var parsed slideResponse
	if err := json.Unmarshal([]byte(responseText), &parsed); err != nil {
		return nil, fmt.Errorf("parsing LLM slide response: %w (response: %s)", err, responseText)
	}

	slides := make([]SlideContent, 0, len(parsed.Slides))
	for i, s := range parsed.Slides {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = fmt.Sprintf("Slide %d", i+1)
		}
		var content []string
		for _, line := range s.Content {
			if line = strings.TrimSpace(line); line != "" {
				content = append(content, line)
			}
		}
		if len(content) == 0 {
			log.Printf("llm slide-generate skipping empty slide index=%d title=%q", i, title)
			continue
		}
		slides = append(slides, SlideContent{Title: title, Content: content})
	}
	return slides, nil
}

func callAnthropic(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}
