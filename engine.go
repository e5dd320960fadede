package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RawWord is a word token as emitted by the engine. Probability is
// optional on the wire; nil means the engine did not score the word and
// callers default it to 1.0.
type RawWord struct {
	Word        string   `json:"word"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability"`
}

type RawSegment struct {
	Start      float64   `json:"start"`
	End        float64   `json:"end"`
	Text       string    `json:"text"`
	AvgLogProb float64   `json:"avg_logprob"`
	Words      []RawWord `json:"words"`
}

type RawTranscription struct {
	Language string       `json:"language"`
	Duration float64      `json:"duration"`
	Segments []RawSegment `json:"segments"`
}

type TranscribeOptions struct {
	// WordTimestamps must stay enabled; the confidence pipeline needs
	// word-level data.
	WordTimestamps  bool
	VADFilter       bool
	VADMinSilenceMs int
	ModelSize       string
	ComputeType     string
}

func DefaultTranscribeOptions(cfg Config) TranscribeOptions {
	return TranscribeOptions{
		WordTimestamps:  true,
		VADFilter:       true,
		VADMinSilenceMs: cfg.VADMinSilenceMs,
		ModelSize:       cfg.EngineModelSize,
		ComputeType:     cfg.EngineComputeType,
	}
}

// SpeechEngine is the speech-recognition collaborator. Transcribe is a
// coarse-grained blocking call with no intermediate progress; callers
// must not interrupt an in-flight invocation.
type SpeechEngine interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (RawTranscription, error)
}

// WhisperClient talks to a faster-whisper ASR webservice over HTTP. The
// loaded model behind the service is expensive to construct and safe to
// share across sequential calls, so one client serves the whole process.
type WhisperClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewWhisperClient(baseURL string) *WhisperClient {
	return &WhisperClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Transcription of long lectures is slow; no client-side timeout.
		httpClient: &http.Client{},
	}
}

func (c *WhisperClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (RawTranscription, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return RawTranscription{}, fmt.Errorf("opening audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	part, err := mp.CreateFormFile("audio_file", filepath.Base(audioPath))
	if err != nil {
		return RawTranscription{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return RawTranscription{}, fmt.Errorf("reading audio file: %w", err)
	}
	if err := mp.Close(); err != nil {
		return RawTranscription{}, err
	}

	query := url.Values{}
	query.Set("task", "transcribe")
	query.Set("output", "json")
	query.Set("word_timestamps", strconv.FormatBool(opts.WordTimestamps))
	query.Set("vad_filter", strconv.FormatBool(opts.VADFilter))
	if opts.VADFilter && opts.VADMinSilenceMs > 0 {
		query.Set("min_silence_duration_ms", strconv.Itoa(opts.VADMinSilenceMs))
	}
	if opts.ModelSize != "" {
		query.Set("model_size", opts.ModelSize)
	}
	if opts.ComputeType != "" {
		query.Set("compute_type", opts.ComputeType)
	}

	reqURL := c.baseURL + "/asr?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &body)
	if err != nil {
		return RawTranscription{}, err
	}
	req.Header.Set("Content-Type", mp.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RawTranscription{}, fmt.Errorf("engine request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return RawTranscription{}, fmt.Errorf("engine returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var raw RawTranscription
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return RawTranscription{}, fmt.Errorf("decoding engine response: %w", err)
	}

	log.Printf("engine transcribe file=%s segments=%d language=%s duration=%.2fs took=%s",
		filepath.Base(audioPath), len(raw.Segments), raw.Language, raw.Duration, time.Since(start).Round(time.Millisecond))
	return raw, nil
}
