package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setMinimalValidConfigEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
}

func TestLoadConfigDefaults(t *testing.T) {
	setMinimalValidConfigEnv(t)

	cfg := LoadConfig()

	if cfg.EngineURL != "http://localhost:9000" {
		t.Fatalf("unexpected engine url default: %q", cfg.EngineURL)
	}
	if cfg.EngineModelSize != "base" || cfg.EngineComputeType != "int8" {
		t.Fatalf("unexpected engine defaults: %+v", cfg)
	}
	if cfg.VADMinSilenceMs != 500 {
		t.Fatalf("unexpected VAD default: %d", cfg.VADMinSilenceMs)
	}
	if cfg.ConfidenceThreshold != 0.70 {
		t.Fatalf("unexpected confidence threshold default: %f", cfg.ConfidenceThreshold)
	}
	if cfg.MaxSlides != 20 {
		t.Fatalf("unexpected max slides default: %d", cfg.MaxSlides)
	}
	if cfg.DBPath != "./lecturecast.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.ExportOutputDir != "./exports" {
		t.Fatalf("unexpected export dir default: %q", cfg.ExportOutputDir)
	}
	if cfg.ExportRetentionHours != 24 {
		t.Fatalf("unexpected retention default: %d", cfg.ExportRetentionHours)
	}
	if cfg.RetentionWindow() != 24*time.Hour {
		t.Fatalf("unexpected retention window: %s", cfg.RetentionWindow())
	}
	if cfg.CleanupSchedule != "0 * * * *" {
		t.Fatalf("unexpected cleanup schedule default: %q", cfg.CleanupSchedule)
	}
	if cfg.TaskWorkers != 4 || cfg.ExportWorkers != 2 {
		t.Fatalf("unexpected worker defaults: %d/%d", cfg.TaskWorkers, cfg.ExportWorkers)
	}
}

func TestLoadConfigYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
anthropic_api_key: "yaml-key"
engine_url: "http://whisper:9000"
engine_model_size: "large-v3"
confidence_threshold: 0.85
export_retention_hours: 168
task_workers: 8
`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config failed: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("ENGINE_MODEL_SIZE", "medium")
	t.Setenv("VAD_MIN_SILENCE_MS", "750")

	cfg := LoadConfig()

	if cfg.AnthropicAPIKey != "yaml-key" {
		t.Fatalf("expected yaml key, got %q", cfg.AnthropicAPIKey)
	}
	if cfg.EngineURL != "http://whisper:9000" {
		t.Fatalf("expected yaml engine url, got %q", cfg.EngineURL)
	}
	if cfg.EngineModelSize != "medium" {
		t.Fatalf("env must override yaml, got %q", cfg.EngineModelSize)
	}
	if cfg.VADMinSilenceMs != 750 {
		t.Fatalf("expected env VAD override, got %d", cfg.VADMinSilenceMs)
	}
	if cfg.ConfidenceThreshold != 0.85 {
		t.Fatalf("expected yaml threshold, got %f", cfg.ConfidenceThreshold)
	}
	if cfg.ExportRetentionHours != 168 {
		t.Fatalf("expected yaml retention, got %d", cfg.ExportRetentionHours)
	}
	if cfg.TaskWorkers != 8 {
		t.Fatalf("expected yaml workers, got %d", cfg.TaskWorkers)
	}
}
