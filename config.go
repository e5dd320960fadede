package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	EngineURL           string  `yaml:"engine_url"`
	EngineModelSize     string  `yaml:"engine_model_size"`
	EngineComputeType   string  `yaml:"engine_compute_type"`
	VADMinSilenceMs     int     `yaml:"vad_min_silence_ms"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMModel        string `yaml:"llm_model"`
	MaxSlides       int    `yaml:"max_slides"`

	DBPath          string `yaml:"db_path"`
	ExportOutputDir string `yaml:"export_output_dir"`

	ExportRetentionHours int    `yaml:"export_retention_hours"`
	CleanupSchedule      string `yaml:"cleanup_schedule"`
	TaskWorkers          int    `yaml:"task_workers"`
	ExportWorkers        int    `yaml:"export_workers"`
}

func (c Config) RetentionWindow() time.Duration {
	return time.Duration(c.ExportRetentionHours) * time.Hour
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.EngineURL, "ENGINE_URL")
	envOverride(&cfg.EngineModelSize, "ENGINE_MODEL_SIZE")
	envOverride(&cfg.EngineComputeType, "ENGINE_COMPUTE_TYPE")
	envOverrideInt(&cfg.VADMinSilenceMs, "VAD_MIN_SILENCE_MS")
	envOverrideFloat(&cfg.ConfidenceThreshold, "CONFIDENCE_THRESHOLD")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverrideInt(&cfg.MaxSlides, "MAX_SLIDES")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ExportOutputDir, "EXPORT_OUTPUT_DIR")
	envOverrideInt(&cfg.ExportRetentionHours, "EXPORT_RETENTION_HOURS")
	envOverride(&cfg.CleanupSchedule, "CLEANUP_SCHEDULE")
	envOverrideInt(&cfg.TaskWorkers, "TASK_WORKERS")
	envOverrideInt(&cfg.ExportWorkers, "EXPORT_WORKERS")

	// Defaults
	if cfg.EngineURL == "" {
		cfg.EngineURL = "http://localhost:9000"
	}
	if cfg.EngineModelSize == "" {
		cfg.EngineModelSize = "base"
	}
	if cfg.EngineComputeType == "" {
		cfg.EngineComputeType = "int8"
	}
	if cfg.VADMinSilenceMs == 0 {
		cfg.VADMinSilenceMs = 500
	}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.70
	}
	if cfg.MaxSlides == 0 {
		cfg.MaxSlides = 20
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./lecturecast.db"
	}
	if cfg.ExportOutputDir == "" {
		cfg.ExportOutputDir = "./exports"
	}
	if cfg.ExportRetentionHours == 0 {
		cfg.ExportRetentionHours = 24
	}
	if cfg.CleanupSchedule == "" {
		cfg.CleanupSchedule = "0 * * * *"
	}
	if cfg.TaskWorkers == 0 {
		cfg.TaskWorkers = 4
	}
	if cfg.ExportWorkers == 0 {
		cfg.ExportWorkers = 2
	}

	// Validate
	if cfg.AnthropicAPIKey == "" {
		log.Fatalf("Required config 'anthropic_api_key' is not set (via config.yaml or env var)")
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		log.Fatalf("invalid confidence_threshold '%f': must be between 0 and 1", cfg.ConfidenceThreshold)
	}
	if cfg.VADMinSilenceMs < 0 {
		log.Fatalf("invalid vad_min_silence_ms '%d': must be >= 0", cfg.VADMinSilenceMs)
	}
	if cfg.ExportRetentionHours < 1 {
		log.Fatalf("invalid export_retention_hours '%d': must be >= 1", cfg.ExportRetentionHours)
	}
	if cfg.TaskWorkers < 1 {
		log.Fatalf("invalid task_workers '%d': must be >= 1", cfg.TaskWorkers)
	}
	if cfg.ExportWorkers < 1 {
		log.Fatalf("invalid export_workers '%d': must be >= 1", cfg.ExportWorkers)
	}
	if cfg.MaxSlides < 1 {
		log.Fatalf("invalid max_slides '%d': must be >= 1", cfg.MaxSlides)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.CleanupSchedule); err != nil {
		log.Fatalf("invalid cleanup_schedule '%s': %v", cfg.CleanupSchedule, err)
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
