// Package config provides environment-variable configuration for the
// engine CLI, in the same getenv-with-defaults style the teacher uses
// for its server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the engine's run-time configuration.
type Config struct {
	Engine  EngineConfig
	Logging LoggingConfig
}

// EngineConfig holds scheduler/checkpoint/trace settings.
type EngineConfig struct {
	Broadcast           bool
	CheckpointPath      string
	EventsJSONLPath     string
	EventsWSAddr        string // empty disables the optional websocket sink
	TraceRedaction      string // off|audit|default
	GlobalConcurrency   int
	PerChainConcurrency int
	PolicyPath          string
	PackPath            string
	CommandsStdinJSONL  bool
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Load loads the configuration from environment variables.
func Load() (*Config, error) {
	godotenv.Load()
	cfg := &Config{
		Engine: EngineConfig{
			Broadcast:           getEnvAsBool("AIS_BROADCAST", false),
			CheckpointPath:      getEnv("AIS_CHECKPOINT_PATH", "./checkpoint.json"),
			EventsJSONLPath:     getEnv("AIS_EVENTS_JSONL", ""),
			EventsWSAddr:        getEnv("AIS_EVENTS_WS", ""),
			TraceRedaction:      getEnv("AIS_TRACE_REDACT", "default"),
			GlobalConcurrency:   getEnvAsInt("AIS_CONCURRENCY_GLOBAL", 8),
			PerChainConcurrency: getEnvAsInt("AIS_CONCURRENCY_PER_CHAIN", 4),
			PolicyPath:          getEnv("AIS_POLICY_PATH", ""),
			PackPath:            getEnv("AIS_PACK_PATH", ""),
			CommandsStdinJSONL:  getEnvAsBool("AIS_COMMANDS_STDIN_JSONL", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("AIS_LOG_LEVEL", "info"),
			Format: getEnv("AIS_LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	validRedaction := map[string]bool{"off": true, "audit": true, "default": true}
	if !validRedaction[c.Engine.TraceRedaction] {
		return fmt.Errorf("invalid trace redaction mode: %s (must be off, audit, or default)", c.Engine.TraceRedaction)
	}

	if c.Engine.GlobalConcurrency < 1 {
		return fmt.Errorf("engine global concurrency must be at least 1")
	}

	if c.Engine.PerChainConcurrency < 1 {
		return fmt.Errorf("engine per-chain concurrency must be at least 1")
	}

	return nil
}

// Helper functions for environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
