package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Load_DefaultValues(t *testing.T) {
	clearEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.False(t, cfg.Engine.Broadcast)
	assert.Equal(t, "./checkpoint.json", cfg.Engine.CheckpointPath)
	assert.Equal(t, "default", cfg.Engine.TraceRedaction)
	assert.Equal(t, 8, cfg.Engine.GlobalConcurrency)
	assert.Equal(t, 4, cfg.Engine.PerChainConcurrency)
	assert.False(t, cfg.Engine.CommandsStdinJSONL)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestConfig_Load_CustomValues(t *testing.T) {
	clearEnv()

	os.Setenv("AIS_BROADCAST", "true")
	os.Setenv("AIS_CHECKPOINT_PATH", "/tmp/run.json")
	os.Setenv("AIS_TRACE_REDACT", "audit")
	os.Setenv("AIS_CONCURRENCY_GLOBAL", "16")
	os.Setenv("AIS_CONCURRENCY_PER_CHAIN", "2")
	os.Setenv("AIS_LOG_LEVEL", "debug")
	os.Setenv("AIS_LOG_FORMAT", "text")
	defer clearEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Engine.Broadcast)
	assert.Equal(t, "/tmp/run.json", cfg.Engine.CheckpointPath)
	assert.Equal(t, "audit", cfg.Engine.TraceRedaction)
	assert.Equal(t, 16, cfg.Engine.GlobalConcurrency)
	assert.Equal(t, 2, cfg.Engine.PerChainConcurrency)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestConfig_Load_InvalidValuesUsesDefaults(t *testing.T) {
	clearEnv()

	os.Setenv("AIS_CONCURRENCY_GLOBAL", "not_a_number")
	os.Setenv("AIS_BROADCAST", "not_a_bool")
	defer clearEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Engine.GlobalConcurrency)
	assert.False(t, cfg.Engine.Broadcast)
}

func TestConfig_Validate_InvalidLogLevel(t *testing.T) {
	cfg := &Config{
		Engine:  EngineConfig{TraceRedaction: "default", GlobalConcurrency: 1, PerChainConcurrency: 1},
		Logging: LoggingConfig{Level: "verbose", Format: "json"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestConfig_Validate_InvalidLogFormat(t *testing.T) {
	cfg := &Config{
		Engine:  EngineConfig{TraceRedaction: "default", GlobalConcurrency: 1, PerChainConcurrency: 1},
		Logging: LoggingConfig{Level: "info", Format: "xml"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestConfig_Validate_InvalidRedactionMode(t *testing.T) {
	cfg := &Config{
		Engine:  EngineConfig{TraceRedaction: "verbose", GlobalConcurrency: 1, PerChainConcurrency: 1},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid trace redaction mode")
}

func TestConfig_Validate_ConcurrencyMustBePositive(t *testing.T) {
	cfg := &Config{
		Engine:  EngineConfig{TraceRedaction: "default", GlobalConcurrency: 0, PerChainConcurrency: 1},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "global concurrency")
}

func TestGetEnv_WithValue(t *testing.T) {
	os.Setenv("TEST_KEY", "test_value")
	defer os.Unsetenv("TEST_KEY")

	assert.Equal(t, "test_value", getEnv("TEST_KEY", "default"))
}

func TestGetEnv_WithoutValue(t *testing.T) {
	os.Unsetenv("TEST_KEY")
	assert.Equal(t, "default", getEnv("TEST_KEY", "default"))
}

func TestGetEnvAsInt_InvalidInteger(t *testing.T) {
	os.Setenv("TEST_INT", "not_a_number")
	defer os.Unsetenv("TEST_INT")

	assert.Equal(t, 10, getEnvAsInt("TEST_INT", 10))
}

func TestGetEnvAsBool_True(t *testing.T) {
	for _, v := range []string{"true", "True", "1", "t"} {
		os.Setenv("TEST_BOOL", v)
		assert.True(t, getEnvAsBool("TEST_BOOL", false))
	}
	os.Unsetenv("TEST_BOOL")
}

func TestGetEnvAsDuration_Valid(t *testing.T) {
	os.Setenv("TEST_DURATION", "30s")
	defer os.Unsetenv("TEST_DURATION")

	assert.Equal(t, 30_000_000_000, int(getEnvAsDuration("TEST_DURATION", 0)))
}

func clearEnv() {
	envVars := []string{
		"AIS_BROADCAST", "AIS_CHECKPOINT_PATH", "AIS_EVENTS_JSONL", "AIS_EVENTS_WS",
		"AIS_TRACE_REDACT", "AIS_CONCURRENCY_GLOBAL", "AIS_CONCURRENCY_PER_CHAIN",
		"AIS_POLICY_PATH", "AIS_PACK_PATH", "AIS_COMMANDS_STDIN_JSONL",
		"AIS_LOG_LEVEL", "AIS_LOG_FORMAT",
	}
	for _, key := range envVars {
		os.Unsetenv(key)
	}
}
