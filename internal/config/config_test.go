package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koscakluka/ema-livebridge/core/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	config := Default()
	require.NoError(t, config.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*Config)
		errorMsg string
	}{
		{
			name:   "valid configuration",
			modify: func(*Config) {},
		},
		{
			name:     "invalid port",
			modify:   func(c *Config) { c.Server.Port = 70000 },
			errorMsg: "server config: port must be between 1 and 65535",
		},
		{
			name:     "no sessions allowed",
			modify:   func(c *Config) { c.Sessions.MaxSessions = 0 },
			errorMsg: "sessions config: max_sessions must be at least 1",
		},
		{
			name:     "idle timeout too short",
			modify:   func(c *Config) { c.Sessions.IdleTimeout = 10 * time.Millisecond },
			errorMsg: "sessions config: idle_timeout must be at least 1s",
		},
		{
			name:     "sweep longer than idle timeout",
			modify:   func(c *Config) { c.Sessions.SweepInterval = 2 * time.Minute },
			errorMsg: "sessions config: sweep_interval",
		},
		{
			name:   "heartbeats disabled",
			modify: func(c *Config) { c.Sessions.HeartbeatInterval = 0 },
		},
		{
			name:     "fragment limit too small",
			modify:   func(c *Config) { c.Ingestion.MaxFragmentBytes = 10 },
			errorMsg: "ingestion config: max_fragment_bytes must be at least 1024 bytes",
		},
		{
			name:     "unsupported encoding",
			modify:   func(c *Config) { c.Speech.Encoding = "opus" },
			errorMsg: "speech config: unsupported encoding",
		},
		{
			name:     "keep alive beyond recognizer timeout",
			modify:   func(c *Config) { c.Speech.KeepAliveInterval = 12 * time.Second },
			errorMsg: "speech config: keep_alive_interval",
		},
		{
			name:   "missing api key",
			modify: func(c *Config) { c.Speech.APIKey = "" },
		},
		{
			name:     "invalid log level",
			modify:   func(c *Config) { c.Logging.Level = "verbose" },
			errorMsg: "logging config: level must be one of",
		},
		{
			name:     "invalid log format",
			modify:   func(c *Config) { c.Logging.Format = "xml" },
			errorMsg: "logging config: format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.modify(&config)

			err := config.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_DEEPGRAM_MODEL", "nova-2-phonecall")

	path := writeConfig(t, `
server:
  port: 9090
sessions:
  max_sessions: 8
  idle_timeout: 30s
  heartbeat_interval: 0s
speech:
  model: ${TEST_DEEPGRAM_MODEL}
  encoding: mulaw
  sample_rate: 8000
  interim_results: false
logging:
  level: debug
  format: json
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", config.Server.Addr())
	assert.Equal(t, 10*time.Second, config.Server.ReadHeaderTimeout, "expected unset values to keep defaults")
	assert.Equal(t, 8, config.Sessions.MaxSessions)
	assert.Equal(t, 30*time.Second, config.Sessions.IdleTimeout)
	assert.Zero(t, config.Sessions.HeartbeatInterval)
	assert.Equal(t, "nova-2-phonecall", config.Speech.Model)
	assert.False(t, config.Speech.InterimResults)
	assert.Equal(t, "debug", config.Logging.Level)

	encoding, err := config.Speech.EncodingInfo()
	require.NoError(t, err)
	assert.Equal(t, audio.EncodingMulaw, encoding.Format)
	assert.Equal(t, 8000, encoding.SampleRate)
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "from-env")
	t.Setenv("DEEPGRAM_ENDPOINT", "")
	t.Setenv("LIVEBRIDGE_ADDRESS", "127.0.0.1")
	t.Setenv("LIVEBRIDGE_LOG_LEVEL", "warn")

	path := writeConfig(t, `
server:
  address: 10.0.0.1
speech:
  api_key: from-file
  endpoint: wss://recognizer.internal/v1/listen
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", config.Speech.APIKey)
	assert.Equal(t, "wss://recognizer.internal/v1/listen", config.Speech.Endpoint, "expected empty overrides to be ignored")
	assert.Equal(t, "127.0.0.1", config.Server.Address)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.True(t, config.Speech.InterimResults, "expected overrides to leave other fields untouched")
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *config)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "server: [not, a, map]"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = Load(writeConfig(t, "sessions:\n  idle_timeout: soon\n"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = Load(writeConfig(t, "logging:\n  level: loud\n"))
	assert.ErrorContains(t, err, "config validation failed")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"DEEPGRAM_API_KEY", "DEEPGRAM_ENDPOINT", "LIVEBRIDGE_ADDRESS", "LIVEBRIDGE_LOG_LEVEL"} {
		t.Setenv(name, "")
	}
}
