package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-livebridge/core/audio"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Speech    SpeechConfig    `yaml:"speech"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Address           string        `yaml:"address"`
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// StreamWriteTimeout bounds writing one frame to a push stream.
	StreamWriteTimeout time.Duration `yaml:"stream_write_timeout"`
}

// SessionsConfig contains session registry limits
type SessionsConfig struct {
	MaxSessions       int           `yaml:"max_sessions"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	SweepInterval     time.Duration `yaml:"sweep_interval"` // 0 derives it from idle_timeout
	RelayBuffer       int           `yaml:"relay_buffer"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // 0 disables heartbeats
	CloseTimeout      time.Duration `yaml:"close_timeout"`
}

// IngestionConfig contains audio fragment limits
type IngestionConfig struct {
	MaxFragmentBytes int `yaml:"max_fragment_bytes"` // decoded audio bytes
}

// SpeechConfig contains the speech recognition connection settings
type SpeechConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Language          string        `yaml:"language"`
	Encoding          string        `yaml:"encoding"`
	SampleRate        int           `yaml:"sample_rate"`
	InterimResults    bool          `yaml:"interim_results"`
	UtteranceEnd      time.Duration `yaml:"utterance_end"`
	Endpointing       time.Duration `yaml:"endpointing"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used for every value a config file
// leaves out.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:            "0.0.0.0",
			Port:               8080,
			ReadHeaderTimeout:  10 * time.Second,
			ShutdownTimeout:    15 * time.Second,
			StreamWriteTimeout: 10 * time.Second,
		},
		Sessions: SessionsConfig{
			MaxSessions:       64,
			IdleTimeout:       60 * time.Second,
			RelayBuffer:       64,
			HeartbeatInterval: 15 * time.Second,
			CloseTimeout:      5 * time.Second,
		},
		Ingestion: IngestionConfig{
			MaxFragmentBytes: 64 * 1024,
		},
		Speech: SpeechConfig{
			Endpoint:          "wss://api.deepgram.com/v1/listen",
			Model:             "nova-3",
			Language:          "en-US",
			Encoding:          "linear16",
			SampleRate:        audio.DefaultSampleRate,
			InterimResults:    true,
			UtteranceEnd:      time.Second,
			Endpointing:       300 * time.Millisecond,
			KeepAliveInterval: 5 * time.Second,
			DialTimeout:       10 * time.Second,
			WriteTimeout:      5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration file at path over the defaults, applies
// environment overrides and validates the result. An empty path loads
// the defaults only.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		data = []byte(expandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyEnv merges the non-empty environment overrides into the config.
func (c *Config) applyEnv() error {
	overrides := []struct {
		section string
		to, from any
	}{
		{"server", &c.Server, &ServerConfig{Address: os.Getenv("LIVEBRIDGE_ADDRESS")}},
		{"speech", &c.Speech, &SpeechConfig{
			APIKey:   os.Getenv("DEEPGRAM_API_KEY"),
			Endpoint: os.Getenv("DEEPGRAM_ENDPOINT"),
		}},
		{"logging", &c.Logging, &LoggingConfig{Level: os.Getenv("LIVEBRIDGE_LOG_LEVEL")}},
	}

	for _, override := range overrides {
		if err := copier.CopyWithOption(override.to, override.from, copier.Option{IgnoreEmpty: true}); err != nil {
			return fmt.Errorf("failed to apply %s environment overrides: %w", override.section, err)
		}
	}
	return nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Sessions.Validate(); err != nil {
		return fmt.Errorf("sessions config: %w", err)
	}

	if err := c.Ingestion.Validate(); err != nil {
		return fmt.Errorf("ingestion config: %w", err)
	}

	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("read_header_timeout must be positive, got %s", s.ReadHeaderTimeout)
	}

	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", s.ShutdownTimeout)
	}

	if s.StreamWriteTimeout <= 0 {
		return fmt.Errorf("stream_write_timeout must be positive, got %s", s.StreamWriteTimeout)
	}

	return nil
}

// Addr returns the listen address of the server.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// Validate validates session limits
func (s *SessionsConfig) Validate() error {
	if s.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", s.MaxSessions)
	}

	if s.IdleTimeout < time.Second {
		return fmt.Errorf("idle_timeout must be at least 1s, got %s", s.IdleTimeout)
	}

	if s.SweepInterval < 0 || s.SweepInterval > s.IdleTimeout {
		return fmt.Errorf("sweep_interval must be between 0 and idle_timeout, got %s", s.SweepInterval)
	}

	if s.RelayBuffer < 1 {
		return fmt.Errorf("relay_buffer must be at least 1, got %d", s.RelayBuffer)
	}

	if s.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat_interval cannot be negative, got %s", s.HeartbeatInterval)
	}

	if s.CloseTimeout <= 0 {
		return fmt.Errorf("close_timeout must be positive, got %s", s.CloseTimeout)
	}

	return nil
}

// Validate validates ingestion limits
func (i *IngestionConfig) Validate() error {
	if i.MaxFragmentBytes < 1024 {
		return fmt.Errorf("max_fragment_bytes must be at least 1024 bytes, got %d", i.MaxFragmentBytes)
	}

	if i.MaxFragmentBytes > 16*1024*1024 {
		return fmt.Errorf("max_fragment_bytes must be at most 16MiB, got %d", i.MaxFragmentBytes)
	}

	return nil
}

// Validate validates speech recognition configuration. A missing API key
// is not an error here; sessions report it to their listeners.
func (s *SpeechConfig) Validate() error {
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if _, err := s.EncodingInfo(); err != nil {
		return err
	}

	if s.UtteranceEnd < 0 || s.Endpointing < 0 {
		return fmt.Errorf("utterance_end and endpointing cannot be negative")
	}

	if s.KeepAliveInterval <= 0 || s.KeepAliveInterval >= 10*time.Second {
		return fmt.Errorf("keep_alive_interval must be between 0 and 10s (exclusive), got %s", s.KeepAliveInterval)
	}

	if s.DialTimeout <= 0 || s.WriteTimeout <= 0 {
		return fmt.Errorf("dial_timeout and write_timeout must be positive")
	}

	return nil
}

// EncodingInfo returns the audio encoding listeners must send.
func (s *SpeechConfig) EncodingInfo() (audio.EncodingInfo, error) {
	return audio.ParseEncodingInfo(s.Encoding, s.SampleRate)
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}
