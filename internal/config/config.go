package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Audio       AudioConfig       `yaml:"audio"`
	Session     SessionConfig     `yaml:"session"`
	Engine      EngineConfig      `yaml:"engine"`
	Translation TranslationConfig `yaml:"translation"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	Dispatcher  DispatcherConfig  `yaml:"dispatcher"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// AudioConfig contains microphone capture parameters
type AudioConfig struct {
	SampleRate    int `yaml:"sample_rate"`    // Hz
	Channels      int `yaml:"channels"`       // must be 1 (mono)
	FrameDuration int `yaml:"frame_duration"` // milliseconds per captured frame
}

// SessionConfig contains resumable streaming session parameters
type SessionConfig struct {
	StreamingLimitMs int      `yaml:"streaming_limit_ms"` // hard per-connection limit
	StopWords        []string `yaml:"stop_words"`         // finalized-transcript stop commands
}

// EngineConfig contains transcription engine connection configuration
type EngineConfig struct {
	URL             string        `yaml:"url"`
	APIKey          string        `yaml:"api_key"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	Language        string        `yaml:"language"`
	MaxAlternatives int           `yaml:"max_alternatives"`
	ConnectTimeout  int           `yaml:"connect_timeout"` // seconds
	Phrases         []PhraseBoost `yaml:"phrases"`
}

// PhraseBoost is one entry of the phrase-boost vocabulary sent to the engine
type PhraseBoost struct {
	Value string  `yaml:"value"`
	Boost float64 `yaml:"boost"`
}

// TranslationConfig contains translation collaborator configuration
type TranslationConfig struct {
	Model     string         `yaml:"model"`
	APIKeyEnv string         `yaml:"api_key_env"`
	Prompt    string         `yaml:"prompt"`
	Timeout   int            `yaml:"timeout"` // seconds
	Glossary  []GlossaryTerm `yaml:"glossary"`
}

// GlossaryTerm is a source/target term pair injected into the translation prompt
type GlossaryTerm struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// DeliveryConfig contains the downstream delivery endpoint configuration
type DeliveryConfig struct {
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	Timeout   int    `yaml:"timeout"` // seconds
}

// DispatcherConfig contains the finalize worker pool configuration
type DispatcherConfig struct {
	Workers int `yaml:"workers"`
}

// MonitorConfig contains the monitoring HTTP server configuration
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.resolveEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// resolveEnv fills secrets from the environment when the config file names an
// environment variable instead of carrying the key inline.
func (c *Config) resolveEnv() {
	if c.Engine.APIKey == "" && c.Engine.APIKeyEnv != "" {
		c.Engine.APIKey = os.Getenv(c.Engine.APIKeyEnv)
	}
	if c.Delivery.APIKey == "" && c.Delivery.APIKeyEnv != "" {
		c.Delivery.APIKey = os.Getenv(c.Delivery.APIKeyEnv)
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Translation.Validate(); err != nil {
		return fmt.Errorf("translation config: %w", err)
	}

	if err := c.Delivery.Validate(); err != nil {
		return fmt.Errorf("delivery config: %w", err)
	}

	if err := c.Dispatcher.Validate(); err != nil {
		return fmt.Errorf("dispatcher config: %w", err)
	}

	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	switch a.SampleRate {
	case 8000, 16000, 44100, 48000:
	default:
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 44100, 48000], got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.FrameDuration < 10 || a.FrameDuration > 1000 {
		return fmt.Errorf("frame_duration must be between 10 and 1000 ms, got %d", a.FrameDuration)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.StreamingLimitMs < 1000 {
		return fmt.Errorf("streaming_limit_ms must be at least 1000, got %d", s.StreamingLimitMs)
	}

	for i, word := range s.StopWords {
		if word == "" {
			return fmt.Errorf("stop_words[%d] cannot be empty", i)
		}
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	if e.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if e.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if e.MaxAlternatives < 1 {
		return fmt.Errorf("max_alternatives must be at least 1, got %d", e.MaxAlternatives)
	}

	if e.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", e.ConnectTimeout)
	}

	for i, phrase := range e.Phrases {
		if phrase.Value == "" {
			return fmt.Errorf("phrases[%d].value cannot be empty", i)
		}
		if phrase.Boost < 0 {
			return fmt.Errorf("phrases[%d].boost cannot be negative, got %f", i, phrase.Boost)
		}
	}

	return nil
}

// Validate validates translation configuration
func (t *TranslationConfig) Validate() error {
	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.APIKeyEnv == "" {
		return fmt.Errorf("api_key_env cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates delivery configuration
func (d *DeliveryConfig) Validate() error {
	// An empty endpoint disables delivery; results are still printed locally.
	if d.Endpoint == "" {
		return nil
	}

	if d.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", d.Timeout)
	}

	return nil
}

// Validate validates dispatcher configuration
func (d *DispatcherConfig) Validate() error {
	if d.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", d.Workers)
	}

	if d.Workers > 64 {
		return fmt.Errorf("workers must not exceed 64, got %d", d.Workers)
	}

	return nil
}

// Validate validates monitor configuration
func (m *MonitorConfig) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address cannot be empty when monitor is enabled")
	}

	return nil
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

// GetFrameDuration returns the capture frame duration as a time.Duration
func (a *AudioConfig) GetFrameDuration() time.Duration {
	return time.Duration(a.FrameDuration) * time.Millisecond
}

// FrameBytes returns the size of one captured PCM frame in bytes (16-bit mono)
func (a *AudioConfig) FrameBytes() int {
	return a.SampleRate * a.FrameDuration / 1000 * 2
}

// GetStreamingLimit returns the per-connection limit as a time.Duration
func (s *SessionConfig) GetStreamingLimit() time.Duration {
	return time.Duration(s.StreamingLimitMs) * time.Millisecond
}

// GetConnectTimeout returns the engine connect timeout as a time.Duration
func (e *EngineConfig) GetConnectTimeout() time.Duration {
	return time.Duration(e.ConnectTimeout) * time.Second
}

// GetTimeout returns the translation timeout as a time.Duration
func (t *TranslationConfig) GetTimeout() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeout returns the delivery timeout as a time.Duration
func (d *DeliveryConfig) GetTimeout() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}
