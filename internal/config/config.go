package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xkazm04/personas-sub002/pkg/engine/provider"
)

// Config represents the main engine configuration
type Config struct {
	// Providers
	Providers map[string]ProviderConfig `json:"providers" mapstructure:"providers"`

	// Failover
	Failover FailoverConfig `json:"failover" mapstructure:"failover"`

	// Pipeline
	Pipeline PipelineConfig `json:"pipeline" mapstructure:"pipeline"`

	// Scheduler
	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler"`

	// Server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Database path; defaults under DataDir
	DatabasePath string `json:"database_path" mapstructure:"database_path"`
}

// ProviderConfig holds per-provider CLI settings
type ProviderConfig struct {
	Binary        string   `json:"binary" mapstructure:"binary"`
	DefaultModel  string   `json:"default_model" mapstructure:"default_model"`
	RetryPatterns []string `json:"retry_patterns" mapstructure:"retry_patterns"`
}

// FailoverConfig holds circuit breaker settings
type FailoverConfig struct {
	FailureThreshold int `json:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSeconds  int `json:"cooldown_seconds" mapstructure:"cooldown_seconds"`
}

// PipelineConfig holds execution pipeline settings
type PipelineConfig struct {
	DefaultTimeoutSeconds int    `json:"default_timeout_seconds" mapstructure:"default_timeout_seconds"`
	WorkingDir            string `json:"working_dir" mapstructure:"working_dir"`
}

// SchedulerConfig holds background loop settings
type SchedulerConfig struct {
	TriggerIntervalSeconds  int `json:"trigger_interval_seconds" mapstructure:"trigger_interval_seconds"`
	RotationIntervalSeconds int `json:"rotation_interval_seconds" mapstructure:"rotation_interval_seconds"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			string(provider.KindClaudeCode): {
				Binary:       "claude",
				DefaultModel: "claude-sonnet-4-20250514",
			},
			string(provider.KindCodexCLI): {
				Binary: "codex",
			},
			string(provider.KindGeminiCLI): {
				Binary: "gemini",
			},
		},
		Failover: FailoverConfig{
			FailureThreshold: 5,
			CooldownSeconds:  60,
		},
		Pipeline: PipelineConfig{
			DefaultTimeoutSeconds: 600,
		},
		Scheduler: SchedulerConfig{
			TriggerIntervalSeconds:  5,
			RotationIntervalSeconds: 60,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8820,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	validator := NewValidator()
	for name, pc := range c.Providers {
		if err := validator.ValidateProvider(name); err != nil {
			return err
		}
		if pc.Binary == "" {
			return fmt.Errorf("provider %s: binary is required", name)
		}
		for _, pat := range pc.RetryPatterns {
			if err := validator.ValidateRetryPattern(pat); err != nil {
				return fmt.Errorf("provider %s: %w", name, err)
			}
		}
	}

	if c.Failover.FailureThreshold < 1 {
		return fmt.Errorf("failover failure_threshold must be at least 1")
	}
	if c.Failover.CooldownSeconds < 1 {
		return fmt.Errorf("failover cooldown_seconds must be at least 1")
	}

	if c.Pipeline.DefaultTimeoutSeconds < 1 {
		return fmt.Errorf("pipeline default_timeout_seconds must be at least 1")
	}

	if c.Scheduler.TriggerIntervalSeconds < 1 {
		return fmt.Errorf("scheduler trigger_interval_seconds must be at least 1")
	}
	if c.Scheduler.RotationIntervalSeconds < 1 {
		return fmt.Errorf("scheduler rotation_interval_seconds must be at least 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}

// ProviderOptions maps the configured providers into the adapter options
// consumed by the pipeline.
func (c *Config) ProviderOptions() map[provider.Kind]provider.Options {
	out := make(map[provider.Kind]provider.Options, len(c.Providers))
	for name, pc := range c.Providers {
		out[provider.Kind(name)] = provider.Options{
			Binary:        pc.Binary,
			DefaultModel:  pc.DefaultModel,
			RetryPatterns: pc.RetryPatterns,
		}
	}
	return out
}

// DefaultTimeout returns the pipeline timeout as a duration.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Pipeline.DefaultTimeoutSeconds) * time.Second
}

// FailoverCooldown returns the circuit cooldown as a duration.
func (c *Config) FailoverCooldown() time.Duration {
	return time.Duration(c.Failover.CooldownSeconds) * time.Second
}
