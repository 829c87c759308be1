package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xkazm04/personas-sub002/pkg/engine/provider"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Len(t, cfg.Providers, 3)
	assert.Equal(t, "claude", cfg.Providers["claude"].Binary)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Providers["claude"].DefaultModel)
	assert.Equal(t, "codex", cfg.Providers["codex"].Binary)
	assert.Equal(t, "gemini", cfg.Providers["gemini"].Binary)
	assert.Equal(t, 5, cfg.Failover.FailureThreshold)
	assert.Equal(t, 60, cfg.Failover.CooldownSeconds)
	assert.Equal(t, 600, cfg.Pipeline.DefaultTimeoutSeconds)
	assert.Equal(t, 5, cfg.Scheduler.TriggerIntervalSeconds)
	assert.Equal(t, 60, cfg.Scheduler.RotationIntervalSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 8820, cfg.Server.Port)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()

		err := cfg.Validate()
		assert.NoError(t, err)
	})

	t.Run("no providers", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = map[string]ProviderConfig{}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "provider")
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers["grok"] = ProviderConfig{Binary: "grok"}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid provider")
	})

	t.Run("provider missing binary", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers["claude"] = ProviderConfig{}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "binary")
	})

	t.Run("uppercase retry patterns rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		pc := cfg.Providers["claude"]
		pc.RetryPatterns = []string{"Rate Limit"}
		cfg.Providers["claude"] = pc

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "lowercase")
	})

	t.Run("invalid failover threshold", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Failover.FailureThreshold = 0

		err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("invalid timeout", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Pipeline.DefaultTimeoutSeconds = 0

		err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("invalid server port", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Port = 70000

		err := cfg.Validate()
		assert.Error(t, err)
	})
}

func TestProviderOptions(t *testing.T) {
	cfg := DefaultConfig()
	pc := cfg.Providers["claude"]
	pc.RetryPatterns = []string{"quota exceeded"}
	cfg.Providers["claude"] = pc

	opts := cfg.ProviderOptions()
	assert.Len(t, opts, 3)
	assert.Equal(t, "claude", opts[provider.KindClaudeCode].Binary)
	assert.Equal(t, []string{"quota exceeded"}, opts[provider.KindClaudeCode].RetryPatterns)
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10*time.Minute, cfg.DefaultTimeout())
	assert.Equal(t, time.Minute, cfg.FailoverCooldown())
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()

	s := cfg.String()
	assert.Contains(t, s, "providers")
	assert.Contains(t, s, "failover")
}
