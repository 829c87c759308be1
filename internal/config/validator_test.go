package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateProvider(t *testing.T) {
	v := NewValidator()

	t.Run("known providers", func(t *testing.T) {
		assert.NoError(t, v.ValidateProvider("claude"))
		assert.NoError(t, v.ValidateProvider("codex"))
		assert.NoError(t, v.ValidateProvider("gemini"))
	})

	t.Run("unknown provider", func(t *testing.T) {
		err := v.ValidateProvider("grok")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid provider")
	})

	t.Run("empty provider", func(t *testing.T) {
		assert.Error(t, v.ValidateProvider(""))
	})
}

func TestValidateRetryPattern(t *testing.T) {
	v := NewValidator()

	t.Run("valid pattern", func(t *testing.T) {
		assert.NoError(t, v.ValidateRetryPattern("rate limit"))
		assert.NoError(t, v.ValidateRetryPattern("quota exceeded"))
	})

	t.Run("empty pattern", func(t *testing.T) {
		assert.Error(t, v.ValidateRetryPattern(""))
		assert.Error(t, v.ValidateRetryPattern("   "))
	})

	t.Run("uppercase pattern", func(t *testing.T) {
		err := v.ValidateRetryPattern("Rate Limit")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "lowercase")
	})
}

func TestValidateModel(t *testing.T) {
	v := NewValidator()

	t.Run("valid models", func(t *testing.T) {
		assert.NoError(t, v.ValidateModel("claude-sonnet-4-20250514"))
		assert.NoError(t, v.ValidateModel("gemini-2.5-pro"))
		assert.NoError(t, v.ValidateModel("o3"))
	})

	t.Run("empty model", func(t *testing.T) {
		assert.Error(t, v.ValidateModel(""))
	})

	t.Run("invalid characters", func(t *testing.T) {
		assert.Error(t, v.ValidateModel("Claude Sonnet"))
		assert.Error(t, v.ValidateModel("-leading-dash"))
	})
}

func TestValidatePersonaID(t *testing.T) {
	v := NewValidator()

	t.Run("valid ids", func(t *testing.T) {
		assert.NoError(t, v.ValidatePersonaID("p-research"))
		assert.NoError(t, v.ValidatePersonaID("writer_2"))
	})

	t.Run("invalid ids", func(t *testing.T) {
		assert.Error(t, v.ValidatePersonaID(""))
		assert.Error(t, v.ValidatePersonaID("-bad"))
		assert.Error(t, v.ValidatePersonaID("has space"))
	})
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	t.Run("valid levels", func(t *testing.T) {
		for _, level := range []string{"trace", "debug", "info", "warn", "error"} {
			assert.NoError(t, v.ValidateLogLevel(level))
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		assert.Error(t, v.ValidateLogLevel("verbose"))
	})
}
