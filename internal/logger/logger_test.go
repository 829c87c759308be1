package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		log, err := New(Config{
			Level:   "info",
			Console: true,
			Pretty:  false,
		})
		require.NoError(t, err)
		require.NotNil(t, log)
		log.Close()
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "engine.log")

		log, err := New(Config{
			Level:   "debug",
			File:    logFile,
			Console: false,
		})
		require.NoError(t, err)

		log.Info().Str("execution_id", "exec-1").Msg("execution started")
		log.Close()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "execution started")
		assert.Contains(t, string(data), "exec-1")
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New(Config{Level: "loud", Console: true})
		require.Error(t, err)
	})

	t.Run("redaction enabled", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "engine.log")

		log, err := New(Config{
			Level:     "info",
			File:      logFile,
			Console:   false,
			Redaction: true,
		})
		require.NoError(t, err)
		require.NotNil(t, log.redactor)

		log.Info().Msg("key sk-ant-REDACTED leaked")
		log.Close()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "sk-ant-REDACTED")
		assert.Contains(t, string(data), "[REDACTED]")
	})
}

func TestLoggerMethods(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "engine.log")

	log, err := New(Config{
		Level:   "debug",
		File:    logFile,
		Console: false,
	})
	require.NoError(t, err)

	log.Debug().Msg("spawning provider")
	log.Info().Msg("stream line received")
	log.Warn().Msg("circuit open, skipping candidate")
	log.Error().Msg("provider exited nonzero")
	log.Close()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	for _, want := range []string{"spawning provider", "stream line received", "circuit open", "provider exited"} {
		assert.True(t, strings.Contains(string(data), want), "missing %q", want)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.True(t, cfg.Compress)
}

func TestLoggerWith(t *testing.T) {
	log, err := New(Config{Level: "info", Console: false})
	require.NoError(t, err)
	defer log.Close()

	child := log.With().Str("component", "pipeline").Logger()
	assert.NotNil(t, child)
}

func TestGetZerolog(t *testing.T) {
	log, err := New(Config{Level: "warn", Console: false})
	require.NoError(t, err)
	defer log.Close()

	zl := log.GetZerolog()
	assert.Equal(t, zerolog.WarnLevel, zl.GetLevel())
}
