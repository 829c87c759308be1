package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRunOnce(t *testing.T) {
	t.Run("valid ISO 8601 timestamp", func(t *testing.T) {
		s := Schedule{Kind: KindOnce, At: "2026-12-25T14:00:00Z"}

		next, err := NextRun(s)
		require.NoError(t, err)

		expected := time.Date(2026, 12, 25, 14, 0, 0, 0, time.UTC).UnixMilli()
		assert.Equal(t, expected, next)
	})

	t.Run("invalid timestamp", func(t *testing.T) {
		_, err := NextRun(Schedule{Kind: KindOnce, At: "invalid"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid timestamp")
	})

	t.Run("missing at field", func(t *testing.T) {
		_, err := NextRun(Schedule{Kind: KindOnce})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "requires 'at' field")
	})
}

func TestNextRunInterval(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	t.Run("without anchor", func(t *testing.T) {
		s := Schedule{Kind: KindInterval, IntervalMs: 60000}

		next, err := NextRunFrom(s, now)
		require.NoError(t, err)
		assert.Equal(t, now.UnixMilli()+60000, next)
	})

	t.Run("anchor in the past aligns to next period", func(t *testing.T) {
		anchor := now.Add(-90 * time.Second).UnixMilli()
		s := Schedule{Kind: KindInterval, IntervalMs: 60000, AnchorMs: &anchor}

		next, err := NextRunFrom(s, now)
		require.NoError(t, err)
		assert.Equal(t, anchor+2*60000, next)
	})

	t.Run("anchor in the future fires at anchor", func(t *testing.T) {
		anchor := now.Add(5 * time.Minute).UnixMilli()
		s := Schedule{Kind: KindInterval, IntervalMs: 60000, AnchorMs: &anchor}

		next, err := NextRunFrom(s, now)
		require.NoError(t, err)
		assert.Equal(t, anchor, next)
	})

	t.Run("zero interval rejected", func(t *testing.T) {
		_, err := NextRunFrom(Schedule{Kind: KindInterval}, now)
		assert.Error(t, err)
	})
}

func TestNextRunCron(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 30, 0, 0, time.UTC)

	t.Run("hourly expression", func(t *testing.T) {
		s := Schedule{Kind: KindCron, Expr: "0 * * * *"}

		next, err := NextRunFrom(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 29, 13, 0, 0, 0, time.UTC).UnixMilli(), next)
	})

	t.Run("invalid expression", func(t *testing.T) {
		_, err := NextRunFrom(Schedule{Kind: KindCron, Expr: "not a cron"}, now)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid cron expression")
	})

	t.Run("invalid timezone", func(t *testing.T) {
		_, err := NextRunFrom(Schedule{Kind: KindCron, Expr: "0 * * * *", TZ: "Mars/Olympus"}, now)
		assert.Error(t, err)
	})

	t.Run("missing expression", func(t *testing.T) {
		_, err := NextRunFrom(Schedule{Kind: KindCron}, now)
		assert.Error(t, err)
	})
}

func TestNextRunUnknownKind(t *testing.T) {
	_, err := NextRun(Schedule{Kind: "sometimes"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown schedule kind")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Schedule{Kind: KindInterval, IntervalMs: 1000}))
	assert.NoError(t, Validate(Schedule{Kind: KindCron, Expr: "*/5 * * * *"}))
	assert.Error(t, Validate(Schedule{Kind: KindCron}))
}
