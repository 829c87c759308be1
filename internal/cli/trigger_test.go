package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkazm04/personas-sub002/pkg/engine/schedule"
)

func resetTriggerFlags() {
	triggerEvery = ""
	triggerCron = ""
	triggerAt = ""
	triggerTZ = ""
}

func TestBuildSchedule(t *testing.T) {
	t.Run("interval from every flag", func(t *testing.T) {
		resetTriggerFlags()
		triggerEvery = "30m"

		s, err := buildSchedule()
		require.NoError(t, err)
		assert.Equal(t, schedule.KindInterval, s.Kind)
		assert.Equal(t, (30 * time.Minute).Milliseconds(), s.IntervalMs)
	})

	t.Run("cron with timezone", func(t *testing.T) {
		resetTriggerFlags()
		triggerCron = "0 9 * * *"
		triggerTZ = "Europe/Prague"

		s, err := buildSchedule()
		require.NoError(t, err)
		assert.Equal(t, schedule.KindCron, s.Kind)
		assert.Equal(t, "0 9 * * *", s.Expr)
		assert.Equal(t, "Europe/Prague", s.TZ)
	})

	t.Run("once from at flag", func(t *testing.T) {
		resetTriggerFlags()
		triggerAt = "2026-09-01T08:00:00Z"

		s, err := buildSchedule()
		require.NoError(t, err)
		assert.Equal(t, schedule.KindOnce, s.Kind)
		assert.Equal(t, "2026-09-01T08:00:00Z", s.At)
	})

	t.Run("no schedule flag", func(t *testing.T) {
		resetTriggerFlags()

		_, err := buildSchedule()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one")
	})

	t.Run("conflicting flags", func(t *testing.T) {
		resetTriggerFlags()
		triggerEvery = "1h"
		triggerCron = "* * * * *"

		_, err := buildSchedule()
		require.Error(t, err)
	})

	t.Run("malformed interval", func(t *testing.T) {
		resetTriggerFlags()
		triggerEvery = "soon"

		_, err := buildSchedule()
		require.Error(t, err)
	})

	t.Run("sub-second interval", func(t *testing.T) {
		resetTriggerFlags()
		triggerEvery = "100ms"

		_, err := buildSchedule()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 1s")
	})
}
