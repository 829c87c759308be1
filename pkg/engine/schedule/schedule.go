package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind represents the type of trigger schedule
type Kind string

const (
	KindOnce     Kind = "once"
	KindInterval Kind = "interval"
	KindCron     Kind = "cron"
)

// Schedule is a trigger's time specification.
type Schedule struct {
	Kind Kind `json:"kind"`

	// For "once" schedules
	At string `json:"at,omitempty"` // ISO 8601 timestamp

	// For "interval" schedules
	IntervalMs int64  `json:"interval_ms,omitempty"`
	AnchorMs   *int64 `json:"anchor_ms,omitempty"` // Optional alignment point

	// For "cron" schedules
	Expr string `json:"expr,omitempty"` // 5-field cron expression
	TZ   string `json:"tz,omitempty"`   // Optional timezone
}

// NextRun calculates the next run time in unix millis, from now.
func NextRun(s Schedule) (int64, error) {
	return NextRunFrom(s, time.Now())
}

// NextRunFrom calculates the next run time relative to the given instant.
func NextRunFrom(s Schedule, now time.Time) (int64, error) {
	switch s.Kind {
	case KindOnce:
		return nextOnce(s)
	case KindInterval:
		return nextInterval(s, now)
	case KindCron:
		return nextCron(s, now)
	default:
		return 0, fmt.Errorf("unknown schedule kind: %s", s.Kind)
	}
}

func nextOnce(s Schedule) (int64, error) {
	if s.At == "" {
		return 0, fmt.Errorf("'once' schedule requires 'at' field")
	}
	t, err := time.Parse(time.RFC3339, s.At)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp: %w", err)
	}
	return t.UnixMilli(), nil
}

func nextInterval(s Schedule, now time.Time) (int64, error) {
	if s.IntervalMs <= 0 {
		return 0, fmt.Errorf("'interval' schedule requires positive 'interval_ms' value")
	}

	nowMs := now.UnixMilli()

	// Without anchor: next run is now + interval
	if s.AnchorMs == nil {
		return nowMs + s.IntervalMs, nil
	}

	anchor := *s.AnchorMs
	elapsed := nowMs - anchor

	// Anchor still in the future: fire at the anchor
	if elapsed < 0 {
		return anchor, nil
	}

	// Align to the next whole period after the anchor
	periods := elapsed / s.IntervalMs
	return anchor + (periods+1)*s.IntervalMs, nil
}

func nextCron(s Schedule, now time.Time) (int64, error) {
	if s.Expr == "" {
		return 0, fmt.Errorf("'cron' schedule requires 'expr' field")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(s.Expr)
	if err != nil {
		return 0, fmt.Errorf("invalid cron expression: %w", err)
	}

	if s.TZ != "" {
		loc, err := time.LoadLocation(s.TZ)
		if err != nil {
			return 0, fmt.Errorf("invalid timezone: %w", err)
		}
		now = now.In(loc)
	}

	return sched.Next(now).UnixMilli(), nil
}

// Validate reports whether the schedule is well formed, without evaluating
// it against a clock.
func Validate(s Schedule) error {
	_, err := NextRunFrom(s, time.Now())
	return err
}
