package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"github.com/xkazm04/personas-sub002/pkg/engine/execerr"
	"github.com/xkazm04/personas-sub002/pkg/engine/schedule"
	"github.com/xkazm04/personas-sub002/pkg/engine/scheduler"
)

// scheduleSchema constrains persisted trigger schedules. Validation at the
// write path keeps the scheduler's read path free of shape checks.
const scheduleSchema = `{
	"type": "object",
	"required": ["kind"],
	"properties": {
		"kind": {"type": "string", "enum": ["once", "interval", "cron"]},
		"at": {"type": "string"},
		"interval_ms": {"type": "integer", "minimum": 1},
		"anchor_ms": {"type": "integer"},
		"expr": {"type": "string"},
		"tz": {"type": "string"}
	},
	"additionalProperties": false
}`

var scheduleSchemaLoader = gojsonschema.NewStringLoader(scheduleSchema)

// Trigger is a persisted scheduled run definition.
type Trigger struct {
	ID            string            `json:"id"`
	PersonaID     string            `json:"persona_id"`
	Input         string            `json:"input"`
	ChainTraceID  string            `json:"chain_trace_id,omitempty"`
	ModelOverride string            `json:"model_override,omitempty"`
	Schedule      schedule.Schedule `json:"schedule"`
	Enabled       bool              `json:"enabled"`
	NextRunAt     time.Time         `json:"next_run_at"`
	CreatedAt     time.Time         `json:"created_at"`
}

// CreateTrigger validates and persists a trigger, computing its first due
// time from the schedule. A generated id is filled in when absent.
func (s *Store) CreateTrigger(ctx context.Context, trg *Trigger) error {
	defer observe("create_trigger", time.Now())

	if trg.PersonaID == "" {
		return execerr.New(execerr.KindValidation, "trigger persona id is required")
	}
	if trg.Input == "" {
		return execerr.New(execerr.KindValidation, "trigger input is required")
	}
	if trg.ID == "" {
		trg.ID = uuid.New().String()
	}

	scheduleJSON, err := json.Marshal(trg.Schedule)
	if err != nil {
		return execerr.Wrap(execerr.KindValidation, err)
	}
	if err := validateScheduleJSON(scheduleJSON); err != nil {
		return err
	}
	if err := schedule.Validate(trg.Schedule); err != nil {
		return execerr.Wrap(execerr.KindValidation, err)
	}

	nextMs, err := schedule.NextRun(trg.Schedule)
	if err != nil {
		return execerr.Wrap(execerr.KindValidation, err)
	}
	trg.NextRunAt = time.UnixMilli(nextMs)
	trg.Enabled = true
	trg.CreatedAt = time.Now()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO triggers (id, persona_id, input, chain_trace_id, model_override,
			schedule_json, enabled, next_run_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		trg.ID, trg.PersonaID, trg.Input, trg.ChainTraceID, trg.ModelOverride,
		string(scheduleJSON), trg.NextRunAt.UnixMilli(), trg.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return execerr.Wrap(execerr.KindRepository, err)
	}
	return nil
}

func validateScheduleJSON(doc []byte) error {
	result, err := gojsonschema.Validate(scheduleSchemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return execerr.Wrap(execerr.KindValidation, err)
	}
	if !result.Valid() {
		msg := "invalid trigger schedule"
		for _, e := range result.Errors() {
			msg += ": " + e.String()
		}
		return execerr.New(execerr.KindValidation, msg)
	}
	return nil
}

// ListTriggers returns all triggers, due-first.
func (s *Store) ListTriggers(ctx context.Context) ([]*Trigger, error) {
	defer observe("list_triggers", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, persona_id, input, chain_trace_id, model_override,
			schedule_json, enabled, next_run_at, created_at
		FROM triggers ORDER BY next_run_at`)
	if err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	defer rows.Close()

	var out []*Trigger
	for rows.Next() {
		trg, err := scanTrigger(rows)
		if err != nil {
			return nil, execerr.Wrap(execerr.KindRepository, err)
		}
		out = append(out, trg)
	}
	if err := rows.Err(); err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	return out, nil
}

// SetTriggerEnabled flips a trigger on or off.
func (s *Store) SetTriggerEnabled(ctx context.Context, id string, enabled bool) error {
	defer observe("set_trigger_enabled", time.Now())

	res, err := s.db.ExecContext(ctx, "UPDATE triggers SET enabled = ? WHERE id = ?", enabled, id)
	if err != nil {
		return execerr.Wrap(execerr.KindRepository, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return execerr.Newf(execerr.KindNotFound, "trigger %s not found", id)
	}
	return nil
}

// DeleteTrigger removes a trigger.
func (s *Store) DeleteTrigger(ctx context.Context, id string) error {
	defer observe("delete_trigger", time.Now())

	res, err := s.db.ExecContext(ctx, "DELETE FROM triggers WHERE id = ?", id)
	if err != nil {
		return execerr.Wrap(execerr.KindRepository, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return execerr.Newf(execerr.KindNotFound, "trigger %s not found", id)
	}
	return nil
}

// ListDueTriggers returns enabled triggers whose next run is at or before
// now, mapped to the scheduler's view.
func (s *Store) ListDueTriggers(ctx context.Context, now time.Time) ([]scheduler.Trigger, error) {
	defer observe("list_due_triggers", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, persona_id, input, chain_trace_id, model_override,
			schedule_json, enabled, next_run_at, created_at
		FROM triggers
		WHERE enabled = 1 AND next_run_at <= ?
		ORDER BY next_run_at`, now.UnixMilli())
	if err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	defer rows.Close()

	var out []scheduler.Trigger
	for rows.Next() {
		trg, err := scanTrigger(rows)
		if err != nil {
			return nil, execerr.Wrap(execerr.KindRepository, err)
		}
		out = append(out, scheduler.Trigger{
			ID:            trg.ID,
			PersonaID:     trg.PersonaID,
			Input:         trg.Input,
			ChainTraceID:  trg.ChainTraceID,
			ModelOverride: trg.ModelOverride,
			Schedule:      trg.Schedule,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	return out, nil
}

// MarkTriggered advances a trigger's next run time. Returns false when the
// trigger was deleted between list and mark.
func (s *Store) MarkTriggered(ctx context.Context, id string, next time.Time) (bool, error) {
	defer observe("mark_triggered", time.Now())

	res, err := s.db.ExecContext(ctx,
		"UPDATE triggers SET next_run_at = ? WHERE id = ?", next.UnixMilli(), id)
	if err != nil {
		return false, execerr.Wrap(execerr.KindRepository, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AddRotationCheck registers a recurring credential rotation check for a
// provider.
func (s *Store) AddRotationCheck(ctx context.Context, provider string, interval time.Duration) error {
	defer observe("add_rotation_check", time.Now())

	if interval <= 0 {
		return execerr.New(execerr.KindValidation, "rotation interval must be positive")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rotation_checks (id, provider, interval_ms, next_check_at)
		VALUES (?, ?, ?, ?)`,
		uuid.New().String(), provider, interval.Milliseconds(),
		time.Now().Add(interval).UnixMilli(),
	)
	if err != nil {
		return execerr.Wrap(execerr.KindRepository, err)
	}
	return nil
}

// ListDueRotationChecks returns rotation checks whose next check time has
// passed.
func (s *Store) ListDueRotationChecks(ctx context.Context, now time.Time) ([]scheduler.RotationCheck, error) {
	defer observe("list_due_rotation_checks", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider FROM rotation_checks
		WHERE next_check_at <= ? ORDER BY next_check_at`, now.UnixMilli())
	if err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	defer rows.Close()

	var out []scheduler.RotationCheck
	for rows.Next() {
		var rc scheduler.RotationCheck
		if err := rows.Scan(&rc.ID, &rc.Provider); err != nil {
			return nil, execerr.Wrap(execerr.KindRepository, err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	return out, nil
}

// MarkRotationChecked advances a check by its own interval.
func (s *Store) MarkRotationChecked(ctx context.Context, id string, checked time.Time) error {
	defer observe("mark_rotation_checked", time.Now())

	res, err := s.db.ExecContext(ctx, `
		UPDATE rotation_checks
		SET last_checked_at = ?, next_check_at = ? + interval_ms
		WHERE id = ?`,
		checked.UnixMilli(), checked.UnixMilli(), id)
	if err != nil {
		return execerr.Wrap(execerr.KindRepository, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return execerr.Newf(execerr.KindNotFound, "rotation check %s not found", id)
	}
	return nil
}

func scanTrigger(row rowScanner) (*Trigger, error) {
	var trg Trigger
	var scheduleJSON string
	var nextMs, createdMs int64
	if err := row.Scan(&trg.ID, &trg.PersonaID, &trg.Input, &trg.ChainTraceID,
		&trg.ModelOverride, &scheduleJSON, &trg.Enabled, &nextMs, &createdMs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scheduleJSON), &trg.Schedule); err != nil {
		return nil, err
	}
	trg.NextRunAt = time.UnixMilli(nextMs)
	trg.CreatedAt = time.UnixMilli(createdMs)
	return &trg, nil
}
