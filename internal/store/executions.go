package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/xkazm04/personas-sub002/pkg/engine/execerr"
	"github.com/xkazm04/personas-sub002/pkg/engine/pipeline"
	"github.com/xkazm04/personas-sub002/pkg/engine/provider"
	"github.com/xkazm04/personas-sub002/pkg/engine/trace"
)

// CreateExecution persists a freshly created execution record.
func (s *Store) CreateExecution(ctx context.Context, rec *pipeline.ExecutionRecord) error {
	defer observe("create_execution", time.Now())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (
			id, persona_id, trigger_id, chain_trace_id, input, state, status,
			provider, model, cost_usd, input_tokens, output_tokens, error_detail,
			created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Request.PersonaID, rec.Request.TriggerID, rec.Request.ChainTraceID,
		rec.Request.Input, string(rec.State), rec.Status,
		string(rec.Provider), rec.Model, rec.CostUSD, rec.InputTokens, rec.OutputTokens,
		rec.ErrorDetail, rec.CreatedAt.UnixMilli(), msPtr(rec.StartedAt), msPtr(rec.FinishedAt),
	)
	if err != nil {
		return execerr.Wrap(execerr.KindRepository, err)
	}
	return nil
}

// UpdateExecution persists the record's current state and totals.
func (s *Store) UpdateExecution(ctx context.Context, rec *pipeline.ExecutionRecord) error {
	defer observe("update_execution", time.Now())

	res, err := s.db.ExecContext(ctx, `
		UPDATE executions SET
			state = ?, status = ?, provider = ?, model = ?,
			cost_usd = ?, input_tokens = ?, output_tokens = ?, error_detail = ?,
			started_at = ?, finished_at = ?
		WHERE id = ?`,
		string(rec.State), rec.Status, string(rec.Provider), rec.Model,
		rec.CostUSD, rec.InputTokens, rec.OutputTokens, rec.ErrorDetail,
		msPtr(rec.StartedAt), msPtr(rec.FinishedAt), rec.ID,
	)
	if err != nil {
		return execerr.Wrap(execerr.KindRepository, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return execerr.Newf(execerr.KindNotFound, "execution %s not found", rec.ID)
	}
	return nil
}

// GetExecution loads one execution record.
func (s *Store) GetExecution(ctx context.Context, id string) (*pipeline.ExecutionRecord, error) {
	defer observe("get_execution", time.Now())

	row := s.db.QueryRowContext(ctx, `
		SELECT id, persona_id, trigger_id, chain_trace_id, input, state, status,
			provider, model, cost_usd, input_tokens, output_tokens, error_detail,
			created_at, started_at, finished_at
		FROM executions WHERE id = ?`, id)

	rec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, execerr.Newf(execerr.KindNotFound, "execution %s not found", id)
	}
	if err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	return rec, nil
}

// ListExecutions returns recent executions, newest first, optionally
// filtered by persona.
func (s *Store) ListExecutions(ctx context.Context, personaID string, limit int) ([]*pipeline.ExecutionRecord, error) {
	defer observe("list_executions", time.Now())

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, persona_id, trigger_id, chain_trace_id, input, state, status,
			provider, model, cost_usd, input_tokens, output_tokens, error_detail,
			created_at, started_at, finished_at
		FROM executions`
	args := []interface{}{}
	if personaID != "" {
		query += " WHERE persona_id = ?"
		args = append(args, personaID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	defer rows.Close()

	var out []*pipeline.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, execerr.Wrap(execerr.KindRepository, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	return out, nil
}

// SaveTrace stores the serialized trace document for an execution,
// replacing any earlier snapshot.
func (s *Store) SaveTrace(ctx context.Context, executionID string, doc []byte) error {
	defer observe("save_trace", time.Now())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_traces (execution_id, doc, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET doc = excluded.doc, saved_at = excluded.saved_at`,
		executionID, string(doc), time.Now().UnixMilli(),
	)
	if err != nil {
		return execerr.Wrap(execerr.KindRepository, err)
	}
	return nil
}

// GetTrace loads and parses the trace document for an execution.
func (s *Store) GetTrace(ctx context.Context, executionID string) (*trace.ExecutionTrace, error) {
	defer observe("get_trace", time.Now())

	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc FROM execution_traces WHERE execution_id = ?", executionID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, execerr.Newf(execerr.KindNotFound, "trace for execution %s not found", executionID)
	}
	if err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	tr, err := trace.UnmarshalTrace([]byte(doc))
	if err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	return tr, nil
}

// ListChainTraces loads every trace that belongs to a chain correlation id.
func (s *Store) ListChainTraces(ctx context.Context, chainTraceID string) ([]*trace.ExecutionTrace, error) {
	defer observe("list_chain_traces", time.Now())

	if chainTraceID == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.doc FROM execution_traces t
		JOIN executions e ON e.id = t.execution_id
		WHERE e.chain_trace_id = ?`, chainTraceID)
	if err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	defer rows.Close()

	var out []*trace.ExecutionTrace
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, execerr.Wrap(execerr.KindRepository, err)
		}
		tr, err := trace.UnmarshalTrace([]byte(doc))
		if err != nil {
			return nil, execerr.Wrap(execerr.KindRepository, err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	return out, nil
}

func scanExecution(row rowScanner) (*pipeline.ExecutionRecord, error) {
	var rec pipeline.ExecutionRecord
	var state, prov string
	var createdMs int64
	var startedMs, finishedMs *int64
	err := row.Scan(
		&rec.ID, &rec.Request.PersonaID, &rec.Request.TriggerID, &rec.Request.ChainTraceID,
		&rec.Request.Input, &state, &rec.Status,
		&prov, &rec.Model, &rec.CostUSD, &rec.InputTokens, &rec.OutputTokens,
		&rec.ErrorDetail, &createdMs, &startedMs, &finishedMs,
	)
	if err != nil {
		return nil, err
	}
	rec.State = pipeline.State(state)
	rec.Provider = provider.Kind(prov)
	rec.CreatedAt = time.UnixMilli(createdMs)
	rec.StartedAt = timePtr(startedMs)
	rec.FinishedAt = timePtr(finishedMs)
	return &rec, nil
}
