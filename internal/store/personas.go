package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/xkazm04/personas-sub002/pkg/engine/execerr"
	"github.com/xkazm04/personas-sub002/pkg/engine/pipeline"
	"github.com/xkazm04/personas-sub002/pkg/engine/provider"
)

// UpsertPersona inserts or replaces a persona profile.
func (s *Store) UpsertPersona(ctx context.Context, p *pipeline.Persona) error {
	defer observe("upsert_persona", time.Now())

	if p.ID == "" {
		return execerr.New(execerr.KindValidation, "persona id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO personas (id, name, provider, model, system_prompt, max_concurrent, timeout_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			provider = excluded.provider,
			model = excluded.model,
			system_prompt = excluded.system_prompt,
			max_concurrent = excluded.max_concurrent,
			timeout_ms = excluded.timeout_ms`,
		p.ID, p.Name, string(p.Provider), p.Model, p.SystemPrompt,
		p.MaxConcurrent, p.Timeout.Milliseconds(), time.Now().UnixMilli(),
	)
	if err != nil {
		return execerr.Wrap(execerr.KindRepository, err)
	}
	return nil
}

// GetPersona resolves a persona by id.
func (s *Store) GetPersona(ctx context.Context, id string) (*pipeline.Persona, error) {
	defer observe("get_persona", time.Now())

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, provider, model, system_prompt, max_concurrent, timeout_ms
		FROM personas WHERE id = ?`, id)

	p, err := scanPersona(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, execerr.Newf(execerr.KindNotFound, "persona %s not found", id)
	}
	if err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	return p, nil
}

// ListPersonas returns all personas ordered by name.
func (s *Store) ListPersonas(ctx context.Context) ([]*pipeline.Persona, error) {
	defer observe("list_personas", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, provider, model, system_prompt, max_concurrent, timeout_ms
		FROM personas ORDER BY name`)
	if err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	defer rows.Close()

	var out []*pipeline.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, execerr.Wrap(execerr.KindRepository, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, execerr.Wrap(execerr.KindRepository, err)
	}
	return out, nil
}

// DeletePersona removes a persona by id.
func (s *Store) DeletePersona(ctx context.Context, id string) error {
	defer observe("delete_persona", time.Now())

	res, err := s.db.ExecContext(ctx, "DELETE FROM personas WHERE id = ?", id)
	if err != nil {
		return execerr.Wrap(execerr.KindRepository, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return execerr.Newf(execerr.KindNotFound, "persona %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPersona(row rowScanner) (*pipeline.Persona, error) {
	var p pipeline.Persona
	var prov string
	var timeoutMs int64
	if err := row.Scan(&p.ID, &p.Name, &prov, &p.Model, &p.SystemPrompt, &p.MaxConcurrent, &timeoutMs); err != nil {
		return nil, err
	}
	p.Provider = provider.Kind(prov)
	p.Timeout = time.Duration(timeoutMs) * time.Millisecond
	return &p, nil
}
