package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/xkazm04/personas-sub002/internal/observability"
	"github.com/xkazm04/personas-sub002/internal/tracing"
	"github.com/xkazm04/personas-sub002/pkg/engine/execerr"
	"github.com/xkazm04/personas-sub002/pkg/engine/failover"
	"github.com/xkazm04/personas-sub002/pkg/engine/provider"
	"github.com/xkazm04/personas-sub002/pkg/engine/trace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// run is the pipeline's internal state for one execution.
type run struct {
	p         *Pipeline
	record    *ExecutionRecord
	handle    *Handle
	collector *trace.Collector
	logger    zerolog.Logger

	cancelFn  atomic.Pointer[context.CancelFunc]
	cancelled atomic.Bool
	dropped   atomic.Int64
}

func newRun(p *Pipeline, req Request) *run {
	id := newExecutionID()
	r := &run{
		p: p,
		record: &ExecutionRecord{
			ID:        id,
			Request:   req,
			State:     StatePending,
			CreatedAt: time.Now(),
		},
		handle: &Handle{
			ID:     id,
			events: make(chan Event, eventBufferSize),
			done:   make(chan struct{}),
		},
	}
	r.logger = p.logger.With().
		Str("execution_id", id).
		Str("persona_id", req.PersonaID).
		Logger()
	return r
}

func (r *run) requestCancel() {
	r.cancelled.Store(true)
	if fn := r.cancelFn.Load(); fn != nil {
		(*fn)()
	}
}

// execute drives the run through the staged state machine. It always
// terminates the handle exactly once.
func (r *run) execute(ctx context.Context) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "engine/pipeline", "pipeline.execute",
		attribute.String("execution.id", r.record.ID),
		attribute.String("persona.id", r.record.Request.PersonaID),
	)
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	r.cancelFn.Store(&cancel)
	defer cancel()
	defer r.p.release(r)

	r.collector = trace.NewCollector(r.record.ID, r.record.Request.PersonaID, r.record.Request.ChainTraceID, r.logger)
	observability.RecordTraceSpan(string(trace.SpanExecution))

	var runErr error
	recorded := false

	persona, err := r.validate(runCtx)
	if err != nil {
		runErr = err
	} else if err := r.createRecord(runCtx); err != nil {
		runErr = err
	} else {
		recorded = true
		runErr = r.spawnAndStream(runCtx, persona)
	}

	r.finalize(ctx, runErr, recorded)

	elapsed := time.Since(start)
	success := runErr == nil
	observability.RecordExecution(string(r.record.Provider), elapsed, success)
	observability.RecordExecutionAudit(ctx, r.record.Request.PersonaID, "execution_finished", r.record.Status, map[string]interface{}{
		"execution_id": r.record.ID,
		"duration_ms":  elapsed.Milliseconds(),
	})
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, execerr.StageOf(runErr))
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

// validate resolves the persona and checks capacity. Runs before any
// record exists, so validation failures leave no row behind.
func (r *run) validate(ctx context.Context) (*Persona, error) {
	r.setState(StateValidating)
	spanID := r.collector.StartSpan("", trace.SpanStage, StageValidate)

	persona, err := r.p.repo.GetPersona(ctx, r.record.Request.PersonaID)
	if err != nil {
		err = execerr.WithStage(err, StageValidate)
		r.collector.EndSpan(spanID, trace.EndAttrs{Error: err.Error()})
		return nil, err
	}
	if persona.Provider == "" {
		err := execerr.WithStage(execerr.New(execerr.KindConfig, "persona has no provider configured"), StageValidate)
		r.collector.EndSpan(spanID, trace.EndAttrs{Error: err.Error()})
		return nil, err
	}
	if persona.MaxConcurrent > 0 && r.p.personaLoad(persona.ID) > persona.MaxConcurrent {
		r.collector.EndSpan(spanID, trace.EndAttrs{Error: ErrNoCapacity.Error()})
		return nil, ErrNoCapacity
	}

	r.collector.EndSpan(spanID, trace.EndAttrs{})
	return persona, nil
}

func (r *run) createRecord(ctx context.Context) error {
	r.setState(StateRecording)
	spanID := r.collector.StartSpan("", trace.SpanStage, StageCreateRecord)

	if err := r.p.repo.CreateExecution(ctx, r.record); err != nil {
		err = execerr.WithStage(err, StageCreateRecord)
		r.collector.EndSpan(spanID, trace.EndAttrs{Error: err.Error()})
		return err
	}
	r.collector.EndSpan(spanID, trace.EndAttrs{})
	return nil
}

// spawnAndStream walks the failover chain. Retryable attempt failures move
// to the next candidate; fatal ones and cancellation stop the run.
func (r *run) spawnAndStream(ctx context.Context, persona *Persona) error {
	model := r.record.Request.ModelOverride
	if model == "" {
		model = persona.Model
	}
	chain := failover.BuildChain(persona.Provider, model)

	timeout := persona.Timeout
	if timeout <= 0 {
		timeout = r.p.defaultTimeout
	}

	attempted := make(map[string]bool, len(chain))
	var lastErr error
	for {
		if r.cancelled.Load() {
			return r.cancelErr(lastErr)
		}

		// Spawning is entered before candidate selection so that an
		// exhausted chain fails from the spawning state, not recording.
		r.setState(StateSpawning)

		cand, ok := r.p.failover.ChooseNext(chain, attempted)
		if !ok {
			msg := fmt.Sprintf("no usable candidate after %d attempt(s)", len(attempted))
			if lastErr != nil {
				msg = fmt.Sprintf("%s, last error: %v", msg, lastErr)
			}
			return execerr.WithStage(execerr.New(execerr.KindExhausted, msg), StageSpawnEngine)
		}
		attempted[cand.Key()] = true

		err := r.attempt(ctx, persona, cand, timeout)
		if err == nil {
			r.p.failover.RecordOutcome(cand, failover.OutcomeSuccess)
			return nil
		}
		if r.cancelled.Load() || execerr.KindOf(err) == execerr.KindCancelled {
			// No verdict for this attempt; give back any probe slot it held.
			r.p.failover.ReleaseProbe(cand)
			return r.cancelErr(err)
		}

		lastErr = err
		if execerr.IsRetryable(err) {
			r.p.failover.RecordOutcome(cand, failover.OutcomeRetryable)
			r.logger.Warn().
				Str("provider", string(cand.Kind)).
				Str("model", cand.Model).
				Err(err).
				Msg("Candidate failed, trying next")
			continue
		}
		r.p.failover.RecordOutcome(cand, failover.OutcomeFatal)
		return err
	}
}

// attempt runs one candidate end to end: spawn the process, consume the
// stream, interpret the exit.
func (r *run) attempt(ctx context.Context, persona *Persona, cand provider.Candidate, timeout time.Duration) error {
	adapter, err := provider.Resolve(cand.Kind, r.p.optsFor(cand.Kind))
	if err != nil {
		return execerr.WithStage(err, StageSpawnEngine)
	}

	spawnName := cand.Label
	if spawnName == "" {
		spawnName = cand.Key()
	}
	spawnSpan := r.collector.StartSpan("", trace.SpanSpawn, spawnName)
	observability.RecordTraceSpan(string(trace.SpanSpawn))

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stream, err := r.p.launcher.Launch(attemptCtx, adapter, provider.SpawnRequest{
		Prompt:     r.buildPrompt(persona),
		Model:      cand.Model,
		WorkingDir: r.record.Request.WorkingDir,
		Timeout:    timeout,
	})
	if err != nil {
		err = execerr.WithStage(err, StageSpawnEngine)
		r.collector.EndSpan(spawnSpan, trace.EndAttrs{Error: err.Error()})
		return err
	}

	r.record.Provider = cand.Kind
	r.record.Model = cand.Model
	if r.record.StartedAt == nil {
		now := time.Now()
		r.record.StartedAt = &now
	}

	r.setState(StateStreaming)
	streamSpan := r.collector.StartSpan(spawnSpan, trace.SpanStream, StageStreamOutput)

	errLine, lineErr := r.consume(stream, adapter, cand, streamSpan)

	waitErr := stream.Wait()
	switch {
	case waitErr != nil:
		err = execerr.WithStage(waitErr, StageStreamOutput)
	case lineErr != nil:
		err = lineErr
	case errLine != "":
		kind := execerr.ClassifyProviderFailure(errLine, r.p.optsFor(cand.Kind).RetryPatterns)
		err = execerr.WithStage(execerr.New(kind, errLine), StageStreamOutput)
	}

	if err != nil {
		r.collector.EndSpan(streamSpan, trace.EndAttrs{Error: err.Error()})
		r.collector.EndSpan(spawnSpan, trace.EndAttrs{Error: err.Error()})
		return err
	}
	r.collector.EndSpan(streamSpan, trace.EndAttrs{})
	r.collector.EndSpan(spawnSpan, trace.EndAttrs{
		CostUSD:      float64Ptr(r.record.CostUSD),
		InputTokens:  int64Ptr(r.record.InputTokens),
		OutputTokens: int64Ptr(r.record.OutputTokens),
	})
	return nil
}

// consume drains the stream's lines, emits events, collects spans and
// totals. It returns the last hard error line seen, if any, and a
// cancellation error when the run was cancelled mid-stream.
func (r *run) consume(stream provider.Stream, adapter provider.Adapter, cand provider.Candidate, streamSpan string) (string, error) {
	var errLine string
	var toolSpan string

	for line := range stream.Lines() {
		if r.cancelled.Load() {
			stream.Kill()
			for range stream.Lines() {
			}
			return errLine, execerr.WithStage(execerr.New(execerr.KindCancelled, "execution cancelled"), StageStreamOutput)
		}

		parsed := adapter.ParseLine(line)
		observability.RecordStreamLine(string(cand.Kind), string(parsed.Type))

		switch parsed.Type {
		case provider.LineToolUse:
			if toolSpan != "" {
				r.collector.EndSpan(toolSpan, trace.EndAttrs{})
			}
			toolSpan = r.collector.StartSpan(streamSpan, trace.SpanToolCall, parsed.ToolName)
		case provider.LineToolResult:
			if toolSpan != "" {
				r.collector.EndSpan(toolSpan, trace.EndAttrs{})
				toolSpan = ""
			}
		case provider.LineResult:
			if parsed.CostUSD != nil {
				r.record.CostUSD += *parsed.CostUSD
				observability.RecordCost(string(cand.Kind), *parsed.CostUSD)
			}
			var in, out int64
			if parsed.InputTokens != nil {
				in = *parsed.InputTokens
				r.record.InputTokens += in
			}
			if parsed.OutputTokens != nil {
				out = *parsed.OutputTokens
				r.record.OutputTokens += out
			}
			observability.RecordTokens(string(cand.Kind), in, out)
			if parsed.Message != "" {
				errLine = parsed.Message
			}
		case provider.LineError:
			errLine = parsed.Message
		case provider.LineUnknown:
			if parsed.Display == "" {
				continue
			}
		}

		r.emit(Event{Type: EventLine, Line: &parsed, Provider: cand.Kind})
	}

	if toolSpan != "" {
		r.collector.EndSpan(toolSpan, trace.EndAttrs{})
	}
	return errLine, nil
}

// finalize stamps exactly one terminal status, persists the record and
// trace when a record exists, and closes the handle.
func (r *run) finalize(ctx context.Context, runErr error, recorded bool) {
	if runErr == nil {
		r.setState(StateFinalizing)
	}

	now := time.Now()
	r.record.FinishedAt = &now

	switch {
	case runErr == nil:
		r.record.Status = StatusSucceeded
	case r.cancelled.Load() || execerr.KindOf(runErr) == execerr.KindCancelled:
		r.record.Status = StatusCancelled
		r.record.ErrorDetail = runErr.Error()
	default:
		r.record.Status = StatusFailed
		r.record.ErrorDetail = runErr.Error()
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	tr := r.collector.Finalize(trace.Totals{
		CostUSD:      r.record.CostUSD,
		InputTokens:  r.record.InputTokens,
		OutputTokens: r.record.OutputTokens,
	}, errMsg)

	if recorded {
		if err := r.p.repo.UpdateExecution(ctx, r.record); err != nil {
			r.logger.Error().Err(err).Msg("Failed to persist final execution state")
			if runErr == nil {
				runErr = execerr.WithStage(err, StageFinalizeStatus)
				r.record.Status = StatusFailed
				r.record.ErrorDetail = runErr.Error()
			}
		}
		if doc, err := tr.Marshal(); err == nil {
			if err := r.p.repo.SaveTrace(ctx, r.record.ID, doc); err != nil {
				r.logger.Error().Err(err).Msg("Failed to persist execution trace")
			}
		}
	}

	switch r.record.Status {
	case StatusSucceeded:
		r.setState(StateCompleted)
		r.emit(Event{Type: EventCompleted, State: StateCompleted})
	case StatusCancelled:
		r.setState(StateCancelled)
		r.emit(Event{Type: EventFailed, State: StateCancelled, Error: r.record.ErrorDetail})
	default:
		r.setState(StateFailed)
		r.emit(Event{Type: EventFailed, State: StateFailed, Error: r.record.ErrorDetail})
	}

	if n := r.dropped.Load(); n > 0 {
		r.logger.Debug().Int64("dropped", n).Msg("Event stream consumer fell behind")
	}

	rec := *r.record
	r.handle.finish(&rec, runErr)
}

func (r *run) cancelErr(cause error) error {
	if cause != nil && execerr.KindOf(cause) == execerr.KindCancelled {
		return cause
	}
	return execerr.WithStage(execerr.New(execerr.KindCancelled, "execution cancelled"), StageSpawnEngine)
}

func (r *run) setState(s State) {
	if r.record.State.Terminal() {
		return
	}
	r.record.State = s
	r.emit(Event{Type: EventStateChanged, State: s})
}

// emit never blocks; a slow consumer loses events rather than stalling
// the stream loop. The buffer's last slot stays reserved for the terminal
// event so the channel never closes without one. Safe because the run
// goroutine is the only sender.
func (r *run) emit(ev Event) {
	ev.Timestamp = time.Now()
	terminal := ev.Type == EventCompleted || ev.Type == EventFailed
	if !terminal && len(r.handle.events) >= cap(r.handle.events)-1 {
		r.dropped.Add(1)
		return
	}
	select {
	case r.handle.events <- ev:
	default:
		r.dropped.Add(1)
	}
}

func (r *run) buildPrompt(persona *Persona) string {
	input := r.record.Request.Input
	if strings.TrimSpace(persona.SystemPrompt) == "" {
		return input
	}
	return persona.SystemPrompt + "\n\n" + input
}

func (p *Pipeline) optsFor(kind provider.Kind) provider.Options {
	if p.providerOpts == nil {
		return provider.Options{}
	}
	return p.providerOpts[kind]
}

func float64Ptr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64       { return &v }
