package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xkazm04/personas-sub002/internal/observability"
	"github.com/xkazm04/personas-sub002/pkg/engine/pipeline"
	"github.com/xkazm04/personas-sub002/pkg/engine/schedule"
)

// Loop names, used in stats, logs and metrics labels.
const (
	LoopTrigger  = "trigger"
	LoopRotation = "rotation"
)

const (
	defaultTriggerInterval  = 5 * time.Second
	defaultRotationInterval = 60 * time.Second
)

// Trigger is a due scheduled run, as listed by the source.
type Trigger struct {
	ID            string
	PersonaID     string
	Input         string
	ChainTraceID  string
	ModelOverride string
	Schedule      schedule.Schedule
}

// RotationCheck is a due credential rotation check.
type RotationCheck struct {
	ID       string
	Provider string
}

// Source lists due work and advances its bookkeeping. Implemented by the
// repository.
type Source interface {
	ListDueTriggers(ctx context.Context, now time.Time) ([]Trigger, error)
	// MarkTriggered advances the trigger's next-run time. Returns false when
	// the trigger vanished between list and mark.
	MarkTriggered(ctx context.Context, id string, next time.Time) (bool, error)
	ListDueRotationChecks(ctx context.Context, now time.Time) ([]RotationCheck, error)
	MarkRotationChecked(ctx context.Context, id string, checked time.Time) error
}

// Runner submits executions. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Submit(ctx context.Context, req pipeline.Request) (*pipeline.Handle, error)
}

// LoopStats is one loop's counter snapshot.
type LoopStats struct {
	Ticks    int64 `json:"ticks"`
	Enqueued int64 `json:"enqueued"`
	Errors   int64 `json:"errors"`
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Running   bool                 `json:"running"`
	StartedAt *time.Time           `json:"started_at,omitempty"`
	Loops     map[string]LoopStats `json:"loops"`
}

// Config holds scheduler configuration
type Config struct {
	Source           Source
	Runner           Runner
	Logger           zerolog.Logger
	TriggerInterval  time.Duration
	RotationInterval time.Duration
}

// Scheduler owns the background loops. One instance per process; all
// mutable state lives behind its mutex so tests can use fresh instances.
type Scheduler struct {
	source           Source
	runner           Runner
	logger           zerolog.Logger
	triggerInterval  time.Duration
	rotationInterval time.Duration

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	loops     map[string]*LoopStats
}

// New creates a scheduler.
func New(cfg Config) (*Scheduler, error) {
	observability.EnsureRegistered()

	if cfg.Source == nil {
		return nil, errors.New("source is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if cfg.TriggerInterval <= 0 {
		cfg.TriggerInterval = defaultTriggerInterval
	}
	if cfg.RotationInterval <= 0 {
		cfg.RotationInterval = defaultRotationInterval
	}
	return &Scheduler{
		source:           cfg.Source,
		runner:           cfg.Runner,
		logger:           cfg.Logger.With().Str("component", "scheduler").Logger(),
		triggerInterval:  cfg.TriggerInterval,
		rotationInterval: cfg.RotationInterval,
		loops:            make(map[string]*LoopStats),
	}, nil
}

// Start launches the background loops. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Debug().Msg("Scheduler already running")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.startedAt = time.Now()
	s.loops[LoopTrigger] = &LoopStats{}
	s.loops[LoopRotation] = &LoopStats{}

	s.wg.Add(2)
	go s.loop(loopCtx, LoopTrigger, s.triggerInterval, s.triggerTick)
	go s.loop(loopCtx, LoopRotation, s.rotationInterval, s.rotationTick)

	s.logger.Info().
		Dur("trigger_interval", s.triggerInterval).
		Dur("rotation_interval", s.rotationInterval).
		Msg("Scheduler started")
}

// Stop cancels the loops and waits for them to acknowledge at a tick
// boundary. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

// Stats returns a snapshot of the loop counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Stats{Running: s.running, Loops: make(map[string]LoopStats, len(s.loops))}
	if s.running {
		startedAt := s.startedAt
		out.StartedAt = &startedAt
	}
	for name, ls := range s.loops {
		out.Loops[name] = *ls
	}
	return out
}

// loop runs fn once per interval until the context is cancelled. Tick
// errors are counted, never propagated; a broken source must not kill
// the loop.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) (int, int)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Str("loop", name).Msg("Loop exited")
			return
		case <-ticker.C:
			observability.RecordSchedulerTick(name)
			enqueued, errs := fn(ctx)
			s.count(name, enqueued, errs)
		}
	}
}

func (s *Scheduler) count(name string, enqueued, errs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.loops[name]
	if ls == nil {
		return
	}
	ls.Ticks++
	ls.Enqueued += int64(enqueued)
	ls.Errors += int64(errs)
}

// triggerTick fires every due trigger: submit the run, then advance the
// trigger's next-run time. A capacity refusal leaves the trigger due so
// the next tick retries it.
func (s *Scheduler) triggerTick(ctx context.Context) (int, int) {
	now := time.Now()
	due, err := s.source.ListDueTriggers(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list due triggers")
		return 0, 1
	}

	enqueued, errs := 0, 0
	for _, trg := range due {
		if ctx.Err() != nil {
			return enqueued, errs
		}

		_, submitErr := s.runner.Submit(ctx, pipeline.Request{
			PersonaID:     trg.PersonaID,
			TriggerID:     trg.ID,
			Input:         trg.Input,
			ChainTraceID:  trg.ChainTraceID,
			ModelOverride: trg.ModelOverride,
		})
		if errors.Is(submitErr, pipeline.ErrNoCapacity) {
			s.logger.Debug().Str("trigger_id", trg.ID).Msg("Persona at capacity, retrying next tick")
			continue
		}

		next, calcErr := s.nextRun(trg, now)
		if calcErr != nil {
			s.logger.Error().Err(calcErr).Str("trigger_id", trg.ID).Msg("Failed to compute next run")
			errs++
			continue
		}
		found, markErr := s.source.MarkTriggered(ctx, trg.ID, next)
		if markErr != nil {
			s.logger.Error().Err(markErr).Str("trigger_id", trg.ID).Msg("Failed to mark trigger")
			errs++
			continue
		}
		if !found {
			s.logger.Warn().Str("trigger_id", trg.ID).Msg("Trigger vanished before mark")
		}

		if submitErr != nil {
			s.logger.Error().Err(submitErr).Str("trigger_id", trg.ID).Msg("Trigger submit failed")
			observability.RecordTriggerAudit(ctx, trg.ID, "failure", map[string]interface{}{"error": submitErr.Error()})
			errs++
			continue
		}
		observability.RecordSchedulerEnqueued(LoopTrigger)
		observability.RecordTriggerAudit(ctx, trg.ID, "success", map[string]interface{}{"persona_id": trg.PersonaID})
		enqueued++
	}
	if errs > 0 {
		for i := 0; i < errs; i++ {
			observability.RecordSchedulerError(LoopTrigger)
		}
	}
	return enqueued, errs
}

// nextRun computes the trigger's next due time. A one-shot trigger gets a
// far-future mark so it never fires again.
func (s *Scheduler) nextRun(trg Trigger, now time.Time) (time.Time, error) {
	if trg.Schedule.Kind == schedule.KindOnce {
		return now.AddDate(100, 0, 0), nil
	}
	ms, err := schedule.NextRunFrom(trg.Schedule, now)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// rotationTick marks due credential rotation checks. The actual credential
// exchange lives outside the engine; this loop keeps the due-times moving
// and the audit trail populated.
func (s *Scheduler) rotationTick(ctx context.Context) (int, int) {
	now := time.Now()
	due, err := s.source.ListDueRotationChecks(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list due rotation checks")
		observability.RecordSchedulerError(LoopRotation)
		return 0, 1
	}

	checked, errs := 0, 0
	for _, rc := range due {
		if err := s.source.MarkRotationChecked(ctx, rc.ID, now); err != nil {
			s.logger.Error().Err(err).Str("check_id", rc.ID).Msg("Failed to mark rotation check")
			observability.RecordSchedulerError(LoopRotation)
			errs++
			continue
		}
		observability.RecordRotationAudit(ctx, rc.Provider, "success", map[string]interface{}{"check_id": rc.ID})
		checked++
	}
	return checked, errs
}
