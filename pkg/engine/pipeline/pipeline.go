package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xkazm04/personas-sub002/internal/observability"
	"github.com/xkazm04/personas-sub002/pkg/engine/execerr"
	"github.com/xkazm04/personas-sub002/pkg/engine/failover"
	"github.com/xkazm04/personas-sub002/pkg/engine/provider"
)

// Stage names attached to errors and trace spans.
const (
	StageInitiate       = "Initiate"
	StageValidate       = "Validate"
	StageCreateRecord   = "CreateRecord"
	StageSpawnEngine    = "SpawnEngine"
	StageStreamOutput   = "StreamOutput"
	StageFinalizeStatus = "FinalizeStatus"
	StageComplete       = "Complete"
)

// State is the execution record's position in the pipeline.
type State string

const (
	StatePending    State = "pending"
	StateValidating State = "validating"
	StateRecording  State = "recording"
	StateSpawning   State = "spawning"
	StateStreaming  State = "streaming"
	StateFinalizing State = "finalizing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Final statuses recorded on the execution record.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Request describes one persona execution. Immutable once submitted.
type Request struct {
	PersonaID     string `json:"persona_id"`
	TriggerID     string `json:"trigger_id,omitempty"`
	Input         string `json:"input"`
	ChainTraceID  string `json:"chain_trace_id,omitempty"`
	ModelOverride string `json:"model_override,omitempty"`
	WorkingDir    string `json:"working_dir,omitempty"`
}

// Persona is the resolved execution profile for a persona id.
type Persona struct {
	ID            string
	Name          string
	Provider      provider.Kind
	Model         string
	SystemPrompt  string
	MaxConcurrent int
	Timeout       time.Duration
}

// ExecutionRecord tracks one run from submission to terminal status. The
// pipeline owns it for the run's lifetime; the repository sees it at
// creation and finalization.
type ExecutionRecord struct {
	ID           string        `json:"id"`
	Request      Request       `json:"request"`
	State        State         `json:"state"`
	Status       string        `json:"status,omitempty"`
	Provider     provider.Kind `json:"provider,omitempty"`
	Model        string        `json:"model,omitempty"`
	CostUSD      float64       `json:"cost_usd"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	ErrorDetail  string        `json:"error_detail,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
}

// EventType classifies events on a handle's stream.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventLine         EventType = "line"
	EventFailed       EventType = "failed"
	EventCompleted    EventType = "completed"
)

// Event is one item on a handle's live stream.
type Event struct {
	Type      EventType            `json:"type"`
	State     State                `json:"state,omitempty"`
	Line      *provider.StreamLine `json:"line,omitempty"`
	Provider  provider.Kind        `json:"provider,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Repository is the persistence collaborator. Implementations must be safe
// for concurrent use.
type Repository interface {
	GetPersona(ctx context.Context, id string) (*Persona, error)
	CreateExecution(ctx context.Context, rec *ExecutionRecord) error
	UpdateExecution(ctx context.Context, rec *ExecutionRecord) error
	SaveTrace(ctx context.Context, executionID string, doc []byte) error
}

const (
	defaultTimeout  = 10 * time.Minute
	eventBufferSize = 256
)

// ErrNoCapacity marks a run refused because the persona is already at its
// concurrent execution cap. Schedulers treat it as retry-next-tick.
var ErrNoCapacity = execerr.WithStage(execerr.New(execerr.KindConfig, "persona at max concurrent executions"), StageValidate)

// Config holds pipeline configuration
type Config struct {
	Repository   Repository
	Failover     *failover.Manager
	Launcher     provider.Launcher
	ProviderOpts map[provider.Kind]provider.Options
	Logger       zerolog.Logger
	// DefaultTimeout bounds a single candidate attempt when the persona
	// does not set one. Zero means 10 minutes.
	DefaultTimeout time.Duration
}

// Pipeline drives executions through the staged state machine.
type Pipeline struct {
	repo           Repository
	failover       *failover.Manager
	launcher       provider.Launcher
	providerOpts   map[provider.Kind]provider.Options
	defaultTimeout time.Duration
	logger         zerolog.Logger

	mu         sync.Mutex
	active     map[string]*run
	perPersona map[string]int
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	observability.EnsureRegistered()

	if cfg.Repository == nil {
		return nil, execerr.New(execerr.KindConfig, "repository is required")
	}
	if cfg.Failover == nil {
		return nil, execerr.New(execerr.KindConfig, "failover manager is required")
	}
	if cfg.Launcher == nil {
		cfg.Launcher = &provider.CLILauncher{Logger: cfg.Logger}
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	return &Pipeline{
		repo:           cfg.Repository,
		failover:       cfg.Failover,
		launcher:       cfg.Launcher,
		providerOpts:   cfg.ProviderOpts,
		defaultTimeout: cfg.DefaultTimeout,
		logger:         cfg.Logger.With().Str("component", "pipeline").Logger(),
		active:         make(map[string]*run),
		perPersona:     make(map[string]int),
	}, nil
}

// Submit validates the request shape and starts the run asynchronously.
// A malformed request fails here, before any record exists. The returned
// handle exposes the live event stream and the final record.
func (p *Pipeline) Submit(ctx context.Context, req Request) (*Handle, error) {
	if strings.TrimSpace(req.PersonaID) == "" {
		return nil, execerr.WithStage(execerr.New(execerr.KindValidation, "persona id is required"), StageInitiate)
	}
	if strings.TrimSpace(req.Input) == "" {
		return nil, execerr.WithStage(execerr.New(execerr.KindValidation, "input is required"), StageInitiate)
	}

	r := newRun(p, req)

	p.mu.Lock()
	p.active[r.record.ID] = r
	p.perPersona[req.PersonaID]++
	observability.SetActiveExecutions(len(p.active))
	p.mu.Unlock()

	go r.execute(ctx)
	return r.handle, nil
}

// Cancel requests cooperative cancellation of a running execution. Returns
// false when the id is unknown or already finished.
func (p *Pipeline) Cancel(executionID string) bool {
	p.mu.Lock()
	r := p.active[executionID]
	p.mu.Unlock()
	if r == nil {
		return false
	}
	r.requestCancel()
	return true
}

// ActiveCount returns the number of in-flight executions.
func (p *Pipeline) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *Pipeline) release(r *run) {
	p.mu.Lock()
	delete(p.active, r.record.ID)
	if p.perPersona[r.record.Request.PersonaID] > 0 {
		p.perPersona[r.record.Request.PersonaID]--
	}
	observability.SetActiveExecutions(len(p.active))
	p.mu.Unlock()
}

func (p *Pipeline) personaLoad(personaID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.perPersona[personaID]
}

func newExecutionID() string {
	return uuid.New().String()
}

// Handle is the caller's view of a submitted run.
type Handle struct {
	ID     string
	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	record *ExecutionRecord
	err    error
}

// Events returns the live event stream. The channel closes after the
// terminal event.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Wait blocks until the run reaches a terminal state or ctx is done. The
// returned record reflects the terminal state; err carries the run's
// failure if any.
func (h *Handle) Wait(ctx context.Context) (*ExecutionRecord, error) {
	select {
	case <-ctx.Done():
		return nil, execerr.Wrap(execerr.KindCancelled, ctx.Err())
	case <-h.done:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record, h.err
}

func (h *Handle) finish(rec *ExecutionRecord, err error) {
	h.mu.Lock()
	h.record = rec
	h.err = err
	h.mu.Unlock()
	close(h.done)
	close(h.events)
}
