package failover

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xkazm04/personas-sub002/internal/observability"
	"github.com/xkazm04/personas-sub002/pkg/engine/provider"
)

// Outcome is the result of one candidate attempt, reported back by the pipeline.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetryable Outcome = "retryable_failure"
	OutcomeFatal     Outcome = "fatal_failure"
)

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 60 * time.Second
)

// CircuitSnapshot is a read-only view of one provider's circuit, for status
// reporting.
type CircuitSnapshot struct {
	Provider            provider.Kind `json:"provider"`
	Open                bool          `json:"open"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	OpenedAt            *time.Time    `json:"opened_at,omitempty"`
}

type circuit struct {
	consecutiveFailures int
	open                bool
	openedAt            time.Time
	probeInFlight       bool
}

// Config holds failover manager configuration
type Config struct {
	// FailureThreshold is the number of consecutive retryable failures that
	// opens a provider's circuit. Zero means the default of 5.
	FailureThreshold int
	// Cooldown is how long an open circuit excludes its provider before a
	// half-open probe is allowed. Zero means the default of 60s.
	Cooldown time.Duration
	Logger   zerolog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager owns per-provider circuit state and decides which candidate the
// pipeline should attempt next. Circuit state is shared across concurrent
// runs; all reads and writes happen under the manager's lock.
type Manager struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	logger    zerolog.Logger
	circuits  map[provider.Kind]*circuit
}

// NewManager creates a failover manager with closed circuits for all providers.
func NewManager(cfg Config) *Manager {
	observability.EnsureRegistered()

	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.Cooldown,
		now:       cfg.Now,
		logger:    cfg.Logger.With().Str("component", "failover").Logger(),
		circuits:  make(map[provider.Kind]*circuit),
	}
}

// ChooseNext returns the first candidate, in order, that has not been
// attempted this run and whose provider circuit admits traffic. An open
// circuit whose cooldown has elapsed admits exactly one probe candidate;
// further candidates for that provider stay excluded until the probe's
// outcome is recorded. Returns false when every candidate is attempted,
// open, or awaiting a probe verdict.
func (m *Manager) ChooseNext(candidates []provider.Candidate, attempted map[string]bool) (provider.Candidate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cand := range candidates {
		if attempted[cand.Key()] {
			continue
		}
		c := m.circuits[cand.Kind]
		if c == nil || !c.open {
			return cand, true
		}
		if c.probeInFlight {
			continue
		}
		if m.now().Sub(c.openedAt) < m.cooldown {
			continue
		}
		// Cooldown elapsed: half-open, admit one probe.
		c.probeInFlight = true
		m.logger.Info().
			Str("provider", string(cand.Kind)).
			Str("model", cand.Model).
			Msg("Circuit half-open, probing provider")
		return cand, true
	}
	return provider.Candidate{}, false
}

// RecordOutcome updates circuit state for the candidate's provider. Success
// closes the circuit and zeroes the failure counter. A retryable failure
// increments the counter and opens the circuit at the threshold; a failed
// probe re-opens it and restarts the cooldown. Fatal failures leave the
// circuit untouched, they abort the run rather than indict the provider.
func (m *Manager) RecordOutcome(cand provider.Candidate, outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	observability.RecordFailoverOutcome(string(cand.Kind), string(outcome))

	c := m.circuits[cand.Kind]
	if c == nil {
		c = &circuit{}
		m.circuits[cand.Kind] = c
	}

	switch outcome {
	case OutcomeSuccess:
		c.consecutiveFailures = 0
		c.open = false
		c.probeInFlight = false
		observability.SetCircuitOpen(string(cand.Kind), false)

	case OutcomeRetryable:
		c.consecutiveFailures++
		wasProbe := c.probeInFlight
		c.probeInFlight = false
		if wasProbe || c.consecutiveFailures >= m.threshold {
			c.open = true
			c.openedAt = m.now()
			observability.SetCircuitOpen(string(cand.Kind), true)
			m.logger.Warn().
				Str("provider", string(cand.Kind)).
				Int("consecutive_failures", c.consecutiveFailures).
				Dur("cooldown", m.cooldown).
				Msg("Provider circuit opened")
		}

	case OutcomeFatal:
		// Consume the probe slot without a circuit verdict so the next
		// ChooseNext may probe again.
		c.probeInFlight = false
	}
}

// ReleaseProbe returns an unjudged probe slot for the candidate's provider.
// Called when an attempt ends without a verdict, such as cancellation, so
// the next ChooseNext may probe again instead of waiting forever.
func (m *Manager) ReleaseProbe(cand provider.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.circuits[cand.Kind]; c != nil {
		c.probeInFlight = false
	}
}

// CircuitOpen reports whether the provider's circuit is currently open,
// ignoring cooldown expiry.
func (m *Manager) CircuitOpen(kind provider.Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.circuits[kind]
	return c != nil && c.open
}

// Snapshot returns the current state of every circuit the manager has seen.
func (m *Manager) Snapshot() []CircuitSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]CircuitSnapshot, 0, len(m.circuits))
	for kind, c := range m.circuits {
		snap := CircuitSnapshot{
			Provider:            kind,
			Open:                c.open,
			ConsecutiveFailures: c.consecutiveFailures,
		}
		if c.open {
			openedAt := c.openedAt
			snap.OpenedAt = &openedAt
		}
		out = append(out, snap)
	}
	return out
}

// Reset closes the provider's circuit and clears its counters.
func (m *Manager) Reset(kind provider.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.circuits, kind)
	observability.SetCircuitOpen(string(kind), false)
}
