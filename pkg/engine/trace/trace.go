package trace

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// SpanKind describes what kind of work a span covers.
type SpanKind string

const (
	// SpanExecution is the root span covering the entire run.
	SpanExecution SpanKind = "execution"
	// SpanStage covers one pipeline stage boundary.
	SpanStage SpanKind = "stage"
	// SpanSpawn covers a single provider spawn attempt.
	SpanSpawn SpanKind = "spawn"
	// SpanStream covers output stream processing.
	SpanStream SpanKind = "stream"
	// SpanToolCall covers an individual tool call inside the stream.
	SpanToolCall SpanKind = "tool_call"
)

// Span is a single timed unit of work in the execution trace tree.
// Times are millisecond offsets from the trace epoch so serialized
// traces stay compact and renderable without timezone handling.
type Span struct {
	SpanID       string                 `json:"span_id"`
	ParentSpanID string                 `json:"parent_span_id,omitempty"`
	Kind         SpanKind               `json:"kind"`
	Name         string                 `json:"name"`
	StartMs      int64                  `json:"start_ms"`
	EndMs        *int64                 `json:"end_ms,omitempty"`
	DurationMs   *int64                 `json:"duration_ms,omitempty"`
	CostUSD      *float64               `json:"cost_usd,omitempty"`
	InputTokens  *int64                 `json:"input_tokens,omitempty"`
	OutputTokens *int64                 `json:"output_tokens,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Span) closed() bool {
	return s.EndMs != nil
}

// ExecutionTrace is the finalized span tree for one execution. Spans are
// stored flat; the tree is reconstructed via ParentSpanID.
type ExecutionTrace struct {
	TraceID      string    `json:"trace_id"`
	ExecutionID  string    `json:"execution_id"`
	PersonaID    string    `json:"persona_id"`
	ChainTraceID string    `json:"chain_trace_id,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	Spans        []Span    `json:"spans"`
	TotalMs      int64     `json:"total_duration_ms"`
}

// Marshal serializes the trace for persistence.
func (t *ExecutionTrace) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalTrace parses a persisted trace document.
func UnmarshalTrace(data []byte) (*ExecutionTrace, error) {
	var t ExecutionTrace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// EndAttrs carries the attributes recorded when a span closes.
type EndAttrs struct {
	Error        string
	CostUSD      *float64
	InputTokens  *int64
	OutputTokens *int64
	Metadata     map[string]interface{}
}

// Totals carries the run-level totals stamped onto the root span.
type Totals struct {
	CostUSD      float64
	InputTokens  int64
	OutputTokens int64
}

// Collector accumulates spans for one execution. It is safe for use from
// multiple goroutines; spans are owned by the collector and handed out
// only as copies. The arena is append-only while spans are open, and a
// span's end time is set exactly once.
type Collector struct {
	traceID      string
	executionID  string
	personaID    string
	chainTraceID string
	startedAt    time.Time
	rootSpanID   string
	logger       zerolog.Logger

	mu    sync.Mutex
	spans []Span
	index map[string]int
}

// NewCollector opens a trace with its root span. chainTraceID may be
// empty; when set it links this execution into a multi-run chain view.
func NewCollector(executionID, personaID, chainTraceID string, logger zerolog.Logger) *Collector {
	rootID := newSpanID()
	c := &Collector{
		traceID:      uuid.New().String(),
		executionID:  executionID,
		personaID:    personaID,
		chainTraceID: chainTraceID,
		startedAt:    time.Now(),
		rootSpanID:   rootID,
		logger:       logger,
		index:        map[string]int{rootID: 0},
	}

	root := Span{
		SpanID:  rootID,
		Kind:    SpanExecution,
		Name:    "execution",
		StartMs: 0,
	}
	if chainTraceID != "" {
		root.Metadata = map[string]interface{}{"chain_trace_id": chainTraceID}
	}
	c.spans = []Span{root}
	return c
}

// TraceID returns the trace identifier.
func (c *Collector) TraceID() string {
	return c.traceID
}

// RootSpanID returns the root span id, the default parent for top-level
// child spans.
func (c *Collector) RootSpanID() string {
	return c.rootSpanID
}

// ChainTraceID returns the chain correlation id, empty when this run is
// not part of a chain.
func (c *Collector) ChainTraceID() string {
	return c.chainTraceID
}

// StartSpan opens a child span and returns its id. An empty parent
// attaches the span to the root.
func (c *Collector) StartSpan(parentID string, kind SpanKind, name string) string {
	if parentID == "" {
		parentID = c.rootSpanID
	}
	id := newSpanID()
	span := Span{
		SpanID:       id,
		ParentSpanID: parentID,
		Kind:         kind,
		Name:         name,
		StartMs:      c.elapsedMs(),
	}

	c.mu.Lock()
	c.index[id] = len(c.spans)
	c.spans = append(c.spans, span)
	c.mu.Unlock()
	return id
}

// EndSpan closes a span and records its attributes. Closing an already
// closed span is a no-op logged as a warning, so cleanup paths can call
// it unconditionally.
func (c *Collector) EndSpan(spanID string, attrs EndAttrs) {
	end := c.elapsedMs()

	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[spanID]
	if !ok {
		c.logger.Warn().Str("span_id", spanID).Msg("EndSpan on unknown span")
		return
	}
	span := &c.spans[i]
	if span.closed() {
		c.logger.Warn().
			Str("span_id", spanID).
			Str("name", span.Name).
			Msg("EndSpan on already closed span, ignoring")
		return
	}

	dur := end - span.StartMs
	span.EndMs = &end
	span.DurationMs = &dur
	span.Error = attrs.Error
	if attrs.CostUSD != nil {
		span.CostUSD = attrs.CostUSD
	}
	if attrs.InputTokens != nil {
		span.InputTokens = attrs.InputTokens
	}
	if attrs.OutputTokens != nil {
		span.OutputTokens = attrs.OutputTokens
	}
	if attrs.Metadata != nil {
		if span.Metadata == nil {
			span.Metadata = attrs.Metadata
		} else {
			for k, v := range attrs.Metadata {
				span.Metadata[k] = v
			}
		}
	}
}

// Snapshot returns a copy of a span for live event emission.
func (c *Collector) Snapshot(spanID string) (Span, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[spanID]
	if !ok {
		return Span{}, false
	}
	return c.spans[i], true
}

// Finalize closes any still-open child spans, then the root span with the
// run totals, and returns the completed trace. Children close with their
// parent so no open span outlives the root.
func (c *Collector) Finalize(totals Totals, errMsg string) *ExecutionTrace {
	end := c.elapsedMs()

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.spans {
		span := &c.spans[i]
		if span.SpanID == c.rootSpanID || span.closed() {
			continue
		}
		e := end
		dur := e - span.StartMs
		span.EndMs = &e
		span.DurationMs = &dur
	}

	rootIdx := c.index[c.rootSpanID]
	root := &c.spans[rootIdx]
	if !root.closed() {
		e := end
		root.EndMs = &e
		root.DurationMs = &e
		root.CostUSD = &totals.CostUSD
		root.InputTokens = &totals.InputTokens
		root.OutputTokens = &totals.OutputTokens
		root.Error = errMsg
	}

	spans := make([]Span, len(c.spans))
	copy(spans, c.spans)

	return &ExecutionTrace{
		TraceID:      c.traceID,
		ExecutionID:  c.executionID,
		PersonaID:    c.personaID,
		ChainTraceID: c.chainTraceID,
		StartedAt:    c.startedAt,
		Spans:        spans,
		TotalMs:      end,
	}
}

func (c *Collector) elapsedMs() int64 {
	return time.Since(c.startedAt).Milliseconds()
}

func newSpanID() string {
	id, err := gonanoid.New()
	if err != nil {
		// nanoid only fails when the system RNG does
		return uuid.New().String()
	}
	return id
}
