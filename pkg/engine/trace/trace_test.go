package trace

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestCollectorRootSpan(t *testing.T) {
	c := NewCollector("exec-1", "persona-1", "", testLogger())

	root, ok := c.Snapshot(c.RootSpanID())
	require.True(t, ok)
	assert.Equal(t, SpanExecution, root.Kind)
	assert.Empty(t, root.ParentSpanID)
	assert.Nil(t, root.EndMs)
}

func TestStartSpanDefaultsToRootParent(t *testing.T) {
	c := NewCollector("exec-1", "persona-1", "", testLogger())

	id := c.StartSpan("", SpanStage, "validate")
	span, ok := c.Snapshot(id)
	require.True(t, ok)
	assert.Equal(t, c.RootSpanID(), span.ParentSpanID)
	assert.Equal(t, "validate", span.Name)
}

func TestEndSpanRecordsAttributes(t *testing.T) {
	c := NewCollector("exec-1", "persona-1", "", testLogger())

	id := c.StartSpan("", SpanSpawn, "spawn claude_code")
	cost := 0.0123
	in := int64(1500)
	out := int64(800)
	c.EndSpan(id, EndAttrs{CostUSD: &cost, InputTokens: &in, OutputTokens: &out})

	span, ok := c.Snapshot(id)
	require.True(t, ok)
	require.NotNil(t, span.EndMs)
	require.NotNil(t, span.DurationMs)
	assert.Equal(t, 0.0123, *span.CostUSD)
	assert.Equal(t, int64(1500), *span.InputTokens)
	assert.Equal(t, int64(800), *span.OutputTokens)
}

func TestEndSpanIsIdempotent(t *testing.T) {
	c := NewCollector("exec-1", "persona-1", "", testLogger())

	id := c.StartSpan("", SpanStage, "stream_output")
	c.EndSpan(id, EndAttrs{Error: "first"})

	first, _ := c.Snapshot(id)

	// Second close must not change end time, duration, or attributes.
	cost := 9.99
	c.EndSpan(id, EndAttrs{Error: "second", CostUSD: &cost})

	second, _ := c.Snapshot(id)
	assert.Equal(t, first.EndMs, second.EndMs)
	assert.Equal(t, "first", second.Error)
	assert.Nil(t, second.CostUSD)
}

func TestEndSpanUnknownIDIsNoop(t *testing.T) {
	c := NewCollector("exec-1", "persona-1", "", testLogger())
	c.EndSpan("does-not-exist", EndAttrs{})
}

func TestFinalizeClosesOpenChildren(t *testing.T) {
	c := NewCollector("exec-1", "persona-1", "", testLogger())

	open := c.StartSpan("", SpanStream, "stream")
	closed := c.StartSpan(open, SpanToolCall, "ToolCall: Read")
	c.EndSpan(closed, EndAttrs{})

	tr := c.Finalize(Totals{CostUSD: 0.5, InputTokens: 100, OutputTokens: 50}, "")

	require.Len(t, tr.Spans, 3)
	for _, span := range tr.Spans {
		assert.NotNil(t, span.EndMs, "span %s should be closed", span.Name)
	}

	root := tr.Spans[0]
	assert.Equal(t, SpanExecution, root.Kind)
	assert.Equal(t, 0.5, *root.CostUSD)
	assert.Equal(t, int64(100), *root.InputTokens)
}

func TestFinalizeRecordsError(t *testing.T) {
	c := NewCollector("exec-1", "persona-1", "", testLogger())
	tr := c.Finalize(Totals{}, "all providers exhausted")
	assert.Equal(t, "all providers exhausted", tr.Spans[0].Error)
}

func TestChainTraceIDOnRoot(t *testing.T) {
	c := NewCollector("exec-1", "persona-1", "chain-42", testLogger())
	root, _ := c.Snapshot(c.RootSpanID())
	assert.Equal(t, "chain-42", root.Metadata["chain_trace_id"])
	assert.Equal(t, "chain-42", c.ChainTraceID())
}

func TestMarshalRoundTrip(t *testing.T) {
	c := NewCollector("exec-1", "persona-1", "chain-42", testLogger())
	id := c.StartSpan("", SpanSpawn, "spawn codex_cli")
	c.EndSpan(id, EndAttrs{Error: "rate limit exceeded"})
	tr := c.Finalize(Totals{}, "")

	data, err := tr.Marshal()
	require.NoError(t, err)

	parsed, err := UnmarshalTrace(data)
	require.NoError(t, err)
	assert.Equal(t, tr.TraceID, parsed.TraceID)
	assert.Equal(t, "chain-42", parsed.ChainTraceID)
	require.Len(t, parsed.Spans, 2)
	assert.Equal(t, "rate limit exceeded", parsed.Spans[1].Error)
}

func TestBuildChainViewOrdersByStart(t *testing.T) {
	early := ExecutionTrace{ExecutionID: "a", ChainTraceID: "chain-1", StartedAt: time.Now().Add(-time.Minute)}
	late := ExecutionTrace{ExecutionID: "b", ChainTraceID: "chain-1", StartedAt: time.Now()}
	other := ExecutionTrace{ExecutionID: "c", ChainTraceID: "chain-2", StartedAt: time.Now()}

	view := BuildChainView("chain-1", []ExecutionTrace{late, other, early})
	require.Len(t, view.Traces, 2)
	assert.Equal(t, "a", view.Traces[0].ExecutionID)
	assert.Equal(t, "b", view.Traces[1].ExecutionID)
}

func TestBuildChainViewEmptyIDMatchesNothing(t *testing.T) {
	tr := ExecutionTrace{ExecutionID: "a", ChainTraceID: ""}
	view := BuildChainView("", []ExecutionTrace{tr})
	assert.Empty(t, view.Traces)
}
