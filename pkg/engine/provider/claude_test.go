package provider

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkazm04/personas-sub002/pkg/engine/execerr"
)

func TestClaudeBuildArgsInjectsDefaultModel(t *testing.T) {
	adapter, err := Resolve(KindClaudeCode, Options{})
	require.NoError(t, err)

	args := adapter.BuildArgs(SpawnRequest{Prompt: "hello"})
	assert.Equal(t, "claude", args.Command)
	assert.Contains(t, args.Args, "stream-json")
	assert.Contains(t, args.Args, "--model")
	assert.Contains(t, args.Args, "claude-sonnet-4-20250514")
}

func TestClaudeBuildArgsModelOverride(t *testing.T) {
	adapter, _ := Resolve(KindClaudeCode, Options{})
	args := adapter.BuildArgs(SpawnRequest{Model: "claude-opus-4-20250514"})
	assert.Contains(t, args.Args, "claude-opus-4-20250514")
	assert.NotContains(t, args.Args, "claude-sonnet-4-20250514")
}

func TestClaudeParseSystemInit(t *testing.T) {
	adapter, _ := Resolve(KindClaudeCode, Options{})
	line := `{"type":"system","subtype":"init","model":"claude-sonnet-4-20250514","session_id":"sess-123"}`

	parsed := adapter.ParseLine(line)
	assert.Equal(t, LineSystemInit, parsed.Type)
	assert.Equal(t, "claude-sonnet-4-20250514", parsed.Model)
	assert.Equal(t, "sess-123", parsed.SessionID)
	assert.NotEmpty(t, parsed.Display)
}

func TestClaudeParseAssistantText(t *testing.T) {
	adapter, _ := Resolve(KindClaudeCode, Options{})
	line := `{"type":"assistant","message":{"content":[{"type":"text","text":"working on it"}]}}`

	parsed := adapter.ParseLine(line)
	assert.Equal(t, LineAssistantText, parsed.Type)
	assert.Equal(t, "working on it", parsed.Text)
}

func TestClaudeParseToolUse(t *testing.T) {
	adapter, _ := Resolve(KindClaudeCode, Options{})
	line := `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":{"path":"main.go"}}]}}`

	parsed := adapter.ParseLine(line)
	assert.Equal(t, LineToolUse, parsed.Type)
	assert.Equal(t, "Read", parsed.ToolName)
	assert.Contains(t, parsed.Display, "Read")
}

func TestClaudeToolInputPreviewKeepsValidUTF8(t *testing.T) {
	adapter, _ := Resolve(KindClaudeCode, Options{})
	// Large multi-byte payload so the preview cut lands inside a rune
	// unless truncation respects boundaries.
	payload := strings.Repeat("ř", 400)
	line := `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Write","input":{"text":"` + payload + `"}}]}}`

	parsed := adapter.ParseLine(line)
	require.Equal(t, LineToolUse, parsed.Type)
	assert.LessOrEqual(t, len(parsed.InputPreview), 500+len("..."))
	assert.True(t, utf8.ValidString(parsed.InputPreview))
}

func TestTruncateRuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes per rune

	cut := truncate(s, 5)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, strings.Repeat("é", 2)+"...", cut)

	assert.Equal(t, s, truncate(s, 20))
}

func TestClaudeParseResult(t *testing.T) {
	adapter, _ := Resolve(KindClaudeCode, Options{})
	line := `{"type":"result","duration_ms":5200,"total_cost_usd":0.0123,"total_input_tokens":1500,"total_output_tokens":800}`

	parsed := adapter.ParseLine(line)
	require.Equal(t, LineResult, parsed.Type)
	assert.Equal(t, 0.0123, *parsed.CostUSD)
	assert.Equal(t, int64(1500), *parsed.InputTokens)
	assert.Equal(t, int64(800), *parsed.OutputTokens)
}

func TestClaudeParseErrorResult(t *testing.T) {
	adapter, _ := Resolve(KindClaudeCode, Options{})
	line := `{"type":"result","is_error":true,"result":"rate limit exceeded"}`

	parsed := adapter.ParseLine(line)
	assert.Equal(t, LineError, parsed.Type)
	assert.Equal(t, "rate limit exceeded", parsed.Message)
}

func TestClaudeParseNonJSONLine(t *testing.T) {
	adapter, _ := Resolve(KindClaudeCode, Options{})
	parsed := adapter.ParseLine("plain verbose output")
	assert.Equal(t, LineUnknown, parsed.Type)
	assert.Equal(t, "plain verbose output", parsed.Display)
}

func TestClaudeInterpretFailure(t *testing.T) {
	adapter, _ := Resolve(KindClaudeCode, Options{})

	assert.NoError(t, adapter.InterpretFailure(0, ""))

	err := adapter.InterpretFailure(1, "rate limit exceeded")
	require.Error(t, err)
	assert.True(t, execerr.IsRetryable(err))

	err = adapter.InterpretFailure(1, "invalid api key")
	require.Error(t, err)
	assert.False(t, execerr.IsRetryable(err))
}
