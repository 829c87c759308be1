package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiBuildArgs(t *testing.T) {
	adapter, err := Resolve(KindGeminiCLI, Options{})
	require.NoError(t, err)

	args := adapter.BuildArgs(SpawnRequest{Prompt: "check the feed"})
	assert.Equal(t, "gemini", args.Command)
	require.GreaterOrEqual(t, len(args.Args), 2)
	assert.Equal(t, "-p", args.Args[0])
	assert.Equal(t, "check the feed", args.Args[1])
	assert.Contains(t, args.Args, "--yolo")
	assert.Contains(t, args.Args, "gemini-2.5-pro")
}

func TestGeminiBuildArgsCustomBinary(t *testing.T) {
	adapter, _ := Resolve(KindGeminiCLI, Options{Binary: "/opt/bin/gemini", DefaultModel: "gemini-2.5-flash"})
	args := adapter.BuildArgs(SpawnRequest{Prompt: "x"})
	assert.Equal(t, "/opt/bin/gemini", args.Command)
	assert.Contains(t, args.Args, "gemini-2.5-flash")
}

func TestGeminiParseInit(t *testing.T) {
	adapter, _ := Resolve(KindGeminiCLI, Options{})
	parsed := adapter.ParseLine(`{"type":"init","model":"gemini-2.5-pro","session_id":"g-1"}`)
	assert.Equal(t, LineSystemInit, parsed.Type)
	assert.Equal(t, "gemini-2.5-pro", parsed.Model)
}

func TestGeminiParseContent(t *testing.T) {
	adapter, _ := Resolve(KindGeminiCLI, Options{})
	parsed := adapter.ParseLine(`{"type":"content","text":"analyzing"}`)
	assert.Equal(t, LineAssistantText, parsed.Type)
	assert.Equal(t, "analyzing", parsed.Text)
}

func TestGeminiParseToolCall(t *testing.T) {
	adapter, _ := Resolve(KindGeminiCLI, Options{})
	parsed := adapter.ParseLine(`{"type":"tool_call","tool_name":"web_fetch","args":{"url":"https://example.com"}}`)
	assert.Equal(t, LineToolUse, parsed.Type)
	assert.Equal(t, "web_fetch", parsed.ToolName)
}

func TestGeminiParseResultWithStats(t *testing.T) {
	adapter, _ := Resolve(KindGeminiCLI, Options{})
	parsed := adapter.ParseLine(`{"type":"result","model":"gemini-2.5-pro","stats":{"input_tokens":300,"output_tokens":120,"cost_usd":0.004}}`)
	require.Equal(t, LineResult, parsed.Type)
	assert.Equal(t, int64(300), *parsed.InputTokens)
	assert.Equal(t, 0.004, *parsed.CostUSD)
}

func TestGeminiParsePlainLine(t *testing.T) {
	adapter, _ := Resolve(KindGeminiCLI, Options{})
	parsed := adapter.ParseLine("Loaded cached credentials.")
	assert.Equal(t, LineUnknown, parsed.Type)
	assert.Equal(t, "Loaded cached credentials.", parsed.Display)
}

func TestResolveUnknownKind(t *testing.T) {
	_, err := Resolve(Kind("mystery"), Options{})
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindCodexCLI, ParseKind("codex_cli"))
	assert.Equal(t, KindGeminiCLI, ParseKind("gemini_cli"))
	assert.Equal(t, KindClaudeCode, ParseKind("claude_code"))
	assert.Equal(t, KindClaudeCode, ParseKind("anything-else"))
}

func TestCandidateKey(t *testing.T) {
	a := Candidate{Kind: KindClaudeCode, Model: "claude-sonnet-4-20250514"}
	b := Candidate{Kind: KindClaudeCode, Model: "claude-opus-4-20250514"}
	assert.NotEqual(t, a.Key(), b.Key())
}
