package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodexBuildArgsEmbedsPrompt(t *testing.T) {
	adapter, err := Resolve(KindCodexCLI, Options{})
	require.NoError(t, err)

	args := adapter.BuildArgs(SpawnRequest{Prompt: "summarize the repo"})
	assert.Equal(t, "codex", args.Command)
	require.GreaterOrEqual(t, len(args.Args), 4)
	assert.Equal(t, "exec", args.Args[0])
	assert.Equal(t, "summarize the repo", args.Args[1])
	assert.Contains(t, args.Args, "--json")
	assert.Contains(t, args.Args, "--full-auto")
}

func TestCodexBuildArgsModelFlagOnlyWhenSet(t *testing.T) {
	adapter, _ := Resolve(KindCodexCLI, Options{})

	args := adapter.BuildArgs(SpawnRequest{Prompt: "x"})
	assert.NotContains(t, args.Args, "--model")

	args = adapter.BuildArgs(SpawnRequest{Prompt: "x", Model: "gpt-5-codex"})
	assert.Contains(t, args.Args, "--model")
	assert.Contains(t, args.Args, "gpt-5-codex")
}

func TestCodexParseThreadStarted(t *testing.T) {
	adapter, _ := Resolve(KindCodexCLI, Options{})
	line := `{"type":"thread.started","model":"gpt-5-codex","thread_id":"th-9"}`

	parsed := adapter.ParseLine(line)
	assert.Equal(t, LineSystemInit, parsed.Type)
	assert.Equal(t, "gpt-5-codex", parsed.Model)
	assert.Equal(t, "th-9", parsed.SessionID)
}

func TestCodexParseItemText(t *testing.T) {
	adapter, _ := Resolve(KindCodexCLI, Options{})
	line := `{"type":"item.completed","item":{"content":[{"type":"output_text","text":"done"}]}}`

	parsed := adapter.ParseLine(line)
	assert.Equal(t, LineAssistantText, parsed.Type)
	assert.Equal(t, "done", parsed.Text)
}

func TestCodexParseItemFunctionCall(t *testing.T) {
	adapter, _ := Resolve(KindCodexCLI, Options{})
	line := `{"type":"item.started","content":[{"type":"function_call","name":"shell","input":{"cmd":"ls"}}]}`

	parsed := adapter.ParseLine(line)
	assert.Equal(t, LineToolUse, parsed.Type)
	assert.Equal(t, "shell", parsed.ToolName)
}

func TestCodexParseTurnCompleted(t *testing.T) {
	adapter, _ := Resolve(KindCodexCLI, Options{})
	line := `{"type":"turn.completed","model":"gpt-5-codex","thread_id":"th-9","usage":{"input_tokens":200,"output_tokens":90},"total_cost_usd":0.002}`

	parsed := adapter.ParseLine(line)
	require.Equal(t, LineResult, parsed.Type)
	assert.Equal(t, int64(200), *parsed.InputTokens)
	assert.Equal(t, int64(90), *parsed.OutputTokens)
	assert.Equal(t, 0.002, *parsed.CostUSD)
}

func TestCodexParseError(t *testing.T) {
	adapter, _ := Resolve(KindCodexCLI, Options{})
	line := `{"type":"error","message":"quota exceeded"}`

	parsed := adapter.ParseLine(line)
	assert.Equal(t, LineError, parsed.Type)
	assert.Equal(t, "quota exceeded", parsed.Message)
}

func TestCodexParseGarbage(t *testing.T) {
	adapter, _ := Resolve(KindCodexCLI, Options{})
	assert.Equal(t, LineUnknown, adapter.ParseLine("not json").Type)
	assert.Equal(t, LineUnknown, adapter.ParseLine("").Type)
}
