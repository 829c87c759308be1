package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// claude wraps the Claude Code CLI. The prompt is written to stdin and
// output arrives as stream-json events on stdout.
type claude struct {
	binary        string
	defaultModel  string
	retryPatterns []string
}

func newClaude(opts Options) *claude {
	c := &claude{
		binary:        opts.Binary,
		defaultModel:  opts.DefaultModel,
		retryPatterns: opts.RetryPatterns,
	}
	if c.binary == "" {
		c.binary = "claude"
	}
	if c.defaultModel == "" {
		c.defaultModel = "claude-sonnet-4-20250514"
	}
	return c
}

func (c *claude) Kind() Kind               { return KindClaudeCode }
func (c *claude) Name() string             { return "Claude Code CLI" }
func (c *claude) Delivery() PromptDelivery { return DeliverStdin }

// BuildArgs produces: claude -p - --output-format stream-json --verbose
// --dangerously-skip-permissions --model <model>. The --verbose flag is
// required by --print with stream-json output.
func (c *claude) BuildArgs(req SpawnRequest) CLIArgs {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	return CLIArgs{
		Command: c.binary,
		Args: []string{
			"-p", "-",
			"--output-format", "stream-json",
			"--verbose",
			"--dangerously-skip-permissions",
			"--model", model,
		},
	}
}

type claudeBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type claudeEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Model     string `json:"model"`
	SessionID string `json:"session_id"`
	Message   *struct {
		Content []claudeBlock `json:"content"`
	} `json:"message"`
	DurationMs   *int64   `json:"duration_ms"`
	TotalCost    *float64 `json:"total_cost_usd"`
	InputTokens  *int64   `json:"total_input_tokens"`
	OutputTokens *int64   `json:"total_output_tokens"`
	IsError      bool     `json:"is_error"`
	Result       string   `json:"result"`
}

func (c *claude) ParseLine(line string) StreamLine {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return StreamLine{Type: LineUnknown}
	}

	var ev claudeEvent
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		// --verbose mixes plain-text lines into the stream; show as-is
		return StreamLine{Type: LineUnknown, Display: trimmed}
	}

	switch ev.Type {
	case "system":
		if ev.Subtype != "init" {
			return StreamLine{Type: LineUnknown}
		}
		model := ev.Model
		if model == "" {
			model = "unknown"
		}
		return StreamLine{
			Type:      LineSystemInit,
			Model:     model,
			SessionID: ev.SessionID,
			Display:   fmt.Sprintf("Session started (%s)", model),
		}

	case "assistant":
		if ev.Message == nil {
			return StreamLine{Type: LineUnknown}
		}
		return parseClaudeBlocks(ev.Message.Content)

	case "user":
		if ev.Message == nil {
			return StreamLine{Type: LineUnknown}
		}
		for _, block := range ev.Message.Content {
			if block.Type == "tool_result" {
				preview := truncate(block.Text, 500)
				return StreamLine{Type: LineToolResult, Text: preview}
			}
		}
		return StreamLine{Type: LineUnknown}

	case "result":
		if ev.IsError {
			return StreamLine{Type: LineError, Message: ev.Result, Display: ev.Result}
		}
		display := "Completed"
		if ev.TotalCost != nil {
			display = fmt.Sprintf("Completed (cost: $%.4f)", *ev.TotalCost)
		}
		return StreamLine{
			Type:         LineResult,
			Model:        ev.Model,
			SessionID:    ev.SessionID,
			DurationMs:   ev.DurationMs,
			CostUSD:      ev.TotalCost,
			InputTokens:  ev.InputTokens,
			OutputTokens: ev.OutputTokens,
			Display:      display,
		}
	}

	return StreamLine{Type: LineUnknown}
}

func (c *claude) InterpretFailure(exitCode int, detail string) error {
	return interpretFailure(c.Name(), exitCode, detail, c.retryPatterns)
}

// parseClaudeBlocks collapses an assistant content array into one line;
// the first block decides the line type.
func parseClaudeBlocks(blocks []claudeBlock) StreamLine {
	for _, block := range blocks {
		switch block.Type {
		case "text":
			if block.Text == "" {
				continue
			}
			return StreamLine{Type: LineAssistantText, Text: block.Text, Display: block.Text}
		case "tool_use":
			name := block.Name
			if name == "" {
				name = "unknown"
			}
			return StreamLine{
				Type:         LineToolUse,
				ToolName:     name,
				InputPreview: truncate(string(block.Input), 500),
				Display:      fmt.Sprintf("> Using tool: %s", name),
			}
		}
	}
	return StreamLine{Type: LineUnknown}
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
