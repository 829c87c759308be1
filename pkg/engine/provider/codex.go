package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// codex wraps the Codex CLI. The prompt travels as a positional argument
// after "exec" and output arrives as NDJSON thread events.
type codex struct {
	binary        string
	defaultModel  string
	retryPatterns []string
}

func newCodex(opts Options) *codex {
	c := &codex{
		binary:        opts.Binary,
		defaultModel:  opts.DefaultModel,
		retryPatterns: opts.RetryPatterns,
	}
	if c.binary == "" {
		c.binary = "codex"
	}
	return c
}

func (c *codex) Kind() Kind               { return KindCodexCLI }
func (c *codex) Name() string             { return "Codex CLI" }
func (c *codex) Delivery() PromptDelivery { return DeliverPositional }

// BuildArgs produces: codex exec "<prompt>" --json --full-auto
// [--model <model>]. Unlike claude, codex has no model default worth
// forcing; absent a model the CLI picks its own.
func (c *codex) BuildArgs(req SpawnRequest) CLIArgs {
	args := []string{"exec", req.Prompt, "--json", "--full-auto"}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	return CLIArgs{Command: c.binary, Args: args}
}

type codexEvent struct {
	Type      string `json:"type"`
	Model     string `json:"model"`
	ThreadID  string `json:"thread_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Usage     *struct {
		InputTokens  *int64 `json:"input_tokens"`
		OutputTokens *int64 `json:"output_tokens"`
	} `json:"usage"`
	TotalCost *float64        `json:"total_cost_usd"`
	Item      json.RawMessage `json:"item"`
	Content   json.RawMessage `json:"content"`
}

type codexBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input"`
	Output  string          `json:"output"`
	Command string          `json:"command"`
}

func (c *codex) ParseLine(line string) StreamLine {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return StreamLine{Type: LineUnknown}
	}

	var ev codexEvent
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		return StreamLine{Type: LineUnknown}
	}

	switch {
	case ev.Type == "thread.started":
		model := ev.Model
		if model == "" {
			model = "unknown"
		}
		sessionID := ev.ThreadID
		if sessionID == "" {
			sessionID = ev.SessionID
		}
		return StreamLine{
			Type:      LineSystemInit,
			Model:     model,
			SessionID: sessionID,
			Display:   fmt.Sprintf("Session started (%s)", model),
		}

	case strings.HasPrefix(ev.Type, "item."):
		return parseCodexItem(ev)

	case ev.Type == "turn.completed":
		var in, out *int64
		if ev.Usage != nil {
			in = ev.Usage.InputTokens
			out = ev.Usage.OutputTokens
		}
		display := "Completed"
		if ev.TotalCost != nil {
			display = fmt.Sprintf("Completed (cost: $%.4f)", *ev.TotalCost)
		}
		return StreamLine{
			Type:         LineResult,
			Model:        ev.Model,
			SessionID:    ev.ThreadID,
			CostUSD:      ev.TotalCost,
			InputTokens:  in,
			OutputTokens: out,
			Display:      display,
		}

	case ev.Type == "error":
		msg := ev.Message
		if msg == "" {
			msg = "unknown provider error"
		}
		return StreamLine{Type: LineError, Message: msg, Display: msg}
	}

	return StreamLine{Type: LineUnknown}
}

func (c *codex) InterpretFailure(exitCode int, detail string) error {
	return interpretFailure(c.Name(), exitCode, detail, c.retryPatterns)
}

// parseCodexItem unpacks an item.* event's content blocks. Content may
// live at the event top level or nested under item.
func parseCodexItem(ev codexEvent) StreamLine {
	raw := ev.Content
	if raw == nil && ev.Item != nil {
		var item struct {
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(ev.Item, &item); err == nil {
			raw = item.Content
		}
	}
	if raw == nil {
		return StreamLine{Type: LineUnknown}
	}

	var blocks []codexBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return StreamLine{Type: LineUnknown}
	}

	for _, block := range blocks {
		switch block.Type {
		case "text", "output_text":
			if block.Text == "" {
				continue
			}
			return StreamLine{Type: LineAssistantText, Text: block.Text, Display: block.Text}
		case "function_call", "tool_use":
			name := block.Name
			if name == "" {
				name = block.Command
			}
			if name == "" {
				name = "unknown"
			}
			return StreamLine{
				Type:         LineToolUse,
				ToolName:     name,
				InputPreview: truncate(string(block.Input), 500),
				Display:      fmt.Sprintf("> Using tool: %s", name),
			}
		case "function_call_output", "tool_result":
			return StreamLine{Type: LineToolResult, Text: truncate(block.Output, 500)}
		}
	}
	return StreamLine{Type: LineUnknown}
}
