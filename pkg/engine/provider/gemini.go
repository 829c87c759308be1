package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// gemini wraps the Gemini CLI. The prompt travels via the -p flag and
// output arrives as stream-json, structurally close to claude's.
type gemini struct {
	binary        string
	defaultModel  string
	retryPatterns []string
}

func newGemini(opts Options) *gemini {
	g := &gemini{
		binary:        opts.Binary,
		defaultModel:  opts.DefaultModel,
		retryPatterns: opts.RetryPatterns,
	}
	if g.binary == "" {
		g.binary = "gemini"
	}
	if g.defaultModel == "" {
		g.defaultModel = "gemini-2.5-pro"
	}
	return g
}

func (g *gemini) Kind() Kind               { return KindGeminiCLI }
func (g *gemini) Name() string             { return "Gemini CLI" }
func (g *gemini) Delivery() PromptDelivery { return DeliverFlag }

// BuildArgs produces: gemini -p "<prompt>" --output-format stream-json
// --yolo -m <model>.
func (g *gemini) BuildArgs(req SpawnRequest) CLIArgs {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	return CLIArgs{
		Command: g.binary,
		Args: []string{
			"-p", req.Prompt,
			"--output-format", "stream-json",
			"--yolo",
			"-m", model,
		},
	}
}

type geminiEvent struct {
	Type      string `json:"type"`
	Model     string `json:"model"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Message   string `json:"message"`
	ToolName  string `json:"tool_name"`
	Args      json.RawMessage `json:"args"`
	Output    string `json:"output"`
	Stats     *struct {
		InputTokens  *int64   `json:"input_tokens"`
		OutputTokens *int64   `json:"output_tokens"`
		CostUSD      *float64 `json:"cost_usd"`
	} `json:"stats"`
}

func (g *gemini) ParseLine(line string) StreamLine {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return StreamLine{Type: LineUnknown}
	}

	var ev geminiEvent
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		// Gemini intermixes plain progress lines; surface them as-is
		return StreamLine{Type: LineUnknown, Display: trimmed}
	}

	switch ev.Type {
	case "init", "session_start":
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

	case "content", "assistant":
		if ev.Text == "" {
			return StreamLine{Type: LineUnknown}
		}
		return StreamLine{Type: LineAssistantText, Text: ev.Text, Display: ev.Text}

	case "tool_call":
		name := ev.ToolName
		if name == "" {
			name = "unknown"
		}
		return StreamLine{
			Type:         LineToolUse,
			ToolName:     name,
			InputPreview: truncate(string(ev.Args), 500),
			Display:      fmt.Sprintf("> Using tool: %s", name),
		}

	case "tool_result":
		return StreamLine{Type: LineToolResult, Text: truncate(ev.Output, 500)}

	case "result", "session_end":
		var in, out *int64
		var cost *float64
		if ev.Stats != nil {
			in = ev.Stats.InputTokens
			out = ev.Stats.OutputTokens
			cost = ev.Stats.CostUSD
		}
		display := "Completed"
		if cost != nil {
			display = fmt.Sprintf("Completed (cost: $%.4f)", *cost)
		}
		return StreamLine{
			Type:         LineResult,
			Model:        ev.Model,
			SessionID:    ev.SessionID,
			CostUSD:      cost,
			InputTokens:  in,
			OutputTokens: out,
			Display:      display,
		}

	case "error":
		msg := ev.Message
		if msg == "" {
			msg = "unknown provider error"
		}
		return StreamLine{Type: LineError, Message: msg, Display: msg}
	}

	return StreamLine{Type: LineUnknown}
}

func (g *gemini) InterpretFailure(exitCode int, detail string) error {
	return interpretFailure(g.Name(), exitCode, detail, g.retryPatterns)
}
