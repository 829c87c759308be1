package provider

import "time"

// Kind identifies one of the supported CLI engine backends.
type Kind string

const (
	KindClaudeCode Kind = "claude_code"
	KindCodexCLI   Kind = "codex_cli"
	KindGeminiCLI  Kind = "gemini_cli"
)

// Kinds lists all supported backends.
var Kinds = []Kind{KindClaudeCode, KindCodexCLI, KindGeminiCLI}

// ParseKind maps a stored setting string to a Kind, defaulting to claude.
func ParseKind(s string) Kind {
	switch s {
	case string(KindCodexCLI):
		return KindCodexCLI
	case string(KindGeminiCLI):
		return KindGeminiCLI
	default:
		return KindClaudeCode
	}
}

// Candidate is a (provider, model) pair the pipeline may attempt for a
// run. Lower priority values are tried first.
type Candidate struct {
	Kind     Kind   `json:"kind"`
	Model    string `json:"model,omitempty"`
	Priority int    `json:"priority"`
	Label    string `json:"label,omitempty"`
}

// Key identifies the candidate within one run's attempted set.
func (c Candidate) Key() string {
	return string(c.Kind) + "/" + c.Model
}

// PromptDelivery describes how the CLI process receives the prompt.
type PromptDelivery int

const (
	// DeliverStdin writes the prompt to stdin, then closes it.
	DeliverStdin PromptDelivery = iota
	// DeliverPositional embeds the prompt as a positional argument.
	DeliverPositional
	// DeliverFlag passes the prompt via a flag such as -p.
	DeliverFlag
)

// SpawnRequest carries everything an adapter needs to start a run.
type SpawnRequest struct {
	Prompt     string
	Model      string
	WorkingDir string
	Timeout    time.Duration
}

// CLIArgs is the constructed invocation for one spawn attempt.
type CLIArgs struct {
	Command string
	Args    []string
	Env     map[string]string
}

// LineType classifies one line of provider output.
type LineType string

const (
	// LineSystemInit announces session start with the resolved model.
	LineSystemInit LineType = "system_init"
	// LineAssistantText is assistant-visible text output.
	LineAssistantText LineType = "assistant_text"
	// LineToolUse is a tool invocation by the model.
	LineToolUse LineType = "tool_use"
	// LineToolResult is the captured output of a tool invocation.
	LineToolResult LineType = "tool_result"
	// LineResult is the completion marker carrying run totals.
	LineResult LineType = "result"
	// LineError is an explicit error signal from the provider stream.
	LineError LineType = "error"
	// LineUnknown is anything the adapter could not classify.
	LineUnknown LineType = "unknown"
)

// StreamLine is one parsed line of provider output, unified across
// adapters. Display, when set, is the human-readable rendering for the
// live event stream.
type StreamLine struct {
	Type         LineType
	Text         string
	ToolName     string
	InputPreview string
	Model        string
	SessionID    string
	Message      string
	DurationMs   *int64
	CostUSD      *float64
	InputTokens  *int64
	OutputTokens *int64
	Display      string
}
