// Package provider abstracts the external CLI-backed model engines the
// pipeline can delegate a run to. Each adapter knows how to construct
// its CLI invocation, parse its stream output into a unified line type,
// and classify its failures as retryable or fatal.
package provider

import (
	"fmt"

	"github.com/xkazm04/personas-sub002/pkg/engine/execerr"
)

// Adapter is the capability set shared by all CLI engine backends.
// Adding a provider means adding one implementation; the pipeline never
// branches on concrete kinds.
type Adapter interface {
	// Kind returns the backend identifier.
	Kind() Kind

	// Name returns the human-readable engine name for logs and errors.
	Name() string

	// Delivery reports how the prompt reaches the process.
	Delivery() PromptDelivery

	// BuildArgs constructs the CLI invocation for a spawn request,
	// injecting the default model when the request carries none.
	BuildArgs(req SpawnRequest) CLIArgs

	// ParseLine classifies one line of process stdout.
	ParseLine(line string) StreamLine

	// InterpretFailure classifies a process failure (non-zero exit or
	// spawn error text) into the engine error taxonomy.
	InterpretFailure(exitCode int, detail string) error
}

// Options configures adapter construction. Zero values fall back to the
// built-in binary names and default models.
type Options struct {
	Binary        string
	DefaultModel  string
	RetryPatterns []string
}

// Resolve returns the adapter for a kind.
func Resolve(kind Kind, opts Options) (Adapter, error) {
	switch kind {
	case KindClaudeCode:
		return newClaude(opts), nil
	case KindCodexCLI:
		return newCodex(opts), nil
	case KindGeminiCLI:
		return newGemini(opts), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind: %s", kind)
	}
}

// interpretFailure is the shared classification used by all adapters:
// exit code zero is success, recognized transient patterns are
// retryable, everything else is fatal.
func interpretFailure(name string, exitCode int, detail string, retryPatterns []string) error {
	if exitCode == 0 {
		return nil
	}
	msg := fmt.Sprintf("%s exited with code %d: %s", name, exitCode, detail)
	kind := execerr.ClassifyProviderFailure(detail, retryPatterns)
	return execerr.New(kind, msg)
}
