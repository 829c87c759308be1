package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkazm04/personas-sub002/pkg/engine/provider"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider validates a provider name
func (v *Validator) ValidateProvider(name string) error {
	switch provider.Kind(name) {
	case provider.KindClaudeCode, provider.KindCodexCLI, provider.KindGeminiCLI:
		return nil
	}
	return fmt.Errorf("invalid provider %s (must be: claude, codex, gemini)", name)
}

// ValidateRetryPattern validates a failure classification pattern. Patterns
// are matched as substrings against provider error output, lowercased.
func (v *Validator) ValidateRetryPattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("retry pattern cannot be empty")
	}
	if pattern != strings.ToLower(pattern) {
		return fmt.Errorf("retry pattern %q must be lowercase", pattern)
	}
	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	// Model identifiers are lowercase with dots and dashes
	pattern := regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*$`)
	if !pattern.MatchString(model) {
		return fmt.Errorf("invalid model name: %s", model)
	}

	return nil
}

// ValidatePersonaID validates a persona identifier
func (v *Validator) ValidatePersonaID(id string) error {
	if id == "" {
		return fmt.Errorf("persona id cannot be empty")
	}

	pattern := regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)
	if !pattern.MatchString(id) {
		return fmt.Errorf("invalid persona id: %s", id)
	}

	return nil
}

// ValidateLogLevel validates a log level string
func (v *Validator) ValidateLogLevel(level string) error {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level: %s", level)
}
