package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Persona Engine Configuration ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// Provider binaries
	fmt.Println("Provider CLIs (press Enter to keep the default):")
	fmt.Println()

	for _, name := range []string{"claude", "codex", "gemini"} {
		pc := cfg.Providers[name]
		fmt.Printf("%s binary [%s]: ", name, pc.Binary)
		binary, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if binary != "" {
			pc.Binary = binary
			cfg.Providers[name] = pc
		}
	}

	fmt.Println()

	// Default model for claude
	fmt.Println("Default Model:")
	fmt.Printf("Claude model [%s]: ", cfg.Providers["claude"].DefaultModel)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if model != "" {
		if err := validator.ValidateModel(model); err != nil {
			fmt.Printf("Warning: %v, keeping default\n", err)
		} else {
			pc := cfg.Providers["claude"]
			pc.DefaultModel = model
			cfg.Providers["claude"] = pc
		}
	}

	fmt.Println()

	// Failover
	fmt.Println("Failover:")
	fmt.Printf("Circuit failure threshold [%d]: ", cfg.Failover.FailureThreshold)
	threshold, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if threshold != "" {
		var n int
		if _, err := fmt.Sscanf(threshold, "%d", &n); err != nil || n < 1 {
			fmt.Println("Warning: invalid threshold, keeping default")
		} else {
			cfg.Failover.FailureThreshold = n
		}
	}

	fmt.Println()

	// Log Level
	fmt.Println("Logging:")
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
