package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/xkazm04/personas-sub002/internal/config"
	"github.com/xkazm04/personas-sub002/internal/store"
	"github.com/xkazm04/personas-sub002/pkg/engine/pipeline"
	"github.com/xkazm04/personas-sub002/pkg/engine/provider"
)

var (
	personaName          string
	personaProvider      string
	personaModel         string
	personaSystemPrompt  string
	personaMaxConcurrent int
	personaTimeout       int
)

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Manage persona profiles",
}

var personaAddCmd = &cobra.Command{
	Use:   "add <persona-id>",
	Short: "Create or update a persona",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonaAdd,
}

var personaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List personas",
	RunE:  runPersonaList,
}

var personaDeleteCmd = &cobra.Command{
	Use:   "delete <persona-id>",
	Short: "Delete a persona",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonaDelete,
}

func init() {
	personaAddCmd.Flags().StringVar(&personaName, "name", "", "display name (defaults to the id)")
	personaAddCmd.Flags().StringVar(&personaProvider, "provider", "claude", "primary provider (claude, codex, gemini)")
	personaAddCmd.Flags().StringVar(&personaModel, "model", "", "model identifier")
	personaAddCmd.Flags().StringVar(&personaSystemPrompt, "system-prompt", "", "system prompt prepended to every run")
	personaAddCmd.Flags().IntVar(&personaMaxConcurrent, "max-concurrent", 0, "maximum concurrent executions (0 = unlimited)")
	personaAddCmd.Flags().IntVar(&personaTimeout, "timeout", 0, "per-run timeout in seconds (0 = engine default)")

	personaCmd.AddCommand(personaAddCmd)
	personaCmd.AddCommand(personaListCmd)
	personaCmd.AddCommand(personaDeleteCmd)
	rootCmd.AddCommand(personaCmd)
}

// openStore opens the sqlite store for a one-shot CLI command.
func openStore() (*store.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return store.New(store.Config{
		Path:   cfg.DatabasePath,
		Logger: zerolog.Nop(),
	})
}

func runPersonaAdd(cmd *cobra.Command, args []string) error {
	validator := config.NewValidator()
	if err := validator.ValidatePersonaID(args[0]); err != nil {
		return err
	}
	if err := validator.ValidateProvider(personaProvider); err != nil {
		return err
	}
	if personaModel != "" {
		if err := validator.ValidateModel(personaModel); err != nil {
			return err
		}
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	name := personaName
	if name == "" {
		name = args[0]
	}

	p := &pipeline.Persona{
		ID:            args[0],
		Name:          name,
		Provider:      provider.Kind(personaProvider),
		Model:         personaModel,
		SystemPrompt:  personaSystemPrompt,
		MaxConcurrent: personaMaxConcurrent,
		Timeout:       time.Duration(personaTimeout) * time.Second,
	}
	if err := st.UpsertPersona(context.Background(), p); err != nil {
		return err
	}

	fmt.Printf("Persona %s saved\n", p.ID)
	return nil
}

func runPersonaList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	personas, err := st.ListPersonas(context.Background())
	if err != nil {
		return err
	}

	if len(personas) == 0 {
		fmt.Println("No personas configured")
		return nil
	}

	for _, p := range personas {
		model := p.Model
		if model == "" {
			model = "(provider default)"
		}
		fmt.Printf("%-20s %-8s %s\n", p.ID, p.Provider, model)
	}
	return nil
}

func runPersonaDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeletePersona(context.Background(), args[0]); err != nil {
		return err
	}

	fmt.Printf("Persona %s deleted\n", args[0])
	return nil
}
