package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xkazm04/personas-sub002/internal/config"
	"github.com/xkazm04/personas-sub002/internal/logger"
	"github.com/xkazm04/personas-sub002/internal/store"
	"github.com/xkazm04/personas-sub002/pkg/engine/failover"
	"github.com/xkazm04/personas-sub002/pkg/engine/pipeline"
)

var (
	runModel string
	runChain string
)

var runCmd = &cobra.Command{
	Use:   "run <persona-id> <input...>",
	Short: "Execute a persona once and stream its output",
	Long: `Execute a single persona run in the foreground. Streams provider
output to stdout and exits non-zero when the run fails.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "", "override the persona's configured model")
	runCmd.Flags().StringVar(&runChain, "chain", "", "chain correlation id shared across related runs")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Console:   false,
		File:      cfg.Logging.File,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	st, err := store.New(store.Config{
		Path:   cfg.DatabasePath,
		Logger: log.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	fm := failover.NewManager(failover.Config{
		FailureThreshold: cfg.Failover.FailureThreshold,
		Cooldown:         cfg.FailoverCooldown(),
		Logger:           log.GetZerolog(),
	})

	p, err := pipeline.New(pipeline.Config{
		Repository:     st,
		Failover:       fm,
		ProviderOpts:   cfg.ProviderOptions(),
		Logger:         log.GetZerolog(),
		DefaultTimeout: cfg.DefaultTimeout(),
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	handle, err := p.Submit(ctx, pipeline.Request{
		PersonaID:     args[0],
		Input:         strings.Join(args[1:], " "),
		ModelOverride: runModel,
		ChainTraceID:  runChain,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Execution %s started\n", handle.ID)

	for event := range handle.Events() {
		switch event.Type {
		case pipeline.EventLine:
			if event.Line != nil && event.Line.Display != "" {
				fmt.Println(event.Line.Display)
			}
		case pipeline.EventStateChanged:
			fmt.Printf("-- %s\n", event.State)
		}
	}

	rec, runErr := handle.Wait(ctx)
	if rec != nil {
		fmt.Printf("\nStatus: %s\n", rec.Status)
		if rec.Provider != "" {
			fmt.Printf("Provider: %s", rec.Provider)
			if rec.Model != "" {
				fmt.Printf(" (%s)", rec.Model)
			}
			fmt.Println()
		}
		if rec.CostUSD > 0 {
			fmt.Printf("Cost: $%.4f  Tokens: %d in / %d out\n",
				rec.CostUSD, rec.InputTokens, rec.OutputTokens)
		}
	}
	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}

	return nil
}
