package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/xkazm04/personas-sub002/internal/store"
	"github.com/xkazm04/personas-sub002/pkg/engine/schedule"
)

var (
	triggerEvery string
	triggerCron  string
	triggerAt    string
	triggerTZ    string
	triggerModel string
	triggerChain string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Manage scheduled triggers",
}

var triggerAddCmd = &cobra.Command{
	Use:   "add <persona-id> <input...>",
	Short: "Schedule a recurring or one-shot run",
	Long: `Schedule a persona run. Exactly one of --every, --cron or --at must be set:

  personas trigger add reviewer "summarize open PRs" --every 1h
  personas trigger add reporter "daily digest" --cron "0 9 * * *" --tz Europe/Prague
  personas trigger add oneoff "migration check" --at 2026-09-01T08:00:00Z`,
	Args: cobra.MinimumNArgs(2),
	RunE: runTriggerAdd,
}

var triggerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List triggers",
	RunE:  runTriggerList,
}

var triggerEnableCmd = &cobra.Command{
	Use:   "enable <trigger-id>",
	Short: "Enable a trigger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTriggerSetEnabled(args[0], true)
	},
}

var triggerDisableCmd = &cobra.Command{
	Use:   "disable <trigger-id>",
	Short: "Disable a trigger without deleting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTriggerSetEnabled(args[0], false)
	},
}

var triggerDeleteCmd = &cobra.Command{
	Use:   "delete <trigger-id>",
	Short: "Delete a trigger",
	Args:  cobra.ExactArgs(1),
	RunE:  runTriggerDelete,
}

func init() {
	triggerAddCmd.Flags().StringVar(&triggerEvery, "every", "", "interval between runs (e.g. 30m, 1h)")
	triggerAddCmd.Flags().StringVar(&triggerCron, "cron", "", "5-field cron expression")
	triggerAddCmd.Flags().StringVar(&triggerAt, "at", "", "one-shot run time (RFC 3339)")
	triggerAddCmd.Flags().StringVar(&triggerTZ, "tz", "", "timezone for cron schedules")
	triggerAddCmd.Flags().StringVar(&triggerModel, "model", "", "model override for scheduled runs")
	triggerAddCmd.Flags().StringVar(&triggerChain, "chain", "", "chain trace id linking scheduled runs")

	triggerCmd.AddCommand(triggerAddCmd)
	triggerCmd.AddCommand(triggerListCmd)
	triggerCmd.AddCommand(triggerEnableCmd)
	triggerCmd.AddCommand(triggerDisableCmd)
	triggerCmd.AddCommand(triggerDeleteCmd)
	rootCmd.AddCommand(triggerCmd)
}

// buildSchedule maps the mutually exclusive schedule flags to a schedule spec.
func buildSchedule() (schedule.Schedule, error) {
	set := 0
	for _, v := range []string{triggerEvery, triggerCron, triggerAt} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return schedule.Schedule{}, fmt.Errorf("exactly one of --every, --cron or --at is required")
	}

	switch {
	case triggerEvery != "":
		d, err := time.ParseDuration(triggerEvery)
		if err != nil {
			return schedule.Schedule{}, fmt.Errorf("invalid --every value: %w", err)
		}
		if d < time.Second {
			return schedule.Schedule{}, fmt.Errorf("--every must be at least 1s")
		}
		return schedule.Schedule{Kind: schedule.KindInterval, IntervalMs: d.Milliseconds()}, nil
	case triggerCron != "":
		return schedule.Schedule{Kind: schedule.KindCron, Expr: triggerCron, TZ: triggerTZ}, nil
	default:
		return schedule.Schedule{Kind: schedule.KindOnce, At: triggerAt}, nil
	}
}

func runTriggerAdd(cmd *cobra.Command, args []string) error {
	sched, err := buildSchedule()
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	trg := &store.Trigger{
		PersonaID:     args[0],
		Input:         strings.Join(args[1:], " "),
		ChainTraceID:  triggerChain,
		ModelOverride: triggerModel,
		Schedule:      sched,
	}
	if err := st.CreateTrigger(context.Background(), trg); err != nil {
		return err
	}

	fmt.Printf("Trigger %s created, next run at %s\n", trg.ID, trg.NextRunAt.Format(time.RFC3339))
	return nil
}

func runTriggerList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	triggers, err := st.ListTriggers(context.Background())
	if err != nil {
		return err
	}

	if len(triggers) == 0 {
		fmt.Println("No triggers configured")
		return nil
	}

	for _, trg := range triggers {
		state := "enabled"
		if !trg.Enabled {
			state = "disabled"
		}
		fmt.Printf("%-36s %-20s %-8s %-8s next %s\n",
			trg.ID, trg.PersonaID, trg.Schedule.Kind, state,
			trg.NextRunAt.Format(time.RFC3339))
	}
	return nil
}

func runTriggerSetEnabled(id string, enabled bool) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetTriggerEnabled(context.Background(), id, enabled); err != nil {
		return err
	}

	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	fmt.Printf("Trigger %s %s\n", id, state)
	return nil
}

func runTriggerDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteTrigger(context.Background(), args[0]); err != nil {
		return err
	}

	fmt.Printf("Trigger %s deleted\n", args[0])
	return nil
}
