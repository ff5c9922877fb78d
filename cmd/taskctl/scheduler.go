package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"taskctl/internal/scheduler"
)

func newServeSchedulerCommand(flags *rootFlags) *cobra.Command {
	var (
		intervalSec int
		maxSteps    int
		force       bool
		once        bool
	)

	cmd := &cobra.Command{
		Use:   "serve-scheduler",
		Short: "Run the interval-gated autopilot loop, driven by a cron trigger derived from the configured interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags.stateDir, flags.configDir)
			if err != nil {
				return err
			}

			if _, err := app.Scheduler.Configure(flags.actor, true, intervalSec, maxSteps); err != nil {
				return err
			}

			tick := func() {
				result, err := app.Scheduler.Tick(context.Background(), flags.actor, force, checkpointFunc(app), dispatchFunc(app))
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", red("scheduler tick error:"), err)
					return
				}
				reportTick(cmd, result)
			}

			if once {
				tick()
				return nil
			}

			// Drives scheduler.Tick via a standard cron trigger derived from
			// the configured interval: cron.New with a SkipIfStillRunning chain,
			// so an overrunning tick is skipped rather than overlapped, and a
			// single @every entry since taskctl has exactly one scheduled job,
			// not a table of named triggers.
			c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
			if _, err := c.AddFunc(fmt.Sprintf("@every %ds", intervalSec), tick); err != nil {
				return fmt.Errorf("serve-scheduler: schedule tick: %w", err)
			}
			c.Start()
			defer c.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "%s every %ds, up to %d steps per tick\n", gray("scheduler running"), intervalSec, maxSteps)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			return nil
		},
	}

	cmd.Flags().IntVar(&intervalSec, "interval-sec", 60, "Seconds between ticks")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 1, "Maximum dispatch iterations per tick")
	cmd.Flags().BoolVar(&force, "force", false, "Bypass the due-time check on every tick (still honors governance)")
	cmd.Flags().BoolVar(&once, "once", false, "Run a single tick and exit, instead of serving on a cron trigger")
	return cmd
}

func checkpointFunc(app *App) scheduler.Checkpoint {
	return func(actor string) (bool, string, error) {
		decision, err := app.Governance.CheckpointScheduler(actor)
		if err != nil {
			return false, "", err
		}
		return decision.Allow, decision.ReasonCode, nil
	}
}

func dispatchFunc(app *App) scheduler.Dispatch {
	return func(ctx context.Context, actor string) (bool, bool, string, error) {
		taskID, agent, err := selectNext(app.Store)
		if err != nil {
			return false, false, "task_not_ready", nil
		}
		output, err := app.Dispatcher.Dispatch(ctx, taskID, agent, actor)
		if err != nil {
			return false, false, "", err
		}
		readyRemains := output.Selection != nil && len(output.Selection.ReadyQueue) > 1
		return output.Decision == "done", readyRemains, output.ReasonCode, nil
	}
}

func reportTick(cmd *cobra.Command, result scheduler.TickResult) {
	if result.Skipped {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", gray("tick skipped"), result.ReasonCode)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s steps=%d reason=%s next_due=%s\n",
		green("tick ran"), result.Steps, result.ReasonCode, result.State.NextDueTs.Format("15:04:05"))
}
