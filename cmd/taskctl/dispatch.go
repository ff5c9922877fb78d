package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"taskctl/internal/dispatch"
	"taskctl/internal/priority"
)

func newDispatchCommand(flags *rootFlags) *cobra.Command {
	var agent string

	cmd := &cobra.Command{
		Use:   "dispatch [taskId]",
		Short: "Run one dispatch iteration: select (or take) a task, spawn its worker, gate and record the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags.stateDir, flags.configDir)
			if err != nil {
				return err
			}

			taskID := ""
			if len(args) == 1 {
				taskID = args[0]
			}
			resolvedAgent, err := resolveAgent(app.Store, taskID, agent)
			if err != nil {
				return err
			}

			output, err := app.Dispatcher.Dispatch(context.Background(), taskID, resolvedAgent, flags.actor)
			if err != nil {
				return err
			}
			printDispatchOutput(cmd, output, flags.jsonOut)
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Agent id; defaults to the task's assignee hint, then \"coder\"")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Print the structured output envelope instead of a human summary")
	return cmd
}

func newAutopilotCommand(flags *rootFlags) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "autopilot",
		Short: "Operator-triggered batch of dispatch iterations, sharing the governance autopilot checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags.stateDir, flags.configDir)
			if err != nil {
				return err
			}

			allow, reasonCode, err := app.Governance.CheckpointAutopilot(flags.actor)
			if err != nil {
				return err
			}
			if !allow {
				fmt.Fprintf(cmd.OutOrStdout(), "%s autopilot: %s\n", decisionColor("deny"), reasonCode)
				return nil
			}

			ran := 0
			for ran < steps {
				taskID, agent, err := selectNext(app.Store)
				if err != nil {
					if errors.Is(err, priority.ErrTaskNotReady) {
						break
					}
					return err
				}
				output, err := app.Dispatcher.Dispatch(context.Background(), taskID, agent, flags.actor)
				if err != nil {
					return err
				}
				ran++
				printDispatchOutput(cmd, output, flags.jsonOut)
				if output.Selection == nil || len(output.Selection.ReadyQueue) <= 1 {
					break
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ran %d/%d steps\n", gray("autopilot"), ran, steps)
			return nil
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "Maximum number of dispatch iterations to run")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Print each step's structured output envelope")
	return cmd
}

func printDispatchOutput(cmd *cobra.Command, output *dispatch.Output, jsonOut bool) {
	if jsonOut {
		enc, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
		return
	}
	reason := output.ReasonCode
	if reason == "" {
		reason = output.AcceptanceReasonCode
	}
	if reason != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", decisionColor(string(output.Decision)), gray(reason))
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", decisionColor(string(output.Decision)))
}
