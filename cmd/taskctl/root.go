package main

import (
	"github.com/spf13/cobra"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	stateDir  string
	configDir string
	actor     string
	jsonOut   bool
}

// NewRootCommand builds the taskctl command tree, mirroring
// cmd/cobra_cli.go's NewRootCommand/subcommand-builder shape.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "taskctl",
		Short: "Task-lifecycle control plane: board, governance, budget, dispatch, recovery, scheduler.",
		Long: `taskctl

taskctl is a single-process, file-backed control plane for a multi-agent
task board. It owns the event-sourced task board, the priority/readiness
engine, the dispatcher that spawns worker subprocesses, the governance
control plane (pause/freeze/abort/approval with a hash-chained audit log),
the per-task budget policy, the acceptance gate, the recovery loop, and the
scheduler/autopilot.

Examples:
  taskctl board "create task: ship the thing"
  taskctl dispatch --agent coder
  taskctl govern pause
  taskctl status T-001
  taskctl autopilot --steps 5`,
	}

	root.PersistentFlags().StringVar(&flags.stateDir, "state-dir", "./state", "Root directory for the task board's journal/snapshot/lock")
	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "./config", "Root directory for policy JSON files")
	root.PersistentFlags().StringVar(&flags.actor, "actor", "operator", "Actor name recorded against mutations and the audit log")

	root.AddCommand(newBoardCommand(flags))
	root.AddCommand(newGovernCommand(flags))
	root.AddCommand(newDispatchCommand(flags))
	root.AddCommand(newAutopilotCommand(flags))
	root.AddCommand(newServeSchedulerCommand(flags))
	root.AddCommand(newStatusCommand(flags))
	root.AddCommand(newSynthesizeCommand(flags))
	root.AddCommand(newRebuildSnapshotCommand(flags))
	root.AddCommand(newMetricsCommand(flags))

	return root
}
