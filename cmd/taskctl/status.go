package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [taskId]",
		Short: "Read-only task status (all tasks if taskId is omitted)",
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

			if taskID == "" {
				return printAllTasks(cmd, app, flags.jsonOut)
			}
			result, statusErr := app.Board.Status(taskID)
			if result == nil {
				return statusErr
			}
			printBoardResult(cmd, result, flags.jsonOut)
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Print the structured envelope instead of a human summary")
	return cmd
}

func newSynthesizeCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synthesize [taskId]",
		Short: "Read-only report over done/review/blocked tasks",
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
			result, synthErr := app.Board.Synthesize(taskID)
			if result == nil {
				return synthErr
			}
			printBoardResult(cmd, result, flags.jsonOut)
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Print the structured envelope instead of a human summary")
	return cmd
}

func newRebuildSnapshotCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-snapshot",
		Short: "Rebuild tasks.snapshot.json from tasks.jsonl from scratch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags.stateDir, flags.configDir)
			if err != nil {
				return err
			}
			snap, err := app.Store.Rebuild()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d tasks, version %d\n", green("rebuilt"), len(snap.Tasks), snap.Meta.Version)
			return nil
		},
	}
}

func printAllTasks(cmd *cobra.Command, app *App, jsonOut bool) error {
	snap, err := app.Store.Snapshot()
	if err != nil {
		return err
	}
	if jsonOut {
		enc, marshalErr := json.MarshalIndent(snap, "", "  ")
		if marshalErr != nil {
			return marshalErr
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
		return nil
	}
	for id, task := range snap.Tasks {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", id, gray(string(task.Status)), task.Title)
	}
	return nil
}
