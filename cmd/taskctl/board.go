package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskctl/internal/board"
)

func newBoardCommand(flags *rootFlags) *cobra.Command {
	var messageID string

	cmd := &cobra.Command{
		Use:   "board <text>",
		Short: "Apply one board intent (create task/claim task/mark done/block task/escalate task/status/synthesize)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags.stateDir, flags.configDir)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")

			result, applyErr := app.Board.ApplyWithMessageID(text, flags.actor, messageID)
			if result == nil {
				return applyErr
			}
			printBoardResult(cmd, result, flags.jsonOut)
			return nil
		},
	}

	cmd.Flags().StringVar(&messageID, "message-id", "", "Inbound message id; a repeat id replays the prior result instead of mutating again")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Print the structured result envelope instead of a human summary")
	return cmd
}

func printBoardResult(cmd *cobra.Command, result *board.Result, jsonOut bool) {
	if jsonOut {
		enc, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
		return
	}
	if !result.OK {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", decisionColor("blocked"), result.TaskID, result.Error)
		return
	}
	status := ""
	if result.Task != nil {
		status = string(result.Task.Status)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", decisionColor("done"), result.TaskID, gray(status))
}
