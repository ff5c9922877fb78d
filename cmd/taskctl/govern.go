package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newGovernCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "govern <text>",
		Short: "Apply one governance command (pause/resume/freeze/unfreeze/abort <target>/approve [id]/reject [id]/status). A bare approve/reject with exactly one pending approval prompts interactively over a TTY.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags.stateDir, flags.configDir)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")

			lowered := strings.ToLower(strings.TrimSpace(text))
			if lowered == "approve" || lowered == "reject" {
				resolved, err := resolveInteractiveApproval(context.Background(), app, flags.actor, lowered)
				if err != nil {
					return err
				}
				text = resolved
			}

			result, cmdErr := app.Governance.ApplyCommand(text, flags.actor)
			if result == nil {
				return cmdErr
			}
			if flags.jsonOut {
				enc, _ := json.MarshalIndent(result, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(enc))
				return nil
			}
			if !result.OK {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", decisionColor("deny"), result.Command, result.Error)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", decisionColor("allow"), result.Command, result.Summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Print the structured result envelope instead of a human summary")
	return cmd
}
