package main

import (
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// isTTY mirrors cmd/cobra_cli.go's isTTY: colorized output is only useful
// when both stdin and stdout are attached to a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// decisionColor renders a dispatch/governance decision string, plain when
// not attached to a terminal.
func decisionColor(decision string) string {
	if !isTTY() {
		return decision
	}
	switch decision {
	case "done", "allow":
		return green(decision)
	case "blocked", "deny", "denied":
		return red(decision)
	default:
		return yellow(decision)
	}
}
