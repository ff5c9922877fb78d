package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"taskctl/internal/governance"
)

// interactivePrompt asks the operator to decide a single pending approval
// over the terminal, narrowed from a multi-choice diff-review approver into a
// plain approve/reject gate for governance's hash-chained audit log.
type interactivePrompt struct {
	timeout      time.Duration
	colorEnabled bool
}

func newInteractivePrompt(colorEnabled bool) *interactivePrompt {
	return &interactivePrompt{timeout: 60 * time.Second, colorEnabled: colorEnabled}
}

// decide prompts for one approval and returns true for approve, false for
// reject. A timeout or any unreadable input defaults to reject.
func (p *interactivePrompt) decide(ctx context.Context, approval governance.Approval) (bool, error) {
	p.display(approval)

	type outcome struct {
		approve bool
		err     error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		approve, err := p.readChoice()
		resultCh <- outcome{approve, err}
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	select {
	case r := <-resultCh:
		return r.approve, r.err
	case <-timeoutCtx.Done():
		fmt.Println()
		fmt.Println(p.colorize("timeout - approval rejected", color.FgRed))
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (p *interactivePrompt) display(approval governance.Approval) {
	fmt.Println()
	fmt.Println(p.colorize(fmt.Sprintf("pending approval: %s", approval.ID), color.FgYellow, color.Bold))
	if approval.Target.Type != "" {
		fmt.Println(p.colorize(fmt.Sprintf("  target: %s taskId=%s agent=%s", approval.Target.Type, approval.Target.TaskID, approval.Target.Agent), color.FgWhite))
	}
}

func (p *interactivePrompt) readChoice() (bool, error) {
	fmt.Println()
	fmt.Println(p.colorize("Approve this action?", color.FgYellow, color.Bold))
	fmt.Println("  [y] Yes, approve")
	fmt.Println("  [n] No, reject")
	fmt.Print(p.colorize("Choice: ", color.FgCyan))

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("govern: read choice: %w", err)
	}

	switch strings.TrimSpace(strings.ToLower(input)) {
	case "y", "yes":
		return true, nil
	case "n", "no", "":
		return false, nil
	default:
		fmt.Println(p.colorize("invalid choice, enter y or n", color.FgRed))
		return p.readChoice()
	}
}

func (p *interactivePrompt) colorize(text string, attributes ...color.Attribute) string {
	if !p.colorEnabled {
		return text
	}
	return color.New(attributes...).Sprint(text)
}

// resolveInteractiveApproval turns a bare "approve"/"reject" govern command
// (no approval id given) into "<verb> <id>" by prompting the operator when
// there is exactly one pending approval and the session is a TTY. It errors
// out rather than guessing when zero or multiple approvals are pending.
func resolveInteractiveApproval(ctx context.Context, app *App, actor, verb string) (string, error) {
	pending, err := app.Governance.PendingApprovals(actor)
	if err != nil {
		return "", err
	}
	if len(pending) == 0 {
		return "", fmt.Errorf("govern: no pending approvals to %s", verb)
	}
	if len(pending) > 1 {
		return "", fmt.Errorf("govern: %d pending approvals, pass an approval id explicitly", len(pending))
	}
	if !isTTY() {
		return "", fmt.Errorf("govern: %q needs an approval id in a non-interactive session", verb)
	}

	approved, err := newInteractivePrompt(isTTY()).decide(ctx, pending[0])
	if err != nil {
		return "", err
	}
	if approved {
		return "approve " + pending[0].ID, nil
	}
	return "reject " + pending[0].ID, nil
}
