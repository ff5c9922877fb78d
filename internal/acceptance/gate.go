package acceptance

import (
	"context"
	"fmt"

	"taskctl/internal/config"
)

// Reason codes for acceptance decisions.
const (
	ReasonFailureSignalDetected = "failure_signal_detected"
	ReasonMissingHardEvidence   = "missing_hard_evidence"
	ReasonVerifyCommandFailed   = "verify_command_failed"
	ReasonDoneWithEvidence      = "done_with_evidence"
	ReasonIncompleteOutput      = "incomplete_output"
)

// Decision is the acceptance gate's verdict for one reply.
type Decision struct {
	Accept               bool     `json:"accept"`
	Status               Status   `json:"status"`
	AcceptanceReasonCode string   `json:"acceptanceReasonCode,omitempty"`
	ReasonCode           string   `json:"reasonCode,omitempty"`
	Detail               string   `json:"detail,omitempty"`
	Evidence             Evidence `json:"evidence"`
}

// Evaluate implements full acceptance decision: reply
// normalization, evidence extraction, failure-signal/evidence/verify-command
// gating for status=done, and pass-through for blocked/progress.
func Evaluate(ctx context.Context, reply Reply, role string, policy config.AcceptancePolicy, workDir string) (Decision, error) {
	corpus := reply.Corpus()
	evidence := ExtractEvidence(corpus)
	status := reply.NormalizedStatus()

	switch status {
	case StatusBlocked:
		return Decision{Accept: false, Status: StatusBlocked, ReasonCode: "blocked_signal", Detail: reply.Reason, Evidence: evidence}, nil
	case StatusProgress:
		return Decision{Accept: false, Status: StatusProgress, ReasonCode: "in_progress", Evidence: evidence}, nil
	}

	requireEvidence, verifyCommands := resolvePolicy(role, policy)

	if HasFailureSignal(corpus) {
		return Decision{
			Accept: false, Status: StatusBlocked,
			AcceptanceReasonCode: ReasonFailureSignalDetected,
			ReasonCode:           ReasonIncompleteOutput,
			Evidence:             evidence,
		}, nil
	}

	if requireEvidence && len(evidence.Hard) == 0 {
		return Decision{
			Accept: false, Status: StatusBlocked,
			AcceptanceReasonCode: ReasonMissingHardEvidence,
			ReasonCode:           ReasonIncompleteOutput,
			Evidence:             evidence,
		}, nil
	}

	if len(verifyCommands) > 0 {
		results, err := RunVerifyCommands(ctx, workDir, verifyCommands)
		if err != nil {
			return Decision{}, fmt.Errorf("acceptance: %w", err)
		}
		if ok, failing := AllPassed(results); !ok {
			detail := fmt.Sprintf("command %q exited %d", failing.Cmd, failing.ExitCode)
			if failing.TimedOut {
				detail = fmt.Sprintf("command %q timed out", failing.Cmd)
			}
			return Decision{
				Accept: false, Status: StatusBlocked,
				AcceptanceReasonCode: ReasonVerifyCommandFailed,
				ReasonCode:           ReasonIncompleteOutput,
				Detail:               detail,
				Evidence:             evidence,
			}, nil
		}
	}

	return Decision{
		Accept: true, Status: StatusDone,
		AcceptanceReasonCode: ReasonDoneWithEvidence,
		Evidence:             evidence,
	}, nil
}

// resolvePolicy merges the global acceptance policy with a role override.
func resolvePolicy(role string, policy config.AcceptancePolicy) (bool, []config.VerifyCommand) {
	requireEvidence := policy.Global.RequireEvidence
	commands := append([]config.VerifyCommand{}, policy.Global.VerifyCommands...)

	if override, ok := policy.Roles[role]; ok {
		if override.RequireEvidence != nil {
			requireEvidence = *override.RequireEvidence
		}
		commands = append(commands, override.VerifyCommands...)
	}
	return requireEvidence, commands
}
