package acceptance

import (
	"context"
	"strings"
	"testing"

	"taskctl/internal/config"
)

func TestRunVerifyCommandsReportsTimeoutOnSlowCommand(t *testing.T) {
	commands := []config.VerifyCommand{{Cmd: "sleep 5", ExpectExitCode: 0, TimeoutSec: 1}}
	results, err := RunVerifyCommands(context.Background(), "", commands)
	if err != nil {
		t.Fatalf("run verify commands: %v", err)
	}
	if len(results) != 1 || !results[0].TimedOut || results[0].Passed {
		t.Fatalf("expected a timed-out, failed result, got %+v", results)
	}
}

func TestRunVerifyCommandsCapturesCombinedOutput(t *testing.T) {
	commands := []config.VerifyCommand{{Cmd: "echo out && echo err 1>&2", ExpectExitCode: 0, TimeoutSec: 5}}
	results, err := RunVerifyCommands(context.Background(), "", commands)
	if err != nil {
		t.Fatalf("run verify commands: %v", err)
	}
	if len(results) != 1 || !results[0].Passed {
		t.Fatalf("expected a passing result, got %+v", results)
	}
	if !strings.Contains(results[0].Output, "out") || !strings.Contains(results[0].Output, "err") {
		t.Fatalf("expected combined stdout+stderr output, got %q", results[0].Output)
	}
}
