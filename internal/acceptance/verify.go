package acceptance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"taskctl/internal/config"
	"taskctl/internal/external/subprocess"
)

// VerifyResult is one verify command's outcome.
type VerifyResult struct {
	Cmd      string `json:"cmd"`
	ExitCode int    `json:"exitCode"`
	Passed   bool   `json:"passed"`
	TimedOut bool   `json:"timedOut"`
	Output   string `json:"output,omitempty"`
}

// RunVerifyCommands executes every command concurrently (bounded by
// errgroup) with its own timeout, and reports each one's exit code against
// expectExitCode (default 0).
func RunVerifyCommands(ctx context.Context, workDir string, commands []config.VerifyCommand) ([]VerifyResult, error) {
	results := make([]VerifyResult, len(commands))

	g, gctx := errgroup.WithContext(ctx)
	for i, cmd := range commands {
		i, cmd := i, cmd
		g.Go(func() error {
			results[i] = runOne(gctx, workDir, cmd)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("acceptance: run verify commands: %w", err)
	}
	return results, nil
}

// runOne spawns one verify command through the same subprocess.Subprocess
// type the dispatcher uses for worker processes, so a hung verify command
// is killed by the same process-group SIGTERM/SIGKILL path a hung worker
// would be.
func runOne(ctx context.Context, workDir string, vc config.VerifyCommand) VerifyResult {
	timeout := time.Duration(vc.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	result := VerifyResult{Cmd: vc.Cmd}
	proc := subprocess.New(subprocess.Config{
		Command:    "sh",
		Args:       []string{"-c", vc.Cmd},
		WorkingDir: workDir,
		Timeout:    timeout,
	})
	if err := proc.Start(ctx); err != nil {
		result.Output = err.Error()
		result.ExitCode = -1
		return result
	}

	var out bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = io.Copy(&out, proc.Stdout()) }()
	go func() { defer wg.Done(); _, _ = io.Copy(&out, proc.Stderr()) }()

	waitErr := proc.Wait()
	wg.Wait()
	result.Output = out.String()

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		result.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		// Killed by the subprocess's own timeout timer, or context
		// cancellation, rather than exiting with a code of its own.
		result.TimedOut = true
		return result
	}
	result.Passed = result.ExitCode == vc.ExpectExitCode
	return result
}

// AllPassed reports whether every verify result passed.
func AllPassed(results []VerifyResult) (bool, *VerifyResult) {
	for i := range results {
		if !results[i].Passed {
			return false, &results[i]
		}
	}
	return true, nil
}
