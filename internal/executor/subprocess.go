package executor

import (
	"context"
	"fmt"
	"io"
	"time"

	"taskctl/internal/external/subprocess"
)

// SubprocessExecutor runs a worker as a command-line agent CLI, writing the
// prompt to stdin and capturing stdout/stderr, via the same
// claude-code executor's use of internal/external/subprocess.
type SubprocessExecutor struct {
	BinaryPath string
	Args       []string
}

// NewSubprocessExecutor returns a SubprocessExecutor invoking binaryPath
// with args (the prompt is always appended as stdin, not an argv entry).
func NewSubprocessExecutor(binaryPath string, args []string) *SubprocessExecutor {
	return &SubprocessExecutor{BinaryPath: binaryPath, Args: args}
}

// Execute implements Executor.
func (e *SubprocessExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	proc := subprocess.New(subprocess.Config{
		Command:    e.BinaryPath,
		Args:       e.Args,
		Env:        req.Env,
		WorkingDir: req.WorkingDir,
		Timeout:    req.Timeout,
	})

	start := time.Now()
	if err := proc.Start(ctx); err != nil {
		return nil, fmt.Errorf("executor: start %s: %w", e.BinaryPath, err)
	}
	defer proc.Stop()

	if err := proc.Write([]byte(req.Prompt)); err != nil {
		return nil, fmt.Errorf("executor: write prompt: %w", err)
	}
	_ = proc.CloseStdin()

	stdout, readErr := io.ReadAll(proc.Stdout())
	stderr, _ := io.ReadAll(proc.Stderr())
	waitErr := proc.Wait()

	result := &Result{
		Stdout:     string(stdout),
		Stderr:     string(stderr),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if exitErr, ok := asExitError(waitErr); ok {
		result.ExitCode = exitErr
	}
	if waitErr != nil && readErr == nil {
		return result, nil
	}
	return result, readErr
}

func asExitError(err error) (int, bool) {
	type exitCoder interface{ ExitCode() int }
	if ee, ok := err.(exitCoder); ok {
		return ee.ExitCode(), true
	}
	return 0, false
}
