package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskctl/internal/external/subprocess"
)

// bridgeEnvelope is one line of the line-delimited-JSON protocol the bridge
// speaks with a structured sub-worker (the coder role's dedicated worker),
// narrowed from an MCP-style request/notification shape into a minimal
// stdin/stdout line protocol.
type bridgeEnvelope struct {
	TaskID string `json:"taskId"`
	Prompt string `json:"prompt"`
}

// BridgeExecutor speaks one-line-JSON-in, one-line-JSON-out with a
// structured sub-worker binary, instead of a free-text CLI prompt.
type BridgeExecutor struct {
	BinaryPath string
	Args       []string
}

// NewBridgeExecutor returns a BridgeExecutor invoking binaryPath with args.
func NewBridgeExecutor(binaryPath string, args []string) *BridgeExecutor {
	return &BridgeExecutor{BinaryPath: binaryPath, Args: args}
}

// Execute implements Executor: writes one JSON envelope line to stdin,
// reads stdout to EOF and keeps the last non-empty line as the reply.
func (e *BridgeExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	proc := subprocess.New(subprocess.Config{
		Command:    e.BinaryPath,
		Args:       e.Args,
		Env:        req.Env,
		WorkingDir: req.WorkingDir,
		Timeout:    req.Timeout,
	})

	start := time.Now()
	if err := proc.Start(ctx); err != nil {
		return nil, fmt.Errorf("executor: start bridge %s: %w", e.BinaryPath, err)
	}
	defer proc.Stop()

	line, err := json.Marshal(bridgeEnvelope{TaskID: req.TaskID, Prompt: req.Prompt})
	if err != nil {
		return nil, fmt.Errorf("executor: encode bridge envelope: %w", err)
	}
	if err := proc.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("executor: write bridge envelope: %w", err)
	}
	_ = proc.CloseStdin()

	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var reply string
	for scanner.Scan() {
		if text := scanner.Text(); text != "" {
			reply = text
		}
	}
	scanErr := scanner.Err()
	waitErr := proc.Wait()

	result := &Result{Stdout: reply, DurationMs: time.Since(start).Milliseconds()}
	if exitCode, ok := asExitError(waitErr); ok {
		result.ExitCode = exitCode
	}
	if scanErr != nil {
		return result, scanErr
	}
	return result, nil
}
