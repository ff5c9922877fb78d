package executor

import "context"

// FakeExecutor skips the subprocess entirely, returning a canned reply —
// the "fake output" test mode step 6 requires.
type FakeExecutor struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMs int64
	Err        error
}

// Execute implements Executor by returning the configured canned fields.
func (f *FakeExecutor) Execute(_ context.Context, _ Request) (*Result, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return &Result{
		Stdout:     f.Stdout,
		Stderr:     f.Stderr,
		ExitCode:   f.ExitCode,
		DurationMs: f.DurationMs,
	}, nil
}

// ScriptedExecutor returns a different canned Result per call, in order,
// useful for exercising a dispatcher across multiple recovery attempts.
type ScriptedExecutor struct {
	Results []Result
	calls   int
}

// Execute implements Executor, returning Results[calls] and advancing the
// call counter. The final entry repeats once exhausted.
func (s *ScriptedExecutor) Execute(_ context.Context, _ Request) (*Result, error) {
	if len(s.Results) == 0 {
		return &Result{}, nil
	}
	idx := s.calls
	if idx >= len(s.Results) {
		idx = len(s.Results) - 1
	}
	s.calls++
	result := s.Results[idx]
	return &result, nil
}
