package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"taskctl/internal/board"
	"taskctl/internal/budget"
	"taskctl/internal/config"
	"taskctl/internal/executor"
	"taskctl/internal/filestore"
	"taskctl/internal/governance"
	"taskctl/internal/metrics"
	"taskctl/internal/recovery"
	"taskctl/internal/store"
)

type fakeLocker struct{ dir string }

func (f fakeLocker) Lock(owner string) (*filestore.Lock, error) {
	return filestore.Acquire(filepath.Join(f.dir, "locks", "task-board.lock"), filestore.LockOptions{Owner: owner})
}

func newTestDispatcher(t *testing.T, exec executor.Executor) (*Dispatcher, *store.Store, *board.Board) {
	t.Helper()
	dir := t.TempDir()
	locker := fakeLocker{dir: dir}

	s := store.New(dir, nil)
	b := board.New(s, nil)
	g := governance.New(dir, locker, nil)
	bud := budget.New(dir, locker, config.DefaultBudgetPolicy())
	rec := recovery.New(dir, locker, config.RecoveryPolicy{RecoveryChain: []string{"coder", "reviewer"}})
	sink := metrics.New(dir, nil)

	d := &Dispatcher{
		Store:      s,
		Board:      b,
		Governance: g,
		Budget:     bud,
		Recovery:   rec,
		Metrics:    sink,
		Acceptance: config.AcceptancePolicy{},
		Executors:  func(agent string) executor.Executor { return exec },
		WorkDir:    dir,
	}
	return d, s, b
}

func TestDispatchAcceptsDoneReplyAndMarksTaskDone(t *testing.T) {
	d, _, b := newTestDispatcher(t, &executor.FakeExecutor{
		Stdout: `{"status":"done","summary":"shipped it","evidence":["ran tests, 10 passed"]}`,
	})
	if _, err := b.Apply("create task: fix the thing", "operator"); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := b.Apply("claim task T-001", "operator"); err != nil {
		t.Fatalf("claim task: %v", err)
	}

	out, err := d.Dispatch(context.Background(), "T-001", "coder", "operator")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !out.OK || out.Decision != DecisionDone {
		t.Fatalf("expected accepted done dispatch, got %+v", out)
	}

	result, err := b.Status("T-001")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if result.Task.Status != store.StatusDone {
		t.Fatalf("expected task marked done, got %s", result.Task.Status)
	}
}

func TestDispatchBlocksAndSchedulesRecoveryOnSpawnFailure(t *testing.T) {
	d, _, b := newTestDispatcher(t, &executor.FakeExecutor{Err: errFakeSpawn})
	if _, err := b.Apply("create task: flaky one", "operator"); err != nil {
		t.Fatalf("create task: %v", err)
	}

	out, err := d.Dispatch(context.Background(), "T-001", "coder", "operator")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.OK || out.Decision != DecisionBlocked || out.ReasonCode != recovery.ReasonSpawnFailed {
		t.Fatalf("expected blocked spawn_failed, got %+v", out)
	}
	if out.Recovery == nil || out.Recovery.Action != recovery.ActionRetry {
		t.Fatalf("expected a scheduled retry, got %+v", out.Recovery)
	}
}

func TestDispatchBlocksOnMissingHardEvidence(t *testing.T) {
	acceptance := config.AcceptancePolicy{}
	acceptance.Global.RequireEvidence = true

	d, _, b := newTestDispatcher(t, &executor.FakeExecutor{
		Stdout: `{"status":"done","summary":"looks fine, trust me"}`,
	})
	d.Acceptance = acceptance

	if _, err := b.Apply("create task: needs proof", "operator"); err != nil {
		t.Fatalf("create task: %v", err)
	}

	out, err := d.Dispatch(context.Background(), "T-001", "coder", "operator")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.OK || out.AcceptanceReasonCode != "missing_hard_evidence" {
		t.Fatalf("expected missing-evidence block, got %+v", out)
	}
}

func TestDispatchSelectsAReadyTaskWhenIDOmitted(t *testing.T) {
	d, _, b := newTestDispatcher(t, &executor.FakeExecutor{
		Stdout: `{"status":"progress","summary":"still working"}`,
	})
	if _, err := b.Apply("create task T-001: low priority", "operator"); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := b.Apply("create task T-002: high priority", "operator"); err != nil {
		t.Fatalf("create task: %v", err)
	}

	out, err := d.Dispatch(context.Background(), "", "coder", "operator")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Selection == nil || out.Selection.TaskID == "" {
		t.Fatalf("expected a task to be selected, got %+v", out)
	}
}

func TestDispatchDeniedWhenGovernanceFrozen(t *testing.T) {
	d, _, b := newTestDispatcher(t, &executor.FakeExecutor{Stdout: `{"status":"done","summary":"x"}`})
	if _, err := b.Apply("create task: whatever", "operator"); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := d.Governance.ApplyCommand("freeze", "operator"); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	out, err := d.Dispatch(context.Background(), "T-001", "coder", "operator")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Decision != DecisionDenied {
		t.Fatalf("expected governance denial, got %+v", out)
	}
}

var errFakeSpawn = errors.New("spawn failed: exec: worker not found")
