package governance

import (
	"path/filepath"
	"testing"

	"taskctl/internal/filestore"
)

type fakeLocker struct{ dir string }

func (f fakeLocker) Lock(owner string) (*filestore.Lock, error) {
	return filestore.Acquire(filepath.Join(f.dir, "locks", "task-board.lock"), filestore.LockOptions{Owner: owner})
}

func newTestGovernance(t *testing.T) *Governance {
	t.Helper()
	dir := t.TempDir()
	return New(dir, fakeLocker{dir: dir}, nil)
}

func TestCheckpointDispatchAllowsByDefault(t *testing.T) {
	g := newTestGovernance(t)
	decision, err := g.CheckpointDispatch("T-001", "coder", "operator")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if !decision.Allow {
		t.Fatalf("expected allow by default, got %+v", decision)
	}
}

func TestFreezeDeniesDispatch(t *testing.T) {
	g := newTestGovernance(t)
	if _, err := g.ApplyCommand("freeze", "operator"); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	decision, err := g.CheckpointDispatch("T-001", "coder", "operator")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if decision.Allow || decision.ReasonCode != ReasonFrozen {
		t.Fatalf("expected governance_frozen deny, got %+v", decision)
	}
}

func TestPauseDeniesSchedulerButNotDispatch(t *testing.T) {
	g := newTestGovernance(t)
	if _, err := g.ApplyCommand("pause", "operator"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	schedulerDecision, err := g.CheckpointScheduler("operator")
	if err != nil {
		t.Fatalf("checkpoint scheduler: %v", err)
	}
	if schedulerDecision.Allow || schedulerDecision.ReasonCode != ReasonPaused {
		t.Fatalf("expected governance_paused deny for scheduler, got %+v", schedulerDecision)
	}

	dispatchDecision, err := g.CheckpointDispatch("T-001", "coder", "operator")
	if err != nil {
		t.Fatalf("checkpoint dispatch: %v", err)
	}
	if !dispatchDecision.Allow {
		t.Fatalf("pause should not block dispatch, got %+v", dispatchDecision)
	}
}

func TestAbortIsOneShot(t *testing.T) {
	g := newTestGovernance(t)
	if _, err := g.ApplyCommand("abort T-804", "operator"); err != nil {
		t.Fatalf("abort: %v", err)
	}

	first, err := g.CheckpointDispatch("T-804", "coder", "operator")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if first.Allow || first.ReasonCode != ReasonAborted {
		t.Fatalf("expected first checkpoint denied by abort credit, got %+v", first)
	}

	second, err := g.CheckpointDispatch("T-804", "coder", "operator")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if !second.Allow {
		t.Fatalf("expected abort credit consumed after first deny, got %+v", second)
	}
}

func TestGovernanceApprovalScenario(t *testing.T) {
	// scenario 6.
	g := newTestGovernance(t)
	if err := g.PutApproval("operator", Approval{ID: "APR-1", Status: ApprovalPending, Target: ApprovalTarget{Type: "dispatch", TaskID: "T-804"}}); err != nil {
		t.Fatalf("put approval: %v", err)
	}

	denied, err := g.CheckpointDispatch("T-804", "coder", "operator")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if denied.Allow || denied.ReasonCode != ReasonApprovalRequired {
		t.Fatalf("expected approval_required deny, got %+v", denied)
	}

	if _, err := g.ApplyCommand("approve APR-1", "operator"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	allowed, err := g.CheckpointDispatch("T-804", "coder", "operator")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if !allowed.Allow {
		t.Fatalf("expected allow after approval, got %+v", allowed)
	}
}

func TestPendingApprovalsListsOnlyPendingSortedByID(t *testing.T) {
	g := newTestGovernance(t)
	if err := g.PutApproval("operator", Approval{ID: "APR-2", Status: ApprovalPending}); err != nil {
		t.Fatalf("put approval: %v", err)
	}
	if err := g.PutApproval("operator", Approval{ID: "APR-1", Status: ApprovalPending}); err != nil {
		t.Fatalf("put approval: %v", err)
	}
	if err := g.PutApproval("operator", Approval{ID: "APR-0", Status: ApprovalApproved}); err != nil {
		t.Fatalf("put approval: %v", err)
	}

	pending, err := g.PendingApprovals("operator")
	if err != nil {
		t.Fatalf("pending approvals: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "APR-1" || pending[1].ID != "APR-2" {
		t.Fatalf("expected [APR-1 APR-2], got %+v", pending)
	}
}

func TestAuditChainVerifies(t *testing.T) {
	g := newTestGovernance(t)
	if _, err := g.ApplyCommand("pause", "operator"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := g.ApplyCommand("resume", "operator"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := g.CheckpointDispatch("T-001", "coder", "operator"); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	rows, err := g.ReadAuditRows()
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	if len(rows) < 3 {
		t.Fatalf("expected at least 3 audit rows, got %d", len(rows))
	}
	ok, err := VerifyChain(rows)
	if err != nil {
		t.Fatalf("verify chain: %v", err)
	}
	if !ok {
		t.Fatalf("expected audit chain to verify")
	}
}

func TestAuditChainDetectsTamperedRow(t *testing.T) {
	g := newTestGovernance(t)
	if _, err := g.ApplyCommand("pause", "operator"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := g.ApplyCommand("resume", "operator"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	rows, err := g.ReadAuditRows()
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	rows[0].Result = "tampered"

	ok, err := VerifyChain(rows)
	if err != nil {
		t.Fatalf("verify chain: %v", err)
	}
	if ok {
		t.Fatalf("expected tampered row to fail verification")
	}
}
