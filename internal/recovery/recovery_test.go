package recovery

import (
	"path/filepath"
	"testing"
	"time"

	"taskctl/internal/config"
	"taskctl/internal/filestore"
)

type fakeLocker struct{ dir string }

func (f fakeLocker) Lock(owner string) (*filestore.Lock, error) {
	return filestore.Acquire(filepath.Join(f.dir, "locks", "task-board.lock"), filestore.LockOptions{Owner: owner})
}

func newTestRecovery(t *testing.T, policy config.RecoveryPolicy) *Recovery {
	t.Helper()
	dir := t.TempDir()
	return New(dir, fakeLocker{dir: dir}, policy)
}

func TestNonMatchingReasonEscalatesWithoutConsumingChain(t *testing.T) {
	r := newTestRecovery(t, config.DefaultRecoveryPolicy())
	entry, err := r.Advance("operator", "T-1", "unrelated_reason", "coder")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if entry.Action != ActionEscalate || entry.NextAssignee != "human" {
		t.Fatalf("expected immediate escalate to human, got %+v", entry)
	}

	stored, err := r.Get("operator", "T-1", "unrelated_reason")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Attempt != 0 {
		t.Fatalf("expected non-matching reason to not persist an attempt, got %+v", stored)
	}
}

func TestAdvanceMovesToNextRoleInChain(t *testing.T) {
	policy := config.RecoveryPolicy{RecoveryChain: []string{"coder", "reviewer", "human"}, Default: config.RecoveryLimits{MaxAttempts: 5, CooldownSec: 0}}
	r := newTestRecovery(t, policy)

	entry, err := r.Advance("operator", "T-1", ReasonIncompleteOutput, "coder")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if entry.NextAssignee != "reviewer" || entry.Action != ActionRetry {
		t.Fatalf("expected retry to reviewer, got %+v", entry)
	}
}

func TestAdvanceHandsOffToHumanAtChainEnd(t *testing.T) {
	policy := config.RecoveryPolicy{RecoveryChain: []string{"coder", "reviewer", "human"}, Default: config.RecoveryLimits{MaxAttempts: 5, CooldownSec: 0}}
	r := newTestRecovery(t, policy)

	entry, err := r.Advance("operator", "T-1", ReasonIncompleteOutput, "reviewer")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if entry.NextAssignee != "human" || entry.Action != ActionHuman || entry.RecoveryState != StateHumanHandoff {
		t.Fatalf("expected human handoff, got %+v", entry)
	}
}

func TestAdvanceEscalatesWhenAttemptsExceedMax(t *testing.T) {
	policy := config.RecoveryPolicy{RecoveryChain: []string{"coder", "reviewer", "human"}, Default: config.RecoveryLimits{MaxAttempts: 1, CooldownSec: 0}}
	r := newTestRecovery(t, policy)

	if _, err := r.Advance("operator", "T-1", ReasonSpawnFailed, "coder"); err != nil {
		t.Fatalf("advance 1: %v", err)
	}
	entry, err := r.Advance("operator", "T-1", ReasonSpawnFailed, "coder")
	if err != nil {
		t.Fatalf("advance 2: %v", err)
	}
	if entry.Action != ActionEscalate || entry.NextAssignee != "human" || entry.RecoveryState != StateEscalatedToHuman {
		t.Fatalf("expected escalate after exceeding maxAttempts, got %+v", entry)
	}
}

func TestCooldownReturnsPreviousDecisionUnchanged(t *testing.T) {
	policy := config.RecoveryPolicy{RecoveryChain: []string{"coder", "reviewer", "human"}, Default: config.RecoveryLimits{MaxAttempts: 5, CooldownSec: 3600}}
	r := newTestRecovery(t, policy)

	first, err := r.Advance("operator", "T-1", ReasonIncompleteOutput, "coder")
	if err != nil {
		t.Fatalf("advance 1: %v", err)
	}
	second, err := r.Advance("operator", "T-1", ReasonIncompleteOutput, "coder")
	if err != nil {
		t.Fatalf("advance 2: %v", err)
	}
	if second.Attempt != first.Attempt {
		t.Fatalf("expected cooldown to prevent attempt increment, got first=%+v second=%+v", first, second)
	}
}

func TestCooldownExpiresAndAllowsNextAttempt(t *testing.T) {
	policy := config.RecoveryPolicy{RecoveryChain: []string{"coder", "reviewer", "human"}, Default: config.RecoveryLimits{MaxAttempts: 5, CooldownSec: 1}}
	r := newTestRecovery(t, policy)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	first, err := r.Advance("operator", "T-1", ReasonIncompleteOutput, "coder")
	if err != nil {
		t.Fatalf("advance 1: %v", err)
	}
	r.now = func() time.Time { return fixed.Add(2 * time.Second) }
	second, err := r.Advance("operator", "T-1", ReasonIncompleteOutput, "coder")
	if err != nil {
		t.Fatalf("advance 2: %v", err)
	}
	if second.Attempt != first.Attempt+1 {
		t.Fatalf("expected attempt increment after cooldown expiry, got first=%+v second=%+v", first, second)
	}
}

func TestAbsentAssigneeStartsAtChainHead(t *testing.T) {
	policy := config.RecoveryPolicy{RecoveryChain: []string{"coder", "reviewer", "human"}, Default: config.RecoveryLimits{MaxAttempts: 5, CooldownSec: 0}}
	r := newTestRecovery(t, policy)

	entry, err := r.Advance("operator", "T-1", ReasonBlockedSignal, "unknown-agent")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if entry.NextAssignee != "coder" {
		t.Fatalf("expected chain head coder, got %+v", entry)
	}
}
