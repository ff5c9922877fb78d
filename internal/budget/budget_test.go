package budget

import (
	"path/filepath"
	"testing"

	"taskctl/internal/config"
	"taskctl/internal/filestore"
)

type fakeLocker struct{ dir string }

func (f fakeLocker) Lock(owner string) (*filestore.Lock, error) {
	return filestore.Acquire(filepath.Join(f.dir, "locks", "task-board.lock"), filestore.LockOptions{Owner: owner})
}

func newTestBudget(t *testing.T, policy config.BudgetPolicy) *Budget {
	t.Helper()
	dir := t.TempDir()
	return New(dir, fakeLocker{dir: dir}, policy)
}

func TestTokensFromReplyDoesNotDoubleCountAliases(t *testing.T) {
	// scenario 4.
	got := TokensFromReply(25, 25, 25, 25)
	if got != 50 {
		t.Fatalf("expected 50 tokens (no double counting), got %d", got)
	}
}

func TestTokensFromReplyFallsBackToAliasWhenPrimaryAxisZero(t *testing.T) {
	got := TokensFromReply(0, 0, 10, 15)
	if got != 25 {
		t.Fatalf("expected alias axes to be used when primary axes are zero, got %d", got)
	}
}

func TestPrecheckExceedsAtEqualUsage(t *testing.T) {
	policy := config.BudgetPolicy{Global: config.AgentBudgetLimits{MaxTaskTokens: 50, MaxTaskWallTimeSec: 900, MaxTaskRetries: 3, OnExceeded: "manual_handoff"}}
	b := newTestBudget(t, policy)

	if _, err := b.RecordAttempt("operator", "T-804", "coder", Usage{PromptTokens: 25, CompletionTokens: 25}); err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	snap, err := b.Precheck("operator", "T-804", "coder")
	if err != nil {
		t.Fatalf("precheck: %v", err)
	}
	if !snap.Exceeded() {
		t.Fatalf("expected precheck to flag usage==limit as exceeded, got %+v", snap)
	}
	if snap.DegradeAction != "manual_handoff" {
		t.Fatalf("expected manual_handoff degrade action, got %q", snap.DegradeAction)
	}
}

func TestPostcheckOnlyExceedsStrictlyAboveLimit(t *testing.T) {
	policy := config.BudgetPolicy{Global: config.AgentBudgetLimits{MaxTaskTokens: 50, MaxTaskWallTimeSec: 900, MaxTaskRetries: 3}}
	b := newTestBudget(t, policy)

	snap, err := b.RecordAttempt("operator", "T-804", "coder", Usage{PromptTokens: 25, CompletionTokens: 25})
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if snap.Exceeded() {
		t.Fatalf("expected usage==limit to NOT exceed on postcheck, got %+v", snap)
	}

	snap2, err := b.RecordAttempt("operator", "T-804", "coder", Usage{PromptTokens: 1})
	if err != nil {
		t.Fatalf("record attempt 2: %v", err)
	}
	if !snap2.Exceeded() {
		t.Fatalf("expected usage>limit to exceed on postcheck, got %+v", snap2)
	}
}

func TestDegradeActionFallsBackToDegradePolicyHead(t *testing.T) {
	policy := config.BudgetPolicy{Global: config.AgentBudgetLimits{
		MaxTaskTokens: 10,
		DegradePolicy: []string{"reduced_context", "manual_handoff"},
		OnExceeded:    "stop_run",
	}}
	b := newTestBudget(t, policy)

	snap, err := b.RecordAttempt("operator", "T-1", "coder", Usage{PromptTokens: 20})
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if snap.DegradeAction != "reduced_context" {
		t.Fatalf("expected fallback to degradePolicy head, got %q", snap.DegradeAction)
	}
}

func TestAgentSpecificLimitsOverrideGlobal(t *testing.T) {
	policy := config.BudgetPolicy{
		Global: config.AgentBudgetLimits{MaxTaskTokens: 1000, MaxTaskWallTimeSec: 900, MaxTaskRetries: 3},
		Agents: map[string]config.AgentBudgetLimits{
			"reviewer": {MaxTaskTokens: 5, MaxTaskWallTimeSec: 900, MaxTaskRetries: 3},
		},
	}
	b := newTestBudget(t, policy)

	snap, err := b.RecordAttempt("operator", "T-1", "reviewer", Usage{PromptTokens: 10})
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if !snap.Exceeded() {
		t.Fatalf("expected reviewer-specific limit of 5 to be exceeded by 10 tokens, got %+v", snap)
	}

	snapGlobal, err := b.RecordAttempt("operator", "T-2", "coder", Usage{PromptTokens: 10})
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if snapGlobal.Exceeded() {
		t.Fatalf("expected global limit of 1000 to not be exceeded by 10 tokens, got %+v", snapGlobal)
	}
}

func TestLimitsAreClampedToAtLeastOne(t *testing.T) {
	policy := config.BudgetPolicy{Global: config.AgentBudgetLimits{MaxTaskTokens: 0, MaxTaskWallTimeSec: -5, MaxTaskRetries: 0}}
	b := newTestBudget(t, policy)

	snap, err := b.Precheck("operator", "T-1", "coder")
	if err != nil {
		t.Fatalf("precheck: %v", err)
	}
	if snap.RemainingToken != 1 || snap.RemainingRetry != 1 {
		t.Fatalf("expected clamped limits of 1, got %+v", snap)
	}
}

func TestRetryCountAccumulatesAcrossAttempts(t *testing.T) {
	policy := config.BudgetPolicy{Global: config.AgentBudgetLimits{MaxTaskTokens: 1000, MaxTaskWallTimeSec: 900, MaxTaskRetries: 2}}
	b := newTestBudget(t, policy)

	if _, err := b.RecordAttempt("operator", "T-1", "coder", Usage{Retried: true}); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	snap, err := b.RecordAttempt("operator", "T-1", "coder", Usage{Retried: true})
	if err != nil {
		t.Fatalf("record attempt 2: %v", err)
	}
	if snap.Entry.RetryCount != 2 {
		t.Fatalf("expected retry count 2, got %d", snap.Entry.RetryCount)
	}
	if snap.Exceeded() {
		t.Fatalf("expected retry count==limit to NOT exceed on postcheck, got %+v", snap)
	}
}

func TestPrecheckWithEstimateProjectsAgainstTokenLimitWithoutPersisting(t *testing.T) {
	policy := config.BudgetPolicy{Global: config.AgentBudgetLimits{MaxTaskTokens: 100, MaxTaskWallTimeSec: 900, MaxTaskRetries: 5}}
	b := newTestBudget(t, policy)

	snap, err := b.PrecheckWithEstimate("operator", "T-1", "coder", 150)
	if err != nil {
		t.Fatalf("precheck with estimate: %v", err)
	}
	if !snap.Exceeded() {
		t.Fatalf("expected the estimate to push usage over the token limit, got %+v", snap)
	}
	if snap.Entry.TokenUsage != 0 {
		t.Fatalf("expected the estimate not to be persisted into the entry, got %+v", snap.Entry)
	}

	again, err := b.Precheck("operator", "T-1", "coder")
	if err != nil {
		t.Fatalf("precheck: %v", err)
	}
	if again.Exceeded() {
		t.Fatalf("expected a fresh precheck without the estimate to be unaffected, got %+v", again)
	}
}
