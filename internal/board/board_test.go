package board

import (
	"testing"

	"taskctl/internal/store"
)

func newTestBoard(t *testing.T) *Board {
	t.Helper()
	s := store.New(t.TempDir(), nil)
	return New(s, nil)
}

func TestHappyPathCreateClaimMarkDone(t *testing.T) {
	b := newTestBoard(t)

	created, err := b.Apply("@coder create task T-001: demo", "operator")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.TaskID != "T-001" || created.Task.Status != store.StatusPending {
		t.Fatalf("got %+v", created)
	}

	claimed, err := b.Apply("claim task T-001", "coder")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Task.Status != store.StatusClaimed || claimed.Task.Owner != "coder" {
		t.Fatalf("got %+v", claimed)
	}

	done, err := b.Apply("mark done T-001: shipped", "coder")
	if err != nil {
		t.Fatalf("mark done: %v", err)
	}
	if done.Task.Status != store.StatusDone || done.Task.Result != "shipped" {
		t.Fatalf("got %+v", done)
	}
}

func TestMarkDoneWithoutResultIsRejected(t *testing.T) {
	b := newTestBoard(t)
	if _, err := b.Apply("create task T-001: demo", "operator"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := b.Apply("claim task T-001", "coder"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	_, err := b.Apply("mark done T-001", "coder")
	if err != ErrMissingResult {
		t.Fatalf("expected ErrMissingResult, got %v", err)
	}
}

func TestInvalidTransitionFromDoneIsRejected(t *testing.T) {
	b := newTestBoard(t)
	if _, err := b.Apply("create task T-001: demo", "operator"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := b.Apply("claim task T-001", "coder"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := b.Apply("mark done T-001: shipped", "coder"); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	_, err := b.Apply("claim task T-001", "coder")
	if err == nil {
		t.Fatalf("expected invalid_transition error from done, got nil")
	}
}

func TestClaimUnknownTaskReturnsNotFound(t *testing.T) {
	b := newTestBoard(t)
	_, err := b.Apply("claim task T-999", "coder")
	if err != ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestCreateTaskWithExplicitIDThatAlreadyExistsFails(t *testing.T) {
	b := newTestBoard(t)
	if _, err := b.Apply("create task T-001: demo", "operator"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := b.Apply("create task T-001: duplicate", "operator")
	if err != ErrTaskExists {
		t.Fatalf("expected ErrTaskExists, got %v", err)
	}
}

func TestEscalateTaskCreatesDiagnosticTask(t *testing.T) {
	b := newTestBoard(t)
	if _, err := b.Apply("create task T-001: demo", "operator"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := b.Apply("claim task T-001", "coder"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	result, err := b.Apply("escalate task T-001: flaky test", "coder")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if result.Task.Status != store.StatusBlocked {
		t.Fatalf("expected T-001 blocked, got %+v", result.Task)
	}

	status, err := b.Status("T-002")
	if err != nil {
		t.Fatalf("status of diagnostic task: %v", err)
	}
	if status.Task.AssigneeHint != "debugger" || status.Task.RelatedTo != "T-001" {
		t.Fatalf("expected diagnostic task hinted to debugger and related to T-001, got %+v", status.Task)
	}
}

func TestStatusReadOnlyDoesNotRequireLock(t *testing.T) {
	b := newTestBoard(t)
	if _, err := b.Apply("create task T-001: demo", "operator"); err != nil {
		t.Fatalf("create: %v", err)
	}
	lock, err := b.store.Lock("someone-else")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer lock.Release()

	if _, err := b.Status("T-001"); err != nil {
		t.Fatalf("status should not require the board lock, got %v", err)
	}
}

func TestApplyWithMessageIDSkipsDuplicateDelivery(t *testing.T) {
	b := newTestBoard(t)

	first, err := b.ApplyWithMessageID("create task: demo", "operator", "msg-1")
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, err := b.ApplyWithMessageID("create task: demo", "operator", "msg-1")
	if err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}
	if first.TaskID != second.TaskID {
		t.Fatalf("expected duplicate delivery to replay the same result, got %+v then %+v", first, second)
	}

	snap, err := b.store.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Tasks) != 1 {
		t.Fatalf("expected the duplicate delivery to cause no second mutation, got %d tasks", len(snap.Tasks))
	}
}
