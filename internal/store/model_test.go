package store

import (
	"math"
	"testing"
)

func TestIsAllowedTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusClaimed, true},
		{StatusPending, StatusDone, false},
		{StatusClaimed, StatusInProgress, true},
		{StatusInProgress, StatusReview, true},
		{StatusInProgress, StatusFailed, true},
		{StatusReview, StatusInProgress, true},
		{StatusBlocked, StatusClaimed, true},
		{StatusFailed, StatusInProgress, true},
		{StatusDone, StatusInProgress, false},
		{StatusDone, StatusDone, true}, // self-edge always allowed
		{StatusPending, StatusPending, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := IsAllowedTransition(tt.from, tt.to); got != tt.allowed {
				t.Errorf("IsAllowedTransition(%q,%q) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusClaimed, false},
		{StatusInProgress, false},
		{StatusReview, false},
		{StatusBlocked, false},
		{StatusFailed, false},
		{StatusDone, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("Status(%q).IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestStatusIsRunnable(t *testing.T) {
	tests := []struct {
		status   Status
		runnable bool
	}{
		{StatusPending, true},
		{StatusClaimed, true},
		{StatusInProgress, true},
		{StatusReview, true},
		{StatusBlocked, false},
		{StatusFailed, false},
		{StatusDone, false},
	}
	for _, tt := range tests {
		if got := tt.status.IsRunnable(); got != tt.runnable {
			t.Errorf("Status(%q).IsRunnable() = %v, want %v", tt.status, got, tt.runnable)
		}
	}
}

func TestSanitizeNumbersCoercesNonFiniteToZero(t *testing.T) {
	task := Task{Priority: math.NaN(), Impact: math.Inf(1)}
	task.SanitizeNumbers()
	if task.Priority != 0 {
		t.Errorf("Priority = %v, want 0", task.Priority)
	}
	if task.Impact != 0 {
		t.Errorf("Impact = %v, want 0", task.Impact)
	}
}

func TestSanitizeNumbersLeavesFiniteValuesAlone(t *testing.T) {
	task := Task{Priority: 2.5, Impact: -1}
	task.SanitizeNumbers()
	if task.Priority != 2.5 || task.Impact != -1 {
		t.Errorf("expected finite values untouched, got priority=%v impact=%v", task.Priority, task.Impact)
	}
}

func TestDedupPreserveOrder(t *testing.T) {
	got := DedupPreserveOrder([]string{"T-002", "T-001", "T-002", "T-003", "T-001"})
	want := []string{"T-002", "T-001", "T-003"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
