// Package store implements the event-sourced task board persistence layer
// (component A of the control plane): an append-only journal, a rebuildable
// snapshot, and the exclusive file lock that serializes mutation across
// processes. It is the sole owner of the state/ directory's mutable files.
package store

import (
	"math"
	"time"
)

// Status is a Task's lifecycle state. Unlike a generic job-runner's status
// (pending/running/waiting_input/completed/failed/cancelled), the allowed
// values and the transition matrix below are specific to this board.
type Status string

const (
	StatusPending    Status = "pending"
	StatusClaimed    Status = "claimed"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether status is done — the only state with no
// outgoing edges in the transition matrix.
func (s Status) IsTerminal() bool {
	return s == StatusDone
}

// IsRunnable reports whether a task in this status is eligible for the
// priority engine: pending, claimed, in_progress, review.
func (s Status) IsRunnable() bool {
	switch s {
	case StatusPending, StatusClaimed, StatusInProgress, StatusReview:
		return true
	default:
		return false
	}
}

// transitionMatrix is the source→targets table of legal status edges. Any
// self-edge (to == from) is always permitted as a no-op and is checked
// separately by IsAllowedTransition.
var transitionMatrix = map[Status][]Status{
	StatusPending:    {StatusClaimed, StatusBlocked},
	StatusClaimed:    {StatusInProgress, StatusDone, StatusBlocked},
	StatusInProgress: {StatusReview, StatusDone, StatusBlocked, StatusFailed},
	StatusReview:     {StatusDone, StatusInProgress, StatusBlocked},
	StatusBlocked:    {StatusInProgress, StatusClaimed},
	StatusFailed:     {StatusInProgress},
	StatusDone:       {},
}

// IsAllowedTransition reports whether from→to is a legal edge: either a
// self-edge, or listed in transitionMatrix[from].
func IsAllowedTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, candidate := range transitionMatrix[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Task is the central entity.
type Task struct {
	TaskID       string    `json:"taskId"`
	Title        string    `json:"title"`
	Status       Status    `json:"status"`
	Owner        string    `json:"owner,omitempty"`
	AssigneeHint string    `json:"assigneeHint,omitempty"`
	CreatedBy    string    `json:"createdBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	BlockedReason string `json:"blockedReason,omitempty"`
	Result        string `json:"result,omitempty"`
	Review        string `json:"review,omitempty"`
	RelatedTo     string `json:"relatedTo,omitempty"`
	ProjectID     string `json:"projectId,omitempty"`

	DependsOn []string `json:"dependsOn,omitempty"`
	BlockedBy []string `json:"blockedBy,omitempty"`

	Priority float64 `json:"priority"`
	Impact   float64 `json:"impact"`

	History []string `json:"history,omitempty"`
}

// SanitizeNumbers coerces non-finite Priority/Impact to 0 so the priority
// engine never has to reason about NaN or +/-Inf scores.
func (t *Task) SanitizeNumbers() {
	if !isFinite(t.Priority) {
		t.Priority = 0
	}
	if !isFinite(t.Impact) {
		t.Impact = 0
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// DedupPreserveOrder returns ids with duplicates removed, keeping the first
// occurrence's position, so dependsOn and blockedBy stay stable across
// round-trips.
func DedupPreserveOrder(ids []string) []string {
	if len(ids) == 0 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// EventType enumerates the board's append-only event kinds.
type EventType string

const (
	EventTaskCreated     EventType = "task_created"
	EventTaskClaimed     EventType = "task_claimed"
	EventTaskDone        EventType = "task_done"
	EventTaskBlocked     EventType = "task_blocked"
	EventDiagTaskCreated EventType = "diag_task_created"
)

// Event is the append-only record of every board mutation.
type Event struct {
	EventID     string         `json:"eventId"`
	TaskID      string         `json:"taskId"`
	Type        EventType      `json:"type"`
	MessageType string         `json:"messageType,omitempty"`
	Actor       string         `json:"actor,omitempty"`
	At          int64          `json:"at"` // UTC seconds
	Payload     map[string]any `json:"payload,omitempty"`
}

// SnapshotMeta is the Snapshot's version/refresh-time header.
type SnapshotMeta struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot is the rebuildable derived cache of all tasks.
type Snapshot struct {
	Tasks map[string]*Task `json:"tasks"`
	Meta  SnapshotMeta      `json:"meta"`
}

// NewSnapshot returns an empty, version-1 snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Tasks: make(map[string]*Task), Meta: SnapshotMeta{Version: 1}}
}
