// Package priority implements the readiness/scoring engine (component C,
//): a pure function of a task snapshot that decides which
// tasks are ready to dispatch and picks the highest-scoring one.
package priority

import (
	"errors"
	"math"
	"sort"

	"taskctl/internal/store"
)

// ErrTaskNotReady is returned by Select when a specific requested id is
// given but is not found or not ready — selection never falls back to a
// different task in that case.
var ErrTaskNotReady = errors.New("task_not_ready")

// Evaluation is one task's readiness verdict, kept for observability
// alongside the selection.
type Evaluation struct {
	TaskID       string  `json:"taskId"`
	Runnable     bool    `json:"runnable"`
	DepsSatisfied bool   `json:"depsSatisfied"`
	BlockersResolved bool `json:"blockersResolved"`
	Ready        bool    `json:"ready"`
	Score        float64 `json:"score"`
}

var statusBonus = map[store.Status]float64{
	store.StatusPending:    0,
	store.StatusClaimed:    2,
	store.StatusInProgress: 3,
	store.StatusReview:     1,
}

// Score computes priority*10 + impact*5 + statusBonus(status), sanitizing
// non-finite inputs to 0 first.
func Score(task *store.Task) float64 {
	priority := sanitize(task.Priority)
	impact := sanitize(task.Impact)
	return priority*10 + impact*5 + statusBonus[task.Status]
}

func sanitize(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// DependsSatisfied reports whether every id in dependsOn references an
// existing, done task.
func DependsSatisfied(tasks map[string]*store.Task, dependsOn []string) bool {
	for _, id := range dependsOn {
		dep, ok := tasks[id]
		if !ok || dep.Status != store.StatusDone {
			return false
		}
	}
	return true
}

// BlockersResolved reports whether every entry in blockedBy that looks like
// a task id (present in tasks) references a done task; non-task tokens are
// always unresolved
func BlockersResolved(tasks map[string]*store.Task, blockedBy []string) bool {
	for _, token := range blockedBy {
		dep, ok := tasks[token]
		if !ok || dep.Status != store.StatusDone {
			return false
		}
	}
	return true
}

// Evaluate scores every task in the snapshot.
func Evaluate(snap *store.Snapshot) map[string]Evaluation {
	out := make(map[string]Evaluation, len(snap.Tasks))
	for id, task := range snap.Tasks {
		runnable := task.Status.IsRunnable()
		deps := DependsSatisfied(snap.Tasks, task.DependsOn)
		blockers := BlockersResolved(snap.Tasks, task.BlockedBy)
		out[id] = Evaluation{
			TaskID:           id,
			Runnable:         runnable,
			DepsSatisfied:    deps,
			BlockersResolved: blockers,
			Ready:            runnable && deps && blockers,
			Score:            Score(task),
		}
	}
	return out
}

// Selection is the result of Select: the chosen task id (if any) plus the
// full per-task evaluation for observability.
type Selection struct {
	TaskID      string                `json:"taskId,omitempty"`
	Evaluations map[string]Evaluation `json:"evaluations"`
	ReadyQueue  []string              `json:"readyQueue"`
}

// Select picks the next runnable task. If requestedID is non-empty, that
// exact task is selected iff it is ready; otherwise Select returns
// ErrTaskNotReady without falling back to a different task. If requestedID
// is empty, the ready queue is sorted by (-score, taskId ascending) and the
// head is returned.
func Select(snap *store.Snapshot, requestedID string) (*Selection, error) {
	evaluations := Evaluate(snap)
	ready := readyQueue(snap, evaluations)

	sel := &Selection{Evaluations: evaluations, ReadyQueue: ready}

	if requestedID != "" {
		eval, ok := evaluations[requestedID]
		if !ok || !eval.Ready {
			return sel, ErrTaskNotReady
		}
		sel.TaskID = requestedID
		return sel, nil
	}

	if len(ready) == 0 {
		return sel, ErrTaskNotReady
	}
	sel.TaskID = ready[0]
	return sel, nil
}

func readyQueue(snap *store.Snapshot, evaluations map[string]Evaluation) []string {
	ids := make([]string, 0, len(evaluations))
	for id, eval := range evaluations {
		if eval.Ready {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := evaluations[ids[i]].Score, evaluations[ids[j]].Score
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})
	return ids
}
